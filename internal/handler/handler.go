// Package handler exposes the storefront over HTTP: the public catalog, cart,
// checkout and inquiry endpoints plus the API-key protected admin surface.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stelinglobal/storefront/internal/domain/auth"
	"github.com/stelinglobal/storefront/internal/domain/cart"
	"github.com/stelinglobal/storefront/internal/domain/checkout"
	"github.com/stelinglobal/storefront/internal/domain/inquiry"
	"github.com/stelinglobal/storefront/internal/domain/order"
	"github.com/stelinglobal/storefront/internal/domain/product"
)

// Catalog is the product service used by the handlers.
type Catalog interface {
	List(ctx context.Context, f product.Filter) ([]product.Product, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	Save(ctx context.Context, p *product.Product, isNew bool) error
	Delete(ctx context.Context, id string) error
	UploadImages(ctx context.Context, id string, files []product.Upload) (*product.Product, error)
	AddImageURL(ctx context.Context, id, url string) (*product.Product, error)
	MoveImage(ctx context.Context, id string, from, to int) (*product.Product, error)
	RemoveImage(ctx context.Context, id string, i int) (*product.Product, error)
}

// Checkout drives the two checkout paths for a session.
type Checkout interface {
	Validate(ctx context.Context, sessionID string, f checkout.Form) error
	StartGateway(ctx context.Context, sessionID string, f checkout.Form) (*checkout.WidgetOptions, error)
	PaymentSucceeded(ctx context.Context, sessionID string, p checkout.PaymentSuccess) (*order.Order, error)
	PaymentFailed(ctx context.Context, sessionID string, p checkout.PaymentFailure) (string, error)
	Manual(ctx context.Context, sessionID string, f checkout.Form) (*checkout.ManualResult, error)
}

// Inquiries is the quote request service.
type Inquiries interface {
	Submit(ctx context.Context, r inquiry.Request) (*inquiry.Inquiry, error)
	List(ctx context.Context) ([]inquiry.Inquiry, error)
	ToggleRead(ctx context.Context, id uuid.UUID) (*inquiry.Inquiry, error)
	UnreadCount(ctx context.Context) (int, error)
}

// Authenticator resolves an admin API key.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

// Config holds non-dependency settings for the Handler.
type Config struct {
	// SecureCookie marks the session cookie Secure; enable behind TLS.
	SecureCookie bool
	// MaxUploadBytes caps a multipart image batch. Defaults to 32 MiB.
	MaxUploadBytes int64
	// StreamKeepAlive is the interval of SSE comment pings. Defaults to 15s.
	StreamKeepAlive time.Duration
}

// Handler serves the storefront API.
type Handler struct {
	cfg       Config
	catalog   Catalog
	carts     *cart.Registry
	checkout  Checkout
	inquiries Inquiries
	hub       *inquiry.Hub
	authn     Authenticator
}

// New constructs a Handler with its domain dependencies.
func New(
	cfg Config,
	catalog Catalog,
	carts *cart.Registry,
	checkout Checkout,
	inquiries Inquiries,
	hub *inquiry.Hub,
	authn Authenticator,
) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.StreamKeepAlive <= 0 {
		cfg.StreamKeepAlive = 15 * time.Second
	}
	return &Handler{
		cfg:       cfg,
		catalog:   catalog,
		carts:     carts,
		checkout:  checkout,
		inquiries: inquiries,
		hub:       hub,
		authn:     authn,
	}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/categories", h.listCategories)
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("DELETE /api/cart", h.clearCart)
	mux.HandleFunc("GET /api/cart/stream", h.streamCart)
	mux.HandleFunc("POST /api/cart/items", h.addCartItem)
	mux.HandleFunc("PATCH /api/cart/items/{productId}", h.updateCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{productId}", h.removeCartItem)

	mux.HandleFunc("POST /api/checkout/validate", h.validateCheckout)
	mux.HandleFunc("POST /api/checkout/gateway", h.startGateway)
	mux.HandleFunc("POST /api/checkout/gateway/success", h.gatewaySuccess)
	mux.HandleFunc("POST /api/checkout/gateway/failure", h.gatewayFailure)
	mux.HandleFunc("POST /api/checkout/manual", h.manualCheckout)

	mux.HandleFunc("POST /api/inquiries", h.submitInquiry)

	mux.HandleFunc("POST /api/admin/products", h.requireScope(auth.ScopeProductsWrite, h.createProduct))
	mux.HandleFunc("PUT /api/admin/products/{id}", h.requireScope(auth.ScopeProductsWrite, h.updateProduct))
	mux.HandleFunc("DELETE /api/admin/products/{id}", h.requireScope(auth.ScopeProductsWrite, h.deleteProduct))
	mux.HandleFunc("POST /api/admin/products/{id}/images", h.requireScope(auth.ScopeProductsWrite, h.uploadImages))
	mux.HandleFunc("POST /api/admin/products/{id}/images/url", h.requireScope(auth.ScopeProductsWrite, h.addImageURL))
	mux.HandleFunc("POST /api/admin/products/{id}/images/move", h.requireScope(auth.ScopeProductsWrite, h.moveImage))
	mux.HandleFunc("DELETE /api/admin/products/{id}/images/{index}", h.requireScope(auth.ScopeProductsWrite, h.removeImage))

	mux.HandleFunc("GET /api/admin/inquiries", h.requireScope(auth.ScopeInquiriesRead, h.listInquiries))
	mux.HandleFunc("GET /api/admin/inquiries/unread", h.requireScope(auth.ScopeInquiriesRead, h.unreadInquiries))
	mux.HandleFunc("GET /api/admin/inquiries/stream", h.requireScope(auth.ScopeInquiriesRead, h.streamInquiries))
	mux.HandleFunc("POST /api/admin/inquiries/{id}/toggle-read", h.requireScope(auth.ScopeInquiriesWrite, h.toggleInquiry))
}
