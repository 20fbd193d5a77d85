// Package checkout turns a session's cart into an order, either through the
// payment gateway or as a manual handoff to the merchant over WhatsApp.
package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stelinglobal/storefront/internal/domain/cart"
	"github.com/stelinglobal/storefront/internal/domain/order"
)

// Sentinel errors returned by the orchestrator.
var (
	ErrSubmissionInProgress = errors.New("a checkout submission is already in progress")
	ErrInvalidSignature     = errors.New("payment signature verification failed")
	ErrUnknownOrder         = errors.New("unknown gateway order")
)

// GatewayError is a failure reported by the payment gateway while starting a
// payment. Its message is the gateway's own and is shown to the buyer.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string { return e.Err.Error() }

func (e *GatewayError) Unwrap() error { return e.Err }

// DefaultFailureDescription is reported when the gateway gives no reason.
const DefaultFailureDescription = "Something went wrong"

// GatewayOrderRequest is what the orchestrator asks the gateway to create.
type GatewayOrderRequest struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Customer order.Customer
	Items    []order.Item
}

// GatewayOrder is the gateway's answer. Amount is in the smallest currency
// unit.
type GatewayOrder struct {
	OrderID  string
	Amount   int64
	Currency string
	KeyID    string
}

// Gateway is a hosted payment provider.
type Gateway interface {
	// Ready reports whether the gateway can take orders. It is idempotent.
	Ready(ctx context.Context) error
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

// Config holds merchant presentation settings.
type Config struct {
	MerchantName   string
	ThemeColor     string
	Currency       string
	WhatsAppNumber string
}

// WidgetOptions configures the client-side payment widget.
type WidgetOptions struct {
	Key         string        `json:"key"`
	Amount      int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	OrderID     string        `json:"order_id"`
	Prefill     WidgetPrefill `json:"prefill"`
	Notes       WidgetNotes   `json:"notes"`
	Theme       WidgetTheme   `json:"theme"`
}

type WidgetPrefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

type WidgetNotes struct {
	Company string `json:"company"`
	GST     string `json:"gst"`
	Address string `json:"address"`
}

type WidgetTheme struct {
	Color string `json:"color"`
}

// PaymentSuccess is the gateway's success callback payload.
type PaymentSuccess struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// PaymentFailure is the gateway's failure callback payload.
type PaymentFailure struct {
	OrderID     string `json:"order_id"`
	Description string `json:"description"`
}

// ManualResult is the outcome of a manual handoff.
type ManualResult struct {
	Receipt string `json:"receipt"`
	Message string `json:"message"`
	Link    string `json:"whatsapp_url"`
}

// Orchestrator drives checkout for every session. It holds a per-session busy
// flag so a session cannot have two gateway submissions outstanding.
type Orchestrator struct {
	cfg     Config
	carts   *cart.Registry
	gateway Gateway
	orders  order.Repository
	now     func() time.Time

	mu   sync.Mutex
	busy map[string]struct{}

	tracer    trace.Tracer
	submitted metric.Int64Counter
	completed metric.Int64Counter
}

// New creates an Orchestrator.
func New(
	cfg Config,
	carts *cart.Registry,
	gateway Gateway,
	orders order.Repository,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Orchestrator, error) {
	meter := mp.Meter("storefront/checkout")
	submitted, err := meter.Int64Counter("checkout.submitted",
		metric.WithDescription("Checkout submissions by path"))
	if err != nil {
		return nil, errors.Wrap(err, "create submitted counter")
	}
	completed, err := meter.Int64Counter("checkout.completed",
		metric.WithDescription("Checkout outcomes by path and status"))
	if err != nil {
		return nil, errors.Wrap(err, "create completed counter")
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Orchestrator{
		cfg:       cfg,
		carts:     carts,
		gateway:   gateway,
		orders:    orders,
		now:       time.Now,
		busy:      make(map[string]struct{}),
		tracer:    tp.Tracer("storefront/checkout"),
		submitted: submitted,
		completed: completed,
	}, nil
}

// Validate checks the form against the session's current cart.
func (o *Orchestrator) Validate(ctx context.Context, sessionID string, f Form) error {
	return Validate(f, o.carts.Get(ctx, sessionID).Snapshot())
}

// StartGateway validates the form, creates a gateway order for the cart total
// and returns the options the client passes to the payment widget. The cart is
// not modified; it is cleared only by a verified PaymentSucceeded.
func (o *Orchestrator) StartGateway(ctx context.Context, sessionID string, f Form) (_ *WidgetOptions, rerr error) {
	ctx, span := o.tracer.Start(ctx, "checkout.StartGateway")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	state := o.carts.Get(ctx, sessionID).Snapshot()
	if err := Validate(f, state); err != nil {
		return nil, err
	}

	if !o.acquire(sessionID) {
		return nil, ErrSubmissionInProgress
	}
	defer o.release(sessionID)

	o.submitted.Add(ctx, 1, metric.WithAttributes(attribute.String("path", "gateway")))

	if err := o.gateway.Ready(ctx); err != nil {
		return nil, &GatewayError{Err: err}
	}

	now := o.now()
	customer := f.Customer()
	req := GatewayOrderRequest{
		Amount:   state.TotalPrice(),
		Currency: o.cfg.Currency,
		Receipt:  fmt.Sprintf("order_%d", now.UnixMilli()),
		Customer: customer,
		Items:    orderItems(state),
	}
	span.SetAttributes(
		attribute.String("checkout.receipt", req.Receipt),
		attribute.Int("checkout.lines", len(state.Lines)),
	)

	gw, err := o.gateway.CreateOrder(ctx, req)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}

	rec := &order.Order{
		Receipt:        req.Receipt,
		SessionID:      sessionID,
		GatewayOrderID: gw.OrderID,
		Method:         string(MethodRazorpay),
		Status:         order.StatusPending,
		Amount:         req.Amount,
		Currency:       gw.Currency,
		Items:          req.Items,
		Customer:       customer,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.orders.Create(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "record order")
	}

	return &WidgetOptions{
		Key:         gw.KeyID,
		Amount:      gw.Amount,
		Currency:    gw.Currency,
		Name:        o.cfg.MerchantName,
		Description: fmt.Sprintf("Order for %d item(s)", len(state.Lines)),
		OrderID:     gw.OrderID,
		Prefill: WidgetPrefill{
			Name:    customer.Name,
			Email:   customer.Email,
			Contact: customer.Phone,
		},
		Notes: WidgetNotes{
			Company: customer.Company,
			GST:     customer.GST,
			Address: customer.ShippingAddress(),
		},
		Theme: WidgetTheme{Color: o.cfg.ThemeColor},
	}, nil
}

// PaymentSucceeded handles the gateway success callback. The signature must
// verify and the order must belong to the session; only then is the order
// marked paid and the session's cart cleared.
func (o *Orchestrator) PaymentSucceeded(ctx context.Context, sessionID string, p PaymentSuccess) (*order.Order, error) {
	ctx, span := o.tracer.Start(ctx, "checkout.PaymentSucceeded",
		trace.WithAttributes(attribute.String("checkout.gateway_order_id", p.OrderID)))
	defer span.End()

	if !o.gateway.VerifySignature(p.OrderID, p.PaymentID, p.Signature) {
		span.SetStatus(codes.Error, "bad signature")
		return nil, ErrInvalidSignature
	}

	rec, err := o.lookup(ctx, sessionID, p.OrderID)
	if err != nil {
		return nil, err
	}

	if rec.Status != order.StatusPaid {
		if err := rec.Transition(order.StatusPaid, o.now()); err != nil {
			return nil, err
		}
		rec.PaymentID = p.PaymentID
		if err := o.orders.UpdateStatus(ctx, rec); err != nil {
			return nil, errors.Wrap(err, "mark order paid")
		}
		o.completed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("path", "gateway"),
			attribute.String("status", string(order.StatusPaid)),
		))
	}

	o.carts.Get(ctx, sessionID).Clear(ctx)
	zctx.From(ctx).Info("Payment captured",
		zap.String("receipt", rec.Receipt),
		zap.String("payment_id", p.PaymentID),
	)
	return rec, nil
}

// PaymentFailed handles the gateway failure callback. The cart is left as is
// and the buyer-facing description is returned.
func (o *Orchestrator) PaymentFailed(ctx context.Context, sessionID string, p PaymentFailure) (string, error) {
	desc := p.Description
	if desc == "" {
		desc = DefaultFailureDescription
	}

	rec, err := o.lookup(ctx, sessionID, p.OrderID)
	if err != nil {
		return desc, err
	}
	if err := rec.Transition(order.StatusFailed, o.now()); err != nil {
		// Already paid: a late failure event changes nothing.
		return desc, nil
	}
	if err := o.orders.UpdateStatus(ctx, rec); err != nil {
		return desc, errors.Wrap(err, "mark order failed")
	}
	o.completed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path", "gateway"),
		attribute.String("status", string(order.StatusFailed)),
	))
	zctx.From(ctx).Info("Payment failed",
		zap.String("receipt", rec.Receipt),
		zap.String("description", desc),
	)
	return desc, nil
}

// Manual validates the form, builds the merchant message and its WhatsApp
// link, records the order and clears the cart. The buyer is considered handed
// off once the link is produced; failing to record the order is logged only.
func (o *Orchestrator) Manual(ctx context.Context, sessionID string, f Form) (*ManualResult, error) {
	ctx, span := o.tracer.Start(ctx, "checkout.Manual")
	defer span.End()

	store := o.carts.Get(ctx, sessionID)
	state := store.Snapshot()
	if err := Validate(f, state); err != nil {
		return nil, err
	}
	o.submitted.Add(ctx, 1, metric.WithAttributes(attribute.String("path", "manual")))

	now := o.now()
	msg := Summary(f, state)
	res := &ManualResult{
		Receipt: fmt.Sprintf("order_%d", now.UnixMilli()),
		Message: msg,
		Link:    WhatsAppLink(o.cfg.WhatsAppNumber, msg),
	}

	method := f.PaymentMethod
	if method == "" || method == MethodRazorpay {
		method = MethodCard
	}
	rec := &order.Order{
		Receipt:   res.Receipt,
		SessionID: sessionID,
		Method:    string(method),
		Status:    order.StatusManual,
		Amount:    state.TotalPrice(),
		Currency:  o.cfg.Currency,
		Items:     orderItems(state),
		Customer:  f.Customer(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.orders.Create(ctx, rec); err != nil {
		zctx.From(ctx).Warn("Record manual order", zap.String("receipt", rec.Receipt), zap.Error(err))
	}

	store.Clear(ctx)
	o.completed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path", "manual"),
		attribute.String("status", string(order.StatusManual)),
	))
	return res, nil
}

func (o *Orchestrator) lookup(ctx context.Context, sessionID, gatewayOrderID string) (*order.Order, error) {
	rec, err := o.orders.GetByGatewayOrderID(ctx, gatewayOrderID)
	if errors.Is(err, order.ErrNotFound) {
		return nil, ErrUnknownOrder
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if rec.SessionID != sessionID {
		return nil, ErrUnknownOrder
	}
	return rec, nil
}

func (o *Orchestrator) acquire(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.busy[sessionID]; ok {
		return false
	}
	o.busy[sessionID] = struct{}{}
	return true
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.busy, sessionID)
}

func orderItems(state cart.State) []order.Item {
	items := make([]order.Item, len(state.Lines))
	for i, l := range state.Lines {
		items[i] = order.Item{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			Quantity:  l.Quantity,
			Price:     l.Product.Price,
		}
	}
	return items
}
