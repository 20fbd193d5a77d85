package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stelinglobal/storefront/internal/domain/cart"
)

// cartView is the cart as returned to clients, with derived totals.
type cartView struct {
	Items      cart.State      `json:"items"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

func viewOf(s cart.State) cartView {
	return cartView{Items: s, TotalItems: s.TotalItems(), TotalPrice: s.TotalPrice()}
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	store := h.carts.Get(r.Context(), h.session(w, r))
	writeJSON(w, http.StatusOK, viewOf(store.Snapshot()))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	store := h.carts.Get(r.Context(), h.session(w, r))
	writeJSON(w, http.StatusOK, viewOf(store.Clear(r.Context())))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	var req struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.ProductID == "" {
		fail(w, r, &badRequest{msg: "productId is required"})
		return
	}

	p, err := h.catalog.Get(r.Context(), req.ProductID)
	if err != nil {
		fail(w, r, err)
		return
	}
	state := h.carts.Get(r.Context(), session).Add(r.Context(), *p, req.Quantity)
	writeJSON(w, http.StatusOK, viewOf(state))
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	state := h.carts.Get(r.Context(), session).UpdateQuantity(r.Context(), r.PathValue("productId"), req.Quantity)
	writeJSON(w, http.StatusOK, viewOf(state))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	store := h.carts.Get(r.Context(), h.session(w, r))
	writeJSON(w, http.StatusOK, viewOf(store.Remove(r.Context(), r.PathValue("productId"))))
}

// streamCart pushes the session's cart after every change, starting with the
// current state. Slow clients only ever see the latest state.
func (h *Handler) streamCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := h.carts.Get(ctx, h.session(w, r))

	updates := make(chan cart.State, 1)
	unsubscribe := store.Subscribe(func(s cart.State) {
		// Listeners run one at a time under the store lock, so after the
		// drain this send cannot block.
		select {
		case updates <- s:
		default:
			select {
			case <-updates:
			default:
			}
			updates <- s
		}
	})
	defer unsubscribe()

	stream, err := openStream(w)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := stream.send("cart", viewOf(store.Snapshot())); err != nil {
		return
	}

	ticker := time.NewTicker(h.cfg.StreamKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-updates:
			err = stream.send("cart", viewOf(s))
		case <-ticker.C:
			err = stream.ping()
		}
		if err != nil {
			zctx.From(ctx).Debug("Cart stream closed", zap.Error(err))
			return
		}
	}
}
