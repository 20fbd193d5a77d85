package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/stelinglobal/storefront/internal/domain/checkout"
)

func (h *Handler) validateCheckout(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	var f checkout.Form
	if err := decodeJSON(r, &f); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.checkout.Validate(r.Context(), session, f); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (h *Handler) startGateway(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	var f checkout.Form
	if err := decodeJSON(r, &f); err != nil {
		fail(w, r, err)
		return
	}
	opts, err := h.checkout.StartGateway(r.Context(), session, f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (h *Handler) gatewaySuccess(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	var p checkout.PaymentSuccess
	if err := decodeJSON(r, &p); err != nil {
		fail(w, r, err)
		return
	}
	rec, err := h.checkout.PaymentSucceeded(r.Context(), session, p)
	if err != nil {
		if status, _ := errorStatus(err); status < http.StatusInternalServerError {
			zctx.From(r.Context()).Warn("Rejected payment callback",
				zap.String("gateway_order_id", p.OrderID), zap.Error(err))
		}
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"receipt":    rec.Receipt,
		"status":     string(rec.Status),
		"payment_id": rec.PaymentID,
	})
}

func (h *Handler) gatewayFailure(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	var p checkout.PaymentFailure
	if err := decodeJSON(r, &p); err != nil {
		fail(w, r, err)
		return
	}
	desc, err := h.checkout.PaymentFailed(r.Context(), session, p)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": desc})
}

func (h *Handler) manualCheckout(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	var f checkout.Form
	if err := decodeJSON(r, &f); err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.checkout.Manual(r.Context(), session, f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
