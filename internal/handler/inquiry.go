package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stelinglobal/storefront/internal/domain/inquiry"
)

func (h *Handler) submitInquiry(w http.ResponseWriter, r *http.Request) {
	var req inquiry.Request
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	inq, err := h.inquiries.Submit(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inq)
}

func (h *Handler) listInquiries(w http.ResponseWriter, r *http.Request) {
	list, err := h.inquiries.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	unread := 0
	for _, inq := range list {
		if !inq.IsRead {
			unread++
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Inquiries []inquiry.Inquiry `json:"inquiries"`
		Unread    int               `json:"unread"`
	}{list, unread})
}

func (h *Handler) unreadInquiries(w http.ResponseWriter, r *http.Request) {
	n, err := h.inquiries.UnreadCount(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *Handler) toggleInquiry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		fail(w, r, inquiry.ErrNotFound)
		return
	}
	inq, err := h.inquiries.ToggleRead(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	audit(r.Context(), "Inquiry read state toggled",
		zap.String("inquiry_id", id.String()),
		zap.Bool("is_read", inq.IsRead),
	)
	writeJSON(w, http.StatusOK, inq)
}

type inquiryEvent struct {
	ID     string `json:"id,omitempty"`
	Unread int    `json:"unread"`
}

// streamInquiries tells admin clients when inquiries change, with the fresh
// unread count. Clients refetch the list on each event.
func (h *Handler) streamInquiries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	changes, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	unread, err := h.inquiries.UnreadCount(ctx)
	if err != nil {
		fail(w, r, err)
		return
	}
	stream, err := openStream(w)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := stream.send("inquiries", inquiryEvent{Unread: unread}); err != nil {
		return
	}

	ticker := time.NewTicker(h.cfg.StreamKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if n, cerr := h.inquiries.UnreadCount(ctx); cerr == nil {
				unread = n
			}
			err = stream.send("inquiries", inquiryEvent{ID: c.ID.String(), Unread: unread})
		case <-ticker.C:
			err = stream.ping()
		}
		if err != nil {
			zctx.From(ctx).Debug("Inquiry stream closed", zap.Error(err))
			return
		}
	}
}
