package handler

import (
	"net/http"

	"github.com/google/uuid"
)

const (
	// SessionHeader carries the cart session for clients that do not keep
	// cookies. It is echoed on every cart and checkout response.
	SessionHeader = "X-Cart-Session"
	// SessionCookie is the cookie fallback for browsers.
	SessionCookie = "cart_session"

	sessionMaxAge = 30 * 24 * 60 * 60
	maxSessionLen = 64
)

// session resolves the caller's cart session, starting a new one when the
// request carries none or a malformed one.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		if c, err := r.Cookie(SessionCookie); err == nil {
			id = c.Value
		}
	}
	if !validSessionID(id) {
		id = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			MaxAge:   sessionMaxAge,
			HttpOnly: true,
			Secure:   h.cfg.SecureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}
	w.Header().Set(SessionHeader, id)
	return id
}

func validSessionID(id string) bool {
	if id == "" || len(id) > maxSessionLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
