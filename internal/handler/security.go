package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/stelinglobal/storefront/internal/domain/auth"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "api_key"

// requireScope authenticates the admin API key and checks that it grants
// scope. A missing or unknown key is 401, a key without the scope is 403.
func (h *Handler) requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing API key")
			return
		}

		info, err := h.authn.Authenticate(ctx, key)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				zctx.From(ctx).Warn("API key lookup failed", zap.Error(err))
			}
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		if !info.HasScope(scope) {
			writeError(w, http.StatusForbidden, "API key lacks scope "+scope)
			return
		}

		next(w, r.WithContext(auth.WithKey(ctx, info)))
	}
}

// audit logs an admin change together with the key that made it.
func audit(ctx context.Context, msg string, fields ...zap.Field) {
	if info, ok := auth.FromContext(ctx); ok {
		fields = append(fields, zap.String("key_id", info.ID), zap.String("key_name", info.Name))
	}
	zctx.From(ctx).Info(msg, fields...)
}
