package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/stelinglobal/storefront/internal/domain/checkout"
	"github.com/stelinglobal/storefront/internal/domain/inquiry"
	"github.com/stelinglobal/storefront/internal/domain/product"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// badRequest marks errors caused by a malformed request.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &badRequest{msg: "invalid request body"}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// errorStatus maps domain errors to a status code and the message shown to
// the client. Unknown errors are 500 with a generic message.
func errorStatus(err error) (int, string) {
	var (
		bad    *badRequest
		valErr *checkout.ValidationError
		gwErr  *checkout.GatewayError
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, bad.msg
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity, valErr.Message
	case errors.Is(err, checkout.ErrInvalidSignature):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, checkout.ErrSubmissionInProgress):
		return http.StatusConflict, err.Error()
	case errors.As(err, &gwErr):
		return http.StatusBadGateway, gwErr.Error()
	case errors.Is(err, checkout.ErrUnknownOrder),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, inquiry.ErrNotFound):
		return http.StatusNotFound, rootMessage(err)
	case errors.Is(err, product.ErrNameAndPriceRequired):
		return http.StatusUnprocessableEntity, "Name and price are required."
	case errors.Is(err, product.ErrNoImages):
		return http.StatusUnprocessableEntity, "Only image files are allowed."
	case errors.Is(err, product.ErrImageIndex),
		errors.Is(err, inquiry.ErrRequired):
		return http.StatusUnprocessableEntity, rootMessage(err)
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// rootMessage returns the message of the innermost wrapped error.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// fail writes err as an error response, logging anything unexpected.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, msg)
}
