// Package razorpay is a minimal client for the Razorpay Orders API and the
// checkout signature scheme.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stelinglobal/storefront/internal/domain/checkout"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.razorpay.com/v1"

var (
	ErrNotConfigured = errors.New("Razorpay credentials not configured")
	ErrInvalidAmount = errors.New("invalid amount")
)

var _ checkout.Gateway = (*Client)(nil)

// APIError is a non-2xx answer from the Orders API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Razorpay API error [%d]: %s", e.Status, e.Body)
}

// Config holds API credentials.
type Config struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

// Client talks to the Orders API over an instrumented transport.
type Client struct {
	cfg   Config
	http  *http.Client
	now   func() time.Time
	ready func() error
}

// New creates a Client. Credentials are checked lazily by Ready.
func New(cfg Config, tp trace.TracerProvider, mp metric.MeterProvider) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(tp),
				otelhttp.WithMeterProvider(mp),
			),
		},
		now: time.Now,
	}
	c.ready = sync.OnceValue(func() error {
		if c.cfg.KeyID == "" || c.cfg.KeySecret == "" {
			return ErrNotConfigured
		}
		return nil
	})
	return c
}

// Ready reports whether credentials are present. The check runs once.
func (c *Client) Ready(context.Context) error {
	return c.ready()
}

// CreateOrder registers an order for the request amount. The amount is sent
// in the smallest currency unit.
func (c *Client) CreateOrder(ctx context.Context, req checkout.GatewayOrderRequest) (*checkout.GatewayOrder, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	receipt := req.Receipt
	if receipt == "" {
		receipt = "rcpt_" + strconv.FormatInt(c.now().UnixMilli(), 10)
	}
	body := encodeOrderRequest(orderRequest{
		Amount:   SmallestUnit(req.Amount),
		Currency: req.Currency,
		Receipt:  receipt,
		Notes: [][2]string{
			{"company", req.Customer.Company},
			{"gst", req.Customer.GST},
			{"customer_name", req.Customer.Name},
			{"customer_email", req.Customer.Email},
			{"customer_phone", req.Customer.Phone},
			{"items_count", strconv.Itoa(len(req.Items))},
		},
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(data)}
	}

	out, err := decodeOrder(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	out.KeyID = c.cfg.KeyID
	return out, nil
}

// VerifySignature checks the checkout callback signature, an HMAC-SHA256 of
// "order_id|payment_id" keyed with the API secret.
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	if c.cfg.KeySecret == "" || signature == "" {
		return false
	}
	want := Sign(c.cfg.KeySecret, orderID, paymentID)
	return subtle.ConstantTimeCompare([]byte(want), []byte(signature)) == 1
}

// Sign computes the hex signature the gateway attaches to a payment.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// SmallestUnit converts a major-unit amount to paise (or cents), rounding
// half away from zero.
func SmallestUnit(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

type orderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    [][2]string
}

func encodeOrderRequest(r orderRequest) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("amount")
	e.Int64(r.Amount)
	e.FieldStart("currency")
	e.Str(r.Currency)
	e.FieldStart("receipt")
	e.Str(r.Receipt)
	e.FieldStart("notes")
	e.ObjStart()
	for _, n := range r.Notes {
		e.FieldStart(n[0])
		e.Str(n[1])
	}
	e.ObjEnd()
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

func decodeOrder(data []byte) (*checkout.GatewayOrder, error) {
	var out checkout.GatewayOrder
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			out.OrderID, err = d.Str()
		case "amount":
			out.Amount, err = d.Int64()
		case "currency":
			out.Currency, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if out.OrderID == "" {
		return nil, errors.New("response has no order id")
	}
	return &out, nil
}
