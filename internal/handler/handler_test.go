package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stelinglobal/storefront/internal/domain/auth"
	"github.com/stelinglobal/storefront/internal/domain/cart"
	"github.com/stelinglobal/storefront/internal/domain/checkout"
	"github.com/stelinglobal/storefront/internal/domain/inquiry"
	"github.com/stelinglobal/storefront/internal/domain/order"
	"github.com/stelinglobal/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockCatalog struct {
	mu       sync.Mutex
	products map[string]*product.Product
	saveErr  error
	uploaded []product.Upload
	upErr    error
}

func newMockCatalog(products ...product.Product) *mockCatalog {
	m := &mockCatalog{products: make(map[string]*product.Product)}
	for _, p := range products {
		m.products[p.ID] = &p
	}
	return m
}

func (m *mockCatalog) List(_ context.Context, f product.Filter) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]product.Product, 0, len(m.products))
	for _, id := range []string{"pot", "pan", "box"} {
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return f.Apply(out), nil
}

func (m *mockCatalog) Get(_ context.Context, id string) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockCatalog) Save(_ context.Context, p *product.Product, isNew bool) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if p.Name == "" || !p.Price.IsPositive() {
		return product.ErrNameAndPriceRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok && !isNew {
		return errors.Wrap(product.ErrNotFound, "update product")
	}
	if p.ID == "" {
		p.ID = "product-1"
	}
	m.products[p.ID] = p
	return nil
}

func (m *mockCatalog) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return product.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockCatalog) UploadImages(ctx context.Context, id string, files []product.Upload) (*product.Product, error) {
	m.uploaded = files
	if m.upErr != nil {
		return nil, m.upErr
	}
	var images bool
	for _, f := range files {
		images = images || f.IsImage()
	}
	if !images {
		return nil, product.ErrNoImages
	}
	return m.Get(ctx, id)
}

func (m *mockCatalog) AddImageURL(ctx context.Context, id, url string) (*product.Product, error) {
	return m.edit(ctx, id, func(images []string) ([]string, error) { return append(images, url), nil })
}

func (m *mockCatalog) MoveImage(ctx context.Context, id string, from, to int) (*product.Product, error) {
	return m.edit(ctx, id, func(images []string) ([]string, error) { return product.MoveImage(images, from, to) })
}

func (m *mockCatalog) RemoveImage(ctx context.Context, id string, i int) (*product.Product, error) {
	return m.edit(ctx, id, func(images []string) ([]string, error) { return product.RemoveImage(images, i) })
}

func (m *mockCatalog) edit(_ context.Context, id string, fn func([]string) ([]string, error)) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	images, err := fn(p.Images)
	if err != nil {
		return nil, err
	}
	p.Images = images
	cp := *p
	return &cp, nil
}

type mockCheckout struct {
	err      error
	sessions []string
	form     checkout.Form
}

func (m *mockCheckout) record(session string, f checkout.Form) {
	m.sessions = append(m.sessions, session)
	m.form = f
}

func (m *mockCheckout) Validate(_ context.Context, session string, f checkout.Form) error {
	m.record(session, f)
	return m.err
}

func (m *mockCheckout) StartGateway(_ context.Context, session string, f checkout.Form) (*checkout.WidgetOptions, error) {
	m.record(session, f)
	if m.err != nil {
		return nil, m.err
	}
	return &checkout.WidgetOptions{Key: "rzp_test", Amount: 405000, Currency: "INR", OrderID: "order_gw1"}, nil
}

func (m *mockCheckout) PaymentSucceeded(_ context.Context, session string, p checkout.PaymentSuccess) (*order.Order, error) {
	m.sessions = append(m.sessions, session)
	if m.err != nil {
		return nil, m.err
	}
	return &order.Order{Receipt: "order_1", Status: order.StatusPaid, PaymentID: p.PaymentID}, nil
}

func (m *mockCheckout) PaymentFailed(_ context.Context, session string, p checkout.PaymentFailure) (string, error) {
	m.sessions = append(m.sessions, session)
	if p.Description == "" {
		return checkout.DefaultFailureDescription, m.err
	}
	return p.Description, m.err
}

func (m *mockCheckout) Manual(_ context.Context, session string, f checkout.Form) (*checkout.ManualResult, error) {
	m.record(session, f)
	if m.err != nil {
		return nil, m.err
	}
	return &checkout.ManualResult{Receipt: "order_2", Message: "New Order", Link: "https://wa.me/1?text=New%20Order"}, nil
}

type mockInquiries struct {
	list      []inquiry.Inquiry
	submitted []inquiry.Request
	err       error
}

func (m *mockInquiries) Submit(_ context.Context, r inquiry.Request) (*inquiry.Inquiry, error) {
	if r.Name == "" || r.Email == "" || r.Country == "" {
		return nil, inquiry.ErrRequired
	}
	m.submitted = append(m.submitted, r)
	return &inquiry.Inquiry{ID: uuid.New(), Name: r.Name, Email: r.Email, Country: r.Country, Message: r.Message}, nil
}

func (m *mockInquiries) List(context.Context) ([]inquiry.Inquiry, error) { return m.list, m.err }

func (m *mockInquiries) ToggleRead(_ context.Context, id uuid.UUID) (*inquiry.Inquiry, error) {
	for i := range m.list {
		if m.list[i].ID == id {
			m.list[i].IsRead = !m.list[i].IsRead
			return &m.list[i], nil
		}
	}
	return nil, inquiry.ErrNotFound
}

func (m *mockInquiries) UnreadCount(context.Context) (int, error) {
	n := 0
	for _, inq := range m.list {
		if !inq.IsRead {
			n++
		}
	}
	return n, m.err
}

type mockAuthenticator struct {
	keys map[string]*auth.APIKeyInfo
	err  error
}

func (m *mockAuthenticator) Authenticate(_ context.Context, key string) (*auth.APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.keys[key]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return info, nil
}

// --- Helpers ---

var (
	pot = product.Product{ID: "pot", Name: "Stock Pot", Category: "cookware", Price: decimal.NewFromInt(45), Currency: "INR", MOQ: 50, Images: []string{"a.jpg", "b.jpg", "c.jpg"}}
	pan = product.Product{ID: "pan", Name: "Frying Pan", Category: "cookware", Price: decimal.NewFromInt(18), Currency: "INR", MOQ: 100}
	box = product.Product{ID: "box", Name: "Lunch Box", Category: "containers", Price: decimal.RequireFromString("2.50"), Currency: "INR", MOQ: 1}
)

type testEnv struct {
	mux       *http.ServeMux
	catalog   *mockCatalog
	carts     *cart.Registry
	checkout  *mockCheckout
	inquiries *mockInquiries
	hub       *inquiry.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		mux:       http.NewServeMux(),
		catalog:   newMockCatalog(pot, pan, box),
		carts:     cart.NewRegistry(nil, nil),
		checkout:  &mockCheckout{},
		inquiries: &mockInquiries{},
		hub:       inquiry.NewHub(),
	}
	authn := &mockAuthenticator{keys: map[string]*auth.APIKeyInfo{
		"admin-key":  {ID: "1", Name: "admin", Scopes: auth.AllScopes},
		"reader-key": {ID: "2", Name: "reader", Scopes: []string{auth.ScopeInquiriesRead}},
	}}
	New(Config{StreamKeepAlive: time.Hour}, env.catalog, env.carts, env.checkout, env.inquiries, env.hub, authn).
		Register(env.mux)
	return env
}

func (e *testEnv) do(method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	return w
}

func session(id string) map[string]string { return map[string]string{SessionHeader: id} }

func admin(key string) map[string]string { return map[string]string{APIKeyHeader: key} }

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type cartBody struct {
	Items []struct {
		Product  product.Product `json:"product"`
		Quantity int             `json:"quantity"`
	} `json:"items"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	body := decodeBody[errBody](t, w)
	assert.Equal(t, status, body.Code)
	if msg != "" {
		assert.Equal(t, msg, body.Message)
	}
}

// --- Tests ---

func TestListProducts(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		target  string
		wantIDs []string
	}{
		{name: "all in order", target: "/api/products", wantIDs: []string{"pot", "pan", "box"}},
		{name: "by category", target: "/api/products?category=containers", wantIDs: []string{"box"}},
		{name: "by name", target: "/api/products?q=PAN", wantIDs: []string{"pan"}},
		{name: "no match", target: "/api/products?category=serving", wantIDs: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, tt.target, "", nil)
			require.Equal(t, http.StatusOK, w.Code)
			got := decodeBody[[]product.Product](t, w)
			ids := make([]string, len(got))
			for i, p := range got {
				ids[i] = p.ID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/products/pot", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Stock Pot", decodeBody[product.Product](t, w).Name)

	assertError(t, env.do(http.MethodGet, "/api/products/ghost", "", nil), http.StatusNotFound, "product not found")
}

func TestCartFlow(t *testing.T) {
	env := newTestEnv(t)
	s := session("sess-1")

	w := env.do(http.MethodPost, "/api/cart/items", `{"productId":"pot","quantity":50}`, s)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "sess-1", w.Header().Get(SessionHeader))

	w = env.do(http.MethodPost, "/api/cart/items", `{"productId":"pan","quantity":100}`, s)
	got := decodeBody[cartBody](t, w)
	assert.Equal(t, 150, got.TotalItems)
	assert.True(t, decimal.NewFromInt(4050).Equal(got.TotalPrice))

	w = env.do(http.MethodPost, "/api/cart/items", `{"productId":"pot","quantity":50}`, s)
	assert.Equal(t, 150, decodeBody[cartBody](t, w).TotalItems, "re-adding sets the quantity")

	w = env.do(http.MethodPatch, "/api/cart/items/pot", `{"quantity":0}`, s)
	got = decodeBody[cartBody](t, w)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "pan", got.Items[0].Product.ID)

	w = env.do(http.MethodDelete, "/api/cart/items/ghost", "", s)
	assert.Equal(t, 100, decodeBody[cartBody](t, w).TotalItems)

	w = env.do(http.MethodDelete, "/api/cart", "", s)
	assert.Equal(t, 0, decodeBody[cartBody](t, w).TotalItems)

	w = env.do(http.MethodGet, "/api/cart", "", session("sess-2"))
	assert.Empty(t, decodeBody[cartBody](t, w).Items, "sessions are isolated")
}

func TestCartAddErrors(t *testing.T) {
	env := newTestEnv(t)
	s := session("sess-1")

	assertError(t, env.do(http.MethodPost, "/api/cart/items", `{"productId":"ghost","quantity":1}`, s), http.StatusNotFound, "")
	assertError(t, env.do(http.MethodPost, "/api/cart/items", `{"quantity":1}`, s), http.StatusBadRequest, "productId is required")
	assertError(t, env.do(http.MethodPost, "/api/cart/items", `{`, s), http.StatusBadRequest, "invalid request body")
	assert.True(t, env.carts.Get(context.Background(), "sess-1").Snapshot().IsEmpty())
}

func TestSession(t *testing.T) {
	env := newTestEnv(t)

	t.Run("created when absent", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/cart", "", nil)
		id := w.Header().Get(SessionHeader)
		_, err := uuid.Parse(id)
		require.NoError(t, err)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, SessionCookie, cookies[0].Name)
		assert.Equal(t, id, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
	})

	t.Run("cookie fallback", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
		r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "from-cookie"})
		w := httptest.NewRecorder()
		env.mux.ServeHTTP(w, r)
		assert.Equal(t, "from-cookie", w.Header().Get(SessionHeader))
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("malformed replaced", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/cart", "", session("bad id;"))
		assert.NotEqual(t, "bad id;", w.Header().Get(SessionHeader))
		assert.Len(t, w.Result().Cookies(), 1)
	})
}

func TestCheckoutEndpoints(t *testing.T) {
	env := newTestEnv(t)
	s := session("sess-1")
	form := `{"name":"Asha","email":"a@b.in","phone":"98","company":"Acme","address":"1 Rd","city":"Pune","state":"MH","pincode":"411001","paymentMethod":"upi"}`

	w := env.do(http.MethodPost, "/api/checkout/validate", form, s)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Acme", env.checkout.form.Company)
	assert.Equal(t, checkout.MethodUPI, env.checkout.form.PaymentMethod)

	w = env.do(http.MethodPost, "/api/checkout/gateway", form, s)
	require.Equal(t, http.StatusOK, w.Code)
	opts := decodeBody[checkout.WidgetOptions](t, w)
	assert.Equal(t, int64(405000), opts.Amount)
	assert.Equal(t, "order_gw1", opts.OrderID)

	w = env.do(http.MethodPost, "/api/checkout/gateway/success",
		`{"razorpay_order_id":"order_gw1","razorpay_payment_id":"pay_1","razorpay_signature":"sig"}`, s)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"receipt": "order_1", "status": "paid", "payment_id": "pay_1"},
		decodeBody[map[string]string](t, w))

	w = env.do(http.MethodPost, "/api/checkout/gateway/failure", `{"order_id":"order_gw1"}`, s)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, checkout.DefaultFailureDescription, decodeBody[map[string]string](t, w)["message"])

	w = env.do(http.MethodPost, "/api/checkout/manual", form, s)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://wa.me/1?text=New%20Order", decodeBody[checkout.ManualResult](t, w).Link)

	for _, got := range env.checkout.sessions {
		assert.Equal(t, "sess-1", got)
	}
}

func TestCheckoutErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		target     string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "validation",
			err:        &checkout.ValidationError{Message: checkout.MsgCompanyRequired},
			target:     "/api/checkout/gateway",
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "Company name is required",
		},
		{
			name:       "busy",
			err:        checkout.ErrSubmissionInProgress,
			target:     "/api/checkout/gateway",
			wantStatus: http.StatusConflict,
		},
		{
			name:       "gateway",
			err:        &checkout.GatewayError{Err: errors.New("Authentication failed")},
			target:     "/api/checkout/gateway",
			wantStatus: http.StatusBadGateway,
			wantMsg:    "Authentication failed",
		},
		{
			name:       "bad signature",
			err:        checkout.ErrInvalidSignature,
			target:     "/api/checkout/gateway/success",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown order",
			err:        checkout.ErrUnknownOrder,
			target:     "/api/checkout/gateway/failure",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unexpected",
			err:        errors.New("pool closed"),
			target:     "/api/checkout/manual",
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal server error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.checkout.err = tt.err
			w := env.do(http.MethodPost, tt.target, `{}`, session("s"))
			assertError(t, w, tt.wantStatus, tt.wantMsg)
		})
	}
}

func TestSubmitInquiry(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/inquiries",
		`{"name":"Ravi","email":"r@x.in","country":"India","product":"Stock Pot","quantity":"500","message":"Quote please"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Ravi", decodeBody[inquiry.Inquiry](t, w).Name)
	require.Len(t, env.inquiries.submitted, 1)
	assert.Equal(t, "Stock Pot — 500", env.inquiries.submitted[0].ProductInterest())

	assertError(t, env.do(http.MethodPost, "/api/inquiries", `{"name":"Ravi"}`, nil),
		http.StatusUnprocessableEntity, "name, email and country are required")
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t)
	body := `{"name":"Tawa","price":"120"}`

	assertError(t, env.do(http.MethodPost, "/api/admin/products", body, nil), http.StatusUnauthorized, "missing API key")
	assertError(t, env.do(http.MethodPost, "/api/admin/products", body, admin("nope")), http.StatusUnauthorized, "invalid API key")
	assertError(t, env.do(http.MethodPost, "/api/admin/products", body, admin("reader-key")), http.StatusForbidden, "")

	w := env.do(http.MethodGet, "/api/admin/inquiries", "", admin("reader-key"))
	assert.Equal(t, http.StatusOK, w.Code)
	assertError(t, env.do(http.MethodPost, "/api/admin/inquiries/"+uuid.NewString()+"/toggle-read", "", admin("reader-key")),
		http.StatusForbidden, "")
}

func TestAdminProducts(t *testing.T) {
	env := newTestEnv(t)
	a := admin("admin-key")

	w := env.do(http.MethodPost, "/api/admin/products", `{"name":"Tawa","price":"120","category":"cookware"}`, a)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "product-1", decodeBody[product.Product](t, w).ID)

	assertError(t, env.do(http.MethodPost, "/api/admin/products", `{"name":"Tawa","price":"0"}`, a),
		http.StatusUnprocessableEntity, "Name and price are required.")

	w = env.do(http.MethodPut, "/api/admin/products/pan", `{"name":"Frying Pan XL","price":"21"}`, a)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pan", decodeBody[product.Product](t, w).ID)

	assertError(t, env.do(http.MethodPut, "/api/admin/products/ghost", `{"name":"x","price":"1"}`, a),
		http.StatusNotFound, "product not found")

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/admin/products/pan", "", a).Code)
	assertError(t, env.do(http.MethodDelete, "/api/admin/products/pan", "", a), http.StatusNotFound, "")
}

func TestAdminChangesLogActingKey(t *testing.T) {
	env := newTestEnv(t)

	for _, tt := range []struct {
		name   string
		method string
		target string
		body   string
		msg    string
	}{
		{"create", http.MethodPost, "/api/admin/products", `{"name":"Tawa","price":"120"}`, "Product created"},
		{"update", http.MethodPut, "/api/admin/products/pan", `{"name":"Frying Pan XL","price":"21"}`, "Product updated"},
		{"delete", http.MethodDelete, "/api/admin/products/box", "", "Product deleted"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.InfoLevel)
			r := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			r.Header.Set(APIKeyHeader, "admin-key")
			r = r.WithContext(zctx.Base(r.Context(), zap.New(core)))

			w := httptest.NewRecorder()
			env.mux.ServeHTTP(w, r)
			require.Less(t, w.Code, 300, w.Body.String())

			entries := logs.FilterMessage(tt.msg).All()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			assert.Equal(t, "1", fields["key_id"])
			assert.Equal(t, "admin", fields["key_name"])
		})
	}
}

func TestAdminImages(t *testing.T) {
	env := newTestEnv(t)
	a := admin("admin-key")

	w := env.do(http.MethodPost, "/api/admin/products/pot/images/move", `{"from":2,"to":0}`, a)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"c.jpg", "a.jpg", "b.jpg"}, decodeBody[product.Product](t, w).Images)

	assertError(t, env.do(http.MethodPost, "/api/admin/products/pot/images/move", `{"from":0,"to":9}`, a),
		http.StatusUnprocessableEntity, "image index out of range")

	w = env.do(http.MethodDelete, "/api/admin/products/pot/images/1", "", a)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"c.jpg", "b.jpg"}, decodeBody[product.Product](t, w).Images)

	assertError(t, env.do(http.MethodDelete, "/api/admin/products/pot/images/x", "", a), http.StatusBadRequest, "")

	w = env.do(http.MethodPost, "/api/admin/products/pot/images/url", `{"url":"https://cdn/x.jpg"}`, a)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeBody[product.Product](t, w).Images, "https://cdn/x.jpg")
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, contentType := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="images"; filename="`+name+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("data-" + name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadImages(t *testing.T) {
	upload := func(env *testEnv, files map[string]string) *httptest.ResponseRecorder {
		body, contentType := multipartBody(t, files)
		r := httptest.NewRequest(http.MethodPost, "/api/admin/products/pot/images", body)
		r.Header.Set("Content-Type", contentType)
		r.Header.Set(APIKeyHeader, "admin-key")
		w := httptest.NewRecorder()
		env.mux.ServeHTTP(w, r)
		return w
	}

	t.Run("accepted", func(t *testing.T) {
		env := newTestEnv(t)
		w := upload(env, map[string]string{"a.png": "image/png"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Len(t, env.catalog.uploaded, 1)
		assert.Equal(t, "a.png", env.catalog.uploaded[0].Filename)
		assert.Equal(t, []byte("data-a.png"), env.catalog.uploaded[0].Data)
	})

	t.Run("no images", func(t *testing.T) {
		env := newTestEnv(t)
		w := upload(env, map[string]string{"notes.pdf": "application/pdf"})
		assertError(t, w, http.StatusUnprocessableEntity, "Only image files are allowed.")
	})

	t.Run("storage failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.catalog.upErr = errors.New("upload a.png: bucket quota exceeded")
		w := upload(env, map[string]string{"a.png": "image/png"})
		assertError(t, w, http.StatusBadGateway, "upload a.png: bucket quota exceeded")
	})

	t.Run("not multipart", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/admin/products/pot/images", `{}`, admin("admin-key"))
		assertError(t, w, http.StatusBadRequest, "invalid multipart form")
	})
}

func TestAdminInquiries(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	env.inquiries.list = []inquiry.Inquiry{
		{ID: id, Name: "Ravi", Email: "r@x.in", Message: "hi"},
		{ID: uuid.New(), Name: "Meena", Email: "m@x.in", IsRead: true},
	}
	a := admin("admin-key")

	w := env.do(http.MethodGet, "/api/admin/inquiries", "", a)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[struct {
		Inquiries []inquiry.Inquiry `json:"inquiries"`
		Unread    int               `json:"unread"`
	}](t, w)
	assert.Len(t, list.Inquiries, 2)
	assert.Equal(t, 1, list.Unread)

	w = env.do(http.MethodPost, "/api/admin/inquiries/"+id.String()+"/toggle-read", "", a)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[inquiry.Inquiry](t, w).IsRead)

	w = env.do(http.MethodGet, "/api/admin/inquiries/unread", "", a)
	assert.Equal(t, map[string]int{"unread": 0}, decodeBody[map[string]int](t, w))

	assertError(t, env.do(http.MethodPost, "/api/admin/inquiries/not-a-uuid/toggle-read", "", a), http.StatusNotFound, "")
	assertError(t, env.do(http.MethodPost, "/api/admin/inquiries/"+uuid.NewString()+"/toggle-read", "", a), http.StatusNotFound, "")
}

// readEvent reads one SSE event, skipping keep-alive comments.
func readEvent(t *testing.T, rd *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func openEventStream(t *testing.T, ctx context.Context, url string, header map[string]string) *bufio.Reader {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

func TestStreamCart(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rd := openEventStream(t, ctx, srv.URL+"/api/cart/stream", session("sess-1"))

	event, data := readEvent(t, rd)
	assert.Equal(t, "cart", event)
	assert.JSONEq(t, `{"items":[],"totalItems":0,"totalPrice":"0"}`, data)

	env.carts.Get(ctx, "sess-1").Add(ctx, pot, 50)
	event, data = readEvent(t, rd)
	assert.Equal(t, "cart", event)
	var got cartBody
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, 50, got.TotalItems)

	cancel()
	// Sweep skips carts with subscribers, so eviction proves the stream let go.
	require.Eventually(t, func() bool {
		return env.carts.Sweep(time.Now().Add(time.Hour), time.Minute) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStreamInquiries(t *testing.T) {
	env := newTestEnv(t)
	env.inquiries.list = []inquiry.Inquiry{{ID: uuid.New()}}
	srv := httptest.NewServer(env.mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rd := openEventStream(t, ctx, srv.URL+"/api/admin/inquiries/stream", admin("admin-key"))

	event, data := readEvent(t, rd)
	assert.Equal(t, "inquiries", event)
	assert.JSONEq(t, `{"unread":1}`, data)

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, time.Millisecond)
	id := uuid.New()
	env.hub.Publish(inquiry.Change{ID: id})
	_, data = readEvent(t, rd)
	assert.JSONEq(t, `{"id":"`+id.String()+`","unread":1}`, data)

	cancel()
	require.Eventually(t, func() bool { return env.hub.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}
