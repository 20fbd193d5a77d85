package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stelinglobal/storefront/internal/domain/auth"
	"github.com/stelinglobal/storefront/internal/domain/product"
)

func writeFeed(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	if filepath.Ext(name) == ".gz" {
		gz := pgzip.NewWriter(f)
		_, err = gz.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, gz.Close())
		return path
	}
	_, err = f.WriteString(content)
	require.NoError(t, err)
	return path
}

func ids(products []product.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func TestReadFeeds(t *testing.T) {
	plain := writeFeed(t, "a.json", `[
		{"id":"pot","name":"Stock Pot","price":45,"moq":50},
		{"id":"pan","name":"Frying Pan","price":"18"},
		{"id":"","name":"No id","price":1}
	]`)
	gz := writeFeed(t, "b.json.gz", `[
		{"id":"pan","name":"Frying Pan v2","price":20},
		{"id":"box","name":"Lunch Box","price":2.5}
	]`)

	got, err := readFeeds(context.Background(), zap.NewNop(), []string{plain, gz})
	require.NoError(t, err)
	assert.Equal(t, []string{"pot", "pan", "box"}, ids(got))
	assert.Equal(t, "Frying Pan", got[1].Name, "first occurrence wins")
	assert.Equal(t, "2.5", got[2].Price.String())
}

func TestReadFeeds_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not an array", content: `{"id":"pot"}`},
		{name: "bad element", content: `[{"id":"pot","price":"abc"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFeed(t, "feed.json", tt.content)
			_, err := readFeeds(context.Background(), zap.NewNop(), []string{path})
			require.Error(t, err)
		})
	}

	_, err := readFeeds(context.Background(), zap.NewNop(), []string{filepath.Join(t.TempDir(), "missing.json")})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSeedFeedIsValid(t *testing.T) {
	products, err := readFeed(context.Background(), filepath.Join("..", "..", "db", "seed", "products.json"))
	require.NoError(t, err)
	require.NotEmpty(t, products)
	for _, p := range products {
		require.NoError(t, product.Prepare(&p, time.Now()), p.ID)
	}
}

func TestIDSet(t *testing.T) {
	s := newIDSet()
	assert.True(t, s.add("pot"))
	assert.True(t, s.add("pan"))
	assert.False(t, s.add("pot"))
	assert.True(t, s.add("box"))
}

type mockUpserter struct {
	mu    sync.Mutex
	saved map[string]product.Product
	err   error
}

func (m *mockUpserter) Upsert(_ context.Context, p *product.Product) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[p.ID] = *p
	return nil
}

func TestUpsertProducts(t *testing.T) {
	repo := &mockUpserter{saved: map[string]product.Product{}}
	products := []product.Product{
		{ID: "pot", Name: " Stock Pot ", Price: decimal.NewFromInt(45)},
		{ID: "free", Name: "Freebie"},
		{ID: "pan", Name: "Frying Pan", Price: decimal.NewFromInt(18), Currency: "USD", MOQ: 100},
	}

	n, err := upsertProducts(context.Background(), zap.NewNop(), repo, products, 2, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, repo.saved, 2)
	assert.Equal(t, "Stock Pot", repo.saved["pot"].Name)
	assert.Equal(t, product.DefaultCurrency, repo.saved["pot"].Currency)
	assert.Equal(t, 1, repo.saved["pot"].MOQ)
	assert.Equal(t, "USD", repo.saved["pan"].Currency)

	repo.err = errors.New("connection refused")
	_, err = upsertProducts(context.Background(), zap.NewNop(), repo, products, 2, time.Now())
	require.ErrorContains(t, err, "connection refused")
}

type mockKeyRepo struct {
	stored *auth.APIKeyInfo
}

func (m *mockKeyRepo) FindByHash(context.Context, string) (*auth.APIKeyInfo, error) {
	return nil, auth.ErrNotFound
}

func (m *mockKeyRepo) Upsert(_ context.Context, info *auth.APIKeyInfo) error {
	m.stored = info
	return nil
}

func TestSeedAPIKey(t *testing.T) {
	repo := &mockKeyRepo{}
	pepper := []byte("pepper")

	key, err := seedAPIKey(context.Background(), repo, "ops", pepper)
	require.NoError(t, err)
	require.NotNil(t, repo.stored)
	assert.Equal(t, "ops", repo.stored.ID)
	assert.Equal(t, auth.Hash(pepper, key), repo.stored.KeyHash)
	assert.ElementsMatch(t, auth.AllScopes, repo.stored.Scopes)
	assert.NotContains(t, repo.stored.KeyHash, key)
}
