package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stelinglobal/storefront/internal/domain/cart"
)

const (
	saveCartSQL = `INSERT INTO cart_sessions (key, state, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`

	loadCartSQL = `SELECT state FROM cart_sessions WHERE key = $1`

	purgeCartsSQL = `DELETE FROM cart_sessions WHERE updated_at < now() - $1::interval`
)

var _ cart.Persister = (*CartRepository)(nil)

// CartRepository persists serialized carts as JSONB, one row per key.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Save replaces the blob stored under key.
func (r *CartRepository) Save(ctx context.Context, key string, blob []byte) error {
	if _, err := r.pool.Exec(ctx, saveCartSQL, key, string(blob)); err != nil {
		return fmt.Errorf("saving cart %q: %w", key, err)
	}
	return nil
}

// Load returns the blob stored under key, or cart.ErrNoState.
func (r *CartRepository) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	if err := r.pool.QueryRow(ctx, loadCartSQL, key).Scan(&blob); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNoState
		}
		return nil, fmt.Errorf("loading cart %q: %w", key, err)
	}
	return blob, nil
}

// Purge deletes carts not touched within olderThan (a Postgres interval such
// as "30 days") and returns how many were removed.
func (r *CartRepository) Purge(ctx context.Context, olderThan string) (int64, error) {
	tag, err := r.pool.Exec(ctx, purgeCartsSQL, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purging carts: %w", err)
	}
	return tag.RowsAffected(), nil
}
