package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stelinglobal/storefront/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO checkout_orders (receipt, session_id, gateway_order_id, payment_id, method, status,
		amount, currency, items, customer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	getOrderByGatewayIDSQL = `SELECT receipt, session_id, COALESCE(gateway_order_id, ''), COALESCE(payment_id, ''),
		method, status, amount, currency, items, customer, created_at, updated_at
		FROM checkout_orders WHERE gateway_order_id = $1`

	updateOrderStatusSQL = `UPDATE checkout_orders SET status = $2, payment_id = $3, updated_at = $4 WHERE receipt = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Items and customer are stored as JSONB.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	customerJSON, err := json.Marshal(o.Customer)
	if err != nil {
		return fmt.Errorf("marshaling order customer: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.Receipt, o.SessionID, nullIfEmpty(o.GatewayOrderID), nullIfEmpty(o.PaymentID),
		o.Method, string(o.Status), o.Amount, o.Currency,
		string(itemsJSON), string(customerJSON), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Receipt, err)
	}
	return nil
}

// GetByGatewayOrderID returns the order created for a gateway order.
func (r *OrderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*order.Order, error) {
	var (
		o                   order.Order
		status              string
		itemsJSON, custJSON []byte
	)
	err := r.pool.QueryRow(ctx, getOrderByGatewayIDSQL, gatewayOrderID).Scan(
		&o.Receipt, &o.SessionID, &o.GatewayOrderID, &o.PaymentID,
		&o.Method, &status, &o.Amount, &o.Currency, &itemsJSON, &custJSON, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", gatewayOrderID, err)
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("decoding order items: %w", err)
	}
	if err := json.Unmarshal(custJSON, &o.Customer); err != nil {
		return nil, fmt.Errorf("decoding order customer: %w", err)
	}
	return &o, nil
}

// UpdateStatus stores the order's status, payment id and update time.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, o.Receipt, string(o.Status), nullIfEmpty(o.PaymentID), o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.Receipt, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}
