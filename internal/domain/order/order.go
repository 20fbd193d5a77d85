// Package order records checkout submissions so payment callbacks can be
// matched against what the buyer actually submitted.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no order matches a lookup.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of a checkout order.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
	StatusManual  Status = "manual"
)

// Order is a checkout submission. Gateway orders start pending and move to
// paid or failed; manual handoffs are recorded as manual and never change.
type Order struct {
	Receipt        string
	SessionID      string
	GatewayOrderID string
	PaymentID      string
	Method         string
	Status         Status
	Amount         decimal.Decimal
	Currency       string
	Items          []Item
	Customer       Customer
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item is an order line as sent to the payment gateway.
type Item struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
}

// Customer is the buyer snapshot taken from the checkout form.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	GST     string `json:"gst"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country"`
}

// ShippingAddress formats the address as "address, city, state - pincode".
func (c Customer) ShippingAddress() string {
	return fmt.Sprintf("%s, %s, %s - %s", c.Address, c.City, c.State, c.Pincode)
}

// TransitionError indicates a status change the lifecycle does not allow.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order cannot move from %s to %s", e.From, e.To)
}

// CanTransition reports whether an order may move from one status to another.
// A failed gateway attempt may still be paid, since the buyer can retry in
// the same payment widget.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusPaid || to == StatusFailed
	case StatusFailed:
		return to == StatusPaid || to == StatusFailed
	default:
		return false
	}
}

// Transition moves the order to status to, stamping at as the update time.
func (o *Order) Transition(to Status, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error)
	UpdateStatus(ctx context.Context, o *Order) error
}
