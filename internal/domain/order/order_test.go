package order

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusFailed, true},
		{StatusFailed, StatusPaid, true},
		{StatusFailed, StatusFailed, true},
		{StatusPaid, StatusFailed, false},
		{StatusPaid, StatusPaid, false},
		{StatusManual, StatusPaid, false},
		{StatusPending, StatusManual, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestOrder_Transition(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	o := &Order{Receipt: "order_1", Status: StatusPending}
	require.NoError(t, o.Transition(StatusPaid, at))
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, at, o.UpdatedAt)

	err := o.Transition(StatusFailed, at.Add(time.Minute))
	var tErr *TransitionError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, StatusPaid, tErr.From)
	assert.Equal(t, StatusFailed, tErr.To)
	assert.Equal(t, at, o.UpdatedAt, "rejected transition leaves the order untouched")
}

func TestCustomer_ShippingAddress(t *testing.T) {
	c := Customer{Address: "12 MG Road", City: "Lucknow", State: "Uttar Pradesh", Pincode: "226001"}
	assert.Equal(t, "12 MG Road, Lucknow, Uttar Pradesh - 226001", c.ShippingAddress())
}
