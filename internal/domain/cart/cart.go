// Package cart implements the per-session shopping cart: an insertion-ordered
// set of product lines with derived totals, persisted after every mutation
// and broadcast to subscribers.
package cart

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/stelinglobal/storefront/internal/domain/product"
)

// Line pairs a product snapshot with a quantity. Quantity is always >= 1.
type Line struct {
	Product  product.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// Subtotal returns price x quantity for the line.
func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// State is an immutable snapshot of a cart. It serializes as an ordered JSON
// array of {product, quantity} pairs.
type State struct {
	Lines []Line
}

// TotalItems returns the sum of all line quantities.
func (s State) TotalItems() int {
	total := 0
	for _, l := range s.Lines {
		total += l.Quantity
	}
	return total
}

// TotalPrice returns the undiscounted sum of price x quantity.
func (s State) TotalPrice() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range s.Lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// IsEmpty reports whether the cart has no lines.
func (s State) IsEmpty() bool {
	return len(s.Lines) == 0
}

// Line returns the line for productID, if present.
func (s State) Line(productID string) (Line, bool) {
	for _, l := range s.Lines {
		if l.Product.ID == productID {
			return l, true
		}
	}
	return Line{}, false
}

// MarshalJSON encodes the state as an ordered array of lines.
func (s State) MarshalJSON() ([]byte, error) {
	lines := s.Lines
	if lines == nil {
		lines = []Line{}
	}
	return json.Marshal(lines)
}

// UnmarshalJSON decodes an ordered array of lines. Lines with a quantity
// below one and repeated product ids are dropped so a restored cart always
// satisfies the cart invariants.
func (s *State) UnmarshalJSON(data []byte) error {
	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return errors.Wrap(err, "decode cart lines")
	}
	seen := make(map[string]struct{}, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 || l.Product.ID == "" {
			continue
		}
		if _, dup := seen[l.Product.ID]; dup {
			continue
		}
		seen[l.Product.ID] = struct{}{}
		out = append(out, l)
	}
	s.Lines = out
	return nil
}

// clone returns a deep-enough copy for handing to subscribers.
func (s State) clone() State {
	lines := make([]Line, len(s.Lines))
	copy(lines, s.Lines)
	return State{Lines: lines}
}
