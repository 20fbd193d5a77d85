package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// DefaultCurrency is the catalog's base currency.
const DefaultCurrency = "INR"

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	NameHi      string          `json:"nameHi,omitempty"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	MOQ         int             `json:"moq"`
	Specs       Specs           `json:"specs"`
	InStock     bool            `json:"inStock"`
	Featured    bool            `json:"featured"`
	CreatedAt   time.Time       `json:"createdAt,omitzero"`
}

// Specs holds the physical attributes shown on the product sheet.
type Specs struct {
	Height    string `json:"height"`
	Width     string `json:"width"`
	Depth     string `json:"depth"`
	Weight    string `json:"weight"`
	Material  string `json:"material"`
	Grade     string `json:"grade"`
	Capacity  string `json:"capacity,omitempty"`
	Thickness string `json:"thickness,omitempty"`
}

// Filter narrows a catalog listing. Zero value matches everything.
type Filter struct {
	Category string
	Search   string
}

// Match reports whether p passes the filter. Search is a case-insensitive
// substring match on the product name.
func (f Filter) Match(p Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// Apply returns the products that pass the filter, preserving order.
func (f Filter) Apply(products []Product) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// Category is a catalog grouping shown as a filter chip.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Categories lists the catalog groupings in display order.
var Categories = []Category{
	{ID: "cookware", Name: "Cookware"},
	{ID: "containers", Name: "Storage Containers"},
	{ID: "utensils", Name: "Utensils"},
	{ID: "serving", Name: "Serving Ware"},
	{ID: "food-processing", Name: "Food Processing"},
	{ID: "commercial", Name: "Commercial Kitchen"},
}

// Repository defines operations on the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	Insert(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
