// Package inquiry handles "Get a Quote" requests from buyers and their
// review by the admin team.
package inquiry

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("inquiry not found")
	// ErrRequired is returned when name, email or country is blank.
	ErrRequired = errors.New("name, email and country are required")
)

// Inquiry is a buyer's quote request. Optional fields are empty when the
// buyer left them out.
type Inquiry struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone,omitempty"`
	Company         string    `json:"company,omitempty"`
	Country         string    `json:"country,omitempty"`
	ProductInterest string    `json:"product_interest,omitempty"`
	Message         string    `json:"message"`
	IsRead          bool      `json:"is_read"`
	CreatedAt       time.Time `json:"created_at"`
}

// Request is the public inquiry form.
type Request struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
	Country  string `json:"country"`
	Product  string `json:"product"`
	Quantity string `json:"quantity"`
	Message  string `json:"message"`
}

// ProductInterest joins the non-empty product and quantity with " — ".
func (r Request) ProductInterest() string {
	parts := make([]string, 0, 2)
	for _, s := range []string{r.Product, r.Quantity} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " — ")
}

// Repository defines persistence operations for inquiries.
type Repository interface {
	Insert(ctx context.Context, inq *Inquiry) error
	// List returns inquiries newest first.
	List(ctx context.Context) ([]Inquiry, error)
	// ToggleRead flips is_read and returns the updated inquiry.
	ToggleRead(ctx context.Context, id uuid.UUID) (*Inquiry, error)
	UnreadCount(ctx context.Context) (int, error)
}

// Service validates and stores inquiries.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an inquiry Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Submit stores a new inquiry.
func (s *Service) Submit(ctx context.Context, r Request) (*Inquiry, error) {
	inq := &Inquiry{
		ID:              uuid.New(),
		Name:            strings.TrimSpace(r.Name),
		Email:           strings.TrimSpace(r.Email),
		Phone:           strings.TrimSpace(r.Phone),
		Company:         strings.TrimSpace(r.Company),
		Country:         strings.TrimSpace(r.Country),
		ProductInterest: r.ProductInterest(),
		Message:         r.Message,
		CreatedAt:       s.now().UTC(),
	}
	if inq.Name == "" || inq.Email == "" || inq.Country == "" {
		return nil, ErrRequired
	}
	if err := s.repo.Insert(ctx, inq); err != nil {
		return nil, errors.Wrap(err, "insert inquiry")
	}
	return inq, nil
}

// List returns all inquiries, newest first.
func (s *Service) List(ctx context.Context) ([]Inquiry, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list inquiries")
	}
	return list, nil
}

// ToggleRead flips the read flag of an inquiry.
func (s *Service) ToggleRead(ctx context.Context, id uuid.UUID) (*Inquiry, error) {
	return s.repo.ToggleRead(ctx, id)
}

// UnreadCount returns how many inquiries are still unread.
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	return s.repo.UnreadCount(ctx)
}
