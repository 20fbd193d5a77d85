package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stelinglobal/storefront/internal/domain/inquiry"
)

const (
	inquiryColumns = `id, name, email, COALESCE(phone, ''), COALESCE(company, ''), COALESCE(country, ''),
		COALESCE(product_interest, ''), message, is_read, created_at`

	insertInquirySQL = `INSERT INTO inquiries (id, name, email, phone, company, country, product_interest, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	listInquiriesSQL = `SELECT ` + inquiryColumns + ` FROM inquiries ORDER BY created_at DESC`

	toggleInquiryReadSQL = `UPDATE inquiries SET is_read = NOT is_read WHERE id = $1 RETURNING ` + inquiryColumns

	countUnreadInquiriesSQL = `SELECT count(*) FROM inquiries WHERE NOT is_read`
)

var _ inquiry.Repository = (*InquiryRepository)(nil)

// InquiryRepository implements inquiry.Repository backed by PostgreSQL.
type InquiryRepository struct {
	pool *pgxpool.Pool
}

// NewInquiryRepository returns an InquiryRepository that uses the given pool.
func NewInquiryRepository(pool *pgxpool.Pool) *InquiryRepository {
	return &InquiryRepository{pool: pool}
}

// Insert stores a new inquiry. Blank optional fields become NULL.
func (r *InquiryRepository) Insert(ctx context.Context, inq *inquiry.Inquiry) error {
	_, err := r.pool.Exec(ctx, insertInquirySQL,
		inq.ID, inq.Name, inq.Email,
		nullIfEmpty(inq.Phone), nullIfEmpty(inq.Company), nullIfEmpty(inq.Country),
		nullIfEmpty(inq.ProductInterest), inq.Message, inq.IsRead, inq.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting inquiry %s: %w", inq.ID, err)
	}
	return nil
}

// List returns all inquiries, newest first.
func (r *InquiryRepository) List(ctx context.Context) ([]inquiry.Inquiry, error) {
	rows, err := r.pool.Query(ctx, listInquiriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing inquiries: %w", err)
	}
	return pgx.CollectRows(rows, scanInquiry)
}

// ToggleRead flips the read flag and returns the updated row.
func (r *InquiryRepository) ToggleRead(ctx context.Context, id uuid.UUID) (*inquiry.Inquiry, error) {
	rows, err := r.pool.Query(ctx, toggleInquiryReadSQL, id)
	if err != nil {
		return nil, fmt.Errorf("toggling inquiry %s: %w", id, err)
	}
	inq, err := pgx.CollectExactlyOneRow(rows, scanInquiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inquiry.ErrNotFound
		}
		return nil, fmt.Errorf("toggling inquiry %s: %w", id, err)
	}
	return &inq, nil
}

// UnreadCount returns the number of unread inquiries.
func (r *InquiryRepository) UnreadCount(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUnreadInquiriesSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting unread inquiries: %w", err)
	}
	return n, nil
}

func scanInquiry(row pgx.CollectableRow) (inquiry.Inquiry, error) {
	var inq inquiry.Inquiry
	err := row.Scan(
		&inq.ID, &inq.Name, &inq.Email, &inq.Phone, &inq.Company, &inq.Country,
		&inq.ProductInterest, &inq.Message, &inq.IsRead, &inq.CreatedAt,
	)
	return inq, err
}
