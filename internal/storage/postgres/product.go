package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stelinglobal/storefront/internal/domain/product"
)

const productColumns = `id, name, COALESCE(name_hi, ''), category, description, images, price, currency, moq,
	COALESCE(height, ''), COALESCE(width, ''), COALESCE(depth, ''), COALESCE(weight, ''),
	COALESCE(material, ''), COALESCE(grade, ''), COALESCE(capacity, ''), COALESCE(thickness, ''),
	in_stock, featured, created_at`

const (
	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY created_at, id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	insertProductBase = `INSERT INTO products (id, name, name_hi, category, description, images, price, currency, moq,
		height, width, depth, weight, material, grade, capacity, thickness, in_stock, featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	insertProductSQL = insertProductBase + ` RETURNING created_at`

	upsertProductSQL = insertProductBase + `
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, name_hi = EXCLUDED.name_hi,
		category = EXCLUDED.category, description = EXCLUDED.description, images = EXCLUDED.images,
		price = EXCLUDED.price, currency = EXCLUDED.currency, moq = EXCLUDED.moq,
		height = EXCLUDED.height, width = EXCLUDED.width, depth = EXCLUDED.depth, weight = EXCLUDED.weight,
		material = EXCLUDED.material, grade = EXCLUDED.grade, capacity = EXCLUDED.capacity,
		thickness = EXCLUDED.thickness, in_stock = EXCLUDED.in_stock, featured = EXCLUDED.featured
		RETURNING created_at`

	updateProductSQL = `UPDATE products SET name = $2, name_hi = $3, category = $4, description = $5, images = $6,
		price = $7, currency = $8, moq = $9, height = $10, width = $11, depth = $12, weight = $13,
		material = $14, grade = $15, capacity = $16, thickness = $17, in_stock = $18, featured = $19
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the whole catalog in creation order.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// Insert adds a product and sets its CreatedAt.
func (r *ProductRepository) Insert(ctx context.Context, p *product.Product) error {
	if err := r.pool.QueryRow(ctx, insertProductSQL, productArgs(p)...).Scan(&p.CreatedAt); err != nil {
		return fmt.Errorf("inserting product %q: %w", p.ID, err)
	}
	return nil
}

// Upsert inserts a product or replaces every field of an existing one.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	if err := r.pool.QueryRow(ctx, upsertProductSQL, productArgs(p)...).Scan(&p.CreatedAt); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// Update overwrites an existing product. Returns product.ErrNotFound when no
// row matches.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL, productArgs(p)...)
	if err != nil {
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product. Deleting a missing product is not an error.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteProductSQL, id); err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	return nil
}

func productArgs(p *product.Product) []any {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return []any{
		p.ID, p.Name, nullIfEmpty(p.NameHi), p.Category, p.Description, images, p.Price, p.Currency, p.MOQ,
		nullIfEmpty(p.Specs.Height), nullIfEmpty(p.Specs.Width), nullIfEmpty(p.Specs.Depth),
		nullIfEmpty(p.Specs.Weight), nullIfEmpty(p.Specs.Material), nullIfEmpty(p.Specs.Grade),
		nullIfEmpty(p.Specs.Capacity), nullIfEmpty(p.Specs.Thickness),
		p.InStock, p.Featured,
	}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.NameHi, &p.Category, &p.Description, &p.Images, &p.Price, &p.Currency, &p.MOQ,
		&p.Specs.Height, &p.Specs.Width, &p.Specs.Depth, &p.Specs.Weight,
		&p.Specs.Material, &p.Specs.Grade, &p.Specs.Capacity, &p.Specs.Thickness,
		&p.InStock, &p.Featured, &p.CreatedAt,
	)
	return p, err
}
