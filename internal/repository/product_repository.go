package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound = errors.New("product not found")
)

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	ListActive(ctx context.Context, limit int) ([]*domain.Product, error)
	FindPurchasable(ctx context.Context, ids []uuid.UUID, titles []string) ([]*domain.Product, error)
	StockLevels(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, title, description, price, discount_percentage, thumbnail, stock, status, position, deleted, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	err := row.Scan(
		&product.ID,
		&product.Title,
		&product.Description,
		&product.Price,
		&product.DiscountPercentage,
		&product.Thumbnail,
		&product.Stock,
		&product.Status,
		&product.Position,
		&product.Deleted,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func collectProducts(rows *sql.Rows) ([]*domain.Product, error) {
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// Create inserts a new product into the database using parameterized queries
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, title, description, price, discount_percentage, thumbnail, stock, status, position, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Title,
		product.Description,
		product.Price,
		product.DiscountPercentage,
		product.Thumbnail,
		product.Stock,
		product.Status,
		product.Position,
		product.Deleted,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update overwrites the editable fields of a non-deleted product
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET title = $2, description = $3, price = $4, discount_percentage = $5,
		    thumbnail = $6, stock = $7, status = $8, position = $9
		WHERE id = $1 AND deleted = FALSE
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		product.ID,
		product.Title,
		product.Description,
		product.Price,
		product.DiscountPercentage,
		product.Thumbnail,
		product.Stock,
		product.Status,
		product.Position,
	).Scan(&product.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to update product: %w", err)
	}

	return nil
}

// SoftDelete hides a product from the catalog without removing the row, so
// order lines keep their product reference.
func (r *productRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE products SET deleted = TRUE, status = 'inactive' WHERE id = $1 AND deleted = FALSE`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// FindByID retrieves a non-deleted product by ID
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND deleted = FALSE`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// ListActive returns up to limit active, non-deleted products by position
func (r *productRepository) ListActive(ctx context.Context, limit int) ([]*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE deleted = FALSE AND status = 'active'
		ORDER BY position ASC, created_at ASC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	return collectProducts(rows)
}

// FindPurchasable loads, in one statement, every active non-deleted product
// whose id is in ids or whose title is in titles.
func (r *productRepository) FindPurchasable(ctx context.Context, ids []uuid.UUID, titles []string) ([]*domain.Product, error) {
	if len(ids) == 0 && len(titles) == 0 {
		return []*domain.Product{}, nil
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	if titles == nil {
		titles = []string{}
	}

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE deleted = FALSE AND status = 'active'
		  AND (id = ANY($1) OR title = ANY($2))
		ORDER BY position ASC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, ids, titles)
	if err != nil {
		return nil, fmt.Errorf("failed to find products for order: %w", err)
	}

	return collectProducts(rows)
}

// StockLevels returns the current stock of each product in ids
func (r *productRepository) StockLevels(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	levels := make(map[uuid.UUID]int, len(ids))
	if len(ids) == 0 {
		return levels, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, stock FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read stock levels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var stock int
		if err := rows.Scan(&id, &stock); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		levels[id] = stock
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock levels: %w", err)
	}

	return levels, nil
}
