package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront/internal/database"
	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound = errors.New("order not found")
)

// StockConflictError is returned when a conditional stock decrement finds
// fewer units than requested. The whole placement has been rolled back.
type StockConflictError struct {
	ProductID uuid.UUID
	Requested int
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}

// StockReservation is the number of units an order takes from one product
type StockReservation struct {
	ProductID uuid.UUID
	Quantity  int
}

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	// CreateWithReservations stores the order and its lines and decrements
	// stock for every reservation, all in one transaction.
	CreateWithReservations(ctx context.Context, order *domain.Order, reservations []StockReservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	ListAll(ctx context.Context) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
}

type orderRepository struct {
	db   *sql.DB
	opts database.TxOptions
}

// NewOrderRepository creates a new instance of OrderRepository. maxRetries
// bounds how often a placement is re-run after a deadlock or serialization
// failure.
func NewOrderRepository(db *sql.DB, maxRetries int) OrderRepository {
	opts := database.DefaultTxOptions()
	opts.MaxRetries = maxRetries
	return &orderRepository{db: db, opts: opts}
}

func (r *orderRepository) CreateWithReservations(ctx context.Context, order *domain.Order, reservations []StockReservation) error {
	// Lock rows in a stable order so concurrent placements cannot deadlock
	// on each other.
	sorted := make([]StockReservation, len(reservations))
	copy(sorted, reservations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID.String() < sorted[j].ProductID.String()
	})

	return database.WithRetry(ctx, r.db, r.opts, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO orders (id, user_id, customer_name, customer_phone, delivery_address, payment_method, total_amount, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at`,
			order.ID,
			order.UserID,
			order.CustomerName,
			order.CustomerPhone,
			order.DeliveryAddress,
			order.PaymentMethod,
			order.TotalAmount,
			order.Status,
		).Scan(&order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i, item := range order.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, line_no, product_id, title, price, quantity)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				order.ID, i, item.ProductID, item.Title, item.Price, item.Quantity)
			if err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}

		for _, reservation := range sorted {
			result, err := tx.ExecContext(ctx, `
				UPDATE products
				SET stock = stock - $1
				WHERE id = $2
				  AND deleted = FALSE
				  AND status = 'active'
				  AND stock >= $1`,
				reservation.Quantity, reservation.ProductID)
			if err != nil {
				if database.IsCheckViolation(err) {
					return &StockConflictError{ProductID: reservation.ProductID, Requested: reservation.Quantity}
				}
				return fmt.Errorf("failed to update stock: %w", err)
			}

			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}

			if rowsAffected == 0 {
				return &StockConflictError{ProductID: reservation.ProductID, Requested: reservation.Quantity}
			}
		}

		return nil
	})
}

const orderColumns = `id, user_id, customer_name, customer_phone, delivery_address, payment_method, total_amount, status, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.CustomerName,
		&order.CustomerPhone,
		&order.DeliveryAddress,
		&order.PaymentMethod,
		&order.TotalAmount,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// FindByID retrieves an order and its lines
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	if err := r.attachItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

// ListByUser returns the user's orders, newest first
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return r.collectOrders(ctx, rows)
}

// ListAll returns every order, newest first
func (r *orderRepository) ListAll(ctx context.Context) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return r.collectOrders(ctx, rows)
}

// UpdateStatus sets the status of an order and returns the updated order
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 RETURNING updated_at`,
		id, status,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	return r.FindByID(ctx, id)
}

func (r *orderRepository) collectOrders(ctx context.Context, rows *sql.Rows) ([]*domain.Order, error) {
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	rows.Close()

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *orderRepository) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for _, order := range orders {
		order.Items = []domain.OrderItem{}
		byID[order.ID] = order
		ids = append(ids, order.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, title, price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`, ids)
	if err != nil {
		return fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Title, &item.Price, &item.Quantity); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if order, ok := byID[orderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating order items: %w", err)
	}

	return nil
}
