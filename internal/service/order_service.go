package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// OrderLineInput is one requested line of an order. ProductID is optional;
// lines without it are matched to the catalog by exact title.
type OrderLineInput struct {
	ProductID uuid.UUID
	Title     string
	Price     decimal.Decimal
	Quantity  int
}

// PlaceOrderInput carries everything needed to place an order
type PlaceOrderInput struct {
	UserID          uuid.UUID
	CustomerName    string
	CustomerPhone   string
	DeliveryAddress string
	PaymentMethod   domain.PaymentMethod
	Items           []OrderLineInput
	// ClientTotal is the total the client computed. It is never trusted.
	ClientTotal *decimal.Decimal
}

// OrderService defines the interface for order business logic
type OrderService interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*domain.Order, error)
	ListMyOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	ListAll(ctx context.Context) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
}

type orderService struct {
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	publisher   events.Publisher
	logger      *zap.Logger
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	publisher events.Publisher,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		productRepo: productRepo,
		orderRepo:   orderRepo,
		publisher:   publisher,
		logger:      logger,
	}
}

type resolvedLine struct {
	input   OrderLineInput
	product *domain.Product
}

// PlaceOrder validates the order, checks every line against current stock,
// then stores the order and reserves its stock in one transaction. Either
// all lines are reserved or nothing is written.
func (s *orderService) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*domain.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, ErrUnauthenticated
	}

	input = normalizeOrderInput(input)
	if err := validateOrderInput(input); err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(input.Items))
	for _, line := range input.Items {
		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			Title:     line.Title,
			Price:     line.Price,
			Quantity:  line.Quantity,
		})
	}

	total := domain.ComputeTotal(items)
	if !total.IsPositive() {
		verr := &ValidationError{}
		verr.Add("totalAmount", "order total must be greater than zero")
		return nil, verr
	}
	if total.GreaterThan(domain.MaxAmount) {
		verr := &ValidationError{}
		verr.Add("totalAmount", "order total must not exceed "+domain.MaxAmount.StringFixed(domain.AmountScale))
		return nil, verr
	}

	if input.ClientTotal != nil && !input.ClientTotal.Equal(total) {
		s.logger.Info("Client total differs from computed total",
			zap.String("user_id", input.UserID.String()),
			zap.String("client_total", input.ClientTotal.String()),
			zap.String("computed_total", total.String()),
		)
	}

	lines, err := s.resolveLines(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	reservations, err := checkStock(lines)
	if err != nil {
		s.logStockRejection(input.UserID, err)
		return nil, err
	}

	for i, line := range lines {
		items[i].ProductID = line.product.ID
		if items[i].Title == "" {
			items[i].Title = line.product.Title
		}
	}

	order := &domain.Order{
		ID:              uuid.New(),
		UserID:          input.UserID,
		CustomerName:    input.CustomerName,
		CustomerPhone:   input.CustomerPhone,
		DeliveryAddress: input.DeliveryAddress,
		PaymentMethod:   input.PaymentMethod,
		Items:           items,
		TotalAmount:     total,
		Status:          domain.OrderStatusPending,
	}

	if err := s.orderRepo.CreateWithReservations(ctx, order, reservations); err != nil {
		var conflict *repository.StockConflictError
		if errors.As(err, &conflict) {
			stockErr := s.conflictToStockError(ctx, conflict, lines)
			s.logStockRejection(input.UserID, stockErr)
			return nil, stockErr
		}
		s.logger.Error("Failed to persist order",
			zap.String("user_id", input.UserID.String()),
			zap.Error(err),
		)
		return nil, persistenceError("place order", err)
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", order.UserID.String()),
		zap.String("total", order.TotalAmount.String()),
		zap.Int("lines", len(order.Items)),
	)

	s.publishOrderPlaced(ctx, order)

	return order, nil
}

func normalizeOrderInput(input PlaceOrderInput) PlaceOrderInput {
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.CustomerPhone = strings.TrimSpace(input.CustomerPhone)
	input.DeliveryAddress = strings.TrimSpace(input.DeliveryAddress)

	lines := make([]OrderLineInput, len(input.Items))
	for i, line := range input.Items {
		line.Title = strings.TrimSpace(line.Title)
		if line.Quantity == 0 {
			line.Quantity = 1
		}
		lines[i] = line
	}
	input.Items = lines

	return input
}

func validateOrderInput(input PlaceOrderInput) error {
	verr := &ValidationError{}

	if input.CustomerName == "" {
		verr.Add("customerName", "customer name is required")
	}
	if input.CustomerPhone == "" {
		verr.Add("customerPhone", "customer phone is required")
	}
	if input.DeliveryAddress == "" {
		verr.Add("deliveryAddress", "delivery address is required")
	}
	if !input.PaymentMethod.Valid() {
		verr.Add("paymentMethod", "payment method must be cash-on-delivery or bank-transfer")
	}
	if len(input.Items) == 0 {
		verr.Add("items", "order must contain at least one item")
	}

	for i, line := range input.Items {
		field := "items[" + strconv.Itoa(i) + "]"
		if line.ProductID == uuid.Nil && line.Title == "" {
			verr.Add(field+".title", "item must name a product")
		}
		switch {
		case line.Price.IsNegative():
			verr.Add(field+".price", "price must not be negative")
		case !domain.ValidAmount(line.Price):
			verr.Add(field+".price", "price must have at most 2 decimal places and not exceed "+domain.MaxAmount.StringFixed(domain.AmountScale))
		}
		if line.Quantity < 0 {
			verr.Add(field+".qty", "quantity must be positive")
		}
		if line.Quantity > domain.MaxQuantity {
			verr.Add(field+".qty", "quantity must not exceed "+strconv.Itoa(domain.MaxQuantity))
		}
	}

	return verr.OrNil()
}

// resolveLines matches every requested line to a purchasable product with a
// single catalog read. Lines carrying a product id match by id only; the
// rest match by exact title, taking the first product in catalog order.
// Unmatched lines keep a nil product.
func (s *orderService) resolveLines(ctx context.Context, lines []OrderLineInput) ([]resolvedLine, error) {
	var ids []uuid.UUID
	var titles []string
	for _, line := range lines {
		if line.ProductID != uuid.Nil {
			ids = append(ids, line.ProductID)
		} else {
			titles = append(titles, line.Title)
		}
	}

	products, err := s.productRepo.FindPurchasable(ctx, ids, titles)
	if err != nil {
		s.logger.Error("Failed to load products for order", zap.Error(err))
		return nil, persistenceError("load products", err)
	}

	byID := make(map[uuid.UUID]*domain.Product, len(products))
	byTitle := make(map[string]*domain.Product, len(products))
	for _, product := range products {
		if !product.Purchasable() {
			continue
		}
		byID[product.ID] = product
		if _, seen := byTitle[product.Title]; !seen {
			byTitle[product.Title] = product
		}
	}

	resolved := make([]resolvedLine, len(lines))
	for i, line := range lines {
		resolved[i].input = line
		if line.ProductID != uuid.Nil {
			resolved[i].product = byID[line.ProductID]
		} else {
			resolved[i].product = byTitle[line.Title]
		}
	}

	return resolved, nil
}

// checkStock verifies every line against the stock read in resolveLines and
// returns one reservation per product. Repeated lines for the same product
// are summed before comparing.
func checkStock(lines []resolvedLine) ([]repository.StockReservation, error) {
	requested := make(map[uuid.UUID]int)
	var order []uuid.UUID

	for _, line := range lines {
		if line.product == nil {
			return nil, &InsufficientStockError{
				ProductID: line.input.ProductID,
				Title:     lineTitle(line),
				Requested: line.input.Quantity,
				Available: 0,
			}
		}

		id := line.product.ID
		if _, seen := requested[id]; !seen {
			order = append(order, id)
		}

		// requested[id] never exceeds stock, so the subtraction cannot wrap
		if line.input.Quantity > line.product.Stock-requested[id] {
			return nil, &InsufficientStockError{
				ProductID: id,
				Title:     line.product.Title,
				Requested: requestedTotal(requested[id], line.input.Quantity),
				Available: line.product.Stock,
			}
		}
		requested[id] += line.input.Quantity
	}

	reservations := make([]repository.StockReservation, 0, len(order))
	for _, id := range order {
		reservations = append(reservations, repository.StockReservation{ProductID: id, Quantity: requested[id]})
	}

	return reservations, nil
}

// requestedTotal adds two non-negative quantities, saturating at MaxInt
func requestedTotal(a, b int) int {
	if b > math.MaxInt-a {
		return math.MaxInt
	}
	return a + b
}

// conflictToStockError reports a reservation lost to a concurrent order,
// using the stock as it stands after the rollback.
func (s *orderService) conflictToStockError(ctx context.Context, conflict *repository.StockConflictError, lines []resolvedLine) *InsufficientStockError {
	stockErr := &InsufficientStockError{
		ProductID: conflict.ProductID,
		Requested: conflict.Requested,
	}

	for _, line := range lines {
		if line.product != nil && line.product.ID == conflict.ProductID {
			stockErr.Title = line.product.Title
			break
		}
	}

	levels, err := s.productRepo.StockLevels(ctx, []uuid.UUID{conflict.ProductID})
	if err != nil {
		s.logger.Warn("Failed to re-read stock after conflict",
			zap.String("product_id", conflict.ProductID.String()),
			zap.Error(err),
		)
		return stockErr
	}
	stockErr.Available = levels[conflict.ProductID]

	return stockErr
}

func (s *orderService) logStockRejection(userID uuid.UUID, err error) {
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		return
	}
	s.logger.Info("Order rejected for insufficient stock",
		zap.String("user_id", userID.String()),
		zap.String("title", stockErr.Title),
		zap.Int("requested", stockErr.Requested),
		zap.Int("available", stockErr.Available),
	)
}

// publishOrderPlaced emits the event without letting a broker failure or a
// cancelled request undo an order that has already committed.
func (s *orderService) publishOrderPlaced(ctx context.Context, order *domain.Order) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.PublishOrderPlaced(ctx, events.NewOrderPlacedEvent(order)); err != nil {
		s.logger.Warn("Failed to publish order event",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}

// ListMyOrders returns the user's orders, newest first
func (s *orderService) ListMyOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	if userID == uuid.Nil {
		return nil, ErrUnauthenticated
	}

	orders, err := s.orderRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, persistenceError("list orders", err)
	}
	return orders, nil
}

// ListAll returns every order, newest first
func (s *orderService) ListAll(ctx context.Context) ([]*domain.Order, error) {
	orders, err := s.orderRepo.ListAll(ctx)
	if err != nil {
		return nil, persistenceError("list orders", err)
	}
	return orders, nil
}

// UpdateStatus moves an order to a new status
func (s *orderService) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		verr := &ValidationError{}
		verr.Add("status", "unknown order status")
		return nil, verr
	}

	order, err := s.orderRepo.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistenceError("update order status", err)
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Status)),
	)

	return order, nil
}

func lineTitle(line resolvedLine) string {
	if line.input.Title != "" {
		return line.input.Title
	}
	return line.input.ProductID.String()
}
