package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderLineRequest is one line of a checkout. productId is preferred; title
// is matched exactly when it is absent.
type OrderLineRequest struct {
	ProductID string          `json:"productId" validate:"omitempty,uuid"`
	Title     string          `json:"title" validate:"max=255"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"qty" validate:"gte=0"`
}

// PlaceOrderRequest represents the checkout payload sent by the mobile client
type PlaceOrderRequest struct {
	CustomerName    string             `json:"customerName"`
	CustomerPhone   string             `json:"customerPhone"`
	DeliveryAddress string             `json:"deliveryAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	Items           []OrderLineRequest `json:"items" validate:"dive"`
	TotalAmount     *decimal.Decimal   `json:"totalAmount"`
}

// UpdateOrderStatusRequest represents the admin status change payload
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Pending Processing Confirmed Shipped Delivered Cancelled"`
}

// OrderHandler handles HTTP requests for orders
type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// RegisterRoutes registers all order routes
func (h *OrderHandler) RegisterRoutes(r chi.Router, mw RouteMiddleware) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(mw.Auth)

		r.With(mw.rateLimit()).Post("/", h.PlaceOrder)
		r.Get("/myorders", h.ListMyOrders)

		r.Group(func(r chi.Router) {
			r.Use(mw.Admin)
			r.Get("/", h.ListOrders)
			r.Put("/{id}", h.UpdateStatus)
		})
	})
}

// PlaceOrder handles checkout
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req PlaceOrderRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	input := service.PlaceOrderInput{
		UserID:          userID,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		Items:           make([]service.OrderLineInput, 0, len(req.Items)),
		ClientTotal:     req.TotalAmount,
	}
	for _, item := range req.Items {
		line := service.OrderLineInput{
			Title:    item.Title,
			Price:    item.Price,
			Quantity: item.Quantity,
		}
		if item.ProductID != "" {
			// format already checked by the uuid validator
			line.ProductID = uuid.MustParse(item.ProductID)
		}
		input.Items = append(input.Items, line)
	}

	order, err := h.orders.PlaceOrder(r.Context(), input)
	if err != nil {
		respondWithServiceError(w, r, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, order)
}

// ListMyOrders returns the caller's orders, newest first
func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListMyOrders(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, r, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		return
	}

	var req UpdateOrderStatusRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), id, domain.OrderStatus(req.Status))
	if err != nil {
		respondWithServiceError(w, r, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}
