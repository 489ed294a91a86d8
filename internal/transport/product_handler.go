package transport

import (
	"errors"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductSummary is the listing projection of a product
type ProductSummary struct {
	ID                 uuid.UUID       `json:"_id"`
	Title              string          `json:"title"`
	Price              decimal.Decimal `json:"price"`
	DiscountPercentage float64         `json:"discountPercentage"`
	Thumbnail          string          `json:"thumbnail"`
	Stock              int             `json:"stock"`
}

// ProductDetail is the single-product projection
type ProductDetail struct {
	ID                 uuid.UUID       `json:"_id"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Price              decimal.Decimal `json:"price"`
	DiscountPercentage float64         `json:"discountPercentage"`
	Thumbnail          string          `json:"thumbnail"`
	Stock              int             `json:"stock"`
}

// CreateProductRequest represents the admin product creation payload
type CreateProductRequest struct {
	Title              string           `json:"title" validate:"required,max=255"`
	Description        string           `json:"description"`
	Price              *decimal.Decimal `json:"price" validate:"required"`
	DiscountPercentage float64          `json:"discountPercentage" validate:"gte=0,lte=100"`
	Thumbnail          string           `json:"thumbnail"`
	Stock              int              `json:"stock" validate:"gte=0"`
	Status             string           `json:"status" validate:"omitempty,oneof=active inactive"`
	Position           int              `json:"position"`
}

// UpdateProductRequest represents the admin partial update payload
type UpdateProductRequest struct {
	Title              *string          `json:"title" validate:"omitempty,min=1,max=255"`
	Description        *string          `json:"description"`
	Price              *decimal.Decimal `json:"price"`
	DiscountPercentage *float64         `json:"discountPercentage" validate:"omitempty,gte=0,lte=100"`
	Thumbnail          *string          `json:"thumbnail"`
	Stock              *int             `json:"stock" validate:"omitempty,gte=0"`
	Status             *string          `json:"status" validate:"omitempty,oneof=active inactive"`
	Position           *int             `json:"position"`
}

func toSummary(p *domain.Product) ProductSummary {
	return ProductSummary{
		ID:                 p.ID,
		Title:              p.Title,
		Price:              p.Price,
		DiscountPercentage: p.DiscountPercentage,
		Thumbnail:          p.Thumbnail,
		Stock:              p.Stock,
	}
}

func toDetail(p *domain.Product) ProductDetail {
	return ProductDetail{
		ID:                 p.ID,
		Title:              p.Title,
		Description:        p.Description,
		Price:              p.Price,
		DiscountPercentage: p.DiscountPercentage,
		Thumbnail:          p.Thumbnail,
		Stock:              p.Stock,
	}
}

// ProductHandler handles HTTP requests for the catalog
type ProductHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(catalog service.CatalogService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// RegisterRoutes registers all catalog routes
func (h *ProductHandler) RegisterRoutes(r chi.Router, mw RouteMiddleware) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(mw.Auth, mw.Admin)
			r.Post("/", h.CreateProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
		})
	})
}

// ListProducts returns the active catalog in display order
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err, h.logger)
		return
	}

	summaries := make([]ProductSummary, 0, len(products))
	for _, p := range products {
		summaries = append(summaries, toSummary(p))
	}

	middleware.RespondWithJSON(w, http.StatusOK, summaries)
}

// GetProduct returns one product. Unknown and malformed ids are both 404.
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}
		respondWithServiceError(w, r, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toDetail(product))
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), service.CreateProductInput{
		Title:              req.Title,
		Description:        req.Description,
		Price:              *req.Price,
		DiscountPercentage: req.DiscountPercentage,
		Thumbnail:          req.Thumbnail,
		Stock:              req.Stock,
		Status:             domain.ProductStatus(req.Status),
		Position:           req.Position,
	})
	if err != nil {
		respondWithServiceError(w, r, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
		return
	}

	var req UpdateProductRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	input := service.UpdateProductInput{
		Title:              req.Title,
		Description:        req.Description,
		Price:              req.Price,
		DiscountPercentage: req.DiscountPercentage,
		Thumbnail:          req.Thumbnail,
		Stock:              req.Stock,
		Position:           req.Position,
	}
	if req.Status != nil {
		status := domain.ProductStatus(*req.Status)
		input.Status = &status
	}

	product, err := h.catalog.UpdateProduct(r.Context(), id, input)
	if err != nil {
		respondWithServiceError(w, r, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
		return
	}

	if err := h.catalog.DeleteProduct(r.Context(), id); err != nil {
		respondWithServiceError(w, r, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "product removed"})
}
