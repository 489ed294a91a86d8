package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateProductInput holds the fields of a new catalog entry
type CreateProductInput struct {
	Title              string
	Description        string
	Price              decimal.Decimal
	DiscountPercentage float64
	Thumbnail          string
	Stock              int
	Status             domain.ProductStatus
	Position           int
}

// UpdateProductInput is a partial update; nil fields are left unchanged
type UpdateProductInput struct {
	Title              *string
	Description        *string
	Price              *decimal.Decimal
	DiscountPercentage *float64
	Thumbnail          *string
	Stock              *int
	Status             *domain.ProductStatus
	Position           *int
}

// CatalogService defines the interface for catalog business logic
type CatalogService interface {
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

type catalogService struct {
	productRepo repository.ProductRepository
	listLimit   int
	logger      *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService. listLimit caps
// the number of products returned by ListProducts.
func NewCatalogService(productRepo repository.ProductRepository, listLimit int, logger *zap.Logger) CatalogService {
	return &catalogService{
		productRepo: productRepo,
		listLimit:   listLimit,
		logger:      logger,
	}
}

func (s *catalogService) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	products, err := s.productRepo.ListActive(ctx, s.listLimit)
	if err != nil {
		return nil, persistenceError("list products", err)
	}
	return products, nil
}

func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistenceError("get product", err)
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	if input.Status == "" {
		input.Status = domain.ProductStatusActive
	}

	now := time.Now()
	product := &domain.Product{
		ID:                 uuid.New(),
		Title:              strings.TrimSpace(input.Title),
		Description:        input.Description,
		Price:              input.Price,
		DiscountPercentage: input.DiscountPercentage,
		Thumbnail:          input.Thumbnail,
		Stock:              input.Stock,
		Status:             input.Status,
		Position:           input.Position,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, persistenceError("create product", err)
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("title", product.Title),
		zap.Int("stock", product.Stock),
	)

	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*domain.Product, error) {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		product.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		product.Description = *input.Description
	}
	if input.Price != nil {
		product.Price = *input.Price
	}
	if input.DiscountPercentage != nil {
		product.DiscountPercentage = *input.DiscountPercentage
	}
	if input.Thumbnail != nil {
		product.Thumbnail = *input.Thumbnail
	}
	if input.Stock != nil {
		product.Stock = *input.Stock
	}
	if input.Status != nil {
		product.Status = *input.Status
	}
	if input.Position != nil {
		product.Position = *input.Position
	}

	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistenceError("update product", err)
	}

	return product, nil
}

// DeleteProduct soft deletes a product. Existing orders keep referencing it.
func (s *catalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return ErrNotFound
		}
		return persistenceError("delete product", err)
	}

	s.logger.Info("Product deleted", zap.String("product_id", id.String()))
	return nil
}

func validateProduct(product *domain.Product) error {
	verr := &ValidationError{}

	if product.Title == "" {
		verr.Add("title", "title is required")
	}
	switch {
	case product.Price.IsNegative():
		verr.Add("price", "price must not be negative")
	case !domain.ValidAmount(product.Price):
		verr.Add("price", "price must have at most 2 decimal places and not exceed "+domain.MaxAmount.StringFixed(domain.AmountScale))
	}
	if product.DiscountPercentage < 0 || product.DiscountPercentage > 100 {
		verr.Add("discountPercentage", "discount must be between 0 and 100")
	}
	if product.Stock < 0 {
		verr.Add("stock", "stock must not be negative")
	}
	if product.Stock > domain.MaxQuantity {
		verr.Add("stock", "stock is too large")
	}
	if !product.Status.Valid() {
		verr.Add("status", "status must be active or inactive")
	}

	return verr.OrNil()
}
