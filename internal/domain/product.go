package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// The mobile client reads prices as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// ProductStatus controls catalog visibility
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

// Valid reports whether s is a known product status
func (s ProductStatus) Valid() bool {
	return s == ProductStatusActive || s == ProductStatusInactive
}

// Product represents a product in the catalog
type Product struct {
	ID                 uuid.UUID       `json:"_id"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Price              decimal.Decimal `json:"price"`
	DiscountPercentage float64         `json:"discountPercentage"`
	Thumbnail          string          `json:"thumbnail"`
	Stock              int             `json:"stock"`
	Status             ProductStatus   `json:"status"`
	Position           int             `json:"position"`
	Deleted            bool            `json:"deleted"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// Purchasable reports whether orders may reserve stock from the product.
func (p *Product) Purchasable() bool {
	return !p.Deleted && p.Status == ProductStatusActive
}
