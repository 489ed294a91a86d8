package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCatalogFixture() (*stubCatalogService, *domain.Product) {
	p := &domain.Product{
		ID:          uuid.New(),
		Title:       "Phone Case",
		Description: "Shock resistant",
		Price:       decimal.RequireFromString("9.99"),
		Thumbnail:   "case.png",
		Stock:       5,
		Status:      domain.ProductStatusActive,
	}
	return &stubCatalogService{products: map[uuid.UUID]*domain.Product{p.ID: p}}, p
}

func TestListProducts_SummaryProjection(t *testing.T) {
	catalog, p := newCatalogFixture()
	router := newTestRouter(NewProductHandler(catalog, zap.NewNop()))

	rec := doRequest(t, router, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, p.ID.String(), resp[0]["_id"])
	assert.Equal(t, 9.99, resp[0]["price"])
	assert.EqualValues(t, 5, resp[0]["stock"])
	assert.NotContains(t, resp[0], "description")
	assert.NotContains(t, resp[0], "deleted")
}

func TestGetProduct(t *testing.T) {
	catalog, p := newCatalogFixture()
	router := newTestRouter(NewProductHandler(catalog, zap.NewNop()))

	rec := doRequest(t, router, http.MethodGet, "/api/products/"+p.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Shock resistant", resp["description"])

	for _, path := range []string{"/api/products/" + uuid.NewString(), "/api/products/not-an-id"} {
		rec = doRequest(t, router, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "product not found", decodeErrorBody(t, rec).Message)
	}
}

func TestListProducts_StorageFailure(t *testing.T) {
	catalog := &stubCatalogService{err: errors.New("db down")}
	router := newTestRouter(NewProductHandler(catalog, zap.NewNop()))

	rec := doRequest(t, router, http.MethodGet, "/api/products", "", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestProductAdminRoutes(t *testing.T) {
	catalog, p := newCatalogFixture()
	router := newTestRouter(NewProductHandler(catalog, zap.NewNop()))
	admin := signToken(t, uuid.New(), domain.RoleAdmin)
	user := signToken(t, uuid.New(), domain.RoleUser)

	create := map[string]interface{}{"title": "Charger", "price": 19.5, "stock": 4}

	rec := doRequest(t, router, http.MethodPost, "/api/products", "", create)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/products", user, create)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/products", admin, create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, catalog.created)
	assert.True(t, decimal.RequireFromString("19.5").Equal(catalog.created.Price))
	assert.Equal(t, 4, catalog.created.Stock)

	rec = doRequest(t, router, http.MethodPost, "/api/products", admin, map[string]interface{}{"title": "No price"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "price: This field is required", decodeErrorBody(t, rec).Message)

	rec = doRequest(t, router, http.MethodPut, "/api/products/"+p.ID.String(), admin, map[string]interface{}{"stock": 12})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12, p.Stock)

	rec = doRequest(t, router, http.MethodPut, "/api/products/"+p.ID.String(), admin, map[string]interface{}{"stock": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodDelete, "/api/products/"+p.ID.String(), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodDelete, "/api/products/"+p.ID.String(), admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
