package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "transport-test-secret"

type stubOrderService struct {
	placeOrder   func(ctx context.Context, input service.PlaceOrderInput) (*domain.Order, error)
	listMine     func(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	listAll      func(ctx context.Context) ([]*domain.Order, error)
	updateStatus func(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, input service.PlaceOrderInput) (*domain.Order, error) {
	return s.placeOrder(ctx, input)
}

func (s *stubOrderService) ListMyOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	return s.listMine(ctx, userID)
}

func (s *stubOrderService) ListAll(ctx context.Context) ([]*domain.Order, error) {
	return s.listAll(ctx)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	return s.updateStatus(ctx, id, status)
}

type stubCatalogService struct {
	products map[uuid.UUID]*domain.Product
	created  *service.CreateProductInput
	err      error
}

func (s *stubCatalogService) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*domain.Product
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.products[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	return p, nil
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, input service.CreateProductInput) (*domain.Product, error) {
	s.created = &input
	return &domain.Product{ID: uuid.New(), Title: input.Title, Price: input.Price, Stock: input.Stock, Status: domain.ProductStatusActive}, nil
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, id uuid.UUID, input service.UpdateProductInput) (*domain.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	if input.Stock != nil {
		p.Stock = *input.Stock
	}
	return p, nil
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if _, ok := s.products[id]; !ok {
		return service.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

type stubUserService struct {
	service.UserService

	user       *domain.User
	tokens     *service.TokenPair
	err        error
	wishlisted []uuid.UUID
	loggedOut  []uuid.UUID
	deleted    []uuid.UUID
}

func (s *stubUserService) Register(ctx context.Context, name, email, password string) (*domain.User, *service.TokenPair, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.user, s.tokens, nil
}

func (s *stubUserService) Login(ctx context.Context, email, password string) (*domain.User, *service.TokenPair, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.user, s.tokens, nil
}

func (s *stubUserService) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	s.loggedOut = append(s.loggedOut, userID)
	return s.err
}

func (s *stubUserService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.tokens.AccessToken, nil
}

func (s *stubUserService) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

func (s *stubUserService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	return s.err
}

func (s *stubUserService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return []*domain.User{s.user}, s.err
}

func (s *stubUserService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubUserService) Wishlist(ctx context.Context, userID uuid.UUID) ([]*domain.Product, error) {
	return nil, s.err
}

func (s *stubUserService) AddToWishlist(ctx context.Context, userID, productID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.wishlisted = append(s.wishlisted, productID)
	return nil
}

func (s *stubUserService) RemoveFromWishlist(ctx context.Context, userID, productID uuid.UUID) error {
	return s.err
}

type routeRegistrar interface {
	RegisterRoutes(r chi.Router, mw RouteMiddleware)
}

func newTestRouter(handlers ...routeRegistrar) http.Handler {
	logger := zap.NewNop()
	r := chi.NewRouter()
	mw := RouteMiddleware{
		Auth:  middleware.AuthMiddleware(testSecret, logger),
		Admin: middleware.RequireAdmin(logger),
	}
	for _, h := range handlers {
		h.RegisterRoutes(r, mw)
	}
	return r
}

func signToken(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) middleware.ErrorDetail {
	t.Helper()
	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}
