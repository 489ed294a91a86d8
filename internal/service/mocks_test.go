package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore backs the product, order and wishlist mocks. Reservations are
// applied under one lock, all or nothing, like the database transaction.
type memStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
	orders   []*domain.Order
	wishlist map[uuid.UUID][]uuid.UUID

	// beforeReserve runs before reservations are applied. Tests use it to
	// simulate a concurrent order taking stock after the check.
	beforeReserve func()
	failCreate    error
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[uuid.UUID]*domain.Product),
		wishlist: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (m *memStore) addProduct(title string, price string, stock int) *domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()

	product := &domain.Product{
		ID:        uuid.New(),
		Title:     title,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		Status:    domain.ProductStatusActive,
		Position:  len(m.products),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.products[product.ID] = product
	copied := *product
	return &copied
}

func (m *memStore) stockOf(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memStore) setStock(id uuid.UUID, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id].Stock = stock
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type mockProductRepository struct {
	store *memStore
}

func (r *mockProductRepository) Create(_ context.Context, product *domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := *product
	r.store.products[product.ID] = &copied
	return nil
}

func (r *mockProductRepository) Update(_ context.Context, product *domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	existing, ok := r.store.products[product.ID]
	if !ok || existing.Deleted {
		return repository.ErrProductNotFound
	}
	copied := *product
	copied.UpdatedAt = time.Now()
	r.store.products[product.ID] = &copied
	product.UpdatedAt = copied.UpdatedAt
	return nil
}

func (r *mockProductRepository) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	product, ok := r.store.products[id]
	if !ok || product.Deleted {
		return repository.ErrProductNotFound
	}
	product.Deleted = true
	product.Status = domain.ProductStatusInactive
	return nil
}

func (r *mockProductRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	product, ok := r.store.products[id]
	if !ok || product.Deleted {
		return nil, repository.ErrProductNotFound
	}
	copied := *product
	return &copied, nil
}

func (r *mockProductRepository) ListActive(_ context.Context, limit int) ([]*domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	products := []*domain.Product{}
	for _, product := range r.store.products {
		if product.Purchasable() {
			copied := *product
			products = append(products, &copied)
		}
	}
	sortByPosition(products)
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (r *mockProductRepository) FindPurchasable(_ context.Context, ids []uuid.UUID, titles []string) ([]*domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	wantID := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wantID[id] = true
	}
	wantTitle := make(map[string]bool, len(titles))
	for _, title := range titles {
		wantTitle[title] = true
	}

	products := []*domain.Product{}
	for _, product := range r.store.products {
		if product.Purchasable() && (wantID[product.ID] || wantTitle[product.Title]) {
			copied := *product
			products = append(products, &copied)
		}
	}
	sortByPosition(products)
	return products, nil
}

func (r *mockProductRepository) StockLevels(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	levels := make(map[uuid.UUID]int, len(ids))
	for _, id := range ids {
		if product, ok := r.store.products[id]; ok {
			levels[id] = product.Stock
		}
	}
	return levels, nil
}

func sortByPosition(products []*domain.Product) {
	sort.Slice(products, func(i, j int) bool {
		return products[i].Position < products[j].Position
	})
}

type mockOrderRepository struct {
	store *memStore
}

func (r *mockOrderRepository) CreateWithReservations(_ context.Context, order *domain.Order, reservations []repository.StockReservation) error {
	if r.store.beforeReserve != nil {
		r.store.beforeReserve()
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.failCreate != nil {
		return r.store.failCreate
	}

	for _, reservation := range reservations {
		product, ok := r.store.products[reservation.ProductID]
		if !ok || !product.Purchasable() || product.Stock < reservation.Quantity {
			return &repository.StockConflictError{ProductID: reservation.ProductID, Requested: reservation.Quantity}
		}
	}
	for _, reservation := range reservations {
		r.store.products[reservation.ProductID].Stock -= reservation.Quantity
	}

	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	copied := *order
	r.store.orders = append(r.store.orders, &copied)
	return nil
}

func (r *mockOrderRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, order := range r.store.orders {
		if order.ID == id {
			copied := *order
			return &copied, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (r *mockOrderRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	orders := []*domain.Order{}
	for i := len(r.store.orders) - 1; i >= 0; i-- {
		if r.store.orders[i].UserID == userID {
			copied := *r.store.orders[i]
			orders = append(orders, &copied)
		}
	}
	return orders, nil
}

func (r *mockOrderRepository) ListAll(_ context.Context) ([]*domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	orders := []*domain.Order{}
	for i := len(r.store.orders) - 1; i >= 0; i-- {
		copied := *r.store.orders[i]
		orders = append(orders, &copied)
	}
	return orders, nil
}

func (r *mockOrderRepository) UpdateStatus(_ context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, order := range r.store.orders {
		if order.ID == id {
			order.Status = status
			order.UpdatedAt = time.Now()
			copied := *order
			return &copied, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

type mockWishlistRepository struct {
	store *memStore
}

func (r *mockWishlistRepository) Add(_ context.Context, userID, productID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, id := range r.store.wishlist[userID] {
		if id == productID {
			return nil
		}
	}
	r.store.wishlist[userID] = append(r.store.wishlist[userID], productID)
	return nil
}

func (r *mockWishlistRepository) Remove(_ context.Context, userID, productID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	ids := r.store.wishlist[userID]
	for i, id := range ids {
		if id == productID {
			r.store.wishlist[userID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return repository.ErrProductNotFound
}

func (r *mockWishlistRepository) ListProducts(_ context.Context, userID uuid.UUID) ([]*domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	products := []*domain.Product{}
	for _, id := range r.store.wishlist[userID] {
		if product, ok := r.store.products[id]; ok && !product.Deleted {
			copied := *product
			products = append(products, &copied)
		}
	}
	return products, nil
}

type mockUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, exists := m.users[email]
	if !exists || user.Deleted {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID == id && !user.Deleted {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID == id && !user.Deleted {
			user.PasswordHash = passwordHash
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (m *mockUserRepository) List(_ context.Context) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]*domain.User, 0, len(m.users))
	for _, user := range m.users {
		if !user.Deleted {
			users = append(users, user)
		}
	}
	return users, nil
}

func (m *mockUserRepository) SoftDelete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID == id && !user.Deleted {
			now := time.Now()
			user.Deleted = true
			user.DeletedAt = &now
			return nil
		}
	}
	return repository.ErrUserNotFound
}

type mockRefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRefreshTokenRepository) Create(_ context.Context, token *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(_ context.Context, userID uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	refreshToken, exists := m.tokens[token]
	if !exists || refreshToken.UserID != userID {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderPlacedEvent
	err    error
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, event events.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

var errStorageDown = errors.New("connection refused")
