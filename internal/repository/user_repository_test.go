package repository

import (
	"context"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestProperty_StoredPasswordsStayHashed(t *testing.T) {
	resetTables(t)
	repo := NewUserRepository(testDB)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)
	properties.Property("the stored hash verifies and never equals the password", prop.ForAll(
		func(password string) bool {
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
			if err != nil {
				return false
			}

			user := &domain.User{
				ID:           uuid.New(),
				Name:         "Ana",
				Email:        uuid.NewString() + "@example.com",
				PasswordHash: string(hash),
				Role:         domain.RoleUser,
				Avatar:       domain.DefaultAvatar,
				CreatedAt:    time.Now(),
				UpdatedAt:    time.Now(),
			}
			if err := repo.Create(ctx, user); err != nil {
				t.Logf("Failed to create user: %v", err)
				return false
			}

			stored, err := repo.FindByEmail(ctx, user.Email)
			if err != nil {
				return false
			}

			return stored.PasswordHash != password &&
				bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(password)) == nil
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) >= 6 && len(s) <= 72 }),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestUserRepository(t *testing.T) {
	resetTables(t)
	repo := NewUserRepository(testDB)
	ctx := context.Background()

	user := createTestUser(t, "ana@example.com")

	duplicate := *user
	duplicate.ID = uuid.New()
	assert.ErrorIs(t, repo.Create(ctx, &duplicate), ErrUserAlreadyExists)

	found, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", found.Email)
	assert.Equal(t, domain.DefaultAvatar, found.Avatar)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, repo.UpdatePassword(ctx, user.ID, "$2a$10$replaced"))
	found, err = repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$replaced", found.PasswordHash)

	assert.ErrorIs(t, repo.UpdatePassword(ctx, uuid.New(), "x"), ErrUserNotFound)

	createTestUser(t, "ben@example.com")
	users, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestUserRepository_SoftDelete(t *testing.T) {
	resetTables(t)
	repo := NewUserRepository(testDB)
	ctx := context.Background()

	user := createTestUser(t, "ana@example.com")
	createTestUser(t, "ben@example.com")

	found, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, found.Deleted)
	assert.Nil(t, found.DeletedAt)

	require.NoError(t, repo.SoftDelete(ctx, user.ID))

	_, err = repo.FindByID(ctx, user.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = repo.FindByEmail(ctx, "ana@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, repo.UpdatePassword(ctx, user.ID, "$2a$10$replaced"), ErrUserNotFound)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "ben@example.com", users[0].Email)

	var deletedAt *time.Time
	require.NoError(t, testDB.QueryRow(`SELECT deleted_at FROM users WHERE id = $1`, user.ID).Scan(&deletedAt))
	assert.NotNil(t, deletedAt)

	assert.ErrorIs(t, repo.SoftDelete(ctx, user.ID), ErrUserNotFound)
	assert.ErrorIs(t, repo.SoftDelete(ctx, uuid.New()), ErrUserNotFound)
}

func TestRefreshTokenRepository(t *testing.T) {
	resetTables(t)
	repo := NewRefreshTokenRepository(testDB)
	ctx := context.Background()

	user := createTestUser(t, "ana@example.com")
	newToken := func(value string) *domain.RefreshToken {
		token := &domain.RefreshToken{
			ID:        uuid.New(),
			UserID:    user.ID,
			Token:     value,
			ExpiresAt: time.Now().Add(time.Hour),
			CreatedAt: time.Now(),
		}
		require.NoError(t, repo.Create(ctx, token))
		return token
	}

	first := newToken("token-1")
	newToken("token-2")

	found, err := repo.FindByToken(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.UserID)

	var plain int
	require.NoError(t, testDB.QueryRow(`SELECT COUNT(*) FROM refresh_tokens WHERE token_hash = $1`, first.Token).Scan(&plain))
	assert.Zero(t, plain)

	stranger := createTestUser(t, "eve@example.com")
	assert.ErrorIs(t, repo.Revoke(ctx, stranger.ID, first.Token), ErrRefreshTokenNotFound)
	_, err = repo.FindByToken(ctx, first.Token)
	require.NoError(t, err)

	require.NoError(t, repo.Revoke(ctx, user.ID, first.Token))
	_, err = repo.FindByToken(ctx, first.Token)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
	require.NoError(t, repo.Revoke(ctx, user.ID, first.Token))

	assert.ErrorIs(t, repo.Revoke(ctx, user.ID, "missing"), ErrRefreshTokenNotFound)

	require.NoError(t, repo.RevokeAllForUser(ctx, user.ID))
	_, err = repo.FindByToken(ctx, "token-2")
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestWishlistRepository(t *testing.T) {
	resetTables(t)
	repo := NewWishlistRepository(testDB)
	products := NewProductRepository(testDB)
	ctx := context.Background()

	user := createTestUser(t, "ana@example.com")
	kept := createTestProduct(t, "Phone Case", "9.99", 5, 0)
	removed := createTestProduct(t, "Charger", "19.50", 5, 1)

	require.NoError(t, repo.Add(ctx, user.ID, kept.ID))
	require.NoError(t, repo.Add(ctx, user.ID, kept.ID))
	require.NoError(t, repo.Add(ctx, user.ID, removed.ID))
	require.NoError(t, products.SoftDelete(ctx, removed.ID))

	listed, err := repo.ListProducts(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, kept.ID, listed[0].ID)

	require.NoError(t, repo.Remove(ctx, user.ID, kept.ID))
	assert.ErrorIs(t, repo.Remove(ctx, user.ID, kept.ID), ErrProductNotFound)
}
