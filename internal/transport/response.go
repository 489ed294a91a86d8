package transport

import (
	"errors"
	"net/http"
	"strings"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RouteMiddleware groups the middleware handlers attach to their routes
type RouteMiddleware struct {
	Auth      func(http.Handler) http.Handler
	Admin     func(http.Handler) http.Handler
	RateLimit func(http.Handler) http.Handler
}

func (m RouteMiddleware) rateLimit() func(http.Handler) http.Handler {
	if m.RateLimit == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return m.RateLimit
}

// decodeRequest decodes and validates the body into v. It writes the error
// response itself and reports whether the handler may continue.
func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}, logger *zap.Logger) bool {
	err := middleware.DecodeAndValidate(r, v)
	if err == nil {
		return true
	}

	logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))

	if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
		middleware.RespondWithValidationErrors(w, validationErrors)
		return false
	}

	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
	return false
}

// respondWithServiceError maps a service error onto the HTTP error envelope
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	var validationErr *service.ValidationError
	var stockErr *service.InsufficientStockError

	switch {
	case errors.As(err, &validationErr):
		fields := make([]middleware.ValidationError, 0, len(validationErr.Fields))
		messages := make([]string, 0, len(validationErr.Fields))
		for _, f := range validationErr.Fields {
			fields = append(fields, middleware.ValidationError{Field: f.Field, Message: f.Message})
			messages = append(messages, f.Message)
		}
		middleware.RespondWithErrorDetails(w, http.StatusBadRequest, strings.Join(messages, "; "), map[string]interface{}{
			"validation_errors": fields,
		})

	case errors.As(err, &stockErr):
		middleware.RespondWithErrorDetails(w, http.StatusBadRequest, stockErr.Error(), map[string]interface{}{
			"productId": stockErr.ProductID.String(),
			"title":     stockErr.Title,
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})

	case errors.Is(err, service.ErrUnauthenticated):
		middleware.RespondWithError(w, http.StatusUnauthorized, "not authorized, no token")
	case errors.Is(err, service.ErrInvalidCredentials):
		middleware.RespondWithError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, service.ErrTokenExpired):
		middleware.RespondWithError(w, http.StatusUnauthorized, "token expired")
	case errors.Is(err, service.ErrInvalidToken):
		middleware.RespondWithError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, service.ErrNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, service.ErrEmailTaken):
		middleware.RespondWithError(w, http.StatusConflict, "user already exists")

	default:
		logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		middleware.RespondWithError(w, http.StatusInternalServerError, "something went wrong, please try again")
	}
}

// currentUser returns the authenticated caller or writes a 401
func currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "not authorized, no token")
		return id, false
	}
	return id, true
}
