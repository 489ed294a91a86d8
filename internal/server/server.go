package server

import (
	"fmt"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config    *config.Config
	logger    *zap.Logger
	db        database.Service
	redis     *redis.Client
	publisher events.Publisher
}

func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service, redisClient *redis.Client, publisher events.Publisher) *Server {
	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:    cfg,
		logger:    logger,
		db:        db,
		redis:     redisClient,
		publisher: publisher,
	}
	server.Handler = server.routes()

	return server
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()

	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.ErrorHandlingMiddleware(s.logger))
	router.Use(custommiddleware.LoggingMiddleware(s.logger))
	router.Use(custommiddleware.CORSMiddleware(s.config.Server.AllowedOrigins, !s.config.IsProduction()))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		custommiddleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		health := s.db.Health()
		status := http.StatusOK
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		custommiddleware.RespondWithJSON(w, status, health)
	})

	db := s.db.DB()

	// Initialize repositories
	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db, s.config.Orders.MaxRetries)
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	wishlistRepo := repository.NewWishlistRepository(db)

	// Initialize services
	catalogService := service.NewCatalogService(productRepo, s.config.Catalog.ListLimit, s.logger)
	orderService := service.NewOrderService(productRepo, orderRepo, s.publisher, s.logger)
	userService := service.NewUserService(userRepo, refreshTokenRepo, productRepo, wishlistRepo, service.TokenConfig{
		Secret:        s.config.JWT.Secret,
		AccessExpiry:  s.config.JWT.AccessTTL(),
		RefreshExpiry: s.config.JWT.RefreshTTL(),
	}, s.logger)

	mw := transport.RouteMiddleware{
		Auth:  custommiddleware.AuthMiddleware(s.config.JWT.Secret, s.logger),
		Admin: custommiddleware.RequireAdmin(s.logger),
	}
	if s.redis != nil {
		mw.RateLimit = custommiddleware.RateLimitMiddleware(s.redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: s.config.RateLimit.Requests,
			Window:            s.config.RateLimit.Window,
			KeyPrefix:         "ratelimit",
		}, s.logger)
	}

	// Register routes
	transport.NewProductHandler(catalogService, s.logger).RegisterRoutes(router, mw)
	transport.NewOrderHandler(orderService, s.logger).RegisterRoutes(router, mw)
	transport.NewUserHandler(userService, s.logger).RegisterRoutes(router, mw)

	return router
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Error("Failed to close event publisher", zap.Error(err))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
