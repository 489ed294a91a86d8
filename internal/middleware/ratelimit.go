package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	KeyPrefix         string
}

// fixedWindow is the state of one caller's counter after a hit
type fixedWindow struct {
	count int64
	ttl   time.Duration
}

// hit counts one request against key and starts the window on first use
func hit(ctx context.Context, client *redis.Client, key string, size time.Duration) (fixedWindow, error) {
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd

	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return fixedWindow{}, err
	}

	w := fixedWindow{count: incr.Val(), ttl: ttl.Val()}
	if w.ttl < 0 {
		if err := client.Expire(ctx, key, size).Err(); err != nil {
			return w, err
		}
		w.ttl = size
	}
	return w, nil
}

// callerKey identifies the caller: the user once authenticated, the remote
// host otherwise.
func callerKey(r *http.Request) string {
	if userID, ok := GetUserID(r.Context()); ok {
		return "user:" + userID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimitMiddleware limits callers to RequestsPerWindow per fixed window,
// counted in Redis. Requests pass through when Redis is unavailable.
func RateLimitMiddleware(redisClient *redis.Client, config RateLimitConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	limit := strconv.Itoa(config.RequestsPerWindow)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := callerKey(r)
			key := config.KeyPrefix + ":" + caller

			window, err := hit(r.Context(), redisClient, key, config.Window)
			if err != nil {
				logger.Error("Rate limiter unavailable, letting request through",
					zap.String("key", key),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(config.RequestsPerWindow) - window.count
			if remaining < 0 {
				remaining = 0
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(window.ttl).Unix(), 10))

			if window.count > int64(config.RequestsPerWindow) {
				logger.Warn("Rate limit exceeded",
					zap.String("caller", caller),
					zap.String("path", r.URL.Path),
					zap.Int64("count", window.count),
				)

				w.Header().Set("Retry-After", strconv.Itoa(int(window.ttl.Seconds())))
				RespondWithError(w, http.StatusTooManyRequests, "too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
