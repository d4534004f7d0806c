package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"heartline/internal/featureflags"
	"heartline/internal/models"
	"heartline/internal/observability"
)

// FailPolicy defines the behavior when Redis is unavailable.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

// RateLimitKey is the Redis counter for resource and id.
func RateLimitKey(resource, id string) string {
	return fmt.Sprintf("rl:%s:%s", resource, id)
}

// CheckRateLimit counts one hit against resource/id and reports whether it is within limit.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	if rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	key := RateLimitKey(resource, id)
	cnt, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("incr").Inc()
		return false, err
	}
	if cnt == 1 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			observability.RedisErrorRate.WithLabelValues("expire").Inc()
		}
	}
	return cnt <= int64(limit), nil
}

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	Resource string
	Limit    int
	Window   time.Duration
	Policy   FailPolicy
	// Flags and Flag gate the limiter per user; a nil Flags always limits.
	Flags *featureflags.Manager
	Flag  string
}

// RateLimit enforces opts.Limit requests per opts.Window, keyed by the
// authenticated user or, failing that, the remote IP.
func RateLimit(rdb *redis.Client, opts RateLimitOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id string
		if uid := UserID(c); uid != 0 {
			id = fmt.Sprintf("user:%d", uid)
		} else {
			id = "ip:" + c.IP()
		}

		if opts.Flags != nil && !opts.Flags.Enabled(opts.Flag, UserID(c)) {
			return c.Next()
		}

		resource := opts.Resource
		if resource == "" {
			resource = c.Route().Path
		}

		allowed, err := CheckRateLimit(c.UserContext(), rdb, resource, id, opts.Limit, opts.Window)
		if err != nil {
			if opts.Policy == FailClosed {
				observability.GlobalLogger.WarnContext(c.UserContext(), "rate limit fail-closed",
					slog.String("resource", resource), slog.String("error", err.Error()))
				return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{Error: "rate limit unavailable"})
			}
			return c.Next()
		}

		if !allowed {
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				models.NewRateLimitedError("rate limit exceeded"))
		}
		return c.Next()
	}
}
