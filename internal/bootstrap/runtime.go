// Package bootstrap wires the database and Redis for the server commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"heartline/internal/cache"
	"heartline/internal/config"
	"heartline/internal/database"
	"heartline/internal/models"
	"heartline/internal/observability"
	"heartline/internal/seed"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty development database with demo data.
	SeedDemo bool
}

// InitRuntime connects to the database and Redis. The Redis client is nil when
// Redis is unreachable; callers run uncached in that case.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	rdb := cache.Connect(ctx, cfg.RedisURL)

	if opts.SeedDemo {
		if err := ensureDemoData(ctx, cfg, db); err != nil {
			return nil, nil, fmt.Errorf("seed demo data: %w", err)
		}
	}
	return db, rdb, nil
}

func ensureDemoData(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg.IsProduction() {
		return nil
	}
	var users int64
	if err := db.WithContext(ctx).Model(&models.User{}).Count(&users).Error; err != nil {
		return err
	}
	if users > 0 {
		return nil
	}
	sum, err := seed.Seed(ctx, db, seed.Options{NumUsers: 10, NumPosts: 30, LikePercent: 30, MaxComments: 4})
	if err != nil {
		return err
	}
	observability.GlobalLogger.InfoContext(ctx, "demo data created for empty database",
		slog.Int("users", sum.Users), slog.Int("posts", sum.Posts))
	return nil
}
