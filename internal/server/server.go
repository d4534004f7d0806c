// Package server contains the HTTP handlers of the reference like authority.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	_ "heartline/docs" // swagger docs
	"heartline/internal/cache"
	"heartline/internal/config"
	"heartline/internal/featureflags"
	"heartline/internal/middleware"
	"heartline/internal/models"
	"heartline/internal/observability"
	"heartline/internal/repository"
	"heartline/internal/service"
)

const (
	serviceName   = "heartline-api"
	likeRateLimit = "like"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	userRepo       repository.UserRepository
	postRepo       repository.PostRepository
	featureFlags   *featureflags.Manager
	postService    *service.PostService
	authService    *service.AuthService
}

// NewServerWithDeps creates a Server from dependencies set up by bootstrap.InitRuntime.
// redisClient may be nil; caching and rate limiting are then skipped.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, fmt.Errorf("config and database are required")
	}
	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics(serviceName),
		userRepo:       repository.NewUserRepository(db),
		postRepo:       repository.NewPostRepository(db),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}
	s.postService = service.NewPostService(s.postRepo, cache.NewStore(redisClient), cfg.FeedCacheTTL())
	s.authService = service.NewAuthService(s.userRepo, cfg.JWTSecret, cfg.JWTTTL())
	return s, nil
}

// App builds the fiber application with middleware and routes installed.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Heartline API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			observability.GlobalLogger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}
	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so throttled responses still carry CORS headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: s.config.AllowedOrigins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				models.NewRateLimitedError("Too many requests, please try again later."))
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	auth := api.Group("/auth")
	auth.Post("/signup", s.Signup)
	auth.Post("/login", s.Login)

	optional := middleware.OptionalAuth(s.config.JWTSecret)
	required := middleware.AuthRequired(s.config.JWTSecret)

	api.Get("/feed", optional, s.GetFeed)
	api.Get("/feature-flags", optional, s.GetFeatureFlags)

	posts := api.Group("/posts")
	posts.Get("/:id", optional, s.GetPost)

	likeLimit := middleware.RateLimit(s.redis, middleware.RateLimitOptions{
		Resource: likeRateLimit,
		Limit:    s.config.LikeRateLimit,
		Window:   time.Minute,
		Policy:   middleware.FailOpen,
		Flags:    s.featureFlags,
		Flag:     featureflags.LikeRateLimit,
	})
	posts.Post("/:id/like", required, likeLimit, s.ToggleLike)
	posts.Delete("/:id/like", required, likeLimit, s.UnlikePost)
}

// LivenessCheck answers as long as the process serves HTTP.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "up", "time": time.Now()})
}

func probe(ctx context.Context, ping func(context.Context) error) string {
	if err := ping(ctx); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "readiness probe failed", slog.String("error", err.Error()))
		return "unhealthy"
	}
	return "healthy"
}

// ReadinessCheck reports database and Redis health. Without a Redis client
// the check reads "unavailable" and the service stays ready, uncached.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := fiber.Map{
		"database": probe(ctx, func(ctx context.Context) error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
		"redis": "unavailable",
	}
	if s.redis != nil {
		checks["redis"] = probe(ctx, func(ctx context.Context) error { return s.redis.Ping(ctx).Err() })
	}

	overall, status := "healthy", fiber.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			overall, status = "unhealthy", fiber.StatusServiceUnavailable
		}
	}
	return c.Status(status).JSON(fiber.Map{"status": overall, "checks": checks, "time": time.Now()})
}

// Start serves on the configured port until Shutdown is called.
func (s *Server) Start() error {
	s.app = s.App()
	observability.GlobalLogger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting requests, then closes the database and Redis.
// Close errors are logged, not returned.
func (s *Server) Shutdown(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"http server", func() error {
			if s.app == nil {
				return nil
			}
			return s.app.ShutdownWithContext(ctx)
		}},
		{"database", func() error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}},
		{"redis", func() error {
			if s.redis == nil {
				return nil
			}
			return s.redis.Close()
		}},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			observability.GlobalLogger.Error("shutdown step failed", slog.String("step", step.name), slog.String("error", err.Error()))
		}
	}
	observability.GlobalLogger.Info("server shutdown complete")
	return nil
}
