// Package server contains the HTTP handlers for the murmur API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"murmur/internal/cache"
	"murmur/internal/config"
	"murmur/internal/database"
	"murmur/internal/fanout"
	"murmur/internal/media"
	"murmur/internal/middleware"
	"murmur/internal/repository"
	"murmur/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	registerRateLimit  = 5
	registerRateWindow = 10 * time.Minute
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	pipeline        *media.Pipeline
	reclaimer       *media.Reclaimer
	registerLimiter middleware.Limiter

	userService         *service.UserService
	postService         *service.PostService
	followService       *service.FollowService
	notificationService *service.NotificationService
}

// NewServer connects the database and Redis and builds a server around them.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; rate limits then fall back to in-process windows.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	store, err := newImageStore(cfg)
	if err != nil {
		return nil, err
	}

	pipeline := media.NewPipeline(media.Options{
		QuarantineDir: cfg.UploadQuarantineDir,
		Store:         store,
		Limiter:       middleware.NewLimiter(redisClient, "upload", cfg.UploadRateLimit, cfg.UploadRateWindow),
		MaxBytes:      cfg.UploadMaxBytes,
		Retention:     cfg.StagedRetention,
	})

	repos := repository.NewRepositories(db)
	uow := repository.NewUnitOfWork(db)
	engine := fanout.NewEngine()

	s := &Server{
		config:          cfg,
		db:              db,
		redis:           redisClient,
		promMiddleware:  middleware.InitMetrics("murmur-api"),
		pipeline:        pipeline,
		reclaimer:       media.NewReclaimer(pipeline, cfg.ReclaimInterval),
		registerLimiter: middleware.NewLimiter(redisClient, "register", registerRateLimit, registerRateWindow),

		userService:         service.NewUserService(repos.Users),
		postService:         service.NewPostService(uow, repos.Posts, engine, pipeline),
		followService:       service.NewFollowService(uow, repos.Users, repos.Follows, engine),
		notificationService: service.NewNotificationService(repos.Users, repos.Notifications),
	}
	return s, nil
}

func newImageStore(cfg *config.Config) (media.Store, error) {
	if cfg.StorageBackend != "s3" {
		return media.NewLocalStore(cfg.UploadPermanentDir, cfg.UploadPublicBaseURL), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := media.NewS3Store(ctx, media.S3Config{
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Endpoint:  cfg.S3Endpoint,
		PublicURL: cfg.UploadPublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("image store: %w", err)
	}
	return store, nil
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

	app.Use(helmet.New(helmet.Config{
		// Promoted images are served from this origin to the frontend.
		CrossOriginResourcePolicy: "cross-origin",
	}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       86400,
	}))

	if s.config.GlobalRateLimitPerIP > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        s.config.GlobalRateLimitPerIP,
			Expiration: time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return c.Method() == fiber.MethodOptions || strings.HasPrefix(c.Path(), "/health")
			},
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests, please try again later.",
					"code":  "RATE_LIMITED",
				})
			},
		}))
	}
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Promoted images on the local store are served by the API itself.
	if s.config.StorageBackend != "s3" && strings.HasPrefix(s.config.UploadPublicBaseURL, "/") {
		app.Static(s.config.UploadPublicBaseURL, s.config.UploadPermanentDir, fiber.Static{
			MaxAge: 86400,
		})
	}

	api := app.Group("/api")

	api.Post("/upload", s.UploadImage)

	users := api.Group("/users")
	users.Post("/", middleware.RateLimit(s.registerLimiter, "register", middleware.FailOpen), s.RegisterUser)
	users.Get("/", s.GetUsers)
	// Specific /:id/:resource routes before the generic /:id route
	users.Post("/:id/follow", s.FollowUser)
	users.Post("/:id/unfollow", s.UnfollowUser)
	users.Get("/:id/followers", s.GetFollowers)
	users.Get("/:id/following", s.GetFollowing)
	users.Get("/:id/posts", s.GetUserPosts)
	users.Get("/:id", s.GetUser)

	posts := api.Group("/posts")
	posts.Post("/", s.CreatePost)
	posts.Get("/", s.GetPosts)
	posts.Get("/:id", s.GetPost)

	notifications := api.Group("/notifications")
	notifications.Get("/:userId/unread/count", s.GetUnreadCount)
	notifications.Put("/:id/read", s.MarkNotificationRead)
	notifications.Get("/:userId", s.GetNotifications)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports database, schema and Redis health. Redis is optional:
// without it the limiters and the unread-count cache degrade to in-process behavior.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	schemaStatus := "current"
	if dbStatus == "healthy" {
		status, err := database.GetSchemaStatus(ctx, s.db, s.config)
		switch {
		case err != nil:
			schemaStatus = "unknown"
		case len(status.PendingMigrations) > 0:
			schemaStatus = "pending"
		}
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || schemaStatus == "pending" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"schema":   schemaStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// newApp builds the Fiber app with middleware and routes installed.
func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "murmur API",
		ErrorHandler: ErrorHandler,
		// Oversized uploads must reach the intake pipeline to be rejected with a 400.
		BodyLimit: int(2*s.config.UploadMaxBytes) + 1<<20,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start starts the reclaimer and the HTTP listener. It blocks until the listener stops.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.newApp()
	s.reclaimer.Start(s.shutdownCtx)

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if s.shutdownFn != nil {
		s.shutdownFn()
		select {
		case <-s.reclaimer.Done():
		case <-ctx.Done():
			middleware.Logger.Warn("reclaimer did not stop before shutdown deadline")
		}
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			errs = append(errs, fmt.Errorf("sql db: %w", cerr))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			errs = append(errs, fmt.Errorf("redis: %w", rerr))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return errors.Join(errs...)
}
