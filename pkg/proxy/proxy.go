// Package proxy assembles the dispatch server from configuration and runs
// it until shutdown.
package proxy

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/driftlock/dispatch-proxy/internal/api"
	"github.com/driftlock/dispatch-proxy/internal/config"
	"github.com/driftlock/dispatch-proxy/internal/middleware"
	"github.com/driftlock/dispatch-proxy/internal/services/database"
	"github.com/driftlock/dispatch-proxy/internal/services/dispatch"
	"github.com/driftlock/dispatch-proxy/internal/services/provider"
	"github.com/driftlock/dispatch-proxy/internal/services/usage"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

const auditBufferSize = 256

// Proxy represents a dispatch server instance.
type Proxy struct {
	config     *config.Config
	app        *fiber.App
	redis      *redis.Client
	db         *database.DB
	recorder   *usage.Recorder
	dispatcher *dispatch.Dispatcher
}

// New creates a new Proxy instance with the given configuration. The cfg
// parameter is required and must not be nil.
func New(cfg *config.Config) *Proxy {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() to create config")
	}
	return &Proxy{config: cfg}
}

// Run starts the proxy server and blocks until shutdown.
func (p *Proxy) Run() error {
	if err := p.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(p.config)

	listenAddr := p.config.Server.Addr()
	p.app = createFiberApp(p.config)

	if err := p.initializeInfrastructure(); err != nil {
		return err
	}
	defer p.closeInfrastructure()

	registry, err := provider.NewRegistry(p.config.Providers)
	if err != nil {
		return fmt.Errorf("provider registry initialization failed: %w", err)
	}

	p.dispatcher = dispatch.New(p.config.Dispatch, registry, p.redis, p.recorder)
	defer p.dispatcher.Close()

	setupMiddleware(p.app, p.config)
	p.setupRoutes()

	fmt.Printf("Dispatch proxy starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", p.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())
	fmt.Printf("   Registered profiles: %d\n", len(p.config.Dispatch.Profiles))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := p.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	}

	fiberlog.Info("Server shutting down gracefully...")
	if err := p.app.ShutdownWithTimeout(30 * time.Second); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	fiberlog.Info("Server shutdown completed successfully")
	return nil
}

func (p *Proxy) initializeInfrastructure() error {
	redisClient, err := createRedisClient(p.config)
	if err != nil {
		return fmt.Errorf("failed to create Redis client: %w", err)
	}
	p.redis = redisClient
	if redisClient != nil {
		fiberlog.Info("Redis client initialized successfully")
	} else {
		fiberlog.Info("Redis not configured - circuit breakers disabled")
	}

	if p.config.Database != nil {
		db, err := database.New(*p.config.Database)
		if err != nil {
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		p.db = db
		fiberlog.Infof("Database (%s) initialized successfully", db.DriverName())

		recorder, err := usage.NewRecorder(db, auditBufferSize)
		if err != nil {
			return fmt.Errorf("failed to initialize audit recorder: %w", err)
		}
		p.recorder = recorder
	} else {
		fiberlog.Info("Database not configured - audit logging disabled")
	}

	return nil
}

func (p *Proxy) closeInfrastructure() {
	if p.recorder != nil {
		p.recorder.Stop()
	}
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			fiberlog.Errorf("Failed to close Redis client: %v", err)
		}
	}
}

func (p *Proxy) setupRoutes() {
	healthHandler := api.NewHealthHandler(p.redis, p.db)
	p.app.Get("/health", healthHandler.HealthCheck)

	dispatchHandler := api.NewDispatchHandler(p.dispatcher)
	v1Group := p.app.Group("/v1")
	if p.config.Auth.JWTSecret != "" {
		authMiddleware := middleware.NewAuthMiddleware(p.config.Auth.JWTSecret)
		v1Group.Use(authMiddleware.RequireAuth())
	}
	v1Group.Post("/dispatch", dispatchHandler.Dispatch)
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.Server.IsProduction()

	readTimeout := 2 * time.Minute
	if cfg.Server.ReadTimeout > 0 {
		readTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	}
	writeTimeout := 2 * time.Minute
	if cfg.Server.WriteTimeout > 0 {
		writeTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second
	}

	return fiber.New(fiber.Config{
		AppName:           "DispatchProxy v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       5 * time.Minute,
		ReadBufferSize:    8192,
		WriteBufferSize:   8192,
		CaseSensitive:     true,
		ServerHeader:      "DispatchProxy",
	})
}

func setupMiddleware(app *fiber.App, cfg *config.Config) {
	isProd := cfg.Server.IsProduction()

	// Recover middleware (must be first)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:               1000,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fmt.Errorf("1000 requests per minute")
		},
	}))

	// Per-request deadline propagated to the dispatcher via user context.
	app.Use(func(c *fiber.Ctx) error {
		const (
			defaultTimeout = 2 * time.Minute
			maxTimeout     = 5 * time.Minute
		)

		timeout := defaultTimeout
		if customTimeout := c.Get("X-Request-Timeout"); customTimeout != "" {
			if d, err := time.ParseDuration(customTimeout); err == nil && d > 0 {
				timeout = min(d, maxTimeout)
			}
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)

		return c.Next()
	})

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowHeaders:  strings.Join([]string{"Origin", "Content-Type", "Accept", "Authorization", "User-Agent"}, ", "),
		AllowMethods:  "GET, POST, OPTIONS",
		MaxAge:        86400,
		ExposeHeaders: "Content-Length, Content-Type",
	}))

	// Profiler (dev only)
	if !isProd {
		app.Use(pprof.New())
	}
}

func setupLogLevel(cfg *config.Config) {
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "", "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", cfg.Server.LogLevel)
	}
}

func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis == nil || cfg.Redis.URL == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3

	client := redis.NewClient(opt)
	return testRedisConnectionWithRetry(client)
}

func testRedisConnectionWithRetry(client *redis.Client) (*redis.Client, error) {
	const maxAttempts = 3
	const baseDelay = 1 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			fiberlog.Infof("Redis connection established successfully (attempt %d/%d)", attempt, maxAttempts)
			return client, nil
		}

		fiberlog.Warnf("Redis connection failed (attempt %d/%d): %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * baseDelay)
		}
	}

	if err := client.Close(); err != nil {
		fiberlog.Errorf("Failed to close Redis client after connection failures: %v", err)
	}
	return nil, fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}
