// Package main provides the main entry point for the token registry service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/token-registry/app/handlers"
	"github.com/amirphl/token-registry/app/router"
	businessflow "github.com/amirphl/token-registry/business_flow"
	"github.com/amirphl/token-registry/config"
	"github.com/amirphl/token-registry/database"
	"github.com/amirphl/token-registry/migrations"
	"github.com/amirphl/token-registry/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	pool      *database.Pool
	cache     *redis.Client
	stopFuncs []func()
}

func main() {
	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	closeLog := setupLogging(cfg.Logging)
	defer closeLog()

	log.Printf("Starting token registry %s (%s)...", cfg.Deployment.Version, cfg.Deployment.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize application
	app, err := initializeApplication(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			log.Printf("Error closing redis client: %v", err)
		}
	}
	if err := app.pool.Close(); err != nil {
		log.Printf("Error closing database pool: %v", err)
	}

	log.Println("Server stopped")
}

// setupLogging points the standard logger at stdout, a rotating file, or both
func setupLogging(cfg config.LoggingConfig) func() {
	flags := log.LstdFlags | log.LUTC
	if cfg.Level == "debug" {
		flags |= log.Lshortfile
	}
	log.SetFlags(flags)

	if cfg.Output == "stdout" {
		log.SetOutput(os.Stdout)
		return func() {}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	var out io.Writer = rotator
	if cfg.Output == "both" {
		out = io.MultiWriter(os.Stdout, rotator)
	}
	log.SetOutput(out)

	return func() {
		_ = rotator.Close()
	}
}

// initializeDatabase opens the pool, retrying here since the pool itself never retries
func initializeDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.Pool, error) {
	var pool *database.Pool
	err := database.RetryWithBackoff(ctx, cfg.ConnectRetries, func() error {
		var openErr error
		pool, openErr = database.Open(ctx, cfg)
		if openErr != nil {
			log.Printf("Database not ready: %v", openErr)
		}
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", opt.Addr, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis. The returned function stops it.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication connects the store, applies pending migrations and wires the API.
// Nothing is served unless every migration step succeeded.
func initializeApplication(ctx context.Context, cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	pool, err := initializeDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, pool.StartMonitor(ctx, cfg.Database.MonitorInterval))

	if _, err := migrations.NewRunner(pool, migrations.DefaultSteps()).Run(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("schema migration aborted: %w", err)
	}

	if cfg.Metrics.Enabled {
		prometheus.MustRegister(collectors.NewDBStatsCollector(pool.SQLDB(), "token_registry"))
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		// the cache only speeds up reads
		log.Printf("Cache disabled: %v", err)
		rc = nil
	}
	if rc != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(ctx, rc, cfg.Cache.CleanupInterval))
	}

	// Initialize repositories
	tokenRepo := repository.NewPooledTokenRepository(pool)

	// Initialize business flows
	tokenFlow := businessflow.NewTokenFlow(tokenRepo, rc, cfg.Cache.RedisPrefix, cfg.Cache.DefaultTTL)

	// Initialize handlers
	tokenHandler := handlers.NewTokenHandler(tokenFlow, cfg.Server.RequestTimeout)

	r := router.NewFiberRouter(cfg.Server, cfg.Metrics, cfg.Deployment.Version, tokenHandler, pool)

	return &Application{
		router:    r,
		config:    cfg,
		pool:      pool,
		cache:     rc,
		stopFuncs: stopFuncs,
	}, nil
}
