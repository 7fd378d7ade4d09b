package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/scoutline/orchestrator/internal/browseruse"
	"github.com/scoutline/orchestrator/internal/config"
	"github.com/scoutline/orchestrator/internal/db"
	"github.com/scoutline/orchestrator/internal/discovery"
	"github.com/scoutline/orchestrator/internal/firecrawl"
	"github.com/scoutline/orchestrator/internal/health"
	"github.com/scoutline/orchestrator/internal/httpapi"
	"github.com/scoutline/orchestrator/internal/tracing"
	"github.com/scoutline/orchestrator/internal/workflows"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Root context for background services; cancelled on SIGINT/SIGTERM so
	// in-flight pipelines observe shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	dbClient, err := db.NewClient(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database client", zap.Error(err))
	}
	defer dbClient.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := pingWithTimeout(ctx, redisClient); err != nil {
		// The lookup cache is an optimization; lookups fall through to the
		// search API while redis is unreachable.
		logger.Warn("Redis unreachable at startup", zap.Error(err))
	}

	browserClient, err := browseruse.NewClient(cfg.BrowserUse, logger)
	if err != nil {
		logger.Fatal("Failed to initialize browser automation client", zap.Error(err))
	}
	firecrawlClient, err := firecrawl.NewClient(cfg.Firecrawl, logger)
	if err != nil {
		logger.Fatal("Failed to initialize search client", zap.Error(err))
	}
	devpostResolver := firecrawl.NewDevpostResolver(firecrawlClient, redisClient, cfg.Redis.CacheTTL, logger)

	crawler, err := discovery.NewCrawler(cfg.Discovery, logger)
	if err != nil {
		logger.Fatal("Failed to initialize discovery crawler", zap.Error(err))
	}

	executor := workflows.NewExecutor(dbClient, browserClient, logger)
	processor := workflows.NewProcessor(dbClient, executor, browserClient, firecrawlClient, devpostResolver, logger)
	pipeline := workflows.NewPipeline(dbClient, crawler, processor, logger)

	healthManager := health.NewManager(logger)
	healthManager.Register("postgres", dbClient.Ping)
	healthManager.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	mux := http.NewServeMux()
	api := httpapi.NewServer(ctx, dbClient, pipeline, httpapi.Options{
		DefaultConcurrency: cfg.Workflow.DefaultConcurrency,
		MaxConcurrency:     cfg.Workflow.MaxConcurrency,
		DefaultTotalPages:  cfg.Workflow.DefaultTotalPages,
	}, logger)
	api.Register(mux)
	healthManager.RegisterRoutes(mux)

	// Websocket streams stay open indefinitely, so no write timeout here.
	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Service.Port))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server failed", zap.Error(err))
			stop()
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Service.MetricsPort),
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Metrics server listening", zap.Int("port", cfg.Service.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics server shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	return zapConfig.Build()
}

func pingWithTimeout(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return client.Ping(pingCtx).Err()
}
