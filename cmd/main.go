package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"congress-digest/internal/app"
	"congress-digest/internal/config"
	"congress-digest/internal/congress"
	"congress-digest/internal/logger"
	"congress-digest/internal/poller"
	"congress-digest/internal/queue"
	"congress-digest/internal/telemetry"
	"congress-digest/middleware"
	"congress-digest/routes"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg.GinMode)

	ctx := context.Background()

	if cfg.TracingEnabled {
		shutdownTracer, err := telemetry.InitTracer(ctx, "congress-digest", cfg.OTLPEndpoint, 1.0)
		if err != nil {
			logger.Warn("Tracing disabled", "error", err)
		} else {
			defer shutdownTracer()
		}
	}

	metrics, err := telemetry.InitMetrics(cfg.MetricsEnabled)
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}
	defer metrics.Shutdown(context.Background())

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Redis is optional: without it the cache is Mongo only, rate limiting is
	// off and async summarization is unavailable.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = config.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, continuing without it", "error", err)
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	pipeline, err := app.NewPipeline(ctx, cfg, db, rdb, metrics)
	if err != nil {
		log.Fatal("Failed to build summarization pipeline:", err)
	}
	defer pipeline.Close()

	api := &routes.API{
		Summaries:       pipeline.Summaries,
		Locators:        pipeline.Fetcher,
		Records:         pipeline.Records,
		Exports:         pipeline.Exports,
		DefaultMaxWords: cfg.ChunkMaxWords,
	}

	var enqueuer *queue.Enqueuer
	if rdb != nil {
		connOpt, err := queue.RedisConnOpt(cfg)
		if err != nil {
			log.Fatal("Failed to configure task queue:", err)
		}
		enqueuer = queue.NewEnqueuer(connOpt)
		defer enqueuer.Close()
		api.Queue = enqueuer
	}

	if cfg.PollEnabled {
		opts := poller.Options{
			PageSize: cfg.PollPageSize,
			MaxPages: cfg.PollMaxPages,
			Recorder: metrics,
		}
		if cfg.AutoSummarize && enqueuer != nil {
			opts.Queue = enqueuer
		}
		p := poller.New(congress.NewClient(cfg), pipeline.Records, opts)

		scheduler := poller.NewScheduler()
		if err := p.Schedule(scheduler, cfg.PollCron); err != nil {
			log.Fatal("Failed to schedule record poller:", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("Record poller scheduled", "cron", cfg.PollCron, "auto_summarize", opts.Queue != nil)
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware(), middleware.EnrichTrace())
	}
	router.Use(metrics.GinMiddleware())
	router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.MaxRequestSize))
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitReqs, time.Duration(cfg.RateLimitWindow)*time.Second))
	}

	checks := []routes.HealthCheck{{
		Name:     "mongo",
		Required: true,
		Ping:     func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
	}}
	if rdb != nil {
		checks = append(checks, routes.HealthCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = metrics.Handler()
	}

	routes.SetupHealthRoutes(router, metricsHandler, checks...)
	routes.SetupSummaryRoutes(router, api)
	routes.SetupRecordRoutes(router, api)

	// Streaming summaries can run for many minutes, so there is no write
	// timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
