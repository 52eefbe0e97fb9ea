package main

import (
	"context"
	"log"
	"time"

	"congress-digest/internal/app"
	"congress-digest/internal/config"
	"congress-digest/internal/logger"
	"congress-digest/internal/queue"
	"congress-digest/internal/summarizer"
	"congress-digest/internal/telemetry"

	"github.com/hibiken/asynq"
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
		shutdownTracer, err := telemetry.InitTracer(ctx, "congress-digest-worker", cfg.OTLPEndpoint, 1.0)
		if err != nil {
			logger.Warn("Tracing disabled", "error", err)
		} else {
			defer shutdownTracer()
		}
	}

	// The worker exposes no /metrics endpoint; instruments are no-ops.
	metrics, err := telemetry.InitMetrics(false)
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	// The queue lives in Redis, so unlike the API server the worker needs it.
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	pipeline, err := app.NewPipeline(ctx, cfg, mongoClient.Database(cfg.DBName), rdb, metrics)
	if err != nil {
		log.Fatal("Failed to build summarization pipeline:", err)
	}
	defer pipeline.Close()

	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure task queue:", err)
	}

	concurrency := max(1, cfg.WorkerConcurrency)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queue.QueueDefault: 3, // API requests
				queue.QueueLow:     1, // poller backfill
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error("Task failed",
					"type", task.Type(),
					"kind", summarizer.KindOf(err),
					"retry", retried,
					"max_retry", maxRetry,
					"error", err,
				)
			}),
			Logger: newAsynqLogger(),
		},
	)

	mux := queue.NewServeMux(queue.NewTaskProcessor(pipeline.Summaries))

	logger.Info("Starting Asynq worker",
		"concurrency", concurrency,
		"queues", []string{queue.QueueDefault, queue.QueueLow},
		"redis", redisOpt.Addr,
	)

	// Run blocks until SIGTERM/SIGINT and then drains in-flight tasks.
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
