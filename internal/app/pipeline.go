// Package app wires the summarization pipeline shared by the API server and
// the background worker.
package app

import (
	"context"
	"fmt"

	"congress-digest/internal/ai"
	"congress-digest/internal/cache"
	"congress-digest/internal/config"
	"congress-digest/internal/logger"
	"congress-digest/internal/source"
	"congress-digest/internal/summarizer"
	"congress-digest/services"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Pipeline is everything needed to summarize records.
type Pipeline struct {
	Orchestrator *summarizer.Orchestrator
	Fetcher      *source.HTTPFetcher
	Records      *services.RecordService
	Summaries    *services.SummaryService
	Exports      *services.ExportService

	gemini *ai.GeminiClient
}

// NewPipeline builds the pipeline on the given clients. rdb may be nil.
func NewPipeline(ctx context.Context, cfg *config.Config, db *mongo.Database, rdb *redis.Client, recorder summarizer.Recorder) (*Pipeline, error) {
	store, err := cache.New(cfg, db, rdb)
	if err != nil {
		return nil, err
	}

	gemini, err := ai.NewGeminiClient(ctx, ai.GeminiOptions{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeminiModel,
		Temperature: cfg.GeminiTemperature,
		Tier:        cfg.GeminiTier,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	fetcher := source.NewHTTPFetcher(cfg)
	opts := []summarizer.Option{
		summarizer.WithMaxWords(cfg.ChunkMaxWords),
		summarizer.WithConcurrency(cfg.SummaryConcurrency),
		summarizer.WithSeparator(cfg.SummarySeparator),
		summarizer.WithChunkTimeout(cfg.SummaryChunkTimeout),
		summarizer.WithRetry(cfg.SummaryRetryAttempts, 0),
		summarizer.WithLogger(logger.With("component", "summarizer")),
	}
	if recorder != nil {
		opts = append(opts, summarizer.WithRecorder(recorder))
	}

	orchestrator := summarizer.NewOrchestrator(
		store,
		store,
		summarizer.NewPromptSummarizer(gemini, summarizer.RecordPrompt),
		fetcher,
		source.NewPDFExtractor(),
		opts...,
	)

	records := services.NewRecordService(db.Collection(config.RecordsCollection))

	logger.Info("Summarization pipeline ready",
		"cache_backend", cfg.CacheBackend,
		"redis_front", rdb != nil,
		"max_words", cfg.ChunkMaxWords,
		"concurrency", cfg.SummaryConcurrency,
		"model", cfg.GeminiModel,
	)

	return &Pipeline{
		Orchestrator: orchestrator,
		Fetcher:      fetcher,
		Records:      records,
		Summaries:    services.NewSummaryService(records, orchestrator),
		Exports:      services.NewExportService(records),
		gemini:       gemini,
	}, nil
}

func (p *Pipeline) Close() error {
	return p.gemini.Close()
}
