package routes

import (
	"context"
	"log/slog"
	"net/url"

	"congress-digest/internal/logger"
	"congress-digest/internal/summarizer"
	"congress-digest/models"

	"github.com/gin-gonic/gin"
)

// SummaryRunner runs the summarization pipeline for API requests.
type SummaryRunner interface {
	SummarizeRequest(ctx context.Context, req *models.SummarizeRequest, emitter summarizer.Emitter) (*summarizer.Result, error)
	RecordRequest(ctx context.Context, docID string, maxWords int) (summarizer.Request, error)
	Summarize(ctx context.Context, req summarizer.Request, emitter summarizer.Emitter) (*summarizer.Result, error)
}

// LocatorChecker validates document locators before any work starts.
type LocatorChecker interface {
	CheckLocator(locator string) (*url.URL, error)
}

// RecordReader serves record searches and lookups.
type RecordReader interface {
	List(ctx context.Context, f *models.RecordFilter) (*models.RecordList, error)
	Get(ctx context.Context, docID string) (*models.Record, error)
}

// RecordExporter renders record searches as files.
type RecordExporter interface {
	Export(ctx context.Context, f *models.RecordFilter, format string) ([]byte, string, error)
}

// SummaryQueue enqueues background summarizations.
type SummaryQueue interface {
	EnqueueSummarize(ctx context.Context, docID string, maxWords int, queue string) (string, error)
}

// API bundles the services behind the HTTP routes. Queue may be nil when
// Redis is not configured; the async endpoint then answers 503.
type API struct {
	Summaries       SummaryRunner
	Locators        LocatorChecker
	Records         RecordReader
	Exports         RecordExporter
	Queue           SummaryQueue
	DefaultMaxWords int
}

// requestLogger returns the logger tagged by the request id middleware.
func requestLogger(c *gin.Context) *slog.Logger {
	if l, ok := c.Get("logger"); ok {
		if log, ok := l.(*slog.Logger); ok {
			return log
		}
	}
	return logger.With()
}
