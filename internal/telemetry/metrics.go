package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"congress-digest/internal/summarizer"

	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics. With metrics disabled every
// instrument is a no-op and Handler reports 503.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	registry *prom.Registry

	RequestCounter     metric.Int64Counter
	RequestDuration    metric.Float64Histogram
	Summaries          metric.Int64Counter
	SummaryDuration    metric.Float64Histogram
	ChunkCacheLookups  metric.Int64Counter
	Generations        metric.Int64Counter
	GenerationDuration metric.Float64Histogram
	RecordsIngested    metric.Int64Counter
}

// InitMetrics initializes all application metrics behind a Prometheus
// exporter with its own registry.
func InitMetrics(enabled bool) (*Metrics, error) {
	m := &Metrics{}
	var meter metric.Meter
	if enabled {
		registry := prom.NewRegistry()
		exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Prometheus exporter: %w", err)
		}
		m.registry = registry
		m.provider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
		otel.SetMeterProvider(m.provider)
		meter = m.provider.Meter("congress-digest")
	} else {
		meter = noop.NewMeterProvider().Meter("congress-digest")
	}

	var err error
	if m.RequestCounter, err = meter.Int64Counter(
		"http.requests",
		metric.WithDescription("Total HTTP requests"),
	); err != nil {
		return nil, err
	}
	if m.RequestDuration, err = meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.Summaries, err = meter.Int64Counter(
		"summarizer.documents",
		metric.WithDescription("Document summarizations by outcome"),
	); err != nil {
		return nil, err
	}
	if m.SummaryDuration, err = meter.Float64Histogram(
		"summarizer.document.duration",
		metric.WithDescription("Document summarization duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.ChunkCacheLookups, err = meter.Int64Counter(
		"summarizer.chunk_cache.lookups",
		metric.WithDescription("Chunk cache lookups by result"),
	); err != nil {
		return nil, err
	}
	if m.Generations, err = meter.Int64Counter(
		"summarizer.generations",
		metric.WithDescription("Text generation calls by result"),
	); err != nil {
		return nil, err
	}
	if m.GenerationDuration, err = meter.Float64Histogram(
		"summarizer.generation.duration",
		metric.WithDescription("Text generation call duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.RecordsIngested, err = meter.Int64Counter(
		"poller.records",
		metric.WithDescription("Congressional Record issues seen by the poller"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.provider != nil {
		return m.provider.Shutdown(ctx)
	}
	return nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	)

	m.RequestCounter.Add(context.Background(), 1, attrs)
	m.RequestDuration.Record(context.Background(), duration, attrs)
}

// GinMiddleware records every request by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// RecordIngested counts poller upserts.
func (m *Metrics) RecordIngested(created bool) {
	m.RecordsIngested.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("created", created)))
}

// ChunkCacheLookup implements summarizer.Recorder.
func (m *Metrics) ChunkCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ChunkCacheLookups.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

// Generation implements summarizer.Recorder.
func (m *Metrics) Generation(success bool, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.Generations.Add(context.Background(), 1, attrs)
	m.GenerationDuration.Record(context.Background(), elapsed.Seconds(), attrs)
}

// Summary implements summarizer.Recorder.
func (m *Metrics) Summary(kind summarizer.Kind, fromCache bool, elapsed time.Duration) {
	outcome := string(kind)
	if outcome == "" {
		outcome = "success"
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("from_cache", fromCache),
	)
	m.Summaries.Add(context.Background(), 1, attrs)
	m.SummaryDuration.Record(context.Background(), elapsed.Seconds(), attrs)
}

var _ summarizer.Recorder = (*Metrics)(nil)
