package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"congress-digest/internal/logger"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxWords  = 10000
	DefaultSeparator = "\n\n"

	cacheWriteTimeout = 10 * time.Second
)

// Fetcher retrieves the raw bytes behind a document locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// Extractor turns fetched bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Recorder receives pipeline measurements. All methods must be cheap.
type Recorder interface {
	ChunkCacheLookup(hit bool)
	Generation(success bool, elapsed time.Duration)
	Summary(kind Kind, fromCache bool, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ChunkCacheLookup(bool)             {}
func (nopRecorder) Generation(bool, time.Duration)    {}
func (nopRecorder) Summary(Kind, bool, time.Duration) {}

// Request identifies the document to summarize.
type Request struct {
	DocID   string
	Locator string
	// MaxWords overrides the orchestrator's split size when positive.
	MaxWords int
}

// Result is the outcome of one document summarization.
type Result struct {
	DocID          string `json:"documentIdentity"`
	Summary        string `json:"summary"`
	TotalChunks    int    `json:"totalChunks"`
	CachedChunks   int    `json:"cachedChunks"`
	ComputedChunks int    `json:"computedChunks"`
	FromCache      bool   `json:"fromCache"`
	PromptVersion  string `json:"promptVersion,omitempty"`
	// ChunkCacheWriteFailures counts computed chunks whose summary could not
	// be stored, so a retry will pay for them again.
	ChunkCacheWriteFailures int `json:"chunkCacheWriteFailures,omitempty"`
	// CacheWarning is set when part of the result could not be cached.
	CacheWarning string `json:"cacheWarning,omitempty"`
}

type options struct {
	maxWords        int
	concurrency     int
	separator       string
	chunkTimeout    time.Duration
	retryAttempts   int
	retryBase       time.Duration
	retryMaxBackoff time.Duration
	promptVersion   string
	recorder        Recorder
	log             *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*options)

// WithMaxWords sets the default chunk size in words.
func WithMaxWords(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxWords = n
		}
	}
}

// WithConcurrency bounds how many chunks are summarized at once. 1 processes
// chunks strictly one after another.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func WithSeparator(sep string) Option {
	return func(o *options) {
		if sep != "" {
			o.separator = sep
		}
	}
}

// WithChunkTimeout caps each individual generation call.
func WithChunkTimeout(d time.Duration) Option {
	return func(o *options) { o.chunkTimeout = d }
}

// WithRetry retries a failed chunk up to attempts more times with exponential
// backoff starting at base.
func WithRetry(attempts int, base time.Duration) Option {
	return func(o *options) {
		if attempts >= 0 {
			o.retryAttempts = attempts
		}
		if base > 0 {
			o.retryBase = base
		}
	}
}

func WithPromptVersion(v string) Option {
	return func(o *options) { o.promptVersion = v }
}

func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Orchestrator drives one document through cache lookup, fetch, extraction,
// splitting, per-chunk summarization and assembly.
type Orchestrator struct {
	docs       DocumentCache
	chunks     ChunkCache
	summarizer ChunkSummarizer
	fetcher    Fetcher
	extractor  Extractor
	opts       options

	mu      sync.Mutex
	flights map[string]*flight
}

func NewOrchestrator(docs DocumentCache, chunks ChunkCache, summarizer ChunkSummarizer, fetcher Fetcher, extractor Extractor, opts ...Option) *Orchestrator {
	o := options{
		maxWords:        DefaultMaxWords,
		concurrency:     1,
		separator:       DefaultSeparator,
		retryAttempts:   2,
		retryBase:       time.Second,
		retryMaxBackoff: 30 * time.Second,
		recorder:        nopRecorder{},
	}
	if v, ok := summarizer.(interface{ PromptVersion() string }); ok {
		o.promptVersion = v.PromptVersion()
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.With("component", "summarizer")
	}

	return &Orchestrator{
		docs:       docs,
		chunks:     chunks,
		summarizer: summarizer,
		fetcher:    fetcher,
		extractor:  extractor,
		opts:       o,
		flights:    make(map[string]*flight),
	}
}

// MaxWords reports the default split size.
func (o *Orchestrator) MaxWords() int { return o.opts.maxWords }

// SummarizeDocument returns the summary of req.DocID, computing whatever is
// not cached yet. Events are sent to emitter when it is not nil. Concurrent
// calls for the same document share one computation; it is canceled only
// once every caller has gone away.
func (o *Orchestrator) SummarizeDocument(ctx context.Context, req Request, emitter Emitter) (*Result, error) {
	req.DocID = strings.TrimSpace(req.DocID)
	req.Locator = strings.TrimSpace(req.Locator)
	if req.DocID == "" {
		return nil, fmt.Errorf("%w: document identity is required", ErrInvalidRequest)
	}
	if req.Locator == "" {
		return nil, fmt.Errorf("%w: document locator is required", ErrInvalidRequest)
	}
	if req.MaxWords <= 0 {
		req.MaxWords = o.opts.maxWords
	}

	key := fmt.Sprintf("%s|w%d", req.DocID, req.MaxWords)

	o.mu.Lock()
	f, ok := o.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = newFlight(cancel, o.opts.log.With("doc_id", req.DocID))
		o.flights[key] = f
		go o.runFlight(fctx, key, f, req)
	}
	sub := f.subscribe(emitter)
	o.mu.Unlock()

	select {
	case <-f.done:
	case <-ctx.Done():
		o.leave(key, f, sub)
		sub.abandon()
		<-sub.drained
		return nil, ctx.Err()
	}

	// Return only after the terminal event reached the emitter.
	select {
	case <-sub.drained:
		return f.result, f.err
	case <-ctx.Done():
		sub.abandon()
		<-sub.drained
		return f.result, f.err
	}
}

func (o *Orchestrator) leave(key string, f *flight, sub *subscriber) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if f.unsubscribe(sub) {
		// Nobody is waiting any more: stop issuing chunk calls. Chunks already
		// summarized stay cached for the next attempt.
		if o.flights[key] == f {
			delete(o.flights, key)
		}
		f.cancel()
	}
}

func (o *Orchestrator) runFlight(ctx context.Context, key string, f *flight, req Request) {
	start := time.Now()
	result, err := o.run(ctx, req, f.publish)

	o.opts.recorder.Summary(KindOf(err), result != nil && result.FromCache, time.Since(start))

	o.mu.Lock()
	if o.flights[key] == f {
		delete(o.flights, key)
	}
	o.mu.Unlock()

	f.finish(result, err)
}

func (o *Orchestrator) run(ctx context.Context, req Request, publish func(Event)) (*Result, error) {
	ctx, span := otel.Tracer("congress-digest/summarizer").Start(ctx, "summarizer.summarize_document")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.id", req.DocID),
		attribute.Int("summarizer.max_words", req.MaxWords),
	)

	log := o.opts.log.With("doc_id", req.DocID)
	result, err := o.pipeline(ctx, req, publish, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		log.Error("document summarization failed", "kind", KindOf(err), "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("summarizer.from_cache", result.FromCache),
		attribute.Int("summarizer.total_chunks", result.TotalChunks),
		attribute.Int("summarizer.cached_chunks", result.CachedChunks),
	)
	return result, nil
}

func (o *Orchestrator) pipeline(ctx context.Context, req Request, publish func(Event), log *slog.Logger) (*Result, error) {
	entry, ok, err := o.docs.GetSummary(ctx, req.DocID)
	switch {
	case err != nil:
		// Fail open: an unreachable cache must not block summarization.
		log.Warn("document cache lookup failed, recomputing", "error", err)
	case ok && strings.TrimSpace(entry.Summary) != "":
		log.Debug("document cache hit")
		publish(startEvent(entry.TotalChunks))
		return &Result{
			DocID:         req.DocID,
			Summary:       entry.Summary,
			TotalChunks:   entry.TotalChunks,
			CachedChunks:  entry.TotalChunks,
			FromCache:     true,
			PromptVersion: entry.PromptVersion,
		}, nil
	}

	data, err := o.fetcher.Fetch(ctx, req.Locator)
	if err != nil {
		return nil, fetchError(err)
	}

	text, err := o.extractor.Extract(ctx, data)
	if err != nil {
		return nil, extractError(err)
	}

	chunks, err := Split(text, req.MaxWords)
	if err != nil {
		return nil, err
	}
	log.Info("document split", "chunks", len(chunks), "max_words", req.MaxWords, "bytes", len(data))
	publish(startEvent(len(chunks)))

	results, err := o.summarizeChunks(ctx, req, chunks, publish, log)
	if err != nil {
		return nil, err
	}

	result := &Result{
		DocID:         req.DocID,
		Summary:       Assemble(results, o.opts.separator),
		TotalChunks:   len(chunks),
		PromptVersion: o.opts.promptVersion,
	}
	var warnings []string
	var storeErr error
	for _, r := range results {
		if r.Cached {
			result.CachedChunks++
		} else {
			result.ComputedChunks++
		}
		if r.storeErr != nil {
			result.ChunkCacheWriteFailures++
			if storeErr == nil {
				storeErr = r.storeErr
			}
		}
	}
	if storeErr != nil {
		warnings = append(warnings, fmt.Sprintf("%d chunk summaries not cached: %v",
			result.ChunkCacheWriteFailures, CacheError(storeErr)))
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()
	err = o.docs.PutSummary(wctx, req.DocID, DocumentEntry{
		Summary:       result.Summary,
		PromptVersion: o.opts.promptVersion,
		SplitWords:    req.MaxWords,
		TotalChunks:   len(chunks),
	})
	if err != nil {
		// The caller still gets the fresh summary; the next request recomputes
		// the assembly from cached chunks.
		log.Error("document cache write failed", "error", err)
		warnings = append(warnings, CacheError(err).Error())
	}
	result.CacheWarning = strings.Join(warnings, "; ")

	log.Info("document summarized",
		"chunks", result.TotalChunks,
		"cached_chunks", result.CachedChunks,
		"computed_chunks", result.ComputedChunks,
	)
	return result, nil
}

// summarizeChunks processes chunks with at most opts.concurrency in flight and
// publishes each result as soon as every lower index has been published.
// The first failure stops new chunks from starting.
func (o *Orchestrator) summarizeChunks(ctx context.Context, req Request, chunks []string, publish func(Event), log *slog.Logger) ([]ChunkResult, error) {
	n := len(chunks)
	results := make([]ChunkResult, n)
	ready := make([]bool, n)
	next := 0
	var mu sync.Mutex

	complete := func(r ChunkResult) {
		mu.Lock()
		defer mu.Unlock()
		results[r.Index] = r
		ready[r.Index] = true
		for next < n && ready[next] {
			publish(chunkEvent(results[next]))
			next++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.concurrency)
	for i, text := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r, err := o.summarizeChunk(gctx, req, i, text, log)
			if err != nil {
				return err
			}
			complete(r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func (o *Orchestrator) summarizeChunk(ctx context.Context, req Request, index int, text string, log *slog.Logger) (ChunkResult, error) {
	if err := ctx.Err(); err != nil {
		return ChunkResult{}, &ChunkError{Index: index, Err: err}
	}

	key := ChunkKey{DocID: req.DocID, Index: index, SplitWords: req.MaxWords}
	digest := Digest(text)
	log = log.With("chunk", index)

	entry, ok, err := o.chunks.GetChunk(ctx, key)
	switch {
	case err != nil:
		log.Warn("chunk cache lookup failed, recomputing", "error", err)
	case ok && entry.Summary != "" && (entry.SourceDigest == "" || entry.SourceDigest == digest):
		o.opts.recorder.ChunkCacheLookup(true)
		return ChunkResult{Index: index, Summary: entry.Summary, Cached: true}, nil
	case ok:
		log.Warn("cached chunk does not match source text, recomputing")
	}
	o.opts.recorder.ChunkCacheLookup(false)

	summary, err := o.generate(ctx, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ChunkResult{}, &ChunkError{Index: index, Err: ctxErr}
		}
		return ChunkResult{}, &ChunkError{Index: index, Err: SummarizationError(err)}
	}

	// Write with a detached context: a summary we already paid for is kept
	// even if the request was canceled meanwhile.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()
	err = o.chunks.PutChunk(wctx, key, ChunkEntry{
		Summary:       summary,
		SourceDigest:  digest,
		PromptVersion: o.opts.promptVersion,
	})
	if err != nil {
		log.Error("chunk cache write failed", "error", err)
	}

	return ChunkResult{Index: index, Summary: summary, storeErr: err}, nil
}

func (o *Orchestrator) generate(ctx context.Context, text string) (string, error) {
	backoff := retry.WithCappedDuration(o.opts.retryMaxBackoff, retry.NewExponential(o.opts.retryBase))
	backoff = retry.WithMaxRetries(uint64(o.opts.retryAttempts), backoff)

	var summary string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx := ctx
		if o.opts.chunkTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, o.opts.chunkTimeout)
			defer cancel()
		}

		start := time.Now()
		out, err := o.summarizer.Summarize(callCtx, text)
		o.opts.recorder.Generation(err == nil, time.Since(start))
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		summary = out
		return nil
	})
	return summary, err
}
