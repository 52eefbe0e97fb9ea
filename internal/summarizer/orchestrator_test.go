package summarizer_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"congress-digest/internal/cache"
	"congress-digest/internal/summarizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tenWords splits into five chunks of two words at maxWords=2.
const tenWords = "w0 w1 w2 w3 w4 w5 w6 w7 w8 w9"

type textFetcher struct {
	mu    sync.Mutex
	texts map[string]string
	calls int
}

func (f *textFetcher) Fetch(_ context.Context, locator string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	text, ok := f.texts[locator]
	if !ok {
		return nil, fmt.Errorf("no such document %q", locator)
	}
	return []byte(text), nil
}

type plainExtractor struct{}

func (plainExtractor) Extract(_ context.Context, data []byte) (string, error) {
	return string(data), nil
}

// recordingSummarizer returns "S(<chunk>)" unless fn overrides it, and
// remembers every chunk it was asked about.
type recordingSummarizer struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, text string) (string, error)
}

func (s *recordingSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	fn := s.fn
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return "S(" + text + ")", nil
}

func (s *recordingSummarizer) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func chunkOf(i int) string {
	return fmt.Sprintf("w%d w%d", 2*i, 2*i+1)
}

type harness struct {
	orch    *summarizer.Orchestrator
	store   *cache.Memory
	fetcher *textFetcher
	sum     *recordingSummarizer
}

func newHarness(t *testing.T, sum *recordingSummarizer, opts ...summarizer.Option) *harness {
	t.Helper()
	store := cache.NewMemory()
	fetcher := &textFetcher{texts: map[string]string{
		"doc-a.pdf": tenWords,
		"doc-b.pdf": "b0 b1 b2",
		"empty.pdf": "   ",
	}}
	opts = append([]summarizer.Option{
		summarizer.WithMaxWords(2),
		summarizer.WithRetry(0, time.Millisecond),
	}, opts...)

	return &harness{
		orch:    summarizer.NewOrchestrator(store, store, sum, fetcher, plainExtractor{}, opts...),
		store:   store,
		fetcher: fetcher,
		sum:     sum,
	}
}

func decodeEvents(t *testing.T, raw []byte) []map[string]any {
	t.Helper()
	var events []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), "line %q", sc.Text())
		events = append(events, ev)
	}
	require.NoError(t, sc.Err())
	return events
}

func TestSummarizeAssemblesInOrder(t *testing.T) {
	h := newHarness(t, &recordingSummarizer{})

	res, err := h.orch.SummarizeDocument(context.Background(), summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, nil)
	require.NoError(t, err)

	want := make([]string, 5)
	for i := range want {
		want[i] = "S(" + chunkOf(i) + ")"
	}
	assert.Equal(t, strings.Join(want, "\n\n"), res.Summary)
	assert.Equal(t, 5, res.TotalChunks)
	assert.Equal(t, 5, res.ComputedChunks)
	assert.False(t, res.FromCache)

	entry, ok, err := h.store.GetSummary(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.Summary, entry.Summary)
	assert.Equal(t, 2, entry.SplitWords)
}

func TestSecondRequestMakesNoGenerationCalls(t *testing.T) {
	h := newHarness(t, &recordingSummarizer{})
	req := summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}

	first, err := h.orch.SummarizeDocument(context.Background(), req, nil)
	require.NoError(t, err)
	calls := len(h.sum.called())
	fetches := h.fetcher.calls

	second, err := h.orch.SummarizeDocument(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Summary, second.Summary)
	assert.True(t, second.FromCache)
	assert.Len(t, h.sum.called(), calls)
	assert.Equal(t, fetches, h.fetcher.calls, "document cache hit must not fetch")
}

func TestCachedChunkIsNotRecomputed(t *testing.T) {
	h := newHarness(t, &recordingSummarizer{})
	ctx := context.Background()

	key := summarizer.ChunkKey{DocID: "a", Index: 2, SplitWords: 2}
	require.NoError(t, h.store.PutChunk(ctx, key, summarizer.ChunkEntry{
		Summary:      "CACHED",
		SourceDigest: summarizer.Digest(chunkOf(2)),
	}))

	res, err := h.orch.SummarizeDocument(ctx, summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{chunkOf(0), chunkOf(1), chunkOf(3), chunkOf(4)}, h.sum.called())
	assert.Contains(t, res.Summary, "S("+chunkOf(1)+")\n\nCACHED\n\nS("+chunkOf(3)+")")
	assert.Equal(t, 1, res.CachedChunks)
	assert.Equal(t, 4, res.ComputedChunks)
}

func TestStaleCachedChunkIsRecomputed(t *testing.T) {
	h := newHarness(t, &recordingSummarizer{})
	ctx := context.Background()

	key := summarizer.ChunkKey{DocID: "a", Index: 0, SplitWords: 2}
	require.NoError(t, h.store.PutChunk(ctx, key, summarizer.ChunkEntry{
		Summary:      "OLD",
		SourceDigest: summarizer.Digest("some other text"),
	}))

	res, err := h.orch.SummarizeDocument(ctx, summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, nil)
	require.NoError(t, err)
	assert.NotContains(t, res.Summary, "OLD")
	assert.Len(t, h.sum.called(), 5)
}

func TestChunkSizeOverrideUsesSeparateEntries(t *testing.T) {
	h := newHarness(t, &recordingSummarizer{})
	ctx := context.Background()

	_, err := h.orch.SummarizeDocument(ctx, summarizer.Request{DocID: "a", Locator: "doc-a.pdf", MaxWords: 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"w0 w1 w2 w3 w4", "w5 w6 w7 w8 w9"}, h.sum.called())

	_, ok, err := h.store.GetChunk(ctx, summarizer.ChunkKey{DocID: "a", Index: 0, SplitWords: 2})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailureKeepsCompletedChunksAndResumes(t *testing.T) {
	failing := &recordingSummarizer{fn: func(_ context.Context, text string) (string, error) {
		if text == chunkOf(3) {
			return "", summarizer.SummarizationError(errors.New("upstream 503: overloaded"))
		}
		return "S(" + text + ")", nil
	}}
	h := newHarness(t, failing)
	ctx := context.Background()
	req := summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}

	_, err := h.orch.SummarizeDocument(ctx, req, nil)
	require.Error(t, err)
	assert.Equal(t, summarizer.KindSummarization, summarizer.KindOf(err))
	assert.Contains(t, err.Error(), "upstream 503: overloaded")

	var chunkErr *summarizer.ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 3, chunkErr.Index)

	for i := 0; i < 3; i++ {
		_, ok, err := h.store.GetChunk(ctx, summarizer.ChunkKey{DocID: "a", Index: i, SplitWords: 2})
		require.NoError(t, err)
		assert.True(t, ok, "chunk %d should be cached", i)
	}
	_, ok, err := h.store.GetSummary(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "a failed run must not store a document summary")

	h.sum.mu.Lock()
	h.sum.fn = nil
	h.sum.calls = nil
	h.sum.mu.Unlock()

	res, err := h.orch.SummarizeDocument(ctx, req, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{chunkOf(3), chunkOf(4)}, h.sum.called())
	assert.Equal(t, 3, res.CachedChunks)
}

func TestRetryRecoversTransientFailure(t *testing.T) {
	var mu sync.Mutex
	failures := map[string]int{}
	sum := &recordingSummarizer{fn: func(_ context.Context, text string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if text == chunkOf(1) && failures[text] == 0 {
			failures[text]++
			return "", errors.New("timeout")
		}
		return "S(" + text + ")", nil
	}}
	h := newHarness(t, sum, summarizer.WithRetry(2, time.Millisecond))

	res, err := h.orch.SummarizeDocument(context.Background(), summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.TotalChunks)
	assert.Len(t, h.sum.called(), 6)
}

func TestFetchAndExtractErrorsAreClassified(t *testing.T) {
	h := newHarness(t, &recordingSummarizer{})

	_, err := h.orch.SummarizeDocument(context.Background(), summarizer.Request{DocID: "x", Locator: "missing.pdf"}, nil)
	assert.ErrorIs(t, err, summarizer.ErrFetch)
	assert.Empty(t, h.sum.called())

	_, err = h.orch.SummarizeDocument(context.Background(), summarizer.Request{DocID: "", Locator: "doc-a.pdf"}, nil)
	assert.ErrorIs(t, err, summarizer.ErrInvalidRequest)
}

func TestEmptyDocumentYieldsEmptySummary(t *testing.T) {
	h := newHarness(t, &recordingSummarizer{})
	var buf bytes.Buffer

	res, err := h.orch.SummarizeDocument(context.Background(), summarizer.Request{DocID: "e", Locator: "empty.pdf"}, summarizer.NewNDJSONEmitter(&buf))
	require.NoError(t, err)
	assert.Equal(t, "", res.Summary)
	assert.Zero(t, res.TotalChunks)
	assert.Empty(t, h.sum.called())

	events := decodeEvents(t, buf.Bytes())
	require.Len(t, events, 2)
	assert.Equal(t, "start", events[0]["type"])
	assert.EqualValues(t, 0, events[0]["totalChunks"])
	assert.Equal(t, "done", events[1]["type"])
}

func TestStreamEvents(t *testing.T) {
	h := newHarness(t, &recordingSummarizer{})
	var buf bytes.Buffer

	res, err := h.orch.SummarizeDocument(context.Background(), summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, summarizer.NewNDJSONEmitter(&buf))
	require.NoError(t, err)

	events := decodeEvents(t, buf.Bytes())
	require.Len(t, events, 7)
	assert.Equal(t, "start", events[0]["type"])
	assert.EqualValues(t, 5, events[0]["totalChunks"])
	for i := 0; i < 5; i++ {
		ev := events[i+1]
		assert.Equal(t, "chunk", ev["type"])
		assert.EqualValues(t, i, ev["index"])
		assert.Equal(t, "S("+chunkOf(i)+")", ev["content"])
	}
	assert.Equal(t, "done", events[6]["type"])
	assert.Equal(t, res.Summary, events[6]["summary"])

	buf.Reset()
	_, err = h.orch.SummarizeDocument(context.Background(), summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, summarizer.NewNDJSONEmitter(&buf))
	require.NoError(t, err)
	events = decodeEvents(t, buf.Bytes())
	require.Len(t, events, 2)
	assert.Equal(t, "start", events[0]["type"])
	assert.EqualValues(t, 5, events[0]["totalChunks"])
	assert.Equal(t, "done", events[1]["type"])
	assert.Equal(t, true, events[1]["cached"])
}

func TestStreamEndsWithErrorRecord(t *testing.T) {
	sum := &recordingSummarizer{fn: func(_ context.Context, text string) (string, error) {
		if text == chunkOf(1) {
			return "", summarizer.SummarizationError(summarizer.ErrEmptyResponse)
		}
		return "S(" + text + ")", nil
	}}
	h := newHarness(t, sum)
	var buf bytes.Buffer

	_, err := h.orch.SummarizeDocument(context.Background(), summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, summarizer.NewNDJSONEmitter(&buf))
	require.Error(t, err)

	events := decodeEvents(t, buf.Bytes())
	require.Len(t, events, 3)
	assert.Equal(t, "start", events[0]["type"])
	assert.Equal(t, "chunk", events[1]["type"])
	last := events[2]
	assert.Equal(t, "error", last["type"])
	assert.Equal(t, "summarization_failure", last["kind"])
	assert.NotEmpty(t, last["error"])
}

func TestConcurrentChunksEmitInIndexOrder(t *testing.T) {
	// Later chunks finish first.
	sum := &recordingSummarizer{fn: func(_ context.Context, text string) (string, error) {
		var a, b int
		_, _ = fmt.Sscanf(text, "w%d w%d", &a, &b)
		time.Sleep(time.Duration(10-a) * 3 * time.Millisecond)
		return "S(" + text + ")", nil
	}}
	h := newHarness(t, sum, summarizer.WithConcurrency(5))

	var (
		mu      sync.Mutex
		indexes []int
	)
	emitter := summarizer.EmitterFunc(func(ev summarizer.Event) error {
		if ev.Type == summarizer.EventChunk {
			mu.Lock()
			indexes = append(indexes, ev.Index)
			mu.Unlock()
		}
		return nil
	})

	res, err := h.orch.SummarizeDocument(context.Background(), summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, emitter)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, indexes)
	assert.True(t, strings.HasPrefix(res.Summary, "S(w0 w1)\n\nS(w2 w3)"))
}

func TestDifferentDocumentsDoNotBlockEachOther(t *testing.T) {
	release := make(chan struct{})
	sum := &recordingSummarizer{fn: func(ctx context.Context, text string) (string, error) {
		if strings.HasPrefix(text, "w") {
			select {
			case <-release:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return "S(" + text + ")", nil
	}}
	h := newHarness(t, sum)
	defer close(release)

	go func() {
		_, _ = h.orch.SummarizeDocument(context.Background(), summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := h.orch.SummarizeDocument(ctx, summarizer.Request{DocID: "b", Locator: "doc-b.pdf"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "S(b0 b1)\n\nS(b2)", res.Summary)
}

func TestStalledStreamDoesNotBlockOtherCallers(t *testing.T) {
	h := newHarness(t, &recordingSummarizer{})
	stalled := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	var once sync.Once
	blocking := summarizer.EmitterFunc(func(summarizer.Event) error {
		once.Do(func() { close(stalled) })
		<-release
		return nil
	})
	go func() {
		_, _ = h.orch.SummarizeDocument(context.Background(), summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, blocking)
	}()

	select {
	case <-stalled:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never started")
	}

	joinDone := make(chan error, 1)
	go func() {
		_, err := h.orch.SummarizeDocument(context.Background(), summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, nil)
		joinDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := h.orch.SummarizeDocument(ctx, summarizer.Request{DocID: "b", Locator: "doc-b.pdf"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "S(b0 b1)\n\nS(b2)", res.Summary)

	// The shared computation itself is not held back by the slow reader.
	select {
	case err := <-joinDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("joiner blocked behind a stalled stream")
	}
}

func TestCanceledCallerStopsReceivingEvents(t *testing.T) {
	release := make(chan struct{})
	sum := &recordingSummarizer{fn: func(_ context.Context, text string) (string, error) {
		if text != chunkOf(0) {
			<-release
		}
		return "S(" + text + ")", nil
	}}
	h := newHarness(t, sum)
	defer close(release)

	var mu sync.Mutex
	var got []summarizer.Event
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := h.orch.SummarizeDocument(ctx, summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, summarizer.EmitterFunc(func(ev summarizer.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, ev)
			return nil
		}))
		errc <- err
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	mu.Lock()
	n := len(got)
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, n)
}

// failingChunkStore rejects every chunk write.
type failingChunkStore struct {
	*cache.Memory
}

func (failingChunkStore) PutChunk(context.Context, summarizer.ChunkKey, summarizer.ChunkEntry) error {
	return errors.New("disk full")
}

func TestChunkCacheWriteFailureIsReported(t *testing.T) {
	store := cache.NewMemory()
	fetcher := &textFetcher{texts: map[string]string{"doc-a.pdf": tenWords}}
	orch := summarizer.NewOrchestrator(store, failingChunkStore{store}, &recordingSummarizer{}, fetcher, plainExtractor{},
		summarizer.WithMaxWords(2), summarizer.WithRetry(0, time.Millisecond))

	res, err := orch.SummarizeDocument(context.Background(), summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.ComputedChunks)
	assert.Equal(t, 5, res.ChunkCacheWriteFailures)
	assert.Contains(t, res.CacheWarning, "5 chunk summaries not cached")
	assert.Contains(t, res.CacheWarning, "disk full")

	_, ok, err := store.GetChunk(context.Background(), summarizer.ChunkKey{DocID: "a", Index: 0, SplitWords: 2})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentRequestsShareOneComputation(t *testing.T) {
	release := make(chan struct{})
	sum := &recordingSummarizer{fn: func(_ context.Context, text string) (string, error) {
		<-release
		return "S(" + text + ")", nil
	}}
	h := newHarness(t, sum)
	req := summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}

	type outcome struct {
		res *summarizer.Result
		err error
	}
	firstDone := make(chan outcome, 1)
	go func() {
		res, err := h.orch.SummarizeDocument(context.Background(), req, nil)
		firstDone <- outcome{res, err}
	}()

	require.Eventually(t, func() bool { return len(h.sum.called()) == 1 }, 2*time.Second, time.Millisecond)

	// The second caller joins the running flight and is replayed its start event.
	joined := make(chan struct{})
	var once sync.Once
	secondDone := make(chan outcome, 1)
	go func() {
		res, err := h.orch.SummarizeDocument(context.Background(), req, summarizer.EmitterFunc(func(ev summarizer.Event) error {
			if ev.Type == summarizer.EventStart {
				once.Do(func() { close(joined) })
			}
			return nil
		}))
		secondDone <- outcome{res, err}
	}()

	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never joined")
	}
	close(release)

	a, b := <-firstDone, <-secondDone
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Equal(t, a.res.Summary, b.res.Summary)
	assert.Len(t, h.sum.called(), 5)
	assert.Equal(t, 1, h.fetcher.calls)
}

func TestCanceledCallerKeepsFinishedChunk(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	sum := &recordingSummarizer{fn: func(_ context.Context, text string) (string, error) {
		if text == chunkOf(1) {
			close(started)
			<-release
		}
		return "S(" + text + ")", nil
	}}
	h := newHarness(t, sum)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := h.orch.SummarizeDocument(ctx, summarizer.Request{DocID: "a", Locator: "doc-a.pdf"}, nil)
		errc <- err
	}()

	<-started
	cancel()
	err := <-errc
	assert.ErrorIs(t, err, context.Canceled)
	close(release)

	require.Eventually(t, func() bool {
		_, ok, _ := h.store.GetChunk(context.Background(), summarizer.ChunkKey{DocID: "a", Index: 1, SplitWords: 2})
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	// Give the abandoned run a moment; it must not start chunk 2.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{chunkOf(0), chunkOf(1)}, h.sum.called())
}
