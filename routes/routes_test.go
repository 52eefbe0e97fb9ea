package routes

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"congress-digest/internal/queue"
	"congress-digest/internal/summarizer"
	"congress-digest/models"
	"congress-digest/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSummaries struct {
	err      error
	events   []summarizer.Event
	records  map[string]string // doc id -> pdf link
	lastReq  summarizer.Request
	lastBody *models.SummarizeRequest
}

func (f *fakeSummaries) run(req summarizer.Request, emitter summarizer.Emitter) (*summarizer.Result, error) {
	f.lastReq = req
	if emitter != nil {
		for _, ev := range f.events {
			_ = emitter.Emit(ev)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &summarizer.Result{DocID: req.DocID, Summary: "A\n\nB", TotalChunks: 2, ComputedChunks: 2}, nil
}

func (f *fakeSummaries) SummarizeRequest(_ context.Context, req *models.SummarizeRequest, emitter summarizer.Emitter) (*summarizer.Result, error) {
	f.lastBody = req
	return f.run(summarizer.Request{
		DocID:    models.RecordID(req.VolumeNumber, string(req.DocumentIdentity)),
		Locator:  req.DocumentLocator,
		MaxWords: req.MaxWords,
	}, emitter)
}

func (f *fakeSummaries) RecordRequest(_ context.Context, docID string, maxWords int) (summarizer.Request, error) {
	link, ok := f.records[docID]
	if !ok {
		return summarizer.Request{}, fmt.Errorf("%w: %s", services.ErrRecordNotFound, docID)
	}
	if link == "" {
		return summarizer.Request{}, services.ErrNoPDF
	}
	return summarizer.Request{DocID: docID, Locator: link, MaxWords: maxWords}, nil
}

func (f *fakeSummaries) Summarize(_ context.Context, req summarizer.Request, emitter summarizer.Emitter) (*summarizer.Result, error) {
	return f.run(req, emitter)
}

type hostChecker struct{}

func (hostChecker) CheckLocator(locator string) (*url.URL, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Host != "www.congress.gov" {
		return nil, errors.New("source host not allowed")
	}
	return u, nil
}

type fakeRecords struct {
	list *models.RecordList
	err  error
}

func (f *fakeRecords) List(context.Context, *models.RecordFilter) (*models.RecordList, error) {
	return f.list, f.err
}

func (f *fakeRecords) Get(_ context.Context, docID string) (*models.Record, error) {
	for i := range f.list.Records {
		if f.list.Records[i].DocID == docID {
			return &f.list.Records[i], nil
		}
	}
	return nil, services.ErrRecordNotFound
}

type fakeExporter struct{ format string }

func (f *fakeExporter) Export(_ context.Context, _ *models.RecordFilter, format string) ([]byte, string, error) {
	f.format = format
	return []byte(`{"records":[]}`), "application/json", nil
}

type fakeQueue struct {
	err      error
	docID    string
	maxWords int
	queue    string
}

func (f *fakeQueue) EnqueueSummarize(_ context.Context, docID string, maxWords int, q string) (string, error) {
	f.docID, f.maxWords, f.queue = docID, maxWords, q
	return "summarize:" + docID, f.err
}

type harness struct {
	router    *gin.Engine
	summaries *fakeSummaries
	records   *fakeRecords
	exports   *fakeExporter
	queue     *fakeQueue
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		summaries: &fakeSummaries{records: map[string]string{
			"170-95": "https://www.congress.gov/170/crec/2024/06/03/170/95/CREC-2024-06-03.pdf",
			"170-96": "",
		}},
		records: &fakeRecords{list: &models.RecordList{
			Records: []models.Record{{DocID: "170-95", VolumeNumber: 170, IssueNumber: "95"}},
			Total:   1,
			Limit:   50,
		}},
		exports: &fakeExporter{},
		queue:   &fakeQueue{},
	}
	api := &API{
		Summaries:       h.summaries,
		Locators:        hostChecker{},
		Records:         h.records,
		Exports:         h.exports,
		Queue:           h.queue,
		DefaultMaxWords: 10000,
	}
	h.router = gin.New()
	SetupSummaryRoutes(h.router, api)
	SetupRecordRoutes(h.router, api)
	return h
}

func (h *harness) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func ndjsonLines(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), sc.Text())
		out = append(out, m)
	}
	return out
}

const validBody = `{"documentLocator":"https://www.congress.gov/a.pdf","documentIdentity":95,"volumeNumber":170}`

func TestSummarizeSync(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/v1/summaries", validBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res summarizer.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "170-95", res.DocID)
	assert.Equal(t, "A\n\nB", res.Summary)
	assert.Equal(t, "https://www.congress.gov/a.pdf", h.summaries.lastReq.Locator)
}

func TestSummarizeValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"missing locator", `{"documentIdentity":"95"}`},
		{"missing identity", `{"documentLocator":"https://www.congress.gov/a.pdf"}`},
		{"host not allowed", `{"documentLocator":"https://evil.example/a.pdf","documentIdentity":"95"}`},
		{"bad chunk size", `{"documentLocator":"https://www.congress.gov/a.pdf","documentIdentity":"95","maxWords":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(http.MethodPost, "/api/v1/summaries", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error_code":"bad_request"`)
		})
	}
	assert.Nil(t, h.summaries.lastBody)
}

func TestSummarizeErrorMapping(t *testing.T) {
	h := newHarness(t)
	h.summaries.err = fmt.Errorf("%w: status 404", summarizer.ErrFetch)

	w := h.do(http.MethodPost, "/api/v1/summaries", validBody)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"fetch_error"`)
}

func TestSummarizeStream(t *testing.T) {
	h := newHarness(t)
	h.summaries.events = []summarizer.Event{
		{Type: summarizer.EventStart, TotalChunks: 2},
		{Type: summarizer.EventChunk, Index: 0, Content: "A"},
		{Type: summarizer.EventChunk, Index: 1, Content: "B"},
		{Type: summarizer.EventDone, Summary: "A\n\nB"},
	}

	for _, mode := range []struct {
		name   string
		body   string
		header []string
	}{
		{"body flag", strings.TrimSuffix(validBody, "}") + `,"stream":true}`, nil},
		{"accept header", validBody, []string{"Accept", "application/x-ndjson"}},
	} {
		t.Run(mode.name, func(t *testing.T) {
			w := h.do(http.MethodPost, "/api/v1/summaries", mode.body, mode.header...)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

			lines := ndjsonLines(t, w.Body.String())
			require.Len(t, lines, 4)
			assert.Equal(t, "start", lines[0]["type"])
			assert.EqualValues(t, 2, lines[0]["totalChunks"])
			assert.EqualValues(t, 0, lines[1]["index"])
			assert.Equal(t, "B", lines[2]["content"])
			assert.Equal(t, "done", lines[3]["type"])
		})
	}
}

func TestSummarizeStreamFailureBeforeStart(t *testing.T) {
	h := newHarness(t)
	h.summaries.err = fmt.Errorf("%w: document identity is required", summarizer.ErrInvalidRequest)

	w := h.do(http.MethodPost, "/api/v1/summaries?stream=true", validBody)
	require.Equal(t, http.StatusOK, w.Code)

	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0]["type"])
	assert.Equal(t, "invalid_request", lines[0]["kind"])
}

func TestRecordRoutes(t *testing.T) {
	h := newHarness(t)

	t.Run("list", func(t *testing.T) {
		w := h.do(http.MethodGet, "/api/v1/records?volume=170&limit=10", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"170-95"`)
	})

	t.Run("list rejects bad limit", func(t *testing.T) {
		w := h.do(http.MethodGet, "/api/v1/records?limit=100000", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("list invalid filter", func(t *testing.T) {
		h.records.err = fmt.Errorf("%w: unknown section", services.ErrInvalidFilter)
		defer func() { h.records.err = nil }()
		w := h.do(http.MethodGet, "/api/v1/records?section=lobby", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/records/170-95", "").Code)
		assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/v1/records/1-1", "").Code)
	})

	t.Run("export", func(t *testing.T) {
		w := h.do(http.MethodGet, "/api/v1/records/export?format=json", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "json", h.exports.format)
		assert.Contains(t, w.Header().Get("Content-Disposition"), ".json")

		w = h.do(http.MethodGet, "/api/v1/records/export?format=csv", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSummarizeRecord(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/v1/records/170-95/summarize", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "170-95", h.summaries.lastReq.DocID)
	assert.Contains(t, h.summaries.lastReq.Locator, "CREC-2024-06-03.pdf")

	w = h.do(http.MethodPost, "/api/v1/records/170-95/summarize", `{"maxWords":500}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 500, h.summaries.lastReq.MaxWords)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/v1/records/9-9/summarize", "").Code)

	w = h.do(http.MethodPost, "/api/v1/records/170-96/summarize", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"no_pdf"`)
}

func TestSummarizeRecordAsync(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/v1/records/170-95/summarize/async", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"queued"`)
	assert.Equal(t, "170-95", h.queue.docID)
	assert.Equal(t, 10000, h.queue.maxWords)
	assert.Equal(t, queue.QueueDefault, h.queue.queue)

	h.queue.err = queue.ErrAlreadyQueued
	w = h.do(http.MethodPost, "/api/v1/records/170-95/summarize/async", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"already_queued"`)

	h.queue.err = nil
	h.queue.docID = ""
	w = h.do(http.MethodPost, "/api/v1/records/9-9/summarize/async", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, h.queue.docID)
}

func TestSummarizeRecordAsyncWithoutQueue(t *testing.T) {
	router := gin.New()
	SetupRecordRoutes(router, &API{Summaries: &fakeSummaries{}, Records: &fakeRecords{list: &models.RecordList{}}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/records/170-95/summarize/async", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth(t *testing.T) {
	router := gin.New()
	down := errors.New("connection refused")
	SetupHealthRoutes(router, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	}),
		HealthCheck{Name: "mongo", Required: true, Ping: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Ping: func(context.Context) error { return down }},
	)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	assert.Contains(t, w.Body.String(), `"mongo":"ok"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", w.Body.String())
}
