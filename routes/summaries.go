package routes

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"congress-digest/internal/summarizer"
	"congress-digest/models"
	"congress-digest/utils"

	"github.com/gin-gonic/gin"
)

const (
	ndjsonContentType = "application/x-ndjson"

	// streamWriteTimeout bounds one progress write to a client that stopped
	// reading.
	streamWriteTimeout = 30 * time.Second
)

// SetupSummaryRoutes registers the ad-hoc document summarization endpoint.
func SetupSummaryRoutes(router *gin.Engine, api *API) {
	v1 := router.Group("/api/v1")
	v1.POST("/summaries", handleSummarize(api))
}

func handleSummarize(api *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SummarizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}
		req.DocumentLocator = strings.TrimSpace(req.DocumentLocator)
		if req.DocumentIdentity == "" {
			utils.RespondWithBadRequest(c, "documentIdentity is required", nil)
			return
		}
		if _, err := api.Locators.CheckLocator(req.DocumentLocator); err != nil {
			utils.RespondWithBadRequest(c, "Invalid documentLocator", err.Error())
			return
		}

		log := requestLogger(c).With("doc_id", models.RecordID(req.VolumeNumber, string(req.DocumentIdentity)))

		if wantsStream(c, req.Stream) {
			startStream(c)
			emitter := newStreamEmitter(c)
			_, err := api.Summaries.SummarizeRequest(c.Request.Context(), &req, emitter)
			finishStream(c, emitter, err, log)
			return
		}

		start := time.Now()
		result, err := api.Summaries.SummarizeRequest(c.Request.Context(), &req, nil)
		if err != nil {
			log.Error("summarization failed", "kind", summarizer.KindOf(err), "error", err)
			utils.RespondWithServiceError(c, err)
			return
		}
		log.Info("summarization finished",
			"chunks", result.TotalChunks,
			"cached_chunks", result.CachedChunks,
			"from_cache", result.FromCache,
			"duration", time.Since(start))
		c.JSON(http.StatusOK, result)
	}
}

// wantsStream reports whether the caller asked for NDJSON progress.
func wantsStream(c *gin.Context, flag bool) bool {
	if flag || c.Query("stream") == "true" {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), ndjsonContentType)
}

func startStream(c *gin.Context) {
	c.Header("Content-Type", ndjsonContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
}

// streamEmitter writes NDJSON events and remembers whether any were sent.
type streamEmitter struct {
	ndjson *summarizer.NDJSONEmitter
	rc     *http.ResponseController
	sent   bool
}

func newStreamEmitter(c *gin.Context) *streamEmitter {
	return &streamEmitter{
		ndjson: summarizer.NewNDJSONEmitter(c.Writer),
		rc:     http.NewResponseController(c.Writer),
	}
}

func (e *streamEmitter) Emit(ev summarizer.Event) error {
	e.sent = true
	// Writers that do not support deadlines are written without one.
	_ = e.rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	defer func() { _ = e.rc.SetWriteDeadline(time.Time{}) }()
	return e.ndjson.Emit(ev)
}

// finishStream terminates a stream whose pipeline failed before publishing
// anything, so every stream ends in a done or error record.
func finishStream(c *gin.Context, e *streamEmitter, err error, log *slog.Logger) {
	if err == nil {
		return
	}
	log.Error("streamed summarization failed", "kind", summarizer.KindOf(err), "error", err)
	if e.sent || c.Request.Context().Err() != nil {
		return
	}
	_ = e.ndjson.Emit(summarizer.Event{
		Type:  summarizer.EventError,
		Error: err.Error(),
		Kind:  summarizer.KindOf(err),
	})
}
