package routes

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"congress-digest/internal/queue"
	"congress-digest/internal/summarizer"
	"congress-digest/models"
	"congress-digest/services"
	"congress-digest/utils"

	"github.com/gin-gonic/gin"
)

// SetupRecordRoutes registers record search, export and per-record
// summarization.
func SetupRecordRoutes(router *gin.Engine, api *API) {
	records := router.Group("/api/v1/records")
	records.GET("", handleListRecords(api))
	records.GET("/export", handleExportRecords(api))
	records.GET("/:docId", handleGetRecord(api))
	records.POST("/:docId/summarize", handleSummarizeRecord(api))
	records.POST("/:docId/summarize/async", handleSummarizeRecordAsync(api))
}

func handleListRecords(api *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f models.RecordFilter
		if err := c.ShouldBindQuery(&f); err != nil {
			utils.RespondWithBadRequest(c, "Invalid query parameters", err.Error())
			return
		}

		ctx, cancel := utils.QueryContext(c.Request.Context())
		defer cancel()

		list, err := api.Records.List(ctx, &f)
		if err != nil {
			respondWithQueryError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func handleGetRecord(api *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := utils.QueryContext(c.Request.Context())
		defer cancel()

		rec, err := api.Records.Get(ctx, c.Param("docId"))
		if err != nil {
			utils.RespondWithServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func handleExportRecords(api *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		format := strings.ToLower(c.DefaultQuery("format", "xlsx"))
		ext := format
		switch format {
		case "json":
		case "xlsx", "excel":
			ext = "xlsx"
		default:
			utils.RespondWithBadRequest(c, "Unsupported export format", gin.H{"supported": []string{"xlsx", "json"}})
			return
		}

		var f models.RecordFilter
		if err := c.ShouldBindQuery(&f); err != nil {
			utils.RespondWithBadRequest(c, "Invalid query parameters", err.Error())
			return
		}

		ctx, cancel := utils.ExportContext(c.Request.Context())
		defer cancel()

		data, contentType, err := api.Exports.Export(ctx, &f, format)
		if err != nil {
			respondWithQueryError(c, err)
			return
		}

		filename := fmt.Sprintf("congressional-records-%s.%s", time.Now().UTC().Format("20060102-150405"), ext)
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Data(http.StatusOK, contentType, data)
	}
}

// respondWithQueryError reports filter validation failures as 400.
func respondWithQueryError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrInvalidFilter) {
		utils.RespondWithBadRequest(c, err.Error(), nil)
		return
	}
	requestLogger(c).Error("record query failed", "error", err)
	utils.RespondWithInternalError(c, "Failed to query records", nil)
}

// bindOptionalJSON binds a body that may be absent.
func bindOptionalJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func handleSummarizeRecord(api *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body models.RecordSummarizeRequest
		if err := bindOptionalJSON(c, &body); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}

		docID := c.Param("docId")
		log := requestLogger(c).With("doc_id", docID)

		req, err := api.Summaries.RecordRequest(c.Request.Context(), docID, body.MaxWords)
		if err != nil {
			utils.RespondWithServiceError(c, err)
			return
		}

		if wantsStream(c, body.Stream) {
			startStream(c)
			emitter := newStreamEmitter(c)
			_, err := api.Summaries.Summarize(c.Request.Context(), req, emitter)
			finishStream(c, emitter, err, log)
			return
		}

		result, err := api.Summaries.Summarize(c.Request.Context(), req, nil)
		if err != nil {
			log.Error("record summarization failed", "kind", summarizer.KindOf(err), "error", err)
			utils.RespondWithServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleSummarizeRecordAsync(api *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		if api.Queue == nil {
			utils.RespondWithError(c, http.StatusServiceUnavailable, "queue_unavailable",
				"Background summarization is not configured", nil)
			return
		}

		var body models.RecordSummarizeRequest
		if err := bindOptionalJSON(c, &body); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}
		maxWords := body.MaxWords
		if maxWords <= 0 {
			maxWords = api.DefaultMaxWords
		}

		docID := c.Param("docId")
		if _, err := api.Summaries.RecordRequest(c.Request.Context(), docID, maxWords); err != nil {
			utils.RespondWithServiceError(c, err)
			return
		}

		taskID, err := api.Queue.EnqueueSummarize(c.Request.Context(), docID, maxWords, queue.QueueDefault)
		switch {
		case errors.Is(err, queue.ErrAlreadyQueued):
			c.JSON(http.StatusAccepted, models.AsyncSummarizeResponse{
				DocID:   docID,
				TaskID:  taskID,
				Status:  "already_queued",
				Message: "Summarization is already queued or recently finished",
			})
		case err != nil:
			requestLogger(c).Error("enqueue failed", "doc_id", docID, "error", err)
			utils.RespondWithError(c, http.StatusServiceUnavailable, "queue_unavailable", "Failed to queue summarization", nil)
		default:
			c.JSON(http.StatusAccepted, models.AsyncSummarizeResponse{
				DocID:   docID,
				TaskID:  taskID,
				Status:  "queued",
				Message: "Summarization queued",
			})
		}
	}
}
