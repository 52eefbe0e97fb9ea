package utils

import (
	"errors"
	"net/http"

	"congress-digest/internal/congress"
	"congress-digest/internal/source"
	"congress-digest/internal/summarizer"
	"congress-digest/services"

	"github.com/gin-gonic/gin"
)

// StatusClientClosedRequest is the nginx convention for a caller that went away.
const StatusClientClosedRequest = 499

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// StatusForError maps pipeline and service errors to an HTTP status and a
// stable error code.
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrRecordNotFound), errors.Is(err, congress.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrNoPDF):
		return http.StatusUnprocessableEntity, "no_pdf"
	case errors.Is(err, source.ErrHostNotAllowed):
		return http.StatusBadRequest, "bad_request"
	}

	switch kind := summarizer.KindOf(err); kind {
	case summarizer.KindInvalid:
		return http.StatusBadRequest, string(kind)
	case summarizer.KindFetch, summarizer.KindSummarization:
		return http.StatusBadGateway, string(kind)
	case summarizer.KindExtract:
		return http.StatusUnprocessableEntity, string(kind)
	case summarizer.KindCache:
		return http.StatusServiceUnavailable, string(kind)
	case summarizer.KindCanceled:
		return StatusClientClosedRequest, string(kind)
	default:
		return http.StatusInternalServerError, string(summarizer.KindInternal)
	}
}

// RespondWithServiceError classifies err and writes it.
func RespondWithServiceError(c *gin.Context, err error) {
	status, code := StatusForError(err)
	RespondWithError(c, status, code, err.Error(), nil)
}
