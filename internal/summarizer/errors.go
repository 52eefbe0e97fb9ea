package summarizer

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy. Every failure leaving the pipeline wraps exactly one of
// these, so callers can branch with errors.Is or KindOf.
var (
	ErrFetch         = errors.New("fetch failed")
	ErrExtract       = errors.New("text extraction failed")
	ErrSummarization = errors.New("summarization failed")
	ErrCache         = errors.New("cache unavailable")
)

// ErrEmptyResponse marks a generation response that carried no usable text.
// It is always wrapped in ErrSummarization.
var ErrEmptyResponse = errors.New("empty response from text generation service")

// ErrInvalidRequest is returned for requests missing an identity or locator.
var ErrInvalidRequest = errors.New("invalid summarization request")

// ErrInvalidMaxWords is returned by Split for non-positive chunk sizes.
var ErrInvalidMaxWords = errors.New("maxWords must be a positive integer")

// Kind is the stable, user-visible name of an error category.
type Kind string

const (
	KindFetch         Kind = "fetch_error"
	KindExtract       Kind = "extract_error"
	KindSummarization Kind = "summarization_failure"
	KindCache         Kind = "cache_error"
	KindCanceled      Kind = "canceled"
	KindInvalid       Kind = "invalid_request"
	KindInternal      Kind = "internal_error"
)

// KindOf classifies err. Cancellation is checked last so that a fetch that
// failed because the caller went away still reports as a fetch error.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFetch):
		return KindFetch
	case errors.Is(err, ErrExtract):
		return KindExtract
	case errors.Is(err, ErrSummarization):
		return KindSummarization
	case errors.Is(err, ErrCache):
		return KindCache
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidMaxWords):
		return KindInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// ChunkError reports the chunk a summarization failure belongs to.
type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

func fetchError(err error) error {
	return fmt.Errorf("%w: %w", ErrFetch, err)
}

func extractError(err error) error {
	return fmt.Errorf("%w: %w", ErrExtract, err)
}

// SummarizationError wraps err as an ErrSummarization unless it already is one.
func SummarizationError(err error) error {
	if errors.Is(err, ErrSummarization) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSummarization, err)
}

// CacheError wraps err as an ErrCache unless it already is one.
func CacheError(err error) error {
	if errors.Is(err, ErrCache) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCache, err)
}
