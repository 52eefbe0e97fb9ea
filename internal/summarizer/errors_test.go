package summarizer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{fetchError(boom), KindFetch},
		{fetchError(context.Canceled), KindFetch},
		{extractError(boom), KindExtract},
		{&ChunkError{Index: 3, Err: SummarizationError(boom)}, KindSummarization},
		{CacheError(boom), KindCache},
		{fmt.Errorf("%w: missing", ErrInvalidRequest), KindInvalid},
		{&ChunkError{Index: 1, Err: context.Canceled}, KindCanceled},
		{context.DeadlineExceeded, KindCanceled},
		{boom, KindInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestWrappersAreIdempotent(t *testing.T) {
	err := SummarizationError(SummarizationError(ErrEmptyResponse))
	assert.Equal(t, "summarization failed: empty response from text generation service", err.Error())
	assert.ErrorIs(t, err, ErrEmptyResponse)

	err = CacheError(CacheError(errors.New("down")))
	assert.Equal(t, "cache unavailable: down", err.Error())
}
