package summarizer

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/minio/highwayhash"
)

// ChunkKey identifies one cached chunk summary. SplitWords is part of the key
// so that re-splitting a document with a different chunk size never aligns a
// cached summary with different source text.
type ChunkKey struct {
	DocID      string
	Index      int
	SplitWords int
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%s:%d:w%d", k.DocID, k.Index, k.SplitWords)
}

// ChunkEntry is a cached chunk summary plus what it was computed from.
type ChunkEntry struct {
	Summary       string
	SourceDigest  string
	PromptVersion string
}

// DocumentEntry is the final assembled summary of a document.
type DocumentEntry struct {
	Summary       string
	PromptVersion string
	SplitWords    int
	TotalChunks   int
}

// ChunkCache stores chunk summaries keyed by (document, chunk index, split
// size). Lookups report misses with ok=false and a nil error; any store failure
// is returned as an error wrapping ErrCache and is never a hit.
type ChunkCache interface {
	GetChunk(ctx context.Context, key ChunkKey) (ChunkEntry, bool, error)
	PutChunk(ctx context.Context, key ChunkKey, entry ChunkEntry) error
}

// DocumentCache stores final document summaries keyed by document identity,
// with the same miss/error contract as ChunkCache. Puts are upserts.
type DocumentCache interface {
	GetSummary(ctx context.Context, docID string) (DocumentEntry, bool, error)
	PutSummary(ctx context.Context, docID string, entry DocumentEntry) error
}

// digestKey is a fixed HighwayHash key; digests only need to be stable, not secret.
var digestKey = []byte("congress-digest/chunk-source/v01")

// Digest fingerprints chunk source text so a cached summary can be checked
// against the text it is about to stand in for.
func Digest(text string) string {
	h, err := highwayhash.New64(digestKey)
	if err != nil {
		// Only possible with a key that is not 32 bytes long.
		panic(err)
	}
	_, _ = h.Write([]byte(text))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}
