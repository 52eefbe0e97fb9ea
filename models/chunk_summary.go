package models

import "time"

// ChunkSummary is the persisted summary of one chunk of a record's PDF text.
// A document split with a different chunk size has its own set of entries.
type ChunkSummary struct {
	DocID         string    `bson:"doc_id" json:"doc_id"`
	ChunkIndex    int       `bson:"chunk_index" json:"chunk_index"`
	SplitWords    int       `bson:"split_words" json:"split_words"`
	Summary       string    `bson:"summary" json:"summary"`
	SourceDigest  string    `bson:"source_digest,omitempty" json:"source_digest,omitempty"`
	PromptVersion string    `bson:"prompt_version,omitempty" json:"prompt_version,omitempty"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}
