package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"congress-digest/internal/config"
	"congress-digest/internal/summarizer"
	"congress-digest/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo is the durable store. Chunk summaries live in their own collection;
// the document summary is a field set on the record itself.
type Mongo struct {
	chunks  *mongo.Collection
	records *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		chunks:  db.Collection(config.ChunkSummariesCollection),
		records: db.Collection(config.RecordsCollection),
	}
}

func chunkFilter(key summarizer.ChunkKey) bson.M {
	return bson.M{
		"doc_id":      key.DocID,
		"chunk_index": key.Index,
		"split_words": key.SplitWords,
	}
}

func (m *Mongo) GetChunk(ctx context.Context, key summarizer.ChunkKey) (summarizer.ChunkEntry, bool, error) {
	var doc models.ChunkSummary
	err := m.chunks.FindOne(ctx, chunkFilter(key)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return summarizer.ChunkEntry{}, false, nil
	}
	if err != nil {
		return summarizer.ChunkEntry{}, false, summarizer.CacheError(fmt.Errorf("find chunk %s: %w", key, err))
	}

	return summarizer.ChunkEntry{
		Summary:       doc.Summary,
		SourceDigest:  doc.SourceDigest,
		PromptVersion: doc.PromptVersion,
	}, true, nil
}

func (m *Mongo) PutChunk(ctx context.Context, key summarizer.ChunkKey, entry summarizer.ChunkEntry) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"summary":        entry.Summary,
			"source_digest":  entry.SourceDigest,
			"prompt_version": entry.PromptVersion,
			"updated_at":     now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}

	_, err := m.chunks.UpdateOne(ctx, chunkFilter(key), update, options.Update().SetUpsert(true))
	if err != nil {
		return summarizer.CacheError(fmt.Errorf("upsert chunk %s: %w", key, err))
	}
	return nil
}

func (m *Mongo) GetSummary(ctx context.Context, docID string) (summarizer.DocumentEntry, bool, error) {
	opts := options.FindOne().SetProjection(bson.M{
		"summary":                1,
		"summary_prompt_version": 1,
		"summary_split_words":    1,
		"summary_chunks":         1,
	})

	var rec models.Record
	err := m.records.FindOne(ctx, bson.M{"doc_id": docID}, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return summarizer.DocumentEntry{}, false, nil
	}
	if err != nil {
		return summarizer.DocumentEntry{}, false, summarizer.CacheError(fmt.Errorf("find record %s: %w", docID, err))
	}
	if !rec.HasSummary() {
		return summarizer.DocumentEntry{}, false, nil
	}

	return summarizer.DocumentEntry{
		Summary:       rec.Summary,
		PromptVersion: rec.SummaryPromptVersion,
		SplitWords:    rec.SummarySplitWords,
		TotalChunks:   rec.SummaryChunks,
	}, true, nil
}

// PutSummary sets the summary on the record, creating a bare record when the
// document was summarized from an ad-hoc locator.
func (m *Mongo) PutSummary(ctx context.Context, docID string, entry summarizer.DocumentEntry) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"summary":                entry.Summary,
			"summary_prompt_version": entry.PromptVersion,
			"summary_split_words":    entry.SplitWords,
			"summary_chunks":         entry.TotalChunks,
			"summarized_at":          now,
			"updated_at":             now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}

	_, err := m.records.UpdateOne(ctx, bson.M{"doc_id": docID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return summarizer.CacheError(fmt.Errorf("upsert summary %s: %w", docID, err))
	}
	return nil
}
