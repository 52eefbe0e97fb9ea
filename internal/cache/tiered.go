package cache

import (
	"context"
	"log/slog"

	"congress-digest/internal/logger"
	"congress-digest/internal/summarizer"
)

// Tiered reads through a fast front store to a durable one. Only the durable
// store decides whether a write succeeded; front store failures are logged.
type Tiered struct {
	front   Store
	durable Store
	log     *slog.Logger
}

func NewTiered(front, durable Store) *Tiered {
	return &Tiered{front: front, durable: durable, log: logger.With("component", "cache")}
}

func (t *Tiered) GetChunk(ctx context.Context, key summarizer.ChunkKey) (summarizer.ChunkEntry, bool, error) {
	entry, ok, err := t.front.GetChunk(ctx, key)
	if err == nil && ok {
		return entry, true, nil
	}
	if err != nil {
		t.log.Warn("front cache read failed", "key", key.String(), "error", err)
	}

	entry, ok, err = t.durable.GetChunk(ctx, key)
	if err != nil || !ok {
		return entry, ok, err
	}
	if err := t.front.PutChunk(ctx, key, entry); err != nil {
		t.log.Warn("front cache backfill failed", "key", key.String(), "error", err)
	}
	return entry, true, nil
}

func (t *Tiered) PutChunk(ctx context.Context, key summarizer.ChunkKey, entry summarizer.ChunkEntry) error {
	if err := t.durable.PutChunk(ctx, key, entry); err != nil {
		return err
	}
	if err := t.front.PutChunk(ctx, key, entry); err != nil {
		t.log.Warn("front cache write failed", "key", key.String(), "error", err)
	}
	return nil
}

func (t *Tiered) GetSummary(ctx context.Context, docID string) (summarizer.DocumentEntry, bool, error) {
	entry, ok, err := t.front.GetSummary(ctx, docID)
	if err == nil && ok {
		return entry, true, nil
	}
	if err != nil {
		t.log.Warn("front cache read failed", "doc_id", docID, "error", err)
	}

	entry, ok, err = t.durable.GetSummary(ctx, docID)
	if err != nil || !ok {
		return entry, ok, err
	}
	if err := t.front.PutSummary(ctx, docID, entry); err != nil {
		t.log.Warn("front cache backfill failed", "doc_id", docID, "error", err)
	}
	return entry, true, nil
}

func (t *Tiered) PutSummary(ctx context.Context, docID string, entry summarizer.DocumentEntry) error {
	if err := t.durable.PutSummary(ctx, docID, entry); err != nil {
		return err
	}
	if err := t.front.PutSummary(ctx, docID, entry); err != nil {
		t.log.Warn("front cache write failed", "doc_id", docID, "error", err)
	}
	return nil
}
