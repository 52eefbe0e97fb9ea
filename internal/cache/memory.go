package cache

import (
	"context"
	"sync"

	"congress-digest/internal/summarizer"
)

// Memory keeps everything in process memory. Entries live until restart.
type Memory struct {
	mu     sync.RWMutex
	chunks map[summarizer.ChunkKey]summarizer.ChunkEntry
	docs   map[string]summarizer.DocumentEntry
}

func NewMemory() *Memory {
	return &Memory{
		chunks: make(map[summarizer.ChunkKey]summarizer.ChunkEntry),
		docs:   make(map[string]summarizer.DocumentEntry),
	}
}

func (m *Memory) GetChunk(_ context.Context, key summarizer.ChunkKey) (summarizer.ChunkEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.chunks[key]
	return e, ok, nil
}

func (m *Memory) PutChunk(_ context.Context, key summarizer.ChunkKey, entry summarizer.ChunkEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[key] = entry
	return nil
}

func (m *Memory) GetSummary(_ context.Context, docID string) (summarizer.DocumentEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.docs[docID]
	return e, ok, nil
}

func (m *Memory) PutSummary(_ context.Context, docID string, entry summarizer.DocumentEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[docID] = entry
	return nil
}

// Len reports the number of chunk and document entries held.
func (m *Memory) Len() (chunks, docs int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), len(m.docs)
}
