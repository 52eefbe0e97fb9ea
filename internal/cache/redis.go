package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"congress-digest/internal/summarizer"

	"github.com/redis/go-redis/v9"
)

const (
	chunkKeyPrefix   = "crec:chunk:"
	summaryKeyPrefix = "crec:summary:"
)

// Redis is a TTL-bounded front cache. It is not durable: an evicted entry is
// simply a miss.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis returns a Redis cache; ttl <= 0 keeps entries until evicted.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl < 0 {
		ttl = 0
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func chunkRedisKey(key summarizer.ChunkKey) string {
	return chunkKeyPrefix + key.String()
}

func summaryRedisKey(docID string) string {
	return summaryKeyPrefix + docID
}

func (r *Redis) GetChunk(ctx context.Context, key summarizer.ChunkKey) (summarizer.ChunkEntry, bool, error) {
	var entry summarizer.ChunkEntry
	ok, err := r.get(ctx, chunkRedisKey(key), &entry)
	return entry, ok, err
}

func (r *Redis) PutChunk(ctx context.Context, key summarizer.ChunkKey, entry summarizer.ChunkEntry) error {
	return r.set(ctx, chunkRedisKey(key), entry)
}

func (r *Redis) GetSummary(ctx context.Context, docID string) (summarizer.DocumentEntry, bool, error) {
	var entry summarizer.DocumentEntry
	ok, err := r.get(ctx, summaryRedisKey(docID), &entry)
	return entry, ok, err
}

func (r *Redis) PutSummary(ctx context.Context, docID string, entry summarizer.DocumentEntry) error {
	return r.set(ctx, summaryRedisKey(docID), entry)
}

func (r *Redis) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, summarizer.CacheError(fmt.Errorf("redis get %s: %w", key, err))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, summarizer.CacheError(fmt.Errorf("decode %s: %w", key, err))
	}
	return true, nil
}

func (r *Redis) set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return summarizer.CacheError(fmt.Errorf("encode %s: %w", key, err))
	}
	if err := r.rdb.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		return summarizer.CacheError(fmt.Errorf("redis set %s: %w", key, err))
	}
	return nil
}
