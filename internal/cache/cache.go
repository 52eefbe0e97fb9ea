// Package cache holds the chunk and document summary stores used by the
// summarizer: a durable MongoDB store, a Redis front cache, a tiered
// combination of both, and an in-memory store for development.
package cache

import (
	"fmt"

	"congress-digest/internal/config"
	"congress-digest/internal/summarizer"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store is both caches the summarizer needs.
type Store interface {
	summarizer.ChunkCache
	summarizer.DocumentCache
}

// Backend names accepted by CACHE_BACKEND.
const (
	BackendTiered = "tiered"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// New builds the store selected by cfg.CacheBackend. rdb may be nil, in which
// case "tiered" degrades to the MongoDB store alone.
func New(cfg *config.Config, db *mongo.Database, rdb *redis.Client) (Store, error) {
	switch cfg.CacheBackend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendMongo:
		return NewMongo(db), nil
	case BackendTiered, "":
		durable := NewMongo(db)
		if rdb == nil {
			return durable, nil
		}
		return NewTiered(NewRedis(rdb, cfg.RedisCacheTTL), durable), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
