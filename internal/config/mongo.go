package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson" // Use bson for index keys
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	RecordsCollection        = "records"
	ChunkSummariesCollection = "chunk_summaries"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(ctx, client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(ctx context.Context, client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Records collection indexes
	recordIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "doc_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "volume_number", Value: 1}, {Key: "issue_number", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "issue_date", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "congress", Value: 1}, {Key: "session_number", Value: 1}},
		},
	}
	if _, err := db.Collection(RecordsCollection).Indexes().CreateMany(ctx, recordIndexes); err != nil {
		return err
	}

	// One row per (document, chunk index, split size); the split size keeps
	// chunk indices from different split parameters apart.
	chunkIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "doc_id", Value: 1},
				{Key: "chunk_index", Value: 1},
				{Key: "split_words", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection(ChunkSummariesCollection).Indexes().CreateMany(ctx, chunkIndexes); err != nil {
		return err
	}

	return nil
}
