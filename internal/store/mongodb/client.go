package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	adminsCollection        = "admins"
	organizationsCollection = "organizations"
	renamesCollection       = "rename_operations"
)

// Config holds the MongoDB connection settings.
type Config struct {
	// URI is the MongoDB connection string, e.g. mongodb://localhost:27017
	URI string

	// Database holds the registry collections and every partition.
	Database string

	// ConnectRetryTimeout bounds how long Connect keeps retrying an unreachable server.
	// Default: 30 seconds
	ConnectRetryTimeout time.Duration
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("mongo uri is required")
	}
	if c.Database == "" {
		return fmt.Errorf("mongo database is required")
	}
	return nil
}

// Connect opens a client, waits for the server with exponential backoff and ensures the
// registry indexes exist.
func Connect(ctx context.Context, cfg *Config) (*mongo.Client, *mongo.Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid mongo config: %w", err)
	}
	if cfg.ConnectRetryTimeout == 0 {
		cfg.ConnectRetryTimeout = 30 * time.Second
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("MongoDB not reachable yet")
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(cfg.ConnectRetryTimeout),
	)
	if err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, mapMongoError("ping mongo", err)
	}

	db := client.Database(cfg.Database)
	if err := EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, err
	}

	log.Info().Str("database", cfg.Database).Msg("Connected to MongoDB")

	return client, db, nil
}

// EnsureIndexes creates the unique indexes the registry relies on. Creating an existing index is a no-op.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true).SetName(field + "_unique"),
		}
	}

	indexes := map[string][]mongo.IndexModel{
		adminsCollection:        {unique("email")},
		organizationsCollection: {unique("name"), unique("partition_name"), unique("admin_id")},
		renamesCollection:       {unique("new_partition")},
	}

	for collection, models := range indexes {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return mapMongoError("create indexes on "+collection, err)
		}
	}

	return nil
}
