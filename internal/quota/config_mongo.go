package quota

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfigStore persists the limit history as an append-only collection.
// The current configuration is the newest document; older versions are
// retained for audit.
type MongoConfigStore struct {
	collection *mongo.Collection
	fallback   Config
}

// NewMongoConfigStore creates a Mongo-backed config store with a static
// default used until the first SetLimits.
func NewMongoConfigStore(db *mongo.Database, fallback Config) *MongoConfigStore {
	return &MongoConfigStore{
		collection: db.Collection("quota_config"),
		fallback:   fallback,
	}
}

// Current implements ConfigStore. ObjectID ordering doubles as insertion
// ordering, so the newest document wins.
func (s *MongoConfigStore) Current(ctx context.Context) (Config, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})

	var cfg Config
	err := s.collection.FindOne(ctx, bson.M{}, opts).Decode(&cfg)
	if err == mongo.ErrNoDocuments {
		return s.fallback, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("load quota config: %w", err)
	}
	return cfg, nil
}

// SetLimits implements ConfigStore
func (s *MongoConfigStore) SetLimits(ctx context.Context, cfg Config) error {
	cfg.UpdatedAt = time.Now().UTC()

	if _, err := s.collection.InsertOne(ctx, cfg); err != nil {
		return fmt.Errorf("append quota config: %w", err)
	}
	return nil
}
