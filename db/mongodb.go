package db

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deduction/config"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("db: document not found")

// Store wraps the MongoDB connection and implements the repository
// interfaces the engine components consume. One Store is constructed at the
// composition root and shared.
type Store struct {
	client   *mongo.Client
	database *mongo.Database
	logger   *log.Logger
}

// Connect opens and verifies the MongoDB connection.
func Connect(ctx context.Context, cfg config.MongoConfig, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[DB] ", log.LstdFlags)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	logger.Println("Connected to MongoDB successfully")
	return &Store{
		client:   client,
		database: client.Database(cfg.Database),
		logger:   logger,
	}, nil
}

// Close closes the MongoDB connection.
func (s *Store) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) collection(name string) *mongo.Collection {
	return s.database.Collection(name)
}

// EnsureIndexes creates the indexes the repositories rely on. The unique
// index on summaries game_id backs the lock acquisition upsert.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for coll, indexes := range map[string][]mongo.IndexModel{
		"agents": {
			{Keys: bson.D{{Key: "game_id", Value: 1}, {Key: "character_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"messages": {
			{Keys: bson.D{{Key: "game_id", Value: 1}, {Key: "index", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "game_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		"summaries": {
			{Keys: bson.D{{Key: "game_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"rankings": {
			{Keys: bson.D{{Key: "game_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"actions": {
			{Keys: bson.D{{Key: "game_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
	} {
		if _, err := s.collection(coll).Indexes().CreateMany(ctx, indexes); err != nil {
			return err
		}
	}
	return nil
}
