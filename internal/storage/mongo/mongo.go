// Package mongo stores outcome records in a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-query/internal/storage/models"
)

const (
	DefaultDatabase   = "solana_query"
	DefaultCollection = "records"
)

// Options configures the connection.
type Options struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// Store implements storage.Storage on top of MongoDB.
type Store struct {
	client     *driver.Client
	collection *driver.Collection
	logger     *zap.Logger
}

// New connects, pings and prepares the records collection.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Store, error) {
	if opts.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if opts.Database == "" {
		opts.Database = DefaultDatabase
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	clientOptions := options.Client().ApplyURI(opts.URI)
	clientOptions.SetConnectTimeout(opts.ConnectTimeout)
	clientOptions.SetServerSelectionTimeout(5 * time.Second)
	clientOptions.SetRetryWrites(true)

	client, err := driver.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &Store{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		logger:     logger.Named("storage"),
	}

	indexModel := driver.IndexModel{
		Keys: bson.D{{Key: "operation", Value: 1}, {Key: "recorded_at", Value: -1}},
	}
	if _, err := s.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		// индекс может уже существовать с другими опциями
		s.logger.Warn("Failed to create records index", zap.Error(err))
	}

	s.logger.Info("Connected to MongoDB",
		zap.String("database", opts.Database),
		zap.String("collection", opts.Collection))
	return s, nil
}

// SaveRecord inserts rec and fills in its ID.
func (s *Store) SaveRecord(ctx context.Context, rec *models.Record) error {
	res, err := s.collection.InsertOne(ctx, rec)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		rec.ID = id
	}
	return nil
}

// ListRecords returns the newest records first.
func (s *Store) ListRecords(ctx context.Context, operation string, limit int) ([]*models.Record, error) {
	cursor, err := s.collection.Find(ctx, filterFor(operation), findOptions(limit))
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.Record
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return out, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func filterFor(operation string) bson.M {
	if operation == "" {
		return bson.M{}
	}
	return bson.M{"operation": operation}
}

func findOptions(limit int) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "recorded_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}
