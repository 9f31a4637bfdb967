package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoAdapter shares broadcasts through a collection in the same document
// database the session store uses. Each instance inserts its envelopes and
// tails the collection with a change stream, skipping its own origin id.
type MongoAdapter struct {
	coll      *mongo.Collection
	processID string
	logger    *slog.Logger
}

var _ Adapter = (*MongoAdapter)(nil)

func NewMongoAdapter(db *mongo.Database, collection, processID string, logger *slog.Logger) *MongoAdapter {
	return &MongoAdapter{
		coll:      db.Collection(collection),
		processID: processID,
		logger:    logger.With(slog.String("component", "fanout_mongo")),
	}
}

func (a *MongoAdapter) Publish(ctx context.Context, env Envelope) error {
	if _, err := a.coll.InsertOne(ctx, env); err != nil {
		return fmt.Errorf("publish broadcast envelope: %w", err)
	}
	return nil
}

func (a *MongoAdapter) Run(ctx context.Context, handler Handler) error {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}},
	}
	stream, err := a.coll.Watch(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("open broadcast change stream: %w", err)
	}
	defer stream.Close(context.Background())

	a.logger.Info("Tailing broadcast collection", slog.String("collection", a.coll.Name()))
	for stream.Next(ctx) {
		var change struct {
			FullDocument Envelope `bson:"fullDocument"`
		}
		if err := stream.Decode(&change); err != nil {
			a.logger.Warn("Failed to decode broadcast envelope", slog.Any("error", err))
			continue
		}
		env := change.FullDocument
		if env.Origin == a.processID {
			continue
		}
		handler(env)
	}

	if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("broadcast change stream: %w", err)
	}
	return nil
}

func (a *MongoAdapter) Close(ctx context.Context) error {
	// The underlying client belongs to the session store.
	return nil
}
