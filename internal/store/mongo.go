package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/manjeet0505/SeniorJunior-sub000/internal/domain"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
)

// MongoStore implements Store against the application's document database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

// Database exposes the underlying database handle so the mongo fanout
// adapter can share the connection pool.
func (s *MongoStore) Database() *mongo.Database {
	return s.db
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	opts := options.FindOne().SetProjection(bson.M{"password": 0})
	var user domain.User
	err = s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", id, err)
	}
	return &user, nil
}

func (s *MongoStore) InsertMessage(ctx context.Context, msg *domain.Message) error {
	res, err := s.db.Collection(messagesCollection).InsertOne(ctx, msg)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid
	}
	return nil
}

func (s *MongoStore) MarkConversationRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	filter := bson.M{
		"conversationId": conversationID,
		"receiverId":     receiverID,
		"read":           false,
	}
	res, err := s.db.Collection(messagesCollection).UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
