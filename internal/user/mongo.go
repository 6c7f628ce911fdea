package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/echospot/echospot/internal/tracing"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the MongoDB collection holding users.
const CollectionName = "users"

type userDocument struct {
	Username          string `bson:"_id"`
	ProfilePic        string `bson:"profile_pic"`
	PreferredLanguage string `bson:"preferlng"`
	PostCount         int    `bson:"post_count"`
}

// MongoRepository implements Repository on a MongoDB collection keyed by username.
type MongoRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

var _ Repository = (*MongoRepository)(nil)

// NewMongoRepository creates a repository over database's users collection.
func NewMongoRepository(database *mongo.Database, logger *slog.Logger) *MongoRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoRepository{collection: database.Collection(CollectionName), logger: logger}
}

// Get returns the user row for username.
func (r *MongoRepository) Get(ctx context.Context, username string) (u *User, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemMongo, CollectionName, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var doc userDocument
	err = r.collection.FindOne(ctx, bson.D{{Key: "_id", Value: username}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &User{
		Username:          doc.Username,
		ProfilePic:        doc.ProfilePic,
		PreferredLanguage: doc.PreferredLanguage,
		PostCount:         doc.PostCount,
	}, nil
}

// SetPostCount upserts username's post count.
func (r *MongoRepository) SetPostCount(ctx context.Context, username string, n int) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemMongo, CollectionName, tracing.DBOperationUpsert)
	defer func() { endSpan(err) }()

	_, err = r.collection.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: username}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "post_count", Value: n}}},
			{Key: "$setOnInsert", Value: bson.D{
				{Key: "profile_pic", Value: ""},
				{Key: "preferlng", Value: DefaultPreferredLanguage},
			}},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to set post count",
			slog.String("error", err.Error()),
			slog.String("username", username))
		return fmt.Errorf("failed to set post count: %w", err)
	}
	return nil
}
