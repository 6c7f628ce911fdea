package badge

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

// CollectionName is the MongoDB collection holding badge scores.
const CollectionName = "badges"

type badgeDocument struct {
	Username string `bson:"_id"`
	Score    int    `bson:"score"`
}

// MongoRepository implements Repository on a MongoDB collection keyed by username.
type MongoRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

var _ Repository = (*MongoRepository)(nil)

// NewMongoRepository creates a repository over database's badges collection.
func NewMongoRepository(database *mongo.Database, logger *slog.Logger) *MongoRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoRepository{collection: database.Collection(CollectionName), logger: logger}
}

// Add increments or creates username's score with a single upserting $inc.
func (r *MongoRepository) Add(ctx context.Context, username string, points int) (score int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemMongo, CollectionName, tracing.DBOperationUpsert)
	defer func() { endSpan(err) }()

	if points <= 0 {
		return 0, ErrInvalidAward
	}

	var doc badgeDocument
	err = r.collection.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: username}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "score", Value: points}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to add badge score",
			slog.String("error", err.Error()),
			slog.String("username", username))
		return 0, fmt.Errorf("failed to add badge score: %w", err)
	}
	return doc.Score, nil
}

// Score returns username's score.
func (r *MongoRepository) Score(ctx context.Context, username string) (score int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemMongo, CollectionName, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var doc badgeDocument
	err = r.collection.FindOne(ctx, bson.D{{Key: "_id", Value: username}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get badge score: %w", err)
	}
	return doc.Score, nil
}
