package spot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/echospot/echospot/internal/tracing"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the MongoDB collection holding spots.
const CollectionName = "spots"

// spotDocument is the stored shape of a spot.
type spotDocument struct {
	ID                 string            `bson:"_id"`
	Username           string            `bson:"username"`
	SpotName           string            `bson:"spotname"`
	Category           string            `bson:"category"`
	Description        string            `bson:"description"`
	Latitude           float64           `bson:"latitude"`
	Longitude          float64           `bson:"longitude"`
	Geohash            string            `bson:"geohash"`
	OriginalLanguage   string            `bson:"original_language"`
	ImageURL           string            `bson:"image"`
	AudioURL           string            `bson:"audio_url"`
	Transcription      string            `bson:"transcription"`
	TranslatedCaptions map[string]string `bson:"translated_captions"`
	Summary            *string           `bson:"summary"`
	ViewCount          int64             `bson:"viewcount"`
	LikesCount         int64             `bson:"likes_count"`
	CreatedAt          time.Time         `bson:"created_at"`
}

func toDocument(s *Spot) spotDocument {
	return spotDocument{
		ID:                 s.ID,
		Username:           s.Username,
		SpotName:           s.SpotName,
		Category:           s.Category,
		Description:        s.Description,
		Latitude:           s.Latitude,
		Longitude:          s.Longitude,
		Geohash:            s.Geohash,
		OriginalLanguage:   s.OriginalLanguage,
		ImageURL:           s.ImageURL,
		AudioURL:           s.AudioURL,
		Transcription:      s.Transcription,
		TranslatedCaptions: nonNilCaptions(s.TranslatedCaptions),
		Summary:            s.Summary,
		ViewCount:          s.ViewCount,
		LikesCount:         s.LikesCount,
		CreatedAt:          s.CreatedAt,
	}
}

func (d spotDocument) spot() *Spot {
	return &Spot{
		ID:                 d.ID,
		Username:           d.Username,
		SpotName:           d.SpotName,
		Category:           d.Category,
		Description:        d.Description,
		Latitude:           d.Latitude,
		Longitude:          d.Longitude,
		Geohash:            d.Geohash,
		OriginalLanguage:   d.OriginalLanguage,
		ImageURL:           d.ImageURL,
		AudioURL:           d.AudioURL,
		Transcription:      d.Transcription,
		TranslatedCaptions: d.TranslatedCaptions,
		Summary:            d.Summary,
		ViewCount:          d.ViewCount,
		LikesCount:         d.LikesCount,
		CreatedAt:          d.CreatedAt,
	}
}

// MongoRepository implements Repository on a MongoDB collection.
type MongoRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

var _ Repository = (*MongoRepository)(nil)

// NewMongoRepository creates a repository over database's spots collection.
func NewMongoRepository(database *mongo.Database, logger *slog.Logger) *MongoRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoRepository{
		collection: database.Collection(CollectionName),
		logger:     logger,
	}
}

// EnsureIndexes creates the point lookup and insertion order indexes.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}, {Key: "latitude", Value: 1}, {Key: "longitude", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create spot indexes: %w", err)
	}
	return nil
}

// insertionOrder sorts by creation time; Mongo keeps millisecond precision,
// so ties fall back to _id.
var insertionOrder = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

// Insert stores s. Write errors are wrapped so callers can inspect mongo.WriteException.
func (r *MongoRepository) Insert(ctx context.Context, s *Spot) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemMongo, CollectionName, tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.CreatedAt = s.CreatedAt.Truncate(time.Millisecond)

	if _, err = r.collection.InsertOne(ctx, toDocument(s)); err != nil {
		r.logger.ErrorContext(ctx, "failed to insert spot",
			slog.String("error", err.Error()),
			slog.String("username", s.Username))
		return fmt.Errorf("failed to insert spot: %w", err)
	}
	return nil
}

var projectionFields = bson.D{
	{Key: "_id", Value: 1},
	{Key: "username", Value: 1},
	{Key: "spotname", Value: 1},
	{Key: "category", Value: 1},
	{Key: "latitude", Value: 1},
	{Key: "longitude", Value: 1},
	{Key: "geohash", Value: 1},
}

// ListProjections returns every spot's projection.
func (r *MongoRepository) ListProjections(ctx context.Context) (out []Projection, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemMongo, CollectionName, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	return r.findProjections(ctx, bson.D{})
}

// ListByUsername returns username's projections in insertion order.
func (r *MongoRepository) ListByUsername(ctx context.Context, username string) (out []Projection, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemMongo, CollectionName, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	return r.findProjections(ctx, bson.D{{Key: "username", Value: username}})
}

func (r *MongoRepository) findProjections(ctx context.Context, filter bson.D) ([]Projection, error) {
	opts := options.Find().SetProjection(projectionFields).SetSort(insertionOrder)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query spots: %w", err)
	}

	var docs []spotDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode spots: %w", err)
	}

	out := make([]Projection, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.spot().Projection())
	}
	return out, nil
}

// FindNear returns username's spots within tolerance on each axis, in insertion order.
func (r *MongoRepository) FindNear(ctx context.Context, username string, lat, lon, tolerance float64) (out []*Spot, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemMongo, CollectionName, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	filter := bson.D{
		{Key: "username", Value: username},
		{Key: "latitude", Value: bson.D{{Key: "$gte", Value: lat - tolerance}, {Key: "$lte", Value: lat + tolerance}}},
		{Key: "longitude", Value: bson.D{{Key: "$gte", Value: lon - tolerance}, {Key: "$lte", Value: lon + tolerance}}},
	}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(insertionOrder))
	if err != nil {
		return nil, fmt.Errorf("failed to query spots: %w", err)
	}

	var docs []spotDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode spots: %w", err)
	}
	for _, d := range docs {
		out = append(out, d.spot())
	}
	return out, nil
}

// IncrementViews adds one to the spot's view count.
func (r *MongoRepository) IncrementViews(ctx context.Context, id string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemMongo, CollectionName, tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	res, err := r.collection.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "viewcount", Value: 1}}}},
	)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByUsername returns the number of spots submitted by username.
func (r *MongoRepository) CountByUsername(ctx context.Context, username string) (n int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemMongo, CollectionName, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	count, err := r.collection.CountDocuments(ctx, bson.D{{Key: "username", Value: username}})
	if err != nil {
		return 0, fmt.Errorf("failed to count spots: %w", err)
	}
	return int(count), nil
}
