package spot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/echospot/echospot/internal/tracing"
	"github.com/google/uuid"
)

// PostgresRepository implements Repository on the spots table.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}
}

const spotColumns = `id, username, spotname, category, description, latitude, longitude, geohash,
	original_language, image, audio_url, transcription, translated_captions, summary,
	viewcount, likes_count, created_at`

// Insert stores s. Driver errors are wrapped so callers can inspect *pq.Error.
func (r *PostgresRepository) Insert(ctx context.Context, s *Spot) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, "spots", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	captions, err := json.Marshal(nonNilCaptions(s.TranslatedCaptions))
	if err != nil {
		return fmt.Errorf("failed to encode captions: %w", err)
	}

	query := `
		INSERT INTO spots (id, username, spotname, category, description, latitude, longitude, geohash,
			original_language, image, audio_url, transcription, translated_captions, summary,
			viewcount, likes_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, COALESCE($17, NOW()))
		RETURNING created_at
	`
	var createdAt sql.NullTime
	if !s.CreatedAt.IsZero() {
		createdAt = sql.NullTime{Time: s.CreatedAt, Valid: true}
	}

	err = r.db.QueryRowContext(ctx, query,
		s.ID, s.Username, s.SpotName, s.Category, s.Description, s.Latitude, s.Longitude, s.Geohash,
		s.OriginalLanguage, s.ImageURL, s.AudioURL, s.Transcription, string(captions), s.Summary,
		s.ViewCount, s.LikesCount, createdAt,
	).Scan(&s.CreatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to insert spot",
			slog.String("error", err.Error()),
			slog.String("username", s.Username))
		return fmt.Errorf("failed to insert spot: %w", err)
	}

	r.logger.DebugContext(ctx, "spot inserted",
		slog.String("spot_id", s.ID),
		slog.String("username", s.Username))
	return nil
}

// ListProjections returns every spot's projection.
func (r *PostgresRepository) ListProjections(ctx context.Context) (out []Projection, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, "spots", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	return r.queryProjections(ctx, `
		SELECT id, username, spotname, category, latitude, longitude, geohash
		FROM spots
		ORDER BY seq
	`)
}

// ListByUsername returns username's projections in insertion order.
func (r *PostgresRepository) ListByUsername(ctx context.Context, username string) (out []Projection, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, "spots", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	return r.queryProjections(ctx, `
		SELECT id, username, spotname, category, latitude, longitude, geohash
		FROM spots
		WHERE username = $1
		ORDER BY seq
	`, username)
}

func (r *PostgresRepository) queryProjections(ctx context.Context, query string, args ...any) ([]Projection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query spots: %w", err)
	}
	defer rows.Close()

	out := []Projection{}
	for rows.Next() {
		var p Projection
		if err := rows.Scan(&p.ID, &p.Username, &p.SpotName, &p.Category, &p.Latitude, &p.Longitude, &p.Geohash); err != nil {
			return nil, fmt.Errorf("failed to scan spot: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate spots: %w", err)
	}
	return out, nil
}

// FindNear returns username's spots within tolerance on each axis, in insertion order.
func (r *PostgresRepository) FindNear(ctx context.Context, username string, lat, lon, tolerance float64) (out []*Spot, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, "spots", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT ` + spotColumns + `
		FROM spots
		WHERE username = $1
		  AND latitude BETWEEN $2 AND $3
		  AND longitude BETWEEN $4 AND $5
		ORDER BY seq
	`
	rows, err := r.db.QueryContext(ctx, query, username, lat-tolerance, lat+tolerance, lon-tolerance, lon+tolerance)
	if err != nil {
		return nil, fmt.Errorf("failed to query spots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSpot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate spots: %w", err)
	}
	return out, nil
}

func scanSpot(rows *sql.Rows) (*Spot, error) {
	var (
		s        Spot
		captions []byte
		summary  sql.NullString
	)
	err := rows.Scan(&s.ID, &s.Username, &s.SpotName, &s.Category, &s.Description, &s.Latitude, &s.Longitude,
		&s.Geohash, &s.OriginalLanguage, &s.ImageURL, &s.AudioURL, &s.Transcription, &captions, &summary,
		&s.ViewCount, &s.LikesCount, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan spot: %w", err)
	}
	if err := json.Unmarshal(captions, &s.TranslatedCaptions); err != nil {
		return nil, fmt.Errorf("failed to decode captions for spot %s: %w", s.ID, err)
	}
	if summary.Valid {
		s.Summary = &summary.String
	}
	return &s, nil
}

// IncrementViews adds one to the spot's view count.
func (r *PostgresRepository) IncrementViews(ctx context.Context, id string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, "spots", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	res, err := r.db.ExecContext(ctx, `UPDATE spots SET viewcount = viewcount + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByUsername returns the number of spots submitted by username.
func (r *PostgresRepository) CountByUsername(ctx context.Context, username string) (n int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, "spots", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM spots WHERE username = $1`, username).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count spots: %w", err)
	}
	return n, nil
}

func nonNilCaptions(c map[string]string) map[string]string {
	if c == nil {
		return map[string]string{}
	}
	return c
}
