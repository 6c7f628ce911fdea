package badge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/echospot/echospot/internal/tracing"
)

// PostgresRepository implements Repository on the badges table.
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
	return &PostgresRepository{db: db, logger: logger}
}

// Add increments or creates username's score in a single statement.
func (r *PostgresRepository) Add(ctx context.Context, username string, points int) (score int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, "badges", tracing.DBOperationUpsert)
	defer func() { endSpan(err) }()

	if points <= 0 {
		return 0, ErrInvalidAward
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO badges (username, score)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE
		SET score = badges.score + EXCLUDED.score, updated_at = NOW()
		RETURNING score
	`, username, points).Scan(&score)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to add badge score",
			slog.String("error", err.Error()),
			slog.String("username", username))
		return 0, fmt.Errorf("failed to add badge score: %w", err)
	}
	return score, nil
}

// Score returns username's score.
func (r *PostgresRepository) Score(ctx context.Context, username string) (score int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, "badges", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	err = r.db.QueryRowContext(ctx, `SELECT score FROM badges WHERE username = $1`, username).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get badge score: %w", err)
	}
	return score, nil
}
