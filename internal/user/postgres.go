package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/echospot/echospot/internal/tracing"
)

// PostgresRepository implements Repository on the users table.
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

// Get returns the user row for username.
func (r *PostgresRepository) Get(ctx context.Context, username string) (u *User, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, "users", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var row User
	err = r.db.QueryRowContext(ctx, `
		SELECT username, profile_pic, preferlng, post_count
		FROM users
		WHERE username = $1
	`, username).Scan(&row.Username, &row.ProfilePic, &row.PreferredLanguage, &row.PostCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &row, nil
}

// SetPostCount upserts username's post count.
func (r *PostgresRepository) SetPostCount(ctx context.Context, username string, n int) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, "users", tracing.DBOperationUpsert)
	defer func() { endSpan(err) }()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (username, post_count)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE
		SET post_count = EXCLUDED.post_count, updated_at = NOW()
	`, username, n)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to set post count",
			slog.String("error", err.Error()),
			slog.String("username", username))
		return fmt.Errorf("failed to set post count: %w", err)
	}
	return nil
}
