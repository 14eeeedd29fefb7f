package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dtroode/authz-server/internal/model"
)

var _ model.LoginAttemptStore = (*LoginAttemptRepository)(nil)

type LoginAttemptRepository struct {
	db *Connection
}

func NewLoginAttemptRepository(db *Connection) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordFailure appends a failure and prunes those outside the window in one statement.
func (r *LoginAttemptRepository) RecordFailure(ctx context.Context, username string, now time.Time, window time.Duration) (int, error) {
	const query = `
        INSERT INTO login_attempts (username, failures) VALUES ($1, ARRAY[$2::timestamptz])
        ON CONFLICT (username) DO UPDATE SET failures = array_append(
            ARRAY(SELECT f FROM unnest(login_attempts.failures) AS f WHERE f > $3),
            $2::timestamptz
        )
        RETURNING cardinality(failures)
    `
	var n int
	if err := r.db.QueryRow(ctx, query, username, now, now.Add(-window)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to record login failure: %w", err)
	}
	return n, nil
}

func (r *LoginAttemptRepository) LockedUntil(ctx context.Context, username string, now time.Time) (time.Time, error) {
	const query = `SELECT locked_until FROM login_attempts WHERE username = $1 AND locked_until > $2`

	var until time.Time
	if err := r.db.QueryRow(ctx, query, username, now).Scan(&until); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to read account lock: %w", err)
	}
	return until, nil
}

func (r *LoginAttemptRepository) Lock(ctx context.Context, username string, until time.Time) error {
	const query = `
        INSERT INTO login_attempts (username, locked_until) VALUES ($1, $2)
        ON CONFLICT (username) DO UPDATE SET locked_until = EXCLUDED.locked_until, failures = '{}'
    `
	if _, err := r.db.Exec(ctx, query, username, until); err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	return nil
}

func (r *LoginAttemptRepository) Reset(ctx context.Context, username string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM login_attempts WHERE username = $1`, username); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}
