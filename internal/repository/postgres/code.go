package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dtroode/authz-server/internal/model"
)

var _ model.CodeStore = (*CodeRepository)(nil)

type CodeRepository struct {
	db *Connection
}

func NewCodeRepository(db *Connection) *CodeRepository {
	return &CodeRepository{db: db}
}

const codeColumns = `code_hash, user_id, client_id, scope, redirect_uri, code_challenge, code_challenge_method,
               nonce, auth_time, expires_at, used_at, created_at`

func scanCode(row pgx.Row) (model.AuthorizationCode, error) {
	var c model.AuthorizationCode
	err := row.Scan(&c.CodeHash, &c.UserID, &c.ClientID, &c.Scope, &c.RedirectURI, &c.CodeChallenge,
		&c.CodeChallengeMethod, &c.Nonce, &c.AuthTime, &c.ExpiresAt, &c.UsedAt, &c.CreatedAt)
	return c, err
}

func (r *CodeRepository) CreateCode(ctx context.Context, c model.AuthorizationCode) error {
	const query = `
        INSERT INTO authorization_codes (code_hash, user_id, client_id, scope, redirect_uri, code_challenge,
                                         code_challenge_method, nonce, auth_time, expires_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    `
	_, err := r.db.Exec(ctx, query, c.CodeHash, c.UserID, c.ClientID, c.Scope, c.RedirectURI, c.CodeChallenge,
		c.CodeChallengeMethod, c.Nonce, c.AuthTime, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create authorization code: %w", err)
	}
	return nil
}

// ConsumeCode flips used_at in a single conditional update, so of any number
// of concurrent callers exactly one gets the row back.
func (r *CodeRepository) ConsumeCode(ctx context.Context, codeHash string, now time.Time) (model.AuthorizationCode, error) {
	query := `
        UPDATE authorization_codes SET used_at = $2
        WHERE code_hash = $1 AND used_at IS NULL AND expires_at > $2
        RETURNING ` + codeColumns

	c, err := scanCode(r.db.QueryRow(ctx, query, codeHash, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AuthorizationCode{}, model.ErrNotFound
		}
		return model.AuthorizationCode{}, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	return c, nil
}

func (r *CodeRepository) GetCode(ctx context.Context, codeHash string) (model.AuthorizationCode, error) {
	query := `SELECT ` + codeColumns + ` FROM authorization_codes WHERE code_hash = $1`

	c, err := scanCode(r.db.QueryRow(ctx, query, codeHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AuthorizationCode{}, model.ErrNotFound
		}
		return model.AuthorizationCode{}, fmt.Errorf("failed to get authorization code: %w", err)
	}
	return c, nil
}

func (r *CodeRepository) DeleteExpiredCodes(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM authorization_codes WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
