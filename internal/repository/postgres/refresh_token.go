package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dtroode/authz-server/internal/model"
)

var _ model.RefreshTokenStore = (*RefreshTokenRepository)(nil)

type RefreshTokenRepository struct {
	db *Connection
}

func NewRefreshTokenRepository(db *Connection) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const insertRefreshToken = `
    INSERT INTO refresh_tokens (
        token_hash, parent_hash, family_id, auth_code_hash, user_id, client_id, scope, auth_time, issued_at, expires_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`

func refreshArgs(t model.RefreshToken) []any {
	return []any{
		t.TokenHash, t.ParentHash, t.FamilyID, t.AuthCodeHash, nullableUUID(t.UserID), t.ClientID,
		t.Scope, t.AuthTime, t.IssuedAt, t.ExpiresAt,
	}
}

func (r *RefreshTokenRepository) CreateRefreshToken(ctx context.Context, token model.RefreshToken) error {
	if _, err := r.db.Exec(ctx, insertRefreshToken, refreshArgs(token)...); err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) GetRefreshToken(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	const query = `
        SELECT token_hash, parent_hash, family_id, auth_code_hash, user_id, client_id, scope,
               auth_time, issued_at, expires_at, revoked_at
        FROM refresh_tokens WHERE token_hash = $1
    `
	var (
		rt     model.RefreshToken
		userID *[16]byte
	)
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&rt.TokenHash, &rt.ParentHash, &rt.FamilyID, &rt.AuthCodeHash, &userID, &rt.ClientID, &rt.Scope,
		&rt.AuthTime, &rt.IssuedAt, &rt.ExpiresAt, &rt.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RefreshToken{}, model.ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if userID != nil {
		rt.UserID = *userID
	}
	return rt, nil
}

// RotateRefreshToken revokes the old token only if it is still active and
// inserts its successor in the same transaction. A zero-row update means
// another request already rotated or revoked it.
func (r *RefreshTokenRepository) RotateRefreshToken(ctx context.Context, oldHash string, next model.RefreshToken, now time.Time) error {
	const revoke = `UPDATE refresh_tokens SET revoked_at = $2 WHERE token_hash = $1 AND revoked_at IS NULL`

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, revoke, oldHash, now)
		if err != nil {
			return fmt.Errorf("failed to revoke rotated refresh token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.ErrConflict
		}
		if _, err := tx.Exec(ctx, insertRefreshToken, refreshArgs(next)...); err != nil {
			return fmt.Errorf("failed to insert successor refresh token: %w", err)
		}
		return nil
	})
}

func (r *RefreshTokenRepository) RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE family_id = $1 AND revoked_at IS NULL`

	tag, err := r.db.Exec(ctx, query, familyID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh token family: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepository) RevokeByAuthCode(ctx context.Context, codeHash string, now time.Time) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE auth_code_hash = $1 AND revoked_at IS NULL`

	tag, err := r.db.Exec(ctx, query, codeHash, now)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens by code: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepository) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
