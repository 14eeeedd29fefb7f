package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RefreshTokenStore persists refresh tokens as a flat arena of records keyed
// by token hash.
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, token RefreshToken) error
	GetRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error)
	// RotateRefreshToken revokes oldHash only if it is still unrevoked and
	// inserts next in the same atomic step. It returns ErrConflict when the
	// old token was revoked concurrently.
	RotateRefreshToken(ctx context.Context, oldHash string, next RefreshToken, now time.Time) error
	// RevokeFamily revokes every token in a rotation chain.
	RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error)
	// RevokeByAuthCode revokes every chain minted from the given code.
	RevokeByAuthCode(ctx context.Context, codeHash string, now time.Time) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

// RefreshToken is an opaque long-lived credential stored as a hash.
type RefreshToken struct {
	TokenHash    string
	ParentHash   *string
	FamilyID     string
	AuthCodeHash string
	UserID       uuid.UUID
	ClientID     string
	Scope        []string
	AuthTime     time.Time
	IssuedAt     time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
}

// Revoked reports whether the token has been rotated or revoked.
func (t RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
