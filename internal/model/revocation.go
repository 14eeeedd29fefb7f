package model

import (
	"context"
	"time"
)

// RevocationList tracks revoked access token identifiers until their natural expiry.
type RevocationList interface {
	// RevokeAccessToken records the entry. Revoking an already revoked jti is a no-op.
	RevokeAccessToken(ctx context.Context, entry RevokedAccessToken) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	DeleteExpiredRevocations(ctx context.Context, before time.Time) (int64, error)
}

// RevokedAccessToken is a revocation list entry.
type RevokedAccessToken struct {
	JTI       string
	RevokedAt time.Time
	ExpiresAt time.Time
}
