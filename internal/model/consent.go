package model

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ConsentStore persists prior consent grants.
type ConsentStore interface {
	GetConsent(ctx context.Context, userID uuid.UUID, clientID string) (ConsentGrant, error)
	// SaveConsent stores the union of the existing grant and scopes.
	SaveConsent(ctx context.Context, grant ConsentGrant) error
	RevokeConsent(ctx context.Context, userID uuid.UUID, clientID string, now time.Time) error
}

// ConsentGrant records that a user approved a set of scopes for a client.
type ConsentGrant struct {
	UserID    uuid.UUID
	ClientID  string
	Scopes    []string
	GrantedAt time.Time
	RevokedAt *time.Time
}

// Covers reports whether the active grant includes every requested scope.
func (g ConsentGrant) Covers(scopes []string) bool {
	if g.RevokedAt != nil {
		return false
	}
	for _, s := range scopes {
		if !slices.Contains(g.Scopes, s) {
			return false
		}
	}
	return true
}
