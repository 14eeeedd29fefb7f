package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/authz-server/internal/model"
)

var _ model.ConsentStore = (*ConsentRepository)(nil)

type ConsentRepository struct {
	db *Connection
}

func NewConsentRepository(db *Connection) *ConsentRepository {
	return &ConsentRepository{db: db}
}

func (r *ConsentRepository) GetConsent(ctx context.Context, userID uuid.UUID, clientID string) (model.ConsentGrant, error) {
	const query = `
        SELECT user_id, client_id, scopes, granted_at, revoked_at
        FROM consent_grants WHERE user_id = $1 AND client_id = $2
    `
	var g model.ConsentGrant
	err := r.db.QueryRow(ctx, query, userID, clientID).Scan(&g.UserID, &g.ClientID, &g.Scopes, &g.GrantedAt, &g.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ConsentGrant{}, model.ErrNotFound
		}
		return model.ConsentGrant{}, fmt.Errorf("failed to get consent: %w", err)
	}
	return g, nil
}

func (r *ConsentRepository) SaveConsent(ctx context.Context, g model.ConsentGrant) error {
	const query = `
        INSERT INTO consent_grants (user_id, client_id, scopes, granted_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, client_id) DO UPDATE SET
            scopes = CASE
                WHEN consent_grants.revoked_at IS NULL
                    THEN ARRAY(SELECT DISTINCT unnest(consent_grants.scopes || EXCLUDED.scopes))
                ELSE EXCLUDED.scopes
            END,
            granted_at = EXCLUDED.granted_at,
            revoked_at = NULL
    `
	if _, err := r.db.Exec(ctx, query, g.UserID, g.ClientID, g.Scopes, g.GrantedAt); err != nil {
		return fmt.Errorf("failed to save consent: %w", err)
	}
	return nil
}

func (r *ConsentRepository) RevokeConsent(ctx context.Context, userID uuid.UUID, clientID string, now time.Time) error {
	const query = `UPDATE consent_grants SET revoked_at = $3 WHERE user_id = $1 AND client_id = $2 AND revoked_at IS NULL`

	if _, err := r.db.Exec(ctx, query, userID, clientID, now); err != nil {
		return fmt.Errorf("failed to revoke consent: %w", err)
	}
	return nil
}
