package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dtroode/authz-server/internal/model"
)

var _ model.ClientStore = (*ClientRepository)(nil)

type ClientRepository struct {
	db *Connection
}

func NewClientRepository(db *Connection) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) GetClient(ctx context.Context, clientID string) (model.Client, error) {
	const query = `
        SELECT id, name, client_type, secret_hash, redirect_uris, allowed_scopes, require_consent,
               require_pkce, active, access_token_ttl, refresh_token_ttl, created_at, updated_at
        FROM clients WHERE id = $1
    `
	var (
		c                     model.Client
		clientType            string
		accessTTL, refreshTTL int64
	)
	err := r.db.QueryRow(ctx, query, clientID).Scan(
		&c.ID, &c.Name, &clientType, &c.SecretHash, &c.RedirectURIs, &c.AllowedScopes, &c.RequireConsent,
		&c.RequirePKCE, &c.Active, &accessTTL, &refreshTTL, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Client{}, model.ErrNotFound
		}
		return model.Client{}, fmt.Errorf("failed to get client: %w", err)
	}

	c.Type = model.ClientType(clientType)
	c.AccessTokenTTL = time.Duration(accessTTL) * time.Second
	c.RefreshTokenTTL = time.Duration(refreshTTL) * time.Second
	return c, nil
}

// CreateClient registers a client. Administrative use only.
func (r *ClientRepository) CreateClient(ctx context.Context, c model.Client) error {
	const query = `
        INSERT INTO clients (id, name, client_type, secret_hash, redirect_uris, allowed_scopes,
                             require_consent, require_pkce, active, access_token_ttl, refresh_token_ttl)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `
	_, err := r.db.Exec(ctx, query,
		c.ID, c.Name, string(c.Type), c.SecretHash, c.RedirectURIs, c.AllowedScopes,
		c.RequireConsent, c.RequirePKCE, c.Active,
		int64(c.AccessTTL()/time.Second), int64(c.RefreshTTL()/time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}
