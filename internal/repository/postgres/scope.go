package postgres

import (
	"context"
	"fmt"

	"github.com/dtroode/authz-server/internal/model"
)

var _ model.ScopeStore = (*ScopeRepository)(nil)

type ScopeRepository struct {
	db *Connection
}

func NewScopeRepository(db *Connection) *ScopeRepository {
	return &ScopeRepository{db: db}
}

func (r *ScopeRepository) GetScopes(ctx context.Context, names []string) (map[string]model.Scope, error) {
	const query = `SELECT name, description, COALESCE(required_permission, '') FROM scopes WHERE name = ANY($1)`

	rows, err := r.db.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("failed to get scopes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.Scope, len(names))
	for rows.Next() {
		var s model.Scope
		if err := rows.Scan(&s.Name, &s.Description, &s.RequiredPermission); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		out[s.Name] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scopes: %w", err)
	}
	return out, nil
}

// PutScope inserts or updates a catalogue entry.
func (r *ScopeRepository) PutScope(ctx context.Context, s model.Scope) error {
	const query = `
        INSERT INTO scopes (name, description, required_permission) VALUES ($1, $2, NULLIF($3, ''))
        ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, required_permission = EXCLUDED.required_permission
    `
	if s.RequiredPermission != "" {
		if _, err := r.db.Exec(ctx, `INSERT INTO permissions (name) VALUES ($1) ON CONFLICT DO NOTHING`, s.RequiredPermission); err != nil {
			return fmt.Errorf("failed to upsert permission: %w", err)
		}
	}
	if _, err := r.db.Exec(ctx, query, s.Name, s.Description, s.RequiredPermission); err != nil {
		return fmt.Errorf("failed to put scope: %w", err)
	}
	return nil
}
