package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/authz-server/internal/model"
)

var (
	_ model.DirectoryStore = (*DirectoryRepository)(nil)
	_ model.DirectoryAdmin = (*DirectoryRepository)(nil)
)

type DirectoryRepository struct {
	db *Connection
}

func NewDirectoryRepository(db *Connection) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) ListRoleAssignments(ctx context.Context, userID uuid.UUID) ([]model.RoleAssignment, error) {
	const query = `
        SELECT ur.user_id, ur.role_id, r.name,
               COALESCE(array_agg(rp.permission ORDER BY rp.permission) FILTER (WHERE rp.permission IS NOT NULL), '{}'),
               ur.assigned_at, ur.starts_at, ur.expires_at, ur.revoked_at
        FROM user_roles ur
        JOIN roles r ON r.id = ur.role_id
        LEFT JOIN role_permissions rp ON rp.role_id = ur.role_id
        WHERE ur.user_id = $1
        GROUP BY ur.id, r.name
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}

	assignments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RoleAssignment, error) {
		var a model.RoleAssignment
		err := row.Scan(&a.UserID, &a.RoleID, &a.RoleName, &a.Permissions,
			&a.AssignedAt, &a.StartsAt, &a.ExpiresAt, &a.RevokedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan role assignments: %w", err)
	}
	return assignments, nil
}

func (r *DirectoryRepository) ListRoleMembers(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	const query = `SELECT DISTINCT user_id FROM user_roles WHERE role_id = $1 AND revoked_at IS NULL`

	rows, err := r.db.Query(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role members: %w", err)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan role members: %w", err)
	}
	return members, nil
}

// CreateRole inserts a role with its permissions, creating missing permissions.
func (r *DirectoryRepository) CreateRole(ctx context.Context, role model.Role) (model.Role, error) {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO roles (id, name) VALUES ($1, $2)`, role.ID, role.Name); err != nil {
			return fmt.Errorf("failed to insert role: %w", err)
		}
		return replacePermissions(ctx, tx, role.ID, role.Permissions)
	})
	if err != nil {
		return model.Role{}, err
	}
	return role, nil
}

func (r *DirectoryRepository) AssignRole(ctx context.Context, a model.RoleAssignment) error {
	const query = `
        INSERT INTO user_roles (id, user_id, role_id, assigned_at, starts_at, expires_at)
        VALUES ($1, $2, $3, COALESCE($4, NOW()), $5, $6)
    `
	var assignedAt *time.Time
	if !a.AssignedAt.IsZero() {
		assignedAt = &a.AssignedAt
	}
	if _, err := r.db.Exec(ctx, query, uuid.New(), a.UserID, a.RoleID, assignedAt, a.StartsAt, a.ExpiresAt); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

func (r *DirectoryRepository) RevokeRole(ctx context.Context, userID, roleID uuid.UUID, now time.Time) error {
	const query = `UPDATE user_roles SET revoked_at = $3 WHERE user_id = $1 AND role_id = $2 AND revoked_at IS NULL`

	if _, err := r.db.Exec(ctx, query, userID, roleID, now); err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

func (r *DirectoryRepository) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissions []string) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		return replacePermissions(ctx, tx, roleID, permissions)
	})
}

func replacePermissions(ctx context.Context, tx pgx.Tx, roleID uuid.UUID, permissions []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}
	if len(permissions) == 0 {
		return nil
	}

	const upsert = `INSERT INTO permissions (name) SELECT unnest($1::text[]) ON CONFLICT DO NOTHING`
	if _, err := tx.Exec(ctx, upsert, permissions); err != nil {
		return fmt.Errorf("failed to upsert permissions: %w", err)
	}

	const link = `INSERT INTO role_permissions (role_id, permission) SELECT $1, unnest($2::text[])`
	if _, err := tx.Exec(ctx, link, roleID, permissions); err != nil {
		return fmt.Errorf("failed to link role permissions: %w", err)
	}
	return nil
}
