package model

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// DirectoryStore reads role assignments and the permissions they carry.
type DirectoryStore interface {
	// ListRoleAssignments returns every assignment of the user, including
	// revoked and not yet effective ones, with the permissions of each role.
	ListRoleAssignments(ctx context.Context, userID uuid.UUID) ([]RoleAssignment, error)
	// ListRoleMembers returns users holding an unrevoked assignment of the role.
	ListRoleMembers(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error)
}

// DirectoryAdmin mutates role assignments and role permissions. Callers must
// invalidate the permission cache of every affected user afterwards.
type DirectoryAdmin interface {
	AssignRole(ctx context.Context, assignment RoleAssignment) error
	RevokeRole(ctx context.Context, userID, roleID uuid.UUID, now time.Time) error
	SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissions []string) error
}

// Role is a named bundle of permissions.
type Role struct {
	ID          uuid.UUID
	Name        string
	Permissions []string
}

// RoleAssignment binds a role to a user for a time window.
type RoleAssignment struct {
	UserID      uuid.UUID
	RoleID      uuid.UUID
	RoleName    string
	Permissions []string
	AssignedAt  time.Time
	StartsAt    *time.Time
	ExpiresAt   *time.Time
	RevokedAt   *time.Time
}

// EffectiveAt reports whether the assignment grants its permissions at now.
func (a RoleAssignment) EffectiveAt(now time.Time) bool {
	if a.RevokedAt != nil {
		return false
	}
	if a.StartsAt != nil && now.Before(*a.StartsAt) {
		return false
	}
	if a.ExpiresAt != nil && !now.Before(*a.ExpiresAt) {
		return false
	}
	return true
}

// PermissionResolver computes the effective permissions of a user.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (PermissionSet, error)
}

// PermissionAdmin lets a caller manage roles through the admin API.
const PermissionAdmin = "authz:admin"

// PermissionSet is the flattened union of permissions from effective roles.
// Both slices are sorted and free of duplicates.
type PermissionSet struct {
	Roles       []string
	Permissions []string
}

// Has reports whether the set contains permission p.
func (s PermissionSet) Has(p string) bool {
	_, ok := slices.BinarySearch(s.Permissions, p)
	return ok
}
