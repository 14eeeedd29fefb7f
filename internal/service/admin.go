package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/dtroode/authz-server/internal/model"
)

// Invalidator drops cached permission sets.
type Invalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID)
	InvalidateRole(ctx context.Context, roleID uuid.UUID) error
}

// Directory applies role changes and invalidates the permission cache of
// every affected user before returning.
type Directory struct {
	admin       model.DirectoryAdmin
	consents    model.ConsentStore
	invalidator Invalidator
	obs         Observer
}

func NewDirectory(admin model.DirectoryAdmin, consents model.ConsentStore, invalidator Invalidator, obs Observer) *Directory {
	return &Directory{admin: admin, consents: consents, invalidator: invalidator, obs: obs}
}

func (d *Directory) AssignRole(ctx context.Context, a model.RoleAssignment) error {
	if a.UserID == uuid.Nil || a.RoleID == uuid.Nil {
		return model.NewValidationError("user_id and role_id are required")
	}
	if a.StartsAt != nil && a.ExpiresAt != nil && !a.ExpiresAt.After(*a.StartsAt) {
		return model.NewValidationError("assignment expires before it starts")
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = d.obs.now()
	}

	if err := d.admin.AssignRole(ctx, a); err != nil {
		d.obs.Logger.Error("Directory service: failed to assign role",
			"user_id", a.UserID,
			"role_id", a.RoleID,
			"error", err.Error())
		return fmt.Errorf("failed to assign role: %w", err)
	}
	d.invalidator.Invalidate(ctx, a.UserID)
	d.flushed(ctx, a.UserID.String(), "role assigned", a.RoleID)
	return nil
}

func (d *Directory) RevokeRole(ctx context.Context, userID, roleID uuid.UUID) error {
	if err := d.admin.RevokeRole(ctx, userID, roleID, d.obs.now()); err != nil {
		d.obs.Logger.Error("Directory service: failed to revoke role",
			"user_id", userID,
			"role_id", roleID,
			"error", err.Error())
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	d.invalidator.Invalidate(ctx, userID)
	d.flushed(ctx, userID.String(), "role revoked", roleID)
	return nil
}

// SetRolePermissions replaces the permissions of a role and invalidates every member.
func (d *Directory) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissions []string) error {
	for _, p := range permissions {
		if p == "" {
			return model.NewValidationError("empty permission name")
		}
	}
	permissions = slices.Compact(slices.Sorted(slices.Values(permissions)))

	if err := d.admin.SetRolePermissions(ctx, roleID, permissions); err != nil {
		d.obs.Logger.Error("Directory service: failed to set role permissions",
			"role_id", roleID,
			"error", err.Error())
		return fmt.Errorf("failed to set role permissions: %w", err)
	}

	// The resolver falls back to flushing every entry when members cannot be listed.
	if err := d.invalidator.InvalidateRole(ctx, roleID); err != nil {
		d.obs.Logger.Warn("Directory service: role invalidation fell back to full flush",
			"role_id", roleID,
			"error", err.Error())
	}
	d.flushed(ctx, "", "role permissions changed", roleID)
	return nil
}

// RevokeConsent withdraws a prior consent so the next authorization asks again.
func (d *Directory) RevokeConsent(ctx context.Context, userID uuid.UUID, clientID string) error {
	if err := d.consents.RevokeConsent(ctx, userID, clientID, d.obs.now()); err != nil {
		return fmt.Errorf("failed to revoke consent: %w", err)
	}
	d.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditConsentRevoked,
		Actor:    userID.String(),
		ClientID: clientID,
		Outcome:  model.OutcomeSuccess,
	})
	return nil
}

func (d *Directory) flushed(ctx context.Context, actor, why string, roleID uuid.UUID) {
	d.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditPermissionsFlushed,
		Actor:    actor,
		Resource: roleID.String(),
		Outcome:  model.OutcomeSuccess,
		Reason:   why,
	})
}
