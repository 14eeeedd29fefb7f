package memory

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dtroode/authz-server/internal/model"
)

// Demo client identifiers registered by Seed.
const (
	DemoPublicClient       = "demo-spa"
	DemoConfidentialClient = "demo-service"
)

// SeedOptions configures the demo data.
type SeedOptions struct {
	AdminPassword string
	ServiceSecret string
	RedirectURI   string
}

// Seed registers a small demo directory: an admin and a reader account, a
// public PKCE client and a confidential service client.
func (s *Store) Seed(ctx context.Context, opts SeedOptions) error {
	if opts.AdminPassword == "" || opts.ServiceSecret == "" {
		return fmt.Errorf("seed: admin password and service secret are required")
	}
	if opts.RedirectURI == "" {
		opts.RedirectURI = "http://localhost:3000/callback"
	}

	password, err := bcrypt.GenerateFromPassword([]byte(opts.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	secret, err := bcrypt.GenerateFromPassword([]byte(opts.ServiceSecret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash client secret: %w", err)
	}

	admin := s.PutRole(model.Role{Name: "admin", Permissions: []string{model.PermissionAdmin, "docs:read", "docs:write"}})
	reader := s.PutRole(model.Role{Name: "reader", Permissions: []string{"docs:read"}})
	s.PutScope(model.Scope{Name: "docs", Description: "Read your documents", RequiredPermission: "docs:read"})
	s.PutScope(model.Scope{Name: "docs:write", Description: "Edit your documents"})

	now := time.Now()
	for _, u := range []struct {
		name string
		role model.Role
	}{{"admin", admin}, {"reader", reader}} {
		user, err := s.Create(ctx, model.User{
			Username:      u.name,
			Email:         u.name + "@example.com",
			EmailVerified: true,
			Name:          u.name,
			PasswordHash:  password,
			Active:        true,
		})
		if err != nil {
			return fmt.Errorf("failed to create user %s: %w", u.name, err)
		}
		if err := s.AssignRole(ctx, model.RoleAssignment{UserID: user.ID, RoleID: u.role.ID, AssignedAt: now}); err != nil {
			return fmt.Errorf("failed to assign role %s: %w", u.role.Name, err)
		}
	}

	s.PutClient(model.Client{
		ID:             DemoPublicClient,
		Name:           "Demo SPA",
		Type:           model.ClientTypePublic,
		RedirectURIs:   []string{opts.RedirectURI},
		AllowedScopes:  []string{model.ScopeOpenID, model.ScopeProfile, model.ScopeEmail, model.ScopeOfflineAccess, "docs", "docs:write"},
		RequireConsent: true,
		RequirePKCE:    true,
		Active:         true,
	})
	s.PutClient(model.Client{
		ID:             DemoConfidentialClient,
		Name:           "Demo Service",
		Type:           model.ClientTypeConfidential,
		SecretHash:     secret,
		RedirectURIs:   []string{opts.RedirectURI},
		AllowedScopes:  []string{model.ScopeOpenID, "docs"},
		Active:         true,
		AccessTokenTTL: 5 * time.Minute,
	})
	return nil
}
