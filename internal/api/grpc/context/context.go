package context

import (
	"context"

	"github.com/dtroode/authz-server/internal/model"
)

type principalKey struct{}

// Manager stores the authenticated principal in a request context. It is
// shared by the gRPC interceptors and the HTTP bearer middleware.
type Manager struct{}

// NewManager creates a new context manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// SetPrincipalToContext returns a context carrying p.
//
// Parameters:
//   - ctx: The request context
//   - p: The authenticated caller
//
// Returns a new context with the principal attached.
func (m *Manager) SetPrincipalToContext(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipalFromContext returns the principal set by SetPrincipalToContext.
//
// Parameters:
//   - ctx: The request context
//
// Returns the principal and a boolean indicating if one was found.
func (m *Manager) GetPrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(model.Principal)
	if !ok || p.Subject == "" {
		return model.Principal{}, false
	}
	return p, true
}
