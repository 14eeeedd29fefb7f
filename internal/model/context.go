package model

import (
	"context"
)

// Principal is the authenticated caller of a protected endpoint.
type Principal struct {
	Subject     string
	ClientID    string
	TokenID     string
	Scope       []string
	Permissions []string
}

// ContextManager stores and retrieves the authenticated principal.
type ContextManager interface {
	SetPrincipalToContext(ctx context.Context, p Principal) context.Context
	GetPrincipalFromContext(ctx context.Context) (Principal, bool)
}
