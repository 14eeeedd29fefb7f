package model

import (
	"context"
	"slices"
	"strings"
)

// Identity scopes are granted to any authenticated user.
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeOfflineAccess = "offline_access"
)

var identityScopes = []string{ScopeOpenID, ScopeProfile, ScopeEmail, ScopeOfflineAccess}

// IsIdentityScope reports whether s needs no permission to be granted.
func IsIdentityScope(s string) bool {
	return slices.Contains(identityScopes, s)
}

// ScopeStore reads the scope catalogue.
type ScopeStore interface {
	// GetScopes returns the catalogue entries among names. Unknown names are absent from the map.
	GetScopes(ctx context.Context, names []string) (map[string]Scope, error)
}

// Scope is a catalogue entry.
type Scope struct {
	Name               string
	Description        string
	RequiredPermission string
}

// Permission returns the permission that entitles a user to the scope.
func (s Scope) Permission() string {
	if s.RequiredPermission != "" {
		return s.RequiredPermission
	}
	return s.Name
}

// ParseScope splits a space-delimited scope string, dropping duplicates and
// empty entries while preserving order.
func ParseScope(raw string) []string {
	fields := strings.Fields(raw)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// JoinScope renders scopes in the wire format.
func JoinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// IsSubset reports whether every element of sub is in set.
func IsSubset(sub, set []string) bool {
	for _, s := range sub {
		if !slices.Contains(set, s) {
			return false
		}
	}
	return true
}
