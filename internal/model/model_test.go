package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseScope(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"openid", "profile", "docs:read"}, ParseScope("  openid profile openid   docs:read "))
	assert.Empty(t, ParseScope(""))
	assert.Equal(t, "openid docs:read", JoinScope([]string{"openid", "docs:read"}))
}

func TestIsSubset(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSubset([]string{"a"}, []string{"a", "b"}))
	assert.True(t, IsSubset(nil, []string{"a"}))
	assert.False(t, IsSubset([]string{"a", "c"}, []string{"a", "b"}))
}

func TestClient_HasRedirectURI(t *testing.T) {
	t.Parallel()

	c := Client{RedirectURIs: []string{"https://app.example.com/cb"}}

	assert.True(t, c.HasRedirectURI("https://app.example.com/cb"))
	assert.False(t, c.HasRedirectURI("https://app.example.com/cb/"))
	assert.False(t, c.HasRedirectURI("https://app.example.com/CB"))
	assert.False(t, c.HasRedirectURI(""))
}

func TestClient_TTLDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultAccessTokenTTL, Client{}.AccessTTL())
	assert.Equal(t, DefaultRefreshTokenTTL, Client{}.RefreshTTL())
	assert.Equal(t, time.Minute, Client{AccessTokenTTL: time.Minute}.AccessTTL())
}

func TestRoleAssignment_EffectiveAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := map[string]struct {
		a    RoleAssignment
		want bool
	}{
		"open":            {a: RoleAssignment{}, want: true},
		"revoked":         {a: RoleAssignment{RevokedAt: &past}, want: false},
		"not started":     {a: RoleAssignment{StartsAt: &future}, want: false},
		"started":         {a: RoleAssignment{StartsAt: &past}, want: true},
		"expired":         {a: RoleAssignment{ExpiresAt: &past}, want: false},
		"expires at now":  {a: RoleAssignment{ExpiresAt: &now}, want: false},
		"expires in time": {a: RoleAssignment{ExpiresAt: &future}, want: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.a.EffectiveAt(now))
		})
	}
}

func TestConsentGrant_Covers(t *testing.T) {
	t.Parallel()

	g := ConsentGrant{Scopes: []string{"openid", "docs:read"}}
	assert.True(t, g.Covers([]string{"openid"}))
	assert.False(t, g.Covers([]string{"openid", "docs:write"}))

	revoked := time.Now()
	g.RevokedAt = &revoked
	assert.False(t, g.Covers([]string{"openid"}))
}

func TestPermissionSet_Has(t *testing.T) {
	t.Parallel()

	s := PermissionSet{Permissions: []string{"docs:read", "docs:write"}}
	assert.True(t, s.Has("docs:write"))
	assert.False(t, s.Has("admin"))
}
