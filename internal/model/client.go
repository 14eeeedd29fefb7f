package model

import (
	"context"
	"slices"
	"time"
)

// ClientType is the OAuth confidentiality class of a client.
type ClientType string

const (
	// ClientTypePublic cannot keep a secret (SPA, native app).
	ClientTypePublic ClientType = "public"
	// ClientTypeConfidential authenticates with a secret.
	ClientTypeConfidential ClientType = "confidential"
)

// Default token lifetimes used when a client does not configure its own.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultCodeTTL         = 10 * time.Minute
)

// ClientStore reads registered relying parties.
type ClientStore interface {
	GetClient(ctx context.Context, clientID string) (Client, error)
}

// Client is a registered relying party.
type Client struct {
	ID              string
	Name            string
	Type            ClientType
	SecretHash      []byte
	RedirectURIs    []string
	AllowedScopes   []string
	RequireConsent  bool
	RequirePKCE     bool
	Active          bool
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsConfidential reports whether the client must authenticate with a secret.
func (c Client) IsConfidential() bool {
	return c.Type == ClientTypeConfidential
}

// HasRedirectURI reports whether uri is registered. Matching is exact string
// equality only.
func (c Client) HasRedirectURI(uri string) bool {
	return uri != "" && slices.Contains(c.RedirectURIs, uri)
}

// AccessTTL returns the configured access token lifetime.
func (c Client) AccessTTL() time.Duration {
	if c.AccessTokenTTL > 0 {
		return c.AccessTokenTTL
	}
	return DefaultAccessTokenTTL
}

// RefreshTTL returns the configured refresh token lifetime.
func (c Client) RefreshTTL() time.Duration {
	if c.RefreshTokenTTL > 0 {
		return c.RefreshTokenTTL
	}
	return DefaultRefreshTokenTTL
}
