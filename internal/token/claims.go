package token

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/dtroode/authz-server/internal/model"
)

// Token type markers.
const (
	typeSession = "session"
	typeConsent = "consent"

	// HeaderTypeAccess is the RFC 9068 media type for JWT access tokens.
	HeaderTypeAccess = "at+jwt"
	headerTypeJWT    = "JWT"
)

// AccessClaims are the claims of a signed access token. The audience is the
// client the token was issued to.
type AccessClaims struct {
	jwt.RegisteredClaims
	ClientID    string   `json:"client_id"`
	Scope       string   `json:"scope"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Scopes returns the granted scope as a list.
func (c *AccessClaims) Scopes() []string {
	return model.ParseScope(c.Scope)
}

// IDClaims are the claims of an OpenID Connect identity token.
type IDClaims struct {
	jwt.RegisteredClaims
	Nonce             string           `json:"nonce,omitempty"`
	AuthTime          *jwt.NumericDate `json:"auth_time,omitempty"`
	AccessTokenHash   string           `json:"at_hash,omitempty"`
	Email             string           `json:"email,omitempty"`
	EmailVerified     *bool            `json:"email_verified,omitempty"`
	Name              string           `json:"name,omitempty"`
	PreferredUsername string           `json:"preferred_username,omitempty"`
}

// SessionClaims identify an authenticated browser session. They are never
// accepted as OAuth tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
	AuthTime  *jwt.NumericDate `json:"auth_time"`
	TokenType string           `json:"typ"`
}

// ConsentClaims carry an in-flight authorization request across the consent hop.
// State travels as raw bytes so that values which are not valid UTF-8 come
// back unchanged.
type ConsentClaims struct {
	jwt.RegisteredClaims
	Request   model.AuthorizationRequest `json:"req"`
	RawState  []byte                     `json:"st,omitempty"`
	TokenType string                     `json:"typ"`
}

// Principal describes the caller the token was issued for.
func (c *AccessClaims) Principal() model.Principal {
	return model.Principal{
		Subject:     c.Subject,
		ClientID:    c.ClientID,
		TokenID:     c.ID,
		Scope:       c.Scopes(),
		Permissions: c.Permissions,
	}
}
