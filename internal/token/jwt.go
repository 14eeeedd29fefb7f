// Package token mints and parses the signed assertions issued by the server:
// access and identity tokens signed with the asymmetric key ring, and the
// HMAC-signed session and consent-challenge tokens used inside the flow.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dtroode/authz-server/internal/keys"
	"github.com/dtroode/authz-server/internal/model"
)

// ErrInvalidToken is returned for any token that fails parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// Default lifetimes of the tokens minted here.
const (
	DefaultSessionTTL = time.Hour
	DefaultConsentTTL = 10 * time.Minute
	DefaultIDTokenTTL = time.Hour
)

// Config configures an Issuer.
type Config struct {
	Issuer     string
	Secret     []byte
	SessionTTL time.Duration
	ConsentTTL time.Duration
	IDTokenTTL time.Duration
}

// Option customizes an Issuer.
type Option func(*JWT)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(j *JWT) {
		j.now = now
	}
}

// JWT mints and validates every JWT the server produces.
type JWT struct {
	keys       keys.Provider
	issuer     string
	secret     []byte
	sessionTTL time.Duration
	consentTTL time.Duration
	idTokenTTL time.Duration
	now        func() time.Time
}

// NewJWT creates a token manager.
func NewJWT(provider keys.Provider, cfg Config, opts ...Option) *JWT {
	j := &JWT{
		keys:       provider,
		issuer:     cfg.Issuer,
		secret:     cfg.Secret,
		sessionTTL: orDefault(cfg.SessionTTL, DefaultSessionTTL),
		consentTTL: orDefault(cfg.ConsentTTL, DefaultConsentTTL),
		idTokenTTL: orDefault(cfg.IDTokenTTL, DefaultIDTokenTTL),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Issuer returns the iss claim value.
func (j *JWT) Issuer() string {
	return j.issuer
}

// AccessParams describe an access token to mint.
type AccessParams struct {
	Subject     string
	ClientID    string
	Scope       []string
	Roles       []string
	Permissions []string
	TTL         time.Duration
}

// GenerateAccessToken signs an access token with the current key.
func (j *JWT) GenerateAccessToken(p AccessParams) (string, *AccessClaims, error) {
	now := j.now().Truncate(time.Second)
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings{p.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.TTL)),
			ID:        uuid.NewString(),
		},
		ClientID:    p.ClientID,
		Scope:       model.JoinScope(p.Scope),
		Roles:       p.Roles,
		Permissions: p.Permissions,
	}

	raw, err := j.sign(claims, HeaderTypeAccess)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	return raw, claims, nil
}

// ParseAccessToken validates signature, issuer, expiry and token type.
// Revocation is checked by the caller.
func (j *JWT) ParseAccessToken(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, j.verificationKey,
		jwt.WithValidMethods(j.validMethods()),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if typ, _ := token.Header["typ"].(string); typ != HeaderTypeAccess {
		return nil, fmt.Errorf("%w: token type mismatch: %s", ErrInvalidToken, typ)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing jti or sub", ErrInvalidToken)
	}
	return claims, nil
}

// IDParams describe an identity token to mint.
type IDParams struct {
	User        *model.User
	Subject     string
	ClientID    string
	Nonce       string
	AuthTime    time.Time
	Scope       []string
	AccessToken string
}

// GenerateIDToken signs an OpenID Connect identity token.
func (j *JWT) GenerateIDToken(p IDParams) (string, error) {
	now := j.now().Truncate(time.Second)
	claims := &IDClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings{p.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.idTokenTTL)),
		},
		Nonce: p.Nonce,
	}
	if !p.AuthTime.IsZero() {
		claims.AuthTime = jwt.NewNumericDate(p.AuthTime)
	}
	if p.AccessToken != "" {
		claims.AccessTokenHash = halfHash(p.AccessToken)
	}
	if p.User != nil {
		for _, s := range p.Scope {
			switch s {
			case model.ScopeEmail:
				verified := p.User.EmailVerified
				claims.Email = p.User.Email
				claims.EmailVerified = &verified
			case model.ScopeProfile:
				claims.Name = p.User.Name
				claims.PreferredUsername = p.User.Username
			}
		}
	}

	raw, err := j.sign(claims, headerTypeJWT)
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}
	return raw, nil
}

// ParseIDToken validates an identity token minted by this server for audience.
func (j *JWT) ParseIDToken(raw, audience string) (*IDClaims, error) {
	claims := &IDClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, j.verificationKey,
		jwt.WithValidMethods(j.validMethods()),
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// GenerateSessionToken creates the browser session assertion for an authenticated user.
func (j *JWT) GenerateSessionToken(userID uuid.UUID, authTime time.Time) (string, error) {
	now := j.now().Truncate(time.Second)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.sessionTTL)),
			ID:        uuid.NewString(),
		},
		AuthTime:  jwt.NewNumericDate(authTime),
		TokenType: typeSession,
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return raw, nil
}

// ParseSessionToken returns the user and authentication time of a valid session.
func (j *JWT) ParseSessionToken(raw string) (uuid.UUID, time.Time, error) {
	claims := &SessionClaims{}
	if err := j.parseHMAC(raw, claims); err != nil {
		return uuid.Nil, time.Time{}, err
	}
	if claims.TokenType != typeSession {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: token type mismatch: %s", ErrInvalidToken, claims.TokenType)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	authTime := claims.IssuedAt.Time
	if claims.AuthTime != nil {
		authTime = claims.AuthTime.Time
	}
	return userID, authTime, nil
}

// GenerateConsentChallenge signs the in-flight request for the consent hop.
func (j *JWT) GenerateConsentChallenge(userID uuid.UUID, req model.AuthorizationRequest) (string, error) {
	now := j.now().Truncate(time.Second)
	state := []byte(req.State)
	req.State = ""
	claims := ConsentClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.consentTTL)),
			ID:        uuid.NewString(),
		},
		Request:   req,
		RawState:  state,
		TokenType: typeConsent,
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign consent challenge: %w", err)
	}
	return raw, nil
}

// ParseConsentChallenge validates a challenge and checks it belongs to userID.
func (j *JWT) ParseConsentChallenge(raw string, userID uuid.UUID) (model.AuthorizationRequest, error) {
	claims := &ConsentClaims{}
	if err := j.parseHMAC(raw, claims); err != nil {
		return model.AuthorizationRequest{}, err
	}
	if claims.TokenType != typeConsent {
		return model.AuthorizationRequest{}, fmt.Errorf("%w: token type mismatch: %s", ErrInvalidToken, claims.TokenType)
	}
	if claims.Subject != userID.String() {
		return model.AuthorizationRequest{}, fmt.Errorf("%w: challenge bound to another user", ErrInvalidToken)
	}
	req := claims.Request
	req.State = string(claims.RawState)
	return req, nil
}

func (j *JWT) parseHMAC(raw string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return nil
}

func (j *JWT) sign(claims jwt.Claims, typ string) (string, error) {
	key := j.keys.SigningKey()
	method := jwt.GetSigningMethod(key.Algorithm)
	if method == nil {
		return "", fmt.Errorf("unsupported signing algorithm %s", key.Algorithm)
	}

	t := jwt.NewWithClaims(method, claims)
	t.Header["kid"] = key.ID
	t.Header["typ"] = typ
	return t.SignedString(key.Signer)
}

// verificationKey selects the current or previous key by kid.
func (j *JWT) verificationKey(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	key, ok := j.keys.Lookup(kid)
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	if t.Method.Alg() != key.Algorithm {
		return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
	}
	return key.Public(), nil
}

func (j *JWT) validMethods() []string {
	var methods []string
	for _, k := range j.keys.VerificationKeys() {
		methods = append(methods, k.Algorithm)
	}
	return methods
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
