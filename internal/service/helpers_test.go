package service

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dtroode/authz-server/internal/keys"
	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/permission"
	"github.com/dtroode/authz-server/internal/pkce"
	"github.com/dtroode/authz-server/internal/repository/memory"
	"github.com/dtroode/authz-server/internal/testutil"
	"github.com/dtroode/authz-server/internal/token"
)

const (
	issuer         = "https://auth.example.com"
	portalRedirect = "https://admin.example.com/callback"
	alicePassword  = "correct horse battery staple"
	reportsSecret  = "reports-secret"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type auditRecorder struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (r *auditRecorder) Emit(_ context.Context, e model.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *auditRecorder) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

type fixture struct {
	store     *memory.Store
	jwt       *token.JWT
	ring      *keys.Ring
	resolver  *permission.Resolver
	audit     *auditRecorder
	clock     *clock
	authz     *Authorizer
	tokens    *TokenService
	user      model.User
	editor    model.Role
	portal    model.Client
	reporting model.Client
	verifier  string
	challenge string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store: memory.New(),
		audit: &auditRecorder{},
		clock: &clock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)},
	}

	signer, err := keys.Generate()
	require.NoError(t, err)
	f.ring, err = keys.NewRing(signer)
	require.NoError(t, err)
	f.jwt = token.NewJWT(f.ring, token.Config{Issuer: issuer, Secret: []byte("test-session-secret")}, token.WithClock(f.clock.now))

	log := testutil.MakeNoopLogger()
	f.resolver = permission.NewResolver(f.store, time.Minute, log, permission.WithClock(f.clock.now))
	obs := Observer{Logger: log, Audit: f.audit, Now: f.clock.now}

	hash, err := bcrypt.GenerateFromPassword([]byte(alicePassword), bcrypt.MinCost)
	require.NoError(t, err)
	f.user, err = f.store.Create(ctx, model.User{
		Username:      "alice",
		Email:         "alice@example.com",
		EmailVerified: true,
		Name:          "Alice Liddell",
		PasswordHash:  hash,
		Active:        true,
	})
	require.NoError(t, err)

	f.editor = f.store.PutRole(model.Role{Name: "editor", Permissions: []string{"docs:read", "docs:write"}})
	require.NoError(t, f.store.AssignRole(ctx, model.RoleAssignment{UserID: f.user.ID, RoleID: f.editor.ID, AssignedAt: f.clock.now()}))
	f.store.PutScope(model.Scope{Name: "docs", Description: "Read your documents", RequiredPermission: "docs:read"})

	f.portal = model.Client{
		ID:             "admin-portal",
		Name:           "Admin Portal",
		Type:           model.ClientTypePublic,
		RedirectURIs:   []string{portalRedirect},
		AllowedScopes:  []string{"openid", "profile", "email", "offline_access", "docs", "docs:write", "admin:all"},
		RequireConsent: true,
		RequirePKCE:    true,
		Active:         true,
	}
	f.store.PutClient(f.portal)

	secret, err := bcrypt.GenerateFromPassword([]byte(reportsSecret), bcrypt.MinCost)
	require.NoError(t, err)
	f.reporting = model.Client{
		ID:             "reporting",
		Name:           "Reporting",
		Type:           model.ClientTypeConfidential,
		SecretHash:     secret,
		RedirectURIs:   []string{"https://reports.example.com/cb"},
		AllowedScopes:  []string{"openid", "docs", "reports:run"},
		RequireConsent: false,
		Active:         true,
		AccessTokenTTL: 5 * time.Minute,
	}
	f.store.PutClient(f.reporting)

	f.verifier, f.challenge = pkce.NewPair()

	f.authz = NewAuthorizer(AuthorizerDeps{
		Clients:     f.store,
		Users:       f.store,
		Scopes:      f.store,
		Consents:    f.store,
		Codes:       f.store,
		Attempts:    f.store,
		Permissions: f.resolver,
		Tokens:      f.jwt,
	}, AuthorizerConfig{}, obs)

	f.tokens = NewTokenService(TokenServiceDeps{
		Clients:     NewClientAuthenticator(f.store, obs),
		Users:       f.store,
		Scopes:      f.store,
		Codes:       f.store,
		Refresh:     f.store,
		Revocations: f.store,
		Permissions: f.resolver,
		Tokens:      f.jwt,
	}, obs)

	return f
}

func (f *fixture) portalRequest(scope ...string) model.AuthorizationRequest {
	return model.AuthorizationRequest{
		ResponseType:        model.ResponseTypeCode,
		ClientID:            f.portal.ID,
		RedirectURI:         portalRedirect,
		Scope:               scope,
		State:               "xyz/+= &state",
		CodeChallenge:       f.challenge,
		CodeChallengeMethod: model.PKCEMethodS256,
		Nonce:               "n-0S6_WzA2Mj",
	}
}

func (f *fixture) session(t *testing.T) string {
	t.Helper()
	s, err := f.jwt.GenerateSessionToken(f.user.ID, f.clock.now())
	require.NoError(t, err)
	return s
}

// obtainCode runs authorize and, when asked, approves consent.
func (f *fixture) obtainCode(t *testing.T, req model.AuthorizationRequest) string {
	t.Helper()
	ctx := context.Background()
	session := f.session(t)

	res, err := f.authz.Authorize(ctx, req, session)
	require.NoError(t, err)
	if res.State == StateConsentRequired {
		res, err = f.authz.SubmitConsent(ctx, decisionFor(res.Consent, true), session)
		require.NoError(t, err)
	}
	require.Equal(t, StateCodeIssued, res.State, res.RedirectURL)
	return redirectParams(t, res.RedirectURL).Get("code")
}

func (f *fixture) exchange(t *testing.T, code string) TokenResponse {
	t.Helper()
	resp, err := f.tokens.ExchangeAuthorizationCode(context.Background(), CodeExchange{
		Code:         code,
		CodeVerifier: f.verifier,
		RedirectURI:  portalRedirect,
		Client:       ClientAuth{ClientID: f.portal.ID},
	})
	require.NoError(t, err)
	return resp
}

func decisionFor(cc *ConsentContext, allow bool) ConsentDecision {
	return ConsentDecision{
		Challenge:     cc.Challenge,
		Allow:         allow,
		State:         cc.State,
		ClientID:      cc.ClientID,
		RedirectURI:   cc.RedirectURI,
		CodeChallenge: cc.CodeChallenge,
	}
}

func redirectParams(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query()
}
