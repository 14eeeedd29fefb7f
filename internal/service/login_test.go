package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/authz-server/internal/model"
)

// continuationFor returns the redirect target the login page receives.
func continuationFor(t *testing.T, f *fixture, req model.AuthorizationRequest) string {
	t.Helper()
	res, err := f.authz.Authorize(context.Background(), req, "")
	require.NoError(t, err)
	require.Equal(t, StateLoginRequired, res.State)

	u, err := url.Parse(res.RedirectURL)
	require.NoError(t, err)
	return u.Query().Get("redirect")
}

func TestCompleteAuthentication_ResumesFlow(t *testing.T) {
	f := newFixture(t)
	req := f.portalRequest("openid", "profile", "email")
	cont := continuationFor(t, f, req)

	out, err := f.authz.CompleteAuthentication(context.Background(), LoginRequest{
		Username: "alice",
		Password: alicePassword,
		Redirect: cont,
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.SessionToken)
	require.Equal(t, StateConsentRequired, out.Result.State)
	assert.Equal(t, req.State, out.Result.Consent.State)
	assert.True(t, f.audit.has(model.AuditLoginSucceeded))

	userID, _, err := f.jwt.ParseSessionToken(out.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, userID)

	res, err := f.authz.SubmitConsent(context.Background(), decisionFor(out.Result.Consent, true), out.SessionToken)
	require.NoError(t, err)
	q := redirectParams(t, res.RedirectURL)
	assert.NotEmpty(t, q.Get("code"))
	assert.Equal(t, req.State, q.Get("state"))
}

func TestCompleteAuthentication_RejectsForeignContinuation(t *testing.T) {
	f := newFixture(t)
	valid := continuationFor(t, f, f.portalRequest("openid"))
	query := valid[len("/oauth/authorize"):]

	targets := map[string]string{
		"empty":            "",
		"absolute":         "https://evil.example/oauth/authorize" + query,
		"scheme relative":  "//evil.example/oauth/authorize" + query,
		"backslash":        "/\\evil.example/oauth/authorize" + query,
		"other path":       "/admin" + query,
		"path traversal":   "/oauth/authorize/../admin" + query,
		"relative":         "oauth/authorize" + query,
		"fragment":         valid + "#frag",
		"header injection": "/oauth/authorize\r\nLocation: https://evil.example",
		"javascript":       "javascript:alert(1)",
	}

	for name, target := range targets {
		t.Run(name, func(t *testing.T) {
			_, err := f.authz.CompleteAuthentication(context.Background(), LoginRequest{
				Username: "alice",
				Password: alicePassword,
				Redirect: target,
			})
			require.ErrorIs(t, err, model.ErrValidation)
		})
	}
	assert.False(t, f.audit.has(model.AuditLoginSucceeded), "credentials are not checked for a bad target")
}

func TestCompleteAuthentication_BadCredentials(t *testing.T) {
	f := newFixture(t)
	cont := continuationFor(t, f, f.portalRequest("openid"))

	tests := []struct {
		name string
		in   LoginRequest
		kind error
	}{
		{name: "missing password", in: LoginRequest{Username: "alice"}, kind: model.ErrValidation},
		{name: "wrong password", in: LoginRequest{Username: "alice", Password: "nope"}, kind: model.ErrUnauthenticated},
		{name: "unknown user", in: LoginRequest{Username: "nobody", Password: "nope"}, kind: model.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Redirect = cont
			out, err := f.authz.CompleteAuthentication(context.Background(), tt.in)
			require.ErrorIs(t, err, tt.kind)
			assert.Empty(t, out.SessionToken)
		})
	}
	assert.True(t, f.audit.has(model.AuditLoginFailed))
}

func TestCompleteAuthentication_InactiveUser(t *testing.T) {
	f := newFixture(t)
	disabled := f.user
	disabled.ID = uuid.New()
	disabled.Username = "carol"
	disabled.Active = false
	_, err := f.store.Create(context.Background(), disabled)
	require.NoError(t, err)

	_, err = f.authz.CompleteAuthentication(context.Background(), LoginRequest{
		Username: "carol",
		Password: alicePassword,
		Redirect: continuationFor(t, f, f.portalRequest("openid")),
	})
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestCompleteAuthentication_Lockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cont := continuationFor(t, f, f.portalRequest("openid"))
	login := func(password string) error {
		_, err := f.authz.CompleteAuthentication(ctx, LoginRequest{Username: "alice", Password: password, Redirect: cont})
		return err
	}

	for i := 0; i < 5; i++ {
		require.ErrorIs(t, login("wrong"), model.ErrUnauthenticated)
		f.clock.advance(time.Second)
	}
	assert.True(t, f.audit.has(model.AuditAccountLocked))

	err := login(alicePassword)
	require.ErrorIs(t, err, model.ErrAccountLocked, "correct password is refused while locked")
	assert.Equal(t, model.CodeAccessDenied, model.OAuthCode(err))

	f.clock.advance(15 * time.Minute)
	require.NoError(t, login(alicePassword))

	for i := 0; i < 4; i++ {
		require.ErrorIs(t, login("wrong"), model.ErrUnauthenticated)
	}
	require.NoError(t, login(alicePassword), "success resets the failure count")
	require.ErrorIs(t, login("wrong"), model.ErrUnauthenticated)
}

func TestCompleteAuthentication_FailuresOutsideWindowExpire(t *testing.T) {
	f := newFixture(t)
	cont := continuationFor(t, f, f.portalRequest("openid"))
	login := func(password string) error {
		_, err := f.authz.CompleteAuthentication(context.Background(), LoginRequest{Username: "alice", Password: password, Redirect: cont})
		return err
	}

	for i := 0; i < 4; i++ {
		require.ErrorIs(t, login("wrong"), model.ErrUnauthenticated)
	}
	f.clock.advance(16 * time.Minute)
	require.ErrorIs(t, login("wrong"), model.ErrUnauthenticated)
	require.NoError(t, login(alicePassword))
}
