package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	grpcctx "github.com/dtroode/authz-server/internal/api/grpc/context"
	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/testutil"
	"github.com/dtroode/authz-server/internal/token"
)

type verifierFunc func(ctx context.Context, raw string) (*token.AccessClaims, error)

func (f verifierFunc) Verify(ctx context.Context, raw string) (*token.AccessClaims, error) {
	return f(ctx, raw)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{header: "Bearer abc", token: "abc", ok: true},
		{header: "bearer abc ", token: "abc", ok: true},
		{header: "Basic abc"},
		{header: "Bearer "},
		{header: "Bearer"},
		{header: ""},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, got, tt.header)
	}
}

func TestBearer_Handle(t *testing.T) {
	ctxMgr := grpcctx.NewManager()
	verifier := verifierFunc(func(_ context.Context, raw string) (*token.AccessClaims, error) {
		switch raw {
		case "good":
			return &token.AccessClaims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ID: "jti-1"},
				ClientID:         "portal",
				Scope:            "openid docs",
			}, nil
		case "outage":
			return nil, model.NewUnavailable(errors.New("redis down"))
		default:
			return nil, model.NewError(model.ErrInvalidToken, "", nil)
		}
	})

	var seen model.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ctxMgr.GetPrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := NewBearer(verifier, ctxMgr, testutil.MakeNoopLogger()).Handle(next)

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{name: "valid", header: "Bearer good", status: http.StatusNoContent},
		{name: "missing", status: http.StatusUnauthorized, code: model.CodeInvalidToken},
		{name: "invalid", header: "Bearer forged", status: http.StatusUnauthorized, code: model.CodeInvalidToken},
		{name: "store outage", header: "Bearer outage", status: http.StatusServiceUnavailable, code: model.CodeTemporarilyUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				assert.Contains(t, rec.Body.String(), `"error":"`+tt.code+`"`)
			}
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}

	assert.Equal(t, model.Principal{
		Subject:  "user-1",
		ClientID: "portal",
		TokenID:  "jti-1",
		Scope:    []string{"openid", "docs"},
	}, seen)
}

func TestLogging_OmitsQuery(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogging(logger.NewWithFormat(-4, "json", &buf))
	h := l.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/oauth/authorize?code=secret-code", nil))

	assert.Contains(t, buf.String(), `"path":"/oauth/authorize"`)
	assert.Contains(t, buf.String(), `"status":302`)
	assert.NotContains(t, buf.String(), "secret-code")
}

func TestNoStore(t *testing.T) {
	rec := httptest.NewRecorder()
	NoStore(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/oauth/token", nil))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
}
