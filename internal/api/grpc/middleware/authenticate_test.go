package middleware

import (
	"context"
	"fmt"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/authz-server/internal/mocks"
	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/testutil"
	"github.com/dtroode/authz-server/internal/token"
)

type ctxKey struct{}

func TestAuthenticate_AuthFunc(t *testing.T) {
	t.Parallel()

	claims := &token.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "reporting", ID: "jti-1"},
		ClientID:         "reporting",
		Scope:            "docs",
	}

	tests := []struct {
		name         string
		mdAuthHeader string
		verifyClaims *token.AccessClaims
		verifyErr    error
		wantGRPCCode codes.Code
		expectVerify bool
		expectSetCtx bool
	}{
		{
			name:         "missing authorization header",
			wantGRPCCode: codes.Unauthenticated,
		},
		{
			name:         "wrong scheme",
			mdAuthHeader: "Basic dXNlcjpwYXNz",
			wantGRPCCode: codes.Unauthenticated,
		},
		{
			name:         "invalid token",
			mdAuthHeader: "Bearer invalid",
			verifyErr:    fmt.Errorf("parse: %w", model.ErrInvalidToken),
			wantGRPCCode: codes.Unauthenticated,
			expectVerify: true,
		},
		{
			name:         "revocation list unavailable",
			mdAuthHeader: "Bearer token",
			verifyErr:    model.NewUnavailable(assert.AnError),
			wantGRPCCode: codes.Unavailable,
			expectVerify: true,
		},
		{
			name:         "valid token",
			mdAuthHeader: "Bearer token",
			verifyClaims: claims,
			wantGRPCCode: codes.OK,
			expectVerify: true,
			expectSetCtx: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cm := mocks.NewContextManager(t)
			verifier := mocks.NewTokenVerifier(t)
			if tt.expectVerify {
				verifier.On("Verify", mock.Anything, mock.AnythingOfType("string")).Return(tt.verifyClaims, tt.verifyErr)
			}
			if tt.expectSetCtx {
				cm.On("SetPrincipalToContext", mock.Anything, claims.Principal()).
					Return(context.WithValue(context.Background(), ctxKey{}, "set"))
			}
			m := NewAuthenticate(verifier, cm, testutil.MakeNoopLogger())

			ctx := context.Background()
			if tt.mdAuthHeader != "" {
				ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", tt.mdAuthHeader))
			}

			newCtx, err := m.AuthFunc(ctx)

			if tt.wantGRPCCode != codes.OK {
				assert.Error(t, err)
				assert.Equal(t, tt.wantGRPCCode, status.Code(err))
				assert.Nil(t, newCtx)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, "set", newCtx.Value(ctxKey{}))
		})
	}
}
