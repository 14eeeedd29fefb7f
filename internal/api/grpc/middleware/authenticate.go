package middleware

import (
	"context"
	"errors"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/token"
)

// TokenVerifier validates bearer access tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*token.AccessClaims, error)
}

// Authenticate validates bearer tokens and injects the principal into context.
type Authenticate struct {
	verifier       TokenVerifier
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(verifier TokenVerifier, contextManager model.ContextManager, logger *logger.Logger) *Authenticate {
	return &Authenticate{verifier: verifier, contextManager: contextManager, logger: logger}
}

// AuthFunc reads the bearer token from the authorization metadata, verifies
// it and returns a context carrying the caller.
func (m *Authenticate) AuthFunc(ctx context.Context) (context.Context, error) {
	raw, err := auth.AuthFromMD(ctx, "bearer")
	if err != nil {
		return nil, err
	}

	claims, err := m.verifier.Verify(ctx, raw)
	if errors.Is(err, model.ErrUnavailable) {
		m.logger.Error("Authenticate middleware: token verification unavailable", "error", err.Error())
		return nil, status.Error(codes.Unavailable, model.Description(err))
	}
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, model.Description(err))
	}

	return m.contextManager.SetPrincipalToContext(ctx, claims.Principal()), nil
}
