package router

import (
	"context"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/selector"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dtroode/authz-server/internal/api/grpc/handler"
	"github.com/dtroode/authz-server/internal/api/grpc/middleware"
	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/model"
)

// Deps are the services exposed over gRPC.
type Deps struct {
	Tokens         TokenService
	Permissions    model.PermissionResolver
	Directory      handler.DirectoryService
	ContextManager model.ContextManager
}

// TokenService verifies and introspects access tokens.
type TokenService interface {
	middleware.TokenVerifier
	handler.Introspector
}

// Router represents the gRPC router of the internal verification and
// directory APIs.
type Router struct {
	deps   Deps
	health *health.Server
	logger *logger.Logger
}

// New creates new gRPC Router instance.
//
// Parameters:
//   - deps: Token, permission and directory services plus the context manager
//   - logger: Logger used by the interceptors
//
// Returns a pointer to the newly created Router instance.
func New(deps Deps, logger *logger.Logger) *Router {
	return &Router{deps: deps, health: health.NewServer(), logger: logger}
}

// Health exposes the health service so the caller can flip serving status
// during shutdown.
func (r *Router) Health() *health.Server {
	return r.health
}

func authSkip(_ context.Context, c interceptors.CallMeta) bool {
	return !strings.HasPrefix(c.FullMethod(), "/grpc.health.v1.Health/")
}

// Register registers all gRPC services and middleware.
// Every method except the health service requires a bearer access token.
func (r *Router) Register() *grpc.Server {
	logging := middleware.NewLogging(r.logger)
	authenticate := middleware.NewAuthenticate(r.deps.Tokens, r.deps.ContextManager, r.logger)
	recoverOpt := recovery.WithRecoveryHandler(middleware.RecoveryHandler(r.logger))

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recovery.UnaryServerInterceptor(recoverOpt),
			logging.HandleGRPC,
			selector.UnaryServerInterceptor(
				auth.UnaryServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(authSkip),
			),
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(recoverOpt),
			selector.StreamServerInterceptor(
				auth.StreamServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(authSkip),
			),
		),
	)

	handler.RegisterTokenVerifierServer(s, handler.NewVerifier(r.deps.Tokens, r.deps.Permissions, r.deps.ContextManager, r.logger))
	if r.deps.Directory != nil {
		handler.RegisterDirectoryServer(s, handler.NewDirectory(r.deps.Directory, r.deps.ContextManager, r.logger))
	}
	healthpb.RegisterHealthServer(s, r.health)

	return s
}
