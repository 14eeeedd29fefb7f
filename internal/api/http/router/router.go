package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dtroode/authz-server/internal/api/http/handler"
	"github.com/dtroode/authz-server/internal/api/http/middleware"
	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/metrics"
)

const requestTimeout = 30 * time.Second

// Router assembles the HTTP routes and middleware.
type Router struct {
	handler  *handler.Handler
	verifier middleware.TokenVerifier
	deps     handler.Deps
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// New creates a Router. The handler deps also supply the bearer verifier and
// the context manager.
func New(h *handler.Handler, deps handler.Deps, logger *logger.Logger) *Router {
	return &Router{
		handler:  h,
		verifier: deps.Tokens,
		deps:     deps,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// Register returns the root handler.
func (r *Router) Register() http.Handler {
	logging := middleware.NewLogging(r.logger)
	bearer := middleware.NewBearer(r.verifier, r.deps.ContextManager, r.logger)

	mux := chi.NewRouter()
	mux.Use(
		chimw.RequestID,
		chimw.Recoverer,
		logging.Handle,
		chimw.Timeout(requestTimeout),
	)

	mux.Get("/healthz", r.handler.Health)
	if r.metrics != nil {
		mux.Method(http.MethodGet, "/metrics", r.metrics.Handler())
	}
	mux.Get("/.well-known/jwks.json", r.handler.JWKS)
	mux.Get("/.well-known/openid-configuration", r.handler.Discovery)

	mux.Group(func(mux chi.Router) {
		mux.Use(middleware.NoStore)

		mux.Get("/oauth/authorize", r.handler.Authorize)
		mux.Post("/login", r.handler.Login)
		mux.Get("/oauth/consent", r.handler.ConsentContext)
		mux.Post("/oauth/consent", r.handler.SubmitConsent)
		mux.Post("/oauth/token", r.handler.Token)
		mux.Post("/oauth/introspect", r.handler.Introspect)
		mux.Post("/oauth/revoke", r.handler.Revoke)
		mux.With(bearer.Handle).Get("/oauth/userinfo", r.handler.UserInfo)
	})

	return mux
}
