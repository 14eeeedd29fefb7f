// Package handler implements the HTTP endpoints of the authorization server.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/metrics"
	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/service"
)

// SessionCookie carries the browser session token.
const SessionCookie = "authz_session"

// KeySet publishes the verification keys.
type KeySet interface {
	JWKS() jose.JSONWebKeySet
	Algorithms() []string
}

// Pinger reports whether the credential store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the HTTP-facing settings.
type Config struct {
	Issuer        string
	SecureCookies bool
	SessionTTL    time.Duration
}

// Deps are the collaborators of the handlers.
type Deps struct {
	Authorizer     *service.Authorizer
	Tokens         *service.TokenService
	Clients        *service.ClientAuthenticator
	Users          model.UserStore
	Keys           KeySet
	Store          Pinger
	ContextManager model.ContextManager
	Metrics        *metrics.Metrics
}

// Handler serves the OAuth, OpenID Connect and operational endpoints.
type Handler struct {
	authz   *service.Authorizer
	tokens  *service.TokenService
	clients *service.ClientAuthenticator
	users   model.UserStore
	keys    KeySet
	store   Pinger
	ctxMgr  model.ContextManager
	metrics *metrics.Metrics
	cfg     Config
	logger  *logger.Logger
}

func New(deps Deps, cfg Config, logger *logger.Logger) *Handler {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	return &Handler{
		authz:   deps.Authorizer,
		tokens:  deps.Tokens,
		clients: deps.Clients,
		users:   deps.Users,
		keys:    deps.Keys,
		store:   deps.Store,
		ctxMgr:  deps.ContextManager,
		metrics: deps.Metrics,
		cfg:     cfg,
		logger:  logger,
	}
}

func (h *Handler) session(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cfg.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("HTTP handler: failed to encode response", "error", err.Error())
	}
}
