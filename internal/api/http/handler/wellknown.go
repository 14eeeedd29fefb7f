package handler

import (
	"errors"
	"net/http"
	"slices"

	"github.com/google/uuid"

	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/service"
)

// DiscoveryDocument is the OpenID Provider metadata.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	AuthorizationResponseIssParameter bool     `json:"authorization_response_iss_parameter_supported"`
}

// JWKS handles GET /.well-known/jwks.json.
func (h *Handler) JWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	h.writeJSON(w, http.StatusOK, h.keys.JWKS())
}

// Discovery handles GET /.well-known/openid-configuration.
func (h *Handler) Discovery(w http.ResponseWriter, _ *http.Request) {
	issuer := h.cfg.Issuer
	w.Header().Set("Cache-Control", "public, max-age=3600")
	h.writeJSON(w, http.StatusOK, DiscoveryDocument{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/oauth/authorize",
		TokenEndpoint:                     issuer + "/oauth/token",
		UserInfoEndpoint:                  issuer + "/oauth/userinfo",
		JWKSURI:                           issuer + "/.well-known/jwks.json",
		IntrospectionEndpoint:             issuer + "/oauth/introspect",
		RevocationEndpoint:                issuer + "/oauth/revoke",
		ScopesSupported:                   []string{model.ScopeOpenID, model.ScopeProfile, model.ScopeEmail, model.ScopeOfflineAccess},
		ResponseTypesSupported:            []string{model.ResponseTypeCode},
		GrantTypesSupported:               []string{service.GrantAuthorizationCode, service.GrantRefreshToken, service.GrantClientCredentials},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  h.keys.Algorithms(),
		CodeChallengeMethodsSupported:     []string{model.PKCEMethodS256},
		TokenEndpointAuthMethodsSupported: []string{service.AuthMethodBasic, service.AuthMethodPost, service.AuthMethodNone},
		AuthorizationResponseIssParameter: true,
	})
}

// UserInfoResponse carries the standard claims released by the granted scope.
type UserInfoResponse struct {
	Subject           string `json:"sub"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     *bool  `json:"email_verified,omitempty"`
}

// UserInfo handles GET /oauth/userinfo behind the bearer middleware.
func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ctxMgr.GetPrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, r, "userinfo", model.ErrInvalidToken)
		return
	}
	if !slices.Contains(p.Scope, model.ScopeOpenID) {
		w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="openid"`)
		h.writeJSON(w, http.StatusForbidden, ErrorResponse{Error: codeInsufficientScope, ErrorDescription: "The access token was not granted the openid scope"})
		return
	}

	userID, err := uuid.Parse(p.Subject)
	if err != nil {
		h.writeError(w, r, "userinfo", model.NewError(model.ErrInvalidToken, "", err))
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if errors.Is(err, model.ErrNotFound) || (err == nil && !user.Active) {
		h.writeError(w, r, "userinfo", model.ErrInvalidToken)
		return
	}
	if err != nil {
		h.writeError(w, r, "userinfo", model.NewUnavailable(err))
		return
	}

	resp := UserInfoResponse{Subject: p.Subject}
	if slices.Contains(p.Scope, model.ScopeProfile) {
		resp.Name = user.Name
		resp.PreferredUsername = user.Username
	}
	if slices.Contains(p.Scope, model.ScopeEmail) {
		verified := user.EmailVerified
		resp.Email = user.Email
		resp.EmailVerified = &verified
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("HTTP handler: health check failed", "error", err.Error())
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
