package handler

import (
	"net/http"
	"net/url"

	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/service"
)

// Token handles POST /oauth/token.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, "token", model.NewValidationError("malformed form body"))
		return
	}
	auth, err := clientAuth(r)
	if err != nil {
		h.writeError(w, r, "token", err)
		return
	}

	f := r.PostForm
	ctx := r.Context()
	var resp service.TokenResponse
	switch grant := f.Get("grant_type"); grant {
	case service.GrantAuthorizationCode:
		resp, err = h.tokens.ExchangeAuthorizationCode(ctx, service.CodeExchange{
			Code:         f.Get("code"),
			CodeVerifier: f.Get("code_verifier"),
			RedirectURI:  f.Get("redirect_uri"),
			Client:       auth,
		})
	case service.GrantRefreshToken:
		resp, err = h.tokens.ExchangeRefreshToken(ctx, service.RefreshExchange{
			RefreshToken: f.Get("refresh_token"),
			Scope:        model.ParseScope(f.Get("scope")),
			Client:       auth,
		})
	case service.GrantClientCredentials:
		resp, err = h.tokens.ClientCredentials(ctx, auth, model.ParseScope(f.Get("scope")))
	case "":
		err = model.NewValidationError("grant_type is required")
	default:
		err = model.NewError(model.ErrUnsupportedGrantType, "grant_type "+grant+" is not supported", nil)
	}
	if err != nil {
		h.writeError(w, r, "token", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Introspect handles POST /oauth/introspect. Any authenticated client may
// introspect; the answer for a bad token is always active=false.
// RFC 7662 §2.1 requires the caller to be authorized, so failed client
// authentication is 401 invalid_client rather than an inactive answer.
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, "introspect", model.NewValidationError("malformed form body"))
		return
	}
	auth, err := clientAuth(r)
	if err == nil {
		_, err = h.clients.Authenticate(r.Context(), auth)
	}
	if err != nil {
		h.writeError(w, r, "introspect", err)
		return
	}

	resp := h.tokens.Introspect(r.Context(), r.PostForm.Get("token"), r.PostForm.Get("token_type_hint"))
	h.writeJSON(w, http.StatusOK, resp)
}

// Revoke handles POST /oauth/revoke (RFC 7009).
// Unknown, expired or foreign tokens answer 200 (RFC 7009 §2.2). Failed client
// authentication answers 401 invalid_client and a malformed body 400
// (RFC 7009 §2.2.1 defers to RFC 6749 §5.2). A failing store answers 503,
// meaning the token was not revoked (RFC 7009 §2.2.1).
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, "revoke", model.NewValidationError("malformed form body"))
		return
	}
	auth, err := clientAuth(r)
	if err != nil {
		h.writeError(w, r, "revoke", err)
		return
	}

	if err := h.tokens.Revoke(r.Context(), r.PostForm.Get("token"), r.PostForm.Get("token_type_hint"), &auth); err != nil {
		h.writeError(w, r, "revoke", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// clientAuth extracts client credentials from the Basic header or the form
// body. Using both at once is rejected.
func clientAuth(r *http.Request) (service.ClientAuth, error) {
	formID := r.PostForm.Get("client_id")
	formSecret := r.PostForm.Get("client_secret")

	if id, secret, ok := r.BasicAuth(); ok {
		if formSecret != "" {
			return service.ClientAuth{}, model.NewValidationError("multiple client authentication methods")
		}
		id, err := url.QueryUnescape(id)
		if err != nil {
			return service.ClientAuth{}, model.NewError(model.ErrInvalidClient, "malformed client credentials", nil)
		}
		secret, err = url.QueryUnescape(secret)
		if err != nil {
			return service.ClientAuth{}, model.NewError(model.ErrInvalidClient, "malformed client credentials", nil)
		}
		if formID != "" && formID != id {
			return service.ClientAuth{}, model.NewValidationError("client_id does not match the authenticated client")
		}
		return service.ClientAuth{ClientID: id, ClientSecret: secret, Method: service.AuthMethodBasic}, nil
	}

	if formSecret != "" {
		return service.ClientAuth{ClientID: formID, ClientSecret: formSecret, Method: service.AuthMethodPost}, nil
	}
	return service.ClientAuth{ClientID: formID, Method: service.AuthMethodNone}, nil
}
