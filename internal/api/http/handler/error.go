package handler

import (
	"net/http"

	"github.com/dtroode/authz-server/internal/model"
)

const codeInsufficientScope = "insufficient_scope"

// ErrorResponse is the OAuth error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// StatusFor maps an OAuth error code to its HTTP status.
func StatusFor(code string) int {
	switch code {
	case model.CodeInvalidClient, model.CodeInvalidToken, model.CodeLoginRequired:
		return http.StatusUnauthorized
	case model.CodeAccessDenied, codeInsufficientScope:
		return http.StatusForbidden
	case model.CodeTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	case model.CodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// writeError classifies err and writes the OAuth error body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	code := model.OAuthCode(err)
	status := StatusFor(code)

	if status >= http.StatusInternalServerError {
		h.logger.Error("HTTP handler: request failed",
			"endpoint", endpoint,
			"path", r.URL.Path,
			"error", err.Error())
	}
	h.metrics.OAuthError(endpoint, code)

	switch code {
	case model.CodeInvalidClient:
		if _, _, ok := r.BasicAuth(); ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="authz"`)
		}
	case model.CodeInvalidToken:
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	h.writeJSON(w, status, ErrorResponse{Error: code, ErrorDescription: model.Description(err)})
}
