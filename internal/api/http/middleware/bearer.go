package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/token"
)

// TokenVerifier validates bearer access tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*token.AccessClaims, error)
}

// Bearer authenticates requests with an access token and stores the
// principal in the request context.
type Bearer struct {
	verifier       TokenVerifier
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewBearer creates a new Bearer middleware.
func NewBearer(verifier TokenVerifier, contextManager model.ContextManager, logger *logger.Logger) *Bearer {
	return &Bearer{verifier: verifier, contextManager: contextManager, logger: logger}
}

// Handle rejects requests without a valid bearer token.
func (b *Bearer) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := BearerToken(r.Header.Get("Authorization"))
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="authz"`)
			writeError(w, http.StatusUnauthorized, model.CodeInvalidToken, "Bearer token required")
			return
		}

		claims, err := b.verifier.Verify(r.Context(), raw)
		if errors.Is(err, model.ErrUnavailable) {
			b.logger.Error("Bearer middleware: token verification unavailable", "error", err.Error())
			writeError(w, http.StatusServiceUnavailable, model.CodeTemporarilyUnavailable, model.Description(err))
			return
		}
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="authz", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, model.CodeInvalidToken, model.Description(err))
			return
		}

		ctx := b.contextManager.SetPrincipalToContext(r.Context(), claims.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}
