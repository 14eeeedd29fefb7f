package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/dtroode/authz-server/internal/model"
)

// Client authentication methods (RFC 6749 §2.3.1).
const (
	AuthMethodBasic = "client_secret_basic"
	AuthMethodPost  = "client_secret_post"
	AuthMethodNone  = "none"
)

// ClientAuth is the client identification presented at the token, revocation
// and introspection endpoints.
type ClientAuth struct {
	ClientID     string
	ClientSecret string
	Method       string
}

// dummySecretHash is compared against when the client or user is unknown so
// that lookups and failures take the same time.
var dummySecretHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-secret-for-timing"), bcrypt.DefaultCost)

// ClientAuthenticator verifies client credentials against the registry.
type ClientAuthenticator struct {
	clients model.ClientStore
	obs     Observer
}

// NewClientAuthenticator creates a ClientAuthenticator.
func NewClientAuthenticator(clients model.ClientStore, obs Observer) *ClientAuthenticator {
	return &ClientAuthenticator{clients: clients, obs: obs}
}

// Authenticate returns the registered client. Confidential clients must
// present a matching secret; public clients identify by client_id only.
func (a *ClientAuthenticator) Authenticate(ctx context.Context, auth ClientAuth) (model.Client, error) {
	if auth.ClientID == "" {
		return model.Client{}, model.NewError(model.ErrInvalidClient, "client_id is required", nil)
	}

	client, err := a.clients.GetClient(ctx, auth.ClientID)
	if errors.Is(err, model.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummySecretHash, []byte(auth.ClientSecret))
		return model.Client{}, a.fail(ctx, auth, "unknown client")
	}
	if err != nil {
		a.obs.Logger.Error("Client auth: failed to get client",
			"client_id", auth.ClientID,
			"error", err.Error())
		return model.Client{}, unavailable("get client", err)
	}
	if !client.Active {
		return model.Client{}, a.fail(ctx, auth, "inactive client")
	}

	if client.IsConfidential() {
		if auth.ClientSecret == "" {
			return model.Client{}, a.fail(ctx, auth, "missing client secret")
		}
		if err := bcrypt.CompareHashAndPassword(client.SecretHash, []byte(auth.ClientSecret)); err != nil {
			return model.Client{}, a.fail(ctx, auth, "secret mismatch")
		}
	}

	return client, nil
}

func (a *ClientAuthenticator) fail(ctx context.Context, auth ClientAuth, why string) error {
	a.obs.Logger.Info("Client auth: authentication failed",
		"client_id", auth.ClientID,
		"method", auth.Method,
		"reason", why)
	a.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditClientAuthFailed,
		ClientID: auth.ClientID,
		Outcome:  model.OutcomeFailure,
		Reason:   why,
	})
	return model.NewError(model.ErrInvalidClient, "", nil)
}
