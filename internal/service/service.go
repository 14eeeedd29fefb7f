// Package service implements the authorization state machine and the token
// lifecycle on top of the credential store interfaces in model.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/metrics"
	"github.com/dtroode/authz-server/internal/model"
)

// Grant types accepted by the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
)

// Token type hints (RFC 7009 §2.1).
const (
	HintAccessToken  = "access_token"
	HintRefreshToken = "refresh_token"
)

// Observer bundles the side channels every service reports to.
type Observer struct {
	Logger  *logger.Logger
	Audit   model.AuditEmitter
	Metrics *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Observer) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Observer) emit(ctx context.Context, event model.AuditEvent) {
	if o.Audit == nil {
		return
	}
	event.Timestamp = o.now().UTC()
	o.Audit.Emit(ctx, event)
}

// unavailable classifies a store failure. ErrNotFound is passed through so
// callers can still tell absence from outage.
func unavailable(op string, err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return err
	}
	var classified *model.Error
	if errors.As(err, &classified) {
		return err
	}
	return model.NewUnavailable(fmt.Errorf("%s: %w", op, err))
}

func reason(err error) string {
	var classified *model.Error
	if errors.As(err, &classified) && classified.Cause != nil {
		return classified.Cause.Error()
	}
	return err.Error()
}
