package model

import (
	"context"
	"time"
)

// Audit event types.
const (
	AuditLoginSucceeded     = "login.succeeded"
	AuditLoginFailed        = "login.failed"
	AuditAccountLocked      = "login.locked"
	AuditConsentGranted     = "consent.granted"
	AuditConsentDenied      = "consent.denied"
	AuditConsentRevoked     = "consent.revoked"
	AuditCodeIssued         = "code.issued"
	AuditCodeExchanged      = "code.exchanged"
	AuditCodeReuse          = "code.reuse_detected"
	AuditTokenRefreshed     = "token.refreshed"
	AuditRefreshReuse       = "token.refresh_reuse_detected"
	AuditTokenIssued        = "token.issued"
	AuditTokenRevoked       = "token.revoked"
	AuditGrantFailed        = "grant.failed"
	AuditClientAuthFailed   = "client.auth_failed"
	AuditPermissionsFlushed = "permissions.invalidated"
)

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditEmitter records security-relevant events. Emit never blocks the caller
// for longer than a buffer insert and never fails the originating request.
type AuditEmitter interface {
	Emit(ctx context.Context, event AuditEvent)
}

// AuditEvent is a structured security event.
type AuditEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Actor     string            `json:"actor,omitempty"`
	ClientID  string            `json:"client_id,omitempty"`
	Resource  string            `json:"resource,omitempty"`
	Outcome   string            `json:"outcome"`
	Reason    string            `json:"reason,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}
