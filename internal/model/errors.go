package model

import (
	"errors"
)

// Error kinds. Every error that leaves the service layer wraps exactly one of these.
var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("invalid request")
	ErrInvalidGrant         = errors.New("invalid grant")
	ErrInvalidClient        = errors.New("invalid client")
	ErrUnauthorizedClient   = errors.New("unauthorized client")
	ErrUnsupportedGrantType = errors.New("unsupported grant type")
	ErrUnsupportedResponse  = errors.New("unsupported response type")
	ErrInvalidScope         = errors.New("invalid scope")
	ErrInsufficientScope    = errors.New("insufficient permission for scope")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrInvalidToken         = errors.New("invalid access token")
	ErrAccountLocked        = errors.New("account locked")
	ErrAccessDenied         = errors.New("access denied")
	ErrConflict             = errors.New("conflict")
	ErrUnavailable          = errors.New("unavailable")
)

// OAuth error codes (RFC 6749 §4.1.2.1, §5.2, RFC 7009, RFC 6750).
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeUnauthorizedClient      = "unauthorized_client"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeInvalidScope            = "invalid_scope"
	CodeAccessDenied            = "access_denied"
	CodeServerError             = "server_error"
	CodeTemporarilyUnavailable  = "temporarily_unavailable"
	CodeInvalidToken            = "invalid_token"
	CodeLoginRequired           = "login_required"
)

// Error is a classified error. Description is safe to show to the caller,
// Cause is internal detail for logs and audit only.
type Error struct {
	Kind        error
	Description string
	Cause       error
}

// NewError creates a classified error.
func NewError(kind error, description string, cause error) *Error {
	return &Error{Kind: kind, Description: description, Cause: cause}
}

// NewValidationError reports a malformed or missing parameter.
func NewValidationError(description string) *Error {
	return &Error{Kind: ErrValidation, Description: description}
}

// NewInvalidGrant reports a failed grant. The cause is never exposed.
func NewInvalidGrant(cause error) *Error {
	return &Error{Kind: ErrInvalidGrant, Cause: cause}
}

// NewUnavailable reports a failing downstream dependency.
func NewUnavailable(cause error) *Error {
	return &Error{Kind: ErrUnavailable, Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// OAuthCode maps an error to the OAuth error vocabulary.
func OAuthCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnavailable):
		return CodeTemporarilyUnavailable
	case errors.Is(err, ErrInvalidGrant), errors.Is(err, ErrConflict):
		return CodeInvalidGrant
	case errors.Is(err, ErrInvalidClient):
		return CodeInvalidClient
	case errors.Is(err, ErrUnauthorizedClient):
		return CodeUnauthorizedClient
	case errors.Is(err, ErrUnsupportedGrantType):
		return CodeUnsupportedGrantType
	case errors.Is(err, ErrUnsupportedResponse):
		return CodeUnsupportedResponseType
	case errors.Is(err, ErrInvalidScope), errors.Is(err, ErrInsufficientScope):
		return CodeInvalidScope
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrAccountLocked):
		return CodeAccessDenied
	case errors.Is(err, ErrUnauthenticated):
		return CodeLoginRequired
	case errors.Is(err, ErrInvalidToken):
		return CodeInvalidToken
	case errors.Is(err, ErrValidation):
		return CodeInvalidRequest
	default:
		return CodeServerError
	}
}

// Description returns the caller-safe description of err.
// Grant failures are deliberately opaque.
func Description(err error) string {
	if errors.Is(err, ErrInvalidGrant) || errors.Is(err, ErrConflict) {
		return "The provided authorization grant is invalid, expired, or revoked"
	}
	var e *Error
	if errors.As(err, &e) && e.Description != "" {
		return e.Description
	}
	switch OAuthCode(err) {
	case CodeInvalidClient:
		return "Client authentication failed"
	case CodeAccessDenied:
		return "The request was denied"
	case CodeLoginRequired:
		return "Authentication required"
	case CodeInvalidToken:
		return "The access token is invalid, expired, or revoked"
	case CodeTemporarilyUnavailable:
		return "The service is temporarily unavailable"
	case CodeServerError:
		return "Internal server error"
	}
	return ""
}
