package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOAuthCode(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want string
	}{
		"nil":              {err: nil, want: ""},
		"validation":       {err: NewValidationError("missing client_id"), want: CodeInvalidRequest},
		"grant":            {err: NewInvalidGrant(errors.New("pkce mismatch")), want: CodeInvalidGrant},
		"conflict":         {err: fmt.Errorf("rotate: %w", ErrConflict), want: CodeInvalidGrant},
		"client":           {err: ErrInvalidClient, want: CodeInvalidClient},
		"unauthorized":     {err: ErrUnauthorizedClient, want: CodeUnauthorizedClient},
		"grant type":       {err: ErrUnsupportedGrantType, want: CodeUnsupportedGrantType},
		"response type":    {err: ErrUnsupportedResponse, want: CodeUnsupportedResponseType},
		"scope":            {err: ErrInvalidScope, want: CodeInvalidScope},
		"denied":           {err: ErrAccessDenied, want: CodeAccessDenied},
		"locked":           {err: ErrAccountLocked, want: CodeAccessDenied},
		"unauthenticated":  {err: ErrUnauthenticated, want: CodeLoginRequired},
		"bearer":           {err: NewError(ErrInvalidToken, "", errors.New("expired")), want: CodeInvalidToken},
		"unavailable":      {err: NewUnavailable(errors.New("dial tcp")), want: CodeTemporarilyUnavailable},
		"unknown":          {err: errors.New("boom"), want: CodeServerError},
		"wrapped notfound": {err: fmt.Errorf("get: %w", ErrNotFound), want: CodeServerError},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, OAuthCode(tt.err))
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewError(ErrUnavailable, "", cause)

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "unavailable: connection reset", err.Error())
}

func TestDescription_GrantIsOpaque(t *testing.T) {
	t.Parallel()

	err := NewError(ErrInvalidGrant, "code_verifier mismatch", nil)
	assert.NotContains(t, Description(err), "verifier")
	assert.Equal(t, "missing redirect_uri", Description(NewValidationError("missing redirect_uri")))
	assert.Equal(t, "Client authentication failed", Description(ErrInvalidClient))
}
