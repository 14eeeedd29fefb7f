package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PKCEMethodS256 is the only accepted code challenge method.
const PKCEMethodS256 = "S256"

// ResponseTypeCode is the only supported response type.
const ResponseTypeCode = "code"

// AuthorizationRequest holds the parameters of one authorize call while the
// flow is in flight. It is never persisted.
type AuthorizationRequest struct {
	ResponseType        string   `json:"response_type"`
	ClientID            string   `json:"client_id"`
	RedirectURI         string   `json:"redirect_uri"`
	Scope               []string `json:"scope"`
	State               string   `json:"state"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
	Nonce               string   `json:"nonce,omitempty"`
	// RawQuery is the authorize query as received, including parameters this
	// server does not interpret. The login hop replays it unchanged.
	RawQuery string `json:"-"`
}

// CodeStore persists authorization codes keyed by the hash of the raw code.
type CodeStore interface {
	CreateCode(ctx context.Context, code AuthorizationCode) error
	// ConsumeCode atomically marks an unused, unexpired code as used and
	// returns it. Any other state yields ErrNotFound.
	ConsumeCode(ctx context.Context, codeHash string, now time.Time) (AuthorizationCode, error)
	GetCode(ctx context.Context, codeHash string) (AuthorizationCode, error)
	DeleteExpiredCodes(ctx context.Context, before time.Time) (int64, error)
}

// AuthorizationCode is a one-time-use credential.
type AuthorizationCode struct {
	CodeHash            string
	UserID              uuid.UUID
	ClientID            string
	Scope               []string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	AuthTime            time.Time
	ExpiresAt           time.Time
	UsedAt              *time.Time
	CreatedAt           time.Time
}

// Used reports whether the code has been redeemed.
func (c AuthorizationCode) Used() bool {
	return c.UsedAt != nil
}
