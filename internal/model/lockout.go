package model

import (
	"context"
	"time"
)

// LoginAttemptStore tracks failed logins per username for account lockout.
type LoginAttemptStore interface {
	// RecordFailure adds a failure and returns the number of failures inside window.
	RecordFailure(ctx context.Context, username string, now time.Time, window time.Duration) (int, error)
	// LockedUntil returns the lock expiry or the zero time when the account is not locked.
	LockedUntil(ctx context.Context, username string, now time.Time) (time.Time, error)
	Lock(ctx context.Context, username string, until time.Time) error
	Reset(ctx context.Context, username string) error
}
