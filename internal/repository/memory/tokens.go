package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/dtroode/authz-server/internal/model"
)

func (s *Store) CreateCode(_ context.Context, code model.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code.CodeHash]; ok {
		return fmt.Errorf("authorization code exists: %w", model.ErrConflict)
	}
	s.codes[code.CodeHash] = code
	return nil
}

func (s *Store) ConsumeCode(_ context.Context, codeHash string, now time.Time) (model.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[codeHash]
	if !ok || c.Used() || !now.Before(c.ExpiresAt) {
		return model.AuthorizationCode{}, model.ErrNotFound
	}
	c.UsedAt = &now
	s.codes[codeHash] = c
	return c, nil
}

func (s *Store) GetCode(_ context.Context, codeHash string) (model.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.codes[codeHash]
	if !ok {
		return model.AuthorizationCode{}, model.ErrNotFound
	}
	return c, nil
}

func (s *Store) DeleteExpiredCodes(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, c := range s.codes {
		if c.ExpiresAt.Before(before) {
			delete(s.codes, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateRefreshToken(_ context.Context, token model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refresh[token.TokenHash]; ok {
		return fmt.Errorf("refresh token exists: %w", model.ErrConflict)
	}
	s.refresh[token.TokenHash] = token
	return nil
}

func (s *Store) GetRefreshToken(_ context.Context, tokenHash string) (model.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.refresh[tokenHash]
	if !ok {
		return model.RefreshToken{}, model.ErrNotFound
	}
	return t, nil
}

func (s *Store) RotateRefreshToken(_ context.Context, oldHash string, next model.RefreshToken, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.refresh[oldHash]
	if !ok {
		return model.ErrNotFound
	}
	if old.Revoked() {
		return model.ErrConflict
	}
	if _, ok := s.refresh[next.TokenHash]; ok {
		return fmt.Errorf("refresh token exists: %w", model.ErrConflict)
	}

	old.RevokedAt = &now
	s.refresh[oldHash] = old
	s.refresh[next.TokenHash] = next
	return nil
}

func (s *Store) RevokeFamily(_ context.Context, familyID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.refresh {
		if t.FamilyID == familyID && !t.Revoked() {
			t.RevokedAt = &now
			s.refresh[k] = t
			n++
		}
	}
	return n, nil
}

func (s *Store) RevokeByAuthCode(_ context.Context, codeHash string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.refresh {
		if t.AuthCodeHash == codeHash && !t.Revoked() {
			t.RevokedAt = &now
			s.refresh[k] = t
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.refresh {
		if t.ExpiresAt.Before(before) {
			delete(s.refresh, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) RevokeAccessToken(_ context.Context, entry model.RevokedAccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.revoked[entry.JTI]; !ok {
		s.revoked[entry.JTI] = entry
	}
	return nil
}

func (s *Store) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.revoked[jti]
	return ok, nil
}

func (s *Store) DeleteExpiredRevocations(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, e := range s.revoked {
		if e.ExpiresAt.Before(before) {
			delete(s.revoked, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) RecordFailure(_ context.Context, username string, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[username]
	if !ok {
		a = &attempts{}
		s.attempts[username] = a
	}

	cutoff := now.Add(-window)
	kept := a.failures[:0]
	for _, f := range a.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	a.failures = append(kept, now)
	return len(a.failures), nil
}

func (s *Store) LockedUntil(_ context.Context, username string, now time.Time) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[username]
	if !ok || !now.Before(a.lockedUntil) {
		return time.Time{}, nil
	}
	return a.lockedUntil, nil
}

func (s *Store) Lock(_ context.Context, username string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[username]
	if !ok {
		a = &attempts{}
		s.attempts[username] = a
	}
	a.lockedUntil = until
	a.failures = nil
	return nil
}

func (s *Store) Reset(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.attempts, username)
	return nil
}
