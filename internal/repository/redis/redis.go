// Package redis stores the short-lived, high-churn records (the access token
// revocation list and login failure counters) in Redis so every replica sees
// them immediately. Entries expire with the record they describe.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dtroode/authz-server/internal/model"
)

// DefaultKeyPrefix namespaces every key written by this package.
const DefaultKeyPrefix = "authz:"

var (
	_ model.RevocationList    = (*Store)(nil)
	_ model.LoginAttemptStore = (*Store)(nil)
)

// Store implements the revocation list and login attempt store on Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// NewClient creates a client from connection settings and verifies it.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) revokedKey(jti string) string       { return s.prefix + "revoked:" + jti }
func (s *Store) failuresKey(username string) string { return s.prefix + "login:failures:" + username }
func (s *Store) lockKey(username string) string     { return s.prefix + "login:lock:" + username }

// RevokeAccessToken writes the entry with a TTL equal to the token's remaining
// lifetime. SETNX keeps the first revocation time.
func (s *Store) RevokeAccessToken(ctx context.Context, e model.RevokedAccessToken) error {
	ttl := time.Until(e.ExpiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := s.client.SetNX(ctx, s.revokedKey(e.JTI), e.RevokedAt.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}
	return nil
}

func (s *Store) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}

// DeleteExpiredRevocations is a no-op: Redis expires entries itself.
func (s *Store) DeleteExpiredRevocations(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// RecordFailure keeps failures in a sorted set scored by time and trims the
// ones outside the window in the same transaction.
func (s *Store) RecordFailure(ctx context.Context, username string, now time.Time, window time.Duration) (int, error) {
	key := s.failuresKey(username)
	cutoff := now.Add(-window).UnixMilli()

	var card *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		card = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record login failure: %w", err)
	}
	return int(card.Val()), nil
}

func (s *Store) LockedUntil(ctx context.Context, username string, now time.Time) (time.Time, error) {
	v, err := s.client.Get(ctx, s.lockKey(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to read account lock: %w", err)
	}

	until := time.Unix(0, v)
	if !now.Before(until) {
		return time.Time{}, nil
	}
	return until, nil
}

func (s *Store) Lock(ctx context.Context, username string, until time.Time) error {
	ttl := time.Until(until)
	if ttl < time.Second {
		ttl = time.Second
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.lockKey(username), until.UnixNano(), ttl)
		pipe.Del(ctx, s.failuresKey(username))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	return nil
}

func (s *Store) Reset(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, s.failuresKey(username), s.lockKey(username)).Err(); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
