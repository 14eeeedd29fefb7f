package permission

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dtroode/authz-server/internal/logger"
)

// DefaultChannel is the pub/sub channel carrying cache invalidations.
const DefaultChannel = "authz:permissions:invalidate"

var _ Publisher = (*RedisBroadcaster)(nil)

// LocalInvalidator drops cache entries on the current replica.
type LocalInvalidator interface {
	InvalidateLocal(userID uuid.UUID)
	InvalidateAllLocal()
}

type invalidation struct {
	Origin string    `json:"origin"`
	UserID uuid.UUID `json:"user_id,omitempty"`
	All    bool      `json:"all,omitempty"`
}

// RedisBroadcaster fans permission cache invalidations out over Redis pub/sub.
type RedisBroadcaster struct {
	client  redis.UniversalClient
	channel string
	origin  string
	logger  *logger.Logger
}

// NewRedisBroadcaster creates a broadcaster. Messages published by this
// instance are ignored by its own listener.
func NewRedisBroadcaster(client redis.UniversalClient, channel string, logger *logger.Logger) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroadcaster{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

func (b *RedisBroadcaster) PublishUser(ctx context.Context, userID uuid.UUID) error {
	return b.publish(ctx, invalidation{Origin: b.origin, UserID: userID})
}

func (b *RedisBroadcaster) PublishAll(ctx context.Context) error {
	return b.publish(ctx, invalidation{Origin: b.origin, All: true})
}

func (b *RedisBroadcaster) publish(ctx context.Context, msg invalidation) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Listen applies invalidations from other replicas to target until ctx is done.
func (b *RedisBroadcaster) Listen(ctx context.Context, target LocalInvalidator) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}

			var msg invalidation
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.logger.Warn("Permission broadcaster: malformed message", "error", err.Error())
				continue
			}
			if msg.Origin == b.origin {
				continue
			}

			if msg.All {
				target.InvalidateAllLocal()
			} else {
				target.InvalidateLocal(msg.UserID)
			}
		}
	}
}
