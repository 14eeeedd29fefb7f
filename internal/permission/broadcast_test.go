package permission

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/authz-server/internal/mocks"
	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/testutil"
)

func (r *Resolver) cached(userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[userID]
	return ok
}

func TestRedisBroadcaster_FansOutInvalidation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	userID := uuid.New()
	log := testutil.MakeNoopLogger()

	store := mocks.NewDirectoryStore(t)
	store.On("ListRoleAssignments", mock.Anything, userID).Return([]model.RoleAssignment{
		{RoleName: "viewer", Permissions: []string{"docs:read"}},
	}, nil)

	pubA := NewRedisBroadcaster(client, "", log)
	pubB := NewRedisBroadcaster(client, "", log)
	replicaA := NewResolver(store, time.Hour, log, WithPublisher(pubA))
	replicaB := NewResolver(store, time.Hour, log, WithPublisher(pubB))

	go func() { _ = pubB.Listen(ctx, replicaB) }()

	_, err := replicaB.Resolve(ctx, userID)
	require.NoError(t, err)
	require.True(t, replicaB.cached(userID))

	assert.Eventually(t, func() bool {
		replicaA.Invalidate(ctx, userID)
		return !replicaB.cached(userID)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRedisBroadcaster_IgnoresOwnMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	userID := uuid.New()
	log := testutil.MakeNoopLogger()

	store := mocks.NewDirectoryStore(t)
	store.On("ListRoleAssignments", mock.Anything, userID).Return([]model.RoleAssignment{}, nil)

	b := NewRedisBroadcaster(client, "test:channel", log)
	r := NewResolver(store, time.Hour, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Listen(ctx, r)
	}()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("test:channel")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err := r.Resolve(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, b.PublishAll(ctx))

	time.Sleep(50 * time.Millisecond)
	assert.True(t, r.cached(userID))

	cancel()
	<-done
}
