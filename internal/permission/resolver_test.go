package permission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/authz-server/internal/mocks"
	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/testutil"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func ptr(t time.Time) *time.Time { return &t }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func TestResolver_UnionOfEffectiveAssignments(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	now := clock.now()
	userID := uuid.New()

	store := mocks.NewDirectoryStore(t)
	store.On("ListRoleAssignments", mock.Anything, userID).Return([]model.RoleAssignment{
		{RoleName: "editor", Permissions: []string{"docs:write", "docs:read"}},
		{RoleName: "viewer", Permissions: []string{"docs:read"}},
		{RoleName: "admin", Permissions: []string{"admin:all"}, ExpiresAt: ptr(now.Add(-time.Second))},
		{RoleName: "auditor", Permissions: []string{"audit:read"}, StartsAt: ptr(now.Add(time.Hour))},
		{RoleName: "billing", Permissions: []string{"billing:read"}, RevokedAt: ptr(now.Add(-time.Hour))},
	}, nil).Once()

	r := NewResolver(store, time.Minute, testutil.MakeNoopLogger(), WithClock(clock.now))

	set, err := r.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs:read", "docs:write"}, set.Permissions)
	assert.Equal(t, []string{"editor", "viewer"}, set.Roles)
}

func TestResolver_CachesWithinTTL(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	userID := uuid.New()

	store := mocks.NewDirectoryStore(t)
	store.On("ListRoleAssignments", mock.Anything, userID).Return([]model.RoleAssignment{
		{RoleName: "viewer", Permissions: []string{"docs:read"}},
	}, nil).Once()
	store.On("ListRoleAssignments", mock.Anything, userID).Return([]model.RoleAssignment{
		{RoleName: "editor", Permissions: []string{"docs:write"}},
	}, nil).Once()

	r := NewResolver(store, time.Minute, testutil.MakeNoopLogger(), WithClock(clock.now))

	set, err := r.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs:read"}, set.Permissions)

	// Stale within TTL is accepted.
	clock.advance(59 * time.Second)
	set, err = r.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs:read"}, set.Permissions)

	// Never stale past TTL.
	clock.advance(time.Second)
	set, err = r.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs:write"}, set.Permissions)
}

func TestResolver_InvalidateForcesRecompute(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	store := mocks.NewDirectoryStore(t)
	store.On("ListRoleAssignments", mock.Anything, userID).Return([]model.RoleAssignment{
		{RoleName: "admin", Permissions: []string{"admin:all"}},
	}, nil).Once()
	store.On("ListRoleAssignments", mock.Anything, userID).Return([]model.RoleAssignment{}, nil).Once()

	r := NewResolver(store, time.Hour, testutil.MakeNoopLogger())

	set, err := r.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.True(t, set.Has("admin:all"))

	r.Invalidate(ctx, userID)

	set, err = r.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.False(t, set.Has("admin:all"))
}

func TestResolver_ExpiryBoundsCacheEntry(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	userID := uuid.New()
	expiry := clock.now().Add(10 * time.Second)

	// The store keeps returning the same assignment; only the clock moves.
	store := mocks.NewDirectoryStore(t)
	store.On("ListRoleAssignments", mock.Anything, userID).Return([]model.RoleAssignment{
		{RoleName: "temp-admin", Permissions: []string{"admin:all"}, ExpiresAt: &expiry},
		{RoleName: "viewer", Permissions: []string{"docs:read"}},
	}, nil).Twice()

	r := NewResolver(store, time.Hour, testutil.MakeNoopLogger(), WithClock(clock.now))

	set, err := r.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.True(t, set.Has("admin:all"))

	for _, step := range []time.Duration{5 * time.Second, 4 * time.Second, time.Second, time.Minute} {
		clock.advance(step)
		set, err = r.Resolve(ctx, userID)
		require.NoError(t, err)
		if clock.now().Before(expiry) {
			assert.True(t, set.Has("admin:all"))
		} else {
			assert.False(t, set.Has("admin:all"), "expired assignment leaked at %s", clock.now())
		}
		assert.True(t, set.Has("docs:read"))
	}
}

func TestResolver_FutureAssignmentBecomesEffective(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	userID := uuid.New()
	start := clock.now().Add(30 * time.Second)

	store := mocks.NewDirectoryStore(t)
	store.On("ListRoleAssignments", mock.Anything, userID).Return([]model.RoleAssignment{
		{RoleName: "oncall", Permissions: []string{"pager:ack"}, StartsAt: &start},
	}, nil).Twice()

	r := NewResolver(store, time.Hour, testutil.MakeNoopLogger(), WithClock(clock.now))

	set, err := r.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.False(t, set.Has("pager:ack"))

	clock.advance(30 * time.Second)
	set, err = r.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.True(t, set.Has("pager:ack"))
}

func TestResolver_StoreFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	store := mocks.NewDirectoryStore(t)
	store.On("ListRoleAssignments", mock.Anything, userID).Return(nil, assert.AnError).Once()

	r := NewResolver(store, time.Minute, testutil.MakeNoopLogger())

	_, err := r.Resolve(ctx, userID)
	require.ErrorIs(t, err, model.ErrUnavailable)
}

func TestResolver_InvalidationDuringComputeIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	entered := make(chan struct{})
	release := make(chan struct{})

	store := mocks.NewDirectoryStore(t)
	store.On("ListRoleAssignments", mock.Anything, userID).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]model.RoleAssignment{{RoleName: "admin", Permissions: []string{"admin:all"}}}, nil).Once()
	store.On("ListRoleAssignments", mock.Anything, userID).
		Return([]model.RoleAssignment{}, nil).Once()

	r := NewResolver(store, time.Hour, testutil.MakeNoopLogger())

	done := make(chan model.PermissionSet)
	go func() {
		set, err := r.Resolve(ctx, userID)
		assert.NoError(t, err)
		done <- set
	}()

	<-entered
	r.Invalidate(ctx, userID)
	close(release)

	stale := <-done
	assert.True(t, stale.Has("admin:all"), "in-flight caller sees the value it read")

	set, err := r.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.False(t, set.Has("admin:all"), "stale result must not be cached after invalidation")
}

func TestResolver_BookkeepingIsReleased(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	entered := make(chan struct{})
	release := make(chan struct{})

	store := mocks.NewDirectoryStore(t)
	store.On("ListRoleAssignments", mock.Anything, alice).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]model.RoleAssignment{}, nil).Once()
	store.On("ListRoleAssignments", mock.Anything, mock.Anything).
		Return([]model.RoleAssignment{{RoleName: "viewer", Permissions: []string{"docs:read"}}}, nil)

	r := NewResolver(store, time.Minute, testutil.MakeNoopLogger(), WithClock(clock.now))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := r.Resolve(ctx, alice)
		assert.NoError(t, err)
	}()
	<-entered
	r.Invalidate(ctx, alice)
	for i := 0; i < 100; i++ {
		r.Invalidate(ctx, uuid.New())
	}
	close(release)
	<-done

	r.mu.Lock()
	assert.Empty(t, r.invalidated)
	assert.Empty(t, r.inflight)
	assert.Empty(t, r.entries, "raced result is not cached")
	r.mu.Unlock()

	_, err := r.Resolve(ctx, alice)
	require.NoError(t, err)
	_, err = r.Resolve(ctx, bob)
	require.NoError(t, err)

	clock.advance(2 * time.Minute)
	_, err = r.Resolve(ctx, carol)
	require.NoError(t, err)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Len(t, r.entries, 1, "expired entries are swept")
	assert.Contains(t, r.entries, carol)
}

func TestResolver_ConcurrentResolveSharesLoad(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	var calls atomic.Int32
	release := make(chan struct{})

	store := mocks.NewDirectoryStore(t)
	store.On("ListRoleAssignments", mock.Anything, userID).
		Run(func(mock.Arguments) {
			calls.Add(1)
			<-release
		}).
		Return([]model.RoleAssignment{{RoleName: "viewer", Permissions: []string{"docs:read"}}}, nil).Maybe()

	r := NewResolver(store, time.Hour, testutil.MakeNoopLogger())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := r.Resolve(ctx, userID)
			assert.NoError(t, err)
			assert.True(t, set.Has("docs:read"))
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(16))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestResolver_InvalidateRole(t *testing.T) {
	ctx := context.Background()
	roleID := uuid.New()
	alice, bob := uuid.New(), uuid.New()

	store := mocks.NewDirectoryStore(t)
	for _, u := range []uuid.UUID{alice, bob} {
		store.On("ListRoleAssignments", mock.Anything, u).Return([]model.RoleAssignment{
			{RoleID: roleID, RoleName: "editor", Permissions: []string{"docs:write"}},
		}, nil).Once()
		store.On("ListRoleAssignments", mock.Anything, u).Return([]model.RoleAssignment{
			{RoleID: roleID, RoleName: "editor", Permissions: []string{"docs:read"}},
		}, nil).Once()
	}
	store.On("ListRoleMembers", mock.Anything, roleID).Return([]uuid.UUID{alice, bob}, nil).Once()

	r := NewResolver(store, time.Hour, testutil.MakeNoopLogger())

	for _, u := range []uuid.UUID{alice, bob} {
		set, err := r.Resolve(ctx, u)
		require.NoError(t, err)
		require.True(t, set.Has("docs:write"))
	}

	require.NoError(t, r.InvalidateRole(ctx, roleID))

	for _, u := range []uuid.UUID{alice, bob} {
		set, err := r.Resolve(ctx, u)
		require.NoError(t, err)
		assert.False(t, set.Has("docs:write"))
	}
}

func TestResolver_InvalidateRoleFallsBackToFlush(t *testing.T) {
	ctx := context.Background()
	roleID := uuid.New()
	userID := uuid.New()

	store := mocks.NewDirectoryStore(t)
	store.On("ListRoleAssignments", mock.Anything, userID).Return([]model.RoleAssignment{}, nil).Twice()
	store.On("ListRoleMembers", mock.Anything, roleID).Return(nil, assert.AnError).Once()

	r := NewResolver(store, time.Hour, testutil.MakeNoopLogger())

	_, err := r.Resolve(ctx, userID)
	require.NoError(t, err)

	require.Error(t, r.InvalidateRole(ctx, roleID))

	_, err = r.Resolve(ctx, userID)
	require.NoError(t, err)
}
