// Package permission resolves a user's effective permissions from role
// assignments and caches the result per user.
//
// The cache is a bounded-staleness contract: an entry lives at most TTL and
// never past the next start or expiry of any of the user's assignments, so a
// lapsed assignment stops contributing exactly on time. Administrative role
// or permission changes must call Invalidate or InvalidateRole; until then a
// result up to TTL old may be served.
package permission

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/metrics"
	"github.com/dtroode/authz-server/internal/model"
)

// DefaultTTL bounds how long a cached permission set may be served.
const DefaultTTL = 5 * time.Minute

var _ model.PermissionResolver = (*Resolver)(nil)

// Publisher propagates invalidations to other replicas.
type Publisher interface {
	PublishUser(ctx context.Context, userID uuid.UUID) error
	PublishAll(ctx context.Context) error
}

type entry struct {
	set       model.PermissionSet
	expiresAt time.Time
}

// Resolver computes permission sets with a per-user TTL cache.
type Resolver struct {
	store     model.DirectoryStore
	ttl       time.Duration
	now       func() time.Time
	logger    *logger.Logger
	metrics   *metrics.Metrics
	publisher Publisher

	mu      sync.Mutex
	entries map[uuid.UUID]entry
	sweptAt time.Time
	// seq advances on every invalidation. A resolve caches its result only
	// if no invalidation of its user (or flush) happened after it started.
	// Per-user marks are kept only while a resolve for that user is in flight.
	seq         uint64
	flushed     uint64
	invalidated map[uuid.UUID]uint64
	inflight    map[uuid.UUID]int
	group       singleflight.Group
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithMetrics records cache hits and misses.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithPublisher fans invalidations out to other replicas.
func WithPublisher(p Publisher) Option {
	return func(r *Resolver) { r.publisher = p }
}

// NewResolver creates a resolver. A non-positive ttl selects DefaultTTL.
func NewResolver(store model.DirectoryStore, ttl time.Duration, logger *logger.Logger, opts ...Option) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Resolver{
		store:       store,
		ttl:         ttl,
		now:         time.Now,
		logger:      logger,
		entries:     make(map[uuid.UUID]entry),
		invalidated: make(map[uuid.UUID]uint64),
		inflight:    make(map[uuid.UUID]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the union of permissions of the user's effective role assignments.
//
// Parameters:
//   - ctx: The request context
//   - userID: The user to resolve
//
// Returns the permission set, served from cache while fresh, or an
// ErrUnavailable error when the directory cannot be read.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (model.PermissionSet, error) {
	now := r.now()

	r.mu.Lock()
	if e, ok := r.entries[userID]; ok {
		if now.Before(e.expiresAt) {
			r.mu.Unlock()
			r.metrics.PermissionCacheHit()
			return e.set, nil
		}
		delete(r.entries, userID)
	}
	seq := r.seq
	r.mu.Unlock()

	r.metrics.PermissionCacheMiss()

	key := fmt.Sprintf("%s:%d", userID, seq)
	v, err, _ := r.group.Do(key, func() (any, error) {
		start := r.begin(userID)

		assignments, err := r.store.ListRoleAssignments(ctx, userID)
		if err != nil {
			r.finish(userID, start, nil)
			return nil, err
		}

		now := r.now()
		set, validUntil := compute(assignments, now)
		expiresAt := now.Add(r.ttl)
		if !validUntil.IsZero() && validUntil.Before(expiresAt) {
			expiresAt = validUntil
		}
		r.finish(userID, start, &entry{set: set, expiresAt: expiresAt})

		return set, nil
	})
	if err != nil {
		r.logger.Error("Permission resolver: failed to list role assignments", "user_id", userID.String(), "error", err.Error())
		return model.PermissionSet{}, model.NewUnavailable(fmt.Errorf("failed to resolve permissions: %w", err))
	}

	return v.(model.PermissionSet), nil
}

func (r *Resolver) begin(userID uuid.UUID) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inflight[userID]++
	return r.seq
}

// finish caches e unless an invalidation raced with the read. The stale
// result is still returned to the callers of that read.
func (r *Resolver) finish(userID uuid.UUID, start uint64, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e != nil && r.flushed <= start && r.invalidated[userID] <= start {
		r.entries[userID] = *e
	}
	if r.inflight[userID]--; r.inflight[userID] <= 0 {
		delete(r.inflight, userID)
		delete(r.invalidated, userID)
	}
	r.sweep()
}

// sweep drops expired entries at most once per TTL. Caller holds mu.
func (r *Resolver) sweep() {
	now := r.now()
	if now.Sub(r.sweptAt) < r.ttl {
		return
	}
	r.sweptAt = now
	for id, e := range r.entries {
		if !now.Before(e.expiresAt) {
			delete(r.entries, id)
		}
	}
}

// Invalidate drops the cached set of a user on this replica and, when a
// publisher is configured, on every other replica.
func (r *Resolver) Invalidate(ctx context.Context, userID uuid.UUID) {
	r.InvalidateLocal(userID)

	if r.publisher != nil {
		if err := r.publisher.PublishUser(ctx, userID); err != nil {
			r.logger.Warn("Permission resolver: failed to publish invalidation", "user_id", userID.String(), "error", err.Error())
		}
	}
}

// InvalidateRole invalidates every user holding the role. If the members
// cannot be listed the whole cache is flushed instead.
func (r *Resolver) InvalidateRole(ctx context.Context, roleID uuid.UUID) error {
	members, err := r.store.ListRoleMembers(ctx, roleID)
	if err != nil {
		r.logger.Warn("Permission resolver: failed to list role members, flushing cache", "role_id", roleID.String(), "error", err.Error())
		r.InvalidateAll(ctx)
		return fmt.Errorf("failed to list role members: %w", err)
	}

	for _, userID := range members {
		r.Invalidate(ctx, userID)
	}
	return nil
}

// InvalidateAll flushes every cached set.
func (r *Resolver) InvalidateAll(ctx context.Context) {
	r.InvalidateAllLocal()

	if r.publisher != nil {
		if err := r.publisher.PublishAll(ctx); err != nil {
			r.logger.Warn("Permission resolver: failed to publish flush", "error", err.Error())
		}
	}
}

// InvalidateLocal drops the cached set of a user on this replica only.
func (r *Resolver) InvalidateLocal(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	if r.inflight[userID] > 0 {
		r.invalidated[userID] = r.seq
	}
	delete(r.entries, userID)
}

// InvalidateAllLocal flushes this replica's cache.
func (r *Resolver) InvalidateAllLocal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.flushed = r.seq
	clear(r.entries)
}

// compute flattens effective assignments and reports the earliest future
// instant at which the result changes, or zero if it never does.
func compute(assignments []model.RoleAssignment, now time.Time) (model.PermissionSet, time.Time) {
	var (
		roles       []string
		permissions []string
		validUntil  time.Time
	)

	earliest := func(t time.Time) {
		if t.After(now) && (validUntil.IsZero() || t.Before(validUntil)) {
			validUntil = t
		}
	}

	for _, a := range assignments {
		if a.RevokedAt != nil {
			continue
		}
		if a.StartsAt != nil {
			earliest(*a.StartsAt)
		}
		if a.ExpiresAt != nil {
			earliest(*a.ExpiresAt)
		}
		if !a.EffectiveAt(now) {
			continue
		}
		roles = append(roles, a.RoleName)
		permissions = append(permissions, a.Permissions...)
	}

	slices.Sort(roles)
	slices.Sort(permissions)
	return model.PermissionSet{
		Roles:       slices.Compact(roles),
		Permissions: slices.Compact(permissions),
	}, validUntil
}
