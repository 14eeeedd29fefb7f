// Package memory is an in-process Credential Store for development and tests.
// Every method takes the store mutex, so each write is atomic with respect to
// every other operation.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/authz-server/internal/model"
)

var (
	_ model.ClientStore       = (*Store)(nil)
	_ model.UserStore         = (*Store)(nil)
	_ model.DirectoryStore    = (*Store)(nil)
	_ model.DirectoryAdmin    = (*Store)(nil)
	_ model.ScopeStore        = (*Store)(nil)
	_ model.ConsentStore      = (*Store)(nil)
	_ model.CodeStore         = (*Store)(nil)
	_ model.RefreshTokenStore = (*Store)(nil)
	_ model.RevocationList    = (*Store)(nil)
	_ model.LoginAttemptStore = (*Store)(nil)
)

type attempts struct {
	failures    []time.Time
	lockedUntil time.Time
}

type consentKey struct {
	userID   uuid.UUID
	clientID string
}

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	clients     map[string]model.Client
	users       map[uuid.UUID]model.User
	roles       map[uuid.UUID]model.Role
	assignments []model.RoleAssignment
	scopes      map[string]model.Scope
	consents    map[consentKey]model.ConsentGrant
	codes       map[string]model.AuthorizationCode
	refresh     map[string]model.RefreshToken
	revoked     map[string]model.RevokedAccessToken
	attempts    map[string]*attempts
}

// New creates an empty store.
func New() *Store {
	return &Store{
		clients:  make(map[string]model.Client),
		users:    make(map[uuid.UUID]model.User),
		roles:    make(map[uuid.UUID]model.Role),
		scopes:   make(map[string]model.Scope),
		consents: make(map[consentKey]model.ConsentGrant),
		codes:    make(map[string]model.AuthorizationCode),
		refresh:  make(map[string]model.RefreshToken),
		revoked:  make(map[string]model.RevokedAccessToken),
		attempts: make(map[string]*attempts),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// PutClient registers or replaces a client.
func (s *Store) PutClient(c model.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
}

func (s *Store) GetClient(_ context.Context, clientID string) (model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[clientID]
	if !ok {
		return model.Client{}, model.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetByUsername(_ context.Context, username string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username && u.DeletedAt == nil {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok || u.DeletedAt != nil {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (s *Store) Create(_ context.Context, user model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	for _, u := range s.users {
		if u.Username == user.Username {
			return model.User{}, fmt.Errorf("username %q taken: %w", user.Username, model.ErrConflict)
		}
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.ID] = user
	return user, nil
}

// PutRole registers or replaces a role and its permissions.
func (s *Store) PutRole(role model.Role) model.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	s.roles[role.ID] = role
	return role
}

func (s *Store) AssignRole(_ context.Context, a model.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[a.RoleID]; !ok {
		return fmt.Errorf("role %s: %w", a.RoleID, model.ErrNotFound)
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now()
	}
	a.RoleName, a.Permissions = "", nil
	s.assignments = append(s.assignments, a)
	return nil
}

func (s *Store) RevokeRole(_ context.Context, userID, roleID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.assignments {
		a := &s.assignments[i]
		if a.UserID == userID && a.RoleID == roleID && a.RevokedAt == nil {
			a.RevokedAt = &now
		}
	}
	return nil
}

func (s *Store) SetRolePermissions(_ context.Context, roleID uuid.UUID, permissions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[roleID]
	if !ok {
		return fmt.Errorf("role %s: %w", roleID, model.ErrNotFound)
	}
	role.Permissions = slices.Clone(permissions)
	s.roles[roleID] = role
	return nil
}

func (s *Store) ListRoleAssignments(_ context.Context, userID uuid.UUID) ([]model.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.RoleAssignment
	for _, a := range s.assignments {
		if a.UserID != userID {
			continue
		}
		role, ok := s.roles[a.RoleID]
		if !ok {
			continue
		}
		a.RoleName = role.Name
		a.Permissions = slices.Clone(role.Permissions)
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) ListRoleMembers(_ context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []uuid.UUID
	for _, a := range s.assignments {
		if a.RoleID == roleID && a.RevokedAt == nil && !slices.Contains(out, a.UserID) {
			out = append(out, a.UserID)
		}
	}
	return out, nil
}

// PutScope registers a scope catalogue entry.
func (s *Store) PutScope(scope model.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope.Name] = scope
}

func (s *Store) GetScopes(_ context.Context, names []string) (map[string]model.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.Scope, len(names))
	for _, n := range names {
		if sc, ok := s.scopes[n]; ok {
			out[n] = sc
		}
	}
	return out, nil
}

func (s *Store) GetConsent(_ context.Context, userID uuid.UUID, clientID string) (model.ConsentGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.consents[consentKey{userID, clientID}]
	if !ok {
		return model.ConsentGrant{}, model.ErrNotFound
	}
	return g, nil
}

func (s *Store) SaveConsent(_ context.Context, grant model.ConsentGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := consentKey{grant.UserID, grant.ClientID}
	if prev, ok := s.consents[key]; ok && prev.RevokedAt == nil {
		for _, sc := range prev.Scopes {
			if !slices.Contains(grant.Scopes, sc) {
				grant.Scopes = append(grant.Scopes, sc)
			}
		}
	}
	grant.RevokedAt = nil
	s.consents[key] = grant
	return nil
}

func (s *Store) RevokeConsent(_ context.Context, userID uuid.UUID, clientID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := consentKey{userID, clientID}
	if g, ok := s.consents[key]; ok {
		g.RevokedAt = &now
		s.consents[key] = g
	}
	return nil
}
