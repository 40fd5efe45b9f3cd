package stores

import (
	"context"
	"sort"
	"sync"
)

// MemoryActorDirectory classifies users against an in-process set of
// external ids. Unknown users are internal.
type MemoryActorDirectory struct {
	mu       sync.RWMutex
	external map[string]struct{}
}

func NewMemoryActorDirectory(external ...string) *MemoryActorDirectory {
	d := &MemoryActorDirectory{external: make(map[string]struct{}, len(external))}
	for _, id := range external {
		d.external[id] = struct{}{}
	}
	return d
}

func (d *MemoryActorDirectory) IsExternalUser(_ context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.external[userID]
	return ok, nil
}

func (d *MemoryActorDirectory) MarkExternal(_ context.Context, userIDs ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range userIDs {
		d.external[id] = struct{}{}
	}
	return nil
}

func (d *MemoryActorDirectory) MarkInternal(_ context.Context, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.external, userID)
	return nil
}

func (d *MemoryActorDirectory) ListExternal(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.external))
	for id := range d.external {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// MemoryMembershipStore holds roles and groups per user in process.
type MemoryMembershipStore struct {
	mu      sync.RWMutex
	members map[string]map[string]map[string]struct{} // user -> kind -> names
}

func NewMemoryMembershipStore() *MemoryMembershipStore {
	return &MemoryMembershipStore{members: make(map[string]map[string]map[string]struct{})}
}

func (m *MemoryMembershipStore) AssignRole(_ context.Context, userID, role string) error {
	m.add(userID, memberKindRole, role)
	return nil
}

func (m *MemoryMembershipStore) RevokeRole(_ context.Context, userID, role string) error {
	m.remove(userID, memberKindRole, role)
	return nil
}

func (m *MemoryMembershipStore) AddToGroup(_ context.Context, userID, group string) error {
	m.add(userID, memberKindGroup, group)
	return nil
}

func (m *MemoryMembershipStore) RemoveFromGroup(_ context.Context, userID, group string) error {
	m.remove(userID, memberKindGroup, group)
	return nil
}

func (m *MemoryMembershipStore) ListRoles(_ context.Context, userID string) ([]string, error) {
	return m.list(userID, memberKindRole), nil
}

func (m *MemoryMembershipStore) ListGroups(_ context.Context, userID string) ([]string, error) {
	return m.list(userID, memberKindGroup), nil
}

func (m *MemoryMembershipStore) add(userID, kind, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds, ok := m.members[userID]
	if !ok {
		kinds = make(map[string]map[string]struct{})
		m.members[userID] = kinds
	}
	names, ok := kinds[kind]
	if !ok {
		names = make(map[string]struct{})
		kinds[kind] = names
	}
	names[name] = struct{}{}
}

func (m *MemoryMembershipStore) remove(userID, kind, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if names, ok := m.members[userID][kind]; ok {
		delete(names, name)
	}
}

func (m *MemoryMembershipStore) list(userID, kind string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := m.members[userID][kind]
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
