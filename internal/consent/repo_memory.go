package consent

import (
	"context"
	"sync"
	"time"

	"empathy-ledger/internal/story"
)

// MemoryGrantStore is an in-memory GrantStore useful for tests.
// It is not intended for production use.

type MemoryGrantStore struct {
	mu      sync.Mutex
	grants  map[string]Grant // keyed by storyID + "\x00" + appID
	apps    map[string]Application
	changes []ChangeLogEntry
}

func NewMemoryGrantStore() *MemoryGrantStore {
	return &MemoryGrantStore{
		grants: make(map[string]Grant),
		apps:   make(map[string]Application),
	}
}

func grantKey(storyID, appID string) string { return storyID + "\x00" + appID }

func (r *MemoryGrantStore) PutGrant(g Grant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[grantKey(g.StoryID, g.AppID)] = g
}

func (r *MemoryGrantStore) PutApplication(a Application) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[a.ID] = a
}

func (r *MemoryGrantStore) GetGrant(ctx context.Context, storyID, appID string) (Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[grantKey(storyID, appID)]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

func (r *MemoryGrantStore) GetApplication(ctx context.Context, appID string) (Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.apps[appID]
	if !ok {
		return Application{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryGrantStore) UpsertGrant(ctx context.Context, g Grant, log ChangeLogEntry) (Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := grantKey(g.StoryID, g.AppID)
	if existing, ok := r.grants[key]; ok {
		g.ID = existing.ID
		g.CreatedAt = existing.CreatedAt
		if g.TenantID == nil {
			g.TenantID = existing.TenantID
		}
		if g.OrganizationID == nil {
			g.OrganizationID = existing.OrganizationID
		}
	}
	r.grants[key] = g
	log.GrantID = g.ID
	r.changes = append(r.changes, log)
	return g, nil
}

func (r *MemoryGrantStore) RevokeGrant(ctx context.Context, storyID, appID string, revokedAt time.Time, tenancy story.Tenancy, log ChangeLogEntry) (Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := grantKey(storyID, appID)
	g, ok := r.grants[key]
	if !ok {
		return Grant{}, ErrNotFound
	}
	g.Granted = false
	at := revokedAt
	g.RevokedAt = &at
	g.UpdatedAt = revokedAt
	if g.TenantID == nil {
		g.TenantID = tenancy.TenantID
	}
	if g.OrganizationID == nil {
		g.OrganizationID = tenancy.OrganizationID
	}
	r.grants[key] = g
	log.GrantID = g.ID
	r.changes = append(r.changes, log)
	return g, nil
}

func (r *MemoryGrantStore) Changes() []ChangeLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChangeLogEntry, len(r.changes))
	copy(out, r.changes)
	return out
}
