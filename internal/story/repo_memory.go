package story

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests.
// It is not intended for production use.

type MemoryRepo struct {
	mu       sync.RWMutex
	stories  map[string]Story
	profiles map[string]Profile

	// orgTenants maps organization id -> tenant id for the second resolution hop.
	orgTenants map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		stories:    make(map[string]Story),
		profiles:   make(map[string]Profile),
		orgTenants: make(map[string]string),
	}
}

func (r *MemoryRepo) PutStory(s Story) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stories[s.ID] = s
}

func (r *MemoryRepo) PutProfile(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
}

func (r *MemoryRepo) PutOrganisation(orgID, tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgTenants[orgID] = tenantID
}

func (r *MemoryRepo) GetStory(ctx context.Context, id string) (Story, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stories[id]
	if !ok {
		return Story{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) GetProfile(ctx context.Context, id string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) GetStoryTenancy(ctx context.Context, id string) (Tenancy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stories[id]
	if !ok {
		return Tenancy{}, ErrNotFound
	}
	t := Tenancy{OrganizationID: s.OrganizationID, TenantID: s.TenantID}
	if s.OrganizationID != nil {
		if tenant, ok := r.orgTenants[*s.OrganizationID]; ok {
			t.TenantID = &tenant
		}
	}
	return t, nil
}
