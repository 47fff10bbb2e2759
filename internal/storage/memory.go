package storage

import (
	"context"
	"sync"

	"github.com/hyperjump/contentindex/internal/models"
)

// MemoryProvider keeps state in process memory. Used for tests and single-node deployments.
type MemoryProvider struct {
	mu      sync.Mutex
	tenants map[string]*MemoryStore
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{tenants: make(map[string]*MemoryStore)}
}

// ForTenant returns the tenant's store, creating it on first use.
func (p *MemoryProvider) ForTenant(tenant string) (StateStore, error) {
	if err := models.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.tenants[tenant]
	if !ok {
		s = NewMemoryStore()
		p.tenants[tenant] = s
	}
	return s, nil
}

// DropTenant forgets the tenant's store.
func (p *MemoryProvider) DropTenant(ctx context.Context, tenant string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tenants, tenant)
	return nil
}

// Close is a no-op.
func (p *MemoryProvider) Close() error {
	return nil
}

// MemoryStore is a map-backed StateStore. Stored states are copied on the way in
// and out so callers never share them.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[models.ContentID]*models.TextContentState
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[models.ContentID]*models.TextContentState)}
}

func (s *MemoryStore) Get(ctx context.Context, id models.ContentID) (*models.TextContentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[id].Clone(), nil
}

func (s *MemoryStore) Set(ctx context.Context, state *models.TextContentState) error {
	if err := validState(state); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ContentID] = state.Clone()
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, id models.ContentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[models.ContentID]*models.TextContentState)
	return nil
}

func (s *MemoryStore) Replace(ctx context.Context, states []*models.TextContentState) error {
	next := make(map[models.ContentID]*models.TextContentState, len(states))
	for _, st := range states {
		if err := validState(st); err != nil {
			return err
		}
		next[st.ContentID] = st.Clone()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = next
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.states)), nil
}
