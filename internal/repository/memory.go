package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wisbric/urumi-provisioner/pkg/store"
)

// MemoryRepository is an in-memory Repository used by tests in place of a
// live database, the same way the teacher's handler tests swap a fake for
// the pgxpool-backed store behind an interface.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*store.Store
}

// NewMemoryRepository builds an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*store.Store)}
}

func clone(s *store.Store) *store.Store {
	cp := *s
	return &cp
}

func (r *MemoryRepository) Create(_ context.Context, s *store.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[s.ID] = clone(s)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, id string, patch Patch) (*store.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	s = clone(s)

	if patch.Status != nil {
		s.Status = *patch.Status
	}
	if patch.ClearPhase {
		s.Phase = nil
	} else if patch.Phase != nil {
		s.Phase = patch.Phase
	}
	if patch.DBReady != nil {
		s.DBReady = *patch.DBReady
	}
	if patch.AppReady != nil {
		s.AppReady = *patch.AppReady
	}
	if patch.URL != nil {
		s.URL = patch.URL
	}
	if patch.AdminURL != nil {
		s.AdminURL = patch.AdminURL
	}
	if patch.ErrorMessage != nil {
		s.ErrorMessage = patch.ErrorMessage
	}
	if patch.ErrorPhase != nil {
		s.ErrorPhase = patch.ErrorPhase
	}
	if patch.ReadyAt != nil {
		s.ReadyAt = patch.ReadyAt
	}
	if patch.DeletedAt != nil {
		s.DeletedAt = patch.DeletedAt
	}
	if patch.ClearDeadline {
		s.DeadlineAt = nil
	} else if patch.DeadlineAt != nil {
		s.DeadlineAt = patch.DeadlineAt
	}
	if patch.ProvisioningDurationMs != nil {
		s.ProvisioningDurationMs = patch.ProvisioningDurationMs
	}
	s.UpdatedAt = time.Now().UTC()

	r.records[id] = s
	return clone(s), nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*store.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (r *MemoryRepository) FindAll(_ context.Context) ([]*store.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*store.Store, 0, len(r.records))
	for _, s := range r.records {
		if s.Status == store.StatusDeleted {
			continue
		}
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	s = clone(s)
	s.Status = store.StatusDeleted
	now := time.Now().UTC()
	s.DeletedAt = &now
	s.UpdatedAt = now
	r.records[id] = s
	return nil
}

func (r *MemoryRepository) CountActive(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, s := range r.records {
		if s.IsActive() {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) FindStaleProvisioning(_ context.Context, asOf time.Time) ([]*store.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*store.Store
	for _, s := range r.records {
		if s.Status == store.StatusProvisioning && s.DeadlineAt != nil && s.DeadlineAt.Before(asOf) {
			out = append(out, clone(s))
		}
	}
	return out, nil
}

func (r *MemoryRepository) HealthPing(_ context.Context) error {
	return nil
}
