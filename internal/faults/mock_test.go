package faults

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/domain"
	"github.com/google/uuid"
)

// memoryRepository implements Repository in memory for testing.
type memoryRepository struct {
	mu      sync.Mutex
	faults  map[string]*domain.Fault
	updates map[string][]*domain.FaultUpdate

	listErr error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		faults:  make(map[string]*domain.Fault),
		updates: make(map[string][]*domain.FaultUpdate),
	}
}

func copyFault(f *domain.Fault) *domain.Fault {
	c := *f
	return &c
}

func (m *memoryRepository) add(f *domain.Fault) *domain.Fault {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	m.faults[f.ID] = copyFault(f)
	return f
}

func (m *memoryRepository) CreateFault(_ context.Context, fault *domain.Fault) error {
	fault.ID = uuid.NewString()
	fault.CreatedAt = time.Now()
	fault.UpdatedAt = fault.CreatedAt
	m.add(fault)
	return nil
}

func (m *memoryRepository) GetFault(_ context.Context, id string) (*domain.Fault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.faults[id]
	if !ok {
		return nil, ErrFaultNotFound
	}
	return copyFault(f), nil
}

func (m *memoryRepository) list(keep func(*domain.Fault) bool) []*domain.Fault {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*domain.Fault, 0)
	for _, f := range m.faults {
		if keep(f) {
			result = append(result, copyFault(f))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime().Before(result[j].StartTime()) })
	return result
}

func (m *memoryRepository) ListActiveFaults(_ context.Context) ([]*domain.Fault, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.list(func(f *domain.Fault) bool { return !f.Status.IsResolved() }), nil
}

func (m *memoryRepository) ListFaultsRaisedBetween(_ context.Context, start, end time.Time) ([]*domain.Fault, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.list(func(f *domain.Fault) bool {
		st := f.StartTime()
		return !st.Before(start) && st.Before(end)
	}), nil
}

func (m *memoryRepository) SetMilestone(_ context.Context, id string, milestone domain.Milestone, at time.Time) (*domain.Fault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.faults[id]
	if !ok {
		return nil, ErrFaultNotFound
	}

	var slot **time.Time
	switch milestone {
	case domain.MilestoneRespond:
		slot = &f.RespondedAt
	case domain.MilestoneOnsite:
		slot = &f.ArrivedOnsiteAt
	case domain.MilestoneTempRestore:
		slot = &f.TemporarilyRestoredAt
	default:
		return nil, ErrInvalidMilestone
	}
	if *slot == nil {
		*slot = &at
	}
	if f.Status == domain.FaultStatusOpen {
		f.Status = domain.FaultStatusInProgress
	}
	return copyFault(f), nil
}

func (m *memoryRepository) ResolveFault(_ context.Context, id string, at time.Time) (*domain.Fault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.faults[id]
	if !ok {
		return nil, ErrFaultNotFound
	}
	if f.Status.IsResolved() {
		return nil, ErrFaultResolved
	}
	f.Status = domain.FaultStatusResolved
	f.ResolvedAt = &at
	return copyFault(f), nil
}

func (m *memoryRepository) CreateFaultUpdate(_ context.Context, update *domain.FaultUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.faults[update.FaultID]; !ok {
		return errors.New("foreign key violation")
	}
	update.ID = uuid.NewString()
	m.updates[update.FaultID] = append(m.updates[update.FaultID], update)
	return nil
}

func (m *memoryRepository) LatestFaultUpdateAt(_ context.Context, faultID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *time.Time
	for _, u := range m.updates[faultID] {
		if latest == nil || u.CreatedAt.After(*latest) {
			t := u.CreatedAt
			latest = &t
		}
	}
	return latest, nil
}

func (m *memoryRepository) ListFaultUpdates(_ context.Context, faultID string) ([]*domain.FaultUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.FaultUpdate, 0, len(m.updates[faultID]))
	for i := len(m.updates[faultID]) - 1; i >= 0; i-- {
		result = append(result, m.updates[faultID][i])
	}
	return result, nil
}
