package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// MemoryEnrollmentStore keeps enrollments in process memory. It backs the
// API when no DATABASE_URL is configured and the CLI tests.
type MemoryEnrollmentStore struct {
	mu   sync.RWMutex
	data map[memoryKey]domain.Enrollment
	now  func() time.Time
}

type memoryKey struct {
	employeeID string
	strategy   domain.Strategy
}

func NewMemoryEnrollmentStore() *MemoryEnrollmentStore {
	return &MemoryEnrollmentStore{data: make(map[memoryKey]domain.Enrollment), now: time.Now}
}

func (m *MemoryEnrollmentStore) Create(_ context.Context, e *domain.Enrollment) error {
	if err := prepare(e); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey{e.EmployeeID, e.Strategy}
	if _, ok := m.data[key]; ok {
		return domain.ErrEnrollmentExists
	}
	now := m.now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	m.data[key] = *e
	return nil
}

func (m *MemoryEnrollmentStore) Upsert(_ context.Context, e *domain.Enrollment) error {
	if err := prepare(e); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey{e.EmployeeID, e.Strategy}
	now := m.now().UTC()
	if prev, ok := m.data[key]; ok {
		e.ID, e.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	m.data[key] = *e
	return nil
}

func (m *MemoryEnrollmentStore) Get(_ context.Context, employeeID string, strategy domain.Strategy) (*domain.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[memoryKey{employeeID, strategy}]
	if !ok {
		return nil, domain.ErrEnrollmentNotFound
	}
	return &e, nil
}

func (m *MemoryEnrollmentStore) Delete(_ context.Context, employeeID string, strategy domain.Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key := range m.data {
		if key.employeeID == employeeID && (strategy == "" || key.strategy == strategy) {
			delete(m.data, key)
			deleted++
		}
	}
	if deleted == 0 {
		return domain.ErrEnrollmentNotFound
	}
	return nil
}

func (m *MemoryEnrollmentStore) List(_ context.Context, strategy domain.Strategy) ([]domain.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Enrollment
	for key, e := range m.data {
		if key.strategy == strategy {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}
