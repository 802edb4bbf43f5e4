package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory quota store for tests and early development.
// TryReserve evaluates its predicate under the store lock, preserving the
// atomicity contract of the Postgres implementation.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]ProjectQuota
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]ProjectQuota{}}
}

func (s *MemoryStore) Get(ctx context.Context, projectID string) (ProjectQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.records[projectID]
	if !ok {
		return ProjectQuota{}, ErrNotFound
	}
	return q, nil
}

func (s *MemoryStore) Create(ctx context.Context, q ProjectQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[q.ProjectID]; ok {
		return nil
	}
	s.records[q.ProjectID] = q
	return nil
}

func (s *MemoryStore) UpdateSettings(ctx context.Context, projectID string, set Settings, now time.Time) (ProjectQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.records[projectID]
	if !ok {
		return ProjectQuota{}, ErrNotFound
	}
	q.Settings = set
	q.UpdatedAt = now
	s.records[projectID] = q
	return q, nil
}

func (s *MemoryStore) TryReserve(ctx context.Context, projectID, callType string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.records[projectID]
	if !ok {
		return false, ErrNotFound
	}
	if d := evaluate(q, callType); !d.Allowed {
		return false, nil
	}
	q.Usage.ConcurrentCallsNow++
	q.Usage.CallsThisMonth++
	q.UpdatedAt = now
	s.records[projectID] = q
	return true, nil
}

func (s *MemoryStore) Release(ctx context.Context, projectID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.records[projectID]
	if !ok {
		return ErrNotFound
	}
	if q.Usage.ConcurrentCallsNow > 0 {
		q.Usage.ConcurrentCallsNow--
	}
	q.UpdatedAt = now
	s.records[projectID] = q
	return nil
}

func (s *MemoryStore) AddMinutes(ctx context.Context, projectID string, minutes int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.records[projectID]
	if !ok {
		return ErrNotFound
	}
	q.Usage.TotalCallMinutes += minutes
	q.UpdatedAt = now
	s.records[projectID] = q
	return nil
}

func (s *MemoryStore) ResetUsage(ctx context.Context, projectID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.records[projectID]
	if !ok {
		return ErrNotFound
	}
	q.Usage.CallsThisMonth = 0
	q.Usage.TotalCallMinutes = 0
	q.Usage.LastResetDate = now
	q.UpdatedAt = now
	s.records[projectID] = q
	return nil
}
