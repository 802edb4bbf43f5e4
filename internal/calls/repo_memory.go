package calls

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory SessionStore for tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]CallSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]CallSession{}}
}

func (s *MemoryStore) Create(ctx context.Context, c CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[c.CallID]; ok {
		return fmt.Errorf("%w: call %s already exists", ErrInvalidArgument, c.CallID)
	}
	s.sessions[c.CallID] = clone(c)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, callID string) (CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.sessions[callID]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return clone(c), nil
}

func (s *MemoryStore) GetByRoom(ctx context.Context, roomName string) (CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.sessions {
		if c.RoomName == roomName {
			return clone(c), nil
		}
	}
	return CallSession{}, ErrNotFound
}

func (s *MemoryStore) Update(ctx context.Context, c CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[c.CallID]; !ok {
		return ErrNotFound
	}
	s.sessions[c.CallID] = clone(c)
	return nil
}

func (s *MemoryStore) Terminate(ctx context.Context, c CallSession) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[c.CallID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Status.IsTerminal() {
		return false, nil
	}
	s.sessions[c.CallID] = clone(c)
	return true, nil
}

func (s *MemoryStore) ActiveByAgent(ctx context.Context, agentID string, limit int) ([]CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CallSession
	for _, c := range s.sessions {
		if c.AgentID == agentID && !c.Status.IsTerminal() {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) HistoryByAgent(ctx context.Context, agentID string, limit, offset int) ([]CallSession, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []CallSession
	for _, c := range s.sessions {
		if c.AgentID == agentID && c.Status == StatusEnded {
			all = append(all, clone(c))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		ti, tj := time.Time{}, time.Time{}
		if all[i].EndedAt != nil {
			ti = *all[i].EndedAt
		}
		if all[j].EndedAt != nil {
			tj = *all[j].EndedAt
		}
		return ti.After(tj)
	})
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (s *MemoryStore) StaleBefore(ctx context.Context, cutoff time.Time) ([]CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CallSession
	for _, c := range s.sessions {
		if (c.Status == StatusPending || c.Status == StatusRinging) && c.CreatedAt.Before(cutoff) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) EndedBetween(ctx context.Context, projectID string, from, to time.Time) ([]CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CallSession
	for _, c := range s.sessions {
		if c.ProjectID != projectID || c.Status != StatusEnded || c.EndedAt == nil {
			continue
		}
		if c.EndedAt.Before(from) || !c.EndedAt.Before(to) {
			continue
		}
		out = append(out, clone(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.Before(*out[j].EndedAt) })
	return out, nil
}

func clone(c CallSession) CallSession {
	out := c
	out.Participants = make([]Participant, len(c.Participants))
	copy(out.Participants, c.Participants)
	return out
}
