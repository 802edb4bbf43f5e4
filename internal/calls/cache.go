package calls

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"callbridge/pkg/utils"
)

// CachedStore is a read-through cache in front of a SessionStore, keyed by
// call_id. The cache is strictly derived: every mutation invalidates the key
// synchronously before returning, and the inner store stays the source of
// truth. List queries always go to the inner store.
type CachedStore struct {
	inner SessionStore
	rdb   *redis.Client
	ttl   time.Duration
	log   *slog.Logger
}

func NewCachedStore(inner SessionStore, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedStore{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func sessionKey(callID string) string { return "call:session:" + callID }

func (s *CachedStore) Get(ctx context.Context, callID string) (CallSession, error) {
	var cached CallSession
	hit, err := utils.CacheGetJSON(ctx, s.rdb, sessionKey(callID), &cached)
	if err != nil {
		s.log.Warn("session cache read failed", "call_id", callID, "err", err)
	} else if hit {
		return cached, nil
	}

	c, err := s.inner.Get(ctx, callID)
	if err != nil {
		return CallSession{}, err
	}
	if err := utils.CacheSetJSON(ctx, s.rdb, sessionKey(callID), c, s.ttl); err != nil {
		s.log.Warn("session cache write failed", "call_id", callID, "err", err)
	}
	return c, nil
}

func (s *CachedStore) Create(ctx context.Context, c CallSession) error {
	if err := s.inner.Create(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx, c.CallID)
	return nil
}

func (s *CachedStore) Update(ctx context.Context, c CallSession) error {
	if err := s.inner.Update(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx, c.CallID)
	return nil
}

func (s *CachedStore) Terminate(ctx context.Context, c CallSession) (bool, error) {
	won, err := s.inner.Terminate(ctx, c)
	if err != nil {
		return false, err
	}
	s.invalidate(ctx, c.CallID)
	return won, nil
}

func (s *CachedStore) GetByRoom(ctx context.Context, roomName string) (CallSession, error) {
	return s.inner.GetByRoom(ctx, roomName)
}

func (s *CachedStore) ActiveByAgent(ctx context.Context, agentID string, limit int) ([]CallSession, error) {
	return s.inner.ActiveByAgent(ctx, agentID, limit)
}

func (s *CachedStore) HistoryByAgent(ctx context.Context, agentID string, limit, offset int) ([]CallSession, int, error) {
	return s.inner.HistoryByAgent(ctx, agentID, limit, offset)
}

func (s *CachedStore) StaleBefore(ctx context.Context, cutoff time.Time) ([]CallSession, error) {
	return s.inner.StaleBefore(ctx, cutoff)
}

func (s *CachedStore) EndedBetween(ctx context.Context, projectID string, from, to time.Time) ([]CallSession, error) {
	return s.inner.EndedBetween(ctx, projectID, from, to)
}

func (s *CachedStore) invalidate(ctx context.Context, callID string) {
	if err := utils.CacheDel(ctx, s.rdb, sessionKey(callID)); err != nil {
		s.log.Warn("session cache invalidation failed", "call_id", callID, "err", err)
	}
}
