package calls

import (
	"context"
	"log/slog"
	"time"

	"callbridge/internal/rtc"
)

// Reaper ends stale reservations: sessions stuck in pending or ringing past
// the ring timeout whose provider room is empty. Ending them through the
// Manager keeps the release-exactly-once rule in one place.
type Reaper struct {
	sessions SessionStore
	rooms    rtc.RoomProvider
	manager  *Manager

	ringTimeout time.Duration
	interval    time.Duration

	clock func() time.Time
	log   *slog.Logger
}

type ReaperConfig struct {
	Sessions SessionStore
	Rooms    rtc.RoomProvider
	Manager  *Manager

	// RingTimeout is how long a session may stay pending/ringing before it
	// is considered stale. Defaults to 2 minutes.
	RingTimeout time.Duration
	// Interval between sweeps. Defaults to 30 seconds.
	Interval time.Duration

	Logger *slog.Logger
}

func NewReaper(cfg ReaperConfig) *Reaper {
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = 2 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{
		sessions:    cfg.Sessions,
		rooms:       cfg.Rooms,
		manager:     cfg.Manager,
		ringTimeout: cfg.RingTimeout,
		interval:    cfg.Interval,
		clock:       time.Now,
		log:         log,
	}
}

// Run sweeps until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep ends every stale session whose room is confirmed empty. Sessions
// whose room state cannot be determined are left for the next sweep.
func (r *Reaper) Sweep(ctx context.Context) {
	cutoff := r.clock().UTC().Add(-r.ringTimeout)
	stale, err := r.sessions.StaleBefore(ctx, cutoff)
	if err != nil {
		r.log.Error("stale session scan failed", "err", err)
		return
	}

	for _, s := range stale {
		if s.RoomName != "" {
			parts, err := r.rooms.ListParticipants(ctx, s.RoomName)
			if err != nil {
				r.log.Warn("cannot confirm room is empty, skipping", "call_id", s.CallID, "err", err)
				continue
			}
			if len(parts) > 0 {
				continue
			}
		}
		if _, err := r.manager.EndCall(ctx, s.CallID, "timeout"); err != nil {
			r.log.Error("ending stale call failed", "call_id", s.CallID, "err", err)
			continue
		}
		r.log.Info("stale call reaped", "call_id", s.CallID, "status", s.Status)
	}
}
