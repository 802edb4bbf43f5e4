package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
	// ErrPermission covers feature gating and ownership mismatches.
	ErrPermission = errors.New("calls: permission denied")
	// ErrInvalidTransition is returned when an operation does not apply to
	// the session's current status.
	ErrInvalidTransition = errors.New("calls: invalid status transition")
)

// SessionStore persists call sessions. It is the single source of truth for
// session state; any cache in front of it is strictly derived.
type SessionStore interface {
	Create(ctx context.Context, s CallSession) error
	Get(ctx context.Context, callID string) (CallSession, error)
	GetByRoom(ctx context.Context, roomName string) (CallSession, error)
	Update(ctx context.Context, s CallSession) error

	// Terminate persists s only if the stored session is still non-terminal,
	// reporting whether this caller won the transition. It MUST be a single
	// atomic check-and-set: concurrent terminations of the same call must
	// yield exactly one winner, because release and minute accounting run
	// only on the winning side.
	Terminate(ctx context.Context, s CallSession) (bool, error)

	// ActiveByAgent returns non-terminal sessions for the agent, newest first.
	ActiveByAgent(ctx context.Context, agentID string, limit int) ([]CallSession, error)
	// HistoryByAgent returns ended sessions for the agent, most recently
	// ended first, plus the total count of ended sessions.
	HistoryByAgent(ctx context.Context, agentID string, limit, offset int) ([]CallSession, int, error)
	// StaleBefore returns pending and ringing sessions created before the
	// cutoff. Used by the reaper.
	StaleBefore(ctx context.Context, cutoff time.Time) ([]CallSession, error)

	// EndedBetween returns sessions ended within [from, to) for a project.
	// Used by reporting.
	EndedBetween(ctx context.Context, projectID string, from, to time.Time) ([]CallSession, error)
}
