package reporting

import (
	"context"
	"errors"
	"time"

	"callbridge/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// SessionSource abstracts data access for reporting.
//
// IMPORTANT:
// - Implementations must enforce project filtering.
// - Reporting reads ended sessions only; they are immutable once written.

type SessionSource interface {
	EndedBetween(ctx context.Context, projectID string, from, to time.Time) ([]calls.CallSession, error)
}

type Service struct {
	sessions SessionSource
}

func NewService(sessions SessionSource) *Service { return &Service{sessions: sessions} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.ProjectID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.sessions == nil {
		return CallsSummary{}, errors.New("reporting: session source not configured")
	}

	rows, err := s.sessions.EndedBetween(ctx, req.ProjectID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{ProjectID: req.ProjectID}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.DurationSeconds > 0 {
			out.BilledMinutes += (c.DurationSeconds + 59) / 60
		}

		switch c.CallType {
		case "video":
			out.VideoCalls++
		case "screen_share":
			out.ScreenShareCalls++
		default:
			out.AudioCalls++
		}

		switch c.Initiator {
		case calls.RoleAgent:
			out.AgentInitiated++
		case calls.RoleUser:
			out.UserInitiated++
		case calls.RoleAI:
			out.AIInitiated++
		}

		switch {
		case c.StartedAt != nil:
			out.AnsweredCalls++
		case c.EndedBy == "timeout":
			out.TimedOutCalls++
		default:
			out.UnansweredCalls++
		}
	}
	if out.AnsweredCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.AnsweredCalls
	}
	return out, nil
}
