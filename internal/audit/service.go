package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.ProjectID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCallTransition records a lifecycle status change for a call session.
func (s *Service) LogCallTransition(ctx context.Context, projectID, callID, roomName, actor, message string) error {
	return s.Append(ctx, Event{
		ProjectID: projectID,
		Type:      EventTypeCallTransition,
		Actor:     actor,
		CallID:    callID,
		RoomName:  roomName,
		Message:   message,
	})
}

// LogQuotaDenied records an admission denial with its reason.
func (s *Service) LogQuotaDenied(ctx context.Context, projectID, actor, reason string) error {
	return s.Append(ctx, Event{
		ProjectID: projectID,
		Type:      EventTypeQuotaDenied,
		Actor:     actor,
		Message:   reason,
	})
}

// LogSettingsChange records a project settings update.
func (s *Service) LogSettingsChange(ctx context.Context, projectID, actor, metadata string) error {
	return s.Append(ctx, Event{
		ProjectID: projectID,
		Type:      EventTypeSettingsChange,
		Actor:     actor,
		Message:   "call settings updated",
		Metadata:  metadata,
	})
}

// LogUsageReset records an explicit monthly usage reset.
func (s *Service) LogUsageReset(ctx context.Context, projectID, actor string) error {
	return s.Append(ctx, Event{
		ProjectID: projectID,
		Type:      EventTypeUsageReset,
		Actor:     actor,
		Message:   "monthly usage reset",
	})
}
