package features

import (
	"context"
	"errors"
)

// AgentFeatures are the per-agent call capability toggles resolved from the
// external feature system. They gate what an agent may initiate or accept.
type AgentFeatures struct {
	Audio       bool `json:"audio"`
	Video       bool `json:"video"`
	ScreenShare bool `json:"screen_share"`
	ImageShare  bool `json:"image_share"`
	FileShare   bool `json:"file_share"`

	MaxParticipants int `json:"max_participants"`
	// MaxCallMinutes of 0 means no per-agent cap.
	MaxCallMinutes int `json:"max_call_minutes"`
}

// Defaults is the capability set used when the feature system has no record
// for an agent, or cannot be reached at all.
func Defaults() AgentFeatures {
	return AgentFeatures{
		Audio:           true,
		Video:           false,
		ScreenShare:     false,
		MaxParticipants: 2,
	}
}

// Normalize clamps a feature record into a usable shape.
func Normalize(f AgentFeatures) AgentFeatures {
	if f.MaxParticipants <= 0 {
		f.MaxParticipants = 2
	}
	if f.MaxCallMinutes < 0 {
		f.MaxCallMinutes = 0
	}
	return f
}

// Allows reports whether the feature set permits the given call type.
func (f AgentFeatures) Allows(callType string) bool {
	switch callType {
	case "video":
		return f.Video
	case "screen_share":
		return f.ScreenShare
	default:
		return f.Audio
	}
}

// Store resolves capability toggles and assignments from the external
// feature system of record.
//
// The external system is eventually consistent and may be unavailable.
// Implementations must degrade to last-known or default capabilities rather
// than fail the caller; only assignment lookups may return errors, because a
// call cannot proceed without an agent.
type Store interface {
	// AgentFeatures never fails: outages resolve to last-known or Defaults().
	AgentFeatures(ctx context.Context, agentID string) AgentFeatures
	// AssignedAgent resolves the agent handling a conversation request.
	AssignedAgent(ctx context.Context, requestID string) (string, error)
	// ProjectPlan resolves the billing plan name for a project.
	ProjectPlan(ctx context.Context, projectID string) (string, error)
}

// Updater pushes feature records back to the external system. Used by the
// project-to-agent sync.
type Updater interface {
	ProjectAgents(ctx context.Context, projectID string) ([]string, error)
	UpdateAgentFeatures(ctx context.Context, agentID string, f AgentFeatures) error
}

var ErrNoAgent = errors.New("features: no agent assigned to request")
