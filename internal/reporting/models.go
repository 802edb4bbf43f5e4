package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics for a project.
// Tenancy isolation: ProjectID is required.

type CallsSummaryRequest struct {
	ProjectID string    `json:"project_id"`
	Range     TimeRange `json:"range"`
}

type CallsSummary struct {
	ProjectID string `json:"project_id"`

	TotalCalls int `json:"total_calls"`

	AudioCalls       int `json:"audio_calls"`
	VideoCalls       int `json:"video_calls"`
	ScreenShareCalls int `json:"screen_share_calls"`

	AgentInitiated int `json:"agent_initiated"`
	UserInitiated  int `json:"user_initiated"`
	AIInitiated    int `json:"ai_initiated"`

	// AnsweredCalls reached active before ending; the rest never started.
	AnsweredCalls   int `json:"answered_calls"`
	TimedOutCalls   int `json:"timed_out_calls"`
	UnansweredCalls int `json:"unanswered_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
	// BilledMinutes is the per-call ceiling of duration to whole minutes,
	// matching how quota accounting charges usage.
	BilledMinutes int `json:"billed_minutes"`
}
