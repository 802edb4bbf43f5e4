package quota

import (
	"time"

	"callbridge/internal/plan"
)

// ProjectQuota is the per-project call quota record: plan-derived settings
// plus live usage counters.
//
// Invariants:
// - 0 <= Usage.ConcurrentCallsNow <= Settings.MaxConcurrentCalls after every
//   admission decision.
// - Usage counters are mutated only through the Controller; the lifecycle
//   manager must never write them directly.
type ProjectQuota struct {
	ProjectID string   `json:"project_id" db:"project_id"`
	Settings  Settings `json:"settings"`
	Usage     Usage    `json:"usage"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Settings struct {
	Enabled       bool `json:"enabled" db:"enabled"`
	AudioCalls    bool `json:"audio_calls" db:"audio_calls"`
	VideoCalls    bool `json:"video_calls" db:"video_calls"`
	ScreenSharing bool `json:"screen_sharing" db:"screen_sharing"`
	CallRecording bool `json:"call_recording" db:"call_recording"`

	MaxConcurrentCalls int `json:"max_concurrent_calls" db:"max_concurrent_calls"`
	// MaxCallDuration is in seconds.
	MaxCallDuration int `json:"max_call_duration" db:"max_call_duration"`
	// MonthlyCallLimit <= 0 means unlimited.
	MonthlyCallLimit int `json:"monthly_call_limit" db:"monthly_call_limit"`

	VideoQuality string `json:"video_quality" db:"video_quality"`
	AudioQuality string `json:"audio_quality" db:"audio_quality"`

	ShowCallButton     bool `json:"show_call_button" db:"show_call_button"`
	RequirePrecallTest bool `json:"require_precall_test" db:"require_precall_test"`
}

type Usage struct {
	CallsThisMonth     int       `json:"calls_this_month" db:"calls_this_month"`
	TotalCallMinutes   int       `json:"total_call_minutes" db:"total_call_minutes"`
	ConcurrentCallsNow int       `json:"concurrent_calls_now" db:"concurrent_calls_now"`
	LastResetDate      time.Time `json:"last_reset_date" db:"last_reset_date"`
}

// SettingsPatch is a partial settings update. Only set (non-nil) fields are
// applied; unknown JSON keys are rejected at bind time, not merged in.
type SettingsPatch struct {
	Enabled       *bool `json:"enabled,omitempty"`
	AudioCalls    *bool `json:"audio_calls,omitempty"`
	VideoCalls    *bool `json:"video_calls,omitempty"`
	ScreenSharing *bool `json:"screen_sharing,omitempty"`
	CallRecording *bool `json:"call_recording,omitempty"`

	MaxConcurrentCalls *int `json:"max_concurrent_calls,omitempty"`
	MaxCallDuration    *int `json:"max_call_duration,omitempty"`
	MonthlyCallLimit   *int `json:"monthly_call_limit,omitempty"`

	VideoQuality *string `json:"video_quality,omitempty"`
	AudioQuality *string `json:"audio_quality,omitempty"`

	ShowCallButton     *bool `json:"show_call_button,omitempty"`
	RequirePrecallTest *bool `json:"require_precall_test,omitempty"`
}

func (p SettingsPatch) applyTo(s Settings) Settings {
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.AudioCalls != nil {
		s.AudioCalls = *p.AudioCalls
	}
	if p.VideoCalls != nil {
		s.VideoCalls = *p.VideoCalls
	}
	if p.ScreenSharing != nil {
		s.ScreenSharing = *p.ScreenSharing
	}
	if p.CallRecording != nil {
		s.CallRecording = *p.CallRecording
	}
	if p.MaxConcurrentCalls != nil {
		s.MaxConcurrentCalls = *p.MaxConcurrentCalls
	}
	if p.MaxCallDuration != nil {
		s.MaxCallDuration = *p.MaxCallDuration
	}
	if p.MonthlyCallLimit != nil {
		s.MonthlyCallLimit = *p.MonthlyCallLimit
	}
	if p.VideoQuality != nil {
		s.VideoQuality = *p.VideoQuality
	}
	if p.AudioQuality != nil {
		s.AudioQuality = *p.AudioQuality
	}
	if p.ShowCallButton != nil {
		s.ShowCallButton = *p.ShowCallButton
	}
	if p.RequirePrecallTest != nil {
		s.RequirePrecallTest = *p.RequirePrecallTest
	}
	return s
}

// DefaultSettings derives initial project settings from plan capabilities.
func DefaultSettings(caps plan.Capabilities) Settings {
	return Settings{
		Enabled:            caps.AllowsCalls,
		AudioCalls:         caps.AudioCalls,
		VideoCalls:         caps.VideoCalls,
		ScreenSharing:      caps.ScreenSharing,
		CallRecording:      caps.CallRecording,
		MaxConcurrentCalls: caps.MaxConcurrentCalls,
		MaxCallDuration:    1800,
		MonthlyCallLimit:   caps.MonthlyCallLimit,
		VideoQuality:       QualityMedium,
		AudioQuality:       QualityMedium,
		ShowCallButton:     true,
		RequirePrecallTest: false,
	}
}

const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
	QualityHD     = "hd"
)

func validVideoQuality(v string) bool {
	switch v {
	case QualityLow, QualityMedium, QualityHigh, QualityHD:
		return true
	default:
		return false
	}
}

func validAudioQuality(v string) bool {
	switch v {
	case QualityLow, QualityMedium, QualityHigh:
		return true
	default:
		return false
	}
}
