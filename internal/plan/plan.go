package plan

import "strings"

// Capabilities is the call capability/limit set derived from a billing plan.
//
// Contract:
// - Pure lookup, no side effects, no errors.
// - Unknown or case-varied plan names resolve to the free tier.
// - MonthlyCallLimit <= 0 means unlimited (Unlimited sentinel preferred).
type Capabilities struct {
	AllowsCalls   bool `json:"allows_calls"`
	AudioCalls    bool `json:"audio_calls"`
	VideoCalls    bool `json:"video_calls"`
	ScreenSharing bool `json:"screen_sharing"`
	CallRecording bool `json:"call_recording"`

	MaxConcurrentCalls int `json:"max_concurrent_calls"`
	MonthlyCallLimit   int `json:"monthly_call_limit"`
}

// Unlimited is the sentinel for plans without a monthly call cap.
const Unlimited = -1

const (
	Free       = "free"
	Basic      = "basic"
	Pro        = "pro"
	Enterprise = "enterprise"
	Custom     = "custom"
)

var table = map[string]Capabilities{
	Free: {
		AllowsCalls:        false,
		AudioCalls:         false,
		VideoCalls:         false,
		MaxConcurrentCalls: 0,
		MonthlyCallLimit:   0,
	},
	Basic: {
		AllowsCalls:        true,
		AudioCalls:         true,
		VideoCalls:         false,
		MaxConcurrentCalls: 1,
		MonthlyCallLimit:   100,
	},
	Pro: {
		AllowsCalls:        true,
		AudioCalls:         true,
		VideoCalls:         true,
		ScreenSharing:      true,
		MaxConcurrentCalls: 2,
		MonthlyCallLimit:   500,
	},
	Enterprise: {
		AllowsCalls:        true,
		AudioCalls:         true,
		VideoCalls:         true,
		ScreenSharing:      true,
		CallRecording:      true,
		MaxConcurrentCalls: 10,
		MonthlyCallLimit:   Unlimited,
	},
	Custom: {
		AllowsCalls:        true,
		AudioCalls:         true,
		VideoCalls:         true,
		ScreenSharing:      true,
		CallRecording:      true,
		MaxConcurrentCalls: 1000,
		MonthlyCallLimit:   Unlimited,
	},
}

// Resolve maps a plan name to its capability set.
// Lookup is case-insensitive; unknown names fall back to the free tier.
func Resolve(name string) Capabilities {
	if c, ok := table[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c
	}
	return table[Free]
}
