package calls

import "time"

// CallSession tracks one call attempt end to end.
//
// Ownership invariant: only the lifecycle Manager mutates sessions. Quota
// usage counters live in internal/quota and are never written from here.
type CallSession struct {
	CallID   string `json:"call_id" db:"call_id"`
	RoomName string `json:"room_name,omitempty" db:"room_name"`

	ProjectID string `json:"project_id" db:"project_id"`
	// RequestID references the conversation the call belongs to.
	RequestID string `json:"request_id" db:"request_id"`
	// AgentID is the agent assigned to the call, when one is.
	AgentID string `json:"agent_id,omitempty" db:"agent_id"`

	Initiator   Role   `json:"initiator" db:"initiator"`
	InitiatorID string `json:"initiator_id" db:"initiator_id"`

	CallType string `json:"call_type" db:"call_type"`
	Status   Status `json:"status" db:"status"`

	// Participants is ordered by when each identity was added to the call.
	// Persisted as JSONB.
	Participants []Participant `json:"participants" db:"participants"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is derived when the session ends; zero when the call
	// never reached active.
	DurationSeconds int    `json:"duration_seconds" db:"duration_seconds"`
	EndedBy         string `json:"ended_by,omitempty" db:"ended_by"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Participant is one identity in a call. JoinedAt is nil for a participant
// that was invited but never connected.
type Participant struct {
	Identity    string     `json:"identity"`
	DisplayName string     `json:"display_name,omitempty"`
	Role        Role       `json:"role"`
	JoinedAt    *time.Time `json:"joined_at,omitempty"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
	// DurationSeconds is set when the participant leaves.
	DurationSeconds int `json:"duration_seconds,omitempty"`
}

type Role string

const (
	RoleAgent Role = "agent"
	RoleUser  Role = "user"
	RoleAI    Role = "ai"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRinging   Status = "ringing"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusMissed    Status = "missed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusEnded, StatusMissed, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// Joinable reports whether a new participant may still connect.
func (s Status) Joinable() bool {
	return s == StatusRinging || s == StatusActive
}
