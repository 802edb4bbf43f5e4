package rtc

import (
	"context"
	"errors"
	"time"
)

// RoomProvider is the provider-agnostic contract for room management at the
// real-time communication provider.
//
// Rules:
// - No provider SDK/API calls outside rtc adapters.
// - DeleteRoom must be safe on a room that no longer exists.
// - Callers treat every method as a network suspension point.
type RoomProvider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	CreateRoom(ctx context.Context, req CreateRoomRequest) (RoomHandle, error)
	DeleteRoom(ctx context.Context, roomName string) error
	ListRooms(ctx context.Context, names []string) ([]RoomInfo, error)
	ListParticipants(ctx context.Context, roomName string) ([]ParticipantInfo, error)
}

// CredentialIssuer mints time-limited, capability-scoped participant
// credentials for a specific room.
type CredentialIssuer interface {
	IssueCredential(req CredentialRequest) (string, error)
}

// ErrUpstream wraps provider-side failures so callers can classify them as
// retryable upstream errors rather than terminal ones.
var ErrUpstream = errors.New("rtc: upstream provider error")

type CreateRoomRequest struct {
	Name            string `json:"name"`
	MaxParticipants int    `json:"max_participants"`
	// EmptyTimeoutSeconds is how long the provider keeps an empty room alive.
	EmptyTimeoutSeconds int `json:"empty_timeout_seconds"`
	// Metadata is an opaque JSON string attached to the room.
	Metadata string `json:"metadata,omitempty"`
}

type RoomHandle struct {
	Name string `json:"name"`
	// SID is the provider's identifier for the room.
	SID       string    `json:"sid,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type RoomInfo struct {
	Name            string    `json:"name"`
	SID             string    `json:"sid,omitempty"`
	NumParticipants int       `json:"num_participants"`
	MaxParticipants int       `json:"max_participants,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	Metadata        string    `json:"metadata,omitempty"`
}

type ParticipantInfo struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"display_name,omitempty"`
	JoinedAt    time.Time `json:"joined_at,omitempty"`
	IsSpeaking  bool      `json:"is_speaking,omitempty"`
}

type CredentialRequest struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	RoomName    string `json:"room_name"`

	// IsAdmin grants room-admin and room-create capabilities on top of the
	// publish rights derived from CallType.
	IsAdmin  bool   `json:"is_admin"`
	CallType string `json:"call_type"`

	// TTL defaults to DefaultCredentialTTL when zero.
	TTL time.Duration `json:"-"`
}

// DefaultCredentialTTL is the fixed validity window for participant
// credentials.
const DefaultCredentialTTL = 2 * time.Hour
