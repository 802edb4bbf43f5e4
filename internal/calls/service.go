package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"callbridge/internal/audit"
	"callbridge/internal/features"
	"callbridge/internal/quota"
	"callbridge/internal/rtc"
)

// Admission is the slice of the quota controller the lifecycle needs.
// Reserve and Release are invoked exactly once per admitted session, here and
// nowhere else.
type Admission interface {
	Reserve(ctx context.Context, projectID, callType string) error
	Release(ctx context.Context, projectID string) error
	RecordMinutes(ctx context.Context, projectID string, durationSeconds int) error
}

// FeatureSource resolves agent capability toggles and conversation
// assignments from the external feature system.
type FeatureSource interface {
	AgentFeatures(ctx context.Context, agentID string) features.AgentFeatures
	AssignedAgent(ctx context.Context, requestID string) (string, error)
}

// Manager drives the call-session state machine. It consults admission
// control before any state-changing side effect and releases capacity on
// termination.
type Manager struct {
	sessions  SessionStore
	admission Admission
	rooms     rtc.RoomProvider
	creds     rtc.CredentialIssuer
	feats     FeatureSource
	audit     *audit.Service

	wsURL        string
	emptyTimeout time.Duration

	clock func() time.Time
	log   *slog.Logger
}

type ManagerConfig struct {
	Sessions    SessionStore
	Admission   Admission
	Rooms       rtc.RoomProvider
	Credentials rtc.CredentialIssuer
	Features    FeatureSource

	// Audit is optional; lifecycle transitions are recorded best-effort.
	Audit *audit.Service

	// WSURL is the provider websocket endpoint handed to clients.
	WSURL string
	// EmptyTimeout is how long the provider keeps an empty room before
	// closing it. Defaults to 5 minutes.
	EmptyTimeout time.Duration

	Logger *slog.Logger
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Sessions == nil || cfg.Admission == nil || cfg.Rooms == nil || cfg.Credentials == nil || cfg.Features == nil {
		return nil, errors.New("calls: sessions, admission, rooms, credentials and features are required")
	}
	if cfg.EmptyTimeout <= 0 {
		cfg.EmptyTimeout = 5 * time.Minute
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sessions:     cfg.Sessions,
		admission:    cfg.Admission,
		rooms:        cfg.Rooms,
		creds:        cfg.Credentials,
		feats:        cfg.Features,
		audit:        cfg.Audit,
		wsURL:        cfg.WSURL,
		emptyTimeout: cfg.EmptyTimeout,
		clock:        time.Now,
		log:          log,
	}, nil
}

// CallResponse is returned by every operation that hands out a credential.
type CallResponse struct {
	CallID     string      `json:"call_id"`
	RoomName   string      `json:"room_name"`
	Credential string      `json:"credential"`
	WSURL      string      `json:"ws_url,omitempty"`
	AgentID    string      `json:"agent_id,omitempty"`
	Status     Status      `json:"status"`
	Session    CallSession `json:"session"`
}

type AgentInitiateRequest struct {
	ProjectID string `json:"project_id"`
	AgentID   string `json:"agent_id"`
	RequestID string `json:"request_id"`
	CallType  string `json:"call_type"`
}

// AgentInitiate starts an agent-to-user call. The session is created in
// pending; the agent receives an admin credential for the freshly
// provisioned room.
func (m *Manager) AgentInitiate(ctx context.Context, req AgentInitiateRequest) (CallResponse, error) {
	if err := validateInitiate(req.ProjectID, req.AgentID, req.RequestID, req.CallType); err != nil {
		return CallResponse{}, err
	}

	f := m.feats.AgentFeatures(ctx, req.AgentID)
	if !f.Allows(req.CallType) {
		return CallResponse{}, fmt.Errorf("%w: agent does not have permission for %s calls", ErrPermission, req.CallType)
	}

	if err := m.reserve(ctx, req.ProjectID, req.AgentID, req.CallType); err != nil {
		return CallResponse{}, err
	}

	now := m.clock().UTC()
	s := CallSession{
		CallID:      newCallID(),
		ProjectID:   req.ProjectID,
		RequestID:   req.RequestID,
		AgentID:     req.AgentID,
		Initiator:   RoleAgent,
		InitiatorID: req.AgentID,
		CallType:    req.CallType,
		Status:      StatusPending,
		Participants: []Participant{
			{Identity: agentIdentity(req.AgentID), DisplayName: "Support Agent", Role: RoleAgent},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		m.release(ctx, req.ProjectID)
		return CallResponse{}, err
	}

	meta := roomMetadata{
		CallID:    s.CallID,
		RequestID: req.RequestID,
		Initiator: RoleAgent,
		AgentID:   req.AgentID,
		CallType:  req.CallType,
	}
	s, err := m.provisionRoom(ctx, s, f.MaxParticipants, meta)
	if err != nil {
		return CallResponse{}, err
	}

	cred, err := m.creds.IssueCredential(rtc.CredentialRequest{
		Identity:    agentIdentity(req.AgentID),
		DisplayName: "Support Agent",
		RoomName:    s.RoomName,
		IsAdmin:     true,
		CallType:    req.CallType,
	})
	if err != nil {
		m.abandon(ctx, s, fmt.Errorf("issue agent credential: %w", err))
		return CallResponse{}, err
	}

	m.logTransition(ctx, s, agentIdentity(req.AgentID), "agent initiated call")
	return m.response(s, cred, req.AgentID), nil
}

type UserCallRequest struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	RequestID string `json:"request_id"`
	CallType  string `json:"call_type"`
}

// UserRequestCall opens a ringing session toward the agent assigned to the
// conversation. The user gets a non-admin credential; the agent gets nothing
// until AgentAcceptCall.
func (m *Manager) UserRequestCall(ctx context.Context, req UserCallRequest) (CallResponse, error) {
	if err := validateInitiate(req.ProjectID, req.UserID, req.RequestID, req.CallType); err != nil {
		return CallResponse{}, err
	}

	agentID, err := m.feats.AssignedAgent(ctx, req.RequestID)
	if err != nil {
		if errors.Is(err, features.ErrNoAgent) {
			return CallResponse{}, fmt.Errorf("%w: no agent assigned to request %s", ErrNotFound, req.RequestID)
		}
		return CallResponse{}, err
	}

	f := m.feats.AgentFeatures(ctx, agentID)
	if !f.Allows(req.CallType) {
		return CallResponse{}, fmt.Errorf("%w: agent does not accept %s calls", ErrPermission, req.CallType)
	}

	if err := m.reserve(ctx, req.ProjectID, userIdentity(req.UserID), req.CallType); err != nil {
		return CallResponse{}, err
	}

	now := m.clock().UTC()
	s := CallSession{
		CallID:      newCallID(),
		ProjectID:   req.ProjectID,
		RequestID:   req.RequestID,
		AgentID:     agentID,
		Initiator:   RoleUser,
		InitiatorID: req.UserID,
		CallType:    req.CallType,
		Status:      StatusRinging,
		Participants: []Participant{
			{Identity: userIdentity(req.UserID), DisplayName: "Customer", Role: RoleUser},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		m.release(ctx, req.ProjectID)
		return CallResponse{}, err
	}

	meta := roomMetadata{
		CallID:    s.CallID,
		RequestID: req.RequestID,
		Initiator: RoleUser,
		UserID:    req.UserID,
		AgentID:   agentID,
		CallType:  req.CallType,
	}
	s, err = m.provisionRoom(ctx, s, f.MaxParticipants, meta)
	if err != nil {
		return CallResponse{}, err
	}

	cred, err := m.creds.IssueCredential(rtc.CredentialRequest{
		Identity:    userIdentity(req.UserID),
		DisplayName: "Customer",
		RoomName:    s.RoomName,
		IsAdmin:     false,
		CallType:    req.CallType,
	})
	if err != nil {
		m.abandon(ctx, s, fmt.Errorf("issue user credential: %w", err))
		return CallResponse{}, err
	}

	m.logTransition(ctx, s, userIdentity(req.UserID), "user requested call, ringing agent")
	return m.response(s, cred, agentID), nil
}

// AgentAcceptCall answers a ringing call. Only the assigned agent may accept.
func (m *Manager) AgentAcceptCall(ctx context.Context, agentID, callID string) (CallResponse, error) {
	if agentID == "" || callID == "" {
		return CallResponse{}, fmt.Errorf("%w: agent_id and call_id are required", ErrInvalidArgument)
	}

	s, err := m.sessions.Get(ctx, callID)
	if err != nil {
		return CallResponse{}, err
	}
	if s.AgentID != agentID {
		return CallResponse{}, fmt.Errorf("%w: agent not assigned to this call", ErrPermission)
	}
	if s.Status != StatusRinging {
		return CallResponse{}, fmt.Errorf("%w: call is %s, expected ringing", ErrInvalidTransition, s.Status)
	}

	// Credential first: if minting fails the session stays ringing and the
	// agent can simply accept again.
	cred, err := m.creds.IssueCredential(rtc.CredentialRequest{
		Identity:    agentIdentity(agentID),
		DisplayName: "Support Agent",
		RoomName:    s.RoomName,
		IsAdmin:     true,
		CallType:    s.CallType,
	})
	if err != nil {
		return CallResponse{}, err
	}

	now := m.clock().UTC()
	s.Status = StatusActive
	s.StartedAt = &now
	s.Participants = append(s.Participants, Participant{
		Identity:    agentIdentity(agentID),
		DisplayName: "Support Agent",
		Role:        RoleAgent,
		JoinedAt:    &now,
	})
	s.UpdatedAt = now
	if err := m.sessions.Update(ctx, s); err != nil {
		return CallResponse{}, err
	}

	m.logTransition(ctx, s, agentIdentity(agentID), "agent accepted call")
	return m.response(s, cred, agentID), nil
}

type AIInitiateRequest struct {
	ProjectID string `json:"project_id"`
	AIAgentID string `json:"ai_agent_id"`
	RequestID string `json:"request_id"`
	CallType  string `json:"call_type"`
}

// AIInitiateCall starts an assistant call directly in active; automated
// assistants need no acceptance phase.
func (m *Manager) AIInitiateCall(ctx context.Context, req AIInitiateRequest) (CallResponse, error) {
	if err := validateInitiate(req.ProjectID, req.AIAgentID, req.RequestID, req.CallType); err != nil {
		return CallResponse{}, err
	}

	if err := m.reserve(ctx, req.ProjectID, aiIdentity(req.AIAgentID), req.CallType); err != nil {
		return CallResponse{}, err
	}

	now := m.clock().UTC()
	s := CallSession{
		CallID:      newCallID(),
		ProjectID:   req.ProjectID,
		RequestID:   req.RequestID,
		AgentID:     req.AIAgentID,
		Initiator:   RoleAI,
		InitiatorID: req.AIAgentID,
		CallType:    req.CallType,
		Status:      StatusActive,
		StartedAt:   &now,
		Participants: []Participant{
			{Identity: aiIdentity(req.AIAgentID), DisplayName: "AI Assistant", Role: RoleAI, JoinedAt: &now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		m.release(ctx, req.ProjectID)
		return CallResponse{}, err
	}

	meta := roomMetadata{
		CallID:    s.CallID,
		RequestID: req.RequestID,
		Initiator: RoleAI,
		AgentID:   req.AIAgentID,
		CallType:  req.CallType,
	}
	s, err := m.provisionRoom(ctx, s, 2, meta)
	if err != nil {
		return CallResponse{}, err
	}

	cred, err := m.creds.IssueCredential(rtc.CredentialRequest{
		Identity:    aiIdentity(req.AIAgentID),
		DisplayName: "AI Assistant",
		RoomName:    s.RoomName,
		IsAdmin:     true,
		CallType:    req.CallType,
	})
	if err != nil {
		m.abandon(ctx, s, fmt.Errorf("issue ai credential: %w", err))
		return CallResponse{}, err
	}

	m.logTransition(ctx, s, aiIdentity(req.AIAgentID), "ai call started")
	return m.response(s, cred, req.AIAgentID), nil
}

// UserJoinCall adds a user to an existing ringing or active call. The status
// is left untouched.
func (m *Manager) UserJoinCall(ctx context.Context, userID, callID string) (CallResponse, error) {
	if userID == "" || callID == "" {
		return CallResponse{}, fmt.Errorf("%w: user_id and call_id are required", ErrInvalidArgument)
	}

	s, err := m.sessions.Get(ctx, callID)
	if err != nil {
		return CallResponse{}, err
	}
	if !s.Status.Joinable() {
		return CallResponse{}, fmt.Errorf("%w: call is %s, not joinable", ErrInvalidTransition, s.Status)
	}

	identity := userIdentity(userID)
	cred, err := m.creds.IssueCredential(rtc.CredentialRequest{
		Identity:    identity,
		DisplayName: "Customer",
		RoomName:    s.RoomName,
		IsAdmin:     false,
		CallType:    s.CallType,
	})
	if err != nil {
		return CallResponse{}, err
	}

	now := m.clock().UTC()
	if i := findParticipant(s.Participants, identity); i >= 0 {
		if s.Participants[i].JoinedAt == nil {
			s.Participants[i].JoinedAt = &now
		}
	} else {
		s.Participants = append(s.Participants, Participant{
			Identity:    identity,
			DisplayName: "Customer",
			Role:        RoleUser,
			JoinedAt:    &now,
		})
	}
	s.UpdatedAt = now
	if err := m.sessions.Update(ctx, s); err != nil {
		return CallResponse{}, err
	}

	return m.response(s, cred, s.AgentID), nil
}

// EndResult summarizes a terminated call.
type EndResult struct {
	CallID          string `json:"call_id"`
	DurationSeconds int    `json:"duration_seconds"`
	EndedBy         string `json:"ended_by"`
}

// EndCall terminates a session. Ending an already-terminal session is a
// successful no-op; admission capacity is released exactly once.
func (m *Manager) EndCall(ctx context.Context, callID, endedBy string) (EndResult, error) {
	if callID == "" {
		return EndResult{}, fmt.Errorf("%w: call_id is required", ErrInvalidArgument)
	}
	if endedBy == "" {
		endedBy = "system"
	}

	s, err := m.sessions.Get(ctx, callID)
	if err != nil {
		return EndResult{}, err
	}
	if s.Status.IsTerminal() {
		return EndResult{CallID: s.CallID, DurationSeconds: s.DurationSeconds, EndedBy: s.EndedBy}, nil
	}

	now := m.clock().UTC()
	s.Status = StatusEnded
	s.EndedAt = &now
	s.EndedBy = endedBy
	if s.StartedAt != nil {
		s.DurationSeconds = secondsBetween(*s.StartedAt, now)
	}
	for i := range s.Participants {
		p := &s.Participants[i]
		if p.JoinedAt != nil && p.LeftAt == nil {
			p.LeftAt = &now
			p.DurationSeconds = secondsBetween(*p.JoinedAt, now)
		}
	}
	s.UpdatedAt = now

	// Persist first: the ended status is authoritative regardless of how
	// provider cleanup goes. The transition is a conditional store update so
	// that concurrent terminations (explicit end, webhook, reaper) elect one
	// winner; only the winner releases capacity and records minutes.
	won, err := m.sessions.Terminate(ctx, s)
	if err != nil {
		return EndResult{}, err
	}
	if !won {
		cur, err := m.sessions.Get(ctx, callID)
		if err != nil {
			return EndResult{}, err
		}
		return EndResult{CallID: cur.CallID, DurationSeconds: cur.DurationSeconds, EndedBy: cur.EndedBy}, nil
	}

	if s.RoomName != "" {
		if err := m.rooms.DeleteRoom(ctx, s.RoomName); err != nil {
			m.log.Warn("room cleanup failed", "call_id", s.CallID, "room", s.RoomName, "err", err)
		}
	}

	m.release(ctx, s.ProjectID)
	if s.DurationSeconds > 0 {
		if err := m.admission.RecordMinutes(ctx, s.ProjectID, s.DurationSeconds); err != nil {
			m.log.Warn("minute accounting failed", "call_id", s.CallID, "err", err)
		}
	}

	m.logTransition(ctx, s, endedBy, fmt.Sprintf("call ended after %ds", s.DurationSeconds))
	return EndResult{CallID: s.CallID, DurationSeconds: s.DurationSeconds, EndedBy: endedBy}, nil
}

// GetActive lists the agent's non-terminal sessions, newest first.
func (m *Manager) GetActive(ctx context.Context, agentID string) ([]CallSession, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent_id is required", ErrInvalidArgument)
	}
	return m.sessions.ActiveByAgent(ctx, agentID, 10)
}

// HistoryPage is one page of an agent's ended calls.
type HistoryPage struct {
	Calls  []CallSession `json:"calls"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (m *Manager) GetHistory(ctx context.Context, agentID string, limit, offset int) (HistoryPage, error) {
	if agentID == "" {
		return HistoryPage{}, fmt.Errorf("%w: agent_id is required", ErrInvalidArgument)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	calls, total, err := m.sessions.HistoryByAgent(ctx, agentID, limit, offset)
	if err != nil {
		return HistoryPage{}, err
	}
	return HistoryPage{Calls: calls, Total: total, Limit: limit, Offset: offset}, nil
}

// CallStatus is a session snapshot, enriched with live room data when the
// provider is reachable.
type CallStatus struct {
	Session CallSession           `json:"session"`
	Live    []rtc.ParticipantInfo `json:"live_participants,omitempty"`
	// LiveKnown is false when the provider could not be queried.
	LiveKnown bool `json:"live_known"`
}

// GetStatus reads a session. Provider failures degrade to session data alone.
func (m *Manager) GetStatus(ctx context.Context, callID string) (CallStatus, error) {
	if callID == "" {
		return CallStatus{}, fmt.Errorf("%w: call_id is required", ErrInvalidArgument)
	}
	s, err := m.sessions.Get(ctx, callID)
	if err != nil {
		return CallStatus{}, err
	}

	st := CallStatus{Session: s}
	if s.Status.IsTerminal() || s.RoomName == "" {
		return st, nil
	}
	live, err := m.rooms.ListParticipants(ctx, s.RoomName)
	if err != nil {
		m.log.Warn("live participant lookup failed", "call_id", callID, "err", err)
		return st, nil
	}
	st.Live = live
	st.LiveKnown = true
	return st, nil
}

// RoomFinished handles the provider's room-closed notification. Unknown and
// already-terminal rooms are acked silently.
func (m *Manager) RoomFinished(ctx context.Context, roomName string) error {
	s, err := m.sessions.GetByRoom(ctx, roomName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if s.Status.IsTerminal() {
		return nil
	}
	_, err = m.EndCall(ctx, s.CallID, "system")
	return err
}

// ParticipantLeft records a participant departure reported by the provider.
// The session stays in its current status; room closure ends the call.
func (m *Manager) ParticipantLeft(ctx context.Context, roomName, identity string) error {
	s, err := m.sessions.GetByRoom(ctx, roomName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if s.Status.IsTerminal() {
		return nil
	}

	i := findParticipant(s.Participants, identity)
	if i < 0 || s.Participants[i].JoinedAt == nil || s.Participants[i].LeftAt != nil {
		return nil
	}
	now := m.clock().UTC()
	s.Participants[i].LeftAt = &now
	s.Participants[i].DurationSeconds = secondsBetween(*s.Participants[i].JoinedAt, now)
	s.UpdatedAt = now
	return m.sessions.Update(ctx, s)
}

type roomMetadata struct {
	CallID    string `json:"call_id"`
	RequestID string `json:"request_id"`
	Initiator Role   `json:"initiator"`
	AgentID   string `json:"agent_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	CallType  string `json:"call_type"`
}

// provisionRoom creates the provider room and persists its name on the
// session. Any failure abandons the session and releases admission.
func (m *Manager) provisionRoom(ctx context.Context, s CallSession, maxParticipants int, meta roomMetadata) (CallSession, error) {
	if maxParticipants <= 0 {
		maxParticipants = 2
	}
	rawMeta, _ := json.Marshal(meta)

	room, err := m.rooms.CreateRoom(ctx, rtc.CreateRoomRequest{
		Name:                "room_" + s.CallID,
		MaxParticipants:     maxParticipants,
		EmptyTimeoutSeconds: int(m.emptyTimeout.Seconds()),
		Metadata:            string(rawMeta),
	})
	if err != nil {
		m.abandon(ctx, s, fmt.Errorf("create room: %w", err))
		return CallSession{}, err
	}

	s.RoomName = room.Name
	s.UpdatedAt = m.clock().UTC()
	if err := m.sessions.Update(ctx, s); err != nil {
		m.abandon(ctx, s, fmt.Errorf("persist room name: %w", err))
		return CallSession{}, err
	}
	return s, nil
}

// abandon cancels a session after a post-reservation failure: the reserved
// slot is returned and the record is closed out as cancelled.
func (m *Manager) abandon(ctx context.Context, s CallSession, cause error) {
	m.log.Error("call setup failed", "call_id", s.CallID, "project_id", s.ProjectID, "err", cause)

	now := m.clock().UTC()
	s.Status = StatusCancelled
	s.EndedAt = &now
	s.EndedBy = "system"
	s.UpdatedAt = now
	won, err := m.sessions.Terminate(ctx, s)
	if err != nil {
		m.log.Error("could not cancel session", "call_id", s.CallID, "err", err)
	}
	if err == nil && !won {
		// Another terminator already closed the session out and released.
		return
	}
	if s.RoomName != "" {
		if err := m.rooms.DeleteRoom(ctx, s.RoomName); err != nil {
			m.log.Warn("room cleanup failed", "call_id", s.CallID, "room", s.RoomName, "err", err)
		}
	}
	m.release(ctx, s.ProjectID)
}

func (m *Manager) reserve(ctx context.Context, projectID, actor, callType string) error {
	err := m.admission.Reserve(ctx, projectID, callType)
	if err == nil {
		return nil
	}
	var denied *quota.DeniedError
	if m.audit != nil && errors.As(err, &denied) {
		if aerr := m.audit.LogQuotaDenied(ctx, projectID, actor, denied.Reason); aerr != nil {
			m.log.Warn("audit append failed", "project_id", projectID, "err", aerr)
		}
	}
	return err
}

func (m *Manager) release(ctx context.Context, projectID string) {
	if err := m.admission.Release(ctx, projectID); err != nil {
		m.log.Error("admission release failed", "project_id", projectID, "err", err)
	}
}

func (m *Manager) response(s CallSession, credential, agentID string) CallResponse {
	return CallResponse{
		CallID:     s.CallID,
		RoomName:   s.RoomName,
		Credential: credential,
		WSURL:      m.wsURL,
		AgentID:    agentID,
		Status:     s.Status,
		Session:    s,
	}
}

func (m *Manager) logTransition(ctx context.Context, s CallSession, actor, message string) {
	if m.audit == nil {
		return
	}
	if err := m.audit.LogCallTransition(ctx, s.ProjectID, s.CallID, s.RoomName, actor, message); err != nil {
		m.log.Warn("audit append failed", "call_id", s.CallID, "err", err)
	}
}

func validateInitiate(projectID, initiatorID, requestID, callType string) error {
	if projectID == "" || initiatorID == "" || requestID == "" {
		return fmt.Errorf("%w: project_id, initiator id and request_id are required", ErrInvalidArgument)
	}
	switch callType {
	case "audio", "video", "screen_share":
		return nil
	default:
		return fmt.Errorf("%w: unknown call type %q", ErrInvalidArgument, callType)
	}
}

func newCallID() string { return "call_" + uuid.NewString() }

func agentIdentity(id string) string { return "agent_" + id }
func userIdentity(id string) string  { return "user_" + id }
func aiIdentity(id string) string    { return "ai_" + id }

func findParticipant(ps []Participant, identity string) int {
	for i := range ps {
		if ps[i].Identity == identity {
			return i
		}
	}
	return -1
}

// secondsBetween floors the elapsed time to whole seconds.
func secondsBetween(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
