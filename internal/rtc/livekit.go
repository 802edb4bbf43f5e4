package rtc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LiveKitProvider talks to a LiveKit-compatible room service over its Twirp
// JSON endpoints. Every request carries a short-lived admin token.
//
// This adapter owns the wire format; nothing above it should see provider
// payloads.
type LiveKitProvider struct {
	baseURL string
	tokens  *TokenIssuer
	client  *http.Client

	// retries counts additional attempts for provisioning calls.
	retries int
}

type LiveKitConfig struct {
	// Host is the provider host, e.g. "rtc.example.com". Scheme defaults to
	// https when absent.
	Host      string
	APIKey    string
	APISecret string

	Timeout time.Duration
	Retries int
}

func NewLiveKitProvider(cfg LiveKitConfig) (*LiveKitProvider, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("rtc: provider host is required")
	}
	tokens, err := NewTokenIssuer(cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, err
	}

	base := cfg.Host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	return &LiveKitProvider{
		baseURL: strings.TrimRight(base, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
		retries: retries,
	}, nil
}

func (p *LiveKitProvider) Name() string { return "livekit" }

func (p *LiveKitProvider) HealthCheck(ctx context.Context) error {
	_, err := p.ListRooms(ctx, nil)
	return err
}

// Twirp wire types. int64 timestamps arrive as JSON strings (protojson), so
// they are decoded via json.Number.

type wireRoom struct {
	SID             string      `json:"sid"`
	Name            string      `json:"name"`
	EmptyTimeout    json.Number `json:"empty_timeout"`
	MaxParticipants json.Number `json:"max_participants"`
	CreationTime    json.Number `json:"creation_time"`
	NumParticipants json.Number `json:"num_participants"`
	Metadata        string      `json:"metadata"`
}

type wireParticipant struct {
	SID        string      `json:"sid"`
	Identity   string      `json:"identity"`
	Name       string      `json:"name"`
	JoinedAt   json.Number `json:"joined_at"`
	IsSpeaking bool        `json:"is_speaking"`
}

func (p *LiveKitProvider) CreateRoom(ctx context.Context, req CreateRoomRequest) (RoomHandle, error) {
	if req.Name == "" {
		return RoomHandle{}, fmt.Errorf("rtc: room name is required")
	}
	body := map[string]any{
		"name":             req.Name,
		"empty_timeout":    req.EmptyTimeoutSeconds,
		"max_participants": req.MaxParticipants,
	}
	if req.Metadata != "" {
		body["metadata"] = req.Metadata
	}

	var room wireRoom
	// CreateRoom is idempotent per name at the provider, so retrying a
	// failed provisioning attempt is safe.
	if err := p.callWithRetry(ctx, "CreateRoom", body, &room); err != nil {
		return RoomHandle{}, err
	}
	return RoomHandle{
		Name:      room.Name,
		SID:       room.SID,
		CreatedAt: unixTime(room.CreationTime),
	}, nil
}

// DeleteRoom removes a room at the provider. Deleting a room that no longer
// exists is treated as success.
func (p *LiveKitProvider) DeleteRoom(ctx context.Context, roomName string) error {
	if roomName == "" {
		return fmt.Errorf("rtc: room name is required")
	}
	err := p.call(ctx, "DeleteRoom", map[string]any{"room": roomName}, &struct{}{})
	if err != nil {
		var te *twirpError
		if asTwirpError(err, &te) && te.Code == "not_found" {
			return nil
		}
		return err
	}
	return nil
}

func (p *LiveKitProvider) ListRooms(ctx context.Context, names []string) ([]RoomInfo, error) {
	body := map[string]any{}
	if len(names) > 0 {
		body["names"] = names
	}
	var out struct {
		Rooms []wireRoom `json:"rooms"`
	}
	if err := p.call(ctx, "ListRooms", body, &out); err != nil {
		return nil, err
	}
	rooms := make([]RoomInfo, 0, len(out.Rooms))
	for _, r := range out.Rooms {
		rooms = append(rooms, RoomInfo{
			Name:            r.Name,
			SID:             r.SID,
			NumParticipants: intOf(r.NumParticipants),
			MaxParticipants: intOf(r.MaxParticipants),
			CreatedAt:       unixTime(r.CreationTime),
			Metadata:        r.Metadata,
		})
	}
	return rooms, nil
}

func (p *LiveKitProvider) ListParticipants(ctx context.Context, roomName string) ([]ParticipantInfo, error) {
	if roomName == "" {
		return nil, fmt.Errorf("rtc: room name is required")
	}
	var out struct {
		Participants []wireParticipant `json:"participants"`
	}
	if err := p.call(ctx, "ListParticipants", map[string]any{"room": roomName}, &out); err != nil {
		return nil, err
	}
	parts := make([]ParticipantInfo, 0, len(out.Participants))
	for _, wp := range out.Participants {
		parts = append(parts, ParticipantInfo{
			Identity:    wp.Identity,
			DisplayName: wp.Name,
			JoinedAt:    unixTime(wp.JoinedAt),
			IsSpeaking:  wp.IsSpeaking,
		})
	}
	return parts, nil
}

type twirpError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`

	status int
}

func (e *twirpError) Error() string {
	return fmt.Sprintf("%v: %s (%s, http %d)", ErrUpstream, e.Msg, e.Code, e.status)
}

func (e *twirpError) Unwrap() error { return ErrUpstream }

func asTwirpError(err error, target **twirpError) bool {
	te, ok := err.(*twirpError)
	if ok {
		*target = te
	}
	return ok
}

func (p *LiveKitProvider) callWithRetry(ctx context.Context, method string, body, out any) error {
	var err error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		err = p.call(ctx, method, body, out)
		if err == nil {
			return nil
		}
		var te *twirpError
		if asTwirpError(err, &te) && te.status < 500 {
			// Client-side twirp errors won't heal on retry.
			return err
		}
	}
	return err
}

func (p *LiveKitProvider) call(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("rtc: encode %s request: %w", method, err)
	}

	token, err := p.tokens.adminToken(time.Minute)
	if err != nil {
		return fmt.Errorf("rtc: mint admin token: %w", err)
	}

	url := p.baseURL + "/twirp/livekit.RoomService/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpstream, method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: read response: %v", ErrUpstream, method, err)
	}

	if resp.StatusCode != http.StatusOK {
		te := &twirpError{status: resp.StatusCode}
		if jsonErr := json.Unmarshal(raw, te); jsonErr != nil || te.Code == "" {
			te.Code = "unknown"
			te.Msg = strings.TrimSpace(string(raw))
		}
		return te
	}

	if out != nil && len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			return fmt.Errorf("%w: %s: decode response: %v", ErrUpstream, method, err)
		}
	}
	return nil
}

func intOf(n json.Number) int {
	v, err := n.Int64()
	if err != nil {
		return 0
	}
	return int(v)
}

func unixTime(n json.Number) time.Time {
	v, err := n.Int64()
	if err != nil || v <= 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
