package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *LiveKitProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewLiveKitProvider(LiveKitConfig{
		Host:      srv.URL,
		APIKey:    "apikey",
		APISecret: "apisecret",
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestLiveKit_CreateRoom(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sid":           "RM_x",
			"name":          "call_room_1",
			"creation_time": "1750000000",
		})
	})

	room, err := p.CreateRoom(context.Background(), CreateRoomRequest{
		Name:                "call_room_1",
		MaxParticipants:     2,
		EmptyTimeoutSeconds: 300,
		Metadata:            `{"call_id":"c1"}`,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if gotPath != "/twirp/livekit.RoomService/CreateRoom" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "Bearer ") {
		t.Fatalf("missing bearer token, got %q", gotAuth)
	}
	if gotBody["name"] != "call_room_1" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
	if room.Name != "call_room_1" || room.SID != "RM_x" {
		t.Fatalf("unexpected handle: %+v", room)
	}
	if room.CreatedAt.IsZero() {
		t.Fatalf("creation_time not decoded")
	}
}

func TestLiveKit_DeleteRoom_MissingRoomIsSuccess(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "not_found", "msg": "room does not exist"})
	})
	if err := p.DeleteRoom(context.Background(), "gone"); err != nil {
		t.Fatalf("deleting a missing room must succeed, got %v", err)
	}
}

func TestLiveKit_UpstreamErrorsWrapped(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "internal", "msg": "boom"})
	})
	_, err := p.ListRooms(context.Background(), []string{"r"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestLiveKit_ListParticipants(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"participants": []map[string]any{
				{"identity": "agent_1", "name": "Support Agent", "joined_at": "1750000000", "is_speaking": true},
				{"identity": "user_2", "name": "Customer"},
			},
		})
	})
	parts, err := p.ListParticipants(context.Background(), "call_room_1")
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d participants, want 2", len(parts))
	}
	if parts[0].Identity != "agent_1" || !parts[0].IsSpeaking {
		t.Fatalf("unexpected participant: %+v", parts[0])
	}
	if !parts[1].JoinedAt.IsZero() {
		t.Fatalf("absent joined_at must decode to zero time")
	}
}

func TestLiveKit_CreateRoomRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sid": "RM_y", "name": "r"})
	}))
	defer srv.Close()

	p, err := NewLiveKitProvider(LiveKitConfig{Host: srv.URL, APIKey: "k", APISecret: "s", Retries: 2})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := p.CreateRoom(context.Background(), CreateRoomRequest{Name: "r"}); err != nil {
		t.Fatalf("create room should succeed after retry, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("got %d attempts, want 2", attempts)
	}
}
