package features

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *HTTPStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewHTTPStore(HTTPStoreConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestAgentFeatures_ReadsRecord(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agents/agent_1/features" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"features": map[string]any{"audio": true, "video": true, "max_participants": 4},
		})
	})

	f := s.AgentFeatures(context.Background(), "agent_1")
	if !f.Audio || !f.Video {
		t.Fatalf("unexpected features: %+v", f)
	}
	if f.MaxParticipants != 4 {
		t.Fatalf("max_participants: got %d, want 4", f.MaxParticipants)
	}
}

func TestAgentFeatures_OutageFallsBackToLastKnown(t *testing.T) {
	var failing atomic.Bool
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"features": map[string]any{"audio": true, "video": true},
		})
	})

	warm := s.AgentFeatures(context.Background(), "agent_1")
	if !warm.Video {
		t.Fatalf("warm read should carry video: %+v", warm)
	}

	failing.Store(true)
	cached := s.AgentFeatures(context.Background(), "agent_1")
	if !cached.Video {
		t.Fatalf("outage must serve last-known record, got %+v", cached)
	}
}

func TestAgentFeatures_OutageWithNoHistoryUsesDefaults(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	f := s.AgentFeatures(context.Background(), "agent_unknown")
	if f != Defaults() {
		t.Fatalf("got %+v, want defaults", f)
	}
	if !f.Audio || f.Video {
		t.Fatalf("defaults must be audio-only: %+v", f)
	}
}

func TestAssignedAgent(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/requests/req_1/agent":
			_ = json.NewEncoder(w).Encode(map[string]string{"agent_id": "agent_9"})
		case "/requests/req_empty/agent":
			_ = json.NewEncoder(w).Encode(map[string]string{})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	id, err := s.AssignedAgent(context.Background(), "req_1")
	if err != nil || id != "agent_9" {
		t.Fatalf("got (%q, %v), want agent_9", id, err)
	}

	if _, err := s.AssignedAgent(context.Background(), "req_empty"); !errors.Is(err, ErrNoAgent) {
		t.Fatalf("expected ErrNoAgent, got %v", err)
	}
	if _, err := s.AssignedAgent(context.Background(), "req_missing"); err == nil {
		t.Fatalf("expected error for missing request")
	}
}

func TestProjectPlan(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/p1/plan" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"plan": "pro"})
	})

	plan, err := s.ProjectPlan(context.Background(), "p1")
	if err != nil || plan != "pro" {
		t.Fatalf("got (%q, %v), want pro", plan, err)
	}
}

func TestSyncToAgents_PartialFailure(t *testing.T) {
	var updated []string
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/projects/p1/agents":
			_ = json.NewEncoder(w).Encode(map[string]any{"agent_ids": []string{"a1", "a2", "a3"}})
		case r.Method == http.MethodPut && r.URL.Path == "/agents/a2/features":
			w.WriteHeader(http.StatusInternalServerError)
		case r.Method == http.MethodPut:
			updated = append(updated, r.URL.Path)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	syncer := &Syncer{Updater: s}
	res, err := syncer.SyncToAgents(context.Background(), "p1", AgentFeatures{Audio: true, Video: true})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(res.Synced) != 2 || len(res.Failed) != 1 || res.Failed[0] != "a2" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(updated) != 2 {
		t.Fatalf("got %d updates, want 2", len(updated))
	}
}

func TestNormalize(t *testing.T) {
	f := Normalize(AgentFeatures{Audio: true, MaxParticipants: 0, MaxCallMinutes: -5})
	if f.MaxParticipants != 2 {
		t.Fatalf("max_participants: got %d, want 2", f.MaxParticipants)
	}
	if f.MaxCallMinutes != 0 {
		t.Fatalf("max_call_minutes: got %d, want 0", f.MaxCallMinutes)
	}
}

func TestAllows(t *testing.T) {
	f := AgentFeatures{Audio: true, Video: false, ScreenShare: true}
	if !f.Allows("audio") || f.Allows("video") || !f.Allows("screen_share") {
		t.Fatalf("unexpected gating for %+v", f)
	}
}
