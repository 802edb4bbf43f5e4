package reporting

import (
	"context"
	"testing"
	"time"

	"callbridge/internal/calls"
)

func seedEnded(t *testing.T, store *calls.MemoryStore, s calls.CallSession) {
	t.Helper()
	if err := store.Create(context.Background(), s); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestCallsSummary_ProjectIsolation(t *testing.T) {
	store := calls.NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()
	started := now.Add(-time.Minute)

	seedEnded(t, store, calls.CallSession{
		CallID: "c1", ProjectID: "p1", RequestID: "r1", AgentID: "a1",
		Initiator: calls.RoleAgent, InitiatorID: "a1", CallType: "audio",
		Status: calls.StatusEnded, CreatedAt: started, StartedAt: &started,
		EndedAt: &now, DurationSeconds: 60,
	})
	seedEnded(t, store, calls.CallSession{
		CallID: "c2", ProjectID: "p2", RequestID: "r2", AgentID: "a1",
		Initiator: calls.RoleAgent, InitiatorID: "a1", CallType: "audio",
		Status: calls.StatusEnded, CreatedAt: started, StartedAt: &started,
		EndedAt: &now, DurationSeconds: 120,
	})

	svc := NewService(store)
	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		ProjectID: "p1",
		Range:     TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 || out.TotalDurationSeconds != 60 {
		t.Fatalf("expected only project p1 calls: %+v", out)
	}
}

func TestCallsSummary_Aggregates(t *testing.T) {
	store := calls.NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()
	started := now.Add(-2 * time.Minute)

	seedEnded(t, store, calls.CallSession{
		CallID: "c1", ProjectID: "p", RequestID: "r1", AgentID: "a1",
		Initiator: calls.RoleAgent, InitiatorID: "a1", CallType: "video",
		Status: calls.StatusEnded, CreatedAt: started, StartedAt: &started,
		EndedAt: &now, DurationSeconds: 90,
	})
	seedEnded(t, store, calls.CallSession{
		CallID: "c2", ProjectID: "p", RequestID: "r2", AgentID: "a1",
		Initiator: calls.RoleAI, InitiatorID: "bot", CallType: "audio",
		Status: calls.StatusEnded, CreatedAt: started, StartedAt: &started,
		EndedAt: &now, DurationSeconds: 30,
	})
	seedEnded(t, store, calls.CallSession{
		CallID: "c3", ProjectID: "p", RequestID: "r3", AgentID: "a1",
		Initiator: calls.RoleUser, InitiatorID: "u1", CallType: "audio",
		Status: calls.StatusEnded, CreatedAt: started,
		EndedAt: &now, EndedBy: "timeout",
	})

	svc := NewService(store)
	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		ProjectID: "p",
		Range:     TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 3 || out.VideoCalls != 1 || out.AudioCalls != 2 {
		t.Fatalf("type counts wrong: %+v", out)
	}
	if out.AgentInitiated != 1 || out.UserInitiated != 1 || out.AIInitiated != 1 {
		t.Fatalf("initiator counts wrong: %+v", out)
	}
	if out.AnsweredCalls != 2 || out.TimedOutCalls != 1 {
		t.Fatalf("answer counts wrong: %+v", out)
	}
	// 90s -> 2 billed minutes, 30s -> 1 billed minute.
	if out.BilledMinutes != 3 {
		t.Fatalf("billed minutes: got %d, want 3", out.BilledMinutes)
	}
	if out.AverageDurationSeconds != 60 {
		t.Fatalf("average over answered calls: got %d, want 60", out.AverageDurationSeconds)
	}
}

func TestCallsSummary_Validation(t *testing.T) {
	svc := NewService(calls.NewMemoryStore())
	now := time.Unix(1700000000, 0).UTC()

	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		Range: TimeRange{From: now, To: now.Add(time.Hour)},
	}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest for missing project")
	}
	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		ProjectID: "p",
		Range:     TimeRange{From: now, To: now},
	}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest for empty range")
	}
}
