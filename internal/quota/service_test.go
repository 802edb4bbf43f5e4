package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"callbridge/internal/plan"
)

type staticPlans struct {
	name string
	err  error
}

func (p staticPlans) ProjectPlan(ctx context.Context, projectID string) (string, error) {
	return p.name, p.err
}

func newTestController(planName string) (*Controller, *MemoryStore) {
	store := NewMemoryStore()
	c := NewController(store, staticPlans{name: planName})
	c.clock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return c, store
}

func TestCheckAdmission_LazyProvisionFromPlan(t *testing.T) {
	c, store := newTestController("basic")

	d, err := c.CheckAdmission(context.Background(), "p1", CallTypeAudio)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("basic plan audio call should be allowed, denied: %q", d.Reason)
	}

	q, err := store.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("quota record not provisioned: %v", err)
	}
	if q.Settings.MaxConcurrentCalls != 1 || q.Settings.MonthlyCallLimit != 100 {
		t.Fatalf("unexpected basic defaults: %+v", q.Settings)
	}
}

func TestCheckAdmission_ReasonPriority(t *testing.T) {
	ctx := context.Background()

	// Disabled project: reason is the global toggle even if everything else
	// would also fail.
	c, _ := newTestController("free")
	d, err := c.CheckAdmission(ctx, "p1", CallTypeVideo)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if d.Allowed || d.Reason != "calls disabled for project" {
		t.Fatalf("got %+v, want calls disabled", d)
	}

	// Per-type toggle off.
	c, _ = newTestController("basic")
	d, err = c.CheckAdmission(ctx, "p2", CallTypeVideo)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if d.Allowed || d.Reason != "video calls disabled" {
		t.Fatalf("got %+v, want video calls disabled", d)
	}

	// Concurrent limit.
	c, _ = newTestController("basic")
	if err := c.Reserve(ctx, "p3", CallTypeAudio); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	d, err = c.CheckAdmission(ctx, "p3", CallTypeAudio)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if d.Allowed || d.Reason != "concurrent call limit reached" {
		t.Fatalf("got %+v, want concurrent limit", d)
	}

	// Monthly limit: exhaust it with serial reserve/release cycles.
	c, _ = newTestController("basic")
	limit := 100
	for i := 0; i < limit; i++ {
		if err := c.Reserve(ctx, "p4", CallTypeAudio); err != nil {
			t.Fatalf("reserve %d failed: %v", i, err)
		}
		if err := c.Release(ctx, "p4"); err != nil {
			t.Fatalf("release %d failed: %v", i, err)
		}
	}
	d, err = c.CheckAdmission(ctx, "p4", CallTypeAudio)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if d.Allowed || d.Reason != "monthly call limit reached" {
		t.Fatalf("got %+v, want monthly limit", d)
	}
}

func TestCheckAdmission_DoesNotMutateUsage(t *testing.T) {
	c, store := newTestController("basic")
	for i := 0; i < 5; i++ {
		if _, err := c.CheckAdmission(context.Background(), "p1", CallTypeAudio); err != nil {
			t.Fatalf("check failed: %v", err)
		}
	}
	q, _ := store.Get(context.Background(), "p1")
	if q.Usage.ConcurrentCallsNow != 0 || q.Usage.CallsThisMonth != 0 {
		t.Fatalf("read path mutated usage: %+v", q.Usage)
	}
}

func TestReserve_DeniedCarriesReason(t *testing.T) {
	c, _ := newTestController("basic")
	err := c.Reserve(context.Background(), "p1", CallTypeVideo)
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Reason != "video calls disabled" {
		t.Fatalf("unexpected reason %q", denied.Reason)
	}
}

func TestReserve_ConcurrentRace_ExactlyOneWins(t *testing.T) {
	// basic plan: max_concurrent_calls = 1. Two concurrent reservations must
	// resolve to exactly one success, every time.
	ctx := context.Background()
	for round := 0; round < 200; round++ {
		c, _ := newTestController("basic")

		var wg sync.WaitGroup
		results := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.Reserve(ctx, "p1", CallTypeAudio)
			}(i)
		}
		wg.Wait()

		successes := 0
		for _, err := range results {
			if err == nil {
				successes++
				continue
			}
			var denied *DeniedError
			if !errors.As(err, &denied) {
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
		}
		if successes != 1 {
			t.Fatalf("round %d: %d reservations succeeded, want exactly 1", round, successes)
		}
	}
}

func TestAdmission_Monotonic(t *testing.T) {
	// Raising max_concurrent_calls never converts an allowed decision into a
	// denial for the same usage snapshot.
	q := ProjectQuota{
		ProjectID: "p1",
		Settings:  DefaultSettings(plan.Resolve("pro")),
		Usage:     Usage{ConcurrentCallsNow: 1, CallsThisMonth: 10},
	}
	for limit := 2; limit < 50; limit++ {
		q.Settings.MaxConcurrentCalls = limit
		if d := evaluate(q, CallTypeAudio); !d.Allowed {
			t.Fatalf("limit %d: allowed decision regressed to denial: %q", limit, d.Reason)
		}
	}
}

func TestRelease_FloorsAtZero(t *testing.T) {
	c, store := newTestController("basic")
	if _, err := c.GetQuota(context.Background(), "p1"); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := c.Release(context.Background(), "p1"); err != nil {
			t.Fatalf("release failed: %v", err)
		}
	}
	q, _ := store.Get(context.Background(), "p1")
	if q.Usage.ConcurrentCallsNow != 0 {
		t.Fatalf("concurrent counter went negative: %d", q.Usage.ConcurrentCallsNow)
	}
}

func TestRecordMinutes_RoundsUp(t *testing.T) {
	c, store := newTestController("basic")
	ctx := context.Background()
	if _, err := c.GetQuota(ctx, "p1"); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	if err := c.RecordMinutes(ctx, "p1", 61); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	q, _ := store.Get(ctx, "p1")
	if q.Usage.TotalCallMinutes != 2 {
		t.Fatalf("61s should bill 2 minutes, got %d", q.Usage.TotalCallMinutes)
	}

	if err := c.RecordMinutes(ctx, "p1", 0); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	q, _ = store.Get(ctx, "p1")
	if q.Usage.TotalCallMinutes != 2 {
		t.Fatalf("zero duration must not bill, got %d", q.Usage.TotalCallMinutes)
	}
}

func TestResetMonthlyUsage(t *testing.T) {
	c, store := newTestController("basic")
	ctx := context.Background()

	if err := c.Reserve(ctx, "p1", CallTypeAudio); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := c.RecordMinutes(ctx, "p1", 120); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if err := c.ResetMonthlyUsage(ctx, "p1"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	q, _ := store.Get(ctx, "p1")
	if q.Usage.CallsThisMonth != 0 || q.Usage.TotalCallMinutes != 0 {
		t.Fatalf("monthly counters not reset: %+v", q.Usage)
	}
	if !q.Usage.LastResetDate.Equal(c.clock()) {
		t.Fatalf("last_reset_date not advanced: %v", q.Usage.LastResetDate)
	}
	// Reset does not touch the concurrent counter; the call is still live.
	if q.Usage.ConcurrentCallsNow != 1 {
		t.Fatalf("reset must not touch concurrent counter, got %d", q.Usage.ConcurrentCallsNow)
	}
}

func TestUpdateSettings_PatchAndValidation(t *testing.T) {
	c, _ := newTestController("basic")
	ctx := context.Background()

	enabled := true
	video := true
	maxConc := 5
	q, err := c.UpdateSettings(ctx, "p1", SettingsPatch{
		Enabled:            &enabled,
		VideoCalls:         &video,
		MaxConcurrentCalls: &maxConc,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !q.Settings.VideoCalls || q.Settings.MaxConcurrentCalls != 5 {
		t.Fatalf("patch not applied: %+v", q.Settings)
	}
	// Untouched fields keep their values.
	if !q.Settings.AudioCalls || q.Settings.MonthlyCallLimit != 100 {
		t.Fatalf("patch clobbered unset fields: %+v", q.Settings)
	}

	bad := "ultra"
	if _, err := c.UpdateSettings(ctx, "p1", SettingsPatch{VideoQuality: &bad}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for bad quality, got %v", err)
	}
	neg := -1
	if _, err := c.UpdateSettings(ctx, "p1", SettingsPatch{MaxConcurrentCalls: &neg}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for negative limit, got %v", err)
	}
}

func TestUsageReport(t *testing.T) {
	c, _ := newTestController("basic")
	ctx := context.Background()

	if err := c.Reserve(ctx, "p1", CallTypeAudio); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	r, err := c.Usage(ctx, "p1")
	if err != nil {
		t.Fatalf("usage failed: %v", err)
	}
	if r.CurrentMonth.Calls != 1 || r.CurrentMonth.ConcurrentNow != 1 {
		t.Fatalf("unexpected usage: %+v", r.CurrentMonth)
	}
	if r.Remaining.Calls != 99 || r.Remaining.Concurrent != 0 {
		t.Fatalf("unexpected remaining: %+v", r.Remaining)
	}
	if !r.NextReset.Equal(r.LastReset.AddDate(0, 1, 0)) {
		t.Fatalf("next reset must be one month after last: %v / %v", r.LastReset, r.NextReset)
	}
}

func TestPlanSourceOutage_FallsBackToFree(t *testing.T) {
	store := NewMemoryStore()
	c := NewController(store, staticPlans{err: errors.New("plan system down")})
	c.clock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	q, err := c.GetQuota(context.Background(), "p1")
	if err != nil {
		t.Fatalf("provisioning must survive a plan outage: %v", err)
	}
	if q.Settings.Enabled {
		t.Fatalf("outage fallback must be the free tier (disabled), got %+v", q.Settings)
	}
}
