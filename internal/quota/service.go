package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callbridge/internal/plan"
)

// Store is the persistence contract for project quota records.
//
// TryReserve MUST be a single atomic conditional update (increment iff the
// settings toggles pass and both the concurrent and monthly limits hold).
// A read followed by a write is not an acceptable implementation: two
// concurrent reservations could both observe room under the limit.
type Store interface {
	Get(ctx context.Context, projectID string) (ProjectQuota, error)
	// Create inserts q if no record exists for q.ProjectID; existing records win.
	Create(ctx context.Context, q ProjectQuota) error
	UpdateSettings(ctx context.Context, projectID string, s Settings, now time.Time) (ProjectQuota, error)

	TryReserve(ctx context.Context, projectID, callType string, now time.Time) (bool, error)
	Release(ctx context.Context, projectID string, now time.Time) error
	AddMinutes(ctx context.Context, projectID string, minutes int, now time.Time) error
	ResetUsage(ctx context.Context, projectID string, now time.Time) error
}

// PlanSource resolves the billing plan name for a project. Implementations
// talk to the external plan system of record and may be eventually
// consistent; lookup failures fall back to the free tier here.
type PlanSource interface {
	ProjectPlan(ctx context.Context, projectID string) (string, error)
}

var (
	ErrNotFound        = errors.New("quota: not found")
	ErrInvalidArgument = errors.New("quota: invalid argument")
)

// DeniedError is returned when admission control rejects a reservation.
// Reason is human-readable and stable enough to surface to callers.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string { return "quota: admission denied: " + e.Reason }

// Decision is the outcome of a read-only admission check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Controller is the admission-control engine. It exclusively owns mutation
// of ProjectQuota usage counters.
type Controller struct {
	store Store
	plans PlanSource
	clock func() time.Time
}

func NewController(store Store, plans PlanSource) *Controller {
	return &Controller{store: store, plans: plans, clock: time.Now}
}

const (
	CallTypeAudio       = "audio"
	CallTypeVideo       = "video"
	CallTypeScreenShare = "screen_share"
)

func validCallType(t string) bool {
	switch t {
	case CallTypeAudio, CallTypeVideo, CallTypeScreenShare:
		return true
	default:
		return false
	}
}

// CheckAdmission evaluates whether a new call of the given type may start.
// Read path only; usage counters are not touched.
func (c *Controller) CheckAdmission(ctx context.Context, projectID, callType string) (Decision, error) {
	if projectID == "" || !validCallType(callType) {
		return Decision{}, ErrInvalidArgument
	}
	q, err := c.getOrCreate(ctx, projectID)
	if err != nil {
		return Decision{}, err
	}
	return evaluate(q, callType), nil
}

// Reserve atomically claims one concurrent slot and one monthly call for the
// project. On denial the quota record is left untouched and a *DeniedError
// carries the first failing reason, in check priority order.
func (c *Controller) Reserve(ctx context.Context, projectID, callType string) error {
	if projectID == "" || !validCallType(callType) {
		return ErrInvalidArgument
	}
	q, err := c.getOrCreate(ctx, projectID)
	if err != nil {
		return err
	}

	now := c.clock().UTC()
	ok, err := c.store.TryReserve(ctx, projectID, callType, now)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	// Denied. Re-read for the precise reason; the atomic update already
	// decided the outcome, this is reporting only.
	q, err = c.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	d := evaluate(q, callType)
	if d.Allowed {
		// A slot freed up between the update and the read.
		d.Reason = reasonConcurrentLimit
	}
	return &DeniedError{Reason: d.Reason}
}

// Release returns a previously reserved concurrent slot. Callers must invoke
// it exactly once per reserved session; the counter floors at zero.
func (c *Controller) Release(ctx context.Context, projectID string) error {
	if projectID == "" {
		return ErrInvalidArgument
	}
	return c.store.Release(ctx, projectID, c.clock().UTC())
}

// RecordMinutes adds the call duration, rounded up to whole minutes, to the
// monthly minute counter.
func (c *Controller) RecordMinutes(ctx context.Context, projectID string, durationSeconds int) error {
	if projectID == "" {
		return ErrInvalidArgument
	}
	if durationSeconds <= 0 {
		return nil
	}
	minutes := (durationSeconds + 59) / 60
	return c.store.AddMinutes(ctx, projectID, minutes, c.clock().UTC())
}

// ResetMonthlyUsage zeroes the monthly counters and advances last_reset_date.
// Billing-cycle rollover is explicit: nothing resets implicitly on a
// calendar boundary.
func (c *Controller) ResetMonthlyUsage(ctx context.Context, projectID string) error {
	if projectID == "" {
		return ErrInvalidArgument
	}
	if _, err := c.getOrCreate(ctx, projectID); err != nil {
		return err
	}
	return c.store.ResetUsage(ctx, projectID, c.clock().UTC())
}

// GetQuota returns the project quota record, provisioning it from
// plan-derived defaults on first access.
func (c *Controller) GetQuota(ctx context.Context, projectID string) (ProjectQuota, error) {
	if projectID == "" {
		return ProjectQuota{}, ErrInvalidArgument
	}
	return c.getOrCreate(ctx, projectID)
}

// UpdateSettings applies a typed partial update to project settings.
func (c *Controller) UpdateSettings(ctx context.Context, projectID string, patch SettingsPatch) (ProjectQuota, error) {
	if projectID == "" {
		return ProjectQuota{}, ErrInvalidArgument
	}
	q, err := c.getOrCreate(ctx, projectID)
	if err != nil {
		return ProjectQuota{}, err
	}

	s := patch.applyTo(q.Settings)
	if s.MaxConcurrentCalls < 0 {
		return ProjectQuota{}, fmt.Errorf("%w: max_concurrent_calls must be >= 0", ErrInvalidArgument)
	}
	if s.MaxCallDuration <= 0 {
		return ProjectQuota{}, fmt.Errorf("%w: max_call_duration must be > 0", ErrInvalidArgument)
	}
	if !validVideoQuality(s.VideoQuality) {
		return ProjectQuota{}, fmt.Errorf("%w: video_quality must be one of low, medium, high, hd", ErrInvalidArgument)
	}
	if !validAudioQuality(s.AudioQuality) {
		return ProjectQuota{}, fmt.Errorf("%w: audio_quality must be one of low, medium, high", ErrInvalidArgument)
	}

	return c.store.UpdateSettings(ctx, projectID, s, c.clock().UTC())
}

// UsageReport summarizes current usage against limits.
type UsageReport struct {
	ProjectID string `json:"project_id"`

	CurrentMonth struct {
		Calls         int `json:"calls"`
		Minutes       int `json:"minutes"`
		ConcurrentNow int `json:"concurrent_now"`
	} `json:"current_month"`

	Limits struct {
		MaxConcurrent int `json:"max_concurrent"`
		MaxMonthly    int `json:"max_monthly"`
		MaxDuration   int `json:"max_duration"`
	} `json:"limits"`

	Remaining struct {
		// Calls is -1 when the monthly limit is unlimited.
		Calls      int `json:"calls"`
		Concurrent int `json:"concurrent"`
	} `json:"remaining"`

	LastReset time.Time `json:"last_reset"`
	NextReset time.Time `json:"next_reset"`
}

func (c *Controller) Usage(ctx context.Context, projectID string) (UsageReport, error) {
	q, err := c.GetQuota(ctx, projectID)
	if err != nil {
		return UsageReport{}, err
	}

	var r UsageReport
	r.ProjectID = q.ProjectID
	r.CurrentMonth.Calls = q.Usage.CallsThisMonth
	r.CurrentMonth.Minutes = q.Usage.TotalCallMinutes
	r.CurrentMonth.ConcurrentNow = q.Usage.ConcurrentCallsNow
	r.Limits.MaxConcurrent = q.Settings.MaxConcurrentCalls
	r.Limits.MaxMonthly = q.Settings.MonthlyCallLimit
	r.Limits.MaxDuration = q.Settings.MaxCallDuration

	if q.Settings.MonthlyCallLimit > 0 {
		r.Remaining.Calls = max(0, q.Settings.MonthlyCallLimit-q.Usage.CallsThisMonth)
	} else {
		r.Remaining.Calls = plan.Unlimited
	}
	r.Remaining.Concurrent = max(0, q.Settings.MaxConcurrentCalls-q.Usage.ConcurrentCallsNow)

	r.LastReset = q.Usage.LastResetDate
	r.NextReset = q.Usage.LastResetDate.AddDate(0, 1, 0)
	return r, nil
}

func (c *Controller) getOrCreate(ctx context.Context, projectID string) (ProjectQuota, error) {
	q, err := c.store.Get(ctx, projectID)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return ProjectQuota{}, err
	}

	planName := plan.Free
	if c.plans != nil {
		if name, perr := c.plans.ProjectPlan(ctx, projectID); perr == nil && name != "" {
			planName = name
		}
		// Plan lookup failures fall through to the free tier; the external
		// plan system being down must not take admission control with it.
	}

	now := c.clock().UTC()
	fresh := ProjectQuota{
		ProjectID: projectID,
		Settings:  DefaultSettings(plan.Resolve(planName)),
		Usage:     Usage{LastResetDate: now},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.Create(ctx, fresh); err != nil {
		return ProjectQuota{}, err
	}
	// Re-read: a concurrent first access may have won the insert.
	return c.store.Get(ctx, projectID)
}

const (
	reasonCallsDisabled   = "calls disabled for project"
	reasonConcurrentLimit = "concurrent call limit reached"
	reasonMonthlyLimit    = "monthly call limit reached"
)

// evaluate applies the admission checks in priority order against a
// snapshot. Reservation must not rely on this for correctness; it exists for
// the read-only check and for denial reporting.
func evaluate(q ProjectQuota, callType string) Decision {
	if !q.Settings.Enabled {
		return Decision{Allowed: false, Reason: reasonCallsDisabled}
	}
	if !typeEnabled(q.Settings, callType) {
		return Decision{Allowed: false, Reason: callType + " calls disabled"}
	}
	if q.Usage.ConcurrentCallsNow >= q.Settings.MaxConcurrentCalls {
		return Decision{Allowed: false, Reason: reasonConcurrentLimit}
	}
	if q.Settings.MonthlyCallLimit > 0 && q.Usage.CallsThisMonth >= q.Settings.MonthlyCallLimit {
		return Decision{Allowed: false, Reason: reasonMonthlyLimit}
	}
	return Decision{Allowed: true}
}

func typeEnabled(s Settings, callType string) bool {
	switch callType {
	case CallTypeVideo:
		return s.VideoCalls
	case CallTypeScreenShare:
		return s.ScreenSharing
	default:
		return s.AudioCalls
	}
}
