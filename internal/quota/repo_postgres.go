package quota

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore persists quota records in the project_quotas table.
//
// Settings and usage are flattened into columns so that TryReserve can be a
// single conditional UPDATE with its predicate evaluated by Postgres. That
// statement is the atomicity boundary the whole admission engine leans on.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const quotaColumns = `
project_id, enabled, audio_calls, video_calls, screen_sharing, call_recording,
max_concurrent_calls, max_call_duration, monthly_call_limit,
video_quality, audio_quality, show_call_button, require_precall_test,
calls_this_month, total_call_minutes, concurrent_calls_now, last_reset_date,
created_at, updated_at`

func scanQuota(row *sql.Row) (ProjectQuota, error) {
	var q ProjectQuota
	err := row.Scan(
		&q.ProjectID,
		&q.Settings.Enabled,
		&q.Settings.AudioCalls,
		&q.Settings.VideoCalls,
		&q.Settings.ScreenSharing,
		&q.Settings.CallRecording,
		&q.Settings.MaxConcurrentCalls,
		&q.Settings.MaxCallDuration,
		&q.Settings.MonthlyCallLimit,
		&q.Settings.VideoQuality,
		&q.Settings.AudioQuality,
		&q.Settings.ShowCallButton,
		&q.Settings.RequirePrecallTest,
		&q.Usage.CallsThisMonth,
		&q.Usage.TotalCallMinutes,
		&q.Usage.ConcurrentCallsNow,
		&q.Usage.LastResetDate,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ProjectQuota{}, ErrNotFound
		}
		return ProjectQuota{}, err
	}
	return q, nil
}

func (s *PostgresStore) Get(ctx context.Context, projectID string) (ProjectQuota, error) {
	const q = `
SELECT ` + quotaColumns + `
FROM project_quotas
WHERE project_id = $1
`
	return scanQuota(s.db.QueryRowContext(ctx, q, projectID))
}

func (s *PostgresStore) Create(ctx context.Context, pq ProjectQuota) error {
	const q = `
INSERT INTO project_quotas (` + quotaColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (project_id) DO NOTHING
`
	_, err := s.db.ExecContext(ctx, q,
		pq.ProjectID,
		pq.Settings.Enabled,
		pq.Settings.AudioCalls,
		pq.Settings.VideoCalls,
		pq.Settings.ScreenSharing,
		pq.Settings.CallRecording,
		pq.Settings.MaxConcurrentCalls,
		pq.Settings.MaxCallDuration,
		pq.Settings.MonthlyCallLimit,
		pq.Settings.VideoQuality,
		pq.Settings.AudioQuality,
		pq.Settings.ShowCallButton,
		pq.Settings.RequirePrecallTest,
		pq.Usage.CallsThisMonth,
		pq.Usage.TotalCallMinutes,
		pq.Usage.ConcurrentCallsNow,
		pq.Usage.LastResetDate,
		pq.CreatedAt,
		pq.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, projectID string, set Settings, now time.Time) (ProjectQuota, error) {
	const q = `
UPDATE project_quotas SET
  enabled = $2,
  audio_calls = $3,
  video_calls = $4,
  screen_sharing = $5,
  call_recording = $6,
  max_concurrent_calls = $7,
  max_call_duration = $8,
  monthly_call_limit = $9,
  video_quality = $10,
  audio_quality = $11,
  show_call_button = $12,
  require_precall_test = $13,
  updated_at = $14
WHERE project_id = $1
RETURNING ` + quotaColumns + `
`
	return scanQuota(s.db.QueryRowContext(ctx, q,
		projectID,
		set.Enabled,
		set.AudioCalls,
		set.VideoCalls,
		set.ScreenSharing,
		set.CallRecording,
		set.MaxConcurrentCalls,
		set.MaxCallDuration,
		set.MonthlyCallLimit,
		set.VideoQuality,
		set.AudioQuality,
		set.ShowCallButton,
		set.RequirePrecallTest,
		now,
	))
}

// TryReserve performs the check-and-increment as one statement. The WHERE
// clause is the admission predicate; zero rows affected means denied.
func (s *PostgresStore) TryReserve(ctx context.Context, projectID, callType string, now time.Time) (bool, error) {
	const q = `
UPDATE project_quotas SET
  concurrent_calls_now = concurrent_calls_now + 1,
  calls_this_month = calls_this_month + 1,
  updated_at = $3
WHERE project_id = $1
  AND enabled
  AND (CASE $2
         WHEN 'video' THEN video_calls
         WHEN 'screen_share' THEN screen_sharing
         ELSE audio_calls
       END)
  AND concurrent_calls_now < max_concurrent_calls
  AND (monthly_call_limit <= 0 OR calls_this_month < monthly_call_limit)
`
	res, err := s.db.ExecContext(ctx, q, projectID, callType, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) Release(ctx context.Context, projectID string, now time.Time) error {
	const q = `
UPDATE project_quotas SET
  concurrent_calls_now = GREATEST(concurrent_calls_now - 1, 0),
  updated_at = $2
WHERE project_id = $1
`
	_, err := s.db.ExecContext(ctx, q, projectID, now)
	return err
}

func (s *PostgresStore) AddMinutes(ctx context.Context, projectID string, minutes int, now time.Time) error {
	const q = `
UPDATE project_quotas SET
  total_call_minutes = total_call_minutes + $2,
  updated_at = $3
WHERE project_id = $1
`
	_, err := s.db.ExecContext(ctx, q, projectID, minutes, now)
	return err
}

func (s *PostgresStore) ResetUsage(ctx context.Context, projectID string, now time.Time) error {
	const q = `
UPDATE project_quotas SET
  calls_this_month = 0,
  total_call_minutes = 0,
  last_reset_date = $2,
  updated_at = $2
WHERE project_id = $1
`
	_, err := s.db.ExecContext(ctx, q, projectID, now)
	return err
}
