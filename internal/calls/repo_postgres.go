package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"callbridge/pkg/utils"
)

// PostgresStore persists sessions in the call_sessions table. Participants
// live in a JSONB column; everything queried on gets its own column.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const sessionColumns = `
call_id, room_name, project_id, request_id, agent_id,
initiator, initiator_id, call_type, status, participants,
created_at, started_at, ended_at, duration_seconds, ended_by, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (CallSession, error) {
	var (
		c            CallSession
		participants []byte
		roomName     sql.NullString
		agentID      sql.NullString
		startedAt    sql.NullTime
		endedAt      sql.NullTime
		endedBy      sql.NullString
	)
	err := row.Scan(
		&c.CallID,
		&roomName,
		&c.ProjectID,
		&c.RequestID,
		&agentID,
		&c.Initiator,
		&c.InitiatorID,
		&c.CallType,
		&c.Status,
		&participants,
		&c.CreatedAt,
		&startedAt,
		&endedAt,
		&c.DurationSeconds,
		&endedBy,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, ErrNotFound
		}
		return CallSession{}, err
	}

	c.RoomName = roomName.String
	c.AgentID = agentID.String
	c.EndedBy = endedBy.String
	if startedAt.Valid {
		t := startedAt.Time
		c.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	if len(participants) > 0 {
		if err := json.Unmarshal(participants, &c.Participants); err != nil {
			return CallSession{}, err
		}
	}
	return c, nil
}

func sessionArgs(c CallSession) ([]any, error) {
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return nil, err
	}
	return []any{
		c.CallID,
		nullString(c.RoomName),
		c.ProjectID,
		c.RequestID,
		nullString(c.AgentID),
		c.Initiator,
		c.InitiatorID,
		c.CallType,
		c.Status,
		participants,
		c.CreatedAt,
		nullTime(c.StartedAt),
		nullTime(c.EndedAt),
		c.DurationSeconds,
		nullString(c.EndedBy),
		c.UpdatedAt,
	}, nil
}

func (s *PostgresStore) Create(ctx context.Context, c CallSession) error {
	const q = `
INSERT INTO call_sessions (` + sessionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`
	args, err := sessionArgs(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, callID string) (CallSession, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE call_id = $1
`
	return scanSession(s.db.QueryRowContext(ctx, q, callID))
}

func (s *PostgresStore) GetByRoom(ctx context.Context, roomName string) (CallSession, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE room_name = $1
ORDER BY created_at DESC
LIMIT 1
`
	return scanSession(s.db.QueryRowContext(ctx, q, roomName))
}

func (s *PostgresStore) Update(ctx context.Context, c CallSession) error {
	const q = `
UPDATE call_sessions SET
  room_name = $2,
  agent_id = $3,
  status = $4,
  participants = $5,
  started_at = $6,
  ended_at = $7,
  duration_seconds = $8,
  ended_by = $9,
  updated_at = $10
WHERE call_id = $1
`
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q,
		c.CallID, nullString(c.RoomName), nullString(c.AgentID), c.Status, participants,
		nullTime(c.StartedAt), nullTime(c.EndedAt), c.DurationSeconds, nullString(c.EndedBy), c.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Terminate is a conditional update guarded on the stored status; the WHERE
// clause is what makes concurrent terminations yield exactly one winner.
func (s *PostgresStore) Terminate(ctx context.Context, c CallSession) (bool, error) {
	const q = `
UPDATE call_sessions SET
  status = $2,
  participants = $3,
  ended_at = $4,
  duration_seconds = $5,
  ended_by = $6,
  updated_at = $7
WHERE call_id = $1 AND status IN ('pending', 'ringing', 'active')
`
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, q,
		c.CallID, c.Status, participants,
		nullTime(c.EndedAt), c.DurationSeconds, nullString(c.EndedBy), c.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	// Zero rows means either the session is already terminal or it does not
	// exist; only the latter is an error.
	if _, err := s.Get(ctx, c.CallID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) ActiveByAgent(ctx context.Context, agentID string, limit int) ([]CallSession, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE agent_id = $1 AND status IN ('pending', 'ringing', 'active')
ORDER BY created_at DESC
LIMIT $2
`
	return queryMany(ctx, s.db, q, agentID, limit)
}

// HistoryByAgent reads the page and the total inside one read-only
// transaction so the count matches the rows it was computed with.
func (s *PostgresStore) HistoryByAgent(ctx context.Context, agentID string, limit, offset int) ([]CallSession, int, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE agent_id = $1 AND status = 'ended'
ORDER BY ended_at DESC
LIMIT $2 OFFSET $3
`
	const countQ = `
SELECT COUNT(*) FROM call_sessions
WHERE agent_id = $1 AND status = 'ended'
`
	var (
		out   []CallSession
		total int
	)
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		out, err = queryMany(ctx, tx, q, agentID, limit, offset)
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, countQ, agentID).Scan(&total)
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *PostgresStore) StaleBefore(ctx context.Context, cutoff time.Time) ([]CallSession, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE status IN ('pending', 'ringing') AND created_at < $1
ORDER BY created_at ASC
`
	return queryMany(ctx, s.db, q, cutoff)
}

func (s *PostgresStore) EndedBetween(ctx context.Context, projectID string, from, to time.Time) ([]CallSession, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE project_id = $1 AND status = 'ended' AND ended_at >= $2 AND ended_at < $3
ORDER BY ended_at ASC
`
	return queryMany(ctx, s.db, q, projectID, from, to)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryMany(ctx context.Context, db querier, q string, args ...any) ([]CallSession, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallSession
	for rows.Next() {
		c, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
