package callhistory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"call-signaling/internal/calls"
)

// Schema is the table PostgresRepo reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS calls (
  id            TEXT PRIMARY KEY,
  caller_id     TEXT NOT NULL,
  callee_id     TEXT NOT NULL DEFAULT '',
  participants  JSONB NOT NULL DEFAULT '[]',
  room_id       TEXT NOT NULL,
  room_type     TEXT NOT NULL,
  with_video    BOOLEAN NOT NULL DEFAULT FALSE,
  meet_platform TEXT NOT NULL,
  call_status   TEXT NOT NULL,
  started_at    TIMESTAMPTZ NULL,
  ended_at      TIMESTAMPTZ NULL,
  delete_from   JSONB NOT NULL DEFAULT '[]',
  created_at    TIMESTAMPTZ NOT NULL,
  updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS calls_participants_gin ON calls USING GIN (participants);
`

const callColumns = `id, caller_id, callee_id, participants, room_id, room_type, with_video,
  meet_platform, call_status, started_at, ended_at, delete_from, created_at, updated_at`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Create(ctx context.Context, c calls.Call) error {
	participants, err := json.Marshal(nonNil(c.Participants))
	if err != nil {
		return err
	}
	deleteFrom, err := json.Marshal(nonNil(c.DeleteFrom))
	if err != nil {
		return err
	}
	const q = `
INSERT INTO calls (
  id, caller_id, callee_id, participants, room_id, room_type, with_video,
  meet_platform, call_status, started_at, ended_at, delete_from, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
`
	_, err = r.db.ExecContext(ctx, q,
		c.ID,
		c.CallerID,
		c.CalleeID,
		participants,
		c.RoomID,
		c.RoomType,
		c.WithVideo,
		c.MeetPlatform,
		c.Status,
		nullTime(c.StartedAt),
		nullTime(c.EndedAt),
		deleteFrom,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (calls.Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return calls.Call{}, calls.ErrCallNotFound
	}
	return c, err
}

func (r *PostgresRepo) Transition(ctx context.Context, id string, from []calls.CallStatus, to calls.CallStatus, at time.Time) (calls.Call, error) {
	if len(from) == 0 {
		return calls.Call{}, fmt.Errorf("%w: no source status", calls.ErrInvalidTransition)
	}
	args := []any{id, to, at, to.IsTerminal()}
	in := make([]string, 0, len(from))
	for _, s := range from {
		args = append(args, s)
		in = append(in, fmt.Sprintf("$%d", len(args)))
	}

	q := `
UPDATE calls
SET call_status = $2,
    started_at  = CASE WHEN $2 = '` + string(calls.CallStatusInCall) + `' AND started_at IS NULL THEN $3 ELSE started_at END,
    ended_at    = CASE WHEN $4::boolean THEN $3 ELSE ended_at END,
    updated_at  = $3
WHERE id = $1 AND call_status IN (` + strings.Join(in, ",") + `)
RETURNING ` + callColumns

	c, err := scanCall(r.db.QueryRowContext(ctx, q, args...))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return calls.Call{}, err
	}
	// Either the call does not exist or another writer moved it first.
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return calls.Call{}, getErr
	}
	return calls.Call{}, calls.ErrStaleStatus
}

func (r *PostgresRepo) AddParticipants(ctx context.Context, id string, userIDs []string, at time.Time) (calls.Call, error) {
	add, err := json.Marshal(nonNil(userIDs))
	if err != nil {
		return calls.Call{}, err
	}
	q := `
UPDATE calls
SET participants = (
      SELECT COALESCE(jsonb_agg(v ORDER BY first_pos), '[]'::jsonb)
      FROM (
        SELECT v, MIN(pos) AS first_pos
        FROM jsonb_array_elements_text(calls.participants || $2::jsonb) WITH ORDINALITY AS t(v, pos)
        GROUP BY v
      ) merged
    ),
    updated_at = $3
WHERE id = $1
RETURNING ` + callColumns

	c, err := scanCall(r.db.QueryRowContext(ctx, q, id, add, at))
	if errors.Is(err, sql.ErrNoRows) {
		return calls.Call{}, calls.ErrCallNotFound
	}
	return c, err
}

func (r *PostgresRepo) FindRinging(ctx context.Context, userID string) (calls.Call, bool, error) {
	who, err := json.Marshal([]string{userID})
	if err != nil {
		return calls.Call{}, false, err
	}
	q := `SELECT ` + callColumns + `
FROM calls
WHERE participants @> $1::jsonb AND caller_id <> $2 AND call_status = $3
ORDER BY created_at DESC
LIMIT 1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, who, userID, calls.CallStatusRing))
	if errors.Is(err, sql.ErrNoRows) {
		return calls.Call{}, false, nil
	}
	if err != nil {
		return calls.Call{}, false, err
	}
	return c, true, nil
}

func (r *PostgresRepo) ListHistory(ctx context.Context, hq HistoryQuery) ([]calls.Call, error) {
	who, err := json.Marshal([]string{hq.UserID})
	if err != nil {
		return nil, err
	}
	args := []any{who}
	var b strings.Builder
	b.WriteString(`SELECT ` + callColumns + `
FROM calls
WHERE participants @> $1::jsonb AND NOT (delete_from @> $1::jsonb)`)
	if len(hq.Statuses) > 0 {
		in := make([]string, 0, len(hq.Statuses))
		for _, s := range hq.Statuses {
			args = append(args, s)
			in = append(in, fmt.Sprintf("$%d", len(args)))
		}
		b.WriteString(` AND call_status IN (` + strings.Join(in, ",") + `)`)
	}
	if !hq.Before.IsZero() {
		args = append(args, hq.Before)
		fmt.Fprintf(&b, ` AND created_at < $%d`, len(args))
	}
	args = append(args, hq.Limit)
	fmt.Fprintf(&b, "\nORDER BY created_at DESC\nLIMIT $%d", len(args))

	return r.query(ctx, b.String(), args...)
}

func (r *PostgresRepo) HideForUser(ctx context.Context, userID, callID string, at time.Time) error {
	who, err := json.Marshal([]string{userID})
	if err != nil {
		return err
	}
	q := `
UPDATE calls
SET delete_from = CASE WHEN delete_from @> $1::jsonb THEN delete_from ELSE delete_from || $1::jsonb END,
    updated_at  = $2
WHERE participants @> $1::jsonb`
	args := []any{who, at}
	if callID != "" {
		q += ` AND id = $3`
		args = append(args, callID)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if callID == "" {
		return nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return calls.ErrCallNotFound
	}
	return nil
}

func (r *PostgresRepo) ListCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Call, error) {
	who, err := json.Marshal([]string{userID})
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + callColumns + `
FROM calls
WHERE participants @> $1::jsonb AND created_at >= $2 AND created_at < $3
ORDER BY created_at DESC`
	return r.query(ctx, q, who, from, to)
}

func (r *PostgresRepo) query(ctx context.Context, q string, args ...any) ([]calls.Call, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]calls.Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (calls.Call, error) {
	var (
		c                        calls.Call
		participants, deleteFrom []byte
		startedAt, endedAt       sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&c.CallerID,
		&c.CalleeID,
		&participants,
		&c.RoomID,
		&c.RoomType,
		&c.WithVideo,
		&c.MeetPlatform,
		&c.Status,
		&startedAt,
		&endedAt,
		&deleteFrom,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return calls.Call{}, err
	}
	if err := json.Unmarshal(participants, &c.Participants); err != nil {
		return calls.Call{}, fmt.Errorf("decode participants: %w", err)
	}
	if err := json.Unmarshal(deleteFrom, &c.DeleteFrom); err != nil {
		return calls.Call{}, fmt.Errorf("decode delete_from: %w", err)
	}
	if startedAt.Valid {
		t := startedAt.Time
		c.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	return c, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
