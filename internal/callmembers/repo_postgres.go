package callmembers

import (
	"context"
	"database/sql"
	"errors"

	"call-signaling/internal/calls"
)

// Schema is the table PostgresRepo reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS call_members (
  id             TEXT PRIMARY KEY,
  call_id        TEXT NOT NULL,
  user_id        TEXT NOT NULL,
  user_device_id TEXT NOT NULL,
  room_id        TEXT NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS call_members_call_user ON call_members (call_id, user_id, created_at DESC);
`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Record(ctx context.Context, m calls.Membership) error {
	const q = `
INSERT INTO call_members (id, call_id, user_id, user_device_id, room_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := r.db.ExecContext(ctx, q, m.ID, m.CallID, m.UserID, m.UserDeviceID, m.RoomID, m.CreatedAt)
	return err
}

func (r *PostgresRepo) LatestDevice(ctx context.Context, callID, userID string) (calls.Membership, bool, error) {
	const q = `
SELECT id, call_id, user_id, user_device_id, room_id, created_at
FROM call_members
WHERE call_id = $1 AND user_id = $2
ORDER BY created_at DESC
LIMIT 1
`
	var m calls.Membership
	err := r.db.QueryRowContext(ctx, q, callID, userID).Scan(
		&m.ID,
		&m.CallID,
		&m.UserID,
		&m.UserDeviceID,
		&m.RoomID,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calls.Membership{}, false, nil
		}
		return calls.Membership{}, false, err
	}
	return m, true, nil
}

func (r *PostgresRepo) ListByCall(ctx context.Context, callID string) ([]calls.Membership, error) {
	const q = `
SELECT id, call_id, user_id, user_device_id, room_id, created_at
FROM call_members
WHERE call_id = $1
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]calls.Membership, 0)
	for rows.Next() {
		var m calls.Membership
		if err := rows.Scan(&m.ID, &m.CallID, &m.UserID, &m.UserDeviceID, &m.RoomID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
