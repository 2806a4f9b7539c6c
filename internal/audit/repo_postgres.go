package audit

import (
	"context"
	"database/sql"
)

// Schema is the append-only audit table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
  id             UUID PRIMARY KEY,
  type           TEXT NOT NULL,
  actor_user_id  TEXT,
  actor_role     TEXT,
  ip_address     TEXT,
  call_id        TEXT,
  room_id        TEXT,
  from_status    TEXT,
  to_status      TEXT,
  target_user_id TEXT,
  message        TEXT,
  metadata       JSONB,
  created_at     TIMESTAMPTZ NOT NULL
);
`

// PostgresRepo only ever inserts.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_events
  (id, type, actor_user_id, actor_role, ip_address, call_id, room_id, from_status, to_status, target_user_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, '')::jsonb, $13)`,
		e.ID, e.Type, e.ActorUserID, e.ActorRole, e.IPAddress, e.CallID, e.RoomID,
		e.FromStatus, e.ToStatus, e.TargetUserID, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
