package messages

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
)

type Repository interface {
	Append(ctx context.Context, m Message) error
	ListByRoom(ctx context.Context, roomID string, limit int) ([]Message, error)
}

// Schema is the table PostgresRepo reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS call_messages (
  id           TEXT PRIMARY KEY,
  room_id      TEXT NOT NULL,
  sender_id    TEXT NOT NULL,
  message_type TEXT NOT NULL,
  content      TEXT NOT NULL,
  attachment   JSONB NULL,
  created_at   TIMESTAMPTZ NOT NULL
);
`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, m Message) error {
	var att []byte
	if m.Attachment != nil {
		b, err := json.Marshal(m.Attachment)
		if err != nil {
			return err
		}
		att = b
	}
	const q = `
INSERT INTO call_messages (id, room_id, sender_id, message_type, content, attachment, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q, m.ID, m.RoomID, m.SenderID, m.Type, m.Content, att, m.CreatedAt)
	return err
}

func (r *PostgresRepo) ListByRoom(ctx context.Context, roomID string, limit int) ([]Message, error) {
	const q = `
SELECT id, room_id, sender_id, message_type, content, attachment, created_at
FROM call_messages
WHERE room_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var (
			m   Message
			att []byte
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Type, &m.Content, &att, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(att) > 0 {
			m.Attachment = &CallAttachment{}
			if err := json.Unmarshal(att, m.Attachment); err != nil {
				return nil, err
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	msgs []Message
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

// ListByRoom returns newest first.
func (r *MemoryRepo) ListByRoom(ctx context.Context, roomID string, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, 0)
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].RoomID != roomID {
			continue
		}
		out = append(out, r.msgs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
