package directory

import (
	"context"
	"database/sql"
	"errors"

	"call-signaling/internal/calls"
)

// NOTE: PostgresDirectory reads tables owned by the chat service:
// - rooms (id, room_type, title, image)
// - room_members (room_id, user_id, muted, banned, deleted_at)
// - user_bans (owner_id, target_id)
// - users (id, full_name, image)
// - push_tokens (user_id, token, platform)

type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory { return &PostgresDirectory{db: db} }

func (d *PostgresDirectory) Room(ctx context.Context, roomID string) (Room, error) {
	const q = `
SELECT id, room_type, COALESCE(title, ''), COALESCE(image, '')
FROM rooms
WHERE id = $1
`
	var r Room
	if err := d.db.QueryRowContext(ctx, q, roomID).Scan(&r.ID, &r.Type, &r.Title, &r.Image); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, calls.ErrRoomNotFound
		}
		return Room{}, err
	}
	return r, nil
}

func (d *PostgresDirectory) Member(ctx context.Context, roomID, userID string) (Member, bool, error) {
	const q = `
SELECT rm.muted,
       rm.banned OR (r.room_type = $3 AND EXISTS (
         SELECT 1
         FROM room_members p
         JOIN user_bans b
           ON (b.owner_id = p.user_id AND b.target_id = rm.user_id)
           OR (b.owner_id = rm.user_id AND b.target_id = p.user_id)
         WHERE p.room_id = rm.room_id AND p.user_id <> rm.user_id
       ))
FROM room_members rm
JOIN rooms r ON r.id = rm.room_id
WHERE rm.room_id = $1 AND rm.user_id = $2 AND rm.deleted_at IS NULL
`
	m := Member{RoomID: roomID, UserID: userID}
	err := d.db.QueryRowContext(ctx, q, roomID, userID, calls.RoomTypeSingle).Scan(&m.Muted, &m.Banned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Member{}, false, nil
		}
		return Member{}, false, err
	}
	return m, true, nil
}

func (d *PostgresDirectory) Peer(ctx context.Context, roomID, userID string) (string, error) {
	const q = `
SELECT user_id
FROM room_members
WHERE room_id = $1 AND user_id <> $2 AND deleted_at IS NULL
LIMIT 1
`
	var peer string
	if err := d.db.QueryRowContext(ctx, q, roomID, userID).Scan(&peer); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", calls.ErrRoomNotFound
		}
		return "", err
	}
	return peer, nil
}

func (d *PostgresDirectory) Members(ctx context.Context, roomID string) ([]string, error) {
	const q = `
SELECT user_id
FROM room_members
WHERE room_id = $1 AND deleted_at IS NULL
ORDER BY user_id
`
	rows, err := d.db.QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (d *PostgresDirectory) Profile(ctx context.Context, userID string) (Profile, error) {
	const q = `SELECT id, full_name, COALESCE(image, '') FROM users WHERE id = $1`
	var p Profile
	if err := d.db.QueryRowContext(ctx, q, userID).Scan(&p.ID, &p.FullName, &p.Image); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrUserNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

func (d *PostgresDirectory) PushTokens(ctx context.Context, userID string) ([]PushToken, error) {
	const q = `SELECT token, platform FROM push_tokens WHERE user_id = $1`
	rows, err := d.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]PushToken, 0)
	for rows.Next() {
		var t PushToken
		if err := rows.Scan(&t.Token, &t.Platform); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

var ErrUserNotFound = errors.New("directory: user not found")
