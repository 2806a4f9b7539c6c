package directory

import (
	"context"
	"slices"
	"sync"

	"call-signaling/internal/calls"
)

// Memory is an in-memory Directory for tests and local runs.
type Memory struct {
	mu       sync.RWMutex
	rooms    map[string]Room
	members  map[string][]Member // room id -> members
	profiles map[string]Profile
	tokens   map[string][]PushToken
}

func NewMemory() *Memory {
	return &Memory{
		rooms:    map[string]Room{},
		members:  map[string][]Member{},
		profiles: map[string]Profile{},
		tokens:   map[string][]PushToken{},
	}
}

// AddRoom registers a room and its members, replacing any previous definition.
func (m *Memory) AddRoom(r Room, userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[r.ID] = r
	ms := make([]Member, 0, len(userIDs))
	for _, u := range userIDs {
		ms = append(ms, Member{RoomID: r.ID, UserID: u})
	}
	m.members[r.ID] = ms
}

func (m *Memory) AddProfile(p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
}

func (m *Memory) AddPushToken(userID string, t PushToken) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = append(m.tokens[userID], t)
}

func (m *Memory) SetBanned(roomID, userID string, banned bool) {
	m.update(roomID, userID, func(mb *Member) { mb.Banned = banned })
}

func (m *Memory) SetMuted(roomID, userID string, muted bool) {
	m.update(roomID, userID, func(mb *Member) { mb.Muted = muted })
}

func (m *Memory) update(roomID, userID string, fn func(*Member)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.members[roomID] {
		if m.members[roomID][i].UserID == userID {
			fn(&m.members[roomID][i])
		}
	}
}

func (m *Memory) Room(ctx context.Context, roomID string) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return Room{}, calls.ErrRoomNotFound
	}
	return r, nil
}

func (m *Memory) Member(ctx context.Context, roomID, userID string) (Member, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mb := range m.members[roomID] {
		if mb.UserID == userID {
			return mb, true, nil
		}
	}
	return Member{}, false, nil
}

func (m *Memory) Peer(ctx context.Context, roomID, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mb := range m.members[roomID] {
		if mb.UserID != userID {
			return mb.UserID, nil
		}
	}
	return "", calls.ErrRoomNotFound
}

func (m *Memory) Members(ctx context.Context, roomID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.rooms[roomID]; !ok {
		return nil, calls.ErrRoomNotFound
	}
	out := make([]string, 0, len(m.members[roomID]))
	for _, mb := range m.members[roomID] {
		out = append(out, mb.UserID)
	}
	return out, nil
}

func (m *Memory) Profile(ctx context.Context, userID string) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return Profile{}, ErrUserNotFound
	}
	return p, nil
}

func (m *Memory) PushTokens(ctx context.Context, userID string) ([]PushToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.tokens[userID]), nil
}
