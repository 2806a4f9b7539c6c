// Package coordinator runs the call state machine.
//
// Every operation has two phases: commit (status compare-and-set, presence,
// timers) and then notify. Only commit errors reach the caller.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"call-signaling/internal/callhistory"
	"call-signaling/internal/callmembers"
	"call-signaling/internal/calls"
	"call-signaling/internal/directory"
	"call-signaling/internal/metrics"
	"call-signaling/internal/notify"
	"call-signaling/internal/presence"
	"call-signaling/internal/roomguard"
	"call-signaling/internal/scheduler"
	"call-signaling/pkg/logger"

	"github.com/google/uuid"
)

// pendingGrace is how long a presence status may point at a call that is not
// persisted yet before it is treated as orphaned.
const pendingGrace = 10 * time.Second

// Settings are the product-level call switches.
type Settings struct {
	Enabled     bool
	RingTimeout time.Duration
}

type SettingsSource interface {
	CallSettings(ctx context.Context) (Settings, error)
}

// StaticSettings serves fixed settings, typically loaded from config.
type StaticSettings Settings

func (s StaticSettings) CallSettings(context.Context) (Settings, error) { return Settings(s), nil }

type DeviceLocator interface {
	IsOnline(ctx context.Context, deviceID string) (bool, error)
}

type Auditor interface {
	LogCallTransition(ctx context.Context, callID, roomID, actorUserID string, from, to calls.CallStatus) error
}

// Actor is the authenticated user and the device the request came from.
type Actor struct {
	UserID   string
	DeviceID string
}

type Deps struct {
	History   callhistory.Repository
	Members   callmembers.Repository
	Presence  presence.Registry
	Devices   DeviceLocator
	Scheduler scheduler.Scheduler
	Notify    *notify.Dispatcher
	Guard     *roomguard.Guard
	Rooms     directory.Rooms
	Users     directory.Users
	Settings  SettingsSource

	// Optional.
	Audit   Auditor
	Metrics *metrics.Recorder
	Clock   func() time.Time
	NewID   func() string
}

type Coordinator struct {
	history   callhistory.Repository
	members   callmembers.Repository
	presence  presence.Registry
	devices   DeviceLocator
	scheduler scheduler.Scheduler
	notify    *notify.Dispatcher
	guard     *roomguard.Guard
	rooms     directory.Rooms
	users     directory.Users
	settings  SettingsSource
	audit     Auditor
	metrics   *metrics.Recorder
	clock     func() time.Time
	newID     func() string
}

func New(d Deps) (*Coordinator, error) {
	switch {
	case d.History == nil:
		return nil, errors.New("coordinator: history repository required")
	case d.Members == nil:
		return nil, errors.New("coordinator: membership repository required")
	case d.Presence == nil:
		return nil, errors.New("coordinator: presence registry required")
	case d.Devices == nil:
		return nil, errors.New("coordinator: device locator required")
	case d.Scheduler == nil:
		return nil, errors.New("coordinator: scheduler required")
	case d.Notify == nil:
		return nil, errors.New("coordinator: dispatcher required")
	case d.Guard == nil || d.Rooms == nil || d.Users == nil:
		return nil, errors.New("coordinator: room guard and directory required")
	case d.Settings == nil:
		return nil, errors.New("coordinator: settings source required")
	}
	c := &Coordinator{
		history:   d.History,
		members:   d.Members,
		presence:  d.Presence,
		devices:   d.Devices,
		scheduler: d.Scheduler,
		notify:    d.Notify,
		guard:     d.Guard,
		rooms:     d.Rooms,
		users:     d.Users,
		settings:  d.Settings,
		audit:     d.Audit,
		metrics:   d.Metrics,
		clock:     d.Clock,
		newID:     d.NewID,
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c, nil
}

func (c *Coordinator) now() time.Time { return c.clock().UTC() }

func (c *Coordinator) log(ctx context.Context) *slog.Logger {
	return logger.From(ctx).With("component", "coordinator")
}

// transition validates action against the state table and commits it with a
// compare-and-set on the current status.
func (c *Coordinator) transition(ctx context.Context, call calls.Call, action calls.Action, actorID string) (calls.Call, error) {
	to, err := calls.Next(call.Status, action)
	if err != nil {
		return calls.Call{}, err
	}
	updated, err := c.history.Transition(ctx, call.ID, calls.Sources(action), to, c.now())
	if err != nil {
		if errors.Is(err, calls.ErrStaleStatus) {
			return calls.Call{}, fmt.Errorf("%w: call %s changed before %s", calls.ErrStaleStatus, call.ID, action)
		}
		return calls.Call{}, err
	}
	c.metrics.Transition(string(call.Status), string(to))
	if c.audit != nil {
		if err := c.audit.LogCallTransition(ctx, call.ID, call.RoomID, actorID, call.Status, to); err != nil {
			c.log(ctx).Warn("audit append failed", "call_id", call.ID, "err", err)
		}
	}
	return updated, nil
}

// authorizeForCall lets invited guests who are not members of the call's room
// act on the call; everyone else goes through the room guard.
func (c *Coordinator) authorizeForCall(ctx context.Context, call calls.Call, userID string) error {
	_, err := c.guard.Authorize(ctx, call.RoomID, userID)
	if err == nil {
		return nil
	}
	if errors.Is(err, calls.ErrNotRoomMember) && call.HasParticipant(userID) {
		return nil
	}
	return err
}

// release clears the presence status of each user still pointing at callID.
func (c *Coordinator) release(ctx context.Context, callID string, userIDs ...string) {
	for _, u := range userIDs {
		if u == "" {
			continue
		}
		if _, err := c.presence.ClearIf(ctx, u, callID); err != nil {
			c.log(ctx).Warn("presence clear failed", "call_id", callID, "user_id", u, "err", err)
		}
	}
}

// isLive reports whether st still refers to a ringing or running call.
func (c *Coordinator) isLive(ctx context.Context, st calls.GlobalStatus) (bool, error) {
	call, err := c.history.Get(ctx, st.CallID)
	if errors.Is(err, calls.ErrCallNotFound) {
		return c.now().Sub(st.StartedAt) < pendingGrace, nil
	}
	if err != nil {
		return false, err
	}
	return call.Status.IsActive(), nil
}

// activeStatus returns the user's status, clearing it first if it points at a finished call.
func (c *Coordinator) activeStatus(ctx context.Context, userID string) (calls.GlobalStatus, error) {
	st, err := c.presence.Get(ctx, userID)
	if err != nil || st.IsEmpty() {
		return st, err
	}
	live, err := c.isLive(ctx, st)
	if err != nil {
		return calls.GlobalStatus{}, err
	}
	if live {
		return st, nil
	}
	c.log(ctx).Info("clearing stale presence", "user_id", userID, "call_id", st.CallID)
	c.release(ctx, st.CallID, userID)
	return calls.GlobalStatus{}, nil
}

func (c *Coordinator) profile(ctx context.Context, userID string) directory.Profile {
	p, err := c.users.Profile(ctx, userID)
	if err != nil {
		c.log(ctx).Warn("profile lookup failed", "user_id", userID, "err", err)
		return directory.Profile{ID: userID}
	}
	return p
}

func (c *Coordinator) roster(ctx context.Context, userIDs []string) []notify.Participant {
	out := make([]notify.Participant, 0, len(userIDs))
	for _, u := range userIDs {
		out = append(out, notify.Participant{UserID: u, Name: c.profile(ctx, u).FullName})
	}
	return out
}

// GetCall returns a call visible to userID.
func (c *Coordinator) GetCall(ctx context.Context, userID, callID string) (calls.Call, error) {
	call, err := c.history.Get(ctx, callID)
	if err != nil {
		return calls.Call{}, err
	}
	if !call.HasParticipant(userID) {
		return calls.Call{}, calls.ErrNotParticipant
	}
	return call, nil
}

// RingCall is what a reconnecting client needs to redraw an incoming call.
type RingCall struct {
	Call   calls.Call        `json:"call"`
	Room   directory.Room    `json:"room"`
	Caller directory.Profile `json:"caller"`
}

// GetRingCall returns the call currently ringing for userID, if any.
func (c *Coordinator) GetRingCall(ctx context.Context, userID string) (RingCall, bool, error) {
	call, ok, err := c.history.FindRinging(ctx, userID)
	if err != nil || !ok {
		return RingCall{}, false, err
	}
	room, err := c.rooms.Room(ctx, call.RoomID)
	if err != nil {
		return RingCall{}, false, err
	}
	return RingCall{Call: call, Room: room, Caller: c.profile(ctx, call.CallerID)}, true, nil
}
