// Package notify fans call events out to sockets, push providers and the room feed.
//
// Every method is best-effort: failures are logged and counted, never returned,
// because the call transition they describe has already been committed.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"call-signaling/internal/directory"
	"call-signaling/internal/messages"
	"call-signaling/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// Emitter delivers a JSON event to every live socket of a user, or of every member of a room.
type Emitter interface {
	EmitToUser(ctx context.Context, userID, event string, payload any) error
	EmitToRoom(ctx context.Context, roomID, event string, payload any) error
}

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Push is one notification for one device token.
type Push struct {
	Title    string
	Body     string
	Data     map[string]string
	Priority Priority
	// DataOnly pushes carry no visible notification; the client renders its own ringing UI.
	DataOnly bool
}

type PushSender interface {
	Send(ctx context.Context, token directory.PushToken, p Push) error
}

type Dispatcher struct {
	emitter  Emitter
	push     PushSender
	tokens   directory.PushTokens
	rooms    directory.Rooms
	messages *messages.Service
	metrics  *metrics.Recorder
	log      *slog.Logger

	// pushes run detached from the request; Flush waits for them.
	inflight sync.WaitGroup
}

type Options struct {
	Emitter  Emitter
	Push     PushSender // nil disables push
	Tokens   directory.PushTokens
	Rooms    directory.Rooms
	Messages *messages.Service
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
}

func NewDispatcher(o Options) *Dispatcher {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		emitter:  o.Emitter,
		push:     o.Push,
		tokens:   o.Tokens,
		rooms:    o.Rooms,
		messages: o.Messages,
		metrics:  o.Metrics,
		log:      log.With("component", "notify"),
	}
}

func (d *Dispatcher) ToUser(ctx context.Context, userID, event string, payload any) {
	if d.emitter == nil {
		return
	}
	if err := d.emitter.EmitToUser(ctx, userID, event, payload); err != nil {
		d.metrics.NotifyFailed("socket")
		d.log.Warn("socket emit failed", "event", event, "user_id", userID, "err", err)
	}
}

func (d *Dispatcher) ToUsers(ctx context.Context, userIDs []string, event string, payload any) {
	for _, u := range userIDs {
		d.ToUser(ctx, u, event, payload)
	}
}

func (d *Dispatcher) ToRoom(ctx context.Context, roomID, event string, payload any) {
	if d.emitter == nil {
		return
	}
	if err := d.emitter.EmitToRoom(ctx, roomID, event, payload); err != nil {
		d.metrics.NotifyFailed("socket")
		d.log.Warn("socket emit failed", "event", event, "room_id", roomID, "err", err)
	}
}

// RingPush sends a high priority data push so the device shows its incoming call screen.
func (d *Dispatcher) RingPush(ctx context.Context, userID string, data PushCallData) {
	d.sendPush(ctx, userID, Push{
		Title:    data.CallerName,
		Body:     "Incoming call",
		Data:     data.Data(),
		Priority: PriorityHigh,
		DataOnly: true,
	})
}

// ChatPush sends a visible notification about a room message unless the user muted the room.
func (d *Dispatcher) ChatPush(ctx context.Context, roomID, userID, title, body string) {
	if d.rooms != nil {
		m, ok, err := d.rooms.Member(ctx, roomID, userID)
		if err != nil {
			d.log.Warn("mute lookup failed", "room_id", roomID, "user_id", userID, "err", err)
		}
		if ok && m.Muted {
			return
		}
	}
	d.sendPush(ctx, userID, Push{
		Title:    title,
		Body:     body,
		Data:     map[string]string{"type": "message", "roomId": roomID},
		Priority: PriorityNormal,
	})
}

// PostToRoom appends a call message to the room feed and announces it to the room.
func (d *Dispatcher) PostToRoom(ctx context.Context, m messages.Message) {
	posted, ok := d.post(ctx, m)
	if ok {
		d.ToRoom(ctx, posted.RoomID, EventNewMessage, posted)
	}
}

// PostToUser appends a call message to the room feed and announces it to one user only.
func (d *Dispatcher) PostToUser(ctx context.Context, userID string, m messages.Message) {
	posted, ok := d.post(ctx, m)
	if ok {
		d.ToUser(ctx, userID, EventNewMessage, posted)
	}
}

// Flush waits for detached pushes. Used on shutdown and in tests.
func (d *Dispatcher) Flush() {
	d.inflight.Wait()
}

func (d *Dispatcher) post(ctx context.Context, m messages.Message) (messages.Message, bool) {
	if d.messages == nil {
		return messages.Message{}, false
	}
	posted, err := d.messages.Post(ctx, m)
	if err != nil {
		d.metrics.NotifyFailed("message")
		d.log.Warn("call message post failed", "room_id", m.RoomID, "err", err)
		return messages.Message{}, false
	}
	return posted, true
}

func (d *Dispatcher) sendPush(ctx context.Context, userID string, p Push) {
	if d.push == nil || d.tokens == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		tokens, err := d.tokens.PushTokens(bg, userID)
		if err != nil {
			d.metrics.NotifyFailed("push")
			d.log.Warn("push token lookup failed", "user_id", userID, "err", err)
			return
		}

		var g errgroup.Group
		g.SetLimit(4)
		for _, tok := range tokens {
			g.Go(func() error {
				err := d.push.Send(bg, tok, p)
				d.metrics.PushSent(tok.Platform, err == nil)
				if err != nil {
					d.metrics.NotifyFailed("push")
					d.log.Warn("push send failed", "user_id", userID, "platform", tok.Platform, "err", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}
