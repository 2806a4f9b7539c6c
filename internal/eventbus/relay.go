// Package eventbus relays socket events between processes over NATS so a
// user connected to another instance still receives them.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"call-signaling/internal/notify"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	scopeUser = "user"
	scopeRoom = "room"
)

// envelope is the wire form of one relayed event.
type envelope struct {
	Origin string          `json:"origin"`
	Scope  string          `json:"scope"`
	Target string          `json:"target"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// Connect dials NATS with reconnect handling suited to a long-lived relay.
func Connect(url, name string, log *slog.Logger) (*nats.Conn, error) {
	if log == nil {
		log = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect nats: %w", err)
	}
	return nc, nil
}

// Relay delivers events locally and publishes them for every other instance.
// It satisfies notify.Emitter.
type Relay struct {
	nc      *nats.Conn
	subject string
	origin  string
	local   notify.Emitter
	log     *slog.Logger
	sub     *nats.Subscription
}

func NewRelay(nc *nats.Conn, subject string, local notify.Emitter, log *slog.Logger) (*Relay, error) {
	if local == nil {
		return nil, errors.New("eventbus: local emitter required")
	}
	if subject == "" {
		return nil, errors.New("eventbus: subject required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		nc:      nc,
		subject: subject,
		origin:  uuid.NewString(),
		local:   local,
		log:     log.With("component", "eventbus"),
	}, nil
}

func (r *Relay) EmitToUser(ctx context.Context, userID, event string, payload any) error {
	if err := r.local.EmitToUser(ctx, userID, event, payload); err != nil {
		return err
	}
	return r.publish(scopeUser, userID, event, payload)
}

func (r *Relay) EmitToRoom(ctx context.Context, roomID, event string, payload any) error {
	if err := r.local.EmitToRoom(ctx, roomID, event, payload); err != nil {
		return err
	}
	return r.publish(scopeRoom, roomID, event, payload)
}

func (r *Relay) publish(scope, target, event string, payload any) error {
	if r.nc == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("eventbus: encode %s: %w", event, err)
	}
	body, err := json.Marshal(envelope{Origin: r.origin, Scope: scope, Target: target, Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("eventbus: encode envelope: %w", err)
	}
	if err := r.nc.Publish(r.subject, body); err != nil {
		return fmt.Errorf("eventbus: publish: %w", err)
	}
	return nil
}

// Start subscribes to events published by other instances.
func (r *Relay) Start() error {
	if r.nc == nil {
		return errors.New("eventbus: no nats connection")
	}
	sub, err := r.nc.Subscribe(r.subject, r.handle)
	if err != nil {
		return fmt.Errorf("eventbus: subscribe %s: %w", r.subject, err)
	}
	r.sub = sub
	r.log.Info("relay subscribed", "subject", r.subject, "origin", r.origin)
	return nil
}

func (r *Relay) Close() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
}

func (r *Relay) handle(msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		r.log.Warn("relay message dropped", "err", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	ctx := context.Background()
	var err error
	switch env.Scope {
	case scopeUser:
		err = r.local.EmitToUser(ctx, env.Target, env.Event, env.Data)
	case scopeRoom:
		err = r.local.EmitToRoom(ctx, env.Target, env.Event, env.Data)
	default:
		r.log.Warn("relay message with unknown scope", "scope", env.Scope)
		return
	}
	if err != nil {
		r.log.Warn("relay delivery failed", "event", env.Event, "target", env.Target, "err", err)
	}
}
