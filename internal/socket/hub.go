// Package socket keeps the live websocket connections of this process and
// delivers call events to them by user or by room.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"call-signaling/internal/directory"
	"call-signaling/internal/metrics"
	"call-signaling/internal/notify"
	"call-signaling/internal/presence"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
	maxMessage = 64 << 10
)

// Client events.
const (
	EventPing                = "ping"
	EventPong                = "pong"
	EventCallBackgroundShare = "call_background_share"
	EventError               = "error"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Options struct {
	Rooms   directory.Rooms
	Devices presence.DeviceTracker
	Metrics *metrics.Recorder
	Logger  *slog.Logger
	// Relay receives client events that must reach other sockets. Nil means this hub.
	Relay notify.Emitter
	// AllowedOrigins restricts browser origins. When empty, any origin is
	// accepted unless SameOriginOnly is set.
	AllowedOrigins []string
	SameOriginOnly bool

	// PingPeriod and PongWait default to 54s and 60s.
	PingPeriod time.Duration
	PongWait   time.Duration
}

type Hub struct {
	rooms   directory.Rooms
	devices presence.DeviceTracker
	metrics *metrics.Recorder
	log     *slog.Logger
	relay   notify.Emitter

	pingPeriod time.Duration
	pongWait   time.Duration

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	users map[string]map[*client]struct{}
}

func NewHub(o Options) *Hub {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		rooms:   o.Rooms,
		devices: o.Devices,
		metrics: o.Metrics,
		log:     log.With("component", "socket"),
		relay:   o.Relay,
		users:   map[string]map[*client]struct{}{},

		pingPeriod: o.PingPeriod,
		pongWait:   o.PongWait,
	}
	if h.pingPeriod <= 0 {
		h.pingPeriod = pingPeriod
	}
	if h.pongWait <= h.pingPeriod {
		h.pongWait = h.pingPeriod * 10 / 9
	}
	origins := slices.Clone(o.AllowedOrigins)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			return slices.Contains(origins, strings.TrimSuffix(r.Header.Get("Origin"), "/"))
		},
	}
	if len(origins) == 0 && o.SameOriginOnly {
		// gorilla's default check compares Origin with Host.
		h.upgrader.CheckOrigin = nil
	}
	return h
}

// SetRelay routes client-originated events through em, usually a cross-process relay.
func (h *Hub) SetRelay(em notify.Emitter) { h.relay = em }

// EmitToUser writes the event to every socket of userID on this process.
func (h *Hub) EmitToUser(ctx context.Context, userID, event string, payload any) error {
	frame, err := encode(event, payload)
	if err != nil {
		return err
	}
	h.deliver(userID, frame)
	return nil
}

// EmitToRoom writes the event to every member of roomID connected to this process.
func (h *Hub) EmitToRoom(ctx context.Context, roomID, event string, payload any) error {
	if h.rooms == nil {
		return errors.New("socket: rooms directory not configured")
	}
	members, err := h.rooms.Members(ctx, roomID)
	if err != nil {
		return fmt.Errorf("socket: room members: %w", err)
	}
	frame, err := encode(event, payload)
	if err != nil {
		return err
	}
	for _, u := range members {
		h.deliver(u, frame)
	}
	return nil
}

// DeliverFrame writes an already encoded frame to the local sockets of userID.
func (h *Hub) DeliverFrame(userID string, frame []byte) { h.deliver(userID, frame) }

// Connected reports how many sockets userID holds on this process.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("socket: encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

func (h *Hub) deliver(userID string, frame []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(frame) {
			h.log.Warn("socket send buffer full, dropping connection", "user_id", userID, "device_id", c.deviceID)
			c.close()
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	set, ok := h.users[c.userID]
	if !ok {
		set = map[*client]struct{}{}
		h.users[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.SocketOpened()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.users[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.userID)
		}
	}
	h.mu.Unlock()
	h.metrics.SocketClosed()
}

// Serve upgrades the request and pumps the connection until it closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID, deviceID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("socket: upgrade: %w", err)
	}
	c := &client{
		hub:      h,
		conn:     conn,
		userID:   userID,
		deviceID: deviceID,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
	ctx := context.WithoutCancel(r.Context())

	h.register(c)
	if h.devices != nil && deviceID != "" {
		if err := h.devices.MarkOnline(ctx, userID, deviceID); err != nil {
			h.log.Warn("device online mark failed", "user_id", userID, "device_id", deviceID, "err", err)
		}
	}
	h.log.Info("socket connected", "user_id", userID, "device_id", deviceID)

	go c.writePump()
	c.readPump(ctx)

	h.unregister(c)
	if h.devices != nil && deviceID != "" {
		if err := h.devices.MarkOffline(ctx, userID, deviceID); err != nil {
			h.log.Warn("device offline mark failed", "user_id", userID, "device_id", deviceID, "err", err)
		}
	}
	h.log.Info("socket disconnected", "user_id", userID, "device_id", deviceID)
	return nil
}

// handle reacts to one inbound client frame.
func (h *Hub) handle(ctx context.Context, c *client, in Envelope) {
	switch in.Event {
	case EventPing:
		h.touch(ctx, c)
		if frame, err := encode(EventPong, map[string]int64{"at": time.Now().UnixMilli()}); err == nil {
			c.enqueue(frame)
		}
	case EventCallBackgroundShare:
		h.relayBackgroundShare(ctx, c, in.Data)
	default:
		c.sendError("unknown event " + in.Event)
	}
}

// touch refreshes the device presence TTL. Both app-level pings and
// protocol pongs count as heartbeats.
func (h *Hub) touch(ctx context.Context, c *client) {
	if h.devices == nil || c.deviceID == "" {
		return
	}
	if err := h.devices.Touch(ctx, c.deviceID); err != nil {
		h.log.Warn("device touch failed", "device_id", c.deviceID, "err", err)
	}
}

type backgroundShare struct {
	RoomID string          `json:"roomId"`
	CallID string          `json:"callId"`
	Data   json.RawMessage `json:"data"`
}

// relayBackgroundShare forwards a participant's background change to the room.
func (h *Hub) relayBackgroundShare(ctx context.Context, c *client, raw json.RawMessage) {
	var msg backgroundShare
	if err := json.Unmarshal(raw, &msg); err != nil || msg.RoomID == "" {
		c.sendError("invalid call_background_share payload")
		return
	}
	if h.rooms == nil {
		return
	}
	m, ok, err := h.rooms.Member(ctx, msg.RoomID, c.userID)
	if err != nil || !ok || m.Banned {
		c.sendError("not allowed in room")
		return
	}
	out := map[string]any{
		"roomId": msg.RoomID,
		"callId": msg.CallID,
		"userId": c.userID,
		"data":   msg.Data,
	}
	relay := h.relay
	if relay == nil {
		relay = h
	}
	if err := relay.EmitToRoom(ctx, msg.RoomID, EventCallBackgroundShare, out); err != nil {
		h.log.Warn("background share relay failed", "room_id", msg.RoomID, "err", err)
	}
}
