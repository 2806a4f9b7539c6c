package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"call-signaling/internal/calls"
	"call-signaling/internal/directory"
	"call-signaling/internal/presence"

	"github.com/gorilla/websocket"
)

func newTestHub(t *testing.T) (*Hub, *presence.MemoryDevices, *httptest.Server) {
	t.Helper()
	dir := directory.NewMemory()
	dir.AddRoom(directory.Room{ID: "r1", Type: calls.RoomTypeGroup}, "u1", "u2")
	devices := presence.NewMemoryDevices()
	hub := NewHub(Options{Rooms: dir, Devices: devices})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("user"), r.URL.Query().Get("device"))
	}))
	t.Cleanup(srv.Close)
	return hub, devices, srv
}

func dial(t *testing.T, srv *httptest.Server, user, device string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user + "&device=" + device
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func TestHub_EmitToUserReachesEverySocket(t *testing.T) {
	hub, devices, srv := newTestHub(t)
	c1 := dial(t, srv, "u1", "d1")
	c2 := dial(t, srv, "u1", "d2")
	waitFor(t, func() bool { return hub.Connected("u1") == 2 })

	waitFor(t, func() bool {
		ok, _ := devices.IsOnline(context.Background(), "d2")
		return ok
	})
	if err := hub.EmitToUser(context.Background(), "u1", "onNewCall", map[string]string{"callId": "c1"}); err != nil {
		t.Fatalf("EmitToUser: %v", err)
	}
	for _, c := range []*websocket.Conn{c1, c2} {
		env := readEnvelope(t, c)
		if env.Event != "onNewCall" || !strings.Contains(string(env.Data), `"c1"`) {
			t.Fatalf("unexpected envelope %+v", env)
		}
	}
}

func TestHub_EmitToRoomUsesMembership(t *testing.T) {
	hub, _, srv := newTestHub(t)
	c2 := dial(t, srv, "u2", "d2")
	outsider := dial(t, srv, "u3", "d3")
	waitFor(t, func() bool { return hub.Connected("u2") == 1 && hub.Connected("u3") == 1 })

	if err := hub.EmitToRoom(context.Background(), "r1", "onCallEnded", map[string]string{"callId": "c1"}); err != nil {
		t.Fatalf("EmitToRoom: %v", err)
	}
	if env := readEnvelope(t, c2); env.Event != "onCallEnded" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	_ = outsider.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := outsider.ReadMessage(); err == nil {
		t.Fatalf("non-member must not receive room events")
	}
}

func TestHub_PingPongAndBackgroundShare(t *testing.T) {
	hub, _, srv := newTestHub(t)
	c1 := dial(t, srv, "u1", "d1")
	c2 := dial(t, srv, "u2", "d2")
	waitFor(t, func() bool { return hub.Connected("u1") == 1 && hub.Connected("u2") == 1 })

	if err := c1.WriteJSON(Envelope{Event: EventPing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if env := readEnvelope(t, c1); env.Event != EventPong {
		t.Fatalf("expected pong, got %+v", env)
	}

	share, _ := json.Marshal(map[string]any{"roomId": "r1", "callId": "c1", "data": map[string]string{"bg": "blur"}})
	if err := c1.WriteJSON(Envelope{Event: EventCallBackgroundShare, Data: share}); err != nil {
		t.Fatalf("write share: %v", err)
	}
	env := readEnvelope(t, c2)
	if env.Event != EventCallBackgroundShare || !strings.Contains(string(env.Data), `"userId":"u1"`) {
		t.Fatalf("unexpected relay %+v", env)
	}
}

func TestHub_DisconnectMarksDeviceOffline(t *testing.T) {
	hub, devices, srv := newTestHub(t)
	c := dial(t, srv, "u1", "d1")
	waitFor(t, func() bool { return hub.Connected("u1") == 1 })

	_ = c.Close()
	waitFor(t, func() bool {
		ok, _ := devices.IsOnline(context.Background(), "d1")
		return !ok && hub.Connected("u1") == 0
	})
}

func TestHub_ProtocolPongsKeepDeviceOnline(t *testing.T) {
	devices := presence.NewMemoryDevicesTTL(150 * time.Millisecond)
	hub := NewHub(Options{
		Rooms:      directory.NewMemory(),
		Devices:    devices,
		PingPeriod: 30 * time.Millisecond,
		PongWait:   time.Second,
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("user"), r.URL.Query().Get("device"))
	}))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "u1", "d1")
	// Reading lets the default ping handler answer with pongs; no app-level ping is sent.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	waitFor(t, func() bool { return hub.Connected("u1") == 1 })

	time.Sleep(500 * time.Millisecond)
	if ok, _ := devices.IsOnline(context.Background(), "d1"); !ok {
		t.Fatalf("expected device kept online by pongs")
	}
}
