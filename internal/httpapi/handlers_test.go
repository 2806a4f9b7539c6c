package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"call-signaling/internal/audit"
	"call-signaling/internal/auth"
	"call-signaling/internal/callhistory"
	"call-signaling/internal/callmembers"
	"call-signaling/internal/calls"
	"call-signaling/internal/config"
	"call-signaling/internal/coordinator"
	"call-signaling/internal/directory"
	"call-signaling/internal/media"
	"call-signaling/internal/messages"
	"call-signaling/internal/notify"
	"call-signaling/internal/presence"
	"call-signaling/internal/rbac"
	"call-signaling/internal/reporting"
	"call-signaling/internal/roomguard"
	"call-signaling/internal/scheduler"

	"github.com/gin-gonic/gin"
)

type nopEmitter struct{}

func (nopEmitter) EmitToUser(context.Context, string, string, any) error { return nil }
func (nopEmitter) EmitToRoom(context.Context, string, string, any) error { return nil }

type testServer struct {
	router   *gin.Engine
	auth     *auth.Manager
	devices  *presence.MemoryDevices
	registry *presence.MemoryRegistry
	audit    *audit.MemoryRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := directory.NewMemory()
	dir.AddProfile(directory.Profile{ID: "a", FullName: "Ada"})
	dir.AddProfile(directory.Profile{ID: "b", FullName: "Bo"})
	dir.AddRoom(directory.Room{ID: "r1", Type: calls.RoomTypeSingle}, "a", "b")
	dir.AddRoom(directory.Room{ID: "r2", Type: calls.RoomTypeSingle}, "b", "c")

	history := callhistory.NewMemoryRepo()
	registry := presence.NewMemoryRegistry()
	devices := presence.NewMemoryDevices()
	sched := scheduler.NewTimerScheduler(nil, time.Second)
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	dispatch := notify.NewDispatcher(notify.Options{
		Emitter:  nopEmitter{},
		Rooms:    dir,
		Messages: messages.NewService(messages.NewMemoryRepo()),
	})
	guard := roomguard.New(dir)
	auditRepo := audit.NewMemoryRepo()
	coord, err := coordinator.New(coordinator.Deps{
		History:   history,
		Members:   callmembers.NewMemoryRepo(),
		Presence:  registry,
		Devices:   devices,
		Scheduler: sched,
		Notify:    dispatch,
		Guard:     guard,
		Rooms:     dir,
		Users:     dir,
		Settings:  coordinator.StaticSettings{Enabled: true, RingTimeout: time.Minute},
	})
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	mgr, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("auth.NewManager: %v", err)
	}
	issuer, err := media.NewIssuer("media-secret", time.Hour)
	if err != nil {
		t.Fatalf("media.NewIssuer: %v", err)
	}

	h := Handlers{
		Auth:     mgr,
		Calls:    coord,
		History:  callhistory.NewService(history),
		Media:    media.NewService(issuer, coord, guard),
		Reports:  reporting.NewService(history),
		Presence: registry,
		Audit:    audit.NewService(auditRepo),
	}

	r := gin.New()
	r.POST("/v1/auth/refresh", h.Refresh)
	v1 := r.Group("/v1", auth.RequireAccessToken(mgr), rbac.RequireUser())
	v1.POST("/calls", h.CreateCall)
	v1.GET("/calls/ring", h.GetRingCall)
	v1.GET("/calls/history", h.GetHistory)
	v1.DELETE("/calls/history", h.DeleteAllHistory)
	v1.GET("/calls/summary", h.CallsSummary)
	v1.GET("/calls/:call_id", h.GetCall)
	v1.POST("/calls/:call_id/accept", h.AcceptCall)
	v1.POST("/calls/:call_id/reject", h.RejectCall)
	v1.POST("/calls/:call_id/end-v2", h.EndCallV2)
	v1.GET("/calls/:call_id/media", h.CallMediaAccess)
	admin := v1.Group("/admin", rbac.RequireAnyRole(rbac.RoleAdmin))
	admin.GET("/presence/:user_id", h.GetPresence)
	admin.DELETE("/presence/:user_id", h.ClearPresence)

	return &testServer{router: r, auth: mgr, devices: devices, registry: registry, audit: auditRepo}
}

func (s *testServer) do(t *testing.T, method, path, userID, deviceID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req.ContentLength = 0
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		pair, err := s.auth.IssuePair(time.Now(), userID, deviceID, role)
		if err != nil {
			t.Fatalf("IssuePair: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func (s *testServer) createCall(t *testing.T) string {
	t.Helper()
	if err := s.devices.MarkOnline(context.Background(), "a", "d-a"); err != nil {
		t.Fatalf("MarkOnline: %v", err)
	}
	w := s.do(t, http.MethodPost, "/v1/calls", "a", "d-a", rbac.RoleUser, gin.H{"roomId": "r1"})
	if w.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		CallID string `json:"callId"`
	}
	decode(t, w, &resp)
	if resp.CallID == "" {
		t.Fatalf("expected call id")
	}
	return resp.CallID
}

func TestCallFlow_CreateAcceptEnd(t *testing.T) {
	s := newTestServer(t)
	callID := s.createCall(t)

	w := s.do(t, http.MethodGet, "/v1/calls/ring", "b", "d-b", rbac.RoleUser, nil)
	var ring struct {
		RingCall *coordinator.RingCall `json:"ringCall"`
	}
	decode(t, w, &ring)
	if ring.RingCall == nil || ring.RingCall.Call.ID != callID || ring.RingCall.Caller.FullName != "Ada" {
		t.Fatalf("unexpected ring call: %s", w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/v1/calls/"+callID+"/accept", "b", "d-b", rbac.RoleUser, gin.H{"peerAnswer": gin.H{"sdp": "x"}})
	if w.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/v1/calls/"+callID+"/media", "b", "d-b", rbac.RoleUser, nil)
	var acc media.Access
	decode(t, w, &acc)
	if w.Code != http.StatusOK || acc.Channel != callID || acc.Token == "" {
		t.Fatalf("media: unexpected %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/v1/calls/"+callID+"/end-v2", "a", "d-a", rbac.RoleUser, nil)
	var end struct {
		Action coordinator.EndAction `json:"action"`
	}
	decode(t, w, &end)
	if w.Code != http.StatusOK || end.Action != coordinator.EndActionEnded {
		t.Fatalf("end-v2: unexpected %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/v1/calls/history", "b", "d-b", rbac.RoleUser, nil)
	var hist struct {
		Calls []calls.Call `json:"calls"`
	}
	decode(t, w, &hist)
	if len(hist.Calls) != 1 || hist.Calls[0].Status != calls.CallStatusFinished {
		t.Fatalf("history: unexpected %s", w.Body.String())
	}
}

func TestErrorsMapToStatusCodes(t *testing.T) {
	s := newTestServer(t)
	callID := s.createCall(t)

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{"unknown call", http.MethodPost, "/v1/calls/nope/accept", "b", nil, http.StatusNotFound},
		{"not a room member", http.MethodPost, "/v1/calls", "c", gin.H{"roomId": "r1"}, http.StatusForbidden},
		{"caller cannot reject", http.MethodPost, "/v1/calls/" + callID + "/reject", "a", nil, http.StatusConflict},
		{"peer busy", http.MethodPost, "/v1/calls", "c", gin.H{"roomId": "r2"}, http.StatusConflict},
		{"bad history cursor", http.MethodGet, "/v1/calls/history?before=yesterday", "b", nil, http.StatusBadRequest},
		{"not a participant", http.MethodGet, "/v1/calls/" + callID, "c", nil, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, tc.method, tc.path, tc.user, "d-"+tc.user, rbac.RoleUser, tc.body)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestAcceptFailsWhenCallerDeviceOffline(t *testing.T) {
	s := newTestServer(t)
	callID := s.createCall(t)
	if err := s.devices.MarkOffline(context.Background(), "a", "d-a"); err != nil {
		t.Fatalf("MarkOffline: %v", err)
	}
	w := s.do(t, http.MethodPost, "/v1/calls/"+callID+"/accept", "b", "d-b", rbac.RoleUser, nil)
	if w.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequiresAccessToken(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/v1/calls/ring", "", "", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRefreshIssuesNewPair(t *testing.T) {
	s := newTestServer(t)
	pair, err := s.auth.IssuePair(time.Now(), "a", "d-a", rbac.RoleUser)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	w := s.do(t, http.MethodPost, "/v1/auth/refresh", "", "", "", gin.H{"refreshToken": pair.RefreshToken})
	var out auth.TokenPair
	decode(t, w, &out)
	if w.Code != http.StatusOK || out.AccessToken == "" {
		t.Fatalf("unexpected refresh response %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/v1/auth/refresh", "", "", "", gin.H{"refreshToken": pair.AccessToken})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected access token to be refused, got %d", w.Code)
	}
}

func TestAdminClearsPresenceAndAudits(t *testing.T) {
	s := newTestServer(t)
	callID := s.createCall(t)

	w := s.do(t, http.MethodGet, "/v1/admin/presence/b", "a", "d-a", rbac.RoleUser, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("plain user: expected 403, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/v1/admin/presence/b", "ops", "", rbac.RoleAdmin, nil)
	var got struct {
		InCall bool               `json:"inCall"`
		Status calls.GlobalStatus `json:"status"`
	}
	decode(t, w, &got)
	if !got.InCall || got.Status.CallID != callID {
		t.Fatalf("unexpected presence %s", w.Body.String())
	}

	w = s.do(t, http.MethodDelete, "/v1/admin/presence/b", "ops", "", rbac.RoleAdmin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", w.Code)
	}
	st, _ := s.registry.Get(context.Background(), "b")
	if !st.IsEmpty() {
		t.Fatalf("expected presence cleared, got %+v", st)
	}
	events := s.audit.Events()
	last := events[len(events)-1]
	if last.Type != audit.EventTypeAdminAction || last.TargetUserID != "b" || last.ActorUserID != "ops" {
		t.Fatalf("unexpected audit event %+v", last)
	}
}

func TestStatusFor(t *testing.T) {
	wrapped := fmt.Errorf("history: %w", calls.ErrInvalidArgument)
	for err, want := range map[error]int{
		calls.ErrBanned:             http.StatusForbidden,
		calls.ErrCallingDisabled:    http.StatusConflict,
		calls.ErrPeerDeviceOffline:  http.StatusGone,
		calls.ErrRoomNotFound:       http.StatusNotFound,
		wrapped:                     http.StatusBadRequest,
		reporting.ErrInvalidRequest: http.StatusBadRequest,
		context.DeadlineExceeded:    http.StatusInternalServerError,
	} {
		if got := statusFor(err); got != want {
			t.Errorf("statusFor(%v) = %d, want %d", err, got, want)
		}
	}
}
