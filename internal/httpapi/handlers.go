package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"call-signaling/internal/audit"
	"call-signaling/internal/auth"
	"call-signaling/internal/callhistory"
	"call-signaling/internal/calls"
	"call-signaling/internal/coordinator"
	"call-signaling/internal/media"
	"call-signaling/internal/presence"
	"call-signaling/internal/rbac"
	"call-signaling/internal/reporting"
	"call-signaling/internal/socket"
	"call-signaling/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Calls    *coordinator.Coordinator
	History  *callhistory.Service
	Media    *media.Service
	Reports  *reporting.Service
	Presence presence.Registry
	Audit    *audit.Service
	Hub      *socket.Hub
}

// summaryWindow is the default range of the calls summary.
const summaryWindow = 30 * 24 * time.Hour

func actorFrom(c *gin.Context) (coordinator.Actor, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil || uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return coordinator.Actor{}, false
	}
	return coordinator.Actor{UserID: uid, DeviceID: auth.DeviceID(c.Request.Context())}, true
}

// --- Auth ---

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges a refresh token for a new pair. Refreshed sessions carry the plain user role.
func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refreshToken required"})
		return
	}
	pair, err := h.Auth.Refresh(req.RefreshToken, rbac.RoleUser, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// --- Calls ---

type createCallRequest struct {
	RoomID       string             `json:"roomId"`
	WithVideo    bool               `json:"withVideo"`
	MeetPlatform calls.MeetPlatform `json:"meetPlatform"`
}

func (h Handlers) CreateCall(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	callID, err := h.Calls.CreateCall(c.Request.Context(), actor, coordinator.CreateRequest{
		RoomID:    req.RoomID,
		WithVideo: req.WithVideo,
		Platform:  req.MeetPlatform,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"callId": callID})
}

type acceptCallRequest struct {
	PeerAnswer json.RawMessage `json:"peerAnswer"`
}

func (h Handlers) AcceptCall(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req acceptCallRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	call, err := h.Calls.AcceptCall(c.Request.Context(), actor, c.Param("call_id"), req.PeerAnswer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"callId": call.ID})
}

func (h Handlers) RejectCall(c *gin.Context) {
	h.finish(c, h.Calls.RejectCall)
}

func (h Handlers) CancelCall(c *gin.Context) {
	h.finish(c, h.Calls.CancelCall)
}

func (h Handlers) EndCall(c *gin.Context) {
	h.finish(c, h.Calls.EndCall)
}

type finishFunc func(ctx context.Context, actor coordinator.Actor, callID string) (calls.Call, error)

func (h Handlers) finish(c *gin.Context, fn finishFunc) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	call, err := fn(c.Request.Context(), actor, c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"callId": call.ID})
}

// EndCallV2 serves clients that do not track the call phase.
func (h Handlers) EndCallV2(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	action, call, err := h.Calls.EndCallV2(c.Request.Context(), actor, c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if action == coordinator.EndActionNone {
		c.JSON(http.StatusOK, gin.H{"callId": c.Param("call_id"), "action": action, "message": "no action done"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"callId": call.ID, "action": action})
}

type inviteRequest struct {
	RoomIDs []string `json:"roomIds"`
}

func (h Handlers) InviteToCall(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Calls.InviteToCall(c.Request.Context(), actor, c.Param("call_id"), req.RoomIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) GetCall(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	call, err := h.Calls.GetCall(c.Request.Context(), actor.UserID, c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// GetRingCall answers with {"ringCall": null} when nothing is ringing for the user.
func (h Handlers) GetRingCall(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	rc, found, err := h.Calls.GetRingCall(c.Request.Context(), actor.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"ringCall": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ringCall": rc})
}

// --- History ---

func (h Handlers) GetHistory(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var before time.Time
	if v := c.Query("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "before must be RFC3339"})
			return
		}
		before = t
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	items, err := h.History.History(c.Request.Context(), actor.UserID, before, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []calls.Call{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": items})
}

func (h Handlers) DeleteAllHistory(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	if err := h.History.DeleteAll(c.Request.Context(), actor.UserID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) DeleteOneHistory(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	if err := h.History.DeleteOne(c.Request.Context(), actor.UserID, c.Param("call_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Media ---

func (h Handlers) CallMediaAccess(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	acc, err := h.Media.CallAccess(c.Request.Context(), actor.UserID, c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h Handlers) RoomMediaAccess(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	acc, err := h.Media.RoomAccess(c.Request.Context(), actor.UserID, c.Param("room_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// --- Reporting ---

func (h Handlers) CallsSummary(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	to := time.Now().UTC()
	from := to.Add(-summaryWindow)
	for key, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC3339"})
			return
		}
		*dst = t
	}
	sum, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		UserID: actor.UserID,
		Range:  reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- Admin ---

// GetPresence returns a user's global call status.
// RBAC: support, admin or super_admin.
func (h Handlers) GetPresence(c *gin.Context) {
	st, err := h.Presence.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": c.Param("user_id"), "status": st, "inCall": !st.IsEmpty()})
}

// ClearPresence frees a user stuck on a call that no longer exists.
// RBAC: admin or super_admin.
func (h Handlers) ClearPresence(c *gin.Context) {
	ctx := c.Request.Context()
	target := c.Param("user_id")
	prev, err := h.Presence.Get(ctx, target)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.Presence.Clear(ctx, target); err != nil {
		writeError(c, err)
		return
	}

	if h.Audit != nil {
		adminID, _ := auth.UserID(ctx)
		adminRole, _ := auth.Role(ctx)
		meta, _ := json.Marshal(prev)
		if err := h.Audit.LogAdminAction(ctx, adminID, adminRole, c.ClientIP(), target, "presence cleared", string(meta)); err != nil {
			logger.FromGin(c).Warn("audit append failed", "target_user_id", target, "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"userId": target, "cleared": !prev.IsEmpty()})
}

// --- Socket ---

func (h Handlers) ServeSocket(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	if err := h.Hub.Serve(c.Writer, c.Request, actor.UserID, actor.DeviceID); err != nil {
		// The upgrader has already answered the client.
		logger.FromGin(c).Warn("socket upgrade failed", "user_id", actor.UserID, "err", err)
	}
}
