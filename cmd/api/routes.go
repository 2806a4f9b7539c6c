package main

import (
	"database/sql"
	"net/http"
	"time"

	"call-signaling/internal/httpapi"
	"call-signaling/internal/rbac"
	"call-signaling/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, reg *prometheus.Registry, db *sql.DB, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	r.POST("/v1/auth/refresh", h.Refresh)

	// Sockets authenticate with ?access_token= since browsers cannot set headers on upgrade.
	r.GET("/ws", authMW, rbac.RequireUser(), h.ServeSocket)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireUser())
	{
		calls := v1.Group("/calls")
		{
			calls.POST("", h.CreateCall)
			calls.GET("/ring", h.GetRingCall)
			calls.GET("/summary", h.CallsSummary)

			calls.GET("/history", h.GetHistory)
			calls.DELETE("/history", h.DeleteAllHistory)
			calls.DELETE("/history/:call_id", h.DeleteOneHistory)

			calls.GET("/:call_id", h.GetCall)
			calls.POST("/:call_id/accept", h.AcceptCall)
			calls.POST("/:call_id/reject", h.RejectCall)
			calls.POST("/:call_id/cancel", h.CancelCall)
			calls.POST("/:call_id/end", h.EndCall)
			calls.POST("/:call_id/end-v2", h.EndCallV2)
			calls.POST("/:call_id/invite", h.InviteToCall)
			calls.GET("/:call_id/media", h.CallMediaAccess)
		}

		v1.GET("/rooms/:room_id/media", h.RoomMediaAccess)

		// ADMIN routes
		// Hidden service role is intentionally NOT included.
		admin := v1.Group("/admin")
		{
			admin.GET("/presence/:user_id", rbac.RequireAnyRole(rbac.RoleSupport, rbac.RoleAdmin), h.GetPresence)
			admin.DELETE("/presence/:user_id", rbac.RequireAnyRole(rbac.RoleAdmin), h.ClearPresence)
		}
	}
}
