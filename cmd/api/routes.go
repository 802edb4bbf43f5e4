package main

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"callbridge/internal/audit"
	"callbridge/internal/calls"
	"callbridge/internal/features"
	"callbridge/internal/httpapi"
	"callbridge/internal/quota"
	"callbridge/internal/reporting"
	"callbridge/internal/rtc"
	"callbridge/pkg/utils"
)

type appDeps struct {
	handlers httpapi.Handlers
	webhook  rtc.WebhookHandler

	db       *sql.DB
	rdb      *redis.Client
	provider rtc.RoomProvider
}

func httpHandlers(manager *calls.Manager, quotaCtrl *quota.Controller, reports *reporting.Service, featureStore *features.HTTPStore, auditSvc *audit.Service, log *slog.Logger) httpapi.Handlers {
	return httpapi.Handlers{
		Calls:     manager,
		Quota:     quotaCtrl,
		Reporting: reports,
		Sync:      &features.Syncer{Updater: featureStore, Logger: log},
		Audit:     auditSvc,
	}
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps appDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := utils.HealthCheck(ctx, deps.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := deps.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		if err := deps.provider.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "rtc_provider": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rtc_provider": deps.provider.Name()})
	})

	// Provider webhooks (public path, authenticated by the provider's signed
	// JWT inside the handler).
	r.POST("/webhooks/rtc", deps.webhook.Handle)

	v1 := r.Group("/v1")
	{
		h := deps.handlers

		callsGroup := v1.Group("/calls")
		{
			callsGroup.POST("/agent-initiate", h.AgentInitiate)
			callsGroup.POST("/user-request", h.UserRequestCall)
			callsGroup.POST("/agent-accept", h.AgentAcceptCall)
			callsGroup.POST("/ai-initiate", h.AIInitiateCall)
			callsGroup.POST("/user-join", h.UserJoinCall)
			callsGroup.POST("/end", h.EndCall)

			callsGroup.GET("/agent-active/:agent_id", h.GetActive)
			callsGroup.GET("/history/:agent_id", h.GetHistory)
			callsGroup.GET("/status/:call_id", h.GetStatus)
		}

		projects := v1.Group("/projects/:project_id")
		{
			projects.GET("/call-features", h.GetCallFeatures)
			projects.PUT("/call-features", h.UpdateCallFeatures)
			projects.GET("/call-features/usage", h.GetUsage)
			projects.POST("/call-features/check", h.CheckAdmission)
			projects.POST("/call-features/reset-usage", h.ResetUsage)
			projects.POST("/call-features/sync", h.SyncFeatures)

			projects.GET("/reports/calls", h.CallsSummary)
		}
	}
}
