package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"callbridge/internal/audit"
	"callbridge/internal/calls"
	"callbridge/internal/features"
	"callbridge/internal/quota"
	"callbridge/internal/reporting"
	"callbridge/internal/rtc"
	"callbridge/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Calls     *calls.Manager
	Quota     *quota.Controller
	Reporting *reporting.Service
	Sync      *features.Syncer
	Audit     *audit.Service
}

// --- Calls ---

func (h Handlers) AgentInitiate(c *gin.Context) {
	var req calls.AgentInitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	resp, err := h.Calls.AgentInitiate(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h Handlers) UserRequestCall(c *gin.Context) {
	var req calls.UserCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	resp, err := h.Calls.UserRequestCall(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type acceptRequest struct {
	AgentID string `json:"agent_id"`
	CallID  string `json:"call_id"`
}

func (h Handlers) AgentAcceptCall(c *gin.Context) {
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	resp, err := h.Calls.AgentAcceptCall(c.Request.Context(), req.AgentID, req.CallID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h Handlers) AIInitiateCall(c *gin.Context) {
	var req calls.AIInitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	resp, err := h.Calls.AIInitiateCall(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type joinRequest struct {
	UserID string `json:"user_id"`
	CallID string `json:"call_id"`
}

func (h Handlers) UserJoinCall(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	resp, err := h.Calls.UserJoinCall(c.Request.Context(), req.UserID, req.CallID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type endRequest struct {
	CallID  string `json:"call_id"`
	EndedBy string `json:"ended_by"`
}

func (h Handlers) EndCall(c *gin.Context) {
	var req endRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Calls.EndCall(c.Request.Context(), req.CallID, req.EndedBy)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) GetActive(c *gin.Context) {
	sessions, err := h.Calls.GetActive(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": sessions, "count": len(sessions)})
}

func (h Handlers) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	page, err := h.Calls.GetHistory(c.Request.Context(), c.Param("agent_id"), limit, offset)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h Handlers) GetStatus(c *gin.Context) {
	st, err := h.Calls.GetStatus(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// --- Project quota ---

func (h Handlers) GetCallFeatures(c *gin.Context) {
	q, err := h.Quota.GetQuota(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// UpdateCallFeatures applies a typed partial settings update. Unknown JSON
// keys are rejected rather than silently dropped.
func (h Handlers) UpdateCallFeatures(c *gin.Context) {
	projectID := c.Param("project_id")

	var patch quota.SettingsPatch
	dec := json.NewDecoder(io.LimitReader(c.Request.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid settings payload: " + err.Error()})
		return
	}

	q, err := h.Quota.UpdateSettings(c.Request.Context(), projectID, patch)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if h.Audit != nil {
		raw, _ := json.Marshal(patch)
		if aerr := h.Audit.LogSettingsChange(c.Request.Context(), projectID, "api", string(raw)); aerr != nil {
			logger.FromGin(c).Warn("audit append failed", "project_id", projectID, "err", aerr)
		}
	}
	c.JSON(http.StatusOK, q)
}

func (h Handlers) GetUsage(c *gin.Context) {
	report, err := h.Quota.Usage(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type checkRequest struct {
	CallType string `json:"call_type"`
}

func (h Handlers) CheckAdmission(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, err := h.Quota.CheckAdmission(c.Request.Context(), c.Param("project_id"), req.CallType)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h Handlers) ResetUsage(c *gin.Context) {
	projectID := c.Param("project_id")
	if err := h.Quota.ResetMonthlyUsage(c.Request.Context(), projectID); err != nil {
		abortWithError(c, err)
		return
	}
	if h.Audit != nil {
		if aerr := h.Audit.LogUsageReset(c.Request.Context(), projectID, "api"); aerr != nil {
			logger.FromGin(c).Warn("audit append failed", "project_id", projectID, "err", aerr)
		}
	}
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "reset": true})
}

// SyncFeatures pushes the project's call settings down to every agent in the
// project at the external feature system.
func (h Handlers) SyncFeatures(c *gin.Context) {
	projectID := c.Param("project_id")
	q, err := h.Quota.GetQuota(c.Request.Context(), projectID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	target := features.AgentFeatures{
		Audio:       q.Settings.Enabled && q.Settings.AudioCalls,
		Video:       q.Settings.Enabled && q.Settings.VideoCalls,
		ScreenShare: q.Settings.Enabled && q.Settings.ScreenSharing,
	}
	res, err := h.Sync.SyncToAgents(c.Request.Context(), projectID, target)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Reporting ---

func (h Handlers) CallsSummary(c *gin.Context) {
	from, err1 := time.Parse(time.RFC3339, c.Query("from"))
	to, err2 := time.Parse(time.RFC3339, c.Query("to"))
	if err1 != nil || err2 != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from and to must be RFC3339 timestamps"})
		return
	}
	out, err := h.Reporting.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		ProjectID: c.Param("project_id"),
		Range:     reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// abortWithError maps the service error taxonomy onto status codes.
func abortWithError(c *gin.Context, err error) {
	var denied *quota.DeniedError

	switch {
	case errors.Is(err, calls.ErrInvalidArgument), errors.Is(err, quota.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotFound), errors.Is(err, quota.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrPermission):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &denied):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": denied.Reason, "denied": true})
	case errors.Is(err, calls.ErrInvalidTransition):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, rtc.ErrUpstream):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "rtc provider unavailable"})
	default:
		// Persistence and other internal failures: detail goes to logs, a
		// generic message to the caller.
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
