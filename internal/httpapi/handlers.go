package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"campaign-callsync/internal/audit"
	"campaign-callsync/internal/auth"
	"campaign-callsync/internal/export"
	"campaign-callsync/internal/poller"
	"campaign-callsync/internal/reporting"
	"campaign-callsync/internal/scheduler"

	"github.com/gin-gonic/gin"
)

// SchedulerAPI is the slice of the scheduler the handlers drive.
type SchedulerAPI interface {
	Status() scheduler.Status
	TriggerPoll(ctx context.Context) error
	SetInterval(d time.Duration) error
	ClearProcessedCache()
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Scheduler SchedulerAPI
	Reports   *reporting.Service
	Audit     *audit.Service
}

// --- Polling controls ---

// GetPollingStatus reports the scheduler snapshot for the dashboard.
func (h Handlers) GetPollingStatus(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "scheduler not configured"})
		return
	}
	st := h.Scheduler.Status()

	var last *time.Time
	if !st.LastPollTime.IsZero() {
		t := st.LastPollTime.UTC()
		last = &t
	}
	c.JSON(http.StatusOK, gin.H{
		"is_running":               st.Running,
		"last_poll_time":           last,
		"polling_interval_seconds": st.PollingIntervalSeconds,
		"processed_calls_count":    st.ProcessedCallsCount,
	})
}

// TriggerPoll runs one polling cycle synchronously. A cycle already in
// flight (locally or on another replica) answers 409.
func (h Handlers) TriggerPoll(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "scheduler not configured"})
		return
	}

	h.auditBestEffort(c, func(actor, ip string) error {
		return h.Audit.LogPollTriggered(c.Request.Context(), actor, ip)
	})

	err := h.Scheduler.TriggerPoll(c.Request.Context())
	switch {
	case err == nil:
	case errors.Is(err, poller.ErrCycleInProgress), errors.Is(err, poller.ErrLeaseHeld):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "poll cycle failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "poll completed"})
}

type setIntervalRequest struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// SetPollingInterval updates the recurring poll interval. Values below the
// scheduler floor answer 400 and leave the interval unchanged.
func (h Handlers) SetPollingInterval(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "scheduler not configured"})
		return
	}
	var req setIntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.IntervalSeconds <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "interval_seconds must be positive"})
		return
	}

	d := time.Duration(req.IntervalSeconds) * time.Second
	if err := h.Scheduler.SetInterval(d); err != nil {
		if errors.Is(err, scheduler.ErrIntervalTooShort) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "interval update failed"})
		return
	}

	h.auditBestEffort(c, func(actor, ip string) error {
		return h.Audit.LogIntervalChanged(c.Request.Context(), actor, ip, d)
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok", "polling_interval_seconds": req.IntervalSeconds})
}

// ClearProcessedCache empties the poller's processed-call set.
func (h Handlers) ClearProcessedCache(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "scheduler not configured"})
		return
	}
	removed := h.Scheduler.Status().ProcessedCallsCount
	h.Scheduler.ClearProcessedCache()

	h.auditBestEffort(c, func(actor, ip string) error {
		return h.Audit.LogCacheCleared(c.Request.Context(), actor, ip, removed)
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok", "removed": removed})
}

// --- Reports ---

// GetSummary aggregates recorded calls over a window. Defaults to the last
// 30 days when from/to are absent.
func (h Handlers) GetSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	req, err := parseWindow(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.Reports.Summary(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// ExportCalls streams the window's calls and analyses as an Excel workbook.
func (h Handlers) ExportCalls(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	req, err := parseWindow(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows, analyses, err := h.Reports.Dataset(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	f, err := export.BuildWorkbook(rows, analyses)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	filename := fmt.Sprintf("calls-%s.xlsx", req.Range.To.UTC().Format("2006-01-02"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := f.WriteTo(c.Writer); err != nil {
		_ = c.Error(err)
	}
}

// --- Helpers ---

func parseWindow(c *gin.Context) (reporting.SummaryRequest, error) {
	now := time.Now().UTC()
	req := reporting.SummaryRequest{
		OrgID: c.Query("org_id"),
		Range: reporting.TimeRange{From: now.AddDate(0, 0, -30), To: now},
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return req, fmt.Errorf("invalid from: %v", err)
		}
		req.Range.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return req, fmt.Errorf("invalid to: %v", err)
		}
		req.Range.To = t
	}
	return req, nil
}

// auditBestEffort records the operator action when an audit service and a
// verified subject are present. Audit failures never block the control flow.
func (h Handlers) auditBestEffort(c *gin.Context, fn func(actor, ip string) error) {
	if h.Audit == nil {
		return
	}
	actor, err := auth.Subject(c.Request.Context())
	if err != nil {
		return
	}
	if err := fn(actor, c.ClientIP()); err != nil {
		_ = c.Error(err)
	}
}
