package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/printdesk/fleet/internal/core"
)

type AlertHandler struct {
	monitor *core.AlertMonitor
}

func NewAlertHandler(monitor *core.AlertMonitor) *AlertHandler {
	return &AlertHandler{monitor: monitor}
}

func alertID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "alert id must be numeric"})
		return 0, false
	}
	return id, true
}

func (h *AlertHandler) List(c *gin.Context) {
	f := core.AlertFilter{
		PrinterID: c.Query("printer_id"),
		Status:    core.AlertStatus(c.Query("status")),
		Severity:  core.AlertSeverity(c.Query("severity")),
	}

	alerts := h.monitor.List(f)
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (h *AlertHandler) Get(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}

	alert, err := h.monitor.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *AlertHandler) Acknowledge(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}

	alert, err := h.monitor.Acknowledge(id)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrAlertNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		case errors.Is(err, core.ErrAlertResolved):
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, alert)
}

type FixAlertRequest struct {
	ActionTaken string `json:"action_taken" binding:"required"`
}

func (h *AlertHandler) Fix(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}

	var req FixAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	alert, err := h.monitor.Fix(id, req.ActionTaken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, alert)
}

type MuteAlertRequest struct {
	DurationMinutes int `json:"duration_minutes" binding:"required,gt=0"`
}

func (h *AlertHandler) Mute(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}

	var req MuteAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	alert, err := h.monitor.Mute(id, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrAlertNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		case errors.Is(err, core.ErrAlertResolved):
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, alert)
}
