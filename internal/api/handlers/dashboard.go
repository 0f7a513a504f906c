package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/printdesk/fleet/internal/core"
	"github.com/printdesk/fleet/internal/db"
)

// Queue depth treated as full utilization when computing load.
const loadQueueCapacity = 10

type DashboardHandler struct {
	registry  *core.Registry
	lifecycle *core.LifecycleManager
	estimator *core.Estimator
	monitor   *core.AlertMonitor
}

func NewDashboardHandler(registry *core.Registry, lifecycle *core.LifecycleManager, estimator *core.Estimator, monitor *core.AlertMonitor) *DashboardHandler {
	return &DashboardHandler{registry: registry, lifecycle: lifecycle, estimator: estimator, monitor: monitor}
}

type PrinterLoad struct {
	PrinterID      string  `json:"printer_id"`
	Status         string  `json:"status"`
	QueueLength    int     `json:"queue_length"`
	BacklogMinutes float64 `json:"backlog_minutes"`
	LoadPercentage int     `json:"load_percentage"`
}

type DashboardResponse struct {
	Printers struct {
		Total     int `json:"total"`
		UpCount   int `json:"up_count"`
		DownCount int `json:"down_count"`
	} `json:"printers"`
	Orders struct {
		ActiveOrders   int `json:"active_orders"`
		PendingBinding int `json:"pending_binding"`
	} `json:"orders"`
	PrinterLoad []PrinterLoad `json:"printer_load"`
	OpenAlerts  int           `json:"open_alerts"`
}

// Get aggregates fleet state for the supervisor dashboard.
func (h *DashboardHandler) Get(c *gin.Context) {
	now := time.Now()
	storeID := c.Query("store_id")

	var resp DashboardResponse
	resp.PrinterLoad = []PrinterLoad{}

	for _, p := range h.registry.List(core.Filter{StoreID: storeID}) {
		resp.Printers.Total++
		if p.Status.Dispatchable() {
			resp.Printers.UpCount++
		} else {
			resp.Printers.DownCount++
		}

		backlog := h.estimator.Backlog(p, now)
		queued := p.QueueLength()
		if p.CurrentJobID != "" {
			queued++
		}
		load := queued * 100 / loadQueueCapacity
		if load > 100 {
			load = 100
		}

		resp.PrinterLoad = append(resp.PrinterLoad, PrinterLoad{
			PrinterID:      p.ID,
			Status:         string(p.Status),
			QueueLength:    p.QueueLength(),
			BacklogMinutes: backlog.Minutes(),
			LoadPercentage: load,
		})
	}

	for _, j := range h.lifecycle.List(core.JobFilter{StoreID: storeID}) {
		if !j.Status.Terminal() {
			resp.Orders.ActiveOrders++
		}
		if j.Status == core.JobBinding {
			resp.Orders.PendingBinding++
		}
	}

	resp.OpenAlerts = len(h.monitor.List(core.AlertFilter{Status: core.AlertOpen}))

	c.JSON(http.StatusOK, resp)
}

type ActivityHandler struct{}

func NewActivityHandler() *ActivityHandler {
	return &ActivityHandler{}
}

func (h *ActivityHandler) List(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			offset = n
		}
	}

	var entries []*db.ActivityEntry
	var err error
	if entityType, entityID := c.Query("entity_type"), c.Query("entity_id"); entityType != "" && entityID != "" {
		entries, err = db.Activity.ListByEntity(c.Request.Context(), entityType, entityID, limit)
	} else {
		entries, err = db.Activity.List(c.Request.Context(), limit, offset)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database_error", "message": "failed to load activity log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"activity": entries, "count": len(entries)})
}
