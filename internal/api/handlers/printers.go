package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/printdesk/fleet/internal/core"
)

type PrinterHandler struct {
	registry  *core.Registry
	lifecycle *core.LifecycleManager
	estimator *core.Estimator
	overrides *core.OverrideController
}

func NewPrinterHandler(registry *core.Registry, lifecycle *core.LifecycleManager, estimator *core.Estimator, overrides *core.OverrideController) *PrinterHandler {
	return &PrinterHandler{registry: registry, lifecycle: lifecycle, estimator: estimator, overrides: overrides}
}

type CreatePrinterRequest struct {
	ID              string              `json:"printer_id" binding:"required"`
	StoreID         string              `json:"store_id" binding:"required"`
	Name            string              `json:"name" binding:"required"`
	Model           string              `json:"model"`
	SupportedSizes  []core.PaperSize    `json:"supported_sizes" binding:"required,min=1"`
	ColorSupport    bool                `json:"color_support"`
	DuplexSupport   bool                `json:"duplex_support"`
	Type            core.PrinterType    `json:"type" binding:"required"`
	ConnectionType  core.ConnectionType `json:"connection_type" binding:"required"`
	PaperCapacity   int                 `json:"paper_capacity" binding:"required,gt=0"`
	PaperAvailable  int                 `json:"paper_available"`
	InkLevels       map[string]float64  `json:"ink_toner_level"`
	LastMaintenance *time.Time          `json:"last_maintenance"`
}

type PrinterResponse struct {
	ID                string             `json:"printer_id"`
	StoreID           string             `json:"store_id"`
	Name              string             `json:"name"`
	Model             string             `json:"model,omitempty"`
	Capabilities      core.Capabilities  `json:"capabilities"`
	Status            core.PrinterStatus `json:"status"`
	PaperCapacity     int                `json:"paper_capacity"`
	PaperAvailable    int                `json:"paper_available"`
	InkLevels         map[string]float64 `json:"ink_toner_level"`
	Temperature       float64            `json:"temperature,omitempty"`
	Humidity          float64            `json:"humidity,omitempty"`
	CurrentJobID      string             `json:"current_job_id,omitempty"`
	QueueLength       int                `json:"queue_length"`
	PagesPrintedToday int64              `json:"pages_printed_today"`
	TotalPagesPrinted int64              `json:"total_pages_printed"`
	LastMaintenance   time.Time          `json:"last_maintenance"`
	LastJam           *time.Time         `json:"last_jam_timestamp,omitempty"`
}

func printerResponse(p core.PrinterSnapshot) PrinterResponse {
	return PrinterResponse{
		ID:                p.ID,
		StoreID:           p.StoreID,
		Name:              p.Name,
		Model:             p.Model,
		Capabilities:      p.Capabilities,
		Status:            p.Status,
		PaperCapacity:     p.PaperCapacity,
		PaperAvailable:    p.PaperAvailable,
		InkLevels:         p.InkLevels,
		Temperature:       p.Temperature,
		Humidity:          p.Humidity,
		CurrentJobID:      p.CurrentJobID,
		QueueLength:       p.QueueLength(),
		PagesPrintedToday: p.PagesPrintedToday,
		TotalPagesPrinted: p.TotalPagesPrinted,
		LastMaintenance:   p.LastMaintenance,
		LastJam:           p.LastJam,
	}
}

func (h *PrinterHandler) Create(c *gin.Context) {
	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	spec := core.PrinterSpec{
		ID:      req.ID,
		StoreID: req.StoreID,
		Name:    req.Name,
		Model:   req.Model,
		Capabilities: core.Capabilities{
			Sizes:      req.SupportedSizes,
			Color:      req.ColorSupport,
			Duplex:     req.DuplexSupport,
			Type:       req.Type,
			Connection: req.ConnectionType,
		},
		PaperCapacity:  req.PaperCapacity,
		PaperAvailable: req.PaperAvailable,
		InkLevels:      req.InkLevels,
	}
	if req.LastMaintenance != nil {
		spec.LastMaintenance = *req.LastMaintenance
	}

	snap, err := h.registry.Create(spec)
	if err != nil {
		if errors.Is(err, core.ErrDuplicatePrinter) {
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, printerResponse(snap))
}

func (h *PrinterHandler) List(c *gin.Context) {
	f := core.Filter{
		StoreID: c.Query("store_id"),
		Status:  core.PrinterStatus(c.Query("status")),
	}

	snaps := h.registry.List(f)
	out := make([]PrinterResponse, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, printerResponse(s))
	}

	c.JSON(http.StatusOK, gin.H{"printers": out, "count": len(out)})
}

func (h *PrinterHandler) Get(c *gin.Context) {
	snap, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, printerResponse(snap))
}

func (h *PrinterHandler) Delete(c *gin.Context) {
	if err := h.registry.Delete(c.Param("id")); err != nil {
		switch {
		case errors.Is(err, core.ErrPrinterNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		case errors.Is(err, core.ErrPrinterHasWork):
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "printer deleted"})
}

type UpdateStatusRequest struct {
	Status core.PrinterStatus `json:"status" binding:"required"`
	Reason string             `json:"reason"`
}

func (h *PrinterHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	if err := h.registry.UpdateStatus(c.Param("id"), req.Status, req.Reason); err != nil {
		switch {
		case errors.Is(err, core.ErrPrinterNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		case errors.Is(err, core.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "message": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "status updated"})
}

type TelemetryRequest struct {
	PaperAvailable *int               `json:"paper_available"`
	InkLevels      map[string]float64 `json:"ink_toner_level"`
	Temperature    *float64           `json:"temperature"`
	Humidity       *float64           `json:"humidity"`
}

// Telemetry accepts a heartbeat pushed over HTTP. Printers that speak
// MQTT report through the broker instead; both paths converge on the
// registry.
func (h *PrinterHandler) Telemetry(c *gin.Context) {
	var req TelemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	if err := h.registry.UpdateTelemetry(c.Param("id"), req.PaperAvailable, req.InkLevels, req.Temperature, req.Humidity); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "telemetry recorded"})
}

type QueueEntryResponse struct {
	JobID        string     `json:"job_id"`
	Priority     int        `json:"priority"`
	Position     int        `json:"position"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`
	EstimatedEnd *time.Time `json:"estimated_end_time,omitempty"`
}

func (h *PrinterHandler) GetQueue(c *gin.Context) {
	snap, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		return
	}

	etas := make(map[string]time.Time)
	for _, je := range h.estimator.QueueProjection(snap, time.Now()) {
		etas[je.JobID] = je.End
	}

	out := make([]QueueEntryResponse, 0, len(snap.Queue))
	for _, e := range snap.Queue {
		resp := QueueEntryResponse{
			JobID:      e.JobID,
			Priority:   e.Priority,
			Position:   e.Position,
			EnqueuedAt: e.EnqueuedAt,
		}
		if end, ok := etas[e.JobID]; ok {
			endCopy := end
			resp.EstimatedEnd = &endCopy
		}
		out = append(out, resp)
	}

	c.JSON(http.StatusOK, gin.H{"printer_id": snap.ID, "queue": out, "count": len(out)})
}

type PauseRequest struct {
	Offline bool   `json:"offline"`
	Reason  string `json:"reason" binding:"required"`
}

func (h *PrinterHandler) Pause(c *gin.Context) {
	var req PauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	if err := h.overrides.PausePrinter(c.Param("id"), req.Offline, req.Reason); err != nil {
		if errors.Is(err, core.ErrPrinterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "printer paused"})
}

func (h *PrinterHandler) Resume(c *gin.Context) {
	if err := h.overrides.ResumePrinter(c.Param("id")); err != nil {
		if errors.Is(err, core.ErrPrinterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "printer resumed"})
}

type CancelCurrentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *PrinterHandler) CancelCurrentJob(c *gin.Context) {
	var req CancelCurrentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	orderID, err := h.overrides.CancelCurrentJob(c.Param("id"), req.Reason)
	if err != nil {
		if errors.Is(err, core.ErrPrinterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job cancelled", "order_id": orderID})
}

type MoveQueueRequest struct {
	TargetPrinterID string `json:"target_printer_id" binding:"required"`
	Reason          string `json:"reason" binding:"required"`
}

func (h *PrinterHandler) MoveQueue(c *gin.Context) {
	var req MoveQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	moved, err := h.overrides.MoveQueue(c.Param("id"), req.TargetPrinterID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrPrinterNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		case errors.Is(err, core.ErrInvalidTarget), errors.Is(err, core.ErrReasonRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		default:
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "queue moved", "moved_count": moved})
}

func (h *PrinterHandler) TestPrint(c *gin.Context) {
	orderID, err := h.overrides.TestPrint(c.Param("id"))
	if err != nil {
		if errors.Is(err, core.ErrPrinterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "test print queued", "order_id": orderID})
}
