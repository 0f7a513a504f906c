package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/printdesk/fleet/internal/core"
)

type JobHandler struct {
	dispatcher *core.Dispatcher
	lifecycle  *core.LifecycleManager
}

func NewJobHandler(dispatcher *core.Dispatcher, lifecycle *core.LifecycleManager) *JobHandler {
	return &JobHandler{dispatcher: dispatcher, lifecycle: lifecycle}
}

type CreateJobRequest struct {
	OrderID         string           `json:"order_id"`
	UserID          string           `json:"user_id" binding:"required"`
	StoreID         string           `json:"store_id" binding:"required"`
	Pages           int              `json:"pages" binding:"required,gt=0"`
	Copies          int              `json:"copies" binding:"required,gt=0"`
	Color           core.ColorMode   `json:"color_mode"`
	ModeSpec        []core.ModeRange `json:"mode_spec"`
	PaperSize       core.PaperSize   `json:"paper_size" binding:"required"`
	Duplex          bool             `json:"duplex"`
	Priority        int              `json:"priority" binding:"required,min=1,max=10"`
	BindingRequired bool             `json:"binding_required"`
}

type JobResponse struct {
	OrderID         string           `json:"order_id"`
	UserID          string           `json:"user_id"`
	StoreID         string           `json:"store_id"`
	Pages           int              `json:"pages"`
	Copies          int              `json:"copies"`
	Color           core.ColorMode   `json:"color_mode"`
	ModeSpec        []core.ModeRange `json:"mode_spec,omitempty"`
	PaperSize       core.PaperSize   `json:"paper_size"`
	Duplex          bool             `json:"duplex"`
	Priority        int              `json:"priority"`
	BindingRequired bool             `json:"binding_required"`
	BindingDone     bool             `json:"binding_done"`
	Status          core.JobStatus   `json:"status"`
	PrinterID       string           `json:"printer_id,omitempty"`
	RetryCount      int              `json:"retry_count"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ActualStart     *time.Time       `json:"actual_start_time,omitempty"`
	EstimatedEnd    *time.Time       `json:"estimated_end_time,omitempty"`
}

func jobResponse(j core.Job) JobResponse {
	return JobResponse{
		OrderID:         j.OrderID,
		UserID:          j.UserID,
		StoreID:         j.StoreID,
		Pages:           j.Pages,
		Copies:          j.Copies,
		Color:           j.Color,
		ModeSpec:        j.ModeSpec,
		PaperSize:       j.PaperSize,
		Duplex:          j.Duplex,
		Priority:        j.Priority,
		BindingRequired: j.BindingRequired,
		BindingDone:     j.BindingDone,
		Status:          j.Status,
		PrinterID:       j.PrinterID,
		RetryCount:      j.RetryCount,
		ErrorMessage:    j.ErrorMessage,
		CreatedAt:       j.CreatedAt,
		ActualStart:     j.ActualStart,
		EstimatedEnd:    j.EstimatedEnd,
	}
}

func (h *JobHandler) Create(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	job := core.Job{
		OrderID:         req.OrderID,
		UserID:          req.UserID,
		StoreID:         req.StoreID,
		Pages:           req.Pages,
		Copies:          req.Copies,
		Color:           req.Color,
		ModeSpec:        req.ModeSpec,
		PaperSize:       req.PaperSize,
		Duplex:          req.Duplex,
		Priority:        req.Priority,
		BindingRequired: req.BindingRequired,
	}
	if job.OrderID == "" {
		job.OrderID = uuid.NewString()
	}

	printerID, err := h.dispatcher.Submit(job)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrDuplicateJob):
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		case errors.Is(err, core.ErrInvalidJobSpec):
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		case errors.Is(err, core.ErrNoEligiblePrinter):
			// Admitted but waiting for a printer: return it anyway so
			// the caller can track the order.
			created, getErr := h.lifecycle.Get(job.OrderID)
			if getErr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": getErr.Error()})
				return
			}
			c.JSON(http.StatusAccepted, jobResponse(created))
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		}
		return
	}

	created, err := h.lifecycle.Get(job.OrderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"job": jobResponse(created), "printer_id": printerID})
}

func (h *JobHandler) List(c *gin.Context) {
	f := core.JobFilter{
		StoreID:   c.Query("store_id"),
		PrinterID: c.Query("printer_id"),
		Status:    core.JobStatus(c.Query("status")),
	}

	jobs := h.lifecycle.List(f)
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobResponse(j))
	}

	c.JSON(http.StatusOK, gin.H{"jobs": out, "count": len(out)})
}

func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.lifecycle.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, jobResponse(job))
}

type CancelJobRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *JobHandler) Cancel(c *gin.Context) {
	var req CancelJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	if err := h.lifecycle.Cancel(c.Param("id"), core.ActorSupervisor, req.Reason); err != nil {
		switch {
		case errors.Is(err, core.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		case errors.Is(err, core.ErrJobStateConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job cancelled"})
}

type BindingCompleteRequest struct {
	Notes string `json:"notes"`
}

func (h *JobHandler) BindingComplete(c *gin.Context) {
	var req BindingCompleteRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.lifecycle.MarkBindingCompleted(c.Param("id"), req.Notes); err != nil {
		switch {
		case errors.Is(err, core.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		case errors.Is(err, core.ErrJobStateConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "binding completed"})
}

type DeliverRequest struct {
	Notes string `json:"notes"`
}

func (h *JobHandler) Deliver(c *gin.Context) {
	var req DeliverRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.lifecycle.MarkDelivered(c.Param("id"), req.Notes); err != nil {
		switch {
		case errors.Is(err, core.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		case errors.Is(err, core.ErrJobStateConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job delivered"})
}

type PrintCompleteRequest struct {
	OrderID      string `json:"order_id" binding:"required"`
	PagesPrinted int    `json:"pages_printed" binding:"required,gt=0"`
}

// PrintComplete is reported by the printer agent when the physical
// print run finishes.
func (h *JobHandler) PrintComplete(c *gin.Context) {
	var req PrintCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	if err := h.lifecycle.PrintComplete(c.Param("id"), req.OrderID, req.PagesPrinted); err != nil {
		switch {
		case errors.Is(err, core.ErrJobNotFound), errors.Is(err, core.ErrPrinterNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		case errors.Is(err, core.ErrJobStateConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "print completed"})
}

type PrintFaultRequest struct {
	OrderID string         `json:"order_id" binding:"required"`
	Fault   core.FaultType `json:"fault" binding:"required"`
}

// PrintFault is reported by the printer agent when a run aborts: paper
// jam, exhausted consumables, or a hardware error.
func (h *JobHandler) PrintFault(c *gin.Context) {
	var req PrintFaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	if err := h.lifecycle.PrintFault(c.Param("id"), req.OrderID, req.Fault); err != nil {
		switch {
		case errors.Is(err, core.ErrJobNotFound), errors.Is(err, core.ErrPrinterNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		case errors.Is(err, core.ErrJobStateConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "fault recorded"})
}
