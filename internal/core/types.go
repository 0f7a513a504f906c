package core

import (
	"time"
)

type PrinterStatus string

const (
	PrinterOnline      PrinterStatus = "online"
	PrinterOffline     PrinterStatus = "offline"
	PrinterMaintenance PrinterStatus = "maintenance"
	PrinterError       PrinterStatus = "error"
	PrinterIdle        PrinterStatus = "idle"
	PrinterBusy        PrinterStatus = "busy"
)

// Dispatchable reports whether new work may be queued on a printer in
// this status. Busy printers accept work behind the current job.
func (s PrinterStatus) Dispatchable() bool {
	return s == PrinterOnline || s == PrinterIdle || s == PrinterBusy
}

// Reservable reports whether a printer in this status may take a job as
// its current work.
func (s PrinterStatus) Reservable() bool {
	return s == PrinterOnline || s == PrinterIdle
}

type JobStatus string

const (
	JobPending          JobStatus = "pending"
	JobProcessing       JobStatus = "processing"
	JobPrinted          JobStatus = "printed"
	JobBinding          JobStatus = "binding"
	JobReadyForDelivery JobStatus = "ready_for_delivery"
	JobDelivered        JobStatus = "delivered"
	JobFailed           JobStatus = "failed"
	JobCancelled        JobStatus = "cancelled"
)

func (s JobStatus) Terminal() bool {
	return s == JobDelivered || s == JobFailed || s == JobCancelled
}

type ColorMode string

const (
	ModeBW    ColorMode = "bw"
	ModeColor ColorMode = "color"
)

type PaperSize string

const (
	SizeA4     PaperSize = "A4"
	SizeA3     PaperSize = "A3"
	SizeLetter PaperSize = "Letter"
	SizeLegal  PaperSize = "Legal"
)

type PrinterType string

const (
	TypeLaser     PrinterType = "laser"
	TypeInkjet    PrinterType = "inkjet"
	TypeThermal   PrinterType = "thermal"
	TypeDotMatrix PrinterType = "dot_matrix"
)

type ConnectionType string

const (
	ConnUSB       ConnectionType = "usb"
	ConnNetwork   ConnectionType = "network"
	ConnWiFi      ConnectionType = "wifi"
	ConnBluetooth ConnectionType = "bluetooth"
)

// Capabilities is the immutable capability record of a printer.
// Dispatcher eligibility is a pure predicate over this record.
type Capabilities struct {
	Sizes      []PaperSize    `json:"supported_sizes"`
	Color      bool           `json:"color_support"`
	Duplex     bool           `json:"duplex_support"`
	Type       PrinterType    `json:"type"`
	Connection ConnectionType `json:"connection_type"`
}

func (c Capabilities) SupportsSize(size PaperSize) bool {
	for _, s := range c.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

// PrinterSpec describes a printer at creation time.
type PrinterSpec struct {
	ID              string
	StoreID         string
	Name            string
	Model           string
	Capabilities    Capabilities
	PaperCapacity   int
	PaperAvailable  int
	InkLevels       map[string]float64
	LastMaintenance time.Time
}

// QueueEntry is one queued job on a printer. Position is a dense
// zero-based rank recomputed on every queue mutation.
type QueueEntry struct {
	JobID      string    `json:"job_id"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Position   int       `json:"position"`
}

// PrinterSnapshot is a point-in-time copy of one printer's state.
type PrinterSnapshot struct {
	ID                string
	StoreID           string
	Name              string
	Model             string
	Capabilities      Capabilities
	Status            PrinterStatus
	PaperCapacity     int
	PaperAvailable    int
	InkLevels         map[string]float64
	Temperature       float64
	Humidity          float64
	CurrentJobID      string
	Queue             []QueueEntry
	TotalPagesPrinted int64
	PagesPrintedToday int64
	LastMaintenance   time.Time
	LastJam           *time.Time
}

func (s PrinterSnapshot) QueueLength() int {
	return len(s.Queue)
}

type FaultType string

const (
	FaultJam        FaultType = "jam"
	FaultOutOfPaper FaultType = "out_of_paper"
	FaultOutOfInk   FaultType = "out_of_ink"
	FaultHardware   FaultType = "hardware"
)

// Job is one order line moving through the print pipeline. Identity and
// the submission fields are immutable; PrinterID is set at dispatch and
// changes only while the job is still Pending.
type Job struct {
	OrderID         string
	UserID          string
	StoreID         string
	Pages           int
	Copies          int
	Color           ColorMode
	ModeSpec        []ModeRange
	PaperSize       PaperSize
	Duplex          bool
	Priority        int
	BindingRequired bool

	Status       JobStatus
	PrinterID    string
	RetryCount   int
	BindingDone  bool
	ErrorMessage string
	CreatedAt    time.Time
	ActualStart  *time.Time
	EstimatedEnd *time.Time
}

// ColorPages returns how many of the job's pages print in color for a
// single copy, honoring the mixed per-range spec when present.
func (j Job) ColorPages() int {
	if len(j.ModeSpec) == 0 {
		if j.Color == ModeColor {
			return j.Pages
		}
		return 0
	}
	return colorPageCount(j.ModeSpec, j.Pages)
}

// NeedsColor reports whether any page of the job requires a
// color-capable printer.
func (j Job) NeedsColor() bool {
	return j.ColorPages() > 0
}

type AlertType string

const (
	AlertPaperEmpty  AlertType = "paper_empty"
	AlertLowPaper    AlertType = "low_paper"
	AlertLowInk      AlertType = "low_ink"
	AlertJam         AlertType = "jam"
	AlertOffline     AlertType = "offline"
	AlertMaintenance AlertType = "maintenance"
	AlertSLABreach   AlertType = "sla_breach"
	AlertOther       AlertType = "other"
)

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

type AlertStatus string

const (
	AlertOpen         AlertStatus = "open"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
	AlertMuted        AlertStatus = "muted"
)

type Alert struct {
	ID          int64         `json:"alert_id"`
	Type        AlertType     `json:"alert_type"`
	Severity    AlertSeverity `json:"severity"`
	Status      AlertStatus   `json:"status"`
	PrinterID   string        `json:"printer_id,omitempty"`
	OrderID     string        `json:"order_id,omitempty"`
	Message     string        `json:"message"`
	ActionTaken string        `json:"action_taken,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	MutedUntil  *time.Time    `json:"muted_until,omitempty"`
}

// Actor identifies who drove a state change, for the activity log.
const (
	ActorSystem     = "system"
	ActorSupervisor = "supervisor"
)

// EventSink receives fire-and-forget notifications after state sections
// are released. Implementations must not call back into the core.
type EventSink interface {
	JobEvent(event string, job Job)
	PrinterStatusChanged(printerID string, oldStatus, newStatus PrinterStatus, reason string)
	AlertRaised(alert Alert)
}

// ActivityLogger records audited transitions. The core calls it outside
// of any state section.
type ActivityLogger interface {
	Record(actor, action, entityType, entityID, details string)
}
