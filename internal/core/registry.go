package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrPrinterNotFound    = errors.New("printer not found")
	ErrDuplicatePrinter   = errors.New("printer already exists")
	ErrPrinterBusy        = errors.New("printer already has a current job")
	ErrPrinterUnavailable = errors.New("printer cannot accept work in current state")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrQueueEmpty         = errors.New("printer queue is empty")
	ErrInvalidTarget      = errors.New("invalid move target")
	ErrPrinterHasWork     = errors.New("printer has queued or active work")
	ErrReasonRequired     = errors.New("a non-empty reason is required")
)

// Ink consumption per page, in percent per channel. Color pages also
// spend some black.
var inkPerPage = map[ColorMode]map[string]float64{
	ModeBW:    {"black": 0.5},
	ModeColor: {"black": 0.2, "C": 0.3, "M": 0.3, "Y": 0.3},
}

// FleetStore persists printer snapshots. Calls happen outside of any
// printer section, in transition order per printer, and must not block
// the caller beyond a queue handoff.
type FleetStore interface {
	SavePrinter(snap PrinterSnapshot)
}

type printerState struct {
	mu sync.Mutex

	id      string
	storeID string
	name    string
	model   string
	caps    Capabilities

	status         PrinterStatus
	paperCapacity  int
	paperAvailable int
	ink            map[string]float64
	temperature    float64
	humidity       float64

	currentJobID string
	queue        []QueueEntry

	totalPages      int64
	pagesToday      int64
	dayMark         string
	lastMaintenance time.Time
	lastJam         *time.Time

	deleted bool
}

// Registry owns the authoritative state of every printer in the fleet.
// Each printer has its own exclusive section; operations on different
// printers proceed in parallel, mutations on the same printer never
// interleave. No I/O happens while a section is held.
type Registry struct {
	mu       sync.RWMutex
	printers map[string]*printerState

	sink           EventSink
	store          FleetStore
	onStatusChange func(printerID, storeID string, oldStatus, newStatus PrinterStatus)
}

func NewRegistry(sink EventSink, store FleetStore) *Registry {
	return &Registry{
		printers: make(map[string]*printerState),
		sink:     sink,
		store:    store,
	}
}

// SetStatusChangeHook installs the dispatcher's pending-rescan trigger.
// Must be called before the registry receives traffic.
func (r *Registry) SetStatusChangeHook(fn func(printerID, storeID string, oldStatus, newStatus PrinterStatus)) {
	r.onStatusChange = fn
}

func (r *Registry) state(id string) (*printerState, error) {
	r.mu.RLock()
	ps, ok := r.printers[id]
	r.mu.RUnlock()
	if !ok || ps.isDeleted() {
		return nil, ErrPrinterNotFound
	}
	return ps, nil
}

func (ps *printerState) isDeleted() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.deleted
}

// rolloverLocked zeroes the daily page counter when the calendar day
// has changed since the last mutation or read.
func (ps *printerState) rolloverLocked(now time.Time) {
	today := dayMark(now)
	if ps.dayMark != today {
		ps.dayMark = today
		ps.pagesToday = 0
	}
}

func (ps *printerState) snapshotLocked() PrinterSnapshot {
	ps.rolloverLocked(time.Now())

	ink := make(map[string]float64, len(ps.ink))
	for k, v := range ps.ink {
		ink[k] = v
	}
	queue := make([]QueueEntry, len(ps.queue))
	copy(queue, ps.queue)

	var lastJam *time.Time
	if ps.lastJam != nil {
		t := *ps.lastJam
		lastJam = &t
	}

	return PrinterSnapshot{
		ID:                ps.id,
		StoreID:           ps.storeID,
		Name:              ps.name,
		Model:             ps.model,
		Capabilities:      ps.caps,
		Status:            ps.status,
		PaperCapacity:     ps.paperCapacity,
		PaperAvailable:    ps.paperAvailable,
		InkLevels:         ink,
		Temperature:       ps.temperature,
		Humidity:          ps.humidity,
		CurrentJobID:      ps.currentJobID,
		Queue:             queue,
		TotalPagesPrinted: ps.totalPages,
		PagesPrintedToday: ps.pagesToday,
		LastMaintenance:   ps.lastMaintenance,
		LastJam:           lastJam,
	}
}

// persist hands the snapshot to the store synchronously so that saves
// for one printer reach the store in the same order its transitions
// happened. The store queues the actual write.
func (r *Registry) persist(snap PrinterSnapshot) {
	if r.store != nil {
		r.store.SavePrinter(snap)
	}
}

func (r *Registry) notifyStatus(id, storeID string, old, new PrinterStatus, reason string) {
	if old == new {
		return
	}
	if r.sink != nil {
		go r.sink.PrinterStatusChanged(id, old, new, reason)
	}
	if r.onStatusChange != nil {
		go r.onStatusChange(id, storeID, old, new)
	}
}

// Create registers a new printer. The initial status is Online.
func (r *Registry) Create(spec PrinterSpec) (PrinterSnapshot, error) {
	if spec.ID == "" || spec.StoreID == "" {
		return PrinterSnapshot{}, fmt.Errorf("printer id and store id are required")
	}
	if spec.PaperCapacity <= 0 {
		return PrinterSnapshot{}, fmt.Errorf("paper capacity must be positive")
	}
	if spec.PaperAvailable < 0 || spec.PaperAvailable > spec.PaperCapacity {
		return PrinterSnapshot{}, fmt.Errorf("paper available must be within 0-%d", spec.PaperCapacity)
	}
	if len(spec.Capabilities.Sizes) == 0 {
		return PrinterSnapshot{}, fmt.Errorf("at least one supported paper size is required")
	}

	ink := make(map[string]float64)
	for ch, lvl := range spec.InkLevels {
		if lvl < 0 || lvl > 100 {
			return PrinterSnapshot{}, fmt.Errorf("ink level for %s must be 0-100", ch)
		}
		ink[ch] = lvl
	}
	if len(ink) == 0 {
		ink["black"] = 100
		if spec.Capabilities.Color {
			ink["C"], ink["M"], ink["Y"] = 100, 100, 100
		}
	}

	ps := &printerState{
		id:              spec.ID,
		storeID:         spec.StoreID,
		name:            spec.Name,
		model:           spec.Model,
		caps:            spec.Capabilities,
		status:          PrinterOnline,
		paperCapacity:   spec.PaperCapacity,
		paperAvailable:  spec.PaperAvailable,
		ink:             ink,
		lastMaintenance: spec.LastMaintenance,
		dayMark:         dayMark(time.Now()),
	}

	r.mu.Lock()
	if existing, ok := r.printers[spec.ID]; ok {
		existing.mu.Lock()
		gone := existing.deleted
		existing.mu.Unlock()
		if !gone {
			r.mu.Unlock()
			return PrinterSnapshot{}, fmt.Errorf("%w: %s", ErrDuplicatePrinter, spec.ID)
		}
	}
	r.printers[spec.ID] = ps
	r.mu.Unlock()

	ps.mu.Lock()
	snap := ps.snapshotLocked()
	ps.mu.Unlock()
	r.persist(snap)
	return snap, nil
}

// Load installs a previously persisted printer as-is. Used at startup
// before the registry is shared.
func (r *Registry) Load(snap PrinterSnapshot) {
	ink := make(map[string]float64, len(snap.InkLevels))
	for k, v := range snap.InkLevels {
		ink[k] = v
	}
	queue := make([]QueueEntry, len(snap.Queue))
	copy(queue, snap.Queue)

	ps := &printerState{
		id:              snap.ID,
		storeID:         snap.StoreID,
		name:            snap.Name,
		model:           snap.Model,
		caps:            snap.Capabilities,
		status:          snap.Status,
		paperCapacity:   snap.PaperCapacity,
		paperAvailable:  snap.PaperAvailable,
		ink:             ink,
		currentJobID:    snap.CurrentJobID,
		queue:           queue,
		totalPages:      snap.TotalPagesPrinted,
		pagesToday:      snap.PagesPrintedToday,
		dayMark:         dayMark(time.Now()),
		lastMaintenance: snap.LastMaintenance,
		lastJam:         snap.LastJam,
	}

	r.mu.Lock()
	r.printers[snap.ID] = ps
	r.mu.Unlock()
}

// Get returns a point-in-time snapshot of one printer.
func (r *Registry) Get(id string) (PrinterSnapshot, error) {
	ps, err := r.state(id)
	if err != nil {
		return PrinterSnapshot{}, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.snapshotLocked(), nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	StoreID string
	Status  PrinterStatus
}

// List returns snapshots of all live printers matching the filter,
// ordered by printer id.
func (r *Registry) List(f Filter) []PrinterSnapshot {
	r.mu.RLock()
	states := make([]*printerState, 0, len(r.printers))
	for _, ps := range r.printers {
		states = append(states, ps)
	}
	r.mu.RUnlock()

	snaps := make([]PrinterSnapshot, 0, len(states))
	for _, ps := range states {
		ps.mu.Lock()
		if ps.deleted {
			ps.mu.Unlock()
			continue
		}
		snap := ps.snapshotLocked()
		ps.mu.Unlock()

		if f.StoreID != "" && snap.StoreID != f.StoreID {
			continue
		}
		if f.Status != "" && snap.Status != f.Status {
			continue
		}
		snaps = append(snaps, snap)
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// Delete soft-deletes a printer. Rejected while the printer has a
// current job or a non-empty queue.
func (r *Registry) Delete(id string) error {
	ps, err := r.state(id)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	if ps.currentJobID != "" || len(ps.queue) > 0 {
		ps.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPrinterHasWork, id)
	}
	ps.deleted = true
	ps.status = PrinterOffline
	snap := ps.snapshotLocked()
	ps.mu.Unlock()

	r.persist(snap)
	return nil
}

// UpdateStatus applies a supervisor- or event-driven status change.
// Transitions into the current status are rejected as no-ops, and Busy
// is never entered through here: it is owned by Reserve, so a printer
// paused in Offline/Maintenance cannot be resumed straight into Busy.
func (r *Registry) UpdateStatus(id string, newStatus PrinterStatus, reason string) error {
	ps, err := r.state(id)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	old := ps.status
	if newStatus == old {
		ps.mu.Unlock()
		return fmt.Errorf("%w: printer %s is already %s", ErrInvalidTransition, id, old)
	}
	if newStatus == PrinterBusy {
		ps.mu.Unlock()
		return fmt.Errorf("%w: busy is entered only by reserving a job", ErrInvalidTransition)
	}
	ps.status = newStatus
	storeID := ps.storeID
	snap := ps.snapshotLocked()
	ps.mu.Unlock()

	r.persist(snap)
	r.notifyStatus(id, storeID, old, newStatus, reason)
	return nil
}

// RecordFault transitions a printer to Error in response to a hardware
// fault and stamps the jam timestamp for jams.
func (r *Registry) RecordFault(id string, fault FaultType) error {
	ps, err := r.state(id)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	old := ps.status
	ps.status = PrinterError
	if fault == FaultJam {
		now := time.Now()
		ps.lastJam = &now
	}
	storeID := ps.storeID
	snap := ps.snapshotLocked()
	ps.mu.Unlock()

	r.persist(snap)
	r.notifyStatus(id, storeID, old, PrinterError, string(fault))
	return nil
}

// Reserve takes a printer as the current executor of jobID and moves it
// to Busy. Fails with ErrPrinterBusy when a current job is already set
// and ErrPrinterUnavailable when the status does not allow reservation.
func (r *Registry) Reserve(id, jobID string) error {
	ps, err := r.state(id)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	if ps.currentJobID != "" {
		ps.mu.Unlock()
		return fmt.Errorf("%w: %s is printing %s", ErrPrinterBusy, id, ps.currentJobID)
	}
	if !ps.status.Reservable() {
		ps.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrPrinterUnavailable, id, ps.status)
	}
	old := ps.status
	ps.currentJobID = jobID
	ps.status = PrinterBusy
	storeID := ps.storeID
	snap := ps.snapshotLocked()
	ps.mu.Unlock()

	r.persist(snap)
	r.notifyStatus(id, storeID, old, PrinterBusy, "job "+jobID+" reserved")
	return nil
}

// Release clears the current job. A Busy printer settles to Idle; a
// printer held in Error/Maintenance keeps its status and only drops the
// job reference.
func (r *Registry) Release(id string) error {
	ps, err := r.state(id)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	old := ps.status
	ps.currentJobID = ""
	if ps.status == PrinterBusy {
		ps.status = PrinterIdle
	}
	newStatus := ps.status
	storeID := ps.storeID
	snap := ps.snapshotLocked()
	ps.mu.Unlock()

	r.persist(snap)
	r.notifyStatus(id, storeID, old, newStatus, "job released")
	return nil
}

// ConsumeConsumables decrements paper and ink for a completed print and
// bumps the page counters. Runs in the same mutation as the job's
// Processing→Printed transition so consumables and job state never
// diverge.
func (r *Registry) ConsumeConsumables(id string, pages, colorPages int) error {
	ps, err := r.state(id)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	ps.paperAvailable -= pages
	if ps.paperAvailable < 0 {
		ps.paperAvailable = 0
	}

	bwPages := pages - colorPages
	for ch, rate := range inkPerPage[ModeBW] {
		ps.ink[ch] -= rate * float64(bwPages)
	}
	for ch, rate := range inkPerPage[ModeColor] {
		ps.ink[ch] -= rate * float64(colorPages)
	}
	for ch := range ps.ink {
		if ps.ink[ch] < 0 {
			ps.ink[ch] = 0
		}
	}

	ps.rolloverLocked(time.Now())
	ps.totalPages += int64(pages)
	ps.pagesToday += int64(pages)
	snap := ps.snapshotLocked()
	ps.mu.Unlock()

	r.persist(snap)
	return nil
}

// UpdateTelemetry applies a heartbeat. Nil fields are left untouched.
func (r *Registry) UpdateTelemetry(id string, paper *int, ink map[string]float64, temperature, humidity *float64) error {
	ps, err := r.state(id)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	if paper != nil {
		v := *paper
		if v < 0 {
			v = 0
		}
		if v > ps.paperCapacity {
			v = ps.paperCapacity
		}
		ps.paperAvailable = v
	}
	for ch, lvl := range ink {
		if lvl < 0 {
			lvl = 0
		}
		if lvl > 100 {
			lvl = 100
		}
		ps.ink[ch] = lvl
	}
	if temperature != nil {
		ps.temperature = *temperature
	}
	if humidity != nil {
		ps.humidity = *humidity
	}
	snap := ps.snapshotLocked()
	ps.mu.Unlock()

	r.persist(snap)
	return nil
}

// Enqueue adds a job to the printer's queue, ordered by priority band
// (lower value first) and FIFO within a band. Returns the dense
// zero-based position the job landed at.
func (r *Registry) Enqueue(id, jobID string, priority int) (int, error) {
	ps, err := r.state(id)
	if err != nil {
		return 0, err
	}

	ps.mu.Lock()
	if !ps.status.Dispatchable() {
		ps.mu.Unlock()
		return 0, fmt.Errorf("%w: %s is %s", ErrPrinterUnavailable, id, ps.status)
	}

	entry := QueueEntry{JobID: jobID, Priority: priority, EnqueuedAt: time.Now()}
	idx := len(ps.queue)
	for i, e := range ps.queue {
		if e.Priority > priority {
			idx = i
			break
		}
	}
	ps.queue = append(ps.queue, QueueEntry{})
	copy(ps.queue[idx+1:], ps.queue[idx:])
	ps.queue[idx] = entry
	renumber(ps.queue)

	snap := ps.snapshotLocked()
	ps.mu.Unlock()

	r.persist(snap)
	return idx, nil
}

// ReserveNext pops the queue head and reserves it as the current job
// in one printer section, so a concurrent promotion can never observe a
// half-dequeued queue.
func (r *Registry) ReserveNext(id string) (string, error) {
	ps, err := r.state(id)
	if err != nil {
		return "", err
	}

	ps.mu.Lock()
	if ps.currentJobID != "" {
		ps.mu.Unlock()
		return "", fmt.Errorf("%w: %s is printing %s", ErrPrinterBusy, id, ps.currentJobID)
	}
	if !ps.status.Reservable() {
		ps.mu.Unlock()
		return "", fmt.Errorf("%w: %s is %s", ErrPrinterUnavailable, id, ps.status)
	}
	if len(ps.queue) == 0 {
		ps.mu.Unlock()
		return "", ErrQueueEmpty
	}
	jobID := ps.queue[0].JobID
	ps.queue = ps.queue[1:]
	renumber(ps.queue)
	old := ps.status
	ps.currentJobID = jobID
	ps.status = PrinterBusy
	storeID := ps.storeID
	snap := ps.snapshotLocked()
	ps.mu.Unlock()

	r.persist(snap)
	r.notifyStatus(id, storeID, old, PrinterBusy, "job "+jobID+" reserved")
	return jobID, nil
}

// DequeueNext pops the queue head.
func (r *Registry) DequeueNext(id string) (string, error) {
	ps, err := r.state(id)
	if err != nil {
		return "", err
	}

	ps.mu.Lock()
	if len(ps.queue) == 0 {
		ps.mu.Unlock()
		return "", ErrQueueEmpty
	}
	jobID := ps.queue[0].JobID
	ps.queue = ps.queue[1:]
	renumber(ps.queue)
	snap := ps.snapshotLocked()
	ps.mu.Unlock()

	r.persist(snap)
	return jobID, nil
}

// RemoveFromQueue drops one job from a printer's queue, if present.
func (r *Registry) RemoveFromQueue(id, jobID string) bool {
	ps, err := r.state(id)
	if err != nil {
		return false
	}

	ps.mu.Lock()
	removed := false
	for i, e := range ps.queue {
		if e.JobID == jobID {
			ps.queue = append(ps.queue[:i], ps.queue[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		ps.mu.Unlock()
		return false
	}
	renumber(ps.queue)
	snap := ps.snapshotLocked()
	ps.mu.Unlock()

	r.persist(snap)
	return true
}

// MoveQueue transfers every pending entry from src to dst, preserving
// relative order within each priority band, and returns the moved job
// IDs. The in-progress job never moves. Both printer sections are taken
// in lexicographic id order so a concurrent move in the opposite
// direction cannot deadlock.
func (r *Registry) MoveQueue(src, dst, reason string) ([]string, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	if src == dst {
		return nil, fmt.Errorf("%w: cannot move a queue onto itself", ErrInvalidTarget)
	}

	srcState, err := r.state(src)
	if err != nil {
		return nil, err
	}
	dstState, err := r.state(dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}

	first, second := srcState, dstState
	if dst < src {
		first, second = dstState, srcState
	}
	first.mu.Lock()
	second.mu.Lock()

	if !dstState.status.Dispatchable() {
		second.mu.Unlock()
		first.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTarget, dst, dstState.status)
	}

	moved := make([]string, 0, len(srcState.queue))
	for _, e := range srcState.queue {
		moved = append(moved, e.JobID)
		idx := len(dstState.queue)
		for i, d := range dstState.queue {
			if d.Priority > e.Priority {
				idx = i
				break
			}
		}
		dstState.queue = append(dstState.queue, QueueEntry{})
		copy(dstState.queue[idx+1:], dstState.queue[idx:])
		dstState.queue[idx] = e
	}
	srcState.queue = nil
	renumber(dstState.queue)

	srcSnap := srcState.snapshotLocked()
	dstSnap := dstState.snapshotLocked()
	second.mu.Unlock()
	first.mu.Unlock()

	r.persist(srcSnap)
	r.persist(dstSnap)
	return moved, nil
}

func renumber(queue []QueueEntry) {
	for i := range queue {
		queue[i].Position = i
	}
}

func dayMark(t time.Time) string {
	return t.Format("2006-01-02")
}
