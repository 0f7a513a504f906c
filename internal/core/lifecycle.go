package core

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrDuplicateJob     = errors.New("job already exists")
	ErrInvalidJobSpec   = errors.New("invalid job spec")
	ErrJobStateConflict = errors.New("job state conflict")
)

// JobStore persists job snapshots. Calls happen outside of any job
// section, in transition order per job, and must not block the caller
// beyond a queue handoff.
type JobStore interface {
	SaveJob(job Job)
}

type jobState struct {
	mu  sync.Mutex
	job Job
}

// LifecycleManager owns every job's state machine. Transitions on one
// job are serialized by a per-job section; the reservation path takes
// the printer section first (inside Registry) and the job section
// second, never the reverse while a printer section is held.
type LifecycleManager struct {
	mu   sync.RWMutex
	jobs map[string]*jobState

	registry    *Registry
	estimator   *Estimator
	sink        EventSink
	audit       ActivityLogger
	store       JobStore
	retryBudget int
}

func NewLifecycleManager(registry *Registry, sink EventSink, audit ActivityLogger, store JobStore, retryBudget int) *LifecycleManager {
	if retryBudget < 0 {
		retryBudget = 0
	}
	return &LifecycleManager{
		jobs:        make(map[string]*jobState),
		registry:    registry,
		sink:        sink,
		audit:       audit,
		store:       store,
		retryBudget: retryBudget,
	}
}

// SetEstimator breaks the construction cycle: the estimator needs the
// manager as its job source. Must be called before traffic.
func (m *LifecycleManager) SetEstimator(est *Estimator) {
	m.estimator = est
}

func (m *LifecycleManager) state(orderID string) (*jobState, error) {
	m.mu.RLock()
	js, ok := m.jobs[orderID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, orderID)
	}
	return js, nil
}

// notify runs after the job's section is released. Store and audit
// calls stay synchronous so writes land in transition order; the store
// queues the actual I/O. Event fan-out may block on slow consumers and
// goes async.
func (m *LifecycleManager) notify(event, actor, details string, job Job) {
	if m.store != nil {
		m.store.SaveJob(job)
	}
	if m.audit != nil {
		m.audit.Record(actor, event, "job", job.OrderID, details)
	}
	if m.sink != nil {
		go m.sink.JobEvent(event, job)
	}
}

// Admit validates and registers a new job as Pending. The job is not
// yet assigned to a printer; the Dispatcher does that next.
func (m *LifecycleManager) Admit(job Job) error {
	if job.OrderID == "" {
		return fmt.Errorf("%w: order id is required", ErrInvalidJobSpec)
	}
	if job.StoreID == "" {
		return fmt.Errorf("%w: store id is required", ErrInvalidJobSpec)
	}
	if job.Pages <= 0 {
		return fmt.Errorf("%w: page count must be positive", ErrInvalidJobSpec)
	}
	if job.Copies <= 0 {
		return fmt.Errorf("%w: copies must be positive", ErrInvalidJobSpec)
	}
	if job.Priority < 1 || job.Priority > 10 {
		return fmt.Errorf("%w: priority must be 1-10", ErrInvalidJobSpec)
	}
	if job.PaperSize == "" {
		return fmt.Errorf("%w: paper size is required", ErrInvalidJobSpec)
	}
	if len(job.ModeSpec) == 0 && job.Color != ModeBW && job.Color != ModeColor {
		return fmt.Errorf("%w: unknown color mode %q", ErrInvalidJobSpec, job.Color)
	}
	if len(job.ModeSpec) > 0 {
		if err := ValidateModeSpec(job.ModeSpec, job.Pages); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidJobSpec, err)
		}
	}

	job.Status = JobPending
	job.PrinterID = ""
	job.RetryCount = 0
	job.BindingDone = false
	job.CreatedAt = time.Now()

	js := &jobState{job: job}

	m.mu.Lock()
	if _, exists := m.jobs[job.OrderID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.OrderID)
	}
	m.jobs[job.OrderID] = js
	m.mu.Unlock()

	m.notify("job_admitted", ActorSystem, "admitted as pending", job)
	return nil
}

// Load installs a persisted job as-is. Used at startup.
func (m *LifecycleManager) Load(job Job) {
	m.mu.Lock()
	m.jobs[job.OrderID] = &jobState{job: job}
	m.mu.Unlock()
}

// Get returns a copy of one job.
func (m *LifecycleManager) Get(orderID string) (Job, error) {
	js, err := m.state(orderID)
	if err != nil {
		return Job{}, err
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.job, nil
}

// JobFilter narrows List results. Zero values match everything.
type JobFilter struct {
	StoreID   string
	PrinterID string
	Status    JobStatus
}

// List returns copies of all jobs matching the filter, ordered by
// creation time then order id.
func (m *LifecycleManager) List(f JobFilter) []Job {
	m.mu.RLock()
	states := make([]*jobState, 0, len(m.jobs))
	for _, js := range m.jobs {
		states = append(states, js)
	}
	m.mu.RUnlock()

	jobs := make([]Job, 0, len(states))
	for _, js := range states {
		js.mu.Lock()
		job := js.job
		js.mu.Unlock()

		if f.StoreID != "" && job.StoreID != f.StoreID {
			continue
		}
		if f.PrinterID != "" && job.PrinterID != f.PrinterID {
			continue
		}
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].OrderID < jobs[j].OrderID
	})
	return jobs
}

// JobSummary implements JobSource for the estimator.
func (m *LifecycleManager) JobSummary(orderID string) (JobSummary, bool) {
	js, err := m.state(orderID)
	if err != nil {
		return JobSummary{}, false
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	return JobSummary{
		Pages:       js.job.Pages,
		Copies:      js.job.Copies,
		ColorPages:  js.job.ColorPages(),
		ActualStart: js.job.ActualStart,
	}, true
}

// AssignPrinter records the dispatch target on a still-Pending,
// still-unassigned job. A job already holding a printer must go through
// unassign or reassignPending first, so two concurrent dispatch paths
// cannot both claim it.
func (m *LifecycleManager) AssignPrinter(orderID, printerID string) error {
	js, err := m.state(orderID)
	if err != nil {
		return err
	}

	js.mu.Lock()
	if js.job.Status != JobPending {
		js.mu.Unlock()
		return fmt.Errorf("%w: %s is %s, not pending", ErrJobStateConflict, orderID, js.job.Status)
	}
	if js.job.PrinterID != "" {
		assigned := js.job.PrinterID
		js.mu.Unlock()
		return fmt.Errorf("%w: %s is already assigned to %s", ErrJobStateConflict, orderID, assigned)
	}
	js.job.PrinterID = printerID
	job := js.job
	js.mu.Unlock()

	m.notify("job_dispatched", ActorSystem, "queued on printer "+printerID, job)
	return nil
}

// unassign reverts a still-Pending job to the unassigned pool after a
// failed enqueue, so a later rescan picks it up again.
func (m *LifecycleManager) unassign(orderID string) error {
	js, err := m.state(orderID)
	if err != nil {
		return err
	}
	js.mu.Lock()
	if js.job.Status == JobPending {
		js.job.PrinterID = ""
	}
	js.mu.Unlock()
	return nil
}

// reassignPending retargets a still-Pending job after a queue override
// moved it to another printer.
func (m *LifecycleManager) reassignPending(orderID, printerID string) error {
	js, err := m.state(orderID)
	if err != nil {
		return err
	}

	js.mu.Lock()
	if js.job.Status != JobPending {
		status := js.job.Status
		js.mu.Unlock()
		return fmt.Errorf("%w: %s is %s, not pending", ErrJobStateConflict, orderID, status)
	}
	js.job.PrinterID = printerID
	job := js.job
	js.mu.Unlock()

	m.notify("job_moved", ActorSupervisor, "moved to printer "+printerID, job)
	return nil
}

// StartProcessing promotes a job whose printer reservation just
// succeeded: Pending → Processing, stamping the actual start and the
// estimated end.
func (m *LifecycleManager) StartProcessing(orderID, printerID string) error {
	js, err := m.state(orderID)
	if err != nil {
		return err
	}

	js.mu.Lock()
	if js.job.Status != JobPending {
		js.mu.Unlock()
		return fmt.Errorf("%w: %s is %s, not pending", ErrJobStateConflict, orderID, js.job.Status)
	}
	now := time.Now()
	js.job.Status = JobProcessing
	js.job.PrinterID = printerID
	js.job.ActualStart = &now
	if m.estimator != nil {
		end := now.Add(m.estimator.times.JobDuration(js.job.Pages, js.job.Copies, js.job.ColorPages()))
		js.job.EstimatedEnd = &end
	}
	job := js.job
	js.mu.Unlock()

	m.notify("job_started", ActorSystem, "printing on "+printerID, job)
	return nil
}

// PrintComplete handles a printer's completion event: the job moves
// Processing → Printed, consumables are decremented and the printer
// released in the same mutation, and the job settles into Binding or
// ReadyForDelivery depending on the order.
func (m *LifecycleManager) PrintComplete(printerID, orderID string, pagesPrinted int) error {
	js, err := m.state(orderID)
	if err != nil {
		return err
	}

	js.mu.Lock()
	if js.job.Status != JobProcessing || js.job.PrinterID != printerID {
		status, onPrinter := js.job.Status, js.job.PrinterID
		js.mu.Unlock()
		return fmt.Errorf("%w: %s is %s on printer %q", ErrJobStateConflict, orderID, status, onPrinter)
	}

	colorPages := js.job.ColorPages() * js.job.Copies
	if colorPages > pagesPrinted {
		colorPages = pagesPrinted
	}
	if err := m.registry.ConsumeConsumables(printerID, pagesPrinted, colorPages); err != nil {
		log.Printf("lifecycle: consume consumables on %s: %v", printerID, err)
	}
	if err := m.registry.Release(printerID); err != nil {
		log.Printf("lifecycle: release %s: %v", printerID, err)
	}

	js.job.Status = JobPrinted
	printed := js.job
	if js.job.BindingRequired {
		js.job.Status = JobBinding
	} else {
		js.job.Status = JobReadyForDelivery
	}
	job := js.job
	js.mu.Unlock()

	m.notify("job_printed", ActorSystem, fmt.Sprintf("%d pages printed", pagesPrinted), printed)
	if job.Status == JobBinding {
		m.notify("job_binding", ActorSystem, "awaiting manual binding", job)
	} else {
		m.notify("job_ready", ActorSystem, "ready for delivery", job)
	}

	m.AdvanceQueue(printerID)
	return nil
}

// PrintFault handles a fault event from a printer. Jams hold the job in
// Processing with the printer in Error until a supervisor intervenes.
// Consumable exhaustion and hardware faults retry within the budget,
// then fail the job and put the printer in Error.
func (m *LifecycleManager) PrintFault(printerID, orderID string, fault FaultType) error {
	js, err := m.state(orderID)
	if err != nil {
		return err
	}

	js.mu.Lock()
	if js.job.Status != JobProcessing || js.job.PrinterID != printerID {
		status, onPrinter := js.job.Status, js.job.PrinterID
		js.mu.Unlock()
		return fmt.Errorf("%w: %s is %s on printer %q", ErrJobStateConflict, orderID, status, onPrinter)
	}

	if fault == FaultJam {
		job := js.job
		js.mu.Unlock()

		if err := m.registry.RecordFault(printerID, fault); err != nil {
			log.Printf("lifecycle: record fault on %s: %v", printerID, err)
		}
		m.notify("job_held", ActorSystem, "jam on "+printerID+", held for supervisor", job)
		return nil
	}

	js.job.RetryCount++
	if js.job.RetryCount <= m.retryBudget {
		js.job.Status = JobPending
		js.job.ActualStart = nil
		job := js.job
		js.mu.Unlock()

		if err := m.registry.Release(printerID); err != nil {
			log.Printf("lifecycle: release %s: %v", printerID, err)
		}
		if _, err := m.registry.Enqueue(printerID, orderID, job.Priority); err != nil {
			log.Printf("lifecycle: requeue %s on %s: %v", orderID, printerID, err)
		}
		m.notify("job_retrying", ActorSystem,
			fmt.Sprintf("%s on %s, retry %d of %d", fault, printerID, job.RetryCount, m.retryBudget), job)
		m.AdvanceQueue(printerID)
		return nil
	}

	js.job.Status = JobFailed
	js.job.ErrorMessage = fmt.Sprintf("%s on printer %s after %d retries", fault, printerID, js.job.RetryCount-1)
	job := js.job
	js.mu.Unlock()

	if err := m.registry.RecordFault(printerID, fault); err != nil {
		log.Printf("lifecycle: record fault on %s: %v", printerID, err)
	}
	if err := m.registry.Release(printerID); err != nil {
		log.Printf("lifecycle: release %s: %v", printerID, err)
	}
	m.notify("job_failed", ActorSystem, job.ErrorMessage, job)
	return nil
}

// MarkBindingCompleted is the explicit supervisor action closing the
// manual binding step: Binding → ReadyForDelivery.
func (m *LifecycleManager) MarkBindingCompleted(orderID, notes string) error {
	js, err := m.state(orderID)
	if err != nil {
		return err
	}

	js.mu.Lock()
	if js.job.Status != JobBinding {
		status := js.job.Status
		js.mu.Unlock()
		return fmt.Errorf("%w: %s is %s, not binding", ErrJobStateConflict, orderID, status)
	}
	js.job.BindingDone = true
	js.job.Status = JobReadyForDelivery
	job := js.job
	js.mu.Unlock()

	m.notify("job_ready", ActorSupervisor, notes, job)
	return nil
}

// MarkDelivered closes the pipeline: ReadyForDelivery → Delivered.
func (m *LifecycleManager) MarkDelivered(orderID, notes string) error {
	js, err := m.state(orderID)
	if err != nil {
		return err
	}

	js.mu.Lock()
	if js.job.Status != JobReadyForDelivery {
		status := js.job.Status
		js.mu.Unlock()
		return fmt.Errorf("%w: %s is %s, not ready for delivery", ErrJobStateConflict, orderID, status)
	}
	js.job.Status = JobDelivered
	job := js.job
	js.mu.Unlock()

	m.notify("job_delivered", ActorSupervisor, notes, job)
	return nil
}

// Cancel aborts a Pending or Processing job. A Processing cancellation
// releases the printer and promotes the next queued job.
func (m *LifecycleManager) Cancel(orderID, actor, reason string) error {
	js, err := m.state(orderID)
	if err != nil {
		return err
	}

	js.mu.Lock()
	switch js.job.Status {
	case JobPending:
		printerID := js.job.PrinterID
		js.job.Status = JobCancelled
		js.job.ErrorMessage = reason
		job := js.job
		js.mu.Unlock()

		if printerID != "" {
			m.registry.RemoveFromQueue(printerID, orderID)
			m.RefreshQueueETAs(printerID)
		}
		m.notify("job_cancelled", actor, reason, job)
		return nil

	case JobProcessing:
		printerID := js.job.PrinterID
		js.job.Status = JobCancelled
		js.job.ErrorMessage = reason
		job := js.job
		js.mu.Unlock()

		if err := m.registry.Release(printerID); err != nil {
			log.Printf("lifecycle: release %s: %v", printerID, err)
		}
		m.notify("job_cancelled", actor, reason, job)
		m.AdvanceQueue(printerID)
		return nil

	default:
		status := js.job.Status
		js.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel %s while %s", ErrJobStateConflict, orderID, status)
	}
}

// AdvanceQueue promotes queue heads while the printer can take work.
// Jobs cancelled between dequeue and promotion are skipped.
func (m *LifecycleManager) AdvanceQueue(printerID string) {
	for {
		orderID, err := m.registry.ReserveNext(printerID)
		if err != nil {
			if !errors.Is(err, ErrQueueEmpty) && !errors.Is(err, ErrPrinterBusy) &&
				!errors.Is(err, ErrPrinterUnavailable) && !errors.Is(err, ErrPrinterNotFound) {
				log.Printf("lifecycle: reserve next on %s: %v", printerID, err)
			}
			break
		}

		if err := m.StartProcessing(orderID, printerID); err != nil {
			// Stale queue entry, e.g. cancelled while queued.
			if relErr := m.registry.Release(printerID); relErr != nil {
				log.Printf("lifecycle: release %s: %v", printerID, relErr)
			}
			continue
		}
		break
	}
	m.RefreshQueueETAs(printerID)
}

// RefreshQueueETAs recomputes estimated end times for every queued job
// on a printer from a fresh snapshot.
func (m *LifecycleManager) RefreshQueueETAs(printerID string) {
	if m.estimator == nil {
		return
	}
	snap, err := m.registry.Get(printerID)
	if err != nil {
		return
	}

	for _, eta := range m.estimator.QueueProjection(snap, time.Now()) {
		js, err := m.state(eta.JobID)
		if err != nil {
			continue
		}
		js.mu.Lock()
		if js.job.Status == JobPending {
			end := eta.End
			js.job.EstimatedEnd = &end
		}
		job := js.job
		js.mu.Unlock()

		if m.store != nil {
			m.store.SaveJob(job)
		}
	}
}
