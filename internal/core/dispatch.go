package core

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"
)

var ErrNoEligiblePrinter = errors.New("no eligible printer")

// Dispatcher admits jobs and assigns each one to the eligible printer
// with the lowest projected completion time. Consumable levels are not
// a dispatch precondition: exhaustion surfaces through the fault path
// after a print attempt.
type Dispatcher struct {
	registry  *Registry
	lifecycle *LifecycleManager
	estimator *Estimator
}

func NewDispatcher(registry *Registry, lifecycle *LifecycleManager, estimator *Estimator) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		lifecycle: lifecycle,
		estimator: estimator,
	}
	registry.SetStatusChangeHook(d.handleStatusChange)
	return d
}

// Submit admits a job and dispatches it. When no printer matches the
// job's capabilities or all matching printers are out of service, the
// job is kept Pending and ErrNoEligiblePrinter is reported; the next
// printer recovery at the store retries it.
func (d *Dispatcher) Submit(job Job) (string, error) {
	if err := d.lifecycle.Admit(job); err != nil {
		return "", err
	}

	printerID, err := d.assign(job.OrderID)
	if err != nil {
		log.Printf("dispatch: job %s left pending: %v", job.OrderID, err)
		return "", err
	}
	return printerID, nil
}

// eligible is the hard capability predicate: paper size, color when the
// job needs any color page, duplex when requested, plus a status that
// accepts dispatch.
func eligible(snap PrinterSnapshot, job Job) bool {
	if !snap.Status.Dispatchable() {
		return false
	}
	if !snap.Capabilities.SupportsSize(job.PaperSize) {
		return false
	}
	if job.NeedsColor() && !snap.Capabilities.Color {
		return false
	}
	if job.Duplex && !snap.Capabilities.Duplex {
		return false
	}
	return true
}

func (d *Dispatcher) assign(orderID string) (string, error) {
	job, err := d.lifecycle.Get(orderID)
	if err != nil {
		return "", err
	}
	if job.Status != JobPending || job.PrinterID != "" {
		return "", fmt.Errorf("%w: %s is not awaiting dispatch", ErrJobStateConflict, orderID)
	}

	now := time.Now()
	var candidates []Candidate
	for _, snap := range d.registry.List(Filter{StoreID: job.StoreID}) {
		if !eligible(snap, job) {
			continue
		}
		candidates = append(candidates, Candidate{
			PrinterID:  snap.ID,
			Completion: d.estimator.ProjectedCompletion(snap, job, now),
			QueueLen:   snap.QueueLength(),
		})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: store %s, size %s, color=%v, duplex=%v",
			ErrNoEligiblePrinter, job.StoreID, job.PaperSize, job.NeedsColor(), job.Duplex)
	}

	for _, cand := range RankCandidates(candidates) {
		if err := d.lifecycle.AssignPrinter(orderID, cand.PrinterID); err != nil {
			return "", err
		}
		if _, err := d.registry.Enqueue(cand.PrinterID, orderID, job.Priority); err != nil {
			// Printer dropped out between ranking and enqueue; put the
			// job back up for dispatch and try the next candidate.
			if unassignErr := d.lifecycle.unassign(orderID); unassignErr != nil {
				return "", unassignErr
			}
			continue
		}

		d.lifecycle.AdvanceQueue(cand.PrinterID)
		return cand.PrinterID, nil
	}

	return "", fmt.Errorf("%w: all candidates became unavailable", ErrNoEligiblePrinter)
}

// RescanStore retries dispatch for every unassigned Pending job at a
// store, most urgent first. Triggered when a printer comes back into a
// dispatchable status.
func (d *Dispatcher) RescanStore(storeID string) {
	pending := d.lifecycle.List(JobFilter{StoreID: storeID, Status: JobPending})

	unassigned := pending[:0]
	for _, job := range pending {
		if job.PrinterID == "" {
			unassigned = append(unassigned, job)
		}
	}
	sort.SliceStable(unassigned, func(i, j int) bool {
		return unassigned[i].Priority < unassigned[j].Priority
	})

	for _, job := range unassigned {
		if _, err := d.assign(job.OrderID); err != nil {
			if errors.Is(err, ErrNoEligiblePrinter) {
				return
			}
			log.Printf("dispatch: rescan %s: %v", job.OrderID, err)
		}
	}
}

func (d *Dispatcher) handleStatusChange(printerID, storeID string, oldStatus, newStatus PrinterStatus) {
	if oldStatus.Dispatchable() || !newStatus.Dispatchable() {
		return
	}
	d.RescanStore(storeID)
}
