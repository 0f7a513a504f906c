package core

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
)

// OverrideController is the supervisor-facing surface. Every mutation
// goes through the same serialized registry/lifecycle paths the
// Dispatcher uses, so overrides and dispatch never race unserialized.
type OverrideController struct {
	registry   *Registry
	lifecycle  *LifecycleManager
	dispatcher *Dispatcher
	audit      ActivityLogger
}

func NewOverrideController(registry *Registry, lifecycle *LifecycleManager, dispatcher *Dispatcher, audit ActivityLogger) *OverrideController {
	return &OverrideController{
		registry:   registry,
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
		audit:      audit,
	}
}

func (o *OverrideController) record(action, entityType, entityID, details string) {
	if o.audit != nil {
		o.audit.Record(ActorSupervisor, action, entityType, entityID, details)
	}
}

// PausePrinter blocks new dispatch by moving the printer to Maintenance
// (or Offline). The in-flight job, if any, keeps Processing: pausing
// does not abort current work.
func (o *OverrideController) PausePrinter(printerID string, offline bool, reason string) error {
	target := PrinterMaintenance
	if offline {
		target = PrinterOffline
	}
	if err := o.registry.UpdateStatus(printerID, target, reason); err != nil {
		return err
	}
	o.record("printer_paused", "printer", printerID, reason)
	return nil
}

// ResumePrinter brings a paused printer back Online and promotes its
// queue head. The status change also triggers a Pending-job rescan for
// the store through the dispatcher hook.
func (o *OverrideController) ResumePrinter(printerID string) error {
	if err := o.registry.UpdateStatus(printerID, PrinterOnline, "supervisor resume"); err != nil {
		return err
	}
	o.lifecycle.AdvanceQueue(printerID)
	o.record("printer_resumed", "printer", printerID, "")
	return nil
}

// CancelCurrentJob cancels whatever the printer is currently printing,
// releases the reservation and promotes the next queued job.
func (o *OverrideController) CancelCurrentJob(printerID, reason string) (string, error) {
	snap, err := o.registry.Get(printerID)
	if err != nil {
		return "", err
	}
	if snap.CurrentJobID == "" {
		return "", fmt.Errorf("%w: printer %s has no current job", ErrJobStateConflict, printerID)
	}
	if err := o.lifecycle.Cancel(snap.CurrentJobID, ActorSupervisor, reason); err != nil {
		return "", err
	}
	return snap.CurrentJobID, nil
}

// CancelJob cancels one job by order id.
func (o *OverrideController) CancelJob(orderID, reason string) error {
	return o.lifecycle.Cancel(orderID, ActorSupervisor, reason)
}

// MoveQueue moves every Pending job queued on src over to dst in
// original relative priority order, retargets the jobs and recomputes
// both printers' ETAs. The in-progress job on src never moves.
func (o *OverrideController) MoveQueue(src, dst, reason string) (int, error) {
	if strings.TrimSpace(reason) == "" {
		return 0, ErrReasonRequired
	}

	moved, err := o.registry.MoveQueue(src, dst, reason)
	if err != nil {
		return 0, err
	}

	for _, orderID := range moved {
		if err := o.lifecycle.reassignPending(orderID, dst); err != nil {
			log.Printf("override: retarget %s to %s: %v", orderID, dst, err)
		}
	}

	o.lifecycle.RefreshQueueETAs(src)
	o.lifecycle.AdvanceQueue(dst)

	o.record("queue_override", "printer", src,
		fmt.Sprintf("moved %d jobs to %s: %s", len(moved), dst, reason))
	return len(moved), nil
}

// TestPrint submits a one-page system job targeted at a specific
// printer, bypassing printer selection.
func (o *OverrideController) TestPrint(printerID string) (string, error) {
	snap, err := o.registry.Get(printerID)
	if err != nil {
		return "", err
	}

	orderID := "test-" + uuid.NewString()
	job := Job{
		OrderID:   orderID,
		UserID:    ActorSupervisor,
		StoreID:   snap.StoreID,
		Pages:     1,
		Copies:    1,
		Color:     ModeBW,
		PaperSize: snap.Capabilities.Sizes[0],
		Priority:  1,
	}
	if err := o.lifecycle.Admit(job); err != nil {
		return "", err
	}
	if err := o.lifecycle.AssignPrinter(orderID, printerID); err != nil {
		return "", err
	}
	if _, err := o.registry.Enqueue(printerID, orderID, job.Priority); err != nil {
		return "", err
	}
	o.lifecycle.AdvanceQueue(printerID)

	o.record("test_print", "printer", printerID, "test job "+orderID)
	return orderID, nil
}
