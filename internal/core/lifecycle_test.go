package core

import (
	"errors"
	"testing"
)

func TestAdmitValidation(t *testing.T) {
	e := newEngine(t)

	cases := []struct {
		name   string
		mutate func(*Job)
	}{
		{"missing order id", func(j *Job) { j.OrderID = "" }},
		{"missing store id", func(j *Job) { j.StoreID = "" }},
		{"zero pages", func(j *Job) { j.Pages = 0 }},
		{"zero copies", func(j *Job) { j.Copies = 0 }},
		{"priority too low", func(j *Job) { j.Priority = 0 }},
		{"priority too high", func(j *Job) { j.Priority = 11 }},
		{"missing paper size", func(j *Job) { j.PaperSize = "" }},
		{"unknown color mode", func(j *Job) { j.Color = "sepia" }},
		{"bad mode spec", func(j *Job) { j.ModeSpec = []ModeRange{{Ranges: "1-99", Mode: ModeColor}} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := testJob("order-"+tc.name, "store-1", 10, 1)
			tc.mutate(&job)
			if err := e.lifecycle.Admit(job); !errors.Is(err, ErrInvalidJobSpec) {
				t.Errorf("got %v, want ErrInvalidJobSpec", err)
			}
		})
	}
}

func TestAdmitDuplicate(t *testing.T) {
	e := newEngine(t)
	job := testJob("order-1", "store-1", 10, 1)

	if err := e.lifecycle.Admit(job); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if err := e.lifecycle.Admit(job); !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("second admit: got %v, want ErrDuplicateJob", err)
	}
}

// Full pipeline without binding: submit on an idle printer, complete
// the print, observe consumables and the settled states.
func TestPrintPipelineWithoutBinding(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	printerID, err := e.dispatcher.Submit(testJob("order-1", "store-1", 10, 2))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if printerID != "p1" {
		t.Fatalf("assigned to %s, want p1", printerID)
	}

	job := e.mustJob(t, "order-1")
	if job.Status != JobProcessing {
		t.Fatalf("job status = %s, want processing on an idle printer", job.Status)
	}
	if job.ActualStart == nil || job.EstimatedEnd == nil {
		t.Fatal("processing job missing start or estimated end")
	}

	snap := e.mustPrinter(t, "p1")
	if snap.Status != PrinterBusy || snap.CurrentJobID != "order-1" {
		t.Fatalf("printer status=%s current=%q, want busy/order-1", snap.Status, snap.CurrentJobID)
	}

	if err := e.lifecycle.PrintComplete("p1", "order-1", 20); err != nil {
		t.Fatalf("PrintComplete failed: %v", err)
	}

	job = e.mustJob(t, "order-1")
	if job.Status != JobReadyForDelivery {
		t.Fatalf("job status = %s, want ready_for_delivery", job.Status)
	}

	snap = e.mustPrinter(t, "p1")
	if snap.Status != PrinterIdle || snap.CurrentJobID != "" {
		t.Fatalf("printer status=%s current=%q, want idle/empty", snap.Status, snap.CurrentJobID)
	}
	if snap.PaperAvailable != 480 {
		t.Errorf("paper = %d, want 480 after 20 sheets", snap.PaperAvailable)
	}
	if snap.PagesPrintedToday != 20 {
		t.Errorf("pages today = %d, want 20", snap.PagesPrintedToday)
	}

	if err := e.lifecycle.MarkDelivered("order-1", "picked up"); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}
	if got := e.mustJob(t, "order-1").Status; got != JobDelivered {
		t.Fatalf("job status = %s, want delivered", got)
	}
}

func TestBindingPipeline(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	job := testJob("order-1", "store-1", 4, 1)
	job.BindingRequired = true
	if _, err := e.dispatcher.Submit(job); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := e.lifecycle.PrintComplete("p1", "order-1", 4); err != nil {
		t.Fatalf("PrintComplete failed: %v", err)
	}

	if got := e.mustJob(t, "order-1").Status; got != JobBinding {
		t.Fatalf("job status = %s, want binding", got)
	}

	// Delivery before binding completion must be rejected.
	if err := e.lifecycle.MarkDelivered("order-1", ""); !errors.Is(err, ErrJobStateConflict) {
		t.Fatalf("premature delivery: got %v, want ErrJobStateConflict", err)
	}

	if err := e.lifecycle.MarkBindingCompleted("order-1", "spiral bound"); err != nil {
		t.Fatalf("MarkBindingCompleted failed: %v", err)
	}
	got := e.mustJob(t, "order-1")
	if got.Status != JobReadyForDelivery || !got.BindingDone {
		t.Fatalf("after binding: status=%s done=%v, want ready_for_delivery/true", got.Status, got.BindingDone)
	}

	if err := e.lifecycle.MarkDelivered("order-1", ""); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	if _, err := e.dispatcher.Submit(testJob("order-1", "store-1", 2, 1)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := e.lifecycle.Cancel("order-1", ActorSupervisor, "changed mind"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if err := e.lifecycle.Cancel("order-1", ActorSupervisor, "again"); !errors.Is(err, ErrJobStateConflict) {
		t.Fatalf("cancel of cancelled: got %v, want ErrJobStateConflict", err)
	}
	if err := e.lifecycle.MarkDelivered("order-1", ""); !errors.Is(err, ErrJobStateConflict) {
		t.Fatalf("deliver cancelled: got %v, want ErrJobStateConflict", err)
	}
	if err := e.lifecycle.MarkBindingCompleted("order-1", ""); !errors.Is(err, ErrJobStateConflict) {
		t.Fatalf("bind cancelled: got %v, want ErrJobStateConflict", err)
	}
}

// A jam holds the job in Processing and faults the printer; nothing is
// retried until a supervisor steps in.
func TestPrintFaultJamHoldsJob(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	if _, err := e.dispatcher.Submit(testJob("order-1", "store-1", 10, 1)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := e.lifecycle.PrintFault("p1", "order-1", FaultJam); err != nil {
		t.Fatalf("PrintFault failed: %v", err)
	}

	job := e.mustJob(t, "order-1")
	if job.Status != JobProcessing {
		t.Fatalf("job status = %s, want still processing", job.Status)
	}

	snap := e.mustPrinter(t, "p1")
	if snap.Status != PrinterError {
		t.Fatalf("printer status = %s, want error", snap.Status)
	}
	if snap.CurrentJobID != "order-1" {
		t.Fatalf("current job = %q, want order-1 held on the printer", snap.CurrentJobID)
	}
	if snap.LastJam == nil {
		t.Fatal("jam timestamp not recorded")
	}
}

// Consumable exhaustion retries once within the budget, then fails the
// job and faults the printer.
func TestPrintFaultRetryThenFail(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	if _, err := e.dispatcher.Submit(testJob("order-1", "store-1", 10, 1)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// First fault: requeued on the same printer and promoted again.
	if err := e.lifecycle.PrintFault("p1", "order-1", FaultOutOfPaper); err != nil {
		t.Fatalf("first PrintFault failed: %v", err)
	}
	job := e.mustJob(t, "order-1")
	if job.Status != JobProcessing || job.RetryCount != 1 {
		t.Fatalf("after retry: status=%s retries=%d, want processing/1", job.Status, job.RetryCount)
	}

	// Second fault exceeds the budget.
	if err := e.lifecycle.PrintFault("p1", "order-1", FaultOutOfPaper); err != nil {
		t.Fatalf("second PrintFault failed: %v", err)
	}
	job = e.mustJob(t, "order-1")
	if job.Status != JobFailed {
		t.Fatalf("job status = %s, want failed", job.Status)
	}
	if job.ErrorMessage == "" {
		t.Error("failed job missing error message")
	}

	snap := e.mustPrinter(t, "p1")
	if snap.Status != PrinterError {
		t.Errorf("printer status = %s, want error", snap.Status)
	}
	if snap.CurrentJobID != "" {
		t.Errorf("current job = %q, want released", snap.CurrentJobID)
	}
}

func TestPrintCompleteWrongPrinter(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	if _, err := e.dispatcher.Submit(testJob("order-1", "store-1", 2, 1)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := e.lifecycle.PrintComplete("p9", "order-1", 2); !errors.Is(err, ErrJobStateConflict) {
		t.Fatalf("wrong printer: got %v, want ErrJobStateConflict", err)
	}
}

// Cancelling the in-progress job releases the printer and promotes the
// next queued job.
func TestCancelProcessingAdvancesQueue(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	if _, err := e.dispatcher.Submit(testJob("order-1", "store-1", 10, 1)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := e.dispatcher.Submit(testJob("order-2", "store-1", 10, 1)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if got := e.mustJob(t, "order-2").Status; got != JobPending {
		t.Fatalf("queued job status = %s, want pending", got)
	}

	if err := e.lifecycle.Cancel("order-1", ActorSupervisor, "rush order bumped"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if got := e.mustJob(t, "order-2").Status; got != JobProcessing {
		t.Fatalf("next job status = %s, want promoted to processing", got)
	}
	snap := e.mustPrinter(t, "p1")
	if snap.CurrentJobID != "order-2" {
		t.Fatalf("current job = %q, want order-2", snap.CurrentJobID)
	}
}

// A stale queue entry whose job is no longer Pending is skipped at
// promotion time instead of wedging the printer.
func TestAdvanceQueueSkipsStaleEntries(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	if _, err := e.dispatcher.Submit(testJob("order-1", "store-1", 5, 1)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// order-2 is queued without a recorded assignment, so cancelling it
	// leaves its queue entry behind.
	if err := e.lifecycle.Admit(testJob("order-2", "store-1", 5, 1)); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if _, err := e.registry.Enqueue("p1", "order-2", 5); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := e.dispatcher.Submit(testJob("order-3", "store-1", 5, 1)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := e.lifecycle.Cancel("order-2", ActorSupervisor, "duplicate"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if err := e.lifecycle.PrintComplete("p1", "order-1", 5); err != nil {
		t.Fatalf("PrintComplete failed: %v", err)
	}

	if got := e.mustJob(t, "order-3").Status; got != JobProcessing {
		t.Fatalf("order-3 status = %s, want processing after skipping the stale entry", got)
	}
	snap := e.mustPrinter(t, "p1")
	if snap.CurrentJobID != "order-3" {
		t.Fatalf("current job = %q, want order-3", snap.CurrentJobID)
	}
}

func TestQueuedJobsGetETAs(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	if _, err := e.dispatcher.Submit(testJob("order-1", "store-1", 10, 1)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := e.dispatcher.Submit(testJob("order-2", "store-1", 10, 1)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	queued := e.mustJob(t, "order-2")
	if queued.Status != JobPending {
		t.Fatalf("order-2 status = %s, want pending", queued.Status)
	}
	if queued.EstimatedEnd == nil {
		t.Fatal("queued job missing estimated end")
	}

	running := e.mustJob(t, "order-1")
	if running.EstimatedEnd == nil {
		t.Fatal("running job missing estimated end")
	}
	if !queued.EstimatedEnd.After(*running.EstimatedEnd) {
		t.Errorf("queued ETA %s not after running ETA %s", queued.EstimatedEnd, running.EstimatedEnd)
	}
}

// A pending job that already holds a printer must not be claimed a
// second time, even when two dispatch paths race over it.
func TestAssignPrinterRejectsSecondAssignment(t *testing.T) {
	e := newEngine(t)

	if err := e.lifecycle.Admit(testJob("order-1", "store-1", 10, 1)); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if err := e.lifecycle.AssignPrinter("order-1", "p1"); err != nil {
		t.Fatalf("first assign failed: %v", err)
	}

	if err := e.lifecycle.AssignPrinter("order-1", "p2"); !errors.Is(err, ErrJobStateConflict) {
		t.Fatalf("second assign: got %v, want ErrJobStateConflict", err)
	}
	if got := e.mustJob(t, "order-1").PrinterID; got != "p1" {
		t.Fatalf("printer id = %q, want p1 after rejected reassignment", got)
	}

	// The dispatcher's enqueue-failure path releases the claim first;
	// a fresh assignment must still succeed after that.
	if err := e.lifecycle.unassign("order-1"); err != nil {
		t.Fatalf("unassign failed: %v", err)
	}
	if err := e.lifecycle.AssignPrinter("order-1", "p2"); err != nil {
		t.Fatalf("assign after unassign failed: %v", err)
	}
	if got := e.mustJob(t, "order-1").PrinterID; got != "p2" {
		t.Fatalf("printer id = %q, want p2", got)
	}
}
