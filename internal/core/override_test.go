package core

import (
	"errors"
	"strings"
	"testing"
)

func TestPauseKeepsCurrentJob(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	if _, err := e.dispatcher.Submit(testJob("order-1", "store-1", 10, 1)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := e.overrides.PausePrinter("p1", false, "toner change"); err != nil {
		t.Fatalf("PausePrinter failed: %v", err)
	}

	snap := e.mustPrinter(t, "p1")
	if snap.Status != PrinterMaintenance {
		t.Fatalf("status = %s, want maintenance", snap.Status)
	}
	if snap.CurrentJobID != "order-1" {
		t.Fatalf("current job = %q, pausing must not abort the in-flight job", snap.CurrentJobID)
	}
	if got := e.mustJob(t, "order-1").Status; got != JobProcessing {
		t.Fatalf("job status = %s, want still processing", got)
	}
}

func TestPauseOfflineAndResume(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	if err := e.overrides.PausePrinter("p1", true, "end of shift"); err != nil {
		t.Fatalf("PausePrinter failed: %v", err)
	}
	if got := e.mustPrinter(t, "p1").Status; got != PrinterOffline {
		t.Fatalf("status = %s, want offline", got)
	}

	if err := e.overrides.ResumePrinter("p1"); err != nil {
		t.Fatalf("ResumePrinter failed: %v", err)
	}
	if got := e.mustPrinter(t, "p1").Status; got != PrinterOnline {
		t.Fatalf("status = %s, want online", got)
	}
}

func TestResumePromotesQueuedWork(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	// Queue work directly while the printer still accepts it, then
	// pause before promotion could happen.
	if err := e.overrides.PausePrinter("p1", false, "calibration"); err != nil {
		t.Fatalf("PausePrinter failed: %v", err)
	}
	if _, err := e.dispatcher.Submit(testJob("order-1", "store-1", 5, 1)); !errors.Is(err, ErrNoEligiblePrinter) {
		t.Fatalf("Submit on paused fleet: got %v, want ErrNoEligiblePrinter", err)
	}

	if err := e.overrides.ResumePrinter("p1"); err != nil {
		t.Fatalf("ResumePrinter failed: %v", err)
	}
	e.dispatcher.RescanStore("store-1")

	if got := e.mustJob(t, "order-1").Status; got != JobProcessing {
		t.Fatalf("job status = %s, want processing after resume", got)
	}
}

func TestCancelCurrentJob(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	if _, err := e.dispatcher.Submit(testJob("order-1", "store-1", 10, 1)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	orderID, err := e.overrides.CancelCurrentJob("p1", "wrong file uploaded")
	if err != nil {
		t.Fatalf("CancelCurrentJob failed: %v", err)
	}
	if orderID != "order-1" {
		t.Fatalf("cancelled %s, want order-1", orderID)
	}
	if got := e.mustJob(t, "order-1").Status; got != JobCancelled {
		t.Fatalf("job status = %s, want cancelled", got)
	}
	if got := e.mustPrinter(t, "p1").Status; got != PrinterIdle {
		t.Fatalf("printer status = %s, want idle", got)
	}

	if _, err := e.overrides.CancelCurrentJob("p1", "again"); !errors.Is(err, ErrJobStateConflict) {
		t.Fatalf("cancel with no current job: got %v, want ErrJobStateConflict", err)
	}
}

// Queue override: pending jobs move to the target, the in-progress job
// stays, and the target starts working the moved queue.
func TestMoveQueueOverride(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")
	e.mustCreatePrinter(t, "p2", "store-1")

	// Park p2 so everything lands on p1 first.
	if err := e.overrides.PausePrinter("p2", false, "setup"); err != nil {
		t.Fatalf("PausePrinter failed: %v", err)
	}

	for _, id := range []string{"order-1", "order-2", "order-3", "order-4"} {
		if _, err := e.dispatcher.Submit(testJob(id, "store-1", 5, 1)); err != nil {
			t.Fatalf("Submit %s failed: %v", id, err)
		}
	}
	if got := e.mustJob(t, "order-1").Status; got != JobProcessing {
		t.Fatalf("order-1 status = %s, want processing on p1", got)
	}

	if err := e.overrides.ResumePrinter("p2"); err != nil {
		t.Fatalf("ResumePrinter failed: %v", err)
	}

	count, err := e.overrides.MoveQueue("p1", "p2", "p1 overloaded")
	if err != nil {
		t.Fatalf("MoveQueue failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("moved %d jobs, want 3", count)
	}

	// The in-progress job stays put.
	src := e.mustPrinter(t, "p1")
	if src.CurrentJobID != "order-1" || len(src.Queue) != 0 {
		t.Fatalf("source current=%q queue=%v, want order-1 with empty queue", src.CurrentJobID, queueIDs(src))
	}

	// The target promoted the moved head and holds the rest.
	dst := e.mustPrinter(t, "p2")
	if dst.CurrentJobID != "order-2" {
		t.Fatalf("target current = %q, want order-2 promoted", dst.CurrentJobID)
	}
	for _, id := range []string{"order-3", "order-4"} {
		job := e.mustJob(t, id)
		if job.PrinterID != "p2" || job.Status != JobPending {
			t.Errorf("%s printer=%q status=%s, want pending on p2", id, job.PrinterID, job.Status)
		}
		if job.EstimatedEnd == nil {
			t.Errorf("%s missing refreshed estimate", id)
		}
	}
}

func TestMoveQueueRequiresReason(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")
	e.mustCreatePrinter(t, "p2", "store-1")

	if _, err := e.overrides.MoveQueue("p1", "p2", "   "); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("got %v, want ErrReasonRequired", err)
	}
	if _, err := e.overrides.MoveQueue("p1", "p1", "shuffle"); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("self move: got %v, want ErrInvalidTarget", err)
	}
}

func TestTestPrint(t *testing.T) {
	e := newEngine(t)
	e.mustCreatePrinter(t, "p1", "store-1")

	orderID, err := e.overrides.TestPrint("p1")
	if err != nil {
		t.Fatalf("TestPrint failed: %v", err)
	}
	if !strings.HasPrefix(orderID, "test-") {
		t.Fatalf("order id = %q, want test- prefix", orderID)
	}

	job := e.mustJob(t, orderID)
	if job.Status != JobProcessing || job.PrinterID != "p1" {
		t.Fatalf("test job status=%s printer=%q, want processing on p1", job.Status, job.PrinterID)
	}
	if job.Pages != 1 || job.Copies != 1 || job.Priority != 1 {
		t.Fatalf("test job = %d pages, %d copies, priority %d; want 1/1/1", job.Pages, job.Copies, job.Priority)
	}

	if err := e.lifecycle.PrintComplete("p1", orderID, 1); err != nil {
		t.Fatalf("PrintComplete failed: %v", err)
	}
	if got := e.mustPrinter(t, "p1").Status; got != PrinterIdle {
		t.Fatalf("printer status = %s, want idle after the test page", got)
	}
}
