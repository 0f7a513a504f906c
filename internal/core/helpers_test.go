package core

import (
	"testing"
	"time"
)

var testTimes = ServiceTimes{
	PerPage:         4 * time.Second,
	ColorMultiplier: 1.5,
	Setup:           15 * time.Second,
}

// engine bundles a fully wired scheduling core with no persistence and
// no event sinks.
type engine struct {
	registry   *Registry
	lifecycle  *LifecycleManager
	estimator  *Estimator
	dispatcher *Dispatcher
	overrides  *OverrideController
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	registry := NewRegistry(nil, nil)
	lifecycle := NewLifecycleManager(registry, nil, nil, nil, 1)
	estimator := NewEstimator(testTimes, lifecycle)
	lifecycle.SetEstimator(estimator)
	dispatcher := NewDispatcher(registry, lifecycle, estimator)
	overrides := NewOverrideController(registry, lifecycle, dispatcher, nil)

	return &engine{
		registry:   registry,
		lifecycle:  lifecycle,
		estimator:  estimator,
		dispatcher: dispatcher,
		overrides:  overrides,
	}
}

func testPrinterSpec(id, storeID string) PrinterSpec {
	return PrinterSpec{
		ID:      id,
		StoreID: storeID,
		Name:    "Test " + id,
		Model:   "LaserJet 9000",
		Capabilities: Capabilities{
			Sizes:      []PaperSize{SizeA4, SizeA3},
			Color:      true,
			Duplex:     true,
			Type:       TypeLaser,
			Connection: ConnNetwork,
		},
		PaperCapacity:  500,
		PaperAvailable: 500,
	}
}

func (e *engine) mustCreatePrinter(t *testing.T, id, storeID string) PrinterSnapshot {
	t.Helper()
	snap, err := e.registry.Create(testPrinterSpec(id, storeID))
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", id, err)
	}
	return snap
}

func testJob(orderID, storeID string, pages, copies int) Job {
	return Job{
		OrderID:   orderID,
		UserID:    "user-1",
		StoreID:   storeID,
		Pages:     pages,
		Copies:    copies,
		Color:     ModeBW,
		PaperSize: SizeA4,
		Priority:  5,
	}
}

func (e *engine) mustPrinter(t *testing.T, id string) PrinterSnapshot {
	t.Helper()
	snap, err := e.registry.Get(id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	return snap
}

func (e *engine) mustJob(t *testing.T, orderID string) Job {
	t.Helper()
	job, err := e.lifecycle.Get(orderID)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", orderID, err)
	}
	return job
}

func queueIDs(snap PrinterSnapshot) []string {
	ids := make([]string, 0, len(snap.Queue))
	for _, e := range snap.Queue {
		ids = append(ids, e.JobID)
	}
	return ids
}
