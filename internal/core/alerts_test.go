package core

import (
	"errors"
	"testing"
	"time"
)

var testThresholds = AlertThresholds{
	LowPaperRatio:      0.10,
	LowInkPercent:      10,
	CriticalInkPercent: 2,
	SLAGrace:           2 * time.Minute,
	SLACritical:        10 * time.Minute,
}

func newMonitor(e *engine) *AlertMonitor {
	return NewAlertMonitor(e.registry, e.lifecycle, nil, nil, testThresholds, time.Minute)
}

func openAlert(t *testing.T, am *AlertMonitor, typ AlertType) Alert {
	t.Helper()
	for _, a := range am.List(AlertFilter{}) {
		if a.Type == typ && a.Status != AlertResolved {
			return a
		}
	}
	t.Fatalf("no unresolved %s alert found", typ)
	return Alert{}
}

func TestScanRaisesPaperAlerts(t *testing.T) {
	e := newEngine(t)
	am := newMonitor(e)

	spec := testPrinterSpec("p1", "store-1")
	spec.PaperAvailable = 30 // under 10% of 500
	if _, err := e.registry.Create(spec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	am.ScanOnce(time.Now())
	a := openAlert(t, am, AlertLowPaper)
	if a.Severity != SeverityWarning || a.PrinterID != "p1" {
		t.Fatalf("low paper alert = %+v, want warning on p1", a)
	}

	zero := 0
	if err := e.registry.UpdateTelemetry("p1", &zero, nil, nil, nil); err != nil {
		t.Fatalf("UpdateTelemetry failed: %v", err)
	}
	am.ScanOnce(time.Now())
	a = openAlert(t, am, AlertPaperEmpty)
	if a.Severity != SeverityCritical {
		t.Fatalf("paper empty severity = %s, want critical", a.Severity)
	}
}

func TestScanRaisesInkAlerts(t *testing.T) {
	e := newEngine(t)
	am := newMonitor(e)

	spec := testPrinterSpec("p1", "store-1")
	spec.InkLevels = map[string]float64{"black": 7}
	if _, err := e.registry.Create(spec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	am.ScanOnce(time.Now())
	a := openAlert(t, am, AlertLowInk)
	if a.Severity != SeverityWarning {
		t.Fatalf("ink at 7%%: severity = %s, want warning", a.Severity)
	}

	if err := e.registry.UpdateTelemetry("p1", nil, map[string]float64{"black": 1}, nil, nil); err != nil {
		t.Fatalf("UpdateTelemetry failed: %v", err)
	}
	am.ScanOnce(time.Now())
	a = openAlert(t, am, AlertLowInk)
	if a.Severity != SeverityCritical {
		t.Fatalf("ink at 1%%: severity = %s, want escalated to critical", a.Severity)
	}
}

func TestScanDeduplicates(t *testing.T) {
	e := newEngine(t)
	am := newMonitor(e)

	spec := testPrinterSpec("p1", "store-1")
	spec.PaperAvailable = 10
	if _, err := e.registry.Create(spec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	first := time.Now()
	am.ScanOnce(first)
	am.ScanOnce(first.Add(time.Minute))
	am.ScanOnce(first.Add(2 * time.Minute))

	alerts := am.List(AlertFilter{PrinterID: "p1"})
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts after three scans, want 1", len(alerts))
	}
	if !alerts[0].UpdatedAt.After(alerts[0].CreatedAt) {
		t.Errorf("repeated scans should advance UpdatedAt (created %s, updated %s)",
			alerts[0].CreatedAt, alerts[0].UpdatedAt)
	}
}

func TestScanJamAndOfflineAlerts(t *testing.T) {
	e := newEngine(t)
	am := newMonitor(e)
	e.mustCreatePrinter(t, "p1", "store-1")
	e.mustCreatePrinter(t, "p2", "store-1")

	if err := e.registry.RecordFault("p1", FaultJam); err != nil {
		t.Fatalf("RecordFault failed: %v", err)
	}
	if err := e.registry.UpdateStatus("p2", PrinterOffline, "unplugged"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	am.ScanOnce(time.Now())

	jam := openAlert(t, am, AlertJam)
	if jam.Severity != SeverityCritical || jam.PrinterID != "p1" {
		t.Fatalf("jam alert = %+v, want critical on p1", jam)
	}
	off := openAlert(t, am, AlertOffline)
	if off.Severity != SeverityWarning || off.PrinterID != "p2" {
		t.Fatalf("offline alert = %+v, want warning on p2", off)
	}
}

func TestScanSLABreach(t *testing.T) {
	e := newEngine(t)
	am := newMonitor(e)

	end := time.Now().Add(-5 * time.Minute)
	e.lifecycle.Load(Job{
		OrderID:      "order-1",
		StoreID:      "store-1",
		PrinterID:    "p1",
		Pages:        10,
		Copies:       1,
		Status:       JobProcessing,
		EstimatedEnd: &end,
	})

	am.ScanOnce(time.Now())
	a := openAlert(t, am, AlertSLABreach)
	if a.Severity != SeverityWarning || a.OrderID != "order-1" {
		t.Fatalf("sla alert = %+v, want warning for order-1", a)
	}

	// Past the critical threshold the same alert escalates.
	am.ScanOnce(time.Now().Add(10 * time.Minute))
	a = openAlert(t, am, AlertSLABreach)
	if a.Severity != SeverityCritical {
		t.Fatalf("severity = %s, want critical", a.Severity)
	}
	if len(am.List(AlertFilter{})) != 1 {
		t.Fatalf("escalation created a second alert")
	}
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	e := newEngine(t)
	am := newMonitor(e)
	e.mustCreatePrinter(t, "p1", "store-1")
	if err := e.registry.UpdateStatus("p1", PrinterOffline, "test"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	am.ScanOnce(time.Now())
	id := openAlert(t, am, AlertOffline).ID

	first, err := am.Acknowledge(id)
	if err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if first.Status != AlertAcknowledged {
		t.Fatalf("status = %s, want acknowledged", first.Status)
	}

	second, err := am.Acknowledge(id)
	if err != nil {
		t.Fatalf("second Acknowledge failed: %v", err)
	}
	if second.Status != AlertAcknowledged {
		t.Fatalf("second status = %s, want still acknowledged", second.Status)
	}
}

func TestFixResolvesAndAllowsReraise(t *testing.T) {
	e := newEngine(t)
	am := newMonitor(e)
	e.mustCreatePrinter(t, "p1", "store-1")
	if err := e.registry.UpdateStatus("p1", PrinterOffline, "test"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	am.ScanOnce(time.Now())
	id := openAlert(t, am, AlertOffline).ID

	fixed, err := am.Fix(id, "reconnected network drop")
	if err != nil {
		t.Fatalf("Fix failed: %v", err)
	}
	if fixed.Status != AlertResolved || fixed.ActionTaken == "" {
		t.Fatalf("fixed alert = %+v, want resolved with action note", fixed)
	}

	if _, err := am.Acknowledge(id); !errors.Is(err, ErrAlertResolved) {
		t.Fatalf("ack of resolved: got %v, want ErrAlertResolved", err)
	}

	// Condition still present: the next scan opens a fresh alert.
	am.ScanOnce(time.Now())
	fresh := openAlert(t, am, AlertOffline)
	if fresh.ID == id {
		t.Fatalf("scan reused resolved alert %d instead of opening a new one", id)
	}
}

func TestMuteExpiryReopens(t *testing.T) {
	e := newEngine(t)
	am := newMonitor(e)
	e.mustCreatePrinter(t, "p1", "store-1")
	if err := e.registry.UpdateStatus("p1", PrinterOffline, "test"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	am.ScanOnce(time.Now())
	id := openAlert(t, am, AlertOffline).ID

	muted, err := am.Mute(id, time.Minute)
	if err != nil {
		t.Fatalf("Mute failed: %v", err)
	}
	if muted.Status != AlertMuted || muted.MutedUntil == nil {
		t.Fatalf("muted alert = %+v", muted)
	}

	// Scan while still muted: status unchanged.
	am.ScanOnce(time.Now())
	if a, _ := am.Get(id); a.Status != AlertMuted {
		t.Fatalf("status during mute = %s, want muted", a.Status)
	}

	// Scan past the expiry with the condition persisting: reopened.
	am.ScanOnce(time.Now().Add(2 * time.Minute))
	a, err := am.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if a.Status != AlertOpen || a.MutedUntil != nil {
		t.Fatalf("after expiry: status=%s mutedUntil=%v, want open/nil", a.Status, a.MutedUntil)
	}
}

func TestMuteResolvedAlertRejected(t *testing.T) {
	e := newEngine(t)
	am := newMonitor(e)
	e.mustCreatePrinter(t, "p1", "store-1")
	if err := e.registry.UpdateStatus("p1", PrinterOffline, "test"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	am.ScanOnce(time.Now())
	id := openAlert(t, am, AlertOffline).ID

	if _, err := am.Fix(id, "done"); err != nil {
		t.Fatalf("Fix failed: %v", err)
	}
	if _, err := am.Mute(id, time.Minute); !errors.Is(err, ErrAlertResolved) {
		t.Fatalf("mute of resolved: got %v, want ErrAlertResolved", err)
	}
}
