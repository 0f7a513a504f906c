package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrAlertNotFound = errors.New("alert not found")
	ErrAlertResolved = errors.New("alert already resolved")
)

// AlertStore persists alert records. Calls happen outside the monitor
// lock, in update order, and must not block the caller beyond a queue
// handoff.
type AlertStore interface {
	SaveAlert(alert Alert)
}

// AlertThresholds are the scan trigger levels.
type AlertThresholds struct {
	LowPaperRatio      float64
	LowInkPercent      float64
	CriticalInkPercent float64
	SLAGrace           time.Duration
	SLACritical        time.Duration
}

type alertKey struct {
	typ       AlertType
	printerID string
	orderID   string
}

// AlertMonitor periodically evaluates registry and lifecycle snapshots
// against thresholds and maintains deduplicated alert records. It never
// mutates printer or job state and runs off the dispatch critical path.
type AlertMonitor struct {
	registry  *Registry
	lifecycle *LifecycleManager
	sink      EventSink
	store     AlertStore
	limits    AlertThresholds
	interval  time.Duration

	mu     sync.Mutex
	alerts map[int64]*Alert
	open   map[alertKey]int64
	nextID int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewAlertMonitor(registry *Registry, lifecycle *LifecycleManager, sink EventSink, store AlertStore, limits AlertThresholds, interval time.Duration) *AlertMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &AlertMonitor{
		registry:  registry,
		lifecycle: lifecycle,
		sink:      sink,
		store:     store,
		limits:    limits,
		interval:  interval,
		alerts:    make(map[int64]*Alert),
		open:      make(map[alertKey]int64),
		stopCh:    make(chan struct{}),
	}
}

// Load installs a persisted alert as-is and advances the id sequence.
// Used at startup.
func (am *AlertMonitor) Load(alert Alert) {
	am.mu.Lock()
	defer am.mu.Unlock()

	a := alert
	am.alerts[a.ID] = &a
	if a.Status != AlertResolved {
		am.open[alertKey{a.Type, a.PrinterID, a.OrderID}] = a.ID
	}
	if a.ID > am.nextID {
		am.nextID = a.ID
	}
}

func (am *AlertMonitor) Start() {
	am.wg.Add(1)
	go am.scanLoop()
}

func (am *AlertMonitor) Stop() {
	close(am.stopCh)
	am.wg.Wait()
}

func (am *AlertMonitor) scanLoop() {
	defer am.wg.Done()

	ticker := time.NewTicker(am.interval)
	defer ticker.Stop()

	am.ScanOnce(time.Now())

	for {
		select {
		case <-am.stopCh:
			return
		case <-ticker.C:
			am.ScanOnce(time.Now())
		}
	}
}

// ScanOnce evaluates point-in-time snapshots. Slightly stale reads are
// acceptable: alerts are advisory.
func (am *AlertMonitor) ScanOnce(now time.Time) {
	for _, p := range am.registry.List(Filter{}) {
		am.scanPrinter(p, now)
	}
	for _, job := range am.lifecycle.List(JobFilter{Status: JobProcessing}) {
		am.scanJob(job, now)
	}
}

func (am *AlertMonitor) scanPrinter(p PrinterSnapshot, now time.Time) {
	if p.PaperAvailable == 0 {
		am.raise(AlertPaperEmpty, SeverityCritical, p.ID, "",
			fmt.Sprintf("printer %s is out of paper", p.ID), now)
	} else if p.PaperCapacity > 0 && float64(p.PaperAvailable) < am.limits.LowPaperRatio*float64(p.PaperCapacity) {
		am.raise(AlertLowPaper, SeverityWarning, p.ID, "",
			fmt.Sprintf("printer %s has %d of %d sheets left", p.ID, p.PaperAvailable, p.PaperCapacity), now)
	}

	for ch, lvl := range p.InkLevels {
		if lvl < am.limits.CriticalInkPercent {
			am.raise(AlertLowInk, SeverityCritical, p.ID, "",
				fmt.Sprintf("printer %s channel %s at %.1f%%", p.ID, ch, lvl), now)
			break
		}
	}
	for ch, lvl := range p.InkLevels {
		if lvl >= am.limits.CriticalInkPercent && lvl < am.limits.LowInkPercent {
			am.raise(AlertLowInk, SeverityWarning, p.ID, "",
				fmt.Sprintf("printer %s channel %s at %.1f%%", p.ID, ch, lvl), now)
			break
		}
	}

	switch p.Status {
	case PrinterError:
		if p.LastJam != nil && now.Sub(*p.LastJam) < 24*time.Hour {
			am.raise(AlertJam, SeverityCritical, p.ID, "",
				fmt.Sprintf("printer %s jammed at %s", p.ID, p.LastJam.Format(time.RFC3339)), now)
		} else {
			am.raise(AlertOther, SeverityCritical, p.ID, "",
				fmt.Sprintf("printer %s is in error state", p.ID), now)
		}
	case PrinterOffline:
		am.raise(AlertOffline, SeverityWarning, p.ID, "",
			fmt.Sprintf("printer %s is offline", p.ID), now)
	case PrinterMaintenance:
		am.raise(AlertMaintenance, SeverityInfo, p.ID, "",
			fmt.Sprintf("printer %s is under maintenance", p.ID), now)
	}
}

func (am *AlertMonitor) scanJob(job Job, now time.Time) {
	if job.EstimatedEnd == nil {
		return
	}
	overdue := now.Sub(*job.EstimatedEnd)
	if overdue <= am.limits.SLAGrace {
		return
	}

	severity := SeverityWarning
	if overdue > am.limits.SLACritical {
		severity = SeverityCritical
	}
	am.raise(AlertSLABreach, severity, job.PrinterID, job.OrderID,
		fmt.Sprintf("job %s still processing %s past its estimated end", job.OrderID, overdue.Round(time.Second)), now)
}

// raise creates an alert, or updates the unresolved alert with the same
// (type, printer, order) key instead of duplicating it. A muted alert
// whose mute has expired reopens here, since raise is only reached
// while the condition persists.
func (am *AlertMonitor) raise(typ AlertType, severity AlertSeverity, printerID, orderID, message string, now time.Time) {
	key := alertKey{typ, printerID, orderID}

	am.mu.Lock()
	if id, ok := am.open[key]; ok {
		a := am.alerts[id]
		a.Severity = severity
		a.Message = message
		a.UpdatedAt = now
		if a.Status == AlertMuted && a.MutedUntil != nil && now.After(*a.MutedUntil) {
			a.Status = AlertOpen
			a.MutedUntil = nil
		}
		updated := *a
		am.mu.Unlock()

		if am.store != nil {
			am.store.SaveAlert(updated)
		}
		return
	}

	am.nextID++
	a := &Alert{
		ID:        am.nextID,
		Type:      typ,
		Severity:  severity,
		Status:    AlertOpen,
		PrinterID: printerID,
		OrderID:   orderID,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}
	am.alerts[a.ID] = a
	am.open[key] = a.ID
	created := *a
	am.mu.Unlock()

	if am.store != nil {
		am.store.SaveAlert(created)
	}
	if am.sink != nil {
		go am.sink.AlertRaised(created)
	}
}

// Get returns a copy of one alert.
func (am *AlertMonitor) Get(id int64) (Alert, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	a, ok := am.alerts[id]
	if !ok {
		return Alert{}, fmt.Errorf("%w: %d", ErrAlertNotFound, id)
	}
	return *a, nil
}

// AlertFilter narrows List results. Zero values match everything.
type AlertFilter struct {
	PrinterID string
	Status    AlertStatus
	Severity  AlertSeverity
}

// List returns matching alerts, newest first.
func (am *AlertMonitor) List(f AlertFilter) []Alert {
	am.mu.Lock()
	out := make([]Alert, 0, len(am.alerts))
	for _, a := range am.alerts {
		if f.PrinterID != "" && a.PrinterID != f.PrinterID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		out = append(out, *a)
	}
	am.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// Acknowledge marks an alert as seen. Acknowledging an already
// acknowledged alert is a no-op, not an error.
func (am *AlertMonitor) Acknowledge(id int64) (Alert, error) {
	return am.update(id, func(a *Alert) error {
		switch a.Status {
		case AlertAcknowledged:
			return nil
		case AlertResolved:
			return fmt.Errorf("%w: alert %d", ErrAlertResolved, id)
		}
		a.Status = AlertAcknowledged
		a.MutedUntil = nil
		return nil
	})
}

// Fix resolves an alert with the supervisor's action note. Resolving an
// already resolved alert is a no-op.
func (am *AlertMonitor) Fix(id int64, actionTaken string) (Alert, error) {
	return am.update(id, func(a *Alert) error {
		if a.Status == AlertResolved {
			return nil
		}
		a.Status = AlertResolved
		a.ActionTaken = actionTaken
		a.MutedUntil = nil
		delete(am.open, alertKey{a.Type, a.PrinterID, a.OrderID})
		return nil
	})
}

// Mute silences an alert for a duration. It reopens automatically when
// the mute expires while the condition persists.
func (am *AlertMonitor) Mute(id int64, d time.Duration) (Alert, error) {
	if d <= 0 {
		return Alert{}, fmt.Errorf("mute duration must be positive")
	}
	return am.update(id, func(a *Alert) error {
		if a.Status == AlertResolved {
			return fmt.Errorf("%w: alert %d", ErrAlertResolved, id)
		}
		until := time.Now().Add(d)
		a.Status = AlertMuted
		a.MutedUntil = &until
		return nil
	})
}

func (am *AlertMonitor) update(id int64, apply func(*Alert) error) (Alert, error) {
	am.mu.Lock()
	a, ok := am.alerts[id]
	if !ok {
		am.mu.Unlock()
		return Alert{}, fmt.Errorf("%w: %d", ErrAlertNotFound, id)
	}
	if err := apply(a); err != nil {
		am.mu.Unlock()
		return Alert{}, err
	}
	a.UpdatedAt = time.Now()
	updated := *a
	am.mu.Unlock()

	if am.store != nil {
		am.store.SaveAlert(updated)
	}
	return updated, nil
}
