package db

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/printdesk/fleet/internal/core"
)

// Store adapts the database to the core's write-behind persistence
// interfaces. Save methods enqueue onto a single writer goroutine, so
// writes land in the order they were handed over and a burst of
// transitions cannot persist out of order. Errors are swallowed into
// logs: persistence never stalls or fails a scheduling decision.
type Store struct {
	writes chan func()
	done   chan struct{}
}

func NewStore() *Store {
	s := &Store{
		writes: make(chan func(), 256),
		done:   make(chan struct{}),
	}
	go s.writer()
	return s
}

func (s *Store) writer() {
	defer close(s.done)
	for op := range s.writes {
		op()
	}
}

// Close drains the write queue. Call before closing the database.
func (s *Store) Close() {
	close(s.writes)
	<-s.done
}

func (s *Store) enqueue(op func()) {
	s.writes <- op
}

func (s *Store) SavePrinter(snap core.PrinterSnapshot) {
	s.enqueue(func() { s.savePrinter(snap) })
}

func (s *Store) savePrinter(snap core.PrinterSnapshot) {
	sizes, _ := json.Marshal(snap.Capabilities.Sizes)
	ink, _ := json.Marshal(snap.InkLevels)

	tx, err := GetDB().Begin()
	if err != nil {
		log.Printf("db: save printer %s: %v", snap.ID, err)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(UpsertPrinter,
		snap.ID, snap.StoreID, snap.Name, snap.Model,
		string(snap.Capabilities.Type), string(snap.Capabilities.Connection), string(sizes),
		snap.Capabilities.Color, snap.Capabilities.Duplex, string(snap.Status),
		snap.PaperCapacity, snap.PaperAvailable, string(ink),
		snap.Temperature, snap.Humidity, snap.CurrentJobID,
		snap.TotalPagesPrinted, snap.PagesPrintedToday,
		nullTime(&snap.LastMaintenance), nullTime(snap.LastJam), false)
	if err != nil {
		log.Printf("db: save printer %s: %v", snap.ID, err)
		return
	}

	if _, err := tx.Exec(DeleteQueueEntries, snap.ID); err != nil {
		log.Printf("db: save printer %s queue: %v", snap.ID, err)
		return
	}
	for _, e := range snap.Queue {
		if _, err := tx.Exec(InsertQueueEntry, snap.ID, e.JobID, e.Priority, e.Position, e.EnqueuedAt); err != nil {
			log.Printf("db: save printer %s queue entry %s: %v", snap.ID, e.JobID, err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("db: save printer %s: %v", snap.ID, err)
	}
}

func (s *Store) SaveJob(job core.Job) {
	s.enqueue(func() { s.saveJob(job) })
}

func (s *Store) saveJob(job core.Job) {
	modeSpec, _ := json.Marshal(job.ModeSpec)

	_, err := GetDB().Exec(UpsertJob,
		job.OrderID, job.UserID, job.StoreID, job.Pages, job.Copies,
		string(job.Color), string(modeSpec), string(job.PaperSize),
		job.Duplex, job.Priority, job.BindingRequired, string(job.Status),
		job.PrinterID, job.RetryCount, job.BindingDone, job.ErrorMessage,
		job.CreatedAt, nullTime(job.ActualStart), nullTime(job.EstimatedEnd))
	if err != nil {
		log.Printf("db: save job %s: %v", job.OrderID, err)
	}
}

func (s *Store) SaveAlert(alert core.Alert) {
	s.enqueue(func() { s.saveAlert(alert) })
}

func (s *Store) saveAlert(alert core.Alert) {
	_, err := GetDB().Exec(UpsertAlert,
		alert.ID, string(alert.Type), string(alert.Severity), string(alert.Status),
		alert.PrinterID, alert.OrderID, alert.Message, alert.ActionTaken,
		alert.CreatedAt, alert.UpdatedAt, nullTime(alert.MutedUntil))
	if err != nil {
		log.Printf("db: save alert %d: %v", alert.ID, err)
	}
}

func (s *Store) Record(actor, action, entityType, entityID, details string) {
	s.enqueue(func() {
		_, err := GetDB().Exec(InsertActivity, actor, action, entityType, entityID, details)
		if err != nil {
			log.Printf("db: record activity %s/%s: %v", action, entityID, err)
		}
	})
}

// LoadPrinters restores every live printer snapshot, queues included.
func (s *Store) LoadPrinters() ([]core.PrinterSnapshot, error) {
	rows, err := GetDB().Query(ListLivePrinters)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []core.PrinterSnapshot
	for rows.Next() {
		var (
			snap               core.PrinterSnapshot
			ptype, conn        string
			sizesJSON, inkJSON string
			status             string
			lastMaintenance    sql.NullTime
			lastJam            sql.NullTime
		)
		if err := rows.Scan(
			&snap.ID, &snap.StoreID, &snap.Name, &snap.Model, &ptype, &conn,
			&sizesJSON, &snap.Capabilities.Color, &snap.Capabilities.Duplex, &status,
			&snap.PaperCapacity, &snap.PaperAvailable, &inkJSON,
			&snap.Temperature, &snap.Humidity, &snap.CurrentJobID,
			&snap.TotalPagesPrinted, &snap.PagesPrintedToday,
			&lastMaintenance, &lastJam); err != nil {
			return nil, err
		}

		snap.Capabilities.Type = core.PrinterType(ptype)
		snap.Capabilities.Connection = core.ConnectionType(conn)
		snap.Status = core.PrinterStatus(status)
		if err := json.Unmarshal([]byte(sizesJSON), &snap.Capabilities.Sizes); err != nil {
			log.Printf("db: printer %s sizes: %v", snap.ID, err)
		}
		if err := json.Unmarshal([]byte(inkJSON), &snap.InkLevels); err != nil {
			log.Printf("db: printer %s ink: %v", snap.ID, err)
		}
		if lastMaintenance.Valid {
			snap.LastMaintenance = lastMaintenance.Time
		}
		if lastJam.Valid {
			t := lastJam.Time
			snap.LastJam = &t
		}

		queue, err := s.loadQueue(snap.ID)
		if err != nil {
			return nil, err
		}
		snap.Queue = queue

		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *Store) loadQueue(printerID string) ([]core.QueueEntry, error) {
	rows, err := GetDB().Query(ListQueueEntries, printerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queue []core.QueueEntry
	for rows.Next() {
		var e core.QueueEntry
		if err := rows.Scan(&e.JobID, &e.Priority, &e.Position, &e.EnqueuedAt); err != nil {
			return nil, err
		}
		queue = append(queue, e)
	}
	return queue, rows.Err()
}

// LoadJobs restores every job, terminal history included.
func (s *Store) LoadJobs() ([]core.Job, error) {
	rows, err := GetDB().Query(ListJobs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []core.Job
	for rows.Next() {
		var (
			job                       core.Job
			color, modeSpec, size     string
			status                    string
			actualStart, estimatedEnd sql.NullTime
		)
		if err := rows.Scan(
			&job.OrderID, &job.UserID, &job.StoreID, &job.Pages, &job.Copies,
			&color, &modeSpec, &size, &job.Duplex, &job.Priority,
			&job.BindingRequired, &status, &job.PrinterID, &job.RetryCount,
			&job.BindingDone, &job.ErrorMessage, &job.CreatedAt,
			&actualStart, &estimatedEnd); err != nil {
			return nil, err
		}

		job.Color = core.ColorMode(color)
		job.PaperSize = core.PaperSize(size)
		job.Status = core.JobStatus(status)
		if err := json.Unmarshal([]byte(modeSpec), &job.ModeSpec); err != nil {
			log.Printf("db: job %s mode spec: %v", job.OrderID, err)
		}
		if actualStart.Valid {
			t := actualStart.Time
			job.ActualStart = &t
		}
		if estimatedEnd.Valid {
			t := estimatedEnd.Time
			job.EstimatedEnd = &t
		}

		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// LoadAlerts restores every alert record.
func (s *Store) LoadAlerts() ([]core.Alert, error) {
	rows, err := GetDB().Query(ListAlerts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []core.Alert
	for rows.Next() {
		var (
			a                   core.Alert
			typ, severity, stat string
			mutedUntil          sql.NullTime
		)
		if err := rows.Scan(&a.ID, &typ, &severity, &stat, &a.PrinterID, &a.OrderID,
			&a.Message, &a.ActionTaken, &a.CreatedAt, &a.UpdatedAt, &mutedUntil); err != nil {
			return nil, err
		}
		a.Type = core.AlertType(typ)
		a.Severity = core.AlertSeverity(severity)
		a.Status = core.AlertStatus(stat)
		if mutedUntil.Valid {
			t := mutedUntil.Time
			a.MutedUntil = &t
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func nullTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}
