package core

import (
	"sort"
	"time"
)

// ServiceTimes is the per-page service-time table driving every ETA.
type ServiceTimes struct {
	PerPage         time.Duration
	ColorMultiplier float64
	Setup           time.Duration
}

// JobDuration estimates how long one job occupies a printer: every
// sheet at the per-page time, color sheets scaled by the multiplier,
// plus a fixed per-job setup overhead.
func (t ServiceTimes) JobDuration(pages, copies, colorPages int) time.Duration {
	if pages <= 0 || copies <= 0 {
		return t.Setup
	}
	if colorPages > pages {
		colorPages = pages
	}
	mult := t.ColorMultiplier
	if mult < 1 {
		mult = 1
	}

	bw := time.Duration(pages-colorPages) * t.PerPage
	color := time.Duration(float64(colorPages) * float64(t.PerPage) * mult)
	return time.Duration(copies)*(bw+color) + t.Setup
}

// JobSummary is the slice of job state the estimator needs.
type JobSummary struct {
	Pages       int
	Copies      int
	ColorPages  int
	ActualStart *time.Time
}

// JobSource resolves queued job IDs to summaries. Implemented by the
// lifecycle manager; lookups must not block.
type JobSource interface {
	JobSummary(orderID string) (JobSummary, bool)
}

// JobETA is a projected start/end pair for one queued job.
type JobETA struct {
	JobID string
	Start time.Time
	End   time.Time
}

// Estimator computes ETAs from printer snapshots. It is pure: no state
// beyond the service-time table and the read-only job source.
type Estimator struct {
	times ServiceTimes
	jobs  JobSource
}

func NewEstimator(times ServiceTimes, jobs JobSource) *Estimator {
	return &Estimator{times: times, jobs: jobs}
}

func (e *Estimator) summaryDuration(s JobSummary) time.Duration {
	return e.times.JobDuration(s.Pages, s.Copies, s.ColorPages)
}

// currentRemaining is how long the in-progress job still holds the
// printer: its estimated duration minus elapsed time, floored at zero.
func (e *Estimator) currentRemaining(snap PrinterSnapshot, now time.Time) time.Duration {
	if snap.CurrentJobID == "" {
		return 0
	}
	s, ok := e.jobs.JobSummary(snap.CurrentJobID)
	if !ok {
		return 0
	}
	dur := e.summaryDuration(s)
	if s.ActualStart != nil {
		dur -= now.Sub(*s.ActualStart)
	}
	if dur < 0 {
		return 0
	}
	return dur
}

// Backlog is the total time until the printer would reach a freshly
// appended job: remaining current work plus every queued job.
func (e *Estimator) Backlog(snap PrinterSnapshot, now time.Time) time.Duration {
	total := e.currentRemaining(snap, now)
	for _, entry := range snap.Queue {
		if s, ok := e.jobs.JobSummary(entry.JobID); ok {
			total += e.summaryDuration(s)
		}
	}
	return total
}

// QueueProjection recomputes start/end estimates for the whole queue in
// position order.
func (e *Estimator) QueueProjection(snap PrinterSnapshot, now time.Time) []JobETA {
	cursor := now.Add(e.currentRemaining(snap, now))
	etas := make([]JobETA, 0, len(snap.Queue))
	for _, entry := range snap.Queue {
		s, ok := e.jobs.JobSummary(entry.JobID)
		if !ok {
			continue
		}
		start := cursor
		cursor = cursor.Add(e.summaryDuration(s))
		etas = append(etas, JobETA{JobID: entry.JobID, Start: start, End: cursor})
	}
	return etas
}

// ProjectedCompletion answers: if this job were appended to the printer
// now, when would it finish.
func (e *Estimator) ProjectedCompletion(snap PrinterSnapshot, job Job, now time.Time) time.Time {
	dur := e.times.JobDuration(job.Pages, job.Copies, job.ColorPages())
	return now.Add(e.Backlog(snap, now)).Add(dur)
}

// Candidate is one eligible printer with its projected completion for a
// job under consideration.
type Candidate struct {
	PrinterID  string
	Completion time.Time
	QueueLen   int
}

// RankCandidates orders candidates deterministically: earliest projected
// completion, then fewer queued jobs, then lexicographically smaller
// printer id.
func RankCandidates(cands []Candidate) []Candidate {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if !a.Completion.Equal(b.Completion) {
			return a.Completion.Before(b.Completion)
		}
		if a.QueueLen != b.QueueLen {
			return a.QueueLen < b.QueueLen
		}
		return a.PrinterID < b.PrinterID
	})
	return cands
}
