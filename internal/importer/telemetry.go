package importer

import (
	"log"
	"time"

	"github.com/jwhitley/stacks/internal/config"
	"github.com/jwhitley/stacks/internal/entities"
	"github.com/jwhitley/stacks/internal/jobstore"
)

// Emitter creates per-job progress trackers bound to the job store.
type Emitter struct {
	store jobstore.Store
	cfg   config.Telemetry

	// now is swappable for throttle tests.
	now func() time.Time
}

func NewEmitter(store jobstore.Store, cfg config.Telemetry) *Emitter {
	if cfg.ActivityLogCap <= 0 {
		cfg.ActivityLogCap = 25
	}
	if cfg.ErrorLogCap <= 0 {
		cfg.ErrorLogCap = 200
	}
	if cfg.EmitInterval <= 0 {
		cfg.EmitInterval = 350 * time.Millisecond
	}
	return &Emitter{store: store, cfg: cfg, now: time.Now}
}

// Begin opens a tracker for one job. The tracker accumulates counters and
// bounded logs locally and writes them through the store, throttled so that
// large imports do not hammer it once per row. State already on the job is
// carried over so multi-phase jobs keep their activity trail.
func (e *Emitter) Begin(ownerID uint, jobID string) *Tracker {
	t := &Tracker{
		emitter: e,
		ownerID: ownerID,
		jobID:   jobID,
	}
	if job, err := e.store.Get(ownerID, jobID); err == nil {
		t.processed = job.Processed
		t.succeeded = job.Succeeded
		t.merged = job.Merged
		t.failed = job.Failed
		t.skipped = job.Skipped
		t.activity = job.Activity
		t.errors = job.Errors
	}
	return t
}

// Tracker is single-goroutine: the row loop owns it.
type Tracker struct {
	emitter *Emitter
	ownerID uint
	jobID   string

	processed int
	succeeded int
	merged    int
	failed    int
	skipped   int

	activity []entities.ActivityEntry
	errors   []entities.ImportError

	lastFlush time.Time
}

func (t *Tracker) RowSucceeded() {
	t.processed++
	t.succeeded++
	t.maybeFlush()
}

func (t *Tracker) RowMerged() {
	t.processed++
	t.merged++
	t.maybeFlush()
}

func (t *Tracker) RowSkipped() {
	t.processed++
	t.skipped++
	t.maybeFlush()
}

// RowFailed records a classified row error. Errors flush immediately so a
// poller never sees a failure count without its log entry.
func (t *Tracker) RowFailed(rowErr entities.ImportError) {
	t.processed++
	t.failed++
	t.errors = appendBounded(t.errors, rowErr, t.emitter.cfg.ErrorLogCap)
	t.flush(nil)
}

// Activity records a human-readable phase transition and flushes immediately.
func (t *Tracker) Activity(message string) {
	t.activity = appendBounded(t.activity, entities.ActivityEntry{
		At:      t.emitter.now(),
		Message: message,
	}, t.emitter.cfg.ActivityLogCap)
	t.flush(nil)
}

// Failures returns the number of failed rows recorded so far.
func (t *Tracker) Failures() int {
	return t.failed
}

// SetTotal records the row count once parsing finishes.
func (t *Tracker) SetTotal(total int) {
	t.flush(func(job *entities.ImportJob) {
		job.Total = total
	})
}

// Finish writes the terminal status and the final counters unconditionally.
func (t *Tracker) Finish(status entities.JobStatus) {
	now := t.emitter.now()
	t.flush(func(job *entities.ImportJob) {
		job.Status = status
		job.CompletedAt = &now
	})
}

// SetStatus writes an intermediate status transition.
func (t *Tracker) SetStatus(status entities.JobStatus) {
	t.flush(func(job *entities.ImportJob) {
		job.Status = status
	})
}

func (t *Tracker) maybeFlush() {
	if t.emitter.now().Sub(t.lastFlush) < t.emitter.cfg.EmitInterval {
		return
	}
	t.flush(nil)
}

func (t *Tracker) flush(extra func(*entities.ImportJob)) {
	t.lastFlush = t.emitter.now()
	err := t.emitter.store.Update(t.ownerID, t.jobID, func(job *entities.ImportJob) {
		job.Processed = t.processed
		job.Succeeded = t.succeeded
		job.Merged = t.merged
		job.Failed = t.failed
		job.Skipped = t.skipped
		job.Activity = t.activity
		job.Errors = t.errors
		if extra != nil {
			extra(job)
		}
	})
	if err != nil {
		log.Printf("import: progress write failed for job %s: %v", t.jobID, err)
	}
}

// appendBounded appends and drops the oldest entries past the limit.
func appendBounded[T any](entries []T, entry T, limit int) []T {
	entries = append(entries, entry)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}
