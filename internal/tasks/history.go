package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/jwhitley/stacks/internal/readinghistory"
)

// AnalyzeHistoryTask runs phase one of a reading-history import: group rows
// by book name and decide whether the job can finalize without review.
type AnalyzeHistoryTask struct {
	OwnerID uint   `json:"owner_id"`
	JobID   string `json:"job_id"`
}

func (t AnalyzeHistoryTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "analyze_history",
		MaxAttempts: 2,
		Backoff:     1 * time.Minute,
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// FinalizeHistoryTask runs phase two: replay the source file against the
// recorded decisions and write reading-log entries.
type FinalizeHistoryTask struct {
	OwnerID uint   `json:"owner_id"`
	JobID   string `json:"job_id"`
}

func (t FinalizeHistoryTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "finalize_history",
		MaxAttempts: 2,
		Backoff:     1 * time.Minute,
		Timeout:     30 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// EnqueueFunc hands a follow-up task to the queue. Indirection breaks the
// client/queue construction cycle.
type EnqueueFunc func(ctx context.Context, task backlite.Task) error

// AnalyzeHistoryProcessor creates the processor for analysis tasks. When no
// group needs human review the finalize task is chained immediately.
func AnalyzeHistoryProcessor(reconciler *readinghistory.Reconciler, enqueue EnqueueFunc) backlite.QueueProcessor[AnalyzeHistoryTask] {
	return func(ctx context.Context, task AnalyzeHistoryTask) error {
		if reconciler == nil {
			return fmt.Errorf("history reconciler not configured")
		}
		log.Printf("[TASK] Analyzing reading history %s for owner %d", task.JobID, task.OwnerID)

		needsMatching, err := reconciler.Analyze(ctx, task.OwnerID, task.JobID)
		if err != nil {
			return err
		}
		if needsMatching {
			log.Printf("[TASK] History job %s is waiting for book matching", task.JobID)
			return nil
		}
		return enqueue(ctx, FinalizeHistoryTask{OwnerID: task.OwnerID, JobID: task.JobID})
	}
}

// FinalizeHistoryProcessor creates the processor for finalization tasks.
func FinalizeHistoryProcessor(reconciler *readinghistory.Reconciler) backlite.QueueProcessor[FinalizeHistoryTask] {
	return func(ctx context.Context, task FinalizeHistoryTask) error {
		if reconciler == nil {
			return fmt.Errorf("history reconciler not configured")
		}
		log.Printf("[TASK] Finalizing reading history %s for owner %d", task.JobID, task.OwnerID)
		return reconciler.Finalize(ctx, task.OwnerID, task.JobID)
	}
}

// NewAnalyzeHistoryQueue creates a backlite queue for analysis tasks.
func NewAnalyzeHistoryQueue(reconciler *readinghistory.Reconciler, enqueue EnqueueFunc) backlite.Queue {
	return backlite.NewQueue(AnalyzeHistoryProcessor(reconciler, enqueue))
}

// NewFinalizeHistoryQueue creates a backlite queue for finalization tasks.
func NewFinalizeHistoryQueue(reconciler *readinghistory.Reconciler) backlite.Queue {
	return backlite.NewQueue(FinalizeHistoryProcessor(reconciler))
}
