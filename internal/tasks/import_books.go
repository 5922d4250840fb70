package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/jwhitley/stacks/internal/importer"
)

// ImportBooksTask runs one detached book-import job. The HTTP layer creates
// the job record and the upload, enqueues this task and returns immediately;
// clients poll the job for progress.
type ImportBooksTask struct {
	OwnerID uint   `json:"owner_id"`
	JobID   string `json:"job_id"`
}

// Config returns the queue configuration for book-import tasks.
// A single retry: the runner is idempotent against a terminal job, and
// duplicate detection makes partial re-runs safe.
func (t ImportBooksTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "import_books",
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

// ImportBooksProcessor creates the processor for book-import tasks.
func ImportBooksProcessor(runner *importer.Runner) backlite.QueueProcessor[ImportBooksTask] {
	return func(ctx context.Context, task ImportBooksTask) error {
		if runner == nil {
			return fmt.Errorf("import runner not configured")
		}
		log.Printf("[TASK] Running book import %s for owner %d", task.JobID, task.OwnerID)
		return runner.Run(ctx, task.OwnerID, task.JobID)
	}
}

// NewImportBooksQueue creates a backlite queue for book-import tasks.
func NewImportBooksQueue(runner *importer.Runner) backlite.Queue {
	return backlite.NewQueue(ImportBooksProcessor(runner))
}
