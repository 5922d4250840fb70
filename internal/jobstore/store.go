// Package jobstore tracks import jobs from creation to a terminal status.
//
// The pipeline receives a Store as an injected capability so tests can
// substitute the in-memory implementation. Every operation is isolated by
// owner: the pipeline can never read or mutate another owner's job.
package jobstore

import (
	"errors"

	"github.com/jwhitley/stacks/internal/entities"
)

// ErrNotFound is returned when no job exists for the owner/id pair.
var ErrNotFound = errors.New("import job not found")

// Store is the job-status registry contract.
type Store interface {
	// Create registers a new job for the owner.
	Create(ownerID uint, job *entities.ImportJob) error

	// Get returns the owner's job by id, or ErrNotFound.
	Get(ownerID uint, id string) (*entities.ImportJob, error)

	// Update applies mutate to the stored job under the store's lock and
	// persists the result. Returns ErrNotFound for unknown jobs.
	Update(ownerID uint, id string, mutate func(*entities.ImportJob)) error

	// ListForOwner returns the owner's jobs, newest first.
	ListForOwner(ownerID uint) ([]entities.ImportJob, error)

	// RequestCancel trips the cooperative cancellation flag. The running job
	// observes it at the next row boundary.
	RequestCancel(ownerID uint, id string) error
}
