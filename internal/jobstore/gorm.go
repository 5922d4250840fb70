package jobstore

import (
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/jwhitley/stacks/internal/entities"
)

// GormStore persists jobs in the main database so status survives restarts
// and pollers can read while a background task writes.
type GormStore struct {
	db *gorm.DB

	// Serializes read-modify-write cycles. The pipeline is single-process;
	// the catalog and job store are its only shared mutable state.
	mu sync.Mutex
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ownerID uint, job *entities.ImportJob) error {
	job.OwnerID = ownerID
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now()
	}
	return s.db.Create(job).Error
}

func (s *GormStore) Get(ownerID uint, id string) (*entities.ImportJob, error) {
	var job entities.ImportJob
	err := s.db.Where("id = ? AND owner_id = ?", id, ownerID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) Update(ownerID uint, id string, mutate func(*entities.ImportJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Get(ownerID, id)
	if err != nil {
		return err
	}
	mutate(job)
	job.UpdatedAt = time.Now()
	return s.db.Save(job).Error
}

func (s *GormStore) ListForOwner(ownerID uint) ([]entities.ImportJob, error) {
	var jobs []entities.ImportJob
	err := s.db.Where("owner_id = ?", ownerID).Order("started_at DESC").Find(&jobs).Error
	return jobs, err
}

func (s *GormStore) RequestCancel(ownerID uint, id string) error {
	return s.Update(ownerID, id, func(job *entities.ImportJob) {
		job.CancelRequested = true
	})
}

// DB exposes the underlying connection for maintenance tooling.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// StaleRunning returns non-terminal jobs across all owners with no update for
// at least threshold. Used by the cleanup scheduler, not by the pipeline.
func (s *GormStore) StaleRunning(threshold time.Duration) ([]entities.ImportJob, error) {
	cutoff := time.Now().Add(-threshold)
	var jobs []entities.ImportJob
	err := s.db.
		Where("status IN ?", []entities.JobStatus{
			entities.JobStatusPending,
			entities.JobStatusEnriching,
			entities.JobStatusRunning,
			entities.JobStatusAnalyzing,
			entities.JobStatusProcessing,
		}).
		Where("updated_at < ?", cutoff).
		Find(&jobs).Error
	return jobs, err
}

// Compile-time interface check
var _ Store = (*GormStore)(nil)
