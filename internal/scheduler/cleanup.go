// Package scheduler runs the periodic stale-job failover. A crashed worker
// leaves its job stuck in a non-terminal status; the scheduler fails those
// over so pollers are never left waiting on a job nobody is running.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jwhitley/stacks/internal/config"
	"github.com/jwhitley/stacks/internal/entities"
	"github.com/jwhitley/stacks/internal/jobstore"
)

// CleanupScheduler periodically fails over import jobs whose worker died.
type CleanupScheduler struct {
	store *jobstore.GormStore
	cfg   config.Cleanup

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

func NewCleanupScheduler(store *jobstore.GormStore, cfg config.Cleanup) *CleanupScheduler {
	return &CleanupScheduler{
		store: store,
		cfg:   cfg,
		cron:  cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler if cleanup is enabled.
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if !s.cfg.Enabled {
		log.Printf("Import cleanup scheduler: disabled")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.runCleanup()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cleanup job: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("Import cleanup scheduler: started with schedule '%s' (stale after %v)",
		s.cfg.Schedule, s.cfg.StaleThreshold)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("Import cleanup scheduler: stopped")
}

// IsRunning returns whether the scheduler is active.
func (s *CleanupScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// RunNow triggers an immediate cleanup pass.
func (s *CleanupScheduler) RunNow() {
	go s.runCleanup()
}

// NextRunTime returns when the next pass will occur.
func (s *CleanupScheduler) NextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// runCleanup fails over every job stuck in a non-terminal status past the
// threshold and removes its parked upload.
func (s *CleanupScheduler) runCleanup() {
	stale, err := s.store.StaleRunning(s.cfg.StaleThreshold)
	if err != nil {
		log.Printf("Import cleanup: failed to list stale jobs: %v", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	log.Printf("Import cleanup: failing over %d stale jobs", len(stale))
	for _, job := range stale {
		err := s.store.Update(job.OwnerID, job.ID, func(job *entities.ImportJob) {
			now := time.Now()
			job.Status = entities.JobStatusFailed
			job.CompletedAt = &now
			job.Activity = append(job.Activity, entities.ActivityEntry{
				At:      now,
				Message: "Import was interrupted and did not resume",
			})
		})
		if err != nil {
			log.Printf("Import cleanup: failed to mark job %s: %v", job.ID, err)
			continue
		}
		if job.SourcePath != "" {
			if err := os.Remove(job.SourcePath); err != nil && !os.IsNotExist(err) {
				log.Printf("Import cleanup: failed to remove upload %s: %v", job.SourcePath, err)
			}
		}
		log.Printf("Import cleanup: job %s (last update %v) marked failed", job.ID, job.UpdatedAt)
	}
}
