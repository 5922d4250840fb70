package jobstore

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jwhitley/stacks/internal/entities"
)

// MemoryStore is the in-process Store used by tests and by setups that do not
// need job status to survive a restart.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[uint]map[string]*entities.ImportJob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uint]map[string]*entities.ImportJob)}
}

func (s *MemoryStore) Create(ownerID uint, job *entities.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.OwnerID = ownerID
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now()
	}
	if s.jobs[ownerID] == nil {
		s.jobs[ownerID] = make(map[string]*entities.ImportJob)
	}
	s.jobs[ownerID][job.ID] = clone(job)
	return nil
}

func (s *MemoryStore) Get(ownerID uint, id string) (*entities.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[ownerID][id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(job), nil
}

func (s *MemoryStore) Update(ownerID uint, id string, mutate func(*entities.ImportJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[ownerID][id]
	if !ok {
		return ErrNotFound
	}
	mutate(job)
	job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListForOwner(ownerID uint) ([]entities.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entities.ImportJob, 0, len(s.jobs[ownerID]))
	for _, job := range s.jobs[ownerID] {
		out = append(out, *clone(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryStore) RequestCancel(ownerID uint, id string) error {
	return s.Update(ownerID, id, func(job *entities.ImportJob) {
		job.CancelRequested = true
	})
}

// clone keeps callers from aliasing the stored slices.
func clone(job *entities.ImportJob) *entities.ImportJob {
	raw, _ := json.Marshal(job)
	var out entities.ImportJob
	_ = json.Unmarshal(raw, &out)
	// SourcePath and Delimiter are excluded from JSON; carry them over
	out.SourcePath = job.SourcePath
	out.Delimiter = job.Delimiter
	out.HasHeader = job.HasHeader
	return &out
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)
