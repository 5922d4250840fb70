package entities

import (
	"time"

	"gorm.io/datatypes"
)

type ImportKind string

const (
	ImportKindBooks          ImportKind = "book_import"
	ImportKindReadingHistory ImportKind = "reading_history_import"
)

type JobStatus string

const (
	JobStatusPending             JobStatus = "pending"
	JobStatusNeedsMapping        JobStatus = "needs_mapping"
	JobStatusEnriching           JobStatus = "enriching"
	JobStatusRunning             JobStatus = "running"
	JobStatusAnalyzing           JobStatus = "analyzing"
	JobStatusNeedsMatching       JobStatus = "needs_book_matching"
	JobStatusProcessing          JobStatus = "processing"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
	JobStatusCancelled           JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Row error taxonomy. validation_error rows are skipped and the job continues;
// only a failure to read the source file is job-fatal.
const (
	ErrorTypeValidation = "validation_error"
	ErrorTypeLookup     = "lookup_failed"
	ErrorTypeAdd        = "add_failed"
	ErrorTypeMerge      = "duplicate_merge_failed"
	ErrorTypeException  = "exception"
)

type ImportError struct {
	Row     int    `json:"row"`
	Type    string `json:"type"`
	Message string `json:"message"`
	ISBN    string `json:"isbn,omitempty"`
	Title   string `json:"title,omitempty"`
	Author  string `json:"author,omitempty"`
	RawRow  string `json:"raw_row,omitempty"`
}

type ActivityEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

type ResolutionAction string

const (
	ResolutionMatch    ResolutionAction = "match"
	ResolutionCreate   ResolutionAction = "create"
	ResolutionSkip     ResolutionAction = "skip"
	ResolutionBookless ResolutionAction = "bookless"
)

// BookResolution is the decision for one distinct book-name group during
// reading-history import. It is consumed exactly once during finalization.
type BookResolution struct {
	Action ResolutionAction `json:"action"`
	BookID uint             `json:"book_id,omitempty"`
	Title  string           `json:"title,omitempty"`
	Author string           `json:"author,omitempty"`
	ISBN   string           `json:"isbn,omitempty"` // optional external identifier to re-fetch on create
}

type SearchCandidate struct {
	BookID uint   `json:"book_id"`
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
}

// MatchGroup is one distinct book-name group found during reading-history
// analysis. Bookless rows share a single group with an empty name.
type MatchGroup struct {
	Name       string            `json:"name"`
	EntryCount int               `json:"entry_count"`
	Candidates []SearchCandidate `json:"candidates,omitempty"`
	Resolution *BookResolution   `json:"resolution,omitempty"`
}

// ImportJob tracks one triggered import from creation to a terminal status.
// Loosely-structured state (mapping, bounded logs, match groups) is stored as
// JSON columns; counters stay flat for cheap partial updates.
type ImportJob struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	OwnerID    uint       `gorm:"index" json:"owner_id"`
	Kind       ImportKind `gorm:"size:30" json:"kind"`
	Status     JobStatus  `gorm:"size:30;index" json:"status"`
	Format     string     `gorm:"size:30" json:"format"`
	Confidence float64    `json:"confidence"`

	SourcePath string `gorm:"size:1024" json:"-"`
	SourceName string `gorm:"size:256" json:"source_name"`
	Delimiter  string `gorm:"size:1" json:"-"`
	HasHeader  bool   `json:"-"`

	Mapping datatypes.JSONSlice[FieldAssignment] `json:"mapping"`

	Total     int `json:"total"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Merged    int `json:"merged"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`

	Activity datatypes.JSONSlice[ActivityEntry] `json:"activity,omitempty"`
	Errors   datatypes.JSONSlice[ImportError]   `json:"errors,omitempty"`

	MatchGroups datatypes.JSONSlice[MatchGroup] `json:"match_groups,omitempty"`

	CancelRequested bool `json:"cancel_requested"`

	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (ImportJob) TableName() string {
	return "import_jobs"
}
