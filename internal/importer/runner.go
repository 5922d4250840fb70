package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/jwhitley/stacks/internal/entities"
	"github.com/jwhitley/stacks/internal/importformat"
	"github.com/jwhitley/stacks/internal/jobstore"
	"github.com/jwhitley/stacks/internal/metadata"
)

// Runner drives one book-import job end to end: parse, enrich, resolve each
// row, emit progress. Jobs run detached from the triggering request; the
// caller polls the job store for status.
type Runner struct {
	store   jobstore.Store
	catalog Catalog
	batcher *metadata.Batcher
	emitter *Emitter
}

func NewRunner(store jobstore.Store, catalog Catalog, batcher *metadata.Batcher, emitter *Emitter) *Runner {
	return &Runner{
		store:   store,
		catalog: catalog,
		batcher: batcher,
		emitter: emitter,
	}
}

// Run executes the job identified by ownerID/jobID. It always drives the job
// to a terminal status; the returned error only reports infrastructure
// problems the task queue should retry (job missing, store unreachable).
func (r *Runner) Run(ctx context.Context, ownerID uint, jobID string) error {
	job, err := r.store.Get(ownerID, jobID)
	if err != nil {
		return fmt.Errorf("load import job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		log.Printf("Import job %s already finished with status %s, skipping", jobID, job.Status)
		return nil
	}

	tracker := r.emitter.Begin(ownerID, jobID)

	rows, err := r.readRows(job)
	if err != nil {
		log.Printf("Import job %s failed reading %s: %v", jobID, job.SourceName, err)
		tracker.Activity("Could not read the uploaded file")
		tracker.Finish(entities.JobStatusFailed)
		r.removeSource(job)
		return nil
	}

	tracker.SetTotal(len(rows))
	tracker.Activity(fmt.Sprintf("Parsed %d rows from %s", len(rows), job.SourceName))

	records := r.enrich(ctx, job, rows, tracker)

	fieldDefs, err := r.ensureFieldDefs(ownerID, job.Mapping)
	if err != nil {
		log.Printf("Import job %s failed creating custom fields: %v", jobID, err)
		tracker.Activity("Could not prepare custom fields")
		tracker.Finish(entities.JobStatusFailed)
		r.removeSource(job)
		return nil
	}

	resolver := NewResolver(r.catalog, fieldDefs)
	tracker.SetStatus(entities.JobStatusRunning)
	tracker.Activity("Adding books to your catalog")

	for i, row := range rows {
		if r.cancelRequested(ownerID, jobID) {
			tracker.Activity("Import cancelled")
			tracker.Finish(entities.JobStatusCancelled)
			r.removeSource(job)
			return nil
		}
		r.processRow(resolver, tracker, job, i, row, records)
	}

	status := entities.JobStatusCompleted
	if tracker.failed > 0 {
		status = entities.JobStatusCompletedWithErrors
	}
	tracker.Activity("Import finished")
	tracker.Finish(status)
	r.removeSource(job)
	return nil
}

// processRow resolves one row with a panic guard so a single bad row can
// never take the whole job down.
func (r *Runner) processRow(resolver *Resolver, tracker *Tracker, job *entities.ImportJob, index int, row []string, records map[string]*metadata.Record) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Import job %s panicked on row %d: %v", job.ID, index+1, rec)
			tracker.RowFailed(entities.ImportError{
				Row:     index + 1,
				Type:    entities.ErrorTypeException,
				Message: fmt.Sprintf("unexpected failure: %v", rec),
				RawRow:  strings.Join(row, ","),
			})
		}
	}()

	cand := BuildCandidate(job.OwnerID, index+1, job.Mapping, row)
	result := resolver.ResolveRow(cand, records[cand.BestISBN()])
	switch result.Outcome {
	case OutcomeCreated:
		tracker.RowSucceeded()
	case OutcomeMerged:
		tracker.RowMerged()
	case OutcomeSkipped:
		tracker.RowSkipped()
	case OutcomeError:
		result.Err.RawRow = strings.Join(row, ",")
		tracker.RowFailed(*result.Err)
	}
}

// enrich collects every identifier in the file and fetches metadata for all
// of them up front through the bounded pool.
func (r *Runner) enrich(ctx context.Context, job *entities.ImportJob, rows [][]string, tracker *Tracker) map[string]*metadata.Record {
	var ids []string
	for i, row := range rows {
		cand := BuildCandidate(job.OwnerID, i+1, job.Mapping, row)
		if cand.RawISBN != "" {
			ids = append(ids, cand.RawISBN)
		}
	}
	if len(ids) == 0 {
		return map[string]*metadata.Record{}
	}

	tracker.SetStatus(entities.JobStatusEnriching)
	tracker.Activity(fmt.Sprintf("Looking up metadata for %d identifiers", len(ids)))
	return r.batcher.FetchAll(ctx, ids)
}

// ensureFieldDefs resolves every custom-field token in the mapping to a
// definition ID before the row loop starts.
func (r *Runner) ensureFieldDefs(ownerID uint, mapping []entities.FieldAssignment) (map[entities.CanonicalField]uint, error) {
	defs := map[entities.CanonicalField]uint{}
	for _, token := range importformat.CustomTokens(mapping) {
		scope, name, ok := token.CustomSpec()
		if !ok {
			continue
		}
		def, err := r.catalog.EnsureFieldDef(ownerID, name, scope)
		if err != nil {
			return nil, err
		}
		defs[token] = def.ID
	}
	return defs, nil
}

// readRows parses the full source file into memory. Imports are personal
// exports, small enough that streaming buys nothing.
func (r *Runner) readRows(job *entities.ImportJob) ([][]string, error) {
	f, err := os.Open(job.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	if job.Delimiter != "" {
		reader.Comma = rune(job.Delimiter[0])
	}

	var rows [][]string
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse source file: %w", err)
		}
		if first && job.HasHeader {
			first = false
			continue
		}
		first = false
		// Fully blank rows stay in: the resolver counts them as skipped so
		// the final tally accounts for every data row in the file.
		rows = append(rows, record)
	}
	return rows, nil
}

func (r *Runner) cancelRequested(ownerID uint, jobID string) bool {
	job, err := r.store.Get(ownerID, jobID)
	if err != nil {
		return false
	}
	return job.CancelRequested
}

// removeSource deletes the temp upload once the job reaches a terminal status.
func (r *Runner) removeSource(job *entities.ImportJob) {
	if job.SourcePath == "" {
		return
	}
	if err := os.Remove(job.SourcePath); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to remove upload %s: %v", job.SourcePath, err)
	}
}

