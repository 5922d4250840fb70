// Package readinghistory implements the two-phase import of reading-session
// logs. Phase one (Analyze) groups rows by book name and pauses for human
// review when any group has no obvious catalog match; phase two (Finalize)
// replays the source file against the recorded decisions and writes log
// entries.
package readinghistory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/jwhitley/stacks/internal/config"
	"github.com/jwhitley/stacks/internal/entities"
	"github.com/jwhitley/stacks/internal/importer"
	"github.com/jwhitley/stacks/internal/jobstore"
	"github.com/jwhitley/stacks/internal/metadata"
)

// maxCandidates bounds the suggestion list per unmatched group.
const maxCandidates = 5

// Reconciler drives reading-history jobs through analysis, resolution and
// finalization. Only match groups and resolutions persist between phases;
// the source file itself is re-read during finalization.
type Reconciler struct {
	store    jobstore.Store
	catalog  importer.Catalog
	provider metadata.Provider
	emitter  *importer.Emitter
	cfg      config.History
}

func NewReconciler(store jobstore.Store, catalog importer.Catalog, provider metadata.Provider, emitter *importer.Emitter, cfg config.History) *Reconciler {
	return &Reconciler{
		store:    store,
		catalog:  catalog,
		provider: provider,
		emitter:  emitter,
		cfg:      cfg,
	}
}

// Analyze parses the source file, groups entries by book name and resolves
// what it can automatically: exact title matches bind to the catalog book,
// bookless rows bind to the owner's placeholder. It reports whether any
// group still needs a human decision; when none does the caller proceeds
// straight to Finalize.
func (r *Reconciler) Analyze(ctx context.Context, ownerID uint, jobID string) (needsMatching bool, err error) {
	job, err := r.store.Get(ownerID, jobID)
	if err != nil {
		return false, fmt.Errorf("load history job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		log.Printf("History job %s already finished with status %s, skipping", jobID, job.Status)
		return false, nil
	}

	tracker := r.emitter.Begin(ownerID, jobID)
	tracker.SetStatus(entities.JobStatusAnalyzing)
	tracker.Activity("Analyzing reading history")

	rows, err := r.readRows(job)
	if err != nil {
		log.Printf("History job %s failed reading %s: %v", jobID, job.SourceName, err)
		tracker.Activity("Could not read the uploaded file")
		tracker.Finish(entities.JobStatusFailed)
		r.removeSource(job)
		return false, nil
	}

	entries, parseErrs := r.parseAll(job, rows)
	// Unparseable rows are counted and logged now so a poller watching the
	// review pause can already see them; finalization will not count them
	// again.
	for _, rowErr := range parseErrs {
		tracker.RowFailed(rowErr)
	}
	groups := r.buildGroups(ctx, ownerID, entries)

	unresolved := 0
	for _, g := range groups {
		if g.Resolution == nil {
			unresolved++
		}
	}

	if err := r.store.Update(ownerID, jobID, func(job *entities.ImportJob) {
		job.Total = len(rows)
		job.MatchGroups = groups
	}); err != nil {
		return false, fmt.Errorf("persist analysis for job %s: %w", jobID, err)
	}

	if unresolved > 0 {
		tracker.Activity(fmt.Sprintf("Found %d books that need your review", unresolved))
		tracker.SetStatus(entities.JobStatusNeedsMatching)
		return true, nil
	}

	tracker.Activity("All books matched automatically")
	tracker.SetStatus(entities.JobStatusRunning)
	return false, nil
}

// buildGroups collapses entries into per-name groups and attaches automatic
// resolutions or search candidates.
func (r *Reconciler) buildGroups(ctx context.Context, ownerID uint, entries []*Entry) []entities.MatchGroup {
	counts := map[string]int{}
	display := map[string]string{}
	var order []string
	for _, e := range entries {
		key := groupKey(e.Name)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
			display[key] = strings.TrimSpace(e.Name)
		}
		counts[key]++
	}
	// Named groups first, alphabetically; the bookless group last
	sort.Slice(order, func(i, j int) bool {
		if (order[i] == "") != (order[j] == "") {
			return order[j] == ""
		}
		return order[i] < order[j]
	})

	groups := make([]entities.MatchGroup, 0, len(order))
	for _, key := range order {
		group := entities.MatchGroup{
			Name:       display[key],
			EntryCount: counts[key],
		}

		if key == "" {
			group.Resolution = &entities.BookResolution{Action: entities.ResolutionBookless}
			groups = append(groups, group)
			continue
		}

		if exact, err := r.catalog.FindByTitle(ownerID, group.Name); err == nil && exact != nil {
			group.Resolution = &entities.BookResolution{Action: entities.ResolutionMatch, BookID: exact.ID}
			groups = append(groups, group)
			continue
		}

		if ctx.Err() == nil {
			if found, err := r.catalog.Search(group.Name, ownerID, maxCandidates); err == nil {
				for _, book := range found {
					group.Candidates = append(group.Candidates, entities.SearchCandidate{
						BookID: book.ID,
						Title:  book.Title,
						Author: book.Author,
					})
				}
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// ApplyResolutions records the owner's decisions for the groups still waiting
// on one. Decisions are keyed by group name; every unresolved group must
// receive a valid decision in a single call.
func (r *Reconciler) ApplyResolutions(ownerID uint, jobID string, decisions map[string]entities.BookResolution) error {
	job, err := r.store.Get(ownerID, jobID)
	if err != nil {
		return err
	}
	if job.Status != entities.JobStatusNeedsMatching {
		return fmt.Errorf("job %s is %s, not awaiting book matching", jobID, job.Status)
	}

	resolved := make([]entities.MatchGroup, len(job.MatchGroups))
	copy(resolved, job.MatchGroups)

	for i := range resolved {
		if resolved[i].Resolution != nil {
			continue
		}
		decision, ok := decisions[resolved[i].Name]
		if !ok {
			return fmt.Errorf("no decision for %q", resolved[i].Name)
		}
		if err := r.validateDecision(ownerID, &decision); err != nil {
			return fmt.Errorf("decision for %q: %w", resolved[i].Name, err)
		}
		resolved[i].Resolution = &decision
	}

	return r.store.Update(ownerID, jobID, func(job *entities.ImportJob) {
		job.MatchGroups = resolved
		job.Status = entities.JobStatusRunning
	})
}

func (r *Reconciler) validateDecision(ownerID uint, decision *entities.BookResolution) error {
	switch decision.Action {
	case entities.ResolutionMatch:
		book, err := r.catalog.GetBookByID(decision.BookID)
		if err != nil || book == nil || book.OwnerID != ownerID {
			return fmt.Errorf("book %d does not exist in your catalog", decision.BookID)
		}
		return nil
	case entities.ResolutionCreate:
		if strings.TrimSpace(decision.Title) == "" {
			return errors.New("a created book needs a title")
		}
		return nil
	case entities.ResolutionSkip, entities.ResolutionBookless:
		return nil
	}
	return fmt.Errorf("unknown action %q", decision.Action)
}

// Finalize re-reads the source file and writes one reading-log entry per
// valid row, honoring the recorded per-group decisions. A source file that
// disappeared between phases fails the job; per-row problems only count
// against it.
func (r *Reconciler) Finalize(ctx context.Context, ownerID uint, jobID string) error {
	job, err := r.store.Get(ownerID, jobID)
	if err != nil {
		return fmt.Errorf("load history job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		log.Printf("History job %s already finished with status %s, skipping", jobID, job.Status)
		return nil
	}

	tracker := r.emitter.Begin(ownerID, jobID)
	tracker.SetStatus(entities.JobStatusProcessing)
	tracker.Activity("Recording reading sessions")

	rows, err := r.readRows(job)
	if err != nil {
		log.Printf("History job %s failed re-reading %s: %v", jobID, job.SourceName, err)
		tracker.Activity("The uploaded file is no longer available")
		tracker.Finish(entities.JobStatusFailed)
		r.removeSource(job)
		return nil
	}

	resolutions := map[string]*entities.BookResolution{}
	for i := range job.MatchGroups {
		resolutions[groupKey(job.MatchGroups[i].Name)] = job.MatchGroups[i].Resolution
	}

	// Resolved target books, created or fetched at most once per group
	targets := map[string]uint{}

	for _, record := range rows {
		if r.cancelRequested(ownerID, jobID) {
			tracker.Activity("Import cancelled")
			tracker.Finish(entities.JobStatusCancelled)
			r.removeSource(job)
			return nil
		}
		r.processEntry(ctx, job, record.rowNum, record.cells, resolutions, targets, tracker)
	}

	status := entities.JobStatusCompleted
	if tracker.Failures() > 0 {
		status = entities.JobStatusCompletedWithErrors
	}
	tracker.Activity("Reading history recorded")
	tracker.Finish(status)
	r.removeSource(job)
	return nil
}

func (r *Reconciler) processEntry(ctx context.Context, job *entities.ImportJob, rowNum int, record []string, resolutions map[string]*entities.BookResolution, targets map[string]uint, tracker *importer.Tracker) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("History job %s panicked on row %d: %v", job.ID, rowNum, rec)
			tracker.RowFailed(entities.ImportError{
				Row:     rowNum,
				Type:    entities.ErrorTypeException,
				Message: fmt.Sprintf("unexpected failure: %v", rec),
				RawRow:  strings.Join(record, ","),
			})
		}
	}()

	if emptyRow(record) {
		tracker.RowSkipped()
		return
	}

	entry, parseErr := parseEntry(rowNum, job.Mapping, record)
	if parseErr != nil {
		// Counted and logged during analysis
		return
	}

	key := groupKey(entry.Name)
	resolution := resolutions[key]
	if resolution == nil {
		tracker.RowFailed(entities.ImportError{
			Row:     rowNum,
			Type:    entities.ErrorTypeValidation,
			Message: fmt.Sprintf("no decision recorded for %q", entry.Name),
			Title:   entry.Name,
		})
		return
	}

	if resolution.Action == entities.ResolutionSkip {
		tracker.RowSkipped()
		return
	}

	bookID, err := r.targetBook(ctx, job.OwnerID, key, resolution, targets)
	if err != nil {
		tracker.RowFailed(entities.ImportError{
			Row:     rowNum,
			Type:    entities.ErrorTypeAdd,
			Message: err.Error(),
			Title:   entry.Name,
		})
		return
	}

	pages, minutes := r.applyDurationDefaults(entry.Pages, entry.Minutes)
	err = r.catalog.CreateLogEntry(&entities.ReadingLogEntry{
		OwnerID: job.OwnerID,
		BookID:  bookID,
		Date:    entry.Date,
		Pages:   pages,
		Minutes: minutes,
	})
	if err != nil {
		tracker.RowFailed(entities.ImportError{
			Row:     rowNum,
			Type:    entities.ErrorTypeAdd,
			Message: fmt.Sprintf("record reading session: %v", err),
			Title:   entry.Name,
		})
		return
	}
	tracker.RowSucceeded()
}

// targetBook resolves the destination book for a group, caching the result so
// a create decision produces exactly one book however many entries it has.
func (r *Reconciler) targetBook(ctx context.Context, ownerID uint, key string, resolution *entities.BookResolution, targets map[string]uint) (uint, error) {
	if id, ok := targets[key]; ok {
		return id, nil
	}

	var id uint
	switch resolution.Action {
	case entities.ResolutionMatch:
		book, err := r.catalog.GetBookByID(resolution.BookID)
		if err != nil || book == nil || book.OwnerID != ownerID {
			return 0, fmt.Errorf("matched book %d no longer exists", resolution.BookID)
		}
		id = book.ID
	case entities.ResolutionCreate:
		book := entities.Book{
			OwnerID: ownerID,
			Title:   resolution.Title,
			Author:  resolution.Author,
		}
		if isbn := metadata.NormalizeISBN(resolution.ISBN); isbn != "" {
			for _, form := range metadata.Forms(isbn) {
				switch len(form) {
				case 10:
					book.ISBN10 = form
				case 13:
					book.ISBN13 = form
				}
			}
			r.enrichNewBook(ctx, &book, isbn)
		}
		result, err := r.catalog.CreateBook(&book)
		if err != nil {
			return 0, fmt.Errorf("create book %q: %w", resolution.Title, err)
		}
		if result.Created {
			id = result.ID
		} else {
			id = result.ExistingID
		}
	case entities.ResolutionBookless:
		book, err := r.catalog.EnsureUnassignedBook(ownerID)
		if err != nil {
			return 0, fmt.Errorf("ensure unassigned book: %w", err)
		}
		id = book.ID
	default:
		return 0, fmt.Errorf("unknown action %q", resolution.Action)
	}

	targets[key] = id
	return id, nil
}

// enrichNewBook fills a book created from a resolution with provider metadata
// for the chosen identifier. The owner's own title and author win; a provider
// fault leaves the book exactly as entered.
func (r *Reconciler) enrichNewBook(ctx context.Context, book *entities.Book, isbn string) {
	if r.provider == nil {
		return
	}
	record, err := r.provider.LookupByISBN(ctx, isbn)
	if err != nil || !record.Usable() {
		return
	}
	if book.Author == "" {
		book.Author = record.Author
	}
	book.Publisher = record.Publisher
	book.PublicationYear = record.PublicationYear
	book.PageCount = record.PageCount
	book.Description = record.Description
	book.CoverURL = record.CoverURL
	book.Categories = record.Categories
}

// applyDurationDefaults fills missing pages/minutes from the owner-level
// defaults. An entry that still has neither gets one minute so it never
// records an empty session.
func (r *Reconciler) applyDurationDefaults(pages, minutes int) (int, int) {
	if pages == 0 {
		pages = r.cfg.DefaultPages
	}
	if minutes == 0 {
		minutes = r.cfg.DefaultMinutes
	}
	if pages == 0 && minutes == 0 {
		minutes = 1
	}
	return pages, minutes
}

type numberedRow struct {
	rowNum int
	cells  []string
}

func (r *Reconciler) readRows(job *entities.ImportJob) ([]numberedRow, error) {
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

	var rows []numberedRow
	first := true
	n := 0
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
		// Blank rows stay in and count as skipped so the final tally covers
		// every data row in the file
		n++
		rows = append(rows, numberedRow{rowNum: n, cells: record})
	}
	return rows, nil
}

func (r *Reconciler) parseAll(job *entities.ImportJob, rows []numberedRow) ([]*Entry, []entities.ImportError) {
	var entries []*Entry
	var errs []entities.ImportError
	for _, row := range rows {
		if emptyRow(row.cells) {
			continue
		}
		entry, parseErr := parseEntry(row.rowNum, job.Mapping, row.cells)
		if parseErr != nil {
			errs = append(errs, *parseErr)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, errs
}

func (r *Reconciler) cancelRequested(ownerID uint, jobID string) bool {
	job, err := r.store.Get(ownerID, jobID)
	if err != nil {
		return false
	}
	return job.CancelRequested
}

func (r *Reconciler) removeSource(job *entities.ImportJob) {
	if job.SourcePath == "" {
		return
	}
	if err := os.Remove(job.SourcePath); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to remove upload %s: %v", job.SourcePath, err)
	}
}

func emptyRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
