package importer

import (
	"fmt"
	"log"

	"github.com/jwhitley/stacks/internal/entities"
	"github.com/jwhitley/stacks/internal/metadata"
)

// Outcome is the resolver's verdict for one row.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeMerged
	OutcomeSkipped
	OutcomeError
)

// RowResult pairs the outcome with the book it landed on and, for errors,
// the classified failure.
type RowResult struct {
	Outcome Outcome
	BookID  uint
	Err     *entities.ImportError
}

// Resolver turns enriched candidates into catalog writes.
type Resolver struct {
	catalog Catalog

	// fieldDefs maps custom-field tokens to their definition IDs, resolved
	// once per job before the row loop starts.
	fieldDefs map[entities.CanonicalField]uint
}

func NewResolver(catalog Catalog, fieldDefs map[entities.CanonicalField]uint) *Resolver {
	if fieldDefs == nil {
		fieldDefs = map[entities.CanonicalField]uint{}
	}
	return &Resolver{catalog: catalog, fieldDefs: fieldDefs}
}

// ResolveRow decides what one candidate becomes: a new book, a merge into an
// existing one, a skip, or a classified error. Errors never abort the job.
func (r *Resolver) ResolveRow(cand *Candidate, record *metadata.Record) RowResult {
	cand.ApplyEnrichment(record)

	if cand.Book.Title == "" && !cand.HasIdentifier() {
		return RowResult{Outcome: OutcomeSkipped}
	}

	// An identifier that enrichment could not resolve, with nothing local to
	// fall back on, is unaddable.
	if cand.Book.Title == "" {
		return RowResult{
			Outcome: OutcomeError,
			Err: &entities.ImportError{
				Row:     cand.Row,
				Type:    entities.ErrorTypeLookup,
				Message: fmt.Sprintf("no metadata found for %q and the row has no title", cand.RawISBN),
				ISBN:    cand.RawISBN,
			},
		}
	}

	result, err := r.catalog.CreateBook(&cand.Book)
	if err != nil {
		return RowResult{
			Outcome: OutcomeError,
			Err:     r.rowError(cand, entities.ErrorTypeAdd, err),
		}
	}

	if result.Created {
		if err := r.writeCustomValues(cand, result.ID, false); err != nil {
			log.Printf("import: custom field write failed for book %d: %v", result.ID, err)
		}
		return RowResult{Outcome: OutcomeCreated, BookID: result.ID}
	}

	if err := r.mergeInto(cand, result.ExistingID); err != nil {
		return RowResult{
			Outcome: OutcomeError,
			Err:     r.rowError(cand, entities.ErrorTypeMerge, err),
		}
	}
	return RowResult{Outcome: OutcomeMerged, BookID: result.ExistingID}
}

// mergeInto fills the existing book's empty fields from the candidate and
// unions custom values. Populated fields on the existing book always win.
func (r *Resolver) mergeInto(cand *Candidate, existingID uint) error {
	existing, err := r.catalog.GetBookByID(existingID)
	if err != nil {
		return fmt.Errorf("load existing book: %w", err)
	}

	patch := map[string]any{}
	if existing.Author == "" && cand.Book.Author != "" {
		patch["author"] = cand.Book.Author
	}
	if existing.ISBN10 == "" && cand.Book.ISBN10 != "" {
		patch["isbn10"] = cand.Book.ISBN10
	}
	if existing.ISBN13 == "" && cand.Book.ISBN13 != "" {
		patch["isbn13"] = cand.Book.ISBN13
	}
	if existing.Publisher == "" && cand.Book.Publisher != "" {
		patch["publisher"] = cand.Book.Publisher
	}
	if existing.PublicationYear == 0 && cand.Book.PublicationYear != 0 {
		patch["publication_year"] = cand.Book.PublicationYear
	}
	if existing.PageCount == 0 && cand.Book.PageCount != 0 {
		patch["page_count"] = cand.Book.PageCount
	}
	if existing.Description == "" && cand.Book.Description != "" {
		patch["description"] = cand.Book.Description
	}
	if existing.CoverURL == "" && cand.Book.CoverURL != "" {
		patch["cover_url"] = cand.Book.CoverURL
	}
	if len(existing.Categories) == 0 && len(cand.Book.Categories) > 0 {
		patch["categories"] = cand.Book.Categories
	}
	if existing.Rating == 0 && cand.Book.Rating != 0 {
		patch["rating"] = cand.Book.Rating
	}
	if existing.Review == "" && cand.Book.Review != "" {
		patch["review"] = cand.Book.Review
	}
	if existing.ReadingStatus == "" && cand.Book.ReadingStatus != "" {
		patch["reading_status"] = cand.Book.ReadingStatus
	}
	if existing.DateRead == nil && cand.Book.DateRead != nil {
		patch["date_read"] = cand.Book.DateRead
	}
	if existing.DateAdded == nil && cand.Book.DateAdded != nil {
		patch["date_added"] = cand.Book.DateAdded
	}

	if err := r.catalog.UpdateBook(existingID, patch); err != nil {
		return fmt.Errorf("merge update: %w", err)
	}
	if err := r.writeCustomValues(cand, existingID, true); err != nil {
		return fmt.Errorf("merge custom values: %w", err)
	}
	return nil
}

func (r *Resolver) writeCustomValues(cand *Candidate, bookID uint, union bool) error {
	for field, value := range cand.Custom {
		fieldID, ok := r.fieldDefs[field]
		if !ok {
			continue
		}
		var err error
		if union {
			err = r.catalog.UnionFieldValue(cand.Book.OwnerID, bookID, fieldID, value)
		} else {
			err = r.catalog.SetFieldValue(cand.Book.OwnerID, bookID, fieldID, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) rowError(cand *Candidate, errType string, err error) *entities.ImportError {
	return &entities.ImportError{
		Row:     cand.Row,
		Type:    errType,
		Message: err.Error(),
		ISBN:    cand.RawISBN,
		Title:   cand.Book.Title,
		Author:  cand.Book.Author,
	}
}
