package importer

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/jwhitley/stacks/internal/entities"
	"github.com/jwhitley/stacks/internal/metadata"
)

// Candidate is the ephemeral row-plus-enrichment record for one import row.
// It is never persisted directly and never shared across rows.
type Candidate struct {
	Row  int
	Raw  []string
	Book entities.Book

	// Custom holds scoped custom-field tokens mapped from the row.
	Custom map[entities.CanonicalField]string

	// RawISBN is the identifier as the row supplied it, pre-normalization.
	RawISBN string

	// TitleFromRow records whether the row itself carried a title, before
	// any enrichment. Drives the lookup_failed decision.
	TitleFromRow bool
}

// BuildCandidate maps one source row through the field mapping.
// Unparseable optional values are dropped, not fatal.
func BuildCandidate(ownerID uint, rowNum int, mapping []entities.FieldAssignment, record []string) *Candidate {
	cand := &Candidate{
		Row:    rowNum,
		Raw:    record,
		Custom: map[entities.CanonicalField]string{},
	}
	cand.Book.OwnerID = ownerID

	for i, assignment := range mapping {
		if i >= len(record) {
			break
		}
		value := cleanCell(record[i])
		if value == "" || assignment.Field == entities.FieldIgnore {
			continue
		}

		switch assignment.Field {
		case entities.FieldTitle:
			cand.Book.Title = value
			cand.TitleFromRow = true
		case entities.FieldAuthor:
			cand.Book.Author = value
		case entities.FieldISBN:
			cand.setISBN(value)
		case entities.FieldISBN13:
			cand.setISBN(value)
		case entities.FieldPublisher:
			cand.Book.Publisher = value
		case entities.FieldPublishedYear:
			if year, err := strconv.Atoi(value); err == nil {
				cand.Book.PublicationYear = year
			}
		case entities.FieldPageCount:
			if pages, err := strconv.Atoi(value); err == nil {
				cand.Book.PageCount = pages
			}
		case entities.FieldDescription:
			cand.Book.Description = value
		case entities.FieldCategories:
			cand.Book.Categories = splitList(value)
		case entities.FieldCoverURL:
			cand.Book.CoverURL = value
		case entities.FieldRating:
			if rating, err := strconv.ParseFloat(value, 64); err == nil && rating > 0 {
				cand.Book.Rating = rating
			}
		case entities.FieldReview:
			cand.Book.Review = value
		case entities.FieldReadingStatus:
			cand.Book.ReadingStatus = parseReadingStatus(value)
		case entities.FieldDateRead:
			if t, ok := parseDate(value); ok {
				cand.Book.DateRead = &t
			}
		case entities.FieldDateAdded:
			if t, ok := parseDate(value); ok {
				cand.Book.DateAdded = &t
			}
		default:
			if assignment.Field.IsCustom() {
				cand.Custom[assignment.Field] = value
			}
		}
	}

	return cand
}

// setISBN normalizes and slots an identifier by its form, remembering the raw
// value for error reporting even when invalid.
func (c *Candidate) setISBN(value string) {
	if c.RawISBN == "" {
		c.RawISBN = value
	}
	isbn := metadata.NormalizeISBN(value)
	switch len(isbn) {
	case 10:
		if c.Book.ISBN10 == "" {
			c.Book.ISBN10 = isbn
		}
	case 13:
		if c.Book.ISBN13 == "" {
			c.Book.ISBN13 = isbn
		}
	}
}

// HasIdentifier reports whether the row supplied any identifier at all,
// valid or not.
func (c *Candidate) HasIdentifier() bool {
	return c.RawISBN != ""
}

// BestISBN returns the normalized identifier to enrich by, preferring the
// 13-digit form.
func (c *Candidate) BestISBN() string {
	if c.Book.ISBN13 != "" {
		return c.Book.ISBN13
	}
	return c.Book.ISBN10
}

// ApplyEnrichment merges the record using non-destructive precedence: a field
// already populated from the row is never overwritten, except categories,
// which enrichment replaces outright when non-empty. Source "genres" are
// usually personal tags, not real classification; the asymmetry is
// deliberate — flip replaceCategories if product intent turns out otherwise.
func (c *Candidate) ApplyEnrichment(record *metadata.Record) {
	if !record.Usable() {
		return
	}

	const replaceCategories = true

	if c.Book.Title == "" {
		c.Book.Title = record.Title
	}
	if c.Book.Author == "" {
		c.Book.Author = record.Author
	}
	if c.Book.ISBN10 == "" {
		c.Book.ISBN10 = record.ISBN10
	}
	if c.Book.ISBN13 == "" {
		c.Book.ISBN13 = record.ISBN13
	}
	if c.Book.Publisher == "" {
		c.Book.Publisher = record.Publisher
	}
	if c.Book.PublicationYear == 0 {
		c.Book.PublicationYear = record.PublicationYear
	}
	if c.Book.PageCount == 0 {
		c.Book.PageCount = record.PageCount
	}
	if c.Book.Description == "" {
		c.Book.Description = record.Description
	}
	if c.Book.CoverURL == "" {
		c.Book.CoverURL = record.CoverURL
	}
	if len(record.Categories) > 0 && (replaceCategories || len(c.Book.Categories) == 0) {
		c.Book.Categories = datatypes.NewJSONSlice(record.Categories)
	}
}

// cleanCell strips whitespace plus the ="..." wrapper some exports put
// around identifiers to stop spreadsheets from eating leading zeros.
func cleanCell(value string) string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, `="`) && strings.HasSuffix(value, `"`) {
		value = strings.TrimSuffix(strings.TrimPrefix(value, `="`), `"`)
	}
	return strings.TrimSpace(strings.Trim(value, `"`))
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseReadingStatus(value string) entities.ReadingStatus {
	switch strings.ToLower(strings.ReplaceAll(value, "-", " ")) {
	case "read", "finished":
		return entities.ReadingStatusRead
	case "currently reading", "reading":
		return entities.ReadingStatusReading
	case "to read", "want to read", "to be read":
		return entities.ReadingStatusToRead
	case "did not finish", "dnf", "abandoned":
		return entities.ReadingStatusAbandoned
	}
	return ""
}

func parseDate(value string) (time.Time, bool) {
	formats := []string{
		"2006/01/02",
		"2006-01-02",
		"01/02/2006",
		"Jan 02, 2006",
		"January 2, 2006",
		time.RFC3339,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
