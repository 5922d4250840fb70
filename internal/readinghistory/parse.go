package readinghistory

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jwhitley/stacks/internal/entities"
)

// Entry is one parsed reading-history row.
type Entry struct {
	Row     int
	Date    time.Time
	Name    string
	Pages   int
	Minutes int
}

// Bookless reports whether the row named no book.
func (e *Entry) Bookless() bool {
	return e.Name == ""
}

// groupKey normalizes a book name for grouping. The empty key collects
// bookless rows.
func groupKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 02, 2006",
	"January 2, 2006",
	time.RFC3339,
}

// parseEntry maps one source row. A missing or unparseable date invalidates
// the row; everything else degrades to zero values.
func parseEntry(rowNum int, mapping []entities.FieldAssignment, record []string) (*Entry, *entities.ImportError) {
	entry := &Entry{Row: rowNum}
	dateRaw := ""

	for i, assignment := range mapping {
		if i >= len(record) {
			break
		}
		value := strings.TrimSpace(record[i])
		if value == "" {
			continue
		}
		switch assignment.Field {
		case entities.FieldEntryDate:
			dateRaw = value
		case entities.FieldBookName:
			entry.Name = value
		case entities.FieldPagesRead:
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				entry.Pages = n
			}
		case entities.FieldMinutesRead:
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				entry.Minutes = n
			}
		}
	}

	if dateRaw == "" {
		return nil, &entities.ImportError{
			Row:     rowNum,
			Type:    entities.ErrorTypeValidation,
			Message: "entry has no date",
			RawRow:  strings.Join(record, ","),
		}
	}
	date, ok := parseHistoryDate(dateRaw)
	if !ok {
		return nil, &entities.ImportError{
			Row:     rowNum,
			Type:    entities.ErrorTypeValidation,
			Message: fmt.Sprintf("unparseable date %q", dateRaw),
			RawRow:  strings.Join(record, ","),
		}
	}
	entry.Date = date
	return entry, nil
}

func parseHistoryDate(value string) (time.Time, bool) {
	for _, format := range dateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
