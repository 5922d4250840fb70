package entities

import "strings"

// CanonicalField is the enumerated target of one mapped source column.
// Custom-field tokens carry a scope prefix: "custom:global:<name>" or
// "custom:personal:<name>".
type CanonicalField string

const (
	FieldIgnore        CanonicalField = ""
	FieldTitle         CanonicalField = "title"
	FieldAuthor        CanonicalField = "author"
	FieldISBN          CanonicalField = "isbn"
	FieldISBN13        CanonicalField = "isbn13"
	FieldPublisher     CanonicalField = "publisher"
	FieldPublishedYear CanonicalField = "published_year"
	FieldPageCount     CanonicalField = "page_count"
	FieldDescription   CanonicalField = "description"
	FieldCategories    CanonicalField = "categories"
	FieldCoverURL      CanonicalField = "cover_url"
	FieldRating        CanonicalField = "rating"
	FieldReview        CanonicalField = "review"
	FieldReadingStatus CanonicalField = "reading_status"
	FieldDateRead      CanonicalField = "date_read"
	FieldDateAdded     CanonicalField = "date_added"

	// Reading-history columns.
	FieldEntryDate   CanonicalField = "entry_date"
	FieldBookName    CanonicalField = "book_name"
	FieldPagesRead   CanonicalField = "pages_read"
	FieldMinutesRead CanonicalField = "minutes_read"
)

const customPrefix = "custom:"

// CustomField builds a scoped custom-field token.
func CustomField(scope FieldScope, name string) CanonicalField {
	return CanonicalField(customPrefix + string(scope) + ":" + name)
}

// CustomSpec splits a custom-field token into scope and name.
// ok is false for core fields and malformed tokens.
func (f CanonicalField) CustomSpec() (scope FieldScope, name string, ok bool) {
	s := string(f)
	if !strings.HasPrefix(s, customPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(s, customPrefix)
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", false
	}
	switch FieldScope(parts[0]) {
	case FieldScopeGlobal, FieldScopePersonal:
		return FieldScope(parts[0]), parts[1], true
	}
	return "", "", false
}

// IsCustom reports whether the field is a scoped custom-field token.
func (f CanonicalField) IsCustom() bool {
	_, _, ok := f.CustomSpec()
	return ok
}

var coreFields = map[CanonicalField]bool{
	FieldTitle:         true,
	FieldAuthor:        true,
	FieldISBN:          true,
	FieldISBN13:        true,
	FieldPublisher:     true,
	FieldPublishedYear: true,
	FieldPageCount:     true,
	FieldDescription:   true,
	FieldCategories:    true,
	FieldCoverURL:      true,
	FieldRating:        true,
	FieldReview:        true,
	FieldReadingStatus: true,
	FieldDateRead:      true,
	FieldDateAdded:     true,
	FieldEntryDate:     true,
	FieldBookName:      true,
	FieldPagesRead:     true,
	FieldMinutesRead:   true,
}

// Known reports whether the field is a core field, a well-formed custom
// token, or the ignore marker. Mapping overrides reject anything else.
func (f CanonicalField) Known() bool {
	return f == FieldIgnore || coreFields[f] || f.IsCustom()
}

// FieldAssignment maps one source column (by position) to a canonical field.
type FieldAssignment struct {
	Column string         `json:"column"`
	Field  CanonicalField `json:"field"`
}
