package importformat

import (
	"strings"

	"github.com/jwhitley/stacks/internal/entities"
)

// Per-format alias tables. Service-specific shelving and mood columns route
// to scoped custom fields rather than to categories: those values are
// personal opinion, not classification.
var aliasTables = map[Format]map[string]entities.CanonicalField{
	FormatGoodreads: {
		"title":           entities.FieldTitle,
		"author":          entities.FieldAuthor,
		"isbn":            entities.FieldISBN,
		"isbn13":          entities.FieldISBN13,
		"my rating":       entities.FieldRating,
		"publisher":       entities.FieldPublisher,
		"number of pages": entities.FieldPageCount,
		"year published":  entities.FieldPublishedYear,
		"date read":       entities.FieldDateRead,
		"date added":      entities.FieldDateAdded,
		"exclusive shelf": entities.FieldReadingStatus,
		"my review":       entities.FieldReview,
		"bookshelves":     entities.CustomField(entities.FieldScopePersonal, "bookshelves"),
	},
	FormatStoryGraph: {
		"title":          entities.FieldTitle,
		"authors":        entities.FieldAuthor,
		"isbn/uid":       entities.FieldISBN,
		"read status":    entities.FieldReadingStatus,
		"last date read": entities.FieldDateRead,
		"star rating":    entities.FieldRating,
		"review":         entities.FieldReview,
		"format":         entities.CustomField(entities.FieldScopeGlobal, "format"),
		"moods":          entities.CustomField(entities.FieldScopePersonal, "moods"),
		"pace":           entities.CustomField(entities.FieldScopePersonal, "pace"),
		"tags":           entities.CustomField(entities.FieldScopePersonal, "tags"),
	},
	FormatLibraryThing: {
		"title":          entities.FieldTitle,
		"primary author": entities.FieldAuthor,
		"isbn":           entities.FieldISBN,
		"rating":         entities.FieldRating,
		"entry date":     entities.FieldDateAdded,
		"date read":      entities.FieldDateRead,
		"publication":    entities.FieldPublisher,
		"review":         entities.FieldReview,
		"collections":    entities.CustomField(entities.FieldScopePersonal, "collections"),
		"tags":           entities.CustomField(entities.FieldScopePersonal, "tags"),
	},
	FormatReadingHistory: {
		"date":         entities.FieldEntryDate,
		"book":         entities.FieldBookName,
		"book title":   entities.FieldBookName,
		"title":        entities.FieldBookName,
		"pages read":   entities.FieldPagesRead,
		"pages":        entities.FieldPagesRead,
		"minutes read": entities.FieldMinutesRead,
		"minutes":      entities.FieldMinutesRead,
		"duration":     entities.FieldMinutesRead,
	},
}

// BuildMapping maps every header column, in order, to a canonical field.
// Known formats use their alias table; unknown formats get a keyword
// best-effort that the caller may override before the job starts.
func BuildMapping(format Format, header []string) []entities.FieldAssignment {
	mapping := make([]entities.FieldAssignment, 0, len(header))
	table := aliasTables[format]

	for _, column := range header {
		key := strings.ToLower(strings.TrimSpace(column))
		var field entities.CanonicalField
		if table != nil {
			field = table[key]
		} else {
			field = guessField(key)
		}
		mapping = append(mapping, entities.FieldAssignment{Column: column, Field: field})
	}
	return mapping
}

// guessField is the keyword heuristic for unknown formats.
func guessField(key string) entities.CanonicalField {
	switch {
	case key == "":
		return entities.FieldIgnore
	case strings.Contains(key, "isbn13") || strings.Contains(key, "isbn-13"):
		return entities.FieldISBN13
	case strings.Contains(key, "isbn"):
		return entities.FieldISBN
	case strings.Contains(key, "title"):
		return entities.FieldTitle
	case strings.Contains(key, "author"):
		return entities.FieldAuthor
	case strings.Contains(key, "publisher"):
		return entities.FieldPublisher
	case strings.Contains(key, "year") || strings.Contains(key, "published"):
		return entities.FieldPublishedYear
	case strings.Contains(key, "page"):
		return entities.FieldPageCount
	case strings.Contains(key, "rating"):
		return entities.FieldRating
	case strings.Contains(key, "review") || strings.Contains(key, "notes"):
		return entities.FieldReview
	case strings.Contains(key, "shelf") || strings.Contains(key, "shelves") || strings.Contains(key, "tag"):
		return entities.CustomField(entities.FieldScopePersonal, "tags")
	case strings.Contains(key, "category") || strings.Contains(key, "genre") || strings.Contains(key, "subject"):
		return entities.FieldCategories
	case strings.Contains(key, "cover"):
		return entities.FieldCoverURL
	case strings.Contains(key, "status"):
		return entities.FieldReadingStatus
	case strings.Contains(key, "added"):
		return entities.FieldDateAdded
	case strings.Contains(key, "read"):
		return entities.FieldDateRead
	default:
		return entities.FieldIgnore
	}
}

// CustomTokens returns the distinct custom-field tokens used by a mapping.
// Every one of them must resolve to a field definition before row processing
// starts.
func CustomTokens(mapping []entities.FieldAssignment) []entities.CanonicalField {
	seen := map[entities.CanonicalField]bool{}
	var out []entities.CanonicalField
	for _, a := range mapping {
		if a.Field.IsCustom() && !seen[a.Field] {
			seen[a.Field] = true
			out = append(out, a.Field)
		}
	}
	return out
}
