package importformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwhitley/stacks/internal/entities"
)

var goodreadsHeader = []string{
	"Book Id", "Title", "Author", "Author l-f", "Additional Authors",
	"ISBN", "ISBN13", "My Rating", "Average Rating", "Publisher", "Binding",
	"Number of Pages", "Year Published", "Original Publication Year",
	"Date Read", "Date Added", "Bookshelves", "Bookshelves with positions",
	"Exclusive Shelf", "My Review",
}

var storygraphHeader = []string{
	"Title", "Authors", "Contributors", "ISBN/UID", "Format", "Read Status",
	"Date Added", "Last Date Read", "Dates Read", "Read Count", "Moods", "Pace",
	"Star Rating", "Review", "Owned?",
}

func TestDetectFormat_Goodreads(t *testing.T) {
	d := DetectFormat(goodreadsHeader, nil)

	assert.Equal(t, FormatGoodreads, d.Format)
	assert.GreaterOrEqual(t, d.Confidence, MinConfidence)
	require.NotEmpty(t, d.Mapping)

	fields := mappingByColumn(d.Mapping)
	assert.Equal(t, entities.FieldISBN13, fields["ISBN13"])
	assert.Equal(t, entities.FieldRating, fields["My Rating"])
	// Shelving tags are personal opinion, not classification
	assert.Equal(t, entities.CustomField(entities.FieldScopePersonal, "bookshelves"), fields["Bookshelves"])
	assert.NotEqual(t, entities.FieldCategories, fields["Bookshelves"])
}

func TestDetectFormat_StoryGraph(t *testing.T) {
	d := DetectFormat(storygraphHeader, nil)

	assert.Equal(t, FormatStoryGraph, d.Format)

	fields := mappingByColumn(d.Mapping)
	assert.Equal(t, entities.FieldISBN, fields["ISBN/UID"])
	assert.Equal(t, entities.CustomField(entities.FieldScopePersonal, "moods"), fields["Moods"])
	assert.Equal(t, entities.CustomField(entities.FieldScopePersonal, "pace"), fields["Pace"])
}

func TestDetectFormat_ReadingHistory(t *testing.T) {
	d := DetectFormat([]string{"Date", "Book", "Pages Read", "Minutes Read"}, nil)

	assert.Equal(t, FormatReadingHistory, d.Format)

	fields := mappingByColumn(d.Mapping)
	assert.Equal(t, entities.FieldEntryDate, fields["Date"])
	assert.Equal(t, entities.FieldBookName, fields["Book"])
}

func TestDetectFormat_UnknownBelowThreshold(t *testing.T) {
	d := DetectFormat([]string{"Foo", "Bar", "Baz"}, [][]string{{"1", "2", "3"}})
	assert.Equal(t, FormatUnknown, d.Format)
	assert.Equal(t, 0.0, d.Confidence)
}

func TestDetectFormat_UnknownKeywordHeuristic(t *testing.T) {
	d := DetectFormat([]string{"Book Title", "Written By", "The ISBN", "Genre"}, nil)

	require.Equal(t, FormatUnknown, d.Format)
	fields := mappingByColumn(d.Mapping)
	assert.Equal(t, entities.FieldTitle, fields["Book Title"])
	assert.Equal(t, entities.FieldISBN, fields["The ISBN"])
	assert.Equal(t, entities.FieldCategories, fields["Genre"])
}

func TestDetectFormat_ISBNList(t *testing.T) {
	sample := [][]string{
		{"9780306406157"},
		{"0306406152"},
		{"978-0-13-468599-1"},
		{"080442957X"},
	}
	d := DetectFormat([]string{"9780140328721"}, sample)

	assert.Equal(t, FormatISBNList, d.Format)
	require.Len(t, d.Mapping, 1)
	assert.Equal(t, entities.FieldISBN, d.Mapping[0].Field)
}

func TestDetectFormat_ISBNListBelowEightyPercent(t *testing.T) {
	sample := [][]string{
		{"9780306406157"},
		{"not an isbn"},
		{"also not"},
	}
	d := DetectFormat(nil, sample)
	assert.Equal(t, FormatUnknown, d.Format)
}

func TestDetection_HasParseableHeader(t *testing.T) {
	d := DetectFormat([]string{"Book Title", "Writer", "Identifier", "Stars"}, nil)
	assert.Equal(t, FormatUnknown, d.Format)
	assert.True(t, d.HasParseableHeader(), "a keyword-guessable header must be usable")
	assert.Equal(t, entities.FieldTitle, mappingByColumn(d.Mapping)["Book Title"])

	d = DetectFormat([]string{"alpha", "beta", "gamma"}, nil)
	assert.Equal(t, FormatUnknown, d.Format)
	assert.False(t, d.HasParseableHeader())
}

func TestCustomTokens(t *testing.T) {
	mapping := BuildMapping(FormatStoryGraph, storygraphHeader)
	tokens := CustomTokens(mapping)

	assert.Contains(t, tokens, entities.CustomField(entities.FieldScopePersonal, "moods"))
	assert.Contains(t, tokens, entities.CustomField(entities.FieldScopeGlobal, "format"))
}

func mappingByColumn(mapping []entities.FieldAssignment) map[string]entities.CanonicalField {
	out := make(map[string]entities.CanonicalField, len(mapping))
	for _, a := range mapping {
		out[a.Column] = a.Field
	}
	return out
}
