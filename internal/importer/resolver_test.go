package importer

import (
	"testing"

	"github.com/jwhitley/stacks/internal/entities"
)

func TestResolveRow_MergeFillsOnlyEmptyFields(t *testing.T) {
	catalog := newFakeCatalog()
	existing := &entities.Book{
		OwnerID: 1,
		Title:   "Dune",
		Author:  "Frank Herbert",
		Review:  "A classic.",
	}
	created, err := catalog.CreateBook(existing)
	if err != nil || !created.Created {
		t.Fatalf("seed failed: %v %+v", err, created)
	}

	def, _ := catalog.EnsureFieldDef(1, "tags", entities.FieldScopePersonal)
	if err := catalog.SetFieldValue(1, created.ID, def.ID, "sci-fi"); err != nil {
		t.Fatal(err)
	}

	resolver := NewResolver(catalog, map[entities.CanonicalField]uint{
		entities.CustomField(entities.FieldScopePersonal, "tags"): def.ID,
	})

	cand := &Candidate{
		Row: 1,
		Book: entities.Book{
			OwnerID:   1,
			Title:     "Dune",
			Author:    "Frank Herbert",
			Publisher: "Chilton Books",
			Review:    "Different review, must not win.",
		},
		Custom: map[entities.CanonicalField]string{
			entities.CustomField(entities.FieldScopePersonal, "tags"): "classics, sci-fi",
		},
		TitleFromRow: true,
	}

	result := resolver.ResolveRow(cand, nil)
	if result.Outcome != OutcomeMerged {
		t.Fatalf("Outcome = %v, want merged", result.Outcome)
	}
	if result.BookID != created.ID {
		t.Errorf("BookID = %d, want the existing book", result.BookID)
	}

	merged, _ := catalog.GetBookByID(created.ID)
	if merged.Publisher != "Chilton Books" {
		t.Errorf("Publisher = %q, empty field should be filled", merged.Publisher)
	}
	if merged.Review != "A classic." {
		t.Errorf("Review = %q, populated field must survive the merge", merged.Review)
	}
	if got := catalog.values[valueKey(1, created.ID, def.ID)]; got != "sci-fi, classics" {
		t.Errorf("union value = %q", got)
	}
}

func TestResolveRow_NoTitleNoIdentifierSkips(t *testing.T) {
	resolver := NewResolver(newFakeCatalog(), nil)

	result := resolver.ResolveRow(&Candidate{Row: 3}, nil)
	if result.Outcome != OutcomeSkipped {
		t.Errorf("Outcome = %v, want skipped", result.Outcome)
	}
}

func TestResolveRow_UnresolvedIdentifierWithoutTitle(t *testing.T) {
	resolver := NewResolver(newFakeCatalog(), nil)

	result := resolver.ResolveRow(&Candidate{Row: 2, RawISBN: "9780140328721"}, nil)
	if result.Outcome != OutcomeError {
		t.Fatalf("Outcome = %v, want error", result.Outcome)
	}
	if result.Err.Type != entities.ErrorTypeLookup {
		t.Errorf("error type = %q, want lookup_failed", result.Err.Type)
	}
	if result.Err.ISBN != "9780140328721" {
		t.Errorf("error must carry the identifier, got %q", result.Err.ISBN)
	}
}

func TestResolveRow_CreateFailureClassified(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.failCreate = true
	resolver := NewResolver(catalog, nil)

	result := resolver.ResolveRow(&Candidate{
		Row:          1,
		Book:         entities.Book{OwnerID: 1, Title: "Dune"},
		TitleFromRow: true,
	}, nil)

	if result.Outcome != OutcomeError {
		t.Fatalf("Outcome = %v, want error", result.Outcome)
	}
	if result.Err.Type != entities.ErrorTypeAdd {
		t.Errorf("error type = %q, want add_failed", result.Err.Type)
	}
}

func TestResolveRow_MergeFailureClassified(t *testing.T) {
	catalog := newFakeCatalog()
	if _, err := catalog.CreateBook(&entities.Book{OwnerID: 1, Title: "Dune"}); err != nil {
		t.Fatal(err)
	}
	catalog.failUpdate = true
	resolver := NewResolver(catalog, nil)

	result := resolver.ResolveRow(&Candidate{
		Row:          2,
		Book:         entities.Book{OwnerID: 1, Title: "Dune", Publisher: "Chilton Books"},
		TitleFromRow: true,
	}, nil)

	if result.Outcome != OutcomeError {
		t.Fatalf("Outcome = %v, want error", result.Outcome)
	}
	if result.Err.Type != entities.ErrorTypeMerge {
		t.Errorf("error type = %q, want duplicate_merge_failed", result.Err.Type)
	}
}
