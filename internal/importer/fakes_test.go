package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jwhitley/stacks/internal/database/books"
	"github.com/jwhitley/stacks/internal/entities"
	"github.com/jwhitley/stacks/internal/metadata"
)

// fakeCatalog is an in-memory Catalog with the repository's duplicate
// semantics, enough for pipeline tests to run without a database.
type fakeCatalog struct {
	mu      sync.Mutex
	nextID  uint
	books   map[uint]*entities.Book
	defs    map[string]*entities.CustomFieldDef
	values  map[string]string // "owner/book/field" -> value
	entries []entities.ReadingLogEntry

	failCreate bool
	failUpdate bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		books:  map[uint]*entities.Book{},
		defs:   map[string]*entities.CustomFieldDef{},
		values: map[string]string{},
	}
}

func (f *fakeCatalog) GetBookByID(id uint) (*entities.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	book, ok := f.books[id]
	if !ok {
		return nil, fmt.Errorf("book %d not found", id)
	}
	copied := *book
	return &copied, nil
}

func (f *fakeCatalog) FindByISBN(ownerID uint, isbn string) (*entities.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findByISBNLocked(ownerID, isbn), nil
}

func (f *fakeCatalog) findByISBNLocked(ownerID uint, isbn string) *entities.Book {
	forms := metadata.Forms(metadata.NormalizeISBN(isbn))
	for _, book := range f.books {
		if book.OwnerID != ownerID {
			continue
		}
		for _, form := range forms {
			if book.ISBN10 == form || book.ISBN13 == form {
				copied := *book
				return &copied
			}
		}
	}
	return nil
}

func (f *fakeCatalog) FindByTitle(ownerID uint, title string) (*entities.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, book := range f.books {
		if book.OwnerID == ownerID && strings.EqualFold(book.Title, title) {
			copied := *book
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) CreateBook(book *entities.Book) (books.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate {
		return books.CreateResult{}, fmt.Errorf("catalog write refused")
	}

	for _, isbn := range []string{book.ISBN13, book.ISBN10} {
		if isbn == "" {
			continue
		}
		if existing := f.findByISBNLocked(book.OwnerID, isbn); existing != nil {
			return books.CreateResult{Created: false, ExistingID: existing.ID}, nil
		}
	}
	for _, existing := range f.books {
		if existing.OwnerID == book.OwnerID &&
			strings.EqualFold(existing.Title, book.Title) &&
			strings.EqualFold(existing.Author, book.Author) {
			return books.CreateResult{Created: false, ExistingID: existing.ID}, nil
		}
	}

	f.nextID++
	book.ID = f.nextID
	copied := *book
	f.books[book.ID] = &copied
	return books.CreateResult{Created: true, ID: book.ID}, nil
}

func (f *fakeCatalog) UpdateBook(id uint, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failUpdate {
		return fmt.Errorf("catalog write refused")
	}
	book, ok := f.books[id]
	if !ok {
		return fmt.Errorf("book %d not found", id)
	}
	for column, value := range patch {
		switch column {
		case "author":
			book.Author = value.(string)
		case "isbn10":
			book.ISBN10 = value.(string)
		case "isbn13":
			book.ISBN13 = value.(string)
		case "publisher":
			book.Publisher = value.(string)
		case "publication_year":
			book.PublicationYear = value.(int)
		case "page_count":
			book.PageCount = value.(int)
		case "description":
			book.Description = value.(string)
		case "cover_url":
			book.CoverURL = value.(string)
		case "rating":
			book.Rating = value.(float64)
		case "review":
			book.Review = value.(string)
		case "reading_status":
			book.ReadingStatus = value.(entities.ReadingStatus)
		}
	}
	return nil
}

func (f *fakeCatalog) Search(query string, ownerID uint, limit int) ([]entities.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.Book
	for _, book := range f.books {
		if book.OwnerID != ownerID {
			continue
		}
		if strings.Contains(strings.ToLower(book.Title), strings.ToLower(query)) ||
			strings.Contains(strings.ToLower(book.Author), strings.ToLower(query)) {
			out = append(out, *book)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeCatalog) EnsureFieldDef(ownerID uint, name string, scope entities.FieldScope) (*entities.CustomFieldDef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	defOwner := ownerID
	if scope == entities.FieldScopeGlobal {
		defOwner = 0
	}
	key := fmt.Sprintf("%d/%s/%s", defOwner, scope, name)
	if def, ok := f.defs[key]; ok {
		return def, nil
	}
	f.nextID++
	def := &entities.CustomFieldDef{ID: f.nextID, OwnerID: defOwner, Name: name, Scope: scope}
	f.defs[key] = def
	return def, nil
}

func (f *fakeCatalog) SetFieldValue(ownerID, bookID, fieldID uint, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[valueKey(ownerID, bookID, fieldID)] = value
	return nil
}

func (f *fakeCatalog) UnionFieldValue(ownerID, bookID, fieldID uint, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := valueKey(ownerID, bookID, fieldID)
	existing, ok := f.values[key]
	if !ok {
		f.values[key] = value
		return nil
	}

	seen := map[string]bool{}
	var parts []string
	for _, raw := range append(strings.Split(existing, ","), strings.Split(value, ",")...) {
		p := strings.TrimSpace(raw)
		if p == "" || seen[strings.ToLower(p)] {
			continue
		}
		seen[strings.ToLower(p)] = true
		parts = append(parts, p)
	}
	f.values[key] = strings.Join(parts, ", ")
	return nil
}

func (f *fakeCatalog) EnsureUnassignedBook(ownerID uint) (*entities.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, book := range f.books {
		if book.OwnerID == ownerID && book.ExternalID == entities.UnassignedExternalID {
			copied := *book
			return &copied, nil
		}
	}
	f.nextID++
	book := &entities.Book{
		ID:         f.nextID,
		OwnerID:    ownerID,
		Title:      "Unassigned Reading",
		ExternalID: entities.UnassignedExternalID,
	}
	f.books[book.ID] = book
	copied := *book
	return &copied, nil
}

func (f *fakeCatalog) CreateLogEntry(entry *entities.ReadingLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	entry.ID = f.nextID
	f.entries = append(f.entries, *entry)
	return nil
}

func valueKey(ownerID, bookID, fieldID uint) string {
	return fmt.Sprintf("%d/%d/%d", ownerID, bookID, fieldID)
}

// fakeProvider serves canned metadata records keyed by normalized ISBN.
type fakeProvider struct {
	mu      sync.Mutex
	records map[string]*metadata.Record
	calls   int
}

func (p *fakeProvider) LookupByISBN(_ context.Context, isbn string) (*metadata.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	record, ok := p.records[isbn]
	if !ok {
		return nil, fmt.Errorf("no record for %s", isbn)
	}
	return record, nil
}

func (p *fakeProvider) SearchByTitle(_ context.Context, _ string, _ int) ([]metadata.Record, error) {
	return nil, nil
}
