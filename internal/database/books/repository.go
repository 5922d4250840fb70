// Package books provides database operations for the book catalog.
//
// The import pipeline only talks to this package through the narrow
// find/create/update/search contract; duplicate detection is signalled via an
// explicit CreateResult rather than an error.
//
// # Usage
//
//	repo := books.NewRepository(db)
//	result, err := repo.CreateBook(candidate)
package books

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/jwhitley/stacks/internal/entities"
	"github.com/jwhitley/stacks/internal/metadata"
)

// Repository handles all catalog database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new catalog repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateResult reports the outcome of a create attempt. Created is false when
// the catalog already holds a matching entry; ExistingID then names it.
type CreateResult struct {
	Created    bool
	ID         uint
	ExistingID uint
}

// GetBookByID retrieves a book by its ID.
func (r *Repository) GetBookByID(id uint) (*entities.Book, error) {
	var book entities.Book
	err := r.db.First(&book, id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// FindByISBN retrieves the owner's book matching any form of the identifier.
// Returns nil when no match exists.
func (r *Repository) FindByISBN(ownerID uint, isbn string) (*entities.Book, error) {
	forms := metadata.Forms(metadata.NormalizeISBN(isbn))
	if len(forms) == 0 {
		return nil, nil
	}

	var book entities.Book
	err := r.db.
		Where("owner_id = ?", ownerID).
		Where("isbn10 IN ? OR isbn13 IN ?", forms, forms).
		First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// FindByTitle retrieves the owner's book by exact case-insensitive title.
// Returns nil when no match exists.
func (r *Repository) FindByTitle(ownerID uint, title string) (*entities.Book, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}

	var book entities.Book
	err := r.db.
		Where("owner_id = ? AND LOWER(title) = LOWER(?)", ownerID, title).
		First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// FindByTitleAuthor retrieves the owner's book by exact case-insensitive
// title and author. Returns nil when no match exists.
func (r *Repository) FindByTitleAuthor(ownerID uint, title, author string) (*entities.Book, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}

	var book entities.Book
	err := r.db.
		Where("owner_id = ? AND LOWER(title) = LOWER(?) AND LOWER(author) = LOWER(?)", ownerID, title, strings.TrimSpace(author)).
		First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// CreateBook inserts the candidate unless the owner's catalog already holds a
// matching entry, checked by identifier first and title+author second.
func (r *Repository) CreateBook(book *entities.Book) (CreateResult, error) {
	for _, isbn := range []string{book.ISBN13, book.ISBN10} {
		if isbn == "" {
			continue
		}
		existing, err := r.FindByISBN(book.OwnerID, isbn)
		if err != nil {
			return CreateResult{}, fmt.Errorf("duplicate check by isbn: %w", err)
		}
		if existing != nil {
			return CreateResult{Created: false, ExistingID: existing.ID}, nil
		}
	}

	if book.Title != "" {
		existing, err := r.FindByTitleAuthor(book.OwnerID, book.Title, book.Author)
		if err != nil {
			return CreateResult{}, fmt.Errorf("duplicate check by title: %w", err)
		}
		if existing != nil {
			return CreateResult{Created: false, ExistingID: existing.ID}, nil
		}
	}

	if err := r.db.Create(book).Error; err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Created: true, ID: book.ID}, nil
}

// UpdateBook applies a partial update to one book.
func (r *Repository) UpdateBook(id uint, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	return r.db.Model(&entities.Book{}).Where("id = ?", id).Updates(patch).Error
}

// Search finds the owner's books by partial title or author match.
func (r *Repository) Search(query string, ownerID uint, limit int) ([]entities.Book, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.TrimSpace(query) + "%"

	var books []entities.Book
	err := r.db.
		Where("owner_id = ?", ownerID).
		Where("LOWER(title) LIKE LOWER(?) OR LOWER(author) LIKE LOWER(?)", pattern, pattern).
		Limit(limit).
		Find(&books).Error
	return books, err
}

// EnsureFieldDef finds or creates a custom field definition. Global fields
// are shared across owners; personal fields belong to the requesting owner.
func (r *Repository) EnsureFieldDef(ownerID uint, name string, scope entities.FieldScope) (*entities.CustomFieldDef, error) {
	defOwner := ownerID
	if scope == entities.FieldScopeGlobal {
		defOwner = 0
	}

	var def entities.CustomFieldDef
	err := r.db.
		Where("owner_id = ? AND name = ? AND scope = ?", defOwner, name, scope).
		FirstOrCreate(&def, entities.CustomFieldDef{OwnerID: defOwner, Name: name, Scope: scope}).Error
	if err != nil {
		return nil, fmt.Errorf("ensure field definition %q: %w", name, err)
	}
	return &def, nil
}

// SetFieldValue upserts one custom field value for a book.
func (r *Repository) SetFieldValue(ownerID, bookID, fieldID uint, value string) error {
	var existing entities.CustomFieldValue
	err := r.db.
		Where("owner_id = ? AND book_id = ? AND field_id = ?", ownerID, bookID, fieldID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(&entities.CustomFieldValue{
			OwnerID: ownerID,
			BookID:  bookID,
			FieldID: fieldID,
			Value:   value,
		}).Error
	}
	if err != nil {
		return err
	}
	existing.Value = value
	return r.db.Save(&existing).Error
}

// UnionFieldValue merges a comma-separated value into the existing one,
// keeping distinct entries in first-seen order. Used by duplicate merges.
func (r *Repository) UnionFieldValue(ownerID, bookID, fieldID uint, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	var existing entities.CustomFieldValue
	err := r.db.
		Where("owner_id = ? AND book_id = ? AND field_id = ?", ownerID, bookID, fieldID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.SetFieldValue(ownerID, bookID, fieldID, value)
	}
	if err != nil {
		return err
	}

	existing.Value = unionCSV(existing.Value, value)
	return r.db.Save(&existing).Error
}

// GetFieldValues returns the owner's custom field values for one book,
// keyed by field definition ID.
func (r *Repository) GetFieldValues(ownerID, bookID uint) (map[uint]string, error) {
	var values []entities.CustomFieldValue
	err := r.db.Where("owner_id = ? AND book_id = ?", ownerID, bookID).Find(&values).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]string, len(values))
	for _, v := range values {
		out[v.FieldID] = v.Value
	}
	return out, nil
}

// EnsureUnassignedBook finds or creates the owner's placeholder book that
// collects bookless reading-history entries.
func (r *Repository) EnsureUnassignedBook(ownerID uint) (*entities.Book, error) {
	var book entities.Book
	err := r.db.
		Where("owner_id = ? AND external_id = ?", ownerID, entities.UnassignedExternalID).
		FirstOrCreate(&book, entities.Book{
			OwnerID:    ownerID,
			Title:      "Unassigned Reading",
			ExternalID: entities.UnassignedExternalID,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("ensure unassigned book: %w", err)
	}
	return &book, nil
}

// CreateLogEntry inserts one reading log entry.
func (r *Repository) CreateLogEntry(entry *entities.ReadingLogEntry) error {
	return r.db.Create(entry).Error
}

func unionCSV(existing, incoming string) string {
	seen := map[string]bool{}
	var parts []string
	for _, raw := range append(strings.Split(existing, ","), strings.Split(incoming, ",")...) {
		p := strings.TrimSpace(raw)
		if p == "" || seen[strings.ToLower(p)] {
			continue
		}
		seen[strings.ToLower(p)] = true
		parts = append(parts, p)
	}
	return strings.Join(parts, ", ")
}
