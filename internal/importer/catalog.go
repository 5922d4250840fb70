package importer

import (
	"github.com/jwhitley/stacks/internal/database/books"
	"github.com/jwhitley/stacks/internal/entities"
)

// Catalog is the narrow contract the pipeline holds against the catalog
// engine. The books repository implements it; tests substitute a fake.
type Catalog interface {
	GetBookByID(id uint) (*entities.Book, error)
	FindByISBN(ownerID uint, isbn string) (*entities.Book, error)
	FindByTitle(ownerID uint, title string) (*entities.Book, error)
	CreateBook(book *entities.Book) (books.CreateResult, error)
	UpdateBook(id uint, patch map[string]any) error
	Search(query string, ownerID uint, limit int) ([]entities.Book, error)
	EnsureFieldDef(ownerID uint, name string, scope entities.FieldScope) (*entities.CustomFieldDef, error)
	SetFieldValue(ownerID, bookID, fieldID uint, value string) error
	UnionFieldValue(ownerID, bookID, fieldID uint, value string) error
	EnsureUnassignedBook(ownerID uint) (*entities.Book, error)
	CreateLogEntry(entry *entities.ReadingLogEntry) error
}

// Compile-time check that the repository satisfies the pipeline contract.
var _ Catalog = (*books.Repository)(nil)
