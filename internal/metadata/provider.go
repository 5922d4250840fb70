package metadata

import "context"

// Record is a normalized enrichment result for one edition.
type Record struct {
	Title           string   `json:"title,omitempty"`
	Author          string   `json:"author,omitempty"`
	ISBN10          string   `json:"isbn10,omitempty"`
	ISBN13          string   `json:"isbn13,omitempty"`
	Publisher       string   `json:"publisher,omitempty"`
	PublicationYear int      `json:"publication_year,omitempty"`
	PageCount       int      `json:"page_count,omitempty"`
	Description     string   `json:"description,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	CoverURL        string   `json:"cover_url,omitempty"`
	OpenLibraryKey  string   `json:"open_library_key,omitempty"`
}

// Usable reports whether the record carries enough data to act on.
// A record without a title cannot seed a catalog entry.
func (r *Record) Usable() bool {
	return r != nil && r.Title != ""
}

// ISBNs returns the identifier forms the provider reported for this edition.
func (r *Record) ISBNs() []string {
	var out []string
	if r.ISBN10 != "" {
		out = append(out, r.ISBN10)
	}
	if r.ISBN13 != "" {
		out = append(out, r.ISBN13)
	}
	return out
}

// Provider fetches bibliographic metadata from an external source.
// Provider-specific faults never propagate past "absent": callers treat any
// error as a missing record.
type Provider interface {
	LookupByISBN(ctx context.Context, isbn string) (*Record, error)
	SearchByTitle(ctx context.Context, title string, max int) ([]Record, error)
}
