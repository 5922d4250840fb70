package entities

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ReadingStatus string

const (
	ReadingStatusToRead    ReadingStatus = "to_read"
	ReadingStatusReading   ReadingStatus = "reading"
	ReadingStatusRead      ReadingStatus = "read"
	ReadingStatusAbandoned ReadingStatus = "abandoned"
)

// UnassignedExternalID marks the per-owner placeholder book that collects
// reading-history entries with no identifiable book name.
const UnassignedExternalID = "stacks:unassigned"

type Book struct {
	ID              uint                        `gorm:"primaryKey" json:"id"`
	OwnerID         uint                        `gorm:"index" json:"owner_id"`
	Title           string                      `gorm:"index;size:512" json:"title"`
	Author          string                      `gorm:"index;size:256" json:"author,omitempty"`
	ISBN10          string                      `gorm:"index;size:10" json:"isbn10,omitempty"`
	ISBN13          string                      `gorm:"index;size:13" json:"isbn13,omitempty"`
	Publisher       string                      `gorm:"size:256" json:"publisher,omitempty"`
	PublicationYear int                         `json:"publication_year,omitempty"`
	PageCount       int                         `json:"page_count,omitempty"`
	Description     string                      `gorm:"type:text" json:"description,omitempty"`
	Categories      datatypes.JSONSlice[string] `json:"categories,omitempty"`
	CoverURL        string                      `gorm:"size:2048" json:"cover_url,omitempty"`
	Rating          float64                     `json:"rating,omitempty"`
	Review          string                      `gorm:"type:text" json:"review,omitempty"`
	ReadingStatus   ReadingStatus               `gorm:"size:20" json:"reading_status,omitempty"`
	DateRead        *time.Time                  `json:"date_read,omitempty"`
	DateAdded       *time.Time                  `json:"date_added,omitempty"`
	ExternalID      string                      `gorm:"index;size:256" json:"external_id,omitempty"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
	DeletedAt       gorm.DeletedAt              `gorm:"index" json:"deleted_at,omitempty"`
}

type FieldScope string

const (
	FieldScopeGlobal   FieldScope = "global"   // shared catalog-wide
	FieldScopePersonal FieldScope = "personal" // private to one owner's relationship with a book
)

// CustomFieldDef defines a custom metadata field. Global definitions are shared
// (OwnerID is zero); personal definitions belong to one owner.
type CustomFieldDef struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	OwnerID   uint       `gorm:"index" json:"owner_id,omitempty"`
	Name      string     `gorm:"index;size:100" json:"name"`
	Scope     FieldScope `gorm:"size:10" json:"scope"`
	CreatedAt time.Time  `json:"created_at"`
}

type CustomFieldValue struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FieldID   uint      `gorm:"index" json:"field_id"`
	BookID    uint      `gorm:"index" json:"book_id"`
	OwnerID   uint      `gorm:"index" json:"owner_id"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
