package entities

import "time"

// ReadingLogEntry is one date plus a duration, tied to exactly one book.
// After defaulting, at least one of Pages/Minutes is greater than zero.
type ReadingLogEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OwnerID   uint      `gorm:"index" json:"owner_id"`
	BookID    uint      `gorm:"index" json:"book_id"`
	Date      time.Time `gorm:"index" json:"date"`
	Pages     int       `json:"pages,omitempty"`
	Minutes   int       `json:"minutes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (ReadingLogEntry) TableName() string {
	return "reading_log_entries"
}
