package indexer

import (
	"time"

	"gorm.io/gorm"
)

// InvocationRecord is one committed or rejected invocation.
type InvocationRecord struct {
	Digest    string        `gorm:"size:66;primaryKey"`
	Method    string        `gorm:"size:64;index"`
	OK        bool          `gorm:"index"`
	Code      string        `gorm:"size:32"`
	Error     string        `gorm:"type:text"`
	Events    []EventRecord `gorm:"foreignKey:Digest;references:Digest"`
	CreatedAt time.Time
}

// EventRecord is one event emitted by a committed invocation.
type EventRecord struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Digest     string `gorm:"size:66;index"`
	Position   int
	Type       string `gorm:"size:64;index"`
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

// AutoMigrate performs all schema migrations for the archive.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&InvocationRecord{}, &EventRecord{})
}
