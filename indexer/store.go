// Package indexer archives invocation outcomes and their events in SQLite so
// clients can page through history without replaying state.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"epochvault/core/types"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

var ErrNotFound = errors.New("indexer: record not found")

// Entry is the archive input for one invocation.
type Entry struct {
	Digest string
	Method string
	OK     bool
	Code   string
	Error  string
	Events []*types.Event
}

// Filter narrows ListEvents. Account matches any attribute value.
type Filter struct {
	Type    string
	Account string
	AfterID uint64
	Limit   int
}

// Event is an archived event with its position in the stream.
type Event struct {
	ID         uint64            `json:"id"`
	Digest     string            `json:"digest"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (creating when needed) the SQLite archive at dsn.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: nil db")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Record stores an invocation and its events in one transaction. Recording
// the same digest twice is a no-op.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if s == nil {
		return nil
	}
	digest := strings.TrimSpace(entry.Digest)
	if digest == "" {
		return fmt.Errorf("indexer: digest required")
	}
	now := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&InvocationRecord{}).Where("digest = ?", digest).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		record := InvocationRecord{
			Digest:    digest,
			Method:    entry.Method,
			OK:        entry.OK,
			Code:      entry.Code,
			Error:     entry.Error,
			CreatedAt: now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		for i, evt := range entry.Events {
			if evt == nil {
				continue
			}
			attrs, err := json.Marshal(evt.Attributes)
			if err != nil {
				return err
			}
			row := EventRecord{Digest: digest, Position: i, Type: evt.Type, Attributes: string(attrs), CreatedAt: now}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Invocation returns the archived invocation with its events.
func (s *Store) Invocation(ctx context.Context, digest string) (*InvocationRecord, error) {
	var record InvocationRecord
	err := s.db.WithContext(ctx).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&record, "digest = ?", strings.TrimSpace(digest)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListEvents pages through archived events in emission order.
func (s *Store) ListEvents(ctx context.Context, filter Filter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query := s.db.WithContext(ctx).Model(&EventRecord{}).Where("id > ?", filter.AfterID)
	if typ := strings.TrimSpace(filter.Type); typ != "" {
		query = query.Where("type = ?", typ)
	}
	if account := strings.TrimSpace(filter.Account); account != "" {
		query = query.Where("attributes LIKE ?", "%\""+account+"\"%")
	}
	var rows []EventRecord
	if err := query.Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		attrs := map[string]string{}
		if err := json.Unmarshal([]byte(row.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("indexer: decode event %d: %w", row.ID, err)
		}
		out = append(out, Event{ID: row.ID, Digest: row.Digest, Type: row.Type, Attributes: attrs, CreatedAt: row.CreatedAt})
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
