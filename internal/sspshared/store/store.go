// Package store implements the fixed nine-segment stable key/value
// abstraction every ssp-backend service reads and writes through: each
// segment is an independently ordered byte-key space, backed by a
// single relational table so the whole state set survives a process
// restart without a bespoke serialization format per segment.
package store

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"gorm.io/gorm"

	"sspbackend/internal/sspshared/apperr"
)

// segmentRow is the single physical table backing every logical
// segment: composite-keyed by (segment, key), ordered by key within a
// segment for range scans.
type segmentRow struct {
	Segment int    `gorm:"primaryKey;column:segment"`
	Key     []byte `gorm:"primaryKey;column:key"`
	Value   []byte `gorm:"column:value"`
}

func (segmentRow) TableName() string {
	return "ssp_store_entries"
}

// Store is the ordered key/value contract services depend on. Segment
// ids are the fixed constants in package magic; callers never choose
// their own numbering.
type Store interface {
	Get(ctx context.Context, segment int, key []byte) ([]byte, bool, error)
	Put(ctx context.Context, segment int, key []byte, value []byte) error
	Delete(ctx context.Context, segment int, key []byte) error
	// Range returns every (key, value) pair in [start, end] within
	// segment, in ascending key order. A nil start or end means
	// unbounded on that side.
	Range(ctx context.Context, segment int, start []byte, end []byte) ([]Entry, error)
}

// Entry is one key/value pair returned from a range scan.
type Entry struct {
	Key   []byte
	Value []byte
}

// GormStore is the Store implementation backed by *gorm.DB (SQLite in
// development and tests, Postgres in production), matching the rest of
// ssp-backend's persistence layer.
type GormStore struct {
	db *gorm.DB
	mu sync.Mutex
}

// NewGormStore wraps db. Callers are expected to have already run the
// schema migrations that create ssp_store_entries.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the ssp_store_entries table. Kept
// separate from migrate-based schema management so tests can stand up
// an ephemeral SQLite store without running the full migration chain.
func (s *GormStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&segmentRow{}); err != nil {
		return apperr.Wrap(apperr.KindTransient, "failed to migrate store schema", err)
	}

	return nil
}

func (s *GormStore) Get(ctx context.Context, segment int, key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row segmentRow

	err := s.db.WithContext(ctx).
		Where("segment = ? AND key = ?", segment, key).
		Take(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}

		return nil, false, apperr.Wrap(apperr.KindTransient, "failed to read store entry", err)
	}

	return row.Value, true, nil
}

func (s *GormStore) Put(ctx context.Context, segment int, key []byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := segmentRow{Segment: segment, Key: key, Value: value}

	err := s.db.WithContext(ctx).
		Where("segment = ? AND key = ?", segment, key).
		Assign(segmentRow{Value: value}).
		FirstOrCreate(&row).Error
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "failed to write store entry", err)
	}

	return nil
}

func (s *GormStore) Delete(ctx context.Context, segment int, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).
		Where("segment = ? AND key = ?", segment, key).
		Delete(&segmentRow{}).Error
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "failed to delete store entry", err)
	}

	return nil
}

func (s *GormStore) Range(ctx context.Context, segment int, start []byte, end []byte) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []segmentRow

	q := s.db.WithContext(ctx).Where("segment = ?", segment)
	if start != nil {
		q = q.Where("key >= ?", start)
	}

	if end != nil {
		q = q.Where("key <= ?", end)
	}

	if err := q.Find(&rows).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to range-scan store segment", err)
	}

	// Not every SQL backend's BLOB/bytea collation sorts identically to a
	// plain byte-wise comparison; sort here so callers get one
	// unambiguous ordering regardless of driver.
	sort.Slice(rows, func(i, j int) bool { return bytes.Compare(rows[i].Key, rows[j].Key) < 0 })

	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{Key: r.Key, Value: r.Value}
	}

	return out, nil
}
