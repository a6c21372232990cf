package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kbukum/outbound/cache"
)

// EntryStore is a cache.Store backed by the outbound_cache_entries table.
type EntryStore struct {
	db *DB
}

var _ cache.Store = (*EntryStore)(nil)

// NewEntryStore creates a store on an open, migrated DB.
func NewEntryStore(db *DB) *EntryStore {
	return &EntryStore{db: db}
}

func (s *EntryStore) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var m cacheEntryModel
	err := s.db.WithContext(ctx).Where("cache_key = ?", key).Take(&m).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("get cache entry: %w", err)
	}
	return toEntry(m), true, nil
}

func (s *EntryStore) Put(ctx context.Context, e cache.Entry) error {
	m := fromEntry(e)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (s *EntryStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&cacheEntryModel{}).Error; err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (s *EntryStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&cacheEntryModel{}).Error
	if err != nil {
		return fmt.Errorf("clear cache entries: %w", err)
	}
	return nil
}

func (s *EntryStore) ScanAll(ctx context.Context) ([]cache.Entry, error) {
	var models []cacheEntryModel
	if err := s.db.WithContext(ctx).Order("stored_at").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("scan cache entries: %w", err)
	}
	out := make([]cache.Entry, len(models))
	for i, m := range models {
		out[i] = toEntry(m)
	}
	return out, nil
}

func toEntry(m cacheEntryModel) cache.Entry {
	return cache.Entry{
		Key:       m.Key,
		Value:     m.Value,
		StoredAt:  m.StoredAt,
		TTL:       time.Duration(m.TTLNanos),
		Endpoint:  m.Endpoint,
		SizeBytes: m.SizeBytes,
	}
}

func fromEntry(e cache.Entry) cacheEntryModel {
	return cacheEntryModel{
		Key:       e.Key,
		Value:     e.Value,
		Endpoint:  e.Endpoint,
		StoredAt:  e.StoredAt,
		TTLNanos:  int64(e.TTL),
		SizeBytes: e.SizeBytes,
	}
}
