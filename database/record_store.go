package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/kbukum/outbound/errors"
	"github.com/kbukum/outbound/monitoring"
)

const recordBatchSize = 100

// RecordStore persists sampled call records.
type RecordStore struct {
	db *DB
}

var (
	_ monitoring.RecordSink   = (*RecordStore)(nil)
	_ monitoring.RecordPruner = (*RecordStore)(nil)
)

// NewRecordStore creates a store on an open, migrated DB.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// SaveRecords inserts records, ignoring ids already stored.
func (s *RecordStore) SaveRecords(ctx context.Context, records []monitoring.Record) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]callRecordModel, len(records))
	for i, r := range records {
		models[i] = fromRecord(r)
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(models, recordBatchSize).Error
	if err != nil {
		return fmt.Errorf("save call records: %w", err)
	}
	return nil
}

// Recent returns up to limit records for endpoint newer than since, newest
// first. An empty endpoint matches all.
func (s *RecordStore) Recent(ctx context.Context, endpoint string, since time.Time, limit int) ([]monitoring.Record, error) {
	q := s.db.WithContext(ctx).Where("timestamp >= ?", since)
	if endpoint != "" {
		q = q.Where("endpoint = ?", endpoint)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []callRecordModel
	if err := q.Order("timestamp DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("query call records: %w", err)
	}
	out := make([]monitoring.Record, len(models))
	for i, m := range models {
		out[i] = toRecord(m)
	}
	return out, nil
}

// Prune deletes records older than before.
func (s *RecordStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", before).Delete(&callRecordModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune call records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func fromRecord(r monitoring.Record) callRecordModel {
	return callRecordModel{
		ID:            r.ID,
		Endpoint:      r.Endpoint,
		Timestamp:     r.Timestamp,
		Method:        r.Method,
		URL:           r.URL,
		DurationNanos: int64(r.Duration),
		StatusCode:    r.StatusCode,
		Success:       r.Success,
		ErrorKind:     string(r.ErrorKind),
		Cached:        r.Cached,
		RetryCount:    r.RetryCount,
		SessionID:     r.SessionID,
	}
}

func toRecord(m callRecordModel) monitoring.Record {
	return monitoring.Record{
		ID:         m.ID,
		Endpoint:   m.Endpoint,
		Method:     m.Method,
		URL:        m.URL,
		Timestamp:  m.Timestamp,
		Duration:   time.Duration(m.DurationNanos),
		StatusCode: m.StatusCode,
		Success:    m.Success,
		ErrorKind:  errors.Kind(m.ErrorKind),
		Cached:     m.Cached,
		RetryCount: m.RetryCount,
		SessionID:  m.SessionID,
	}
}
