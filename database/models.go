package database

import "time"

type cacheEntryModel struct {
	Key       string    `gorm:"column:cache_key;primaryKey;size:2048"`
	Value     []byte    `gorm:"column:value"`
	Endpoint  string    `gorm:"column:endpoint;index;size:128"`
	StoredAt  time.Time `gorm:"column:stored_at;index"`
	TTLNanos  int64     `gorm:"column:ttl_nanos"`
	SizeBytes int       `gorm:"column:size_bytes"`
}

func (cacheEntryModel) TableName() string { return "outbound_cache_entries" }

type callRecordModel struct {
	ID            string    `gorm:"column:id;primaryKey;size:36"`
	Endpoint      string    `gorm:"column:endpoint;size:128;index:idx_call_records_endpoint_ts,priority:1"`
	Timestamp     time.Time `gorm:"column:timestamp;index:idx_call_records_endpoint_ts,priority:2"`
	Method        string    `gorm:"column:method;size:16"`
	URL           string    `gorm:"column:url"`
	DurationNanos int64     `gorm:"column:duration_nanos"`
	StatusCode    int       `gorm:"column:status_code"`
	Success       bool      `gorm:"column:success"`
	ErrorKind     string    `gorm:"column:error_kind;size:32"`
	Cached        bool      `gorm:"column:cached"`
	RetryCount    int       `gorm:"column:retry_count"`
	SessionID     string    `gorm:"column:session_id;size:36"`
}

func (callRecordModel) TableName() string { return "outbound_call_records" }
