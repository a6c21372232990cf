package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Tier names the cache level that served a hit.
type Tier string

const (
	TierNone    Tier = ""
	TierMemory  Tier = "memory"
	TierDurable Tier = "durable"
)

// Entry is one cached value.
type Entry struct {
	Key       string        `json:"key"`
	Value     []byte        `json:"value"`
	StoredAt  time.Time     `json:"stored_at"`
	TTL       time.Duration `json:"ttl"`
	Endpoint  string        `json:"endpoint"`
	SizeBytes int           `json:"size_bytes"`
}

// ExpiresAt returns the instant after which the entry is stale.
func (e Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Expired reports whether now − StoredAt > TTL.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// Remaining returns the TTL left at now, never negative.
func (e Entry) Remaining(now time.Time) time.Duration {
	left := e.TTL - now.Sub(e.StoredAt)
	if left < 0 {
		return 0
	}
	return left
}

// NewEntry builds an entry stored at now, sized from key and value.
func NewEntry(key string, value []byte, endpoint string, ttl time.Duration, now time.Time) Entry {
	return Entry{
		Key:       key,
		Value:     value,
		StoredAt:  now,
		TTL:       ttl,
		Endpoint:  endpoint,
		SizeBytes: len(key) + len(value),
	}
}

// Key derives the cache key of a request. Requests without a body key on
// method and URL alone; a body adds a digest so large payloads do not
// bloat the key.
func Key(method, url string, body []byte) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(' ')
	b.WriteString(url)
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		b.WriteString(" #")
		b.WriteString(hex.EncodeToString(sum[:12]))
	}
	return b.String()
}
