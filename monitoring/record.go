package monitoring

import (
	"context"
	"time"

	"github.com/kbukum/outbound/errors"
)

// Record is one completed orchestrator call. Records are immutable once
// handed to the Engine.
type Record struct {
	ID         string        `json:"id"`
	Endpoint   string        `json:"endpoint"`
	Method     string        `json:"method"`
	URL        string        `json:"url"`
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration"`
	StatusCode int           `json:"status_code,omitempty"`
	Success    bool          `json:"success"`
	ErrorKind  errors.Kind   `json:"error_kind,omitempty"`
	Cached     bool          `json:"cached"`
	RetryCount int           `json:"retry_count"`
	SessionID  string        `json:"session_id"`
}

// RecordSink persists sampled records.
type RecordSink interface {
	SaveRecords(ctx context.Context, records []Record) error
}

// RecordPruner is implemented by sinks that can drop old history.
type RecordPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// ring is a fixed-capacity buffer that overwrites its oldest record.
type ring struct {
	buf   []Record
	start int
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Record, capacity)}
}

func (r *ring) push(rec Record) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = rec
		r.n++
		return
	}
	r.buf[r.start] = rec
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) len() int { return r.n }

// each visits records oldest first until fn returns false.
func (r *ring) each(fn func(Record) bool) {
	for i := 0; i < r.n; i++ {
		if !fn(r.buf[(r.start+i)%len(r.buf)]) {
			return
		}
	}
}

func (r *ring) snapshot() []Record {
	out := make([]Record, 0, r.n)
	r.each(func(rec Record) bool {
		out = append(out, rec)
		return true
	})
	return out
}

// retain keeps only records for which keep returns true.
func (r *ring) retain(keep func(Record) bool) {
	kept := make([]Record, 0, r.n)
	r.each(func(rec Record) bool {
		if keep(rec) {
			kept = append(kept, rec)
		}
		return true
	})
	clear(r.buf)
	copy(r.buf, kept)
	r.start = 0
	r.n = len(kept)
}
