package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kbukum/outbound/logger"
	"github.com/kbukum/outbound/validation"
)

const (
	DefaultMaxSizeBytes     int64 = 50 << 20
	DefaultMaxEntries             = 10000
	DefaultDurableTTL             = 24 * time.Hour
	DefaultCleanupInterval        = time.Hour
	DefaultMaxEntryFraction       = 0.1
)

// DurableConfig bounds the durable tier.
type DurableConfig struct {
	MaxSizeBytes int64 `yaml:"max_size_bytes" mapstructure:"max_size_bytes" validate:"gte=0"`
	MaxEntries   int   `yaml:"max_entries" mapstructure:"max_entries" validate:"gte=0"`
	// DefaultTTL applies to Set calls with ttl <= 0.
	DefaultTTL      time.Duration `yaml:"default_ttl" mapstructure:"default_ttl" validate:"gte=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"gte=0"`
	// MaxEntryFraction is the largest share of MaxSizeBytes a single entry may take.
	MaxEntryFraction float64 `yaml:"max_entry_fraction" mapstructure:"max_entry_fraction" validate:"gte=0,lte=1"`
}

// ApplyDefaults fills zero fields.
func (c *DurableConfig) ApplyDefaults() {
	if c.MaxSizeBytes == 0 {
		c.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = DefaultDurableTTL
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.MaxEntryFraction == 0 {
		c.MaxEntryFraction = DefaultMaxEntryFraction
	}
}

// Validate checks the struct tags.
func (c *DurableConfig) Validate() error {
	return validation.Validate(c)
}

// DurableStats is a snapshot of the durable tier.
type DurableStats struct {
	Entries        int       `json:"entries"`
	TotalSizeBytes int64     `json:"total_size_bytes"`
	MaxEntries     int       `json:"max_entries"`
	MaxSizeBytes   int64     `json:"max_size_bytes"`
	HitRate        float64   `json:"hit_rate"`
	OldestEntry    time.Time `json:"oldest_entry,omitempty"`
	NewestEntry    time.Time `json:"newest_entry,omitempty"`
	Hits           int64     `json:"hits"`
	Misses         int64     `json:"misses"`
	Writes         int64     `json:"writes"`
	Deletes        int64     `json:"deletes"`
	Evictions      int64     `json:"evictions"`
	Rejections     int64     `json:"rejections"`
	Errors         int64     `json:"errors"`
}

type indexEntry struct {
	storedAt time.Time
	ttl      time.Duration
	size     int
	endpoint string
}

func (ie indexEntry) expired(now time.Time) bool {
	return now.Sub(ie.storedAt) > ie.ttl
}

type counters struct {
	hits, misses, writes, deletes, evictions, rejections, errors int64
}

// DurableOption configures a Durable.
type DurableOption func(*Durable)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) DurableOption {
	return func(d *Durable) { d.now = clock }
}

// Durable is the bounded, persistent second tier. It keeps an in-memory
// index of the Store's entries so capacity checks never scan the store.
type Durable struct {
	cfg   DurableConfig
	store Store
	log   *logger.Logger
	now   func() time.Time

	mu        sync.Mutex
	index     map[string]indexEntry
	totalSize int64
	stats     counters

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDurable wraps store, dropping entries that expired while the process
// was down and indexing the rest.
func NewDurable(ctx context.Context, store Store, cfg DurableConfig, log *logger.Logger, opts ...DurableOption) (*Durable, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("durable cache: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	d := &Durable{
		cfg:   cfg,
		store: store,
		log:   log.WithComponent("durable-cache"),
		now:   time.Now,
		index: make(map[string]indexEntry),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	removed, err := d.reloadLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("durable cache: load index: %w", err)
	}
	d.log.Debug("durable cache loaded", logger.Fields("entries", len(d.index), "expired_removed", removed))
	return d, nil
}

// Config returns the effective configuration.
func (d *Durable) Config() DurableConfig { return d.cfg }

// MaxEntrySize is the largest entry the tier accepts.
func (d *Durable) MaxEntrySize() int64 {
	return int64(float64(d.cfg.MaxSizeBytes) * d.cfg.MaxEntryFraction)
}

// Get returns the live entry for key. Expired entries are deleted and
// reported as a miss.
func (d *Durable) Get(ctx context.Context, key string) (Entry, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok, err := d.store.Get(ctx, key)
	if err != nil {
		d.stats.errors++
		return Entry{}, false, fmt.Errorf("durable cache get: %w", err)
	}
	if !ok {
		d.stats.misses++
		d.forgetLocked(key)
		return Entry{}, false, nil
	}
	if e.Expired(d.now()) {
		d.stats.misses++
		d.removeLocked(ctx, key)
		return Entry{}, false, nil
	}

	d.stats.hits++
	if _, indexed := d.index[key]; !indexed {
		d.indexLocked(e)
	}
	return e, true, nil
}

// Set stores value under key for ttl (DefaultTTL when ttl <= 0). It
// returns false without error when the entry is too large to cache.
func (d *Durable) Set(ctx context.Context, key string, value []byte, endpoint string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = d.cfg.DefaultTTL
	}
	return d.put(ctx, NewEntry(key, value, endpoint, ttl, d.now()))
}

func (d *Durable) put(ctx context.Context, e Entry) (bool, error) {
	if e.SizeBytes == 0 {
		e.SizeBytes = len(e.Key) + len(e.Value)
	}
	if int64(e.SizeBytes) > d.MaxEntrySize() {
		d.mu.Lock()
		d.stats.rejections++
		d.mu.Unlock()
		d.log.Debug("entry rejected: too large", logger.Fields(logger.FieldEndpoint, e.Endpoint, "size_bytes", e.SizeBytes, "limit_bytes", d.MaxEntrySize()))
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	old, replacing := d.index[e.Key]
	if replacing {
		d.forgetLocked(e.Key)
	}
	if d.overBudgetLocked(e.SizeBytes) {
		d.evictLocked(ctx, e.SizeBytes)
	}

	if err := d.store.Put(ctx, e); err != nil {
		d.stats.errors++
		if replacing {
			d.index[e.Key] = old
			d.totalSize += int64(old.size)
		}
		return false, fmt.Errorf("durable cache put: %w", err)
	}
	d.indexLocked(e)
	d.stats.writes++
	return true, nil
}

// Delete removes key.
func (d *Durable) Delete(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.Delete(ctx, key); err != nil {
		d.stats.errors++
		return fmt.Errorf("durable cache delete: %w", err)
	}
	d.forgetLocked(key)
	d.stats.deletes++
	return nil
}

// Clear removes every entry.
func (d *Durable) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.Clear(ctx); err != nil {
		d.stats.errors++
		return fmt.Errorf("durable cache clear: %w", err)
	}
	d.index = make(map[string]indexEntry)
	d.totalSize = 0
	return nil
}

// Cleanup deletes every expired entry in the store and resynchronizes the
// index. It returns the number of entries removed.
func (d *Durable) Cleanup(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed, err := d.reloadLocked(ctx)
	if err != nil {
		d.stats.errors++
		return removed, fmt.Errorf("durable cache cleanup: %w", err)
	}
	return removed, nil
}

// Stats returns a snapshot of sizes and counters.
func (d *Durable) Stats() DurableStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := DurableStats{
		Entries:        len(d.index),
		TotalSizeBytes: d.totalSize,
		MaxEntries:     d.cfg.MaxEntries,
		MaxSizeBytes:   d.cfg.MaxSizeBytes,
		Hits:           d.stats.hits,
		Misses:         d.stats.misses,
		Writes:         d.stats.writes,
		Deletes:        d.stats.deletes,
		Evictions:      d.stats.evictions,
		Rejections:     d.stats.rejections,
		Errors:         d.stats.errors,
	}
	if lookups := st.Hits + st.Misses; lookups > 0 {
		st.HitRate = float64(st.Hits) / float64(lookups)
	}
	for _, ie := range d.index {
		if st.OldestEntry.IsZero() || ie.storedAt.Before(st.OldestEntry) {
			st.OldestEntry = ie.storedAt
		}
		if ie.storedAt.After(st.NewestEntry) {
			st.NewestEntry = ie.storedAt
		}
	}
	return st
}

// EntriesByEndpoint counts live entries per endpoint.
func (d *Durable) EntriesByEndpoint() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	out := make(map[string]int)
	for _, ie := range d.index {
		if !ie.expired(now) {
			out[ie.endpoint]++
		}
	}
	return out
}

// Backup returns the live entries, oldest first. A non-empty endpoint
// restricts the result to that endpoint.
func (d *Durable) Backup(ctx context.Context, endpoint string) ([]Entry, error) {
	d.mu.Lock()
	all, err := d.store.ScanAll(ctx)
	now := d.now()
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("durable cache backup: %w", err)
	}

	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.Expired(now) || (endpoint != "" && e.Endpoint != endpoint) {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return a.StoredAt.Compare(b.StoredAt) })
	return out, nil
}

// Restore writes entries back, keeping their original StoredAt and TTL.
// Expired and oversized entries are skipped. It returns how many were
// written.
func (d *Durable) Restore(ctx context.Context, entries []Entry) (int, error) {
	now := d.now()
	restored := 0
	for _, e := range entries {
		if e.Expired(now) {
			continue
		}
		ok, err := d.put(ctx, e)
		if err != nil {
			return restored, fmt.Errorf("durable cache restore: %w", err)
		}
		if ok {
			restored++
		}
	}
	return restored, nil
}

// Start launches the periodic cleanup sweep. It is a no-op if already running.
func (d *Durable) Start(_ context.Context) {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.cleanupLoop(ctx, d.done)
}

// Stop cancels the cleanup sweep and waits for it to exit.
func (d *Durable) Stop() {
	d.loopMu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.loopMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Durable) cleanupLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runCleanup(ctx)
		}
	}
}

// runCleanup never lets a failing sweep take the loop down.
func (d *Durable) runCleanup(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("cleanup sweep panicked", logger.Fields("panic", fmt.Sprint(r)))
		}
	}()
	removed, err := d.Cleanup(ctx)
	if err != nil {
		d.log.WithError(err).Error("cleanup sweep failed")
		return
	}
	if removed > 0 {
		d.log.Info("expired entries removed", logger.Fields("removed", removed))
	}
}

// --- index bookkeeping; callers hold d.mu ---

func (d *Durable) reloadLocked(ctx context.Context) (int, error) {
	all, err := d.store.ScanAll(ctx)
	if err != nil {
		return 0, err
	}
	now := d.now()
	d.index = make(map[string]indexEntry, len(all))
	d.totalSize = 0
	removed := 0
	for _, e := range all {
		if e.Expired(now) {
			if err := d.store.Delete(ctx, e.Key); err != nil {
				d.stats.errors++
				d.log.WithError(err).Warn("failed to delete expired entry")
				continue
			}
			removed++
			continue
		}
		d.indexLocked(e)
	}
	return removed, nil
}

func (d *Durable) indexLocked(e Entry) {
	size := e.SizeBytes
	if size == 0 {
		size = len(e.Key) + len(e.Value)
	}
	if old, ok := d.index[e.Key]; ok {
		d.totalSize -= int64(old.size)
	}
	d.index[e.Key] = indexEntry{storedAt: e.StoredAt, ttl: e.TTL, size: size, endpoint: e.Endpoint}
	d.totalSize += int64(size)
}

func (d *Durable) forgetLocked(key string) {
	if old, ok := d.index[key]; ok {
		d.totalSize -= int64(old.size)
		delete(d.index, key)
	}
}

func (d *Durable) removeLocked(ctx context.Context, key string) bool {
	if err := d.store.Delete(ctx, key); err != nil {
		d.stats.errors++
		d.log.WithError(err).Warn("failed to delete entry", logger.Fields("key", key))
		return false
	}
	d.forgetLocked(key)
	return true
}

func (d *Durable) overBudgetLocked(incoming int) bool {
	return len(d.index)+1 > d.cfg.MaxEntries || d.totalSize+int64(incoming) > d.cfg.MaxSizeBytes
}

// evictLocked makes room for an incoming entry: expired entries go first,
// then the oldest by StoredAt until the entry fits.
func (d *Durable) evictLocked(ctx context.Context, incoming int) {
	now := d.now()
	evicted := 0
	for key, ie := range d.index {
		if ie.expired(now) && d.removeLocked(ctx, key) {
			evicted++
		}
	}

	if d.overBudgetLocked(incoming) {
		keys := make([]string, 0, len(d.index))
		for key := range d.index {
			keys = append(keys, key)
		}
		slices.SortFunc(keys, func(a, b string) int {
			return d.index[a].storedAt.Compare(d.index[b].storedAt)
		})
		for _, key := range keys {
			if !d.overBudgetLocked(incoming) {
				break
			}
			if d.removeLocked(ctx, key) {
				evicted++
			}
		}
	}

	d.stats.evictions += int64(evicted)
	if evicted > 0 {
		d.log.Debug("entries evicted", logger.Fields("evicted", evicted, "entries", len(d.index), "size_bytes", d.totalSize))
	}
}
