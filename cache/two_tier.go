package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/outbound/logger"
)

// LookupFunc observes every tier lookup.
type LookupFunc func(tier Tier, hit bool)

// TwoTier composes the ephemeral and durable tiers. The durable tier is
// optional; durable I/O failures are logged and treated as misses so a
// broken store never fails a request.
type TwoTier struct {
	memory   *Memory
	durable  *Durable
	log      *logger.Logger
	onLookup LookupFunc

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTwoTier creates a two-tier cache. durable may be nil.
func NewTwoTier(memory *Memory, durable *Durable, log *logger.Logger) *TwoTier {
	if log == nil {
		log = logger.NewNop()
	}
	return &TwoTier{memory: memory, durable: durable, log: log.WithComponent("cache")}
}

// OnLookup registers an observer for lookups. Call it before first use.
func (t *TwoTier) OnLookup(fn LookupFunc) { t.onLookup = fn }

// Memory returns the ephemeral tier.
func (t *TwoTier) Memory() *Memory { return t.memory }

// Durable returns the durable tier, or nil.
func (t *TwoTier) Durable() *Durable { return t.durable }

// Get looks key up in memory, then in the durable tier. A durable hit is
// copied into memory for at most the memory default TTL and never beyond
// the durable entry's own expiry.
func (t *TwoTier) Get(ctx context.Context, key string) (Entry, Tier, bool) {
	if e, ok := t.memory.Get(key); ok {
		t.observe(TierMemory, true)
		return e, TierMemory, true
	}
	t.observe(TierMemory, false)

	if t.durable == nil {
		return Entry{}, TierNone, false
	}
	e, ok, err := t.durable.Get(ctx, key)
	if err != nil {
		t.log.WithError(err).Warn("durable lookup failed", logger.Fields("key", key))
	}
	t.observe(TierDurable, ok)
	if !ok {
		return Entry{}, TierNone, false
	}

	ttl := t.memory.DefaultTTL()
	if left := e.Remaining(t.durable.now()); left < ttl {
		ttl = left
	}
	if ttl > 0 {
		t.memory.Set(key, e.Value, e.Endpoint, ttl)
	}
	return e, TierDurable, true
}

// Set writes value through both tiers. memoryTTL <= 0 uses the memory
// default; durableTTL <= 0 uses the durable default.
func (t *TwoTier) Set(ctx context.Context, key string, value []byte, endpoint string, memoryTTL, durableTTL time.Duration) {
	t.memory.Set(key, value, endpoint, memoryTTL)
	if t.durable == nil {
		return
	}
	if _, err := t.durable.Set(ctx, key, value, endpoint, durableTTL); err != nil {
		t.log.WithError(err).Warn("durable write failed", logger.Fields(logger.FieldEndpoint, endpoint))
	}
}

// Delete removes key from both tiers.
func (t *TwoTier) Delete(ctx context.Context, key string) error {
	t.memory.Delete(key)
	if t.durable == nil {
		return nil
	}
	return t.durable.Delete(ctx, key)
}

// Clear empties both tiers.
func (t *TwoTier) Clear(ctx context.Context) error {
	t.memory.Clear()
	if t.durable == nil {
		return nil
	}
	return t.durable.Clear(ctx)
}

// Sweep drops expired entries from the memory tier. Get only removes the
// keys it reads, so without a sweep unread keys accumulate.
func (t *TwoTier) Sweep() int {
	n := t.memory.PurgeExpired()
	if n > 0 {
		t.log.Debug("expired memory entries swept", logger.Fields("removed", n))
	}
	return n
}

// Start launches the memory sweep every interval and the durable
// cleanup sweep. interval <= 0 uses the memory default TTL.
func (t *TwoTier) Start(ctx context.Context, interval time.Duration) {
	if t.durable != nil {
		t.durable.Start(ctx)
	}
	t.loopMu.Lock()
	defer t.loopMu.Unlock()
	if t.cancel != nil {
		return
	}
	if interval <= 0 {
		interval = t.memory.DefaultTTL()
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.sweepLoop(loopCtx, interval, t.done)
}

// Stop ends both sweeps and waits for them.
func (t *TwoTier) Stop() {
	t.loopMu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.loopMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	if t.durable != nil {
		t.durable.Stop()
	}
}

func (t *TwoTier) sweepLoop(ctx context.Context, every time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

func (t *TwoTier) observe(tier Tier, hit bool) {
	if t.onLookup != nil {
		t.onLookup(tier, hit)
	}
}
