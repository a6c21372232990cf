package cache

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestEntry_Expiry(t *testing.T) {
	now := time.Now()
	e := NewEntry("k", []byte("v"), "dictionary", time.Minute, now)
	if e.SizeBytes != 2 {
		t.Errorf("expected size 2, got %d", e.SizeBytes)
	}
	if e.Expired(now.Add(time.Minute)) {
		t.Error("entry at exactly ttl should still be live")
	}
	if !e.Expired(now.Add(time.Minute + time.Nanosecond)) {
		t.Error("entry past ttl should be expired")
	}
	if e.Remaining(now.Add(2*time.Minute)) != 0 {
		t.Error("remaining should never be negative")
	}
	if !e.ExpiresAt().Equal(now.Add(time.Minute)) {
		t.Error("unexpected ExpiresAt")
	}
}

func TestKey_Deterministic(t *testing.T) {
	a := Key("get", "https://api.example.com/x?q=1", nil)
	b := Key("GET", "https://api.example.com/x?q=1", nil)
	if a != b {
		t.Errorf("method case should not matter: %q vs %q", a, b)
	}
	if a != "GET https://api.example.com/x?q=1" {
		t.Errorf("unexpected key %q", a)
	}
	withBody := Key("POST", "https://api.example.com/x", []byte(`{"q":"hi"}`))
	if withBody == Key("POST", "https://api.example.com/x", []byte(`{"q":"ho"}`)) {
		t.Error("different bodies must give different keys")
	}
	if withBody != Key("POST", "https://api.example.com/x", []byte(`{"q":"hi"}`)) {
		t.Error("same body must give the same key")
	}
	if !strings.HasPrefix(withBody, "POST https://api.example.com/x #") {
		t.Errorf("unexpected key %q", withBody)
	}
}

func TestMemory_RoundTripAndExpiry(t *testing.T) {
	clock := newFakeClock()
	m := NewMemory(0, clock.Now)
	if m.DefaultTTL() != DefaultMemoryTTL {
		t.Errorf("expected default ttl %s, got %s", DefaultMemoryTTL, m.DefaultTTL())
	}

	m.Set("k", []byte("v"), "dictionary", 0)
	e, ok := m.Get("k")
	if !ok || string(e.Value) != "v" {
		t.Fatalf("expected hit, got %v %v", e, ok)
	}

	clock.Advance(5*time.Minute + time.Second)
	if _, ok := m.Get("k"); ok {
		t.Error("expected miss after ttl")
	}
	if m.Len() != 0 {
		t.Error("expired entry should be removed on read")
	}
	clock.Advance(-time.Hour)
	if _, ok := m.Get("k"); ok {
		t.Error("expired entry must not be resurrected")
	}
}

func TestMemory_DeleteClearPurge(t *testing.T) {
	clock := newFakeClock()
	m := NewMemory(time.Minute, clock.Now)
	m.Set("a", []byte("1"), "x", 0)
	m.Set("b", []byte("2"), "x", time.Hour)
	m.Set("c", []byte("3"), "x", 0)

	m.Delete("c")
	clock.Advance(2 * time.Minute)
	if removed := m.PurgeExpired(); removed != 1 {
		t.Errorf("expected 1 purged, got %d", removed)
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 left, got %d", m.Len())
	}
	m.Clear()
	if m.Len() != 0 {
		t.Error("expected empty cache after Clear")
	}
}

func newTestDurable(t *testing.T, store Store, cfg DurableConfig, clock *fakeClock) *Durable {
	t.Helper()
	d, err := NewDurable(context.Background(), store, cfg, nil, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewDurable: %v", err)
	}
	return d
}

func TestDurable_Defaults(t *testing.T) {
	d := newTestDurable(t, NewMemoryStore(), DurableConfig{}, newFakeClock())
	cfg := d.Config()
	if cfg.MaxSizeBytes != 50<<20 || cfg.MaxEntries != 10000 {
		t.Errorf("unexpected bounds %+v", cfg)
	}
	if cfg.DefaultTTL != 24*time.Hour || cfg.CleanupInterval != time.Hour {
		t.Errorf("unexpected timings %+v", cfg)
	}
	if d.MaxEntrySize() != (50<<20)/10 {
		t.Errorf("expected max entry size of 10%%, got %d", d.MaxEntrySize())
	}
}

func TestDurable_InvalidConfig(t *testing.T) {
	_, err := NewDurable(context.Background(), NewMemoryStore(), DurableConfig{MaxEntryFraction: 2}, nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDurable_RoundTripAndExpiry(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	d := newTestDurable(t, store, DurableConfig{}, clock)
	ctx := context.Background()

	ok, err := d.Set(ctx, "k", []byte("value"), "dictionary", time.Hour)
	if err != nil || !ok {
		t.Fatalf("Set: %v %v", ok, err)
	}
	e, hit, err := d.Get(ctx, "k")
	if err != nil || !hit || !bytes.Equal(e.Value, []byte("value")) {
		t.Fatalf("expected hit, got %v %v %v", e, hit, err)
	}

	clock.Advance(time.Hour + time.Second)
	if _, hit, _ := d.Get(ctx, "k"); hit {
		t.Error("expected miss after ttl")
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Error("expired entry should be deleted from the store")
	}
	st := d.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Writes != 1 {
		t.Errorf("unexpected counters %+v", st)
	}
	if st.HitRate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %v", st.HitRate)
	}
}

func TestDurable_RejectsOversizedEntry(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	d := newTestDurable(t, store, DurableConfig{MaxSizeBytes: 1000}, clock)

	ok, err := d.Set(context.Background(), "k", make([]byte, 150), "unsplash", 0)
	if err != nil {
		t.Fatalf("oversized entry must not raise an error, got %v", err)
	}
	if ok {
		t.Error("expected oversized entry to be rejected")
	}
	if entries, _ := store.ScanAll(context.Background()); len(entries) != 0 {
		t.Error("rejected entry must not reach the store")
	}
	if d.Stats().Rejections != 1 {
		t.Errorf("expected 1 rejection, got %d", d.Stats().Rejections)
	}
}

func TestDurable_EvictsExpiredFirst(t *testing.T) {
	clock := newFakeClock()
	d := newTestDurable(t, NewMemoryStore(), DurableConfig{MaxEntries: 3}, clock)
	ctx := context.Background()

	d.Set(ctx, "old-live", []byte("1"), "x", time.Hour)
	clock.Advance(time.Second)
	d.Set(ctx, "short", []byte("2"), "x", time.Minute)
	clock.Advance(time.Second)
	d.Set(ctx, "new-live", []byte("3"), "x", time.Hour)

	clock.Advance(2 * time.Minute)
	d.Set(ctx, "incoming", []byte("4"), "x", time.Hour)

	for _, key := range []string{"old-live", "new-live", "incoming"} {
		if _, hit, _ := d.Get(ctx, key); !hit {
			t.Errorf("expected %s to survive", key)
		}
	}
	if d.Stats().Evictions != 1 {
		t.Errorf("expected exactly the expired entry evicted, got %d", d.Stats().Evictions)
	}
}

func TestDurable_EvictsOldestWhenOverCount(t *testing.T) {
	clock := newFakeClock()
	d := newTestDurable(t, NewMemoryStore(), DurableConfig{MaxEntries: 3}, clock)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c", "d", "e"} {
		d.Set(ctx, key, []byte(key), "x", time.Hour)
		clock.Advance(time.Second)
	}
	st := d.Stats()
	if st.Entries != 3 {
		t.Errorf("expected 3 entries, got %d", st.Entries)
	}
	for _, key := range []string{"a", "b"} {
		if _, hit, _ := d.Get(ctx, key); hit {
			t.Errorf("expected %s to be evicted", key)
		}
	}
	for _, key := range []string{"c", "d", "e"} {
		if _, hit, _ := d.Get(ctx, key); !hit {
			t.Errorf("expected %s to survive", key)
		}
	}
}

func TestDurable_EvictsOldestWhenOverSize(t *testing.T) {
	clock := newFakeClock()
	d := newTestDurable(t, NewMemoryStore(), DurableConfig{MaxSizeBytes: 1000}, clock)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		d.Set(ctx, key, make([]byte, 99), "x", time.Hour) // 100 bytes with the key
		clock.Advance(time.Second)
	}
	for i := 0; i < 8; i++ {
		d.Set(ctx, string(rune('d'+i)), make([]byte, 99), "x", time.Hour)
		clock.Advance(time.Second)
	}
	st := d.Stats()
	if st.TotalSizeBytes > 1000 {
		t.Errorf("size budget exceeded: %d", st.TotalSizeBytes)
	}
	if st.Entries != 10 {
		t.Errorf("expected 10 entries to fit, got %d", st.Entries)
	}
	if _, hit, _ := d.Get(ctx, "a"); hit {
		t.Error("expected oldest entry to be evicted")
	}
}

func TestDurable_ReplacingKeyKeepsAccounting(t *testing.T) {
	clock := newFakeClock()
	d := newTestDurable(t, NewMemoryStore(), DurableConfig{MaxEntries: 2}, clock)
	ctx := context.Background()

	d.Set(ctx, "a", []byte("1"), "x", time.Hour)
	d.Set(ctx, "b", []byte("1"), "x", time.Hour)
	d.Set(ctx, "b", []byte("22"), "x", time.Hour)

	st := d.Stats()
	if st.Entries != 2 || st.TotalSizeBytes != 5 {
		t.Errorf("unexpected accounting %+v", st)
	}
	if st.Evictions != 0 {
		t.Errorf("replacing a key should not evict, got %d", st.Evictions)
	}
}

func TestDurable_SurvivesReopen(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	ctx := context.Background()

	d1 := newTestDurable(t, store, DurableConfig{}, clock)
	d1.Set(ctx, "live", []byte("1"), "dictionary", time.Hour)
	d1.Set(ctx, "stale", []byte("2"), "dictionary", time.Minute)

	clock.Advance(10 * time.Minute)
	d2 := newTestDurable(t, store, DurableConfig{}, clock)
	if d2.Stats().Entries != 1 {
		t.Errorf("expected 1 entry after reopen, got %d", d2.Stats().Entries)
	}
	if _, hit, _ := d2.Get(ctx, "live"); !hit {
		t.Error("expected live entry after reopen")
	}
}

func TestDurable_CleanupAndClear(t *testing.T) {
	clock := newFakeClock()
	d := newTestDurable(t, NewMemoryStore(), DurableConfig{}, clock)
	ctx := context.Background()

	d.Set(ctx, "a", []byte("1"), "x", time.Minute)
	d.Set(ctx, "b", []byte("1"), "x", time.Minute)
	d.Set(ctx, "c", []byte("1"), "x", time.Hour)
	clock.Advance(2 * time.Minute)

	removed, err := d.Cleanup(ctx)
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 removed, got %d %v", removed, err)
	}
	if err := d.Delete(ctx, "c"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	d.Set(ctx, "d", []byte("1"), "x", time.Hour)
	if err := d.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	st := d.Stats()
	if st.Entries != 0 || st.TotalSizeBytes != 0 {
		t.Errorf("expected empty tier, got %+v", st)
	}
	if st.Deletes != 1 {
		t.Errorf("expected 1 delete, got %d", st.Deletes)
	}
}

func TestDurable_BackupRestoreAndGrouping(t *testing.T) {
	clock := newFakeClock()
	src := newTestDurable(t, NewMemoryStore(), DurableConfig{}, clock)
	ctx := context.Background()

	src.Set(ctx, "d1", []byte("1"), "dictionary", time.Hour)
	clock.Advance(time.Second)
	src.Set(ctx, "d2", []byte("2"), "dictionary", time.Hour)
	src.Set(ctx, "t1", []byte("3"), "translate", time.Hour)
	src.Set(ctx, "gone", []byte("4"), "translate", time.Second)
	clock.Advance(2 * time.Second)

	counts := src.EntriesByEndpoint()
	if counts["dictionary"] != 2 || counts["translate"] != 1 {
		t.Errorf("unexpected grouping %v", counts)
	}

	dict, err := src.Backup(ctx, "dictionary")
	if err != nil || len(dict) != 2 {
		t.Fatalf("expected 2 dictionary entries, got %d %v", len(dict), err)
	}
	if dict[0].Key != "d1" {
		t.Errorf("expected oldest first, got %s", dict[0].Key)
	}

	all, _ := src.Backup(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 live entries, got %d", len(all))
	}
	all = append(all, NewEntry("stale", []byte("x"), "pexels", time.Second, clock.Now().Add(-time.Hour)))

	dst := newTestDurable(t, NewMemoryStore(), DurableConfig{}, clock)
	restored, err := dst.Restore(ctx, all)
	if err != nil || restored != 3 {
		t.Fatalf("expected 3 restored, got %d %v", restored, err)
	}
	e, hit, _ := dst.Get(ctx, "d1")
	if !hit || !e.StoredAt.Equal(dict[0].StoredAt) {
		t.Error("restore should keep the original StoredAt")
	}
}

type failingStore struct {
	*MemoryStore
	failGet bool
	failPut bool
}

func (s *failingStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if s.failGet {
		return Entry{}, false, stderrors.New("disk on fire")
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *failingStore) Put(ctx context.Context, e Entry) error {
	if s.failPut {
		return stderrors.New("disk full")
	}
	return s.MemoryStore.Put(ctx, e)
}

func TestDurable_StoreErrorsAreCounted(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), failGet: true, failPut: true}
	d := newTestDurable(t, store, DurableConfig{}, newFakeClock())
	ctx := context.Background()

	if _, err := d.Set(ctx, "k", []byte("v"), "x", 0); err == nil {
		t.Error("expected put error")
	}
	if _, _, err := d.Get(ctx, "k"); err == nil {
		t.Error("expected get error")
	}
	if d.Stats().Errors != 2 {
		t.Errorf("expected 2 errors, got %d", d.Stats().Errors)
	}
}

func TestDurable_StartStop(t *testing.T) {
	d := newTestDurable(t, NewMemoryStore(), DurableConfig{CleanupInterval: time.Millisecond}, newFakeClock())
	d.Start(context.Background())
	d.Start(context.Background())
	time.Sleep(5 * time.Millisecond)
	d.Stop()
	d.Stop()
}

func TestTwoTier_ReadPathAndBackfill(t *testing.T) {
	clock := newFakeClock()
	ctx := context.Background()
	mem := NewMemory(5*time.Minute, clock.Now)
	dur := newTestDurable(t, NewMemoryStore(), DurableConfig{}, clock)
	tt := NewTwoTier(mem, dur, nil)

	var lookups []string
	tt.OnLookup(func(tier Tier, hit bool) {
		state := "miss"
		if hit {
			state = "hit"
		}
		lookups = append(lookups, string(tier)+":"+state)
	})

	if _, tier, ok := tt.Get(ctx, "k"); ok || tier != TierNone {
		t.Fatal("expected full miss")
	}

	tt.Set(ctx, "k", []byte("v"), "dictionary", 0, time.Hour)
	if _, tier, ok := tt.Get(ctx, "k"); !ok || tier != TierMemory {
		t.Fatalf("expected memory hit, got %s", tier)
	}

	clock.Advance(6 * time.Minute)
	e, tier, ok := tt.Get(ctx, "k")
	if !ok || tier != TierDurable || string(e.Value) != "v" {
		t.Fatalf("expected durable hit, got %s %v", tier, ok)
	}
	if _, tier, _ := tt.Get(ctx, "k"); tier != TierMemory {
		t.Errorf("expected backfilled memory hit, got %s", tier)
	}

	want := []string{"memory:miss", "durable:miss", "memory:hit", "memory:miss", "durable:hit", "memory:hit"}
	if strings.Join(lookups, ",") != strings.Join(want, ",") {
		t.Errorf("expected lookups %v, got %v", want, lookups)
	}
}

func TestTwoTier_BackfillNeverOutlivesDurable(t *testing.T) {
	clock := newFakeClock()
	ctx := context.Background()
	mem := NewMemory(5*time.Minute, clock.Now)
	dur := newTestDurable(t, NewMemoryStore(), DurableConfig{}, clock)
	tt := NewTwoTier(mem, dur, nil)

	dur.Set(ctx, "k", []byte("v"), "x", time.Minute)
	clock.Advance(30 * time.Second)
	if _, _, ok := tt.Get(ctx, "k"); !ok {
		t.Fatal("expected durable hit")
	}
	clock.Advance(31 * time.Second)
	if _, _, ok := tt.Get(ctx, "k"); ok {
		t.Error("backfilled entry must expire with the durable entry")
	}
}

func TestTwoTier_DurableFailureIsAMiss(t *testing.T) {
	clock := newFakeClock()
	store := &failingStore{MemoryStore: NewMemoryStore()}
	dur := newTestDurable(t, store, DurableConfig{}, clock)
	tt := NewTwoTier(NewMemory(0, clock.Now), dur, nil)

	store.failGet = true
	if _, _, ok := tt.Get(context.Background(), "k"); ok {
		t.Error("expected miss on store failure")
	}
	store.failPut = true
	tt.Set(context.Background(), "k", []byte("v"), "x", 0, 0)
	if _, tier, ok := tt.Get(context.Background(), "k"); !ok || tier != TierMemory {
		t.Error("memory tier should still be written when durable fails")
	}
}

func TestTwoTier_WithoutDurable(t *testing.T) {
	tt := NewTwoTier(NewMemory(0, nil), nil, nil)
	ctx := context.Background()
	tt.Set(ctx, "k", []byte("v"), "x", 0, 0)
	if _, tier, ok := tt.Get(ctx, "k"); !ok || tier != TierMemory {
		t.Fatal("expected memory hit")
	}
	if err := tt.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := tt.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if tt.Durable() != nil || tt.Memory() == nil {
		t.Error("unexpected tier accessors")
	}
}

func TestTwoTier_SweepDropsUnreadExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	tt := NewTwoTier(NewMemory(time.Minute, clock.Now), nil, nil)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		tt.Set(ctx, k, []byte("v"), "dictionary", 0, 0)
	}
	tt.Set(ctx, "long", []byte("v"), "dictionary", time.Hour, 0)

	if n := tt.Sweep(); n != 0 {
		t.Fatalf("nothing expired yet, swept %d", n)
	}
	clock.Advance(2 * time.Minute)
	if n := tt.Sweep(); n != 3 {
		t.Errorf("expected 3 swept, got %d", n)
	}
	if n := tt.Memory().Len(); n != 1 {
		t.Errorf("expected only the long-lived entry to remain, got %d", n)
	}
}

func TestTwoTier_StartSweepsPeriodically(t *testing.T) {
	clock := newFakeClock()
	durable := newTestDurable(t, NewMemoryStore(), DurableConfig{CleanupInterval: time.Hour}, clock)
	tt := NewTwoTier(NewMemory(time.Minute, clock.Now), durable, nil)
	tt.Set(context.Background(), "k", []byte("v"), "dictionary", 0, 0)
	clock.Advance(2 * time.Minute)

	tt.Start(context.Background(), time.Millisecond)
	tt.Start(context.Background(), time.Millisecond)
	defer tt.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for tt.Memory().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expired entry was never swept")
		}
		time.Sleep(time.Millisecond)
	}
	tt.Stop()
	tt.Stop()
}
