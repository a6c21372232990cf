package monitoring

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/outbound/errors"
	"github.com/kbukum/outbound/logger"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.now = clock }
}

// WithSink persists sampled records to sink.
func WithSink(sink RecordSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithNotifier delivers ActionNotify alerts to n.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithSampler replaces the random source used for sampling. It must
// return values in [0, 1).
func WithSampler(fn func() float64) Option {
	return func(e *Engine) { e.sample = fn }
}

// Engine records calls and evaluates alert rules over them.
type Engine struct {
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
	sample    func() float64
	sink      RecordSink
	notifier  Notifier
	sessionID string
	startedAt time.Time

	mu      sync.RWMutex
	records *ring
	rules   []AlertRule
	alerts  []*Alert

	subMu   sync.Mutex
	subs    map[int]chan Alert
	nextSub int

	persistCh chan Record
	persisted atomic.Int64
	dropped   atomic.Int64
	lastPrune time.Time

	loopMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Engine. Loops do not run until Start.
func New(cfg Config, log *logger.Logger, opts ...Option) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("monitoring: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	e := &Engine{
		cfg:       cfg,
		log:       log.WithComponent("monitoring"),
		now:       time.Now,
		sample:    rand.Float64,
		sessionID: uuid.NewString(),
		records:   newRing(cfg.BufferSize),
		subs:      make(map[int]chan Alert),
		persistCh: make(chan Record, cfg.PersistBuffer),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.startedAt = e.now()

	if cfg.DefaultRules {
		for _, r := range DefaultRules() {
			if _, err := e.AddAlertRule(r); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}

// SessionID identifies this engine's process lifetime.
func (e *Engine) SessionID() string { return e.sessionID }

// Enabled reports whether records are being kept.
func (e *Engine) Enabled() bool { return e.cfg.Enabled }

// RecordCall appends rec to the buffer. Missing ID, SessionID and
// Timestamp are filled in. Severe failures trigger an immediate alert
// check for the endpoint.
func (e *Engine) RecordCall(ctx context.Context, rec Record) {
	if !e.cfg.Enabled {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SessionID == "" {
		rec.SessionID = e.sessionID
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = e.now()
	}

	e.mu.Lock()
	e.records.push(rec)
	e.mu.Unlock()

	if e.sink != nil && e.sample() < e.cfg.SampleRate {
		select {
		case e.persistCh <- rec:
		default:
			e.dropped.Add(1)
		}
	}

	if severe(rec) {
		e.checkEndpoint(ctx, rec.Endpoint)
	}
}

func severe(r Record) bool {
	if r.Success {
		return false
	}
	return r.StatusCode == http.StatusInternalServerError ||
		r.StatusCode == http.StatusServiceUnavailable ||
		r.ErrorKind == errors.KindNetwork
}

// Records returns the buffered records, oldest first.
func (e *Engine) Records() []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.records.snapshot()
}

// MetricsFor aggregates endpoint's records newer than window. A zero
// window uses the configured metrics window.
func (e *Engine) MetricsFor(endpoint string, window time.Duration) Metrics {
	if window <= 0 {
		window = e.cfg.MetricsWindow
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metricsLocked(endpoint, window, e.now())
}

// HealthFor classifies one endpoint.
func (e *Engine) HealthFor(endpoint string) EndpointHealth {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.healthLocked(endpoint, e.now())
}

// SystemHealth classifies every known endpoint. The system is healthy
// when at least 75% of them are.
func (e *Engine) SystemHealth() SystemHealth {
	e.mu.RLock()
	defer e.mu.RUnlock()
	now := e.now()
	endpoints := e.endpointsLocked()
	sh := SystemHealth{
		Endpoints: make(map[string]EndpointHealth, len(endpoints)),
		Score:     1,
		UpdatedAt: now,
	}
	healthy := 0
	for _, ep := range endpoints {
		h := e.healthLocked(ep, now)
		sh.Endpoints[ep] = h
		if h.Healthy {
			healthy++
		}
	}
	if len(endpoints) > 0 {
		sh.Score = float64(healthy) / float64(len(endpoints))
	}
	sh.Healthy = sh.Score >= healthyScore
	return sh
}

// Trends returns hourly, daily and weekly success-rate buckets.
func (e *Engine) Trends(endpoint string) Trend {
	e.mu.RLock()
	defer e.mu.RUnlock()
	now := e.now()
	return Trend{
		Hour: e.trendLocked(endpoint, time.Hour, 12, now),
		Day:  e.trendLocked(endpoint, 24*time.Hour, 24, now),
		Week: e.trendLocked(endpoint, 7*24*time.Hour, 7, now),
	}
}

// ResetMetrics drops buffered records for endpoint, or all records when
// endpoint is empty. Alerts and rules are untouched.
func (e *Engine) ResetMetrics(endpoint string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if endpoint == "" {
		e.records = newRing(e.cfg.BufferSize)
		return
	}
	e.records.retain(func(r Record) bool { return r.Endpoint != endpoint })
}

// DebugInfo is an administrative snapshot of the engine.
type DebugInfo struct {
	SessionID      string    `json:"session_id"`
	StartedAt      time.Time `json:"started_at"`
	Enabled        bool      `json:"enabled"`
	SampleRate     float64   `json:"sample_rate"`
	BufferSize     int       `json:"buffer_size"`
	Calls          int       `json:"calls"`
	Alerts         int       `json:"alerts"`
	ActiveAlerts   int       `json:"active_alerts"`
	Rules          int       `json:"rules"`
	Subscribers    int       `json:"subscribers"`
	Persisted      int64     `json:"persisted"`
	PersistDropped int64     `json:"persist_dropped"`
}

// DebugInfo returns counters describing the engine.
func (e *Engine) DebugInfo() DebugInfo {
	e.mu.RLock()
	info := DebugInfo{
		SessionID:      e.sessionID,
		StartedAt:      e.startedAt,
		Enabled:        e.cfg.Enabled,
		SampleRate:     e.cfg.SampleRate,
		BufferSize:     e.cfg.BufferSize,
		Calls:          e.records.len(),
		Alerts:         len(e.alerts),
		Rules:          len(e.rules),
		Persisted:      e.persisted.Load(),
		PersistDropped: e.dropped.Load(),
	}
	for _, a := range e.alerts {
		if !a.Resolved {
			info.ActiveAlerts++
		}
	}
	e.mu.RUnlock()

	e.subMu.Lock()
	info.Subscribers = len(e.subs)
	e.subMu.Unlock()
	return info
}

// Start launches the alert check, health check and persistence loops.
// They run until Stop, independent of ctx.
func (e *Engine) Start(_ context.Context) {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	if e.cancel != nil || !e.cfg.Enabled {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(3)
	go e.tick(ctx, e.cfg.AlertCheckInterval, "alert check", func() { e.CheckAlerts(ctx) })
	go e.tick(ctx, e.cfg.HealthCheckInterval, "health check", func() { e.healthCheck(ctx) })
	go e.persistLoop(ctx)
}

// Stop cancels the loops, waits for them and flushes pending records.
func (e *Engine) Stop() {
	e.loopMu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.loopMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
}

func (e *Engine) tick(ctx context.Context, every time.Duration, name string, fn func()) {
	defer e.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.safely(name, fn)
		}
	}
}

// safely runs fn and logs a panic instead of propagating it.
func (e *Engine) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error(name+" panicked", logger.Fields("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

func (e *Engine) healthCheck(ctx context.Context) {
	sh := e.SystemHealth()
	if !sh.Healthy {
		unhealthy := make([]string, 0)
		for name, h := range sh.Endpoints {
			if !h.Healthy {
				unhealthy = append(unhealthy, name+"="+string(h.Status))
			}
		}
		e.log.Warn("system health degraded", map[string]interface{}{
			"score":     sh.Score,
			"endpoints": unhealthy,
		})
	}
	e.prune(ctx)
}

func (e *Engine) prune(ctx context.Context) {
	pruner, ok := e.sink.(RecordPruner)
	if !ok {
		return
	}
	now := e.now()
	if !e.lastPrune.IsZero() && now.Sub(e.lastPrune) < time.Hour {
		return
	}
	e.lastPrune = now
	n, err := pruner.Prune(ctx, now.Add(-e.cfg.RecordRetention))
	if err != nil {
		e.log.WithError(err).Warn("record prune failed")
		return
	}
	if n > 0 {
		e.log.Debug("old call records pruned", logger.Fields("removed", n))
	}
}

func (e *Engine) persistLoop(ctx context.Context) {
	defer e.wg.Done()
	if e.sink == nil {
		<-ctx.Done()
		return
	}
	// Records already accepted must reach the sink after Stop.
	flushCtx := context.WithoutCancel(ctx)
	batch := make([]Record, 0, DefaultPersistBatch)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rec := <-e.persistCh:
					batch = append(batch, rec)
				default:
					e.flush(flushCtx, batch)
					return
				}
			}
		case rec := <-e.persistCh:
			batch = append(batch, rec)
		drain:
			for len(batch) < DefaultPersistBatch {
				select {
				case rec := <-e.persistCh:
					batch = append(batch, rec)
				default:
					break drain
				}
			}
			e.flush(flushCtx, batch)
			batch = batch[:0]
		}
	}
}

func (e *Engine) flush(ctx context.Context, batch []Record) {
	if len(batch) == 0 {
		return
	}
	e.safely("record persistence", func() {
		if err := e.sink.SaveRecords(ctx, batch); err != nil {
			e.log.WithError(err).Warn("failed to persist call records", logger.Fields("count", len(batch)))
			return
		}
		e.persisted.Add(int64(len(batch)))
	})
}
