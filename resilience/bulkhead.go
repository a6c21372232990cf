package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

const defaultMaxConcurrent = 10

var (
	ErrBulkheadFull    = errors.New("bulkhead is full")
	ErrBulkheadTimeout = errors.New("bulkhead wait timeout")
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	// Name is passed to OnReject; usually the endpoint.
	Name string
	// MaxConcurrent defaults to 10.
	MaxConcurrent int
	// MaxWait is how long Acquire waits for a slot. Zero fails at once.
	MaxWait  time.Duration
	OnReject func(name string)
}

// Bulkhead caps in-flight calls to one endpoint.
type Bulkhead struct {
	cfg      BulkheadConfig
	slots    chan struct{}
	rejected atomic.Int64
}

func NewBulkhead(cfg BulkheadConfig) *Bulkhead {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	return &Bulkhead{cfg: cfg, slots: make(chan struct{}, cfg.MaxConcurrent)}
}

// TryAcquire takes a slot without waiting. Pair every true result with
// Release.
func (b *Bulkhead) TryAcquire() bool {
	select {
	case b.slots <- struct{}{}:
		return true
	default:
		b.reject()
		return false
	}
}

// Acquire waits up to MaxWait for a slot. Pair a nil result with Release.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	default:
	}
	if b.cfg.MaxWait <= 0 {
		b.reject()
		return ErrBulkheadFull
	}

	timer := time.NewTimer(b.cfg.MaxWait)
	defer timer.Stop()
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-timer.C:
		b.reject()
		return ErrBulkheadTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by TryAcquire or Acquire.
func (b *Bulkhead) Release() {
	<-b.slots
}

// Execute runs fn holding a slot.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return fn()
}

func (b *Bulkhead) reject() {
	b.rejected.Add(1)
	if b.cfg.OnReject != nil {
		b.cfg.OnReject(b.cfg.Name)
	}
}

func (b *Bulkhead) InUse() int         { return len(b.slots) }
func (b *Bulkhead) Available() int     { return cap(b.slots) - len(b.slots) }
func (b *Bulkhead) MaxConcurrent() int { return cap(b.slots) }

// Rejected counts calls turned away since creation.
func (b *Bulkhead) Rejected() int64 { return b.rejected.Load() }
