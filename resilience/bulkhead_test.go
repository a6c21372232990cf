package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBulkhead_TryAcquire(t *testing.T) {
	var rejected []string
	b := NewBulkhead(BulkheadConfig{
		Name:          "unsplash",
		MaxConcurrent: 2,
		OnReject:      func(name string) { rejected = append(rejected, name) },
	})

	if !b.TryAcquire() || !b.TryAcquire() {
		t.Fatal("expected two slots")
	}
	if b.TryAcquire() {
		t.Error("expected third acquire to fail")
	}
	if b.InUse() != 2 || b.Available() != 0 {
		t.Errorf("in use %d, available %d", b.InUse(), b.Available())
	}
	b.Release()
	if !b.TryAcquire() {
		t.Error("expected a slot after release")
	}
	if len(rejected) != 1 || rejected[0] != "unsplash" || b.Rejected() != 1 {
		t.Errorf("expected one rejection, got %v (%d)", rejected, b.Rejected())
	}
}

func TestBulkhead_ExecuteConcurrent(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 3, MaxWait: time.Second})

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
		wg       sync.WaitGroup
	)
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Execute(context.Background(), func() error {
				mu.Lock()
				inFlight++
				peak = max(peak, inFlight)
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("Execute: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > 3 {
		t.Errorf("expected at most 3 in flight, saw %d", peak)
	}
	if b.InUse() != 0 {
		t.Errorf("expected all slots released, %d in use", b.InUse())
	}
}

func TestBulkhead_AcquireFailures(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		maxWait time.Duration
		ctx     context.Context
		want    error
	}{
		{"no wait", 0, context.Background(), ErrBulkheadFull},
		{"wait times out", 10 * time.Millisecond, context.Background(), ErrBulkheadTimeout},
		{"caller cancelled", time.Hour, cancelled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: tt.maxWait})
			b.TryAcquire()
			defer b.Release()

			err := b.Execute(tt.ctx, func() error { return nil })
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBulkhead_Defaults(t *testing.T) {
	if b := NewBulkhead(BulkheadConfig{}); b.MaxConcurrent() != 10 {
		t.Errorf("expected default 10, got %d", b.MaxConcurrent())
	}
}
