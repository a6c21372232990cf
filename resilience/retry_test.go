package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func TestBackoffDelay_ExactAndMonotonic(t *testing.T) {
	base := 1000 * time.Millisecond
	for _, factor := range []float64{1, 1.5, 2} {
		prev := time.Duration(0)
		for i := 0; i <= 6; i++ {
			got := BackoffDelay(base, factor, i)
			want := base
			for j := 0; j < i; j++ {
				want = time.Duration(float64(want) * factor)
			}
			if got != want {
				t.Errorf("factor %v attempt %d: expected %s, got %s", factor, i, want, got)
			}
			if got < prev {
				t.Errorf("factor %v attempt %d: delay decreased from %s to %s", factor, i, prev, got)
			}
			prev = got
		}
	}
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	sleeper := &recordingSleeper{}
	cfg := DefaultRetryConfig()
	cfg.Sleep = sleeper.Sleep
	callCount := 0

	result, err := Retry(context.Background(), cfg, func() (string, error) {
		callCount++
		return "success", nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "success" {
		t.Errorf("expected 'success', got %s", result)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
	if len(sleeper.delays) != 0 {
		t.Errorf("expected no sleeps, got %v", sleeper.delays)
	}
}

func TestRetry_WaitsExactBackoffBetweenAttempts(t *testing.T) {
	sleeper := &recordingSleeper{}
	var retried []int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		BackoffFactor:  2,
		RetryIf:        func(error) bool { return true },
		Sleep:          sleeper.Sleep,
		OnRetry:        func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) },
	}
	callCount := 0

	result, err := Retry(context.Background(), cfg, func() (int, error) {
		callCount++
		if callCount < 3 {
			return 0, errBoom
		}
		return 42, nil
	})
	if err != nil || result != 42 {
		t.Fatalf("expected 42, got %d, %v", result, err)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(sleeper.delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, sleeper.delays)
	}
	for i := range want {
		if sleeper.delays[i] != want[i] {
			t.Errorf("delay %d: expected %s, got %s", i, want[i], sleeper.delays[i])
		}
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("expected OnRetry for attempts [1 2], got %v", retried)
	}
}

func TestRetry_ExceedsMaxAttempts(t *testing.T) {
	sleeper := &recordingSleeper{}
	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffFactor: 2, Sleep: sleeper.Sleep}
	callCount := 0

	_, err := Retry(context.Background(), cfg, func() (string, error) {
		callCount++
		return "", errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("expected errBoom, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
	if len(sleeper.delays) != 2 {
		t.Errorf("expected no sleep after the last attempt, got %v", sleeper.delays)
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := RetryConfig{
		MaxAttempts: 5,
		RetryIf:     func(err error) bool { return !errors.Is(err, permanent) },
		Sleep:       (&recordingSleeper{}).Sleep,
	}
	callCount := 0
	_, err := Retry(context.Background(), cfg, func() (string, error) {
		callCount++
		return "", permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetry_MaxBackoffCaps(t *testing.T) {
	sleeper := &recordingSleeper{}
	cfg := RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: time.Second,
		MaxBackoff:     1500 * time.Millisecond,
		BackoffFactor:  2,
		Sleep:          sleeper.Sleep,
	}
	_, _ = Retry(context.Background(), cfg, func() (int, error) { return 0, errBoom })
	for _, d := range sleeper.delays {
		if d > cfg.MaxBackoff {
			t.Errorf("delay %s exceeds max backoff", d)
		}
	}
}

func TestRetry_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour, BackoffFactor: 2}
	callCount := 0

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Retry(ctx, cfg, func() (string, error) {
		callCount++
		return "", errBoom
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetry_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := RetryFunc(ctx, DefaultRetryConfig(), func() error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("fn should not run with a cancelled context")
	}
}

func TestSleepContext(t *testing.T) {
	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
