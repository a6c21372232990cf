package resilience

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed lets requests through and counts consecutive failures.
	StateClosed State = iota
	// StateOpen rejects every request until the reset timeout elapses.
	StateOpen
	// StateHalfOpen lets trial requests through to test recovery.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Allow and Execute while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this circuit breaker for metrics/logging.
	Name string
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int `mapstructure:"failure_threshold" validate:"min=0"`
	// ResetTimeout is how long the circuit stays open before a probe is allowed.
	ResetTimeout time.Duration `mapstructure:"reset_timeout" validate:"min=0"`
	// SuccessThreshold is the number of half-open successes needed to close the circuit.
	SuccessThreshold int `mapstructure:"success_threshold" validate:"min=0"`
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time `mapstructure:"-"`
	// OnStateChange is called with the breaker lock held; it must not call
	// back into the breaker.
	OnStateChange func(name string, from, to State) `mapstructure:"-"`
}

// DefaultCircuitBreakerConfig returns the default policy: open after 5
// consecutive failures, probe after 60s, close after 3 probe successes.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		SuccessThreshold: 3,
	}
}

// CircuitSnapshot is a point-in-time copy of a breaker's state.
type CircuitSnapshot struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	HalfOpenSuccesses   int       `json:"half_open_successes"`
	LastFailureTime     time.Time `json:"last_failure_time,omitempty"`
	OpenUntil           time.Time `json:"open_until,omitempty"`
}

// CircuitBreaker is a failure-isolation state machine for one dependency.
//
// States:
//   - Closed: requests pass; SuccessThreshold is irrelevant
//   - Open: requests fail with ErrCircuitOpen until OpenUntil
//   - Half-Open: entered by the first request after OpenUntil; any failure reopens
//
// Callers either wrap work in Execute or pair Allow with RecordSuccess /
// RecordFailure when the outcome is only known after retries.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	halfOpenSuccesses   int
	lastFailureTime     time.Time
	openUntil           time.Time
}

// NewCircuitBreaker creates a new circuit breaker. Zero config fields take
// the defaults of DefaultCircuitBreakerConfig.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig(config.Name)
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = def.ResetTimeout
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.config.Name }

// Allow reports whether a request may proceed. An open breaker whose
// timeout has elapsed moves to half-open and allows the request.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if cb.config.Clock().Before(cb.openUntil) {
		return ErrCircuitOpen
	}
	cb.toState(StateHalfOpen)
	return nil
}

// RecordSuccess feeds a successful outcome into the state machine.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures = 0
	case StateHalfOpen:
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.config.SuccessThreshold {
			cb.toState(StateClosed)
		}
	}
}

// RecordFailure feeds a failed outcome into the state machine.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.config.Clock()
	cb.lastFailureTime = now
	cb.consecutiveFailures++

	switch cb.state {
	case StateClosed:
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.open(now)
		}
	case StateHalfOpen:
		cb.open(now)
	case StateOpen:
		// a request admitted before the circuit opened has failed late
		cb.openUntil = now.Add(cb.config.ResetTimeout)
	}
}

// Execute runs fn through the breaker.
// Returns ErrCircuitOpen without calling fn if the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	if err != nil {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
	return err
}

// State returns the current state without triggering the open to half-open
// transition.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns a copy of the breaker's counters.
func (cb *CircuitBreaker) Snapshot() CircuitSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitSnapshot{
		Name:                cb.config.Name,
		State:               cb.state.String(),
		ConsecutiveFailures: cb.consecutiveFailures,
		HalfOpenSuccesses:   cb.halfOpenSuccesses,
		LastFailureTime:     cb.lastFailureTime,
		OpenUntil:           cb.openUntil,
	}
}

// Reset returns the breaker to the closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toState(StateClosed)
	cb.consecutiveFailures = 0
	cb.halfOpenSuccesses = 0
	cb.openUntil = time.Time{}
}

func (cb *CircuitBreaker) open(now time.Time) {
	cb.openUntil = now.Add(cb.config.ResetTimeout)
	cb.toState(StateOpen)
}

// toState transitions to a new state and resets the per-state counters.
func (cb *CircuitBreaker) toState(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to

	switch to {
	case StateClosed:
		cb.consecutiveFailures = 0
		cb.halfOpenSuccesses = 0
	case StateHalfOpen, StateOpen:
		cb.halfOpenSuccesses = 0
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

// CircuitBreakerSet lazily creates one breaker per key from a shared config.
type CircuitBreakerSet struct {
	config   CircuitBreakerConfig
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewCircuitBreakerSet creates an empty set. The config Name is replaced by
// each key.
func NewCircuitBreakerSet(config CircuitBreakerConfig) *CircuitBreakerSet {
	return &CircuitBreakerSet{config: config, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for key, creating it on first use.
func (s *CircuitBreakerSet) Get(key string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[key]
	if !ok {
		cfg := s.config
		cfg.Name = key
		cb = NewCircuitBreaker(cfg)
		s.breakers[key] = cb
	}
	return cb
}

// Snapshots returns a snapshot of every breaker created so far.
func (s *CircuitBreakerSet) Snapshots() map[string]CircuitSnapshot {
	s.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(s.breakers))
	for _, cb := range s.breakers {
		breakers = append(breakers, cb)
	}
	s.mu.Unlock()

	out := make(map[string]CircuitSnapshot, len(breakers))
	for _, cb := range breakers {
		out[cb.Name()] = cb.Snapshot()
	}
	return out
}

// ResetAll closes every breaker in the set.
func (s *CircuitBreakerSet) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cb := range s.breakers {
		cb.Reset()
	}
}
