// Package resilience provides the gatekeepers consulted before every
// outbound network attempt.
//
//   - CircuitBreaker: closed / open / half-open failure isolation per endpoint
//   - RateLimiter: fixed-window request counter keyed by endpoint
//   - Retry: exact exponential backoff (base × factor^attempt) with an injectable sleeper
//   - Bulkhead: caps in-flight calls to one endpoint
//
// All types are safe for concurrent use. Time-dependent types accept a
// Clock so tests can drive them deterministically.
//
//	breakers := resilience.NewCircuitBreakerSet(resilience.DefaultCircuitBreakerConfig(""))
//	limiter := resilience.NewRateLimiter(resilience.RateLimiterConfig{})
//
//	if !limiter.TryAcquire("dictionary", &resilience.Limit{MaxRequests: 60, Window: time.Minute}) {
//	    return resilience.ErrRateLimited
//	}
//	return breakers.Get("dictionary").Execute(call)
package resilience
