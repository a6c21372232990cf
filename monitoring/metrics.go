package monitoring

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/kbukum/outbound/errors"
)

// Metrics aggregates an endpoint's records inside a window.
type Metrics struct {
	Endpoint        string              `json:"endpoint"`
	Window          time.Duration       `json:"window"`
	TotalRequests   int                 `json:"total_requests"`
	SuccessRequests int                 `json:"success_requests"`
	FailedRequests  int                 `json:"failed_requests"`
	CachedRequests  int                 `json:"cached_requests"`
	AverageLatency  time.Duration       `json:"average_latency"`
	ErrorsByKind    map[errors.Kind]int `json:"errors_by_kind"`
	Since           time.Time           `json:"since"`
}

// ErrorRate is failed/total, zero with no traffic.
func (m Metrics) ErrorRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.FailedRequests) / float64(m.TotalRequests)
}

// Availability is success/total, one with no traffic.
func (m Metrics) Availability() float64 {
	if m.TotalRequests == 0 {
		return 1
	}
	return float64(m.SuccessRequests) / float64(m.TotalRequests)
}

// Status classifies an endpoint.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

const (
	downErrorRate     = 0.5
	downLatency       = 10 * time.Second
	degradedErrorRate = 0.1
	degradedLatency   = 5 * time.Second
	healthyScore      = 0.75
)

// Classify applies the health thresholds.
func Classify(errorRate float64, avgLatency time.Duration) Status {
	switch {
	case errorRate > downErrorRate || avgLatency > downLatency:
		return StatusDown
	case errorRate > degradedErrorRate || avgLatency > degradedLatency:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// LastError describes the most recent failure in the latency window.
type LastError struct {
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message"`
	Kind      errors.Kind `json:"kind"`
}

// EndpointHealth is the derived health of one endpoint.
type EndpointHealth struct {
	Endpoint       string        `json:"endpoint"`
	Status         Status        `json:"status"`
	Healthy        bool          `json:"healthy"`
	Uptime         float64       `json:"uptime"`
	ErrorRate      float64       `json:"error_rate"`
	AverageLatency time.Duration `json:"average_latency"`
	P50            time.Duration `json:"p50"`
	P95            time.Duration `json:"p95"`
	P99            time.Duration `json:"p99"`
	LastError      *LastError    `json:"last_error,omitempty"`
}

// SystemHealth summarizes every known endpoint.
type SystemHealth struct {
	Endpoints map[string]EndpointHealth `json:"endpoints"`
	Healthy   bool                      `json:"healthy"`
	Score     float64                   `json:"score"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// Trend holds success-rate buckets, oldest first. Empty buckets count as 1.
type Trend struct {
	Hour []float64 `json:"hour"`
	Day  []float64 `json:"day"`
	Week []float64 `json:"week"`
}

// Percentile returns the value at index ceil(n*p)-1 of sorted.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// --- aggregation helpers; callers hold e.mu ---

func (e *Engine) metricsLocked(endpoint string, window time.Duration, now time.Time) Metrics {
	m := Metrics{
		Endpoint:     endpoint,
		Window:       window,
		ErrorsByKind: make(map[errors.Kind]int),
		Since:        now.Add(-window),
	}
	var total time.Duration
	e.records.each(func(r Record) bool {
		if r.Endpoint != endpoint || now.Sub(r.Timestamp) > window {
			return true
		}
		m.TotalRequests++
		total += r.Duration
		if r.Cached {
			m.CachedRequests++
		}
		if r.Success {
			m.SuccessRequests++
		} else {
			m.FailedRequests++
			if r.ErrorKind != "" {
				m.ErrorsByKind[r.ErrorKind]++
			}
		}
		return true
	})
	if m.TotalRequests > 0 {
		m.AverageLatency = total / time.Duration(m.TotalRequests)
	}
	return m
}

func (e *Engine) healthLocked(endpoint string, now time.Time) EndpointHealth {
	m := e.metricsLocked(endpoint, e.cfg.MetricsWindow, now)

	var (
		latencies []time.Duration
		last      *Record
	)
	e.records.each(func(r Record) bool {
		if r.Endpoint != endpoint || now.Sub(r.Timestamp) > e.cfg.LatencyWindow {
			return true
		}
		latencies = append(latencies, r.Duration)
		if !r.Success && (last == nil || !r.Timestamp.Before(last.Timestamp)) {
			rc := r
			last = &rc
		}
		return true
	})
	slices.Sort(latencies)

	h := EndpointHealth{
		Endpoint:       endpoint,
		Status:         Classify(m.ErrorRate(), m.AverageLatency),
		Uptime:         m.Availability(),
		ErrorRate:      m.ErrorRate(),
		AverageLatency: m.AverageLatency,
		P50:            Percentile(latencies, 0.50),
		P95:            Percentile(latencies, 0.95),
		P99:            Percentile(latencies, 0.99),
	}
	h.Healthy = h.Status == StatusHealthy
	if last != nil {
		h.LastError = &LastError{
			Timestamp: last.Timestamp,
			Message:   lastErrorMessage(*last),
			Kind:      last.ErrorKind,
		}
		if h.LastError.Kind == "" {
			h.LastError.Kind = errors.KindUnknown
		}
	}
	return h
}

func lastErrorMessage(r Record) string {
	if r.StatusCode != 0 {
		return fmt.Sprintf("%d error", r.StatusCode)
	}
	if r.ErrorKind != "" {
		return string(r.ErrorKind)
	}
	return "network error"
}

func (e *Engine) trendLocked(endpoint string, span time.Duration, points int, now time.Time) []float64 {
	step := span / time.Duration(points)
	origin := now.Add(-span)
	ok := make([]int, points)
	all := make([]int, points)
	e.records.each(func(r Record) bool {
		if r.Endpoint != endpoint || r.Timestamp.Before(origin) || !r.Timestamp.Before(now) {
			return true
		}
		i := int(r.Timestamp.Sub(origin) / step)
		if i >= points {
			i = points - 1
		}
		all[i]++
		if r.Success {
			ok[i]++
		}
		return true
	})
	out := make([]float64, points)
	for i := range out {
		if all[i] == 0 {
			out[i] = 1
			continue
		}
		out[i] = float64(ok[i]) / float64(all[i])
	}
	return out
}

// endpointsLocked returns the configured endpoints, or every endpoint in
// the buffer when none are configured.
func (e *Engine) endpointsLocked() []string {
	if len(e.cfg.Endpoints) > 0 {
		return slices.Clone(e.cfg.Endpoints)
	}
	seen := make(map[string]struct{})
	e.records.each(func(r Record) bool {
		seen[r.Endpoint] = struct{}{}
		return true
	})
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
