package policy

import (
	"strings"
	"time"

	"github.com/kbukum/outbound/resilience"
)

// Endpoint names shipped by Defaults.
const (
	Dictionary = "dictionary"
	Translate  = "translate"
	Unsplash   = "unsplash"
	Pexels     = "pexels"
)

func jsonHeaders() map[string]string {
	return map[string]string{"Accept": "application/json"}
}

// Defaults returns the built-in endpoint table.
func Defaults() map[string]EndpointPolicy {
	return map[string]EndpointPolicy{
		Dictionary: {
			Timeout:           8 * time.Second,
			MaxRetries:        3,
			RetryBaseDelay:    1000 * time.Millisecond,
			BackoffMultiplier: 2,
			Headers:           jsonHeaders(),
			RateLimit:         &resilience.Limit{MaxRequests: 60, Window: time.Minute},
		},
		Translate: {
			Timeout:           10 * time.Second,
			MaxRetries:        2,
			RetryBaseDelay:    1500 * time.Millisecond,
			BackoffMultiplier: 1.5,
			Headers:           jsonHeaders(),
			RateLimit:         &resilience.Limit{MaxRequests: 20, Window: time.Minute},
		},
		Unsplash: {
			Timeout:           6 * time.Second,
			MaxRetries:        2,
			RetryBaseDelay:    800 * time.Millisecond,
			BackoffMultiplier: 2,
			Headers:           jsonHeaders(),
			RateLimit:         &resilience.Limit{MaxRequests: 50, Window: time.Hour},
		},
		Pexels: {
			Timeout:           6 * time.Second,
			MaxRetries:        2,
			RetryBaseDelay:    800 * time.Millisecond,
			BackoffMultiplier: 2,
			Headers:           jsonHeaders(),
			RateLimit:         &resilience.Limit{MaxRequests: 200, Window: time.Hour},
		},
	}
}

// ForEnvironment returns Defaults adjusted for env. Production uses shorter
// timeouts and fewer dictionary retries; other environments get Defaults.
func ForEnvironment(env string) map[string]EndpointPolicy {
	policies := Defaults()
	switch strings.ToLower(env) {
	case "production", "prod":
		d := policies[Dictionary]
		d.Timeout = 5 * time.Second
		d.MaxRetries = 2
		policies[Dictionary] = d

		tr := policies[Translate]
		tr.Timeout = 8 * time.Second
		tr.MaxRetries = 2
		policies[Translate] = tr
	}
	return policies
}

// Merge overlays overrides onto base by endpoint name. An override replaces
// the whole policy for its name.
func Merge(base, overrides map[string]EndpointPolicy) map[string]EndpointPolicy {
	out := make(map[string]EndpointPolicy, len(base)+len(overrides))
	for name, p := range base {
		out[name] = p.Clone()
	}
	for name, p := range overrides {
		out[name] = p.Clone()
	}
	return out
}
