package policy

import (
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/outbound/errors"
	"github.com/kbukum/outbound/resilience"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	tests := []struct {
		name       string
		timeout    time.Duration
		retries    int
		base       time.Duration
		multiplier float64
		limit      resilience.Limit
	}{
		{Dictionary, 8 * time.Second, 3, time.Second, 2, resilience.Limit{MaxRequests: 60, Window: time.Minute}},
		{Translate, 10 * time.Second, 2, 1500 * time.Millisecond, 1.5, resilience.Limit{MaxRequests: 20, Window: time.Minute}},
		{Unsplash, 6 * time.Second, 2, 800 * time.Millisecond, 2, resilience.Limit{MaxRequests: 50, Window: time.Hour}},
		{Pexels, 6 * time.Second, 2, 800 * time.Millisecond, 2, resilience.Limit{MaxRequests: 200, Window: time.Hour}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := d[tc.name]
			if !ok {
				t.Fatalf("missing default policy %s", tc.name)
			}
			if p.Timeout != tc.timeout || p.MaxRetries != tc.retries || p.RetryBaseDelay != tc.base || p.BackoffMultiplier != tc.multiplier {
				t.Errorf("unexpected policy %+v", p)
			}
			if p.RateLimit == nil || *p.RateLimit != tc.limit {
				t.Errorf("expected rate limit %+v, got %+v", tc.limit, p.RateLimit)
			}
			if p.Headers["Accept"] != "application/json" {
				t.Errorf("expected Accept header, got %v", p.Headers)
			}
		})
	}
}

func TestForEnvironment_Production(t *testing.T) {
	p := ForEnvironment("production")
	if p[Dictionary].Timeout != 5*time.Second || p[Dictionary].MaxRetries != 2 {
		t.Errorf("unexpected production dictionary policy %+v", p[Dictionary])
	}
	if p[Translate].Timeout != 8*time.Second || p[Translate].MaxRetries != 2 {
		t.Errorf("unexpected production translate policy %+v", p[Translate])
	}
	if p[Unsplash].Timeout != 6*time.Second {
		t.Errorf("unsplash should keep its default, got %+v", p[Unsplash])
	}

	dev := ForEnvironment("development")
	if dev[Dictionary].Timeout != 8*time.Second {
		t.Errorf("development should use defaults, got %+v", dev[Dictionary])
	}
}

func TestMerge_OverrideReplacesPolicy(t *testing.T) {
	custom := EndpointPolicy{Timeout: time.Second, BackoffMultiplier: 1}
	merged := Merge(Defaults(), map[string]EndpointPolicy{Dictionary: custom, "weather": custom})
	if merged[Dictionary].RateLimit != nil {
		t.Error("override should replace the whole policy")
	}
	if _, ok := merged["weather"]; !ok {
		t.Error("expected new endpoint to be added")
	}
	if len(merged) != 5 {
		t.Errorf("expected 5 endpoints, got %d", len(merged))
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r, err := NewRegistry(Defaults())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := r.Lookup(Dictionary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Attempts() != 4 {
		t.Errorf("expected 4 attempts, got %d", p.Attempts())
	}

	_, err = r.Lookup("weather")
	if errors.KindOf(err) != errors.KindEndpointUnknown {
		t.Errorf("expected ENDPOINT_UNKNOWN, got %v", err)
	}
	if r.Has("weather") || !r.Has(Pexels) {
		t.Error("Has misreports membership")
	}
}

func TestRegistry_IsImmutable(t *testing.T) {
	src := Defaults()
	r, err := NewRegistry(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	src[Dictionary].Headers["Accept"] = "text/html"

	p, _ := r.Lookup(Dictionary)
	p.Headers["X-Mutated"] = "1"
	p.RateLimit.MaxRequests = 1

	again, _ := r.Lookup(Dictionary)
	if again.Headers["Accept"] != "application/json" {
		t.Error("registry shares header map with construction input")
	}
	if _, ok := again.Headers["X-Mutated"]; ok {
		t.Error("registry shares header map with lookup result")
	}
	if again.RateLimit.MaxRequests != 60 {
		t.Error("registry shares rate limit with lookup result")
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	r, _ := NewRegistry(Defaults())
	names := r.Names()
	want := []string{Dictionary, Pexels, Translate, Unsplash}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, names)
	}
	if r.Len() != 4 {
		t.Errorf("expected 4, got %d", r.Len())
	}
}

func TestNewRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		policies map[string]EndpointPolicy
		field    string
	}{
		{"empty", nil, "no endpoints"},
		{"zero timeout", map[string]EndpointPolicy{"a": {BackoffMultiplier: 1}}, "endpoints.a.timeout"},
		{"negative retries", map[string]EndpointPolicy{"a": {Timeout: time.Second, MaxRetries: -1, BackoffMultiplier: 1}}, "endpoints.a.max_retries"},
		{"multiplier below one", map[string]EndpointPolicy{"a": {Timeout: time.Second, BackoffMultiplier: 0.5}}, "endpoints.a.backoff_multiplier"},
		{"bad rate limit", map[string]EndpointPolicy{"a": {Timeout: time.Second, BackoffMultiplier: 1, RateLimit: &resilience.Limit{}}}, "endpoints.a.rate_limit.max_requests"},
		{"blank name", map[string]EndpointPolicy{" ": {Timeout: time.Second, BackoffMultiplier: 1}}, "endpoint name must not be empty"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry(tc.policies)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("expected error mentioning %q, got %v", tc.field, err)
			}
		})
	}
}

func TestMergeHeaders(t *testing.T) {
	p := EndpointPolicy{Headers: map[string]string{"Accept": "application/json", "X-Key": "a"}}
	h := p.MergeHeaders(map[string]string{"X-Key": "b"})
	if h["Accept"] != "application/json" || h["X-Key"] != "b" {
		t.Errorf("unexpected merged headers %v", h)
	}
	if p.Headers["X-Key"] != "a" {
		t.Error("MergeHeaders must not mutate the policy")
	}
}

func TestLookupErrorIsTyped(t *testing.T) {
	r, _ := NewRegistry(Defaults())
	_, err := r.Lookup("nope")
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Retryable {
		t.Errorf("expected non-retryable *errors.Error, got %#v", err)
	}
}
