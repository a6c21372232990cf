package component

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
)

type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	health   Health
	log      *[]string
}

func (f *fakeComponent) Name() string { return f.name }
func (f *fakeComponent) Start(context.Context) error {
	if f.log != nil {
		*f.log = append(*f.log, "start:"+f.name)
	}
	return f.startErr
}
func (f *fakeComponent) Stop(context.Context) error {
	if f.log != nil {
		*f.log = append(*f.log, "stop:"+f.name)
	}
	return f.stopErr
}
func (f *fakeComponent) Health(context.Context) Health { return f.health }

type describedComponent struct {
	fakeComponent
}

func (d *describedComponent) Describe() Description {
	return Description{Type: "database", Details: "dsn=cache.db"}
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeComponent{name: "database"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&fakeComponent{name: "database"}); err == nil {
		t.Error("expected duplicate name error")
	}
	if got := r.Get("database"); got == nil || got.Name() != "database" {
		t.Errorf("Get returned %v", got)
	}
	if r.Get("redis") != nil {
		t.Error("expected nil for unregistered component")
	}
	if len(r.All()) != 1 {
		t.Errorf("expected 1 component, got %d", len(r.All()))
	}
}

func TestLifecycleOrder(t *testing.T) {
	var log []string
	r := NewRegistry()
	for _, name := range []string{"database", "outbound", "telemetry"} {
		r.Register(&fakeComponent{name: name, log: &log})
	}

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}

	want := "start:database start:outbound start:telemetry stop:telemetry stop:outbound stop:database"
	if got := strings.Join(log, " "); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestStartAllSkipsStarted(t *testing.T) {
	var log []string
	r := NewRegistry()
	r.Register(&fakeComponent{name: "database", log: &log})
	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	r.Register(&fakeComponent{name: "outbound", log: &log})
	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("second StartAll: %v", err)
	}

	if got := strings.Join(log, " "); got != "start:database start:outbound" {
		t.Errorf("expected each component started once, got %s", got)
	}
}

func TestStartAllFailure(t *testing.T) {
	var log []string
	r := NewRegistry()
	r.Register(&fakeComponent{name: "database", log: &log})
	r.Register(&fakeComponent{name: "redis", startErr: stderrors.New("connection refused"), log: &log})
	r.Register(&fakeComponent{name: "outbound", log: &log})

	err := r.StartAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "redis") {
		t.Fatalf("expected redis start error, got %v", err)
	}

	// only the component that started is stopped
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if got := strings.Join(log, " "); got != "start:database start:redis stop:database" {
		t.Errorf("unexpected lifecycle %s", got)
	}
}

func TestStopAllJoinsErrors(t *testing.T) {
	var log []string
	flush := stderrors.New("flush failed")
	r := NewRegistry()
	r.Register(&fakeComponent{name: "database", stopErr: stderrors.New("close failed"), log: &log})
	r.Register(&fakeComponent{name: "outbound", stopErr: flush, log: &log})
	r.StartAll(context.Background())

	err := r.StopAll(context.Background())
	if !stderrors.Is(err, flush) || !strings.Contains(err.Error(), "close failed") {
		t.Fatalf("expected both errors, got %v", err)
	}
	if got := strings.Join(log[2:], " "); got != "stop:outbound stop:database" {
		t.Errorf("every component must be stopped, got %s", got)
	}

	// a second StopAll is a no-op
	if err := r.StopAll(context.Background()); err != nil {
		t.Errorf("second StopAll: %v", err)
	}
}

func TestHealthAllAndOverall(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeComponent{name: "database", health: Health{Name: "database", Status: StatusHealthy}})
	r.Register(&fakeComponent{name: "outbound", health: Health{Name: "outbound", Status: StatusDegraded, Message: "score 0.50"}})

	results := r.HealthAll(context.Background())
	if len(results) != 2 || results[1].Message != "score 0.50" {
		t.Fatalf("unexpected results %+v", results)
	}
	if Overall(results) != StatusDegraded {
		t.Errorf("expected degraded overall, got %s", Overall(results))
	}

	tests := []struct {
		name    string
		results []Health
		want    HealthStatus
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Health{{Status: StatusHealthy}, {Status: StatusHealthy}}, StatusHealthy},
		{"unhealthy wins", []Health{{Status: StatusDegraded}, {Status: StatusUnhealthy}}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overall(tt.results); got != tt.want {
				t.Errorf("Overall() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeComponent{name: "plain"})
	r.Register(&describedComponent{fakeComponent{name: "database"}})

	descs := r.Describe()
	if len(descs) != 1 {
		t.Fatalf("expected 1 description, got %d", len(descs))
	}
	if descs[0].Name != "database" || descs[0].Details != "dsn=cache.db" {
		t.Errorf("unexpected description %+v", descs[0])
	}
}
