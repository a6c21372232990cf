package bootstrap

import (
	"context"
	"time"

	"github.com/kbukum/outbound/component"
	"github.com/kbukum/outbound/logger"
)

// ComponentSummary joins a component's description with its health.
type ComponentSummary struct {
	Name    string
	Type    string
	Details string
	Status  component.HealthStatus
	Message string
}

// Summary is the startup report for an App.
type Summary struct {
	Service    string
	Version    string
	Overall    component.HealthStatus
	Components []ComponentSummary
}

// Summary collects descriptions and health from the registry.
func (a *App[C]) Summary(ctx context.Context) Summary {
	s := Summary{Service: a.Name, Version: a.Version}
	health := make([]component.Health, 0)
	for _, c := range a.Components.All() {
		h := c.Health(ctx)
		health = append(health, h)

		cs := ComponentSummary{Name: c.Name(), Status: h.Status, Message: h.Message}
		if d, ok := c.(component.Describable); ok {
			desc := d.Describe()
			cs.Type, cs.Details = desc.Type, desc.Details
			if desc.Name != "" {
				cs.Name = desc.Name
			}
		}
		s.Components = append(s.Components, cs)
	}
	s.Overall = component.Overall(health)
	return s
}

// Log writes one line per component and a closing line with the totals.
func (s Summary) Log(log *logger.Logger, startup time.Duration) {
	for _, c := range s.Components {
		fields := logger.Fields("component", c.Name, "type", c.Type, "status", string(c.Status))
		if c.Details != "" {
			fields["details"] = c.Details
		}
		if c.Message != "" {
			fields["message"] = c.Message
		}
		log.Info("Component ready", fields)
	}
	log.Info("Startup complete", logger.Fields(
		"service", s.Service,
		"version", s.Version,
		"components", len(s.Components),
		"overall", string(s.Overall),
		"startup", startup.String(),
	))
}
