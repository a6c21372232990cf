package monitoring

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/outbound/validation"
)

// Condition is the metric an AlertRule watches.
type Condition string

const (
	// ConditionErrorRate fires when failed/total exceeds the threshold.
	ConditionErrorRate Condition = "error_rate"
	// ConditionResponseTime fires when the average latency in
	// milliseconds exceeds the threshold.
	ConditionResponseTime Condition = "response_time"
	// ConditionAvailability fires when success/total drops below the threshold.
	ConditionAvailability Condition = "availability"
)

// Severity grades an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ActionType selects how an alert is delivered.
type ActionType string

const (
	ActionLog      ActionType = "log"
	ActionNotify   ActionType = "notify"
	ActionCallback ActionType = "callback"
)

// AlertAction is one delivery step run when a rule fires.
type AlertAction struct {
	Type ActionType `json:"type" validate:"oneof=log notify callback"`
	// Level is the log level for ActionLog; warn when empty.
	Level    string      `json:"level,omitempty"`
	Callback func(Alert) `json:"-"`
}

// AlertRule describes a threshold over an endpoint's windowed metrics.
type AlertRule struct {
	ID               string        `json:"id"`
	Name             string        `json:"name" validate:"required"`
	Condition        Condition     `json:"condition" validate:"oneof=error_rate response_time availability"`
	Threshold        float64       `json:"threshold" validate:"gte=0"`
	EvaluationWindow time.Duration `json:"evaluation_window" validate:"gt=0"`
	// DebounceWindow is how long an open alert suppresses re-notification.
	// Zero uses the engine default.
	DebounceWindow time.Duration `json:"debounce_window" validate:"gte=0"`
	// Endpoints limits the rule; empty means every known endpoint.
	Endpoints []string      `json:"endpoints,omitempty"`
	Enabled   bool          `json:"enabled"`
	Actions   []AlertAction `json:"actions" validate:"dive"`
}

func (r AlertRule) covers(endpoint string) bool {
	return len(r.Endpoints) == 0 || slices.Contains(r.Endpoints, endpoint)
}

// Alert is a fired rule for one endpoint. At most one unresolved alert
// exists per rule and endpoint.
type Alert struct {
	ID          string     `json:"id"`
	RuleID      string     `json:"rule_id"`
	RuleName    string     `json:"rule_name"`
	Endpoint    string     `json:"endpoint"`
	Message     string     `json:"message"`
	Severity    Severity   `json:"severity"`
	Condition   Condition  `json:"condition"`
	Value       float64    `json:"value"`
	Threshold   float64    `json:"threshold"`
	CreatedAt   time.Time  `json:"created_at"`
	LastFiredAt time.Time  `json:"last_fired_at"`
	FireCount   int        `json:"fire_count"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Notifier receives alerts from ActionNotify.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, alert Alert) error

func (f NotifierFunc) Notify(ctx context.Context, alert Alert) error { return f(ctx, alert) }

// DefaultRules returns the built-in rules: a 10% error rate on any
// endpoint, and a 5s average latency on dictionary and translate.
func DefaultRules() []AlertRule {
	return []AlertRule{
		{
			Name:             "High Error Rate",
			Condition:        ConditionErrorRate,
			Threshold:        0.1,
			EvaluationWindow: 5 * time.Minute,
			Enabled:          true,
			Actions:          []AlertAction{{Type: ActionLog, Level: "warn"}},
		},
		{
			Name:             "Slow Response Time",
			Condition:        ConditionResponseTime,
			Threshold:        5000,
			EvaluationWindow: 5 * time.Minute,
			Endpoints:        []string{"dictionary", "translate"},
			Enabled:          true,
			Actions:          []AlertAction{{Type: ActionLog, Level: "info"}},
		},
	}
}

// AddAlertRule validates and installs rule, returning its id.
func (e *Engine) AddAlertRule(rule AlertRule) (string, error) {
	if err := validation.Validate(rule); err != nil {
		return "", fmt.Errorf("alert rule: %w", err)
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.Endpoints = slices.Clone(rule.Endpoints)
	rule.Actions = slices.Clone(rule.Actions)

	e.mu.Lock()
	defer e.mu.Unlock()
	if slices.ContainsFunc(e.rules, func(r AlertRule) bool { return r.ID == rule.ID }) {
		return "", fmt.Errorf("alert rule %s already exists", rule.ID)
	}
	e.rules = append(e.rules, rule)
	return rule.ID, nil
}

// RemoveAlertRule deletes a rule. Alerts it raised are kept.
func (e *Engine) RemoveAlertRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.rules)
	e.rules = slices.DeleteFunc(e.rules, func(r AlertRule) bool { return r.ID == id })
	return len(e.rules) != n
}

// Rules returns the installed rules.
func (e *Engine) Rules() []AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.rules)
}

// ActiveAlerts returns the unresolved alerts, oldest first.
func (e *Engine) ActiveAlerts() []Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Alert, 0)
	for _, a := range e.alerts {
		if !a.Resolved {
			out = append(out, *a)
		}
	}
	return out
}

// Alerts returns every stored alert, oldest first.
func (e *Engine) Alerts() []Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Alert, len(e.alerts))
	for i, a := range e.alerts {
		out[i] = *a
	}
	return out
}

// ResolveAlert marks an open alert resolved. It reports false for unknown
// or already resolved ids.
func (e *Engine) ResolveAlert(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range e.alerts {
		if a.ID == id && !a.Resolved {
			now := e.now()
			a.Resolved = true
			a.ResolvedAt = &now
			return true
		}
	}
	return false
}

// Subscribe returns a channel receiving every fired alert. Sends never
// block: a full channel drops the alert. cancel closes the channel.
func (e *Engine) Subscribe(buffer int) (<-chan Alert, func()) {
	ch := make(chan Alert, max(buffer, 0))
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// CheckAlerts evaluates every enabled rule for every known endpoint.
func (e *Engine) CheckAlerts(ctx context.Context) []Alert {
	e.mu.RLock()
	endpoints := e.endpointsLocked()
	e.mu.RUnlock()

	var fired []Alert
	for _, ep := range endpoints {
		fired = append(fired, e.checkEndpoint(ctx, ep)...)
	}
	return fired
}

type firing struct {
	alert   Alert
	actions []AlertAction
}

// checkEndpoint evaluates the rules covering endpoint and delivers the
// alerts that fired, outside the lock.
func (e *Engine) checkEndpoint(ctx context.Context, endpoint string) []Alert {
	e.mu.Lock()
	now := e.now()
	var pending []firing
	for _, rule := range e.rules {
		if !rule.Enabled || !rule.covers(endpoint) {
			continue
		}
		m := e.metricsLocked(endpoint, rule.EvaluationWindow, now)
		value, crossed := evaluate(rule, m)
		if !crossed {
			continue
		}
		if a, ok := e.fireLocked(rule, endpoint, value, now); ok {
			pending = append(pending, firing{alert: a, actions: rule.Actions})
		}
	}
	e.mu.Unlock()

	out := make([]Alert, 0, len(pending))
	for _, f := range pending {
		e.deliver(ctx, f.alert, f.actions)
		out = append(out, f.alert)
	}
	return out
}

// fireLocked opens an alert or, when one is already open and its debounce
// window has passed, re-fires it. Inside the window nothing happens.
func (e *Engine) fireLocked(rule AlertRule, endpoint string, value float64, now time.Time) (Alert, bool) {
	debounce := rule.DebounceWindow
	if debounce <= 0 {
		debounce = e.cfg.DebounceWindow
	}

	for _, a := range e.alerts {
		if a.Resolved || a.RuleID != rule.ID || a.Endpoint != endpoint {
			continue
		}
		if now.Sub(a.LastFiredAt) < debounce {
			return Alert{}, false
		}
		a.LastFiredAt = now
		a.FireCount++
		a.Value = value
		a.Severity = e.severityLocked(rule, endpoint, now)
		return *a, true
	}

	a := &Alert{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Endpoint:    endpoint,
		Message:     fmt.Sprintf("%s triggered for %s", rule.Name, endpoint),
		Severity:    e.severityLocked(rule, endpoint, now),
		Condition:   rule.Condition,
		Value:       value,
		Threshold:   rule.Threshold,
		CreatedAt:   now,
		LastFiredAt: now,
		FireCount:   1,
	}
	e.alerts = append(e.alerts, a)
	if over := len(e.alerts) - e.cfg.MaxAlerts; over > 0 {
		e.alerts = slices.Delete(e.alerts, 0, over)
	}
	return *a, true
}

func evaluate(rule AlertRule, m Metrics) (float64, bool) {
	switch rule.Condition {
	case ConditionErrorRate:
		v := m.ErrorRate()
		return v, v > rule.Threshold
	case ConditionResponseTime:
		v := float64(m.AverageLatency) / float64(time.Millisecond)
		return v, v > rule.Threshold
	case ConditionAvailability:
		v := m.Availability()
		return v, v < rule.Threshold
	default:
		return 0, false
	}
}

// severityLocked grades against the engine's metrics window rather than
// the rule window.
func (e *Engine) severityLocked(rule AlertRule, endpoint string, now time.Time) Severity {
	m := e.metricsLocked(endpoint, e.cfg.MetricsWindow, now)
	switch {
	case rule.Condition == ConditionErrorRate && m.ErrorRate() > downErrorRate:
		return SeverityCritical
	case rule.Condition == ConditionAvailability && m.Availability() < downErrorRate:
		return SeverityCritical
	case rule.Condition == ConditionResponseTime && m.AverageLatency > downLatency:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

func (e *Engine) deliver(ctx context.Context, alert Alert, actions []AlertAction) {
	for _, act := range actions {
		switch act.Type {
		case ActionLog:
			level := act.Level
			if level == "" {
				level = "warn"
			}
			e.log.Log(level, "Alert: "+alert.Message, map[string]interface{}{
				"rule":     alert.RuleName,
				"endpoint": alert.Endpoint,
				"severity": string(alert.Severity),
				"value":    alert.Value,
			})
		case ActionNotify:
			if e.notifier == nil {
				continue
			}
			if err := e.notifier.Notify(ctx, alert); err != nil {
				e.log.WithError(err).Warn("alert notification failed", map[string]interface{}{"endpoint": alert.Endpoint})
			}
		case ActionCallback:
			if act.Callback != nil {
				e.safely("alert callback", func() { act.Callback(alert) })
			}
		}
	}

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- alert:
		default:
		}
	}
}
