package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/outbound/logger"
)

// Instrument names.
const (
	MetricRequests           = "outbound.requests"
	MetricRequestDuration    = "outbound.request.duration"
	MetricRetries            = "outbound.retries"
	MetricCircuitTransitions = "outbound.circuit.transitions"
	MetricCacheLookups       = "outbound.cache.lookups"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string `mapstructure:"service_name"`
	// ServiceVersion is the version of the service.
	ServiceVersion string `mapstructure:"service_version"`
	// Environment is the deployment environment (dev, staging, prod).
	Environment string `mapstructure:"environment"`
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string `mapstructure:"endpoint"`
	// Insecure allows insecure connections (for development).
	Insecure bool `mapstructure:"insecure"`
	// Interval is the metric export interval.
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter installs a global meter provider exporting over OTLP/HTTP.
// The returned provider should be shut down on exit.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Instruments holds the request-path instruments. A nil *Instruments
// records nothing.
type Instruments struct {
	requests     metric.Int64Counter
	duration     metric.Float64Histogram
	retries      metric.Int64Counter
	transitions  metric.Int64Counter
	cacheLookups metric.Int64Counter
}

// NewInstruments creates the instruments on the given meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	requests, err := meter.Int64Counter(MetricRequests,
		metric.WithDescription("Completed outbound requests by endpoint and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricRequests, err)
	}

	duration, err := meter.Float64Histogram(MetricRequestDuration,
		metric.WithDescription("Duration of outbound requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricRequestDuration, err)
	}

	retries, err := meter.Int64Counter(MetricRetries,
		metric.WithDescription("Retries issued after a failed attempt"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricRetries, err)
	}

	transitions, err := meter.Int64Counter(MetricCircuitTransitions,
		metric.WithDescription("Circuit breaker state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricCircuitTransitions, err)
	}

	cacheLookups, err := meter.Int64Counter(MetricCacheLookups,
		metric.WithDescription("Cache lookups by tier and result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricCacheLookups, err)
	}

	return &Instruments{
		requests:     requests,
		duration:     duration,
		retries:      retries,
		transitions:  transitions,
		cacheLookups: cacheLookups,
	}, nil
}

// RecordRequest records one completed request.
func (i *Instruments) RecordRequest(ctx context.Context, endpoint, outcome string, cached bool, d time.Duration) {
	if i == nil {
		return
	}
	i.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrEndpoint, endpoint),
		attribute.String(AttrOutcome, outcome),
		attribute.Bool(AttrCached, cached),
	))
	i.duration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String(AttrEndpoint, endpoint),
		attribute.String(AttrOutcome, outcome),
	))
}

// RecordRetry counts one retry for endpoint.
func (i *Instruments) RecordRetry(ctx context.Context, endpoint string, attempt int) {
	if i == nil {
		return
	}
	i.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrEndpoint, endpoint),
		attribute.String("attempt", strconv.Itoa(attempt)),
	))
}

// RecordTransition counts a breaker moving from one state to another.
func (i *Instruments) RecordTransition(ctx context.Context, endpoint, from, to string) {
	if i == nil {
		return
	}
	i.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrEndpoint, endpoint),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordCacheLookup counts a lookup against one cache tier.
func (i *Instruments) RecordCacheLookup(ctx context.Context, tier string, hit bool) {
	if i == nil {
		return
	}
	i.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.Bool("hit", hit),
	))
}
