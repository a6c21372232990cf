package orchestrator

import (
	"context"
	"time"

	"github.com/kbukum/outbound/cache"
	"github.com/kbukum/outbound/logger"
	"github.com/kbukum/outbound/monitoring"
	"github.com/kbukum/outbound/observability"
)

type options struct {
	log         *logger.Logger
	store       cache.Store
	sink        monitoring.RecordSink
	notifier    monitoring.Notifier
	clock       func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	instruments *observability.Instruments
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithStore enables the durable cache tier on store.
func WithStore(store cache.Store) Option {
	return func(o *options) { o.store = store }
}

// WithRecordSink persists sampled call records.
func WithRecordSink(sink monitoring.RecordSink) Option {
	return func(o *options) { o.sink = sink }
}

// WithNotifier receives alerts whose rules carry a notify action.
func WithNotifier(n monitoring.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock replaces time.Now in every time-dependent part of the client.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithSleep replaces the backoff wait between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithInstruments records OpenTelemetry metrics for every call.
func WithInstruments(inst *observability.Instruments) Option {
	return func(o *options) { o.instruments = inst }
}
