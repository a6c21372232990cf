package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OutcomeSuccess is the outcome label of a successful request. Failed
// requests are labelled with their error kind.
const OutcomeSuccess = "success"

// RequestResult describes how a traced request ended.
type RequestResult struct {
	StatusCode int
	Cached     bool
	CacheTier  string
	RetryCount int
	// ErrorKind is empty on success.
	ErrorKind string
	Err       error
}

// Outcome returns the label used for the requests counter.
func (r RequestResult) Outcome() string {
	if r.ErrorKind == "" {
		return OutcomeSuccess
	}
	return r.ErrorKind
}

// RequestSpan ties the outbound.request span to the request instruments.
type RequestSpan struct {
	span        trace.Span
	instruments *Instruments
	endpoint    string
	start       time.Time
}

// StartRequest opens the request span. instruments may be nil.
func StartRequest(ctx context.Context, instruments *Instruments, endpoint, method string) (context.Context, *RequestSpan) {
	ctx, span := StartSpan(ctx, SpanRequest,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrEndpoint, endpoint),
			attribute.String(AttrMethod, method),
		),
	)
	return ctx, &RequestSpan{
		span:        span,
		instruments: instruments,
		endpoint:    endpoint,
		start:       time.Now(),
	}
}

// End closes the span and records the request instruments.
func (r *RequestSpan) End(ctx context.Context, res RequestResult) {
	r.span.SetAttributes(
		attribute.Bool(AttrCached, res.Cached),
		attribute.Int(AttrRetryCount, res.RetryCount),
	)
	if res.CacheTier != "" {
		r.span.SetAttributes(attribute.String(AttrCacheTier, res.CacheTier))
	}
	if res.StatusCode != 0 {
		r.span.SetAttributes(attribute.Int(AttrStatusCode, res.StatusCode))
	}
	if res.ErrorKind != "" {
		r.span.SetAttributes(attribute.String(AttrErrorKind, res.ErrorKind))
		if res.Err != nil {
			r.span.RecordError(res.Err)
			r.span.SetStatus(codes.Error, res.Err.Error())
		} else {
			r.span.SetStatus(codes.Error, res.ErrorKind)
		}
	}
	r.span.End()

	r.instruments.RecordRequest(ctx, r.endpoint, res.Outcome(), res.Cached, time.Since(r.start))
}

// Duration returns the time since the span started.
func (r *RequestSpan) Duration() time.Duration {
	return time.Since(r.start)
}
