// Package monitoring records every outbound call and derives rolling
// per-endpoint metrics, health classifications and alerts from them.
//
// The Engine keeps the most recent calls in a fixed-size ring buffer.
// Metrics and health are pure aggregations over that buffer; alert rules
// are evaluated on a periodic tick and immediately after severe failures.
// Alerts stay open until ResolveAlert is called.
//
// A sampled subset of records can be persisted through a RecordSink.
package monitoring
