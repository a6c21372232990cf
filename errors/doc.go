// Package errors defines the typed failure returned by every outbound call.
//
// A failure is classified once into a flat Kind. Retryability and the
// status-code mapping are table lookups, so the retry loop and the metrics
// engine agree on what a given failure means.
package errors
