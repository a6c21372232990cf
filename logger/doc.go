// Package logger provides structured logging on top of zerolog.
//
// A Logger carries the service name and can be narrowed with WithComponent,
// WithFields and WithError. Every outbound subsystem takes a *Logger so
// tests can inject NewNop or a buffer-backed logger from NewWithWriter.
//
//	log := logger.New(&logger.Config{Level: "debug", Format: "json"}, "outbound")
//	log.WithComponent("cache").Info("entry stored", logger.Fields(logger.FieldEndpoint, "dictionary"))
package logger
