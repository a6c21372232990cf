// Package observability wires OpenTelemetry tracing and metrics into the
// request path.
//
// Setup:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("outbound"))
//	defer tp.Shutdown(ctx)
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("outbound"))
//	defer mp.Shutdown(ctx)
//
// Per request:
//
//	inst, err := observability.NewInstruments(observability.Meter("outbound"))
//	ctx, rs := observability.StartRequest(ctx, inst, "dictionary", "GET")
//	defer rs.End(ctx, observability.RequestResult{StatusCode: 200})
//
// Without an installed provider the global no-op providers are used.
package observability
