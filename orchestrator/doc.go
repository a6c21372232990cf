// Package orchestrator issues calls to named external endpoints through the
// resilience stack: two-tier cache, fixed-window rate limiter, bulkhead,
// circuit breaker and retry with exponential backoff. Every call produces
// exactly one monitoring record and either a Response or an *errors.Error.
//
//	client, err := orchestrator.New(ctx, orchestrator.DefaultConfig(), transport,
//		orchestrator.WithLogger(log),
//		orchestrator.WithStore(db.EntryStore()),
//	)
//	resp, err := client.Request(ctx, "dictionary", "https://api.example.com/words/hi", orchestrator.RequestOptions{})
//
// Client implements component.Component; Start launches the durable cache
// cleanup sweep and the monitoring loops.
package orchestrator
