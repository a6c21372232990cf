// Package redis backs the durable cache tier with Redis.
//
// Client wraps go-redis with structured logging and pooled connections.
// EntryStore implements cache.Store: each entry is a JSON string under
// "<prefix>:entry:<key>" and the set "<prefix>:keys" indexes them so the
// durable tier can rebuild its index with ScanAll.
//
//	comp := redis.NewComponent(redis.Config{Enabled: true, Addr: "localhost:6379"}, log)
//	if err := comp.Start(ctx); err != nil { ... }
//	durable, err := cache.NewDurable(ctx, comp.EntryStore(), cacheCfg, log)
package redis
