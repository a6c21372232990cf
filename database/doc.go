// Package database persists the durable cache tier and sampled call records
// in SQLite through GORM.
//
// Component opens the database, migrates both tables and exposes the two
// stores once started:
//
//	comp := database.NewComponent(database.Config{Enabled: true, DSN: "outbound.db"}, log)
//	if err := comp.Start(ctx); err != nil { ... }
//	durable, err := cache.NewDurable(ctx, comp.EntryStore(), cacheCfg, log)
//
// The driver defaults to gorm.io/driver/sqlite; WithDriver swaps it.
package database
