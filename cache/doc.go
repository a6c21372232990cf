// Package cache implements the two-tier response cache.
//
// Memory is the volatile first tier. Durable is the bounded second tier; it
// keeps its entries in a Store (SQLite, Redis or MemoryStore) so they
// survive a restart. TwoTier reads memory first, falls back to durable and
// backfills memory on a durable hit.
//
// Both tiers treat an entry as expired once now − StoredAt > TTL and never
// return it as a hit.
package cache
