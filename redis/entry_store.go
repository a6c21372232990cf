package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/outbound/cache"
)

// expiryGrace keeps entries in Redis a little past their logical expiry so
// the durable tier sees and counts the expiry itself.
const expiryGrace = time.Minute

// EntryStore is a cache.Store keeping each entry as a JSON string plus a
// set indexing every stored key.
type EntryStore struct {
	client  *Client
	entries *TypedStore[cache.Entry]
	index   string
}

var _ cache.Store = (*EntryStore)(nil)

// NewEntryStore creates a store under prefix.
func NewEntryStore(client *Client, prefix string) *EntryStore {
	return &EntryStore{
		client:  client,
		entries: NewTypedStore[cache.Entry](client, prefix+":entry"),
		index:   prefix + ":keys",
	}
}

func (s *EntryStore) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	e, err := s.entries.Load(ctx, key)
	if err != nil {
		return cache.Entry{}, false, err
	}
	if e == nil {
		return cache.Entry{}, false, nil
	}
	return *e, true, nil
}

func (s *EntryStore) Put(ctx context.Context, e cache.Entry) error {
	if err := s.entries.Save(ctx, e.Key, &e, e.TTL+expiryGrace); err != nil {
		return err
	}
	if err := s.client.Unwrap().SAdd(ctx, s.index, e.Key).Err(); err != nil {
		return fmt.Errorf("index cache key: %w", err)
	}
	return nil
}

func (s *EntryStore) Delete(ctx context.Context, key string) error {
	if err := s.entries.Delete(ctx, key); err != nil {
		return err
	}
	if err := s.client.Unwrap().SRem(ctx, s.index, key).Err(); err != nil {
		return fmt.Errorf("unindex cache key: %w", err)
	}
	return nil
}

func (s *EntryStore) Clear(ctx context.Context) error {
	keys, err := s.keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.entries.Delete(ctx, k); err != nil {
			return err
		}
	}
	if err := s.client.Del(ctx, s.index); err != nil {
		return fmt.Errorf("clear cache index: %w", err)
	}
	return nil
}

// ScanAll loads every indexed entry and drops index members whose entry
// Redis already expired.
func (s *EntryStore) ScanAll(ctx context.Context) ([]cache.Entry, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}
	found, missing, err := s.entries.LoadMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		members := make([]interface{}, len(missing))
		for i, k := range missing {
			members[i] = k
		}
		if err := s.client.Unwrap().SRem(ctx, s.index, members...).Err(); err != nil {
			return nil, fmt.Errorf("prune cache index: %w", err)
		}
	}
	return found, nil
}

func (s *EntryStore) keys(ctx context.Context) ([]string, error) {
	keys, err := s.client.Unwrap().SMembers(ctx, s.index).Result()
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}
	return keys, nil
}

// Count returns the number of indexed keys. Keys Redis has already
// expired stay counted until the next ScanAll prunes them.
func (s *EntryStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.Unwrap().SCard(ctx, s.index).Result()
	if err != nil {
		return 0, fmt.Errorf("count cache keys: %w", err)
	}
	return n, nil
}
