package repository

import (
	"context"
	"fmt"
	"time"

	domrepo "EconPulse/internal/domain/repository"
	"EconPulse/pkg/cache"
)

// CacheMarkStore keeps idempotency marks in any cache.Service. With the
// Redis implementation marks survive restarts and are shared by instances.
type CacheMarkStore struct {
	store     cache.Service
	prefix    string
	retention time.Duration
}

// NewCacheMarkStore keeps marks for retention; zero keeps them forever.
func NewCacheMarkStore(store cache.Service, retention time.Duration) *CacheMarkStore {
	return &CacheMarkStore{store: store, prefix: "mark", retention: retention}
}

var _ domrepo.MarkStore = (*CacheMarkStore)(nil)

func (s *CacheMarkStore) HasSent(ctx context.Context, key string) (bool, error) {
	ok, err := s.store.Exists(ctx, cache.Key(s.prefix, key))
	if err != nil {
		return false, fmt.Errorf("mark exists %s: %w", key, err)
	}
	return ok, nil
}

// MarkSent never overwrites: the first writer's timestamp wins.
func (s *CacheMarkStore) MarkSent(ctx context.Context, key string, at time.Time) error {
	if _, err := s.store.SetNX(ctx, cache.Key(s.prefix, key), at.UTC().Format(time.RFC3339Nano), s.retention); err != nil {
		return fmt.Errorf("mark write %s: %w", key, err)
	}
	return nil
}

// SentAt returns when key was first marked.
func (s *CacheMarkStore) SentAt(ctx context.Context, key string) (time.Time, error) {
	var raw string
	if err := s.store.Get(ctx, cache.Key(s.prefix, key), &raw); err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, raw)
}
