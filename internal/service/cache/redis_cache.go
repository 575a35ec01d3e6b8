package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBytesCache shares fetched payloads between instances.
type RedisBytesCache struct {
	cli    *redis.Client
	prefix string
}

func NewRedisBytesCache(cli *redis.Client, prefix string) *RedisBytesCache {
	return &RedisBytesCache{cli: cli, prefix: prefix}
}

func (r *RedisBytesCache) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.cli.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisBytesCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.cli.Set(ctx, r.prefix+key, value, ttl).Err()
}

var _ BytesCache = (*RedisBytesCache)(nil)
