package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC)
	c := NewTTLCache().WithClock(func() time.Time { return now })

	c.Set("a", 1, time.Minute)
	c.Set("forever", 2, 0)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("forever")
	assert.True(t, ok)
}

func TestTTLCacheSweep(t *testing.T) {
	now := time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC)
	c := NewTTLCache().WithClock(func() time.Time { return now })
	c.Set("a", 1, time.Second)
	c.Set("b", 1, time.Hour)

	now = now.Add(time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestRedisBytesCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisBytesCache(cli, "econpulse:http:")
	ctx := context.Background()

	_, ok, err := c.GetBytes(ctx, "ff")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetBytes(ctx, "ff", []byte(`[]`), time.Minute))
	b, ok, err := c.GetBytes(ctx, "ff")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`[]`), b)
	assert.True(t, mr.Exists("econpulse:http:ff"))
}
