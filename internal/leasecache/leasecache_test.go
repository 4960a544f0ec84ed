package leasecache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(rdb)
}

func TestHeartbeatThenAlive(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	alive, err := c.Alive(ctx, "jobmon:distributor_instance:1")
	require.NoError(t, err)
	require.False(t, alive, "lease should not exist before the first heartbeat")

	require.NoError(t, c.Heartbeat(ctx, "jobmon:distributor_instance:1", time.Minute))

	alive, err = c.Alive(ctx, "jobmon:distributor_instance:1")
	require.NoError(t, err)
	require.True(t, alive)
}

func TestLeaseExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewFromClient(rdb)
	ctx := context.Background()

	require.NoError(t, c.Heartbeat(ctx, "jobmon:distributor_instance:2", time.Second))
	mr.FastForward(2 * time.Second)

	alive, err := c.Alive(ctx, "jobmon:distributor_instance:2")
	require.NoError(t, err)
	require.False(t, alive, "lease should have expired")
}
