package counter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ledgersync/internal/pkg/env"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       13,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: %v", err)
	}
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestCounters_RecordAndSnapshot(t *testing.T) {
	c := New(newTestRedis(t))
	ctx := context.Background()

	c.RecordDelivery(ctx, "completed")
	c.RecordDelivery(ctx, "completed")
	c.RecordDelivery(ctx, "failed")
	c.RecordEntity(ctx, "Customer", "processed")
	c.RecordEntity(ctx, "Customer", "failed")
	c.RecordEntity(ctx, "Invoice", "processed")

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"completed": 2, "failed": 1}, snap.Deliveries)
	assert.Equal(t, int64(1), snap.Entities["Customer"]["failed"])
	assert.Equal(t, int64(1), snap.Entities["Invoice"]["processed"])

	drained, err := c.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), drained.Deliveries["completed"])

	after, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, after.Deliveries)
}

func TestCounters_NilSafe(t *testing.T) {
	var c *Counters
	assert.NotPanics(t, func() {
		c.RecordDelivery(context.Background(), "completed")
		New(nil).RecordEntity(context.Background(), "Customer", "processed")
	})
}
