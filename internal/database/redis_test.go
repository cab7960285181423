package database

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveclass-backend/pkg/config"
	"liveclass-backend/pkg/metrics"
)

// unreachable points at a closed local port so every command fails fast
func unreachable(t *testing.T) *RedisClient {
	t.Helper()
	client := NewRedisDB(&config.RedisConfig{
		Host:     "127.0.0.1",
		Port:     1,
		PoolSize: 1,
		Timeout:  200 * time.Millisecond,
	}, metrics.NewMetricsWithRegistry("test", prometheus.NewRegistry()))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestHealthCheck_EntersDegradedMode(t *testing.T) {
	client := unreachable(t)
	require.False(t, client.IsDegraded())

	err := client.HealthCheck(context.Background())

	assert.Error(t, err)
	assert.True(t, client.IsDegraded())
}

func TestDegraded_CommandsFailFast(t *testing.T) {
	client := unreachable(t)
	client.setDegraded(true)
	ctx := context.Background()

	assert.ErrorIs(t, client.Get(ctx, "k").Err(), ErrDegraded)
	assert.ErrorIs(t, client.Set(ctx, "k", "v", time.Minute).Err(), ErrDegraded)
	assert.ErrorIs(t, client.Publish(ctx, "c", "m").Err(), ErrDegraded)
	assert.ErrorContains(t, client.SRem(ctx, "k", "m").Err(), "srem skipped")

	members, err := client.SMembers(ctx, "k").Result()
	assert.ErrorIs(t, err, ErrDegraded)
	assert.Empty(t, members)

	cmds, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, "k", "m")
		pipe.Expire(ctx, "k", time.Minute)
		return nil
	})
	assert.ErrorIs(t, err, ErrDegraded)
	for _, cmd := range cmds {
		assert.ErrorIs(t, cmd.Err(), ErrDegraded)
	}
}

func TestDegraded_PingStillReachesServer(t *testing.T) {
	client := unreachable(t)
	client.setDegraded(true)

	err := client.Ping(context.Background()).Err()

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDegraded)
}
