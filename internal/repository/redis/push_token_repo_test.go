package redis

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveclass-backend/internal/database"
	"liveclass-backend/pkg/config"
	"liveclass-backend/pkg/metrics"
	"liveclass-backend/pkg/push"
)

// degradedClient returns a client whose health check has already failed
func degradedClient(t *testing.T) *database.RedisClient {
	t.Helper()
	client := database.NewRedisDB(&config.RedisConfig{
		Host:     "127.0.0.1",
		Port:     1,
		PoolSize: 1,
		Timeout:  200 * time.Millisecond,
	}, metrics.NewMetricsWithRegistry("test", prometheus.NewRegistry()))
	t.Cleanup(func() { _ = client.Close() })

	require.Error(t, client.HealthCheck(context.Background()))
	require.True(t, client.IsDegraded())
	return client
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "push:token:abc", tokenKey("abc"))
	assert.Equal(t, "push:user:student-1:tokens", userTokensKey("student-1"))
}

func TestPushTokenRepository_Degraded(t *testing.T) {
	repo := NewPushTokenRepository(degradedClient(t))
	ctx := context.Background()

	token := &push.Token{UserID: "student-1", Token: "device-token-1", Type: push.TokenTypeFCM}
	err := repo.Store(ctx, token)
	assert.ErrorContains(t, err, "failed to store token")
	assert.NotEqual(t, "", token.ID.String())
	assert.NotZero(t, token.CreatedAt)

	_, err = repo.GetByToken(ctx, "device-token-1")
	assert.ErrorContains(t, err, "degraded")

	_, err = repo.GetByUserID(ctx, "student-1")
	assert.ErrorContains(t, err, "failed to get user tokens")

	assert.Error(t, repo.MarkInactive(ctx, "device-token-1"))
	assert.Error(t, repo.DeleteByUserID(ctx, "student-1"))
}

func TestPushService_SkipsUnreadableUsers(t *testing.T) {
	provider := &push.LogProvider{}
	svc := push.NewService(provider, NewPushTokenRepository(degradedClient(t)))

	result, err := svc.SendToUsers(context.Background(), push.MeetingNotification("t", "b", "meeting_started", "ROOM", "class-7"), []string{"a", "b"})

	require.NoError(t, err)
	assert.Zero(t, result.SuccessCount)
	assert.Zero(t, provider.Sent())
}
