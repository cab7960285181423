package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"liveclass-backend/pkg/config"
	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/metrics"
)

// ErrDegraded is returned by every command issued while Redis is degraded
var ErrDegraded = errors.New("redis is in degraded mode")

// RedisClient is the Redis connection shared by the presence, push token and
// event stores. Once a health check fails the client is degraded: commands
// fail with ErrDegraded instead of waiting out their timeouts, until a later
// check succeeds.
type RedisClient struct {
	*redis.Client

	degraded atomic.Bool
	checkMu  sync.Mutex
	metrics  *metrics.Metrics
}

// NewRedisDB creates a client from cfg. No connection is made until the
// first command.
func NewRedisDB(cfg *config.RedisConfig, m *metrics.Metrics) *RedisClient {
	r := &RedisClient{
		Client: redis.NewClient(&redis.Options{
			Addr:         cfg.Addr(),
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
			DialTimeout:  cfg.Timeout,
		}),
		metrics: m,
	}
	r.AddHook(degradedHook{r})
	return r
}

// StartHealthCheck pings Redis every interval until ctx is done
func (r *RedisClient) StartHealthCheck(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.HealthCheck(ctx); err != nil {
					logger.Warn("Redis health check failed", zap.Error(err))
				}
			}
		}
	}()
}

// HealthCheck pings Redis and enters or leaves degraded mode accordingly
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	r.checkMu.Lock()
	defer r.checkMu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.Ping(pingCtx).Err(); err != nil {
		r.setDegraded(true)
		return fmt.Errorf("redis health check failed: %w", err)
	}
	r.setDegraded(false)
	return nil
}

func (r *RedisClient) IsDegraded() bool {
	return r.degraded.Load()
}

func (r *RedisClient) setDegraded(degraded bool) {
	if !r.degraded.CompareAndSwap(!degraded, degraded) {
		return
	}
	r.metrics.SetRedisDegraded(degraded)
	if degraded {
		logger.Warn("Redis entered degraded mode")
	} else {
		logger.Info("Redis recovered from degraded mode")
	}
}

// degradedHook short-circuits commands while the client is degraded.
// PING always goes through so a health check can clear the flag.
type degradedHook struct {
	r *RedisClient
}

func (h degradedHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h degradedHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if h.r.IsDegraded() && cmd.Name() != "ping" {
			err := fmt.Errorf("%s skipped: %w", cmd.Name(), ErrDegraded)
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (h degradedHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if !h.r.IsDegraded() {
			return next(ctx, cmds)
		}
		for _, cmd := range cmds {
			cmd.SetErr(ErrDegraded)
		}
		return ErrDegraded
	}
}
