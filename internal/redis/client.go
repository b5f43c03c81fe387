package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/physio-scheduling/internal/config"
)

// ErrNotConfigured is returned when no Redis address is configured.
var ErrNotConfigured = errors.New("redis not configured")

// NewRedisClient connects and pings Redis. Socket timeouts track the lock
// wait so a slow Redis cannot hold a booking longer than the lock allows.
func NewRedisClient(ctx context.Context, cfg config.Config, clientName string) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, ErrNotConfigured
	}

	timeout := cfg.LockWait
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		ClientName:   clientName,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}

	return rdb, nil
}
