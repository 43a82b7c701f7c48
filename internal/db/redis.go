package db

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/notifyhub/delivery-queue/internal/config"
)

// ConnectRedis creates a Redis client and verifies connectivity.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}

	return client, nil
}
