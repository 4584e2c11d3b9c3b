package database

import (
	"context"
	"fmt"
	"time"

	"connect-service/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConnect returns nil when REDIS_HOST is unset; the profile cache is optional.
func RedisConnect(ctx context.Context, log *zap.Logger) (*redis.Client, error) {
	if config.Config("REDIS_HOST") == "" {
		log.Info("redis not configured, profile cache disabled")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf(
			"%s:%s",
			config.Config("REDIS_HOST"),
			config.Config("REDIS_PORT"),
		),
		Password: config.Config("REDIS_PASSWORD"),
		DB:       config.Int("REDIS_DB", 0),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	log.Info("connection opened to redis", zap.String("addr", client.Options().Addr))
	return client, nil
}
