package database

import (
	"context"
	"fmt"
	"time"

	"github.com/opalhealth/backend/pkg/common/config"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens a Redis client and verifies connectivity. The caller
// owns the client and is responsible for closing it.
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}
