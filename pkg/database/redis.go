package database

import (
	"context"
	"fmt"

	"offshore-assist-go/internal/config"
	"offshore-assist-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// InitRedis 初始化 Redis 客户端连接
func InitRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}
