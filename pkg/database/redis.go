package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"robo-chat-go/internal/config"
	"robo-chat-go/pkg/log"
)

// NewRedis 创建 Redis 客户端并测试连接
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	log.Infow("Redis client connected successfully", "addr", cfg.Addr, "db", cfg.DB)
	return rdb, nil
}
