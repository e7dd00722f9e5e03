package database

import (
	"context"
	"fmt"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/config"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient 创建Redis客户端并测试连接（BFF 会话存储）
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}
