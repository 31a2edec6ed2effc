package database

import (
	"context"
	"diabetes-ingest-go/internal/config"
	"diabetes-ingest-go/pkg/log"
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedis 创建 Redis 客户端。Addr 为空时返回 nil，表示不启用缓存。
// 连接失败只记录警告，缓存是可选依赖。
func NewRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		log.Info("未配置 Redis，统计缓存已禁用")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warnf("Redis 暂不可达 (%s): %v", cfg.Addr, err)
	} else {
		log.Info("Redis client connected successfully")
	}
	return rdb
}
