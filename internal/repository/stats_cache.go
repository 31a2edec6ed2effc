package repository

import (
	"context"
	"diabetes-ingest-go/internal/model"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	statsCacheKey      = "diabetes:stats:by_class"
	statsGenerationKey = "diabetes:stats:generation"
)

// StatsCache 缓存 /data/stats 的聚合结果。
// 每次 Invalidate 都会递增代数，Set 只在代数未变化时写入，避免查询期间发生的导入被旧结果覆盖。
type StatsCache interface {
	// Get 返回缓存的统计；未命中时 ok 为 false。
	Get(ctx context.Context) (stats *model.ClassStats, ok bool, err error)
	// Generation 返回当前代数，应在查询数据库之前读取。
	Generation(ctx context.Context) (int64, error)
	// Set 仅当代数仍为 gen 时写入；代数已变化时返回 stored=false 且不写入。
	Set(ctx context.Context, gen int64, stats *model.ClassStats) (stored bool, err error)
	Invalidate(ctx context.Context) error
}

type redisStatsCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewStatsCache 创建一个基于 Redis 的 StatsCache。
func NewStatsCache(redisClient *redis.Client, ttl time.Duration) StatsCache {
	return &redisStatsCache{redisClient: redisClient, ttl: ttl}
}

func (c *redisStatsCache) Get(ctx context.Context) (*model.ClassStats, bool, error) {
	data, err := c.redisClient.Get(ctx, statsCacheKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get stats cache: %w", err)
	}
	var stats model.ClassStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal stats cache: %w", err)
	}
	return &stats, true, nil
}

func (c *redisStatsCache) Generation(ctx context.Context) (int64, error) {
	return generation(ctx, c.redisClient)
}

func (c *redisStatsCache) Set(ctx context.Context, gen int64, stats *model.ClassStats) (bool, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return false, err
	}
	stored := false
	err = c.redisClient.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := generation(ctx, tx)
		if err != nil {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, statsCacheKey, data, c.ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, statsGenerationKey)
	// WATCH 之后代数被修改，EXEC 被放弃
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to set stats cache: %w", err)
	}
	return stored, nil
}

func (c *redisStatsCache) Invalidate(ctx context.Context) error {
	_, err := c.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, statsGenerationKey)
		pipe.Del(ctx, statsCacheKey)
		return nil
	})
	return err
}

// getter 同时由 *redis.Client 和 WATCH 中的 *redis.Tx 实现。
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func generation(ctx context.Context, cmd getter) (int64, error) {
	gen, err := cmd.Get(ctx, statsGenerationKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get stats generation: %w", err)
	}
	return gen, nil
}
