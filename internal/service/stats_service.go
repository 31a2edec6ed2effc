package service

import (
	"context"
	"diabetes-ingest-go/internal/apperror"
	"diabetes-ingest-go/internal/model"
	"diabetes-ingest-go/internal/repository"
	"diabetes-ingest-go/pkg/log"
	"time"
)

// StatsService 提供按 class_label 汇总的统计。
type StatsService interface {
	ClassStats(ctx context.Context) (*model.ClassStats, error)
}

type statsService struct {
	records repository.RecordRepository
	cache   repository.StatsCache
	timeout time.Duration
}

// NewStatsService 创建 StatsService。cache 为 nil 时每次都直接查询数据库。
func NewStatsService(records repository.RecordRepository, cache repository.StatsCache, timeout time.Duration) StatsService {
	return &statsService{records: records, cache: cache, timeout: timeout}
}

// ClassStats 优先读缓存；缓存出错时退回数据库查询，查询失败返回 StorageRead 错误。
// 查询结果只在查询期间没有发生失效时写回缓存。
func (s *statsService) ClassStats(ctx context.Context) (*model.ClassStats, error) {
	cacheable := false
	var gen int64
	if s.cache != nil {
		stats, ok, err := s.cache.Get(ctx)
		if err != nil {
			log.Warnf("[StatsService] 读取统计缓存失败: %v", err)
		} else if ok {
			return stats, nil
		}
		// 代数必须在查询之前读取
		if gen, err = s.cache.Generation(ctx); err != nil {
			log.Warnf("[StatsService] 读取缓存代数失败: %v", err)
		} else {
			cacheable = true
		}
	}

	queryCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	counts, err := s.records.CountByClass(queryCtx)
	if err != nil {
		log.Errorf("[StatsService] 统计查询失败: %v", err)
		return nil, apperror.StorageRead("failed to query record statistics", err)
	}
	stats := model.NewClassStats(counts)

	if cacheable {
		stored, err := s.cache.Set(ctx, gen, stats)
		if err != nil {
			log.Warnf("[StatsService] 写入统计缓存失败: %v", err)
		} else if !stored {
			log.Infof("[StatsService] 查询期间统计已失效，跳过缓存写入")
		}
	}
	return stats, nil
}
