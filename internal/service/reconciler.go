package service

import (
	"context"
	"diabetes-ingest-go/internal/metrics"
	"diabetes-ingest-go/pkg/log"
	"fmt"
	"time"
)

// Reconciler 在进程启动时确保外部依赖处于可用状态。可重复执行。
type Reconciler struct {
	buckets        BucketManager
	attemptTimeout time.Duration
	metrics        *metrics.Registry
}

// NewReconciler 创建 Reconciler。attemptTimeout 限制单次尝试的耗时，m 可以为 nil。
func NewReconciler(buckets BucketManager, attemptTimeout time.Duration, m *metrics.Registry) *Reconciler {
	return &Reconciler{buckets: buckets, attemptTimeout: attemptTimeout, metrics: m}
}

// EnsureReady 检查每个存储桶是否存在，不存在则创建。
// 整轮检查最多执行 maxAttempts 次，每次之间固定等待 backoff；用尽后返回最后一次的错误。
func (r *Reconciler) EnsureReady(ctx context.Context, buckets []string, maxAttempts int, backoff time.Duration) error {
	return r.retry(ctx, "buckets", maxAttempts, backoff, func(ctx context.Context) error {
		for _, bucket := range buckets {
			exists, err := r.buckets.BucketExists(ctx, bucket)
			if err != nil {
				return fmt.Errorf("check bucket %s: %w", bucket, err)
			}
			if exists {
				continue
			}
			if err := r.buckets.MakeBucket(ctx, bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
			log.Infof("[Reconciler] 已创建存储桶: %s", bucket)
		}
		return nil
	})
}

// EnsureSchema 以同样的重试策略执行表结构迁移。
func (r *Reconciler) EnsureSchema(ctx context.Context, m Migrator, maxAttempts int, backoff time.Duration) error {
	return r.retry(ctx, "schema", maxAttempts, backoff, m.Migrate)
}

func (r *Reconciler) retry(ctx context.Context, step string, maxAttempts int, backoff time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if r.metrics != nil {
			r.metrics.StartupAttempts.WithLabelValues(step).Inc()
		}
		err = r.attempt(ctx, fn)
		if err == nil {
			log.Infof("[Reconciler] %s 就绪 (第 %d 次尝试)", step, attempt)
			return nil
		}
		log.Warnf("[Reconciler] %s 第 %d/%d 次尝试失败: %v", step, attempt, maxAttempts, err)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	log.Errorf("[Reconciler] %s 在 %d 次尝试后仍未就绪: %v", step, maxAttempts, err)
	return fmt.Errorf("%s not ready after %d attempts: %w", step, maxAttempts, err)
}

func (r *Reconciler) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.attemptTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()
	return fn(ctx)
}
