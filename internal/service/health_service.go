package service

import (
	"context"
	"diabetes-ingest-go/internal/model"
	"sync"
	"time"
)

const statusHealthy = "healthy"

// HealthService 汇总各依赖的可达性。
type HealthService interface {
	// Check 从不返回错误，依赖不可达时对应字段为 "unhealthy: ..."。
	Check(ctx context.Context) model.HealthReport
}

type healthService struct {
	objectStore Pinger
	database    Pinger
	timeout     time.Duration
}

// NewHealthService 创建一个新的 HealthService 实例。
func NewHealthService(objectStore, database Pinger, timeout time.Duration) HealthService {
	return &healthService{objectStore: objectStore, database: database, timeout: timeout}
}

func (s *healthService) Check(ctx context.Context) model.HealthReport {
	report := model.HealthReport{API: statusHealthy}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		report.ObjectStoreStatus = s.probe(ctx, s.objectStore)
	}()
	go func() {
		defer wg.Done()
		report.DBStatus = s.probe(ctx, s.database)
	}()
	wg.Wait()
	return report
}

func (s *healthService) probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return "unhealthy: not configured"
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := p.Ping(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return statusHealthy
}
