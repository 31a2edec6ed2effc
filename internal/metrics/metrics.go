// Package metrics 维护导入流水线的 Prometheus 指标，使用独立的 Registry。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 导入结果
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Registry 持有服务自有的 Prometheus 注册表及全部指标。
type Registry struct {
	reg             *prometheus.Registry
	IngestTotal     *prometheus.CounterVec
	FailuresTotal   *prometheus.CounterVec
	RecordsLoaded   prometheus.Counter
	StartupAttempts *prometheus.CounterVec
	IngestDuration  prometheus.Histogram
}

// NewRegistry 创建并注册全部指标，不使用全局默认注册表。
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	ingestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_requests_total",
		Help: "Ingestion attempts by outcome.",
	}, []string{"outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_failures_total",
		Help: "Failed ingestions by pipeline stage and error kind.",
	}, []string{"stage", "kind"})
	recordsLoaded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_records_loaded_total",
		Help: "Rows appended to the processed table.",
	})
	startup := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "startup_reconcile_attempts_total",
		Help: "Startup reconciliation attempts by step.",
	}, []string{"step"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(ingestTotal, failures, recordsLoaded, startup, duration)
	return &Registry{
		reg:             r,
		IngestTotal:     ingestTotal,
		FailuresTotal:   failures,
		RecordsLoaded:   recordsLoaded,
		StartupAttempts: startup,
		IngestDuration:  duration,
	}
}

// Handler 返回 /metrics 的 HTTP 处理器。
func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
