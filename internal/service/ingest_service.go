package service

import (
	"context"
	"diabetes-ingest-go/internal/apperror"
	"diabetes-ingest-go/internal/config"
	"diabetes-ingest-go/internal/metrics"
	"diabetes-ingest-go/internal/model"
	"diabetes-ingest-go/internal/repository"
	"diabetes-ingest-go/internal/schema"
	"diabetes-ingest-go/pkg/log"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stage 是单次导入所处的阶段。
type Stage string

const (
	StageReceived  Stage = "received"
	StageValidated Stage = "validated"
	StageArchived  Stage = "archived"
	StageLoaded    Stage = "loaded"
	StageCompleted Stage = "completed"
)

// eventTimeout 限制单个事件下游的发送时间。
var eventTimeout = 5 * time.Second

// IngestService 接口定义了 CSV 导入相关的业务操作。
type IngestService interface {
	// Ingest 校验上传的文件，归档原始字节，再把规范化后的记录追加到数据库。
	Ingest(ctx context.Context, filename string, raw []byte) (*model.IngestionResult, error)
	// Reingest 从归档中读取原始文件并重新写入数据库，不会再次归档。
	Reingest(ctx context.Context, archiveKey string) (*model.IngestionResult, error)
}

type ingestService struct {
	store        ObjectStore
	records      repository.RecordRepository
	cache        repository.StatsCache
	sinks        []EventSink
	metrics      *metrics.Registry
	bucket       string
	storeTimeout time.Duration
	dbTimeout    time.Duration
	now          func() time.Time
}

// Option 配置 IngestService 的可选依赖。
type Option func(*ingestService)

// WithClock 替换生成归档键使用的时钟。
func WithClock(now func() time.Time) Option {
	return func(s *ingestService) { s.now = now }
}

// WithStatsCache 在每次成功写入后使统计缓存失效。
func WithStatsCache(cache repository.StatsCache) Option {
	return func(s *ingestService) { s.cache = cache }
}

// WithEventSinks 注册导入完成事件的下游。
func WithEventSinks(sinks ...EventSink) Option {
	return func(s *ingestService) { s.sinks = append(s.sinks, sinks...) }
}

// WithMetrics 记录导入结果与耗时。
func WithMetrics(m *metrics.Registry) Option {
	return func(s *ingestService) { s.metrics = m }
}

// NewIngestService 创建一个新的 IngestService 实例。
func NewIngestService(store ObjectStore, records repository.RecordRepository, minioCfg config.MinIOConfig, dbCfg config.DatabaseConfig, opts ...Option) IngestService {
	s := &ingestService{
		store:        store,
		records:      records,
		bucket:       minioCfg.BucketRaw,
		storeTimeout: minioCfg.Timeout,
		dbTimeout:    dbCfg.Timeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest 依次执行 Received → Validated → Archived → Loaded → Completed。
// 客户端输入错误在任何存储写入之前返回；归档成功后的数据库失败不会回滚归档。
func (s *ingestService) Ingest(ctx context.Context, filename string, raw []byte) (*model.IngestionResult, error) {
	start := s.now()
	log.Infof("[IngestService] 收到上传文件: %s, 大小: %d bytes", filename, len(raw))

	if !isCSV(filename) {
		return nil, s.fail(StageReceived, filename, start,
			apperror.UnsupportedMediaType(fmt.Sprintf("only .csv files are accepted, got %q", filename)))
	}

	table, rows, err := s.validate(raw)
	if err != nil {
		return nil, s.fail(StageReceived, filename, start, err)
	}

	// 从这里开始不再受请求取消影响，只受各存储的超时约束
	key := model.ArchiveKey(start, filename)
	putCtx, cancel := detached(ctx, s.storeTimeout)
	err = s.store.PutObject(putCtx, s.bucket, key, raw, model.CSVContentType)
	cancel()
	if err != nil {
		return nil, s.fail(StageValidated, filename, start,
			apperror.StorageWrite(fmt.Sprintf("failed to archive %s to bucket %s", key, s.bucket), err))
	}
	log.Infof("[IngestService] 原始文件已归档: bucket=%s, key=%s", s.bucket, key)

	return s.load(ctx, model.SourceUpload, filename, key, table, rows, start)
}

func (s *ingestService) Reingest(ctx context.Context, archiveKey string) (*model.IngestionResult, error) {
	start := s.now()
	filename := model.FilenameFromArchiveKey(archiveKey)
	log.Infof("[IngestService] 开始重新导入: bucket=%s, key=%s", s.bucket, archiveKey)

	getCtx, cancel := detached(ctx, s.storeTimeout)
	raw, err := s.store.GetObject(getCtx, s.bucket, archiveKey)
	cancel()
	if err != nil {
		return nil, s.fail(StageReceived, filename, start,
			apperror.StorageRead(fmt.Sprintf("failed to read %s from bucket %s", archiveKey, s.bucket), err))
	}

	table, rows, err := s.validate(raw)
	if err != nil {
		return nil, s.fail(StageReceived, filename, start, err)
	}
	return s.load(ctx, model.SourceReingest, filename, archiveKey, table, rows, start)
}

// validate 解析并规范化 CSV，然后把每一行转换为带类型的记录。
func (s *ingestService) validate(raw []byte) (*schema.Table, []model.DiabetesRecord, error) {
	table, normalized, err := schema.ValidateAndNormalize(raw)
	if err != nil {
		return nil, nil, err
	}
	rows := make([]model.DiabetesRecord, 0, len(normalized))
	for i, fields := range normalized {
		rec, err := model.NewDiabetesRecord(fields)
		if err != nil {
			// 行号从 1 开始，不含表头
			return nil, nil, apperror.MalformedInput(fmt.Sprintf("row %d", i+1), err)
		}
		rows = append(rows, rec)
	}
	return table, rows, nil
}

// load 以单个批次追加记录，随后使缓存失效并发送完成事件。
func (s *ingestService) load(ctx context.Context, source, filename, key string, table *schema.Table, rows []model.DiabetesRecord, start time.Time) (*model.IngestionResult, error) {
	loadCtx, cancel := detached(ctx, s.dbTimeout)
	err := s.records.AppendBatch(loadCtx, rows)
	cancel()
	if err != nil {
		log.Warnf("[IngestService] 数据库写入失败，原始文件保留在 %s，可重新导入", key)
		return nil, s.fail(StageArchived, filename, start,
			apperror.StorageWrite(fmt.Sprintf("failed to load %d records into %s", len(rows), model.DiabetesRecord{}.TableName()), err))
	}

	result := &model.IngestionResult{
		Filename:        filename,
		Records:         table.Len(),
		ArchiveKey:      key,
		DatabaseRecords: len(rows),
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
			log.Warnf("[IngestService] 统计缓存失效失败: %v", err)
		}
	}

	s.publish(ctx, model.IngestionEvent{
		EventID:         uuid.NewString(),
		Source:          source,
		Filename:        filename,
		Bucket:          s.bucket,
		ArchiveKey:      key,
		Records:         result.Records,
		DatabaseRecords: result.DatabaseRecords,
		IngestedAt:      s.now(),
	})

	if s.metrics != nil {
		s.metrics.IngestTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
		s.metrics.RecordsLoaded.Add(float64(result.DatabaseRecords))
		s.metrics.IngestDuration.Observe(s.now().Sub(start).Seconds())
	}
	log.Infow("[IngestService] 导入完成",
		"filename", filename,
		"source", source,
		"archive_key", key,
		"records", result.Records,
		"database_records", result.DatabaseRecords,
	)
	return result, nil
}

// publish 并发发送事件到所有下游，失败只记录日志。
func (s *ingestService) publish(ctx context.Context, event model.IngestionEvent) {
	if len(s.sinks) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, sink := range s.sinks {
		wg.Add(1)
		go func(sink EventSink) {
			defer wg.Done()
			pubCtx, cancel := detached(ctx, eventTimeout)
			defer cancel()
			if err := sink.Publish(pubCtx, event); err != nil {
				log.Errorf("[IngestService] 发送导入事件到 %s 失败: %v", sink.Name(), err)
			}
		}(sink)
	}
	wg.Wait()
}

// fail 记录失败所在的阶段并原样返回错误。
func (s *ingestService) fail(stage Stage, filename string, start time.Time, err error) error {
	kind := "internal"
	if e := apperror.As(err); e != nil {
		kind = e.Kind.Code()
	}
	if s.metrics != nil {
		s.metrics.IngestTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		s.metrics.FailuresTotal.WithLabelValues(string(stage), kind).Inc()
		s.metrics.IngestDuration.Observe(s.now().Sub(start).Seconds())
	}
	log.Errorw("[IngestService] 导入失败",
		"filename", filename,
		"stage", string(stage),
		"kind", kind,
		"error", err,
	)
	return err
}

func isCSV(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".csv")
}

// detached 返回一个不随父 context 取消、但受超时约束的 context。d <= 0 表示不设超时。
func detached(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
