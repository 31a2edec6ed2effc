package service

import (
	"context"
	"diabetes-ingest-go/internal/model"
	"errors"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sampleCSV = "ID,No_Pation,Gender,AGE,Urea,Cr,HbA1c,Chol,TG,HDL,LDL,VLDL,BMI,CLASS\n" +
	"502,17975,F,50,4.7,46,4.9,4.2,0.9,2.4,1.4,0.5,24,N\n" +
	"735,34221,M,26,4.5,62,4.9,3.7,1.4,1.1,2.1,0.6,23,N\n" +
	"420,47975,F,50,4.7,46,4.9,4.2,0.9,2.4,1.4,0.5,24,Y\n"

var errUnavailable = errors.New("connection refused")

// fakeObjectStore 是内存中的对象存储，同时实现 BucketManager 和 Pinger。
type fakeObjectStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	buckets  map[string]bool
	puts     int
	makes    int
	putErr   error
	getErr   error
	existErr error
	// 前 failExists 次 BucketExists 返回 existErr，-1 表示一直失败
	failExists int
	pingErr    error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects: map[string][]byte{},
		types:   map[string]string{},
		buckets: map[string]bool{},
	}
}

func (f *fakeObjectStore) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[bucket+"/"+key] = append([]byte(nil), data...)
	f.types[bucket+"/"+key] = contentType
	return nil
}

func (f *fakeObjectStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("The specified key does not exist.")
	}
	return data, nil
}

func (f *fakeObjectStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existErr != nil && f.failExists != 0 {
		if f.failExists > 0 {
			f.failExists--
		}
		return false, f.existErr
	}
	return f.buckets[bucket], nil
}

func (f *fakeObjectStore) MakeBucket(ctx context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.makes++
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjectStore) Ping(ctx context.Context) error {
	return f.pingErr
}

// fakeRecordRepository 记录调用，可以注入错误。
type fakeRecordRepository struct {
	mu        sync.Mutex
	rows      []model.DiabetesRecord
	appends   int
	appendErr error
	counts    []model.ClassCount
	countErr  error
	countCall int
}

func (f *fakeRecordRepository) AppendBatch(ctx context.Context, records []model.DiabetesRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends++
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append(f.rows, records...)
	return nil
}

func (f *fakeRecordRepository) CountByClass(ctx context.Context) ([]model.ClassCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCall++
	return f.counts, f.countErr
}

func (f *fakeRecordRepository) Migrate(ctx context.Context) error { return nil }

func (f *fakeRecordRepository) Ping(ctx context.Context) error { return f.countErr }

// fakeStatsCache 按代数语义模拟 Redis 缓存。
type fakeStatsCache struct {
	mu          sync.Mutex
	stats       *model.ClassStats
	getErr      error
	gen         int64
	sets        int
	invalidated int
}

func (c *fakeStatsCache) Get(ctx context.Context) (*model.ClassStats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	return c.stats, c.stats != nil, nil
}

func (c *fakeStatsCache) Generation(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *fakeStatsCache) Set(ctx context.Context, gen int64, stats *model.ClassStats) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false, nil
	}
	c.sets++
	c.stats = stats
	return true, nil
}

func (c *fakeStatsCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	c.gen++
	c.stats = nil
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	name   string
	err    error
	events []model.IngestionEvent
}

func (s *fakeSink) Publish(ctx context.Context, event model.IngestionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *fakeSink) Name() string { return s.name }

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
