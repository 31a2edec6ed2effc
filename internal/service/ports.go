// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"diabetes-ingest-go/internal/model"
)

// ObjectStore 是导入流程对对象存储的最小依赖。
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// BucketManager 用于启动阶段确保存储桶存在。
type BucketManager interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string) error
}

// Pinger 报告某个依赖是否可达。
type Pinger interface {
	Ping(ctx context.Context) error
}

// Migrator 创建或补齐表结构。
type Migrator interface {
	Migrate(ctx context.Context) error
}

// EventSink 接收导入完成事件。
type EventSink interface {
	Publish(ctx context.Context, event model.IngestionEvent) error
	Name() string
}
