// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"diabetes-ingest-go/internal/model"

	"gorm.io/gorm"
)

// RecordRepository 接口定义了 diabetes_processed 表相关的数据持久化操作。
type RecordRepository interface {
	// AppendBatch 在单个事务内追加一次请求的全部记录。
	AppendBatch(ctx context.Context, records []model.DiabetesRecord) error
	// CountByClass 按 class_label 分组计数。
	CountByClass(ctx context.Context) ([]model.ClassCount, error)
	// Migrate 创建或补齐表结构，可重复执行。
	Migrate(ctx context.Context) error
	// Ping 检查数据库是否可达。
	Ping(ctx context.Context) error
}

// recordRepository 是 RecordRepository 接口的 GORM 实现。
type recordRepository struct {
	db        *gorm.DB
	batchSize int
}

// NewRecordRepository 创建一个新的 RecordRepository 实例。
func NewRecordRepository(db *gorm.DB, batchSize int) RecordRepository {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &recordRepository{db: db, batchSize: batchSize}
}

// AppendBatch 批量插入记录。分批只是为了控制单条 INSERT 的参数数量，
// 所有分批共享同一个事务，任一批失败则整个请求的写入回滚。
func (r *recordRepository) AppendBatch(ctx context.Context, records []model.DiabetesRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(records, r.batchSize).Error
	})
}

// CountByClass 执行 SELECT class_label, COUNT(*) ... GROUP BY class_label。
func (r *recordRepository) CountByClass(ctx context.Context) ([]model.ClassCount, error) {
	var counts []model.ClassCount
	err := r.db.WithContext(ctx).
		Model(&model.DiabetesRecord{}).
		Select("class_label, COUNT(*) AS count").
		Group("class_label").
		Scan(&counts).Error
	return counts, err
}

// Migrate 自动迁移 diabetes_processed 表。
func (r *recordRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&model.DiabetesRecord{})
}

// Ping 通过底层 sql.DB 检查连接。
func (r *recordRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
