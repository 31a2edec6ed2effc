package model

import (
	"strings"
	"time"
)

const (
	// ArchivePrefix 是原始文件在对象存储中的目录前缀。
	ArchivePrefix = "raw/"
	// archiveTimeLayout 对应 YYYYMMDD_HHMMSS。
	archiveTimeLayout = "20060102_150405"
	// CSVContentType 是归档原始文件时使用的 Content-Type。
	CSVContentType = "text/csv"
)

// ArchiveKey 生成按时间分区的归档键：raw/{YYYYMMDD_HHMMSS}_{文件名}。
// 同一秒内上传同名文件会得到相同的键。
func ArchiveKey(t time.Time, filename string) string {
	return ArchivePrefix + t.Format(archiveTimeLayout) + "_" + filename
}

// FilenameFromArchiveKey 从归档键中还原原始文件名；格式不符时返回去掉前缀后的键。
func FilenameFromArchiveKey(key string) string {
	rest := strings.TrimPrefix(key, ArchivePrefix)
	// 时间戳固定 15 个字符，后跟一个下划线
	if len(rest) > len(archiveTimeLayout)+1 && rest[len(archiveTimeLayout)] == '_' {
		if _, err := time.Parse(archiveTimeLayout, rest[:len(archiveTimeLayout)]); err == nil {
			return rest[len(archiveTimeLayout)+1:]
		}
	}
	return rest
}

// IngestionResult 汇总一次成功的导入，只返回给调用方，不落库。
type IngestionResult struct {
	Filename        string `json:"filename"`
	Records         int    `json:"records"`
	ArchiveKey      string `json:"archive_key"`
	DatabaseRecords int    `json:"database_records"`
}

// IngestionEvent 在导入完成后发送给 Kafka / Elasticsearch 等下游。
type IngestionEvent struct {
	EventID         string    `json:"event_id"`
	Source          string    `json:"source"`
	Filename        string    `json:"filename"`
	Bucket          string    `json:"bucket"`
	ArchiveKey      string    `json:"archive_key"`
	Records         int       `json:"records"`
	DatabaseRecords int       `json:"database_records"`
	IngestedAt      time.Time `json:"ingested_at"`
}

// 事件来源
const (
	SourceUpload   = "upload"
	SourceReingest = "reingest"
)

// NullClassLabel 是 class_label 为 NULL 的行在统计结果中的键。
const NullClassLabel = "null"

// ClassCount 是按 class_label 分组计数的一行结果。
type ClassCount struct {
	ClassLabel *string `gorm:"column:class_label"`
	Count      int64   `gorm:"column:count"`
}

// ClassStats 是 /data/stats 的响应结构。
type ClassStats struct {
	TotalRecords int64            `json:"total_records"`
	ByClass      map[string]int64 `json:"by_class"`
}

// NewClassStats 根据分组计数汇总总数。
func NewClassStats(counts []ClassCount) *ClassStats {
	stats := &ClassStats{ByClass: make(map[string]int64, len(counts))}
	for _, c := range counts {
		label := NullClassLabel
		if c.ClassLabel != nil {
			label = *c.ClassLabel
		}
		stats.ByClass[label] += c.Count
		stats.TotalRecords += c.Count
	}
	return stats
}
