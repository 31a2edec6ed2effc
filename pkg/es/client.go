// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"diabetes-ingest-go/internal/config"
	"diabetes-ingest-go/internal/model"
	"diabetes-ingest-go/pkg/log"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// auditMapping 是导入审计索引的映射。
const auditMapping = `{
	"mappings": {
		"properties": {
			"event_id": { "type": "keyword" },
			"source": { "type": "keyword" },
			"filename": { "type": "keyword" },
			"bucket": { "type": "keyword" },
			"archive_key": { "type": "keyword" },
			"records": { "type": "integer" },
			"database_records": { "type": "integer" },
			"ingested_at": { "type": "date" }
		}
	}
}`

// AuditSink 为每次完成的导入写入一条审计文档。
type AuditSink struct {
	client    *elasticsearch.Client
	indexName string
}

// NewAuditSink 初始化 Elasticsearch 客户端。不会连接服务端。
func NewAuditSink(cfg config.ElasticsearchConfig) (*AuditSink, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: strings.Split(cfg.Addresses, ","),
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 Elasticsearch 客户端失败: %w", err)
	}
	return &AuditSink{client: client, indexName: cfg.IndexName}, nil
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它。可重复执行。
func (s *AuditSink) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.indexName}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引 '%s' 时收到意外的状态码: %d", s.indexName, res.StatusCode)
	}

	res, err = s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithBody(strings.NewReader(auditMapping)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", s.indexName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.indexName, res.String())
	}

	log.Infof("索引 '%s' 创建成功", s.indexName)
	return nil
}

// Publish 以事件 ID 作为文档 ID 写入审计索引。
func (s *AuditSink) Publish(ctx context.Context, event model.IngestionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      s.indexName,
		DocumentID: event.EventID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("写入审计文档失败: %s", res.String())
	}
	return nil
}

// Name 用于日志中标识事件下游。
func (s *AuditSink) Name() string { return "elasticsearch" }
