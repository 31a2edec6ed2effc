// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"diabetes-ingest-go/internal/config"
	"diabetes-ingest-go/internal/model"
	"diabetes-ingest-go/pkg/log"
	"diabetes-ingest-go/pkg/tasks"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// TaskProcessor 处理一条重新导入任务，使消费者与具体实现解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ReingestTask) error
}

// Producer 把导入完成事件写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.BrokerList()...),
		Topic:                  cfg.EventsTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	log.Infof("Kafka 生产者初始化成功, topic: %s", cfg.EventsTopic)
	return &Producer{writer: w}
}

// Publish 发送一个导入完成事件，以归档键作为消息 key。
func (p *Producer) Publish(ctx context.Context, event model.IngestionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ArchiveKey),
		Value: value,
	})
}

// Name 用于日志中标识事件下游。
func (p *Producer) Name() string { return "kafka" }

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者处理重新导入任务，直到 ctx 被取消。
// 失败的任务在本进程内按间隔重试，达到 cfg.MaxAttempts 后提交 offset 放弃。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, rdb *redis.Client) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.BrokerList(),
		Topic:    cfg.ReingestTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.ReingestTopic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.ReingestTask
		if err := json.Unmarshal(m.Value, &task); err != nil || task.ArchiveKey == "" {
			log.Errorf("无法解析重新导入任务: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(r, m)
			continue
		}

		if !processWithRetry(ctx, processor, task, rdb, cfg.MaxAttempts) {
			// ctx 已取消，不提交，重启后重新消费
			return
		}
		commit(r, m)
	}
}

// retryDelay 是同一任务两次处理之间的间隔。
var retryDelay = 5 * time.Second

// processWithRetry 处理任务直到成功或失败次数达到上限，两种情况都返回 true 表示可以提交。
// 失败次数优先记录在 Redis，服务重启后继续累计；rdb 为 nil 时只在本进程内计数。
func processWithRetry(ctx context.Context, processor TaskProcessor, task tasks.ReingestTask, rdb *redis.Client, maxAttempts int64) bool {
	var local int64
	for {
		err := processor.Process(ctx, task)
		if err == nil {
			log.Infof("重新导入任务处理成功: key=%s", task.ArchiveKey)
			if rdb != nil {
				_ = rdb.Del(context.Background(), attemptsKey(task.ArchiveKey)).Err()
			}
			return true
		}
		log.Errorf("重新导入任务失败: key=%s, error: %v", task.ArchiveKey, err)

		local++
		attempts := countAttempt(ctx, rdb, task.ArchiveKey, local)
		if attempts >= maxAttempts {
			log.Errorf("重新导入任务失败 %d 次，提交 offset 终止重试: key=%s", attempts, task.ArchiveKey)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(retryDelay):
		}
	}
}

func attemptsKey(archiveKey string) string {
	return fmt.Sprintf("kafka:reingest:attempts:%s", archiveKey)
}

// countAttempt 累加失败次数；Redis 不可用时退回本进程内的计数。
func countAttempt(ctx context.Context, rdb *redis.Client, archiveKey string, local int64) int64 {
	if rdb == nil {
		return local
	}
	key := attemptsKey(archiveKey)
	attempts, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return local
	}
	_ = rdb.Expire(ctx, key, 24*time.Hour).Err()
	return attempts
}

func commit(r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(context.Background(), m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
