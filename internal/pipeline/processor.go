// Package pipeline 定义了异步重新导入任务的处理流程。
package pipeline

import (
	"context"
	"diabetes-ingest-go/internal/apperror"
	"diabetes-ingest-go/internal/service"
	"diabetes-ingest-go/pkg/log"
	"diabetes-ingest-go/pkg/tasks"
)

// Processor 把 Kafka 中的重新导入任务交给 IngestService。
type Processor struct {
	ingestService service.IngestService
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(ingestService service.IngestService) *Processor {
	return &Processor{ingestService: ingestService}
}

// Process 是任务处理的主函数。
// 归档文件本身不合法时重试没有意义，记录日志后视为已处理。
func (p *Processor) Process(ctx context.Context, task tasks.ReingestTask) error {
	log.Infof("[Processor] 开始处理重新导入任务, key: %s, requested_by: %s", task.ArchiveKey, task.RequestedBy)

	result, err := p.ingestService.Reingest(ctx, task.ArchiveKey)
	if err != nil {
		if e := apperror.As(err); e != nil && e.Kind.IsClient() {
			log.Errorf("[Processor] 归档文件 %s 无法导入，放弃任务: %v", task.ArchiveKey, err)
			return nil
		}
		return err
	}

	log.Infof("[Processor] 重新导入完成, key: %s, 写入 %d 条记录", result.ArchiveKey, result.DatabaseRecords)
	return nil
}
