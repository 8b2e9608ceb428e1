package services

import (
	"context"
	"fmt"

	"github.com/fyerfyer/doc-summarizer/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// SummarizeTaskHandler 文档摘要任务处理器
// 在工作者进程中执行完整的解析、分块、摘要流程
type SummarizeTaskHandler struct {
	docService *DocumentService
	logger     *logrus.Logger
}

// NewSummarizeTaskHandler 创建文档摘要任务处理器
func NewSummarizeTaskHandler(docService *DocumentService, logger *logrus.Logger) *SummarizeTaskHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &SummarizeTaskHandler{
		docService: docService,
		logger:     logger,
	}
}

// GetTaskTypes 返回此处理器支持的任务类型
func (h *SummarizeTaskHandler) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{taskqueue.TaskSummarizeDocument}
}

// ProcessTask 处理文档摘要任务
func (h *SummarizeTaskHandler) ProcessTask(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.SummarizeDocumentPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}

	if payload.DocumentID == "" {
		return fmt.Errorf("%w: missing document id", taskqueue.ErrInvalidPayload)
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": payload.DocumentID,
		"file_name":   payload.FileName,
	}).Info("Processing summarize task")

	// 确保服务初始化完成
	if err := h.docService.Init(); err != nil {
		return err
	}

	// 执行解析、分块、摘要流程
	result, chunkCount, err := h.docService.executeSummarize(ctx, payload.DocumentID, payload.FilePath)
	if err != nil {
		h.docService.failDocument(ctx, payload.DocumentID, err.Error())
		return err
	}

	// 保存摘要
	if err := h.docService.saveSummary(payload.DocumentID, result); err != nil {
		h.docService.failDocument(ctx, payload.DocumentID, fmt.Sprintf("failed to save summary: %v", err))
		return fmt.Errorf("failed to save summary: %w", err)
	}

	// 更新文档状态
	if err := h.docService.statusManager.MarkAsCompleted(ctx, payload.DocumentID, chunkCount); err != nil {
		h.logger.WithError(err).Error("Failed to mark document as completed")
	}

	// 将摘要结果写入任务记录
	taskResult := taskqueue.SummarizeDocumentResult{
		DocumentID: payload.DocumentID,
		Summary:    result.Summary,
		ChunkCount: result.ChunkCount,
		Model:      result.Model,
		TokenCount: result.TokenCount,
	}
	if err := h.docService.repo.UpdateTaskStatus(ctx, task.ID, taskqueue.StatusCompleted, taskResult, ""); err != nil {
		h.logger.WithError(err).Warn("Failed to record task result")
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": payload.DocumentID,
		"chunk_count": chunkCount,
	}).Info("Summarize task completed")

	return nil
}

// BatchTaskHandler 批量摘要任务处理器
type BatchTaskHandler struct {
	batchService *BatchService
	queue        taskqueue.Queue
	logger       *logrus.Logger
}

// NewBatchTaskHandler 创建批量摘要任务处理器
func NewBatchTaskHandler(batchService *BatchService, queue taskqueue.Queue, logger *logrus.Logger) *BatchTaskHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &BatchTaskHandler{
		batchService: batchService,
		queue:        queue,
		logger:       logger,
	}
}

// GetTaskTypes 返回此处理器支持的任务类型
func (h *BatchTaskHandler) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{taskqueue.TaskSummarizeBatch}
}

// ProcessTask 处理批量摘要任务
// 单个文件失败不会中止其他文件的处理
func (h *BatchTaskHandler) ProcessTask(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.BatchSummarizePayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}

	if len(payload.Paths) == 0 {
		return fmt.Errorf("%w: no paths in batch", taskqueue.ErrInvalidPayload)
	}

	h.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"count":   len(payload.Paths),
	}).Info("Processing batch summarize task")

	result := h.batchService.SummarizeObjects(ctx, payload.Paths)

	// 将批量结果写入任务记录
	if err := h.queue.UpdateTaskStatus(ctx, task.ID, taskqueue.StatusCompleted, result, ""); err != nil {
		h.logger.WithError(err).Warn("Failed to record batch task result")
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Info("Batch summarize task completed")

	return nil
}

// StartWorker 创建并启动任务工作者
// 注册所有摘要相关的任务处理器
func StartWorker(queue *taskqueue.RedisQueue, cfg *taskqueue.Config, docService *DocumentService, batchService *BatchService, logger *logrus.Logger) (taskqueue.Worker, error) {
	worker := taskqueue.NewRedisWorker(queue, cfg)

	summarizeHandler := NewSummarizeTaskHandler(docService, logger)
	for _, taskType := range summarizeHandler.GetTaskTypes() {
		worker.RegisterHandler(taskType, summarizeHandler)
	}

	if batchService != nil {
		batchHandler := NewBatchTaskHandler(batchService, queue, logger)
		for _, taskType := range batchHandler.GetTaskTypes() {
			worker.RegisterHandler(taskType, batchHandler)
		}
	}

	if err := worker.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	return worker, nil
}
