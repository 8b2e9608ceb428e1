package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/doc-summarizer/internal/document"
	"github.com/fyerfyer/doc-summarizer/internal/models"
	"github.com/fyerfyer/doc-summarizer/internal/repository"
	"github.com/fyerfyer/doc-summarizer/pkg/storage"
	"github.com/fyerfyer/doc-summarizer/pkg/taskqueue"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// DocumentService 文档服务
// 负责协调文档上传、解析、分块、摘要和入库
type DocumentService struct {
	storage       storage.Storage               // 文件存储服务
	splitter      document.Splitter             // 文本分块器
	summarySvc    *SummaryService               // 摘要服务
	repo          repository.DocumentRepository // 文档元数据存储
	statusManager *DocumentStatusManager        // 文档状态管理器
	taskQueue     taskqueue.Queue               // 任务队列
	asyncEnabled  bool                          // 是否启用异步处理
	timeout       time.Duration                 // 处理超时时间
	logger        *logrus.Logger                // 日志记录器
}

// DocumentOption 文档服务配置选项
type DocumentOption func(*DocumentService)

// NewDocumentService 创建一个新的文档服务
func NewDocumentService(
	storage storage.Storage,
	splitter document.Splitter,
	summarySvc *SummaryService,
	opts ...DocumentOption,
) *DocumentService {
	// 创建服务实例
	srv := &DocumentService{
		storage:      storage,
		splitter:     splitter,
		summarySvc:   summarySvc,
		timeout:      time.Minute * 5, // 默认超时时间
		logger:       logrus.New(),    // 默认日志记录器
		asyncEnabled: false,           // 默认不启用异步处理
	}

	// 应用配置选项
	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithTimeout 设置处理超时时间
func WithTimeout(timeout time.Duration) DocumentOption {
	return func(s *DocumentService) {
		s.timeout = timeout
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) DocumentOption {
	return func(s *DocumentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDocumentRepository 设置文档仓储
func WithDocumentRepository(repo repository.DocumentRepository) DocumentOption {
	return func(s *DocumentService) {
		s.repo = repo
	}
}

// WithStatusManager 设置状态管理器
func WithStatusManager(manager *DocumentStatusManager) DocumentOption {
	return func(s *DocumentService) {
		s.statusManager = manager
	}
}

// WithTaskQueue 设置任务队列
func WithTaskQueue(queue taskqueue.Queue) DocumentOption {
	return func(s *DocumentService) {
		s.taskQueue = queue
		s.asyncEnabled = queue != nil
	}
}

// WithAsyncProcessing 设置是否启用异步处理
func WithAsyncProcessing(enabled bool) DocumentOption {
	return func(s *DocumentService) {
		s.asyncEnabled = enabled
	}
}

// Init 初始化文档服务
// 确保必要的依赖都已设置
func (s *DocumentService) Init() error {
	// 如果没有设置仓储，创建默认仓储
	if s.repo == nil {
		s.repo = repository.NewDocumentRepository()
	}

	// 如果没有设置状态管理器，创建默认状态管理器
	if s.statusManager == nil {
		s.statusManager = NewDocumentStatusManager(s.repo, s.logger)
	}

	return nil
}

// UploadDocument 保存上传的文件并创建文档记录
func (s *DocumentService) UploadDocument(ctx context.Context, reader io.Reader, filename string) (*models.Document, error) {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return nil, err
	}

	// 检查文件格式是否受支持
	if document.DetectFormat(filename) == document.Unknown {
		return nil, document.ErrUnsupportedFormat
	}

	// 保存文件到存储
	fileInfo, err := s.storage.Save(reader, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	// 创建文档记录
	if err := s.statusManager.MarkAsUploaded(ctx, fileInfo.ID, filename, fileInfo.Path, fileInfo.Size); err != nil {
		// 入库失败时清理已保存的文件
		if delErr := s.storage.Delete(fileInfo.ID); delErr != nil {
			s.logger.WithError(delErr).Warn("Failed to clean up file after record creation failure")
		}
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	return s.statusManager.GetDocument(ctx, fileInfo.ID)
}

// ProcessDocument 处理文档(解析、分块、摘要、入库)
func (s *DocumentService) ProcessDocument(ctx context.Context, fileID string, filePath string) error {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":   fileID,
		"file_path": filePath,
	}).Info("Starting document processing")

	// 检查输入参数
	if fileID == "" {
		return errors.New("fileID cannot be empty")
	}
	if filePath == "" {
		return errors.New("filePath cannot be empty")
	}

	// 如果启用异步处理并且任务队列已配置，使用任务队列处理
	if s.asyncEnabled && s.taskQueue != nil {
		return s.processDocumentAsync(ctx, fileID, filePath)
	}

	// 否则，使用同步方式处理
	return s.processDocumentSync(ctx, fileID, filePath)
}

// processDocumentAsync 异步处理文档
// 将任务加入队列并立即返回
func (s *DocumentService) processDocumentAsync(ctx context.Context, fileID string, filePath string) error {
	s.logger.WithFields(logrus.Fields{
		"file_id":   fileID,
		"file_path": filePath,
	}).Info("Enqueuing document for summarization")

	// 更新文档状态为处理中
	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as processing")
		// 继续处理，不中断
	}

	// 创建摘要任务载荷
	fileName := filepath.Base(filePath)
	fileType := strings.TrimPrefix(filepath.Ext(fileName), ".")

	cfg := s.summarySvc.Summarizer().Config()
	payload := taskqueue.SummarizeDocumentPayload{
		DocumentID: fileID,
		FilePath:   filePath,
		FileName:   fileName,
		FileType:   fileType,
		MinLength:  cfg.MinLength,
		MaxLength:  cfg.MaxLength,
		Metadata: map[string]string{
			"source":     "api",
			"created_by": "document_service",
		},
	}

	// 创建任务
	taskID, err := s.repo.CreateTask(ctx, taskqueue.TaskSummarizeDocument, fileID, payload)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to create summarize task: %v", err))
		return fmt.Errorf("failed to create summarize task: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"file_id": fileID,
		"task_id": taskID,
	}).Info("Summarize task created successfully")

	return nil
}

// processDocumentSync 同步处理文档
// 直接在当前进程中完成解析、分块、摘要和入库
// 任何一步失败都不会保留部分结果
func (s *DocumentService) processDocumentSync(ctx context.Context, fileID string, filePath string) error {
	// 设置上下文超时
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// 更新文档状态为处理中
	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as processing")
		// 继续处理，不中断
	}

	result, chunkCount, err := s.executeSummarize(ctx, fileID, filePath)
	if err != nil {
		s.failDocument(ctx, fileID, err.Error())
		return err
	}

	// 保存摘要
	if err := s.saveSummary(fileID, result); err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to save summary: %v", err))
		return fmt.Errorf("failed to save summary: %w", err)
	}

	// 文档处理完成，更新状态
	if err := s.statusManager.MarkAsCompleted(ctx, fileID, chunkCount); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as completed")
		// 虽然状态更新失败，但摘要已保存，所以不返回错误
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":     fileID,
		"chunk_count": chunkCount,
	}).Info("Document summarization completed successfully")

	return nil
}

// executeSummarize 执行解析、分块、摘要流程
// 返回摘要结果和分块数量
func (s *DocumentService) executeSummarize(ctx context.Context, fileID string, filePath string) (*SummaryResult, int, error) {
	// 解析文档内容
	if err := s.updateProgress(ctx, fileID, 10, models.StageExtracting); err != nil {
		s.logger.WithError(err).Warn("Failed to update document progress")
	}

	content, err := s.parseDocument(filePath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse document: %w", err)
	}

	// 文本分块
	if err := s.updateProgress(ctx, fileID, 20, models.StageChunking); err != nil {
		s.logger.WithError(err).Warn("Failed to update document progress")
	}

	chunks, err := s.splitter.Split(content)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to split content: %w", err)
	}
	if len(chunks) == 0 {
		return nil, 0, errors.New("document contains no text")
	}

	// 逐块摘要，进度从20%推进到90%
	if err := s.updateProgress(ctx, fileID, 20, models.StageSummarizing); err != nil {
		s.logger.WithError(err).Warn("Failed to update document progress")
	}

	result, err := s.summarySvc.SummarizeChunks(ctx, chunks, func(done, total int) {
		progress := 20 + int(float64(done)/float64(total)*70)
		if err := s.updateProgress(ctx, fileID, progress, models.StageSummarizing); err != nil {
			s.logger.WithError(err).Warn("Failed to update document progress")
		}
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to summarize document: %w", err)
	}

	return result, len(chunks), nil
}

// parseDocument 解析文档内容
func (s *DocumentService) parseDocument(filePath string) (string, error) {
	s.logger.WithField("file_path", filePath).Debug("Parsing document")

	// 首先尝试从存储获取文件
	fileID := filepath.Base(filePath)
	// 移除扩展名
	fileID = strings.TrimSuffix(fileID, filepath.Ext(fileID))

	// 尝试获取文件
	reader, err := s.storage.Get(fileID)
	if err != nil {
		s.logger.WithError(err).Debug("Failed to get file directly, trying with path")
		// 尝试将整个路径作为ID
		reader, err = s.storage.Get(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to get file from storage: %w", err)
		}
	}
	defer reader.Close()

	// 创建解析器
	parser, err := document.ParserFactory(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create parser: %w", err)
	}

	// 直接从reader解析文档
	content, err := parser.ParseReader(reader, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to parse document: %w", err)
	}

	return content, nil
}

// saveSummary 保存摘要结果到数据库
func (s *DocumentService) saveSummary(fileID string, result *SummaryResult) error {
	metadata := datatypes.JSON([]byte(fmt.Sprintf(
		`{"summarized_chunks":%d,"skipped_chunks":%d}`,
		result.SummarizedChunks, result.SkippedChunks,
	)))

	return s.repo.SaveSummary(&models.DocumentSummary{
		DocumentID: fileID,
		Summary:    result.Summary,
		ChunkCount: result.ChunkCount,
		Model:      result.Model,
		TokenCount: result.TokenCount,
		Metadata:   metadata,
	})
}

// updateProgress 更新文档进度，文档不在处理中状态时忽略
func (s *DocumentService) updateProgress(ctx context.Context, fileID string, progress int, stage models.ProcessStage) error {
	return s.statusManager.UpdateProgress(ctx, fileID, progress, stage)
}

// GetSummary 获取文档的摘要
func (s *DocumentService) GetSummary(ctx context.Context, fileID string) (*models.DocumentSummary, error) {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return nil, err
	}

	// 先确认文档存在
	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return nil, err
	}

	// 未完成的文档没有摘要
	if doc.Status != models.DocStatusCompleted {
		return nil, fmt.Errorf("document %s is not completed: %w", fileID, models.ErrSummaryNotFound)
	}

	return s.repo.GetSummary(fileID)
}

// DeleteDocument 删除文档及其相关数据
func (s *DocumentService) DeleteDocument(ctx context.Context, fileID string) error {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return err
	}

	s.logger.WithField("file_id", fileID).Info("Deleting document")

	// 1. 从存储中删除文件
	if err := s.storage.Delete(fileID); err != nil {
		// 文件可能已被删除，记录错误但不中断流程
		s.logger.WithError(err).Warn("Failed to delete file from storage")
	}

	// 2. 删除文档记录、摘要和任务关联
	if err := s.statusManager.DeleteDocument(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to delete document record")
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	s.logger.WithField("file_id", fileID).Info("Document deleted successfully")
	return nil
}

// GetDocumentInfo 获取文档信息
func (s *DocumentService) GetDocumentInfo(ctx context.Context, fileID string) (map[string]interface{}, error) {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return nil, err
	}

	// 获取文档状态
	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	// 构建文档信息
	info := map[string]interface{}{
		"file_id":    doc.ID,
		"filename":   doc.FileName,
		"status":     doc.Status,
		"created_at": doc.UploadedAt.Format(time.RFC3339),
		"updated_at": doc.UpdatedAt.Format(time.RFC3339),
		"size":       doc.FileSize,
		"progress":   doc.Progress,
	}

	// 如果有当前阶段，添加到返回结果
	if doc.CurrentStage != "" {
		info["stage"] = doc.CurrentStage
	}

	// 如果有错误信息，添加到返回结果
	if doc.Error != "" {
		info["error"] = doc.Error
	}

	// 如果有处理完成时间，添加到返回结果
	if doc.ProcessedAt != nil {
		info["processed_at"] = doc.ProcessedAt.Format(time.RFC3339)
	}

	// 如果有标签，添加到返回结果
	if doc.Tags != "" {
		info["tags"] = doc.Tags
	}

	// 如果启用了异步处理，尝试获取相关任务信息
	if s.asyncEnabled && s.taskQueue != nil {
		tasks, err := s.taskQueue.GetTasksByDocument(ctx, fileID)
		if err == nil && len(tasks) > 0 {
			// 添加最近的任务信息
			latestTask := tasks[0]
			for _, task := range tasks {
				if task.UpdatedAt.After(latestTask.UpdatedAt) {
					latestTask = task
				}
			}

			info["task_id"] = latestTask.ID
			info["task_status"] = latestTask.Status
			info["task_created_at"] = latestTask.CreatedAt.Format(time.RFC3339)
			info["task_updated_at"] = latestTask.UpdatedAt.Format(time.RFC3339)

			if latestTask.StartedAt != nil {
				info["task_started_at"] = latestTask.StartedAt.Format(time.RFC3339)
			}
			if latestTask.CompletedAt != nil {
				info["task_completed_at"] = latestTask.CompletedAt.Format(time.RFC3339)
			}
			if latestTask.Error != "" {
				info["task_error"] = latestTask.Error
			}
		}
	}

	return info, nil
}

// GetDocumentStatus 获取文档处理状态
func (s *DocumentService) GetDocumentStatus(ctx context.Context, fileID string) (models.DocumentStatus, error) {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return "", err
	}

	return s.statusManager.GetStatus(ctx, fileID)
}

// GetDocumentTasks 获取文档相关的任务
func (s *DocumentService) GetDocumentTasks(ctx context.Context, fileID string) ([]*taskqueue.Task, error) {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return nil, err
	}

	if !s.asyncEnabled || s.taskQueue == nil {
		return nil, errors.New("async processing not enabled")
	}

	return s.taskQueue.GetTasksByDocument(ctx, fileID)
}

// WaitForDocumentProcessing 等待文档处理完成
func (s *DocumentService) WaitForDocumentProcessing(ctx context.Context, fileID string, timeout time.Duration) error {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return err
	}

	if !s.asyncEnabled || s.taskQueue == nil {
		// 如果未启用异步处理，直接检查文档状态
		status, err := s.statusManager.GetStatus(ctx, fileID)
		if err != nil {
			return err
		}
		if status == models.DocStatusFailed {
			return errors.New("document processing failed")
		}
		if status != models.DocStatusCompleted {
			return errors.New("document not processed")
		}
		return nil
	}

	// 设置上下文超时
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// 获取文档相关的任务
	tasks, err := s.taskQueue.GetTasksByDocument(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get document tasks: %w", err)
	}

	if len(tasks) == 0 {
		return fmt.Errorf("no summarize tasks found for document %s", fileID)
	}

	// 找到最新的摘要任务
	var latestTask *taskqueue.Task
	for _, task := range tasks {
		if task.Type == taskqueue.TaskSummarizeDocument {
			if latestTask == nil || task.CreatedAt.After(latestTask.CreatedAt) {
				latestTask = task
			}
		}
	}

	if latestTask == nil {
		return fmt.Errorf("no summarize task found for document %s", fileID)
	}

	// 等待任务完成
	_, err = s.taskQueue.WaitForTask(ctx, latestTask.ID, timeout)
	if err != nil {
		return fmt.Errorf("failed to wait for document processing: %w", err)
	}

	// 再次检查文档状态
	status, err := s.statusManager.GetStatus(ctx, fileID)
	if err != nil {
		return err
	}

	if status == models.DocStatusFailed {
		return errors.New("document processing failed")
	}

	if status != models.DocStatusCompleted {
		return errors.New("document processing incomplete")
	}

	return nil
}

// ListDocuments 获取文档列表
func (s *DocumentService) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return nil, 0, err
	}

	// 使用状态管理器获取文档列表
	return s.statusManager.ListDocuments(ctx, offset, limit, filters)
}

// UpdateDocumentTags 更新文档标签
func (s *DocumentService) UpdateDocumentTags(ctx context.Context, fileID string, tags string) error {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return err
	}

	// 获取文档
	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	// 更新标签
	doc.Tags = tags

	// 保存更新
	return s.repo.Update(doc)
}

// failDocument 将文档标记为失败状态
func (s *DocumentService) failDocument(ctx context.Context, fileID string, errorMsg string) {
	if s.statusManager == nil {
		s.logger.Error("Cannot mark document as failed: status manager not initialized")
		return
	}

	if err := s.statusManager.MarkAsFailed(ctx, fileID, errorMsg); err != nil {
		s.logger.WithFields(logrus.Fields{
			"file_id": fileID,
			"error":   err,
		}).Error("Failed to mark document as failed")
	}
}

// AsyncEnabled 返回是否启用了异步处理
func (s *DocumentService) AsyncEnabled() bool {
	return s.asyncEnabled && s.taskQueue != nil
}

// GetStatusManager 返回文档状态管理器实例
func (s *DocumentService) GetStatusManager() *DocumentStatusManager {
	return s.statusManager
}

// GetTaskQueue 返回任务队列实例
func (s *DocumentService) GetTaskQueue() taskqueue.Queue {
	return s.taskQueue
}
