package repository

import (
	"context"

	"github.com/fyerfyer/doc-summarizer/internal/models"
	"github.com/fyerfyer/doc-summarizer/pkg/taskqueue"
)

// DocumentRepository 文档仓储接口
// 负责文档元数据和摘要结果的存储和检索
type DocumentRepository interface {
	// Create 创建文档记录
	Create(doc *models.Document) error

	// Update 更新文档记录
	Update(doc *models.Document) error

	// GetByID 根据ID获取文档
	GetByID(id string) (*models.Document, error)

	// List 列出文档列表，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error)

	// Delete 删除文档及其摘要
	Delete(id string) error

	// UpdateStatus 更新文档状态
	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error

	// UpdateProgress 更新文档处理进度和阶段
	UpdateProgress(id string, progress int, stage models.ProcessStage) error

	// SaveSummary 保存文档摘要，已存在时覆盖
	SaveSummary(summary *models.DocumentSummary) error

	// GetSummary 获取文档的摘要
	GetSummary(docID string) (*models.DocumentSummary, error)

	// DeleteSummary 删除文档的摘要
	DeleteSummary(docID string) error

	// CreateTask 创建任务并关联到文档
	CreateTask(ctx context.Context, taskType taskqueue.TaskType, documentID string, payload interface{}) (string, error)

	// GetTaskByID 根据ID获取任务
	GetTaskByID(ctx context.Context, taskID string) (*taskqueue.Task, error)

	// GetDocumentTasks 获取文档相关的所有任务
	GetDocumentTasks(ctx context.Context, documentID string) ([]*taskqueue.Task, error)

	// UpdateTaskStatus 更新任务状态和结果
	UpdateTaskStatus(ctx context.Context, taskID string, status taskqueue.TaskStatus, result interface{}, errorMsg string) error

	// DeleteTask 删除任务
	DeleteTask(ctx context.Context, taskID string) error
}
