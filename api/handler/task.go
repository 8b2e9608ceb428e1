package handler

import (
	"errors"
	"net/http"

	"github.com/fyerfyer/doc-summarizer/api/middleware"
	"github.com/fyerfyer/doc-summarizer/api/model"
	"github.com/fyerfyer/doc-summarizer/internal/services"
	"github.com/fyerfyer/doc-summarizer/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TaskHandler 处理异步任务相关的API请求
type TaskHandler struct {
	taskQueue       taskqueue.Queue           // 任务队列
	documentService *services.DocumentService // 文档服务
	logger          *logrus.Logger            // 日志记录器
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(taskQueue taskqueue.Queue, documentService *services.DocumentService) *TaskHandler {
	return &TaskHandler{
		taskQueue:       taskQueue,
		documentService: documentService,
		logger:          middleware.GetLogger(),
	}
}

// GetTaskStatus 获取任务状态
// GET /api/tasks/:id
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的任务ID"))
		return
	}

	if h.taskQueue == nil {
		c.JSON(http.StatusServiceUnavailable, model.NewErrorResponse(
			http.StatusServiceUnavailable,
			"未启用异步任务队列",
		))
		return
	}

	// 获取任务
	task, err := h.taskQueue.GetTask(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, taskqueue.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "未找到任务"))
			return
		}

		h.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"task_id": taskID,
		}).Error("Failed to get task")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取任务状态失败",
		))
		return
	}

	// 构建任务信息
	info := taskqueue.NewTaskInfo(task)

	resp := gin.H{
		"task_id":      info.ID,
		"type":         info.Type,
		"document_id":  info.DocumentID,
		"status":       info.Status,
		"progress":     info.Progress,
		"created_at":   info.CreatedAt,
		"started_at":   info.StartedAt,
		"completed_at": info.CompletedAt,
	}

	if info.Error != "" {
		resp["error"] = info.Error
	}

	// 已完成的任务附带执行结果
	if task.Status == taskqueue.StatusCompleted && len(task.Result) > 0 {
		switch task.Type {
		case taskqueue.TaskSummarizeDocument:
			if result, err := task.SummarizeResult(); err == nil {
				resp["result"] = result
			}
		case taskqueue.TaskSummarizeBatch:
			if result, err := task.BatchResult(); err == nil {
				resp["result"] = result
			}
		}
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetDocumentTasks 获取文档关联的所有任务
// GET /api/documents/:id/tasks
func (h *TaskHandler) GetDocumentTasks(c *gin.Context) {
	docID := c.Param("id")
	if docID == "" {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	tasks, err := h.documentService.GetDocumentTasks(c.Request.Context(), docID)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"file_id": docID,
		}).Error("Failed to get document tasks")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取文档任务失败",
		))
		return
	}

	infos := make([]*taskqueue.TaskInfo, len(tasks))
	for i, task := range tasks {
		infos[i] = taskqueue.NewTaskInfo(task)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{
		"document_id": docID,
		"tasks":       infos,
	}))
}
