package handler

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fyerfyer/doc-summarizer/api/middleware"
	"github.com/fyerfyer/doc-summarizer/api/model"
	"github.com/fyerfyer/doc-summarizer/internal/models"
	"github.com/fyerfyer/doc-summarizer/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DocumentHandler 处理文档相关的API请求
type DocumentHandler struct {
	documentService *services.DocumentService // 文档服务
	logger          *logrus.Logger            // 日志记录器
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(documentService *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		logger:          middleware.GetLogger(),
	}
}

// UploadDocument 处理文档上传请求
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	// 绑定请求参数
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Invalid document upload request")

		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	// 检查文件
	if req.File == nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"未提供文件",
		))
		return
	}

	// 检查文件类型
	filename := req.File.Filename
	ext := filepath.Ext(filename)
	if !isValidFileType(ext) {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"不支持的文件类型，仅支持 .pdf, .md, .markdown, .txt",
		))
		return
	}

	// 打开上传的文件
	file, err := req.File.Open()
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": filename,
		}).Error("Failed to open uploaded file")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"无法打开上传的文件",
		))
		return
	}
	defer file.Close()

	// 保存文件并创建文档记录
	doc, err := h.documentService.UploadDocument(c.Request.Context(), file, filename)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": filename,
		}).Error("Failed to save file")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"保存文件失败",
		))
		return
	}

	// 更新标签
	if req.Tags != "" {
		if err := h.documentService.UpdateDocumentTags(c.Request.Context(), doc.ID, req.Tags); err != nil {
			h.logger.WithError(err).Warn("Failed to update document tags")
		}
	}

	// 记录文件上传信息
	h.logger.WithFields(logrus.Fields{
		"file_id":  doc.ID,
		"filename": doc.FileName,
		"path":     doc.FilePath,
		"size":     doc.FileSize,
	}).Info("File uploaded successfully")

	resp := model.DocumentUploadResponse{
		FileID:   doc.ID,
		FileName: filename,
		Status:   string(models.DocStatusProcessing),
	}

	if h.documentService.AsyncEnabled() {
		// 异步模式下入队很快，直接在请求中完成以便返回任务ID
		if err := h.documentService.ProcessDocument(c.Request.Context(), doc.ID, doc.FilePath); err != nil {
			h.logger.WithFields(logrus.Fields{
				"error":   err.Error(),
				"file_id": doc.ID,
			}).Error("Failed to enqueue document")

			c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
				http.StatusInternalServerError,
				"创建摘要任务失败",
			))
			return
		}

		// 重新读取文档以获取任务ID
		if updated, err := h.documentService.GetStatusManager().GetDocument(c.Request.Context(), doc.ID); err == nil {
			resp.TaskID = updated.CurrentTaskID
		}
	} else {
		// 同步模式下在后台处理，避免阻塞请求
		fileID, filePath := doc.ID, doc.FilePath
		go func() {
			h.logger.WithField("file_id", fileID).Info("Starting document summarization")
			ctx := context.Background()

			if err := h.documentService.ProcessDocument(ctx, fileID, filePath); err != nil {
				h.logger.WithFields(logrus.Fields{
					"error":   err.Error(),
					"file_id": fileID,
				}).Error("Failed to summarize document")
			} else {
				h.logger.WithField("file_id", fileID).Info("Document summarized successfully")
			}
		}()
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetDocumentStatus 获取文档处理状态
// GET /api/documents/:id/status
func (h *DocumentHandler) GetDocumentStatus(c *gin.Context) {
	// 绑定路径参数
	var req model.DocumentStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	// 获取文档信息
	doc, err := h.documentService.GetStatusManager().GetDocument(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"file_id": req.ID,
		}).Error("Failed to get document info")

		c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "未找到文档或获取信息失败"))
		return
	}

	// 构建响应
	resp := model.DocumentStatusResponse{
		FileID:     doc.ID,
		Status:     string(doc.Status),
		FileName:   doc.FileName,
		Progress:   doc.Progress,
		Stage:      string(doc.CurrentStage),
		Error:      doc.Error,
		ChunkCount: doc.ChunkCount,
		CreatedAt:  doc.UploadedAt.Format(time.RFC3339),
		UpdatedAt:  doc.UpdatedAt.Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetDocumentSummary 获取文档摘要
// GET /api/documents/:id/summary
func (h *DocumentHandler) GetDocumentSummary(c *gin.Context) {
	// 绑定路径参数
	var req model.DocumentSummaryRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	summary, err := h.documentService.GetSummary(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "未找到文档"))
			return
		}
		if errors.Is(err, models.ErrSummaryNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "文档摘要尚未生成"))
			return
		}

		h.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"file_id": req.ID,
		}).Error("Failed to get document summary")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取文档摘要失败",
		))
		return
	}

	// 获取文件名
	fileName := ""
	if doc, err := h.documentService.GetStatusManager().GetDocument(c.Request.Context(), req.ID); err == nil {
		fileName = doc.FileName
	}

	resp := model.DocumentSummaryResponse{
		FileID:     req.ID,
		FileName:   fileName,
		Summary:    summary.Summary,
		ChunkCount: summary.ChunkCount,
		Model:      summary.Model,
		TokenCount: summary.TokenCount,
		CreatedAt:  summary.CreatedAt.Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ListDocuments 获取文档列表
// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	// 绑定查询参数
	var req model.DocumentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的查询参数"))
		return
	}

	// 构建过滤条件
	filterOptions := make(map[string]interface{})

	if req.Status != "" {
		filterOptions["status"] = req.Status
	}

	if req.Tags != "" {
		filterOptions["tags"] = req.Tags
	}

	if req.StartTime != nil {
		filterOptions["start_time"] = req.StartTime.Format(time.RFC3339)
	}

	if req.EndTime != nil {
		filterOptions["end_time"] = req.EndTime.Format(time.RFC3339)
	}

	// 分页查询
	page := req.GetPage()
	pageSize := req.GetPageSize()
	offset := (page - 1) * pageSize

	docs, total, err := h.documentService.ListDocuments(c.Request.Context(), offset, pageSize, filterOptions)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list documents")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取文档列表失败",
		))
		return
	}

	// 转换为响应格式
	docInfos := make([]model.DocumentInfo, len(docs))
	for i, doc := range docs {
		docInfos[i] = model.DocumentInfo{
			FileID:     doc.ID,
			FileName:   doc.FileName,
			Status:     string(doc.Status),
			Tags:       doc.Tags,
			UploadTime: doc.UploadedAt,
			ChunkCount: doc.ChunkCount,
			Progress:   doc.Progress,
		}
	}

	// 构建分页响应
	resp := model.DocumentListResponse{
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
		Documents: docInfos,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// DeleteDocument 删除文档
// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	// 绑定路径参数
	var req model.DocumentDeleteRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	// 删除文档
	err := h.documentService.DeleteDocument(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "未找到文档"))
			return
		}

		h.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"file_id": req.ID,
		}).Error("Failed to delete document")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"删除文档失败",
		))
		return
	}

	h.logger.WithField("file_id", req.ID).Info("Document deleted successfully")

	// 返回成功响应
	resp := model.DocumentDeleteResponse{
		Success: true,
		FileID:  req.ID,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// isValidFileType 检查文件类型是否有效
func isValidFileType(ext string) bool {
	validTypes := map[string]bool{
		".pdf":      true,
		".md":       true,
		".markdown": true,
		".txt":      true,
	}
	return validTypes[ext]
}
