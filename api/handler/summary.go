package handler

import (
	"net/http"

	"github.com/fyerfyer/doc-summarizer/api/middleware"
	"github.com/fyerfyer/doc-summarizer/api/model"
	"github.com/fyerfyer/doc-summarizer/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SummaryHandler 处理原始文本摘要请求
type SummaryHandler struct {
	summaryService *services.SummaryService // 摘要服务
	logger         *logrus.Logger           // 日志记录器
}

// NewSummaryHandler 创建新的摘要处理器
func NewSummaryHandler(summaryService *services.SummaryService) *SummaryHandler {
	return &SummaryHandler{
		summaryService: summaryService,
		logger:         middleware.GetLogger(),
	}
}

// SummarizeText 对请求中的原始文本同步生成摘要
// POST /api/summarize
func (h *SummaryHandler) SummarizeText(c *gin.Context) {
	// 绑定请求参数
	var req model.SummarizeTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid summarize request")

		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	// 校验自定义长度范围
	if req.MinLength > 0 && req.MaxLength > 0 && req.MinLength >= req.MaxLength {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"min_length 必须小于 max_length",
		))
		return
	}

	svc := h.summaryService
	if req.MinLength > 0 && req.MaxLength > 0 {
		svc = svc.WithLengthBounds(req.MinLength, req.MaxLength)
	}

	// 生成摘要
	result, err := svc.SummarizeText(c.Request.Context(), req.Text)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":       err.Error(),
			"text_length": len(req.Text),
		}).Error("Failed to summarize text")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"生成摘要失败",
		))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"chunk_count":    result.ChunkCount,
		"skipped_chunks": result.SkippedChunks,
		"cached":         result.Cached,
	}).Info("Text summarized successfully")

	resp := model.TextSummaryResponse{
		Summary:       result.Summary,
		ChunkCount:    result.ChunkCount,
		SkippedChunks: result.SkippedChunks,
		Model:         result.Model,
		TokenCount:    result.TokenCount,
		Cached:        result.Cached,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}
