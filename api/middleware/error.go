package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/fyerfyer/doc-summarizer/api/model"
	"github.com/fyerfyer/doc-summarizer/internal/document"
	"github.com/fyerfyer/doc-summarizer/internal/llm"
	"github.com/fyerfyer/doc-summarizer/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 摘要流水线各层错误对应的类型常量
const (
	ErrorTypeValidation = "VALIDATION_ERROR" // 输入验证错误
	ErrorTypeNotFound   = "NOT_FOUND_ERROR"  // 文档或摘要不存在
	ErrorTypeExtraction = "EXTRACTION_ERROR" // 文本提取失败
	ErrorTypeModel      = "MODEL_ERROR"      // 模型推理失败
	ErrorTypeInternal   = "INTERNAL_ERROR"   // 内部服务器错误
)

// AppError 应用错误结构体
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息
	Details string // 详细错误信息
	Code    int    // HTTP状态码
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewExtractionError 创建文本提取错误
// 不支持的格式、加密或损坏的文件都属于这一类，是客户端可以修正的问题
func NewExtractionError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeExtraction,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusUnprocessableEntity,
	}
}

// NewModelError 创建模型推理错误
func NewModelError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeModel,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadGateway,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// ClassifyError 将流水线各层的错误归类为带HTTP状态码的应用错误
// 已经是AppError的原样返回，其余按错误来源映射：
// 提取层错误返回422，模型层错误返回502（限流和过载返回503），
// 文档和摘要不存在返回404，无法识别的错误一律按500处理
func ClassifyError(err error) AppError {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var appErrPtr *AppError
	if errors.As(err, &appErrPtr) {
		return *appErrPtr
	}

	switch {
	case errors.Is(err, models.ErrDocumentNotFound),
		errors.Is(err, models.ErrSummaryNotFound):
		return NewNotFoundError(err.Error())
	case errors.Is(err, document.ErrUnsupportedFormat),
		errors.Is(err, document.ErrEmptyDocument):
		return NewExtractionError("document extraction failed", err.Error())
	}

	var modelErr llm.ModelError
	if errors.As(err, &modelErr) {
		code := http.StatusBadGateway
		if modelErr.Code == llm.ErrCodeRateLimited || modelErr.Code == llm.ErrCodeModelOverload {
			code = http.StatusServiceUnavailable
		}
		return AppError{
			Type:    ErrorTypeModel,
			Message: "summarization model call failed",
			Details: modelErr.Message,
			Code:    code,
		}
	}

	return NewInternalError("Internal server error", err.Error())
}

// ErrorMiddleware 统一错误处理中间件
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 捕获 panic
		defer func() {
			if err := recover(); err != nil {
				stack := string(debug.Stack())

				log.WithFields(logrus.Fields{
					"error": err,
					"stack": stack,
					"path":  c.Request.URL.Path,
				}).Error("Panic recovered in API request")

				errorResponse := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)

				// 在开发环境中可以返回详细错误
				if gin.Mode() == gin.DebugMode {
					errorResponse.Message = fmt.Sprintf("Panic: %v", err)
				}

				if traceID, exists := c.Get("TraceID"); exists {
					errorResponse.TraceID = traceID.(string)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse)
			}
		}()

		c.Next()

		// 处理handler通过c.Error传递上来的错误
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err

			traceID := ""
			if traceIDValue, exists := c.Get("TraceID"); exists {
				traceID = traceIDValue.(string)
			}

			appErr := ClassifyError(err)

			log.WithFields(logrus.Fields{
				"error_type": appErr.Type,
				"trace_id":   traceID,
				"path":       c.Request.URL.Path,
			}).Error(err.Error())

			errResp := model.NewErrorResponse(appErr.Code, appErr.Message)
			errResp.TraceID = traceID

			// 在开发环境下附带具体错误信息
			if gin.Mode() == gin.DebugMode && appErr.Details != "" {
				errResp.Message = fmt.Sprintf("%s: %s", appErr.Message, appErr.Details)
			}

			c.JSON(appErr.Code, errResp)
			c.Abort()
		}
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	// 添加错误到上下文中
	_ = c.Error(err)
}
