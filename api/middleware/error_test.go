package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyerfyer/doc-summarizer/api/model"
	"github.com/fyerfyer/doc-summarizer/internal/document"
	"github.com/fyerfyer/doc-summarizer/internal/llm"
	"github.com/fyerfyer/doc-summarizer/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClassifyError 测试错误归类
func TestClassifyError(t *testing.T) {
	t.Run("document not found maps to 404", func(t *testing.T) {
		appErr := ClassifyError(models.ErrDocumentNotFound)
		assert.Equal(t, ErrorTypeNotFound, appErr.Type)
		assert.Equal(t, http.StatusNotFound, appErr.Code)
	})

	t.Run("summary not found maps to 404", func(t *testing.T) {
		appErr := ClassifyError(fmt.Errorf("query failed: %w", models.ErrSummaryNotFound))
		assert.Equal(t, ErrorTypeNotFound, appErr.Type)
	})

	t.Run("extraction errors map to 422", func(t *testing.T) {
		appErr := ClassifyError(document.ErrUnsupportedFormat)
		assert.Equal(t, ErrorTypeExtraction, appErr.Type)
		assert.Equal(t, http.StatusUnprocessableEntity, appErr.Code)

		appErr = ClassifyError(fmt.Errorf("parse: %w", document.ErrEmptyDocument))
		assert.Equal(t, ErrorTypeExtraction, appErr.Type)
	})

	t.Run("model errors map to 502", func(t *testing.T) {
		appErr := ClassifyError(llm.NewModelError(llm.ErrCodeServerError, "upstream exploded"))
		assert.Equal(t, ErrorTypeModel, appErr.Type)
		assert.Equal(t, http.StatusBadGateway, appErr.Code)
		assert.Equal(t, "upstream exploded", appErr.Details)
	})

	t.Run("rate limit and overload map to 503", func(t *testing.T) {
		appErr := ClassifyError(llm.NewModelError(llm.ErrCodeRateLimited, "too many requests"))
		assert.Equal(t, http.StatusServiceUnavailable, appErr.Code)

		appErr = ClassifyError(llm.NewModelError(llm.ErrCodeModelOverload, "model busy"))
		assert.Equal(t, http.StatusServiceUnavailable, appErr.Code)
	})

	t.Run("app error passes through", func(t *testing.T) {
		original := NewValidationError("bad input", "field missing")
		appErr := ClassifyError(original)
		assert.Equal(t, original, appErr)
	})

	t.Run("unknown errors map to 500", func(t *testing.T) {
		appErr := ClassifyError(errors.New("something broke"))
		assert.Equal(t, ErrorTypeInternal, appErr.Type)
		assert.Equal(t, http.StatusInternalServerError, appErr.Code)
	})
}

// newErrorTestRouter 构建一个挂载了错误中间件的路由，按查询指定的错误类型返回错误
func newErrorTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorMiddleware())
	router.Use(SetTraceID())

	router.GET("/fail", func(c *gin.Context) {
		switch c.Query("kind") {
		case "not-found":
			HandleError(c, models.ErrDocumentNotFound)
		case "extraction":
			HandleError(c, fmt.Errorf("parse failed: %w", document.ErrUnsupportedFormat))
		case "model":
			HandleError(c, llm.NewModelError(llm.ErrCodeTimeout, "request timed out"))
		case "panic":
			panic("boom")
		default:
			HandleError(c, errors.New("plain error"))
		}
	})

	return router
}

// TestErrorMiddleware 测试错误中间件的HTTP响应
func TestErrorMiddleware(t *testing.T) {
	router := newErrorTestRouter()

	doGet := func(t *testing.T, kind string) (*httptest.ResponseRecorder, *model.Response) {
		t.Helper()
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/fail?kind="+kind, nil)
		router.ServeHTTP(w, req)

		var resp model.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return w, &resp
	}

	t.Run("not found error", func(t *testing.T) {
		w, resp := doGet(t, "not-found")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("extraction error", func(t *testing.T) {
		w, resp := doGet(t, "extraction")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.NotEmpty(t, resp.Message)
	})

	t.Run("model error", func(t *testing.T) {
		w, _ := doGet(t, "model")
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("unknown error", func(t *testing.T) {
		w, _ := doGet(t, "other")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("panic recovery", func(t *testing.T) {
		w, resp := doGet(t, "panic")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotEmpty(t, resp.Message, "panic应该被转换成错误响应")
	})
}
