package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyerfyer/doc-summarizer/api/handler"
	"github.com/fyerfyer/doc-summarizer/api/model"
	"github.com/fyerfyer/doc-summarizer/internal/database"
	"github.com/fyerfyer/doc-summarizer/internal/document"
	"github.com/fyerfyer/doc-summarizer/internal/llm"
	"github.com/fyerfyer/doc-summarizer/internal/models"
	"github.com/fyerfyer/doc-summarizer/internal/repository"
	"github.com/fyerfyer/doc-summarizer/internal/services"
	"github.com/fyerfyer/doc-summarizer/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// stubLLMClient 测试用的模型客户端，总是返回固定摘要
type stubLLMClient struct{}

func (c *stubLLMClient) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	return &llm.Response{
		Text:       "这是一段模拟摘要",
		TokenCount: 10,
		ModelName:  "stub-model",
		FinishTime: time.Now(),
	}, nil
}

func (c *stubLLMClient) Name() string {
	return "stub-model"
}

// 测试环境配置
type testEnv struct {
	Router          *gin.Engine
	Storage         storage.Storage
	DocumentService *services.DocumentService
	SummaryService  *services.SummaryService
}

// 创建测试环境
func setupTestEnv(t *testing.T) *testEnv {
	// 设置测试模式
	gin.SetMode(gin.TestMode)

	// 创建测试数据库
	dbName := fmt.Sprintf("file:api_memdb_%d?mode=memory", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Document{}, &models.DocumentSummary{}, &models.DocumentTask{})
	require.NoError(t, err)

	originalDB := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = originalDB
	})

	// 创建本地存储
	fileStorage, err := storage.NewLocalStorage(storage.LocalConfig{
		Path: t.TempDir(),
	})
	require.NoError(t, err)

	// 创建文本分块器
	splitter := document.NewTextSplitter(document.SplitterConfig{
		SplitType: document.BySentence,
		ChunkSize: 120,
	})

	// 创建摘要服务
	summarizer := llm.NewSummarizer(&stubLLMClient{})
	summaryService := services.NewSummaryService(summarizer, splitter)

	// 创建文档服务
	repo := repository.NewDocumentRepository()
	statusManager := services.NewDocumentStatusManager(repo, logrus.New())
	documentService := services.NewDocumentService(
		fileStorage,
		splitter,
		summaryService,
		services.WithDocumentRepository(repo),
		services.WithStatusManager(statusManager),
	)

	// 创建API处理器
	docHandler := handler.NewDocumentHandler(documentService)
	summaryHandler := handler.NewSummaryHandler(summaryService)
	taskHandler := handler.NewTaskHandler(nil, documentService)

	// 设置路由
	router := SetupRouter(docHandler, summaryHandler, taskHandler)

	return &testEnv{
		Router:          router,
		Storage:         fileStorage,
		DocumentService: documentService,
		SummaryService:  summaryService,
	}
}

// longTestText 生成词数足够做摘要推理的文本
func longTestText() string {
	words := make([]string, 0, 24)
	for i := 0; i < 24; i++ {
		words = append(words, fmt.Sprintf("word%d", i))
	}
	return strings.Join(words, " ") + "."
}

// doRequest 执行HTTP请求并返回响应
func doRequest(env *testEnv, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	return w
}

// TestSummarizeText 测试原始文本摘要API
func TestSummarizeText(t *testing.T) {
	env := setupTestEnv(t)

	reqBody, err := json.Marshal(map[string]interface{}{
		"text": longTestText(),
	})
	require.NoError(t, err)

	w := doRequest(env, http.MethodPost, "/api/summarize", bytes.NewReader(reqBody), "application/json")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp model.Response
	err = json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, data["summary"])
	assert.Equal(t, "stub-model", data["model"])
	assert.Equal(t, false, data["cached"])
}

// TestSummarizeTextValidation 测试文本摘要请求参数校验
func TestSummarizeTextValidation(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("missing text", func(t *testing.T) {
		w := doRequest(env, http.MethodPost, "/api/summarize", strings.NewReader(`{}`), "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid length bounds", func(t *testing.T) {
		reqBody := `{"text":"some text","min_length":100,"max_length":50}`
		w := doRequest(env, http.MethodPost, "/api/summarize", strings.NewReader(reqBody), "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp model.Response
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		require.NoError(t, err)
		assert.Contains(t, resp.Message, "min_length")
	})
}

// TestDocumentUpload 测试文档上传API
func TestDocumentUpload(t *testing.T) {
	env := setupTestEnv(t)

	// 创建multipart请求
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "test.txt")
	require.NoError(t, err)

	_, err = io.WriteString(part, longTestText())
	require.NoError(t, err)
	writer.Close()

	w := doRequest(env, http.MethodPost, "/api/documents", body, writer.FormDataContentType())
	assert.Equal(t, http.StatusOK, w.Code)

	var resp model.Response
	err = json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Code)

	uploadResp, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, uploadResp["file_id"])
	assert.Equal(t, "test.txt", uploadResp["filename"])
	assert.Equal(t, "processing", uploadResp["status"])
}

// TestDocumentUploadWithTags 测试带标签的文档上传
func TestDocumentUploadWithTags(t *testing.T) {
	env := setupTestEnv(t)

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "tagged.txt")
	require.NoError(t, err)
	_, err = io.WriteString(part, longTestText())
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("tags", "report,quarterly"))
	writer.Close()

	w := doRequest(env, http.MethodPost, "/api/documents", body, writer.FormDataContentType())
	assert.Equal(t, http.StatusOK, w.Code)

	var resp model.Response
	err = json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	uploadResp, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)

	// 标签应该已写入文档记录
	doc, err := env.DocumentService.GetStatusManager().GetDocument(context.Background(), uploadResp["file_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "report,quarterly", doc.Tags)

	// 非法标签格式应该被拒绝
	body = new(bytes.Buffer)
	writer = multipart.NewWriter(body)
	part, err = writer.CreateFormFile("file", "bad_tags.txt")
	require.NoError(t, err)
	_, err = io.WriteString(part, longTestText())
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("tags", ",,,"))
	writer.Close()

	w = doRequest(env, http.MethodPost, "/api/documents", body, writer.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestDocumentUploadInvalidType 测试不支持的文件类型上传
func TestDocumentUploadInvalidType(t *testing.T) {
	env := setupTestEnv(t)

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "test.docx")
	require.NoError(t, err)

	_, err = io.WriteString(part, "some content")
	require.NoError(t, err)
	writer.Close()

	w := doRequest(env, http.MethodPost, "/api/documents", body, writer.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestDocumentStatus 测试文档状态查询API
func TestDocumentStatus(t *testing.T) {
	env := setupTestEnv(t)

	// 通过服务直接上传一个文档
	doc, err := env.DocumentService.UploadDocument(context.Background(), strings.NewReader(longTestText()), "status.txt")
	require.NoError(t, err)

	w := doRequest(env, http.MethodGet, "/api/documents/"+doc.ID+"/status", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp model.Response
	err = json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Code)

	statusResp, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, doc.ID, statusResp["file_id"])
	assert.Equal(t, "status.txt", statusResp["filename"])
	assert.Equal(t, "uploaded", statusResp["status"])
}

// TestDocumentStatusNotFound 测试查询不存在的文档状态
func TestDocumentStatusNotFound(t *testing.T) {
	env := setupTestEnv(t)

	w := doRequest(env, http.MethodGet, "/api/documents/non-existent/status", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestDocumentSummary 测试文档摘要查询API
func TestDocumentSummary(t *testing.T) {
	env := setupTestEnv(t)

	ctx := context.Background()

	// 上传并同步处理一个文档
	doc, err := env.DocumentService.UploadDocument(ctx, strings.NewReader(longTestText()), "summary.txt")
	require.NoError(t, err)

	err = env.DocumentService.ProcessDocument(ctx, doc.ID, doc.FilePath)
	require.NoError(t, err)

	w := doRequest(env, http.MethodGet, "/api/documents/"+doc.ID+"/summary", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp model.Response
	err = json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)

	summaryResp, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, summaryResp["summary"])
	assert.Equal(t, "stub-model", summaryResp["model"])
}

// TestDocumentSummaryNotReady 测试摘要未生成时的查询
func TestDocumentSummaryNotReady(t *testing.T) {
	env := setupTestEnv(t)

	doc, err := env.DocumentService.UploadDocument(context.Background(), strings.NewReader(longTestText()), "pending.txt")
	require.NoError(t, err)

	w := doRequest(env, http.MethodGet, "/api/documents/"+doc.ID+"/summary", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestDocumentList 测试文档列表查询API
func TestDocumentList(t *testing.T) {
	env := setupTestEnv(t)

	// 空列表
	w := doRequest(env, http.MethodGet, "/api/documents", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp model.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Code)

	listResp, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(0), listResp["total"])

	// 上传一个文档后列表应该包含它
	_, err = env.DocumentService.UploadDocument(context.Background(), strings.NewReader(longTestText()), "listed.txt")
	require.NoError(t, err)

	w = doRequest(env, http.MethodGet, "/api/documents", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	err = json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)

	listResp, ok = resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), listResp["total"])
}

// TestDocumentDelete 测试文档删除API
func TestDocumentDelete(t *testing.T) {
	env := setupTestEnv(t)

	doc, err := env.DocumentService.UploadDocument(context.Background(), strings.NewReader(longTestText()), "delete.txt")
	require.NoError(t, err)

	w := doRequest(env, http.MethodDelete, "/api/documents/"+doc.ID, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp model.Response
	err = json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Code)

	// 删除后查询状态应该404
	w = doRequest(env, http.MethodGet, "/api/documents/"+doc.ID+"/status", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestTaskStatusWithoutQueue 测试未启用队列时的任务查询
func TestTaskStatusWithoutQueue(t *testing.T) {
	env := setupTestEnv(t)

	w := doRequest(env, http.MethodGet, "/api/tasks/some-task-id", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestHealthCheck 测试健康检查API
func TestHealthCheck(t *testing.T) {
	env := setupTestEnv(t)

	w := doRequest(env, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
