package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisTest 设置一个miniredis实例用于测试
// 返回Redis地址和一个清理函数
func setupRedisTest(t *testing.T) (string, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	return mr.Addr(), func() {
		mr.Close()
	}
}

// newTestQueueConfig 创建测试用的队列配置
func newTestQueueConfig(redisAddr string) *Config {
	return &Config{
		RedisAddr:   redisAddr,
		Concurrency: 2,
		RetryLimit:  2,
		RetryDelay:  time.Second,
	}
}

// TestNewRedisQueue 测试创建Redis队列实例
func TestNewRedisQueue(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(newTestQueueConfig(redisAddr))
	assert.NoError(t, err)
	assert.NotNil(t, queue)

	err = queue.Close()
	assert.NoError(t, err)
}

// TestRedisQueue_Enqueue 测试队列入队功能
func TestRedisQueue_Enqueue(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(newTestQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()
	payload := &SummarizeDocumentPayload{
		DocumentID: "doc-123",
		FilePath:   "/path/to/document.pdf",
		FileName:   "document.pdf",
		FileType:   "pdf",
		MinLength:  30,
		MaxLength:  130,
	}

	// 测试基本入队
	taskID, err := queue.Enqueue(ctx, TaskSummarizeDocument, "doc-123", payload)
	assert.NoError(t, err)
	assert.NotEmpty(t, taskID)

	// 验证任务已入队
	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, TaskSummarizeDocument, task.Type)
	assert.Equal(t, "doc-123", task.DocumentID)
	assert.Equal(t, StatusPending, task.Status)
	assert.NotNil(t, task.Payload)

	// 验证载荷可以还原
	var decoded SummarizeDocumentPayload
	err = UnmarshalPayload(task.Payload, &decoded)
	assert.NoError(t, err)
	assert.Equal(t, payload.FilePath, decoded.FilePath)
	assert.Equal(t, payload.MinLength, decoded.MinLength)
}

// TestRedisQueue_EnqueueAt 测试定时入队功能
func TestRedisQueue_EnqueueAt(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(newTestQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()
	payload := &SummarizeDocumentPayload{
		DocumentID: "doc-123",
		FilePath:   "/path/to/document.pdf",
		FileName:   "document.pdf",
		FileType:   "pdf",
	}

	processAt := time.Now().Add(time.Second)
	taskID, err := queue.EnqueueAt(ctx, TaskSummarizeDocument, "doc-123", payload, processAt)
	assert.NoError(t, err)
	assert.NotEmpty(t, taskID)

	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, TaskSummarizeDocument, task.Type)
	assert.Equal(t, StatusPending, task.Status)
}

// TestRedisQueue_EnqueueIn 测试延时入队功能
func TestRedisQueue_EnqueueIn(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(newTestQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()
	taskID, err := queue.EnqueueIn(ctx, TaskSummarizeDocument, "doc-123", &SummarizeDocumentPayload{}, time.Second)
	assert.NoError(t, err)
	assert.NotEmpty(t, taskID)

	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status)
}

// TestRedisQueue_GetTasksByDocument 测试获取文档相关任务
func TestRedisQueue_GetTasksByDocument(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(newTestQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()
	documentID := "doc-456"

	// 为同一个文档入队多个任务
	payloads := []interface{}{
		&SummarizeDocumentPayload{
			DocumentID: documentID,
			FilePath:   "/path/to/document1.pdf",
			FileName:   "document1.pdf",
			FileType:   "pdf",
		},
		&BatchSummarizePayload{
			Paths:     []string{"/path/to/document1.pdf"},
			ChunkSize: 1024,
			SplitType: "sentence",
		},
	}

	taskTypes := []TaskType{
		TaskSummarizeDocument,
		TaskSummarizeBatch,
	}

	for i, payload := range payloads {
		_, err := queue.Enqueue(ctx, taskTypes[i], documentID, payload)
		require.NoError(t, err)
	}

	// 获取文档相关的任务
	tasks, err := queue.GetTasksByDocument(ctx, documentID)
	assert.NoError(t, err)
	require.Equal(t, len(payloads), len(tasks))

	for _, task := range tasks {
		assert.Equal(t, documentID, task.DocumentID)
	}

	// 任务应该按创建顺序返回
	assert.Equal(t, TaskSummarizeDocument, tasks[0].Type, "先入队的任务应该排在前面")
	assert.Equal(t, TaskSummarizeBatch, tasks[1].Type)

	// 测试获取不存在文档的任务
	emptyTasks, err := queue.GetTasksByDocument(ctx, "non-existent")
	assert.NoError(t, err)
	assert.Empty(t, emptyTasks)
}

// TestRedisQueue_UpdateTaskStatus 测试更新任务状态
func TestRedisQueue_UpdateTaskStatus(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(newTestQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()

	payload := &SummarizeDocumentPayload{
		DocumentID: "doc-789",
		FilePath:   "/path/to/document.pdf",
		FileName:   "document.pdf",
		FileType:   "pdf",
	}

	taskID, err := queue.Enqueue(ctx, TaskSummarizeDocument, "doc-789", payload)
	require.NoError(t, err)

	// 更新任务状态到处理中
	err = queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, "")
	assert.NoError(t, err)

	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, StatusProcessing, task.Status)
	assert.NotNil(t, task.StartedAt)

	// 更新任务状态到已完成，带摘要结果
	result := &SummarizeDocumentResult{
		DocumentID: "doc-789",
		Summary:    "这是一段摘要",
		ChunkCount: 3,
		Model:      "qwen-turbo",
		TokenCount: 150,
	}
	err = queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, "")
	assert.NoError(t, err)

	task, err = queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)
	assert.NotEmpty(t, task.Result)

	// 验证结果可以还原
	decoded, err := task.SummarizeResult()
	assert.NoError(t, err)
	assert.Equal(t, result.Summary, decoded.Summary)
	assert.Equal(t, result.ChunkCount, decoded.ChunkCount)

	// 测试更新到失败状态
	failTaskID, err := queue.Enqueue(ctx, TaskSummarizeDocument, "doc-789", payload)
	require.NoError(t, err)

	errorMsg := "summarization failed: model call error"
	err = queue.UpdateTaskStatus(ctx, failTaskID, StatusFailed, nil, errorMsg)
	assert.NoError(t, err)

	failTask, err := queue.GetTask(ctx, failTaskID)
	assert.NoError(t, err)
	assert.Equal(t, StatusFailed, failTask.Status)
	assert.Equal(t, errorMsg, failTask.Error)
	assert.NotNil(t, failTask.CompletedAt)
}

// TestRedisQueue_WaitForTask 测试等待已完成的任务
func TestRedisQueue_WaitForTask(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(newTestQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskSummarizeDocument, "doc-wait", &SummarizeDocumentPayload{})
	require.NoError(t, err)

	// 已完成的任务应该立即返回
	err = queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, nil, "")
	require.NoError(t, err)

	task, err := queue.WaitForTask(ctx, taskID, 100*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)

	// 等待不存在的任务应该返回错误
	_, err = queue.WaitForTask(ctx, "non-existent-task", 100*time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, ErrTaskNotFound, err)
}

// TestRedisQueue_DeleteTask 测试删除任务
func TestRedisQueue_DeleteTask(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(newTestQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()
	documentID := "doc-delete-test"

	taskID, err := queue.Enqueue(ctx, TaskSummarizeDocument, documentID, &SummarizeDocumentPayload{})
	require.NoError(t, err)

	// 确认任务和文档关联存在
	tasks, err := queue.GetTasksByDocument(ctx, documentID)
	assert.NoError(t, err)
	assert.Len(t, tasks, 1)

	// 删除任务
	err = queue.DeleteTask(ctx, taskID)
	assert.NoError(t, err)

	// 验证任务已被删除
	_, err = queue.GetTask(ctx, taskID)
	assert.Error(t, err)
	assert.Equal(t, ErrTaskNotFound, err)

	// 验证文档关联也被删除
	tasks, err = queue.GetTasksByDocument(ctx, documentID)
	assert.NoError(t, err)
	assert.Empty(t, tasks)
}

// TestRedisQueue_NotifyTaskUpdate 测试任务更新通知
func TestRedisQueue_NotifyTaskUpdate(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(newTestQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskSummarizeDocument, "doc-notify", &SummarizeDocumentPayload{})
	require.NoError(t, err)

	err = queue.NotifyTaskUpdate(ctx, taskID)
	assert.NoError(t, err)
}

// TestNewQueueFactory 测试队列工厂
func TestNewQueueFactory(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewQueue("redis", newTestQueueConfig(redisAddr))
	assert.NoError(t, err)
	assert.NotNil(t, queue)
	queue.Close()

	_, err = NewQueue("unknown", nil)
	assert.Error(t, err, "未注册的队列实现应该返回错误")
}

// TestMarshalPayload 测试载荷序列化
func TestMarshalPayload(t *testing.T) {
	// nil载荷返回空对象
	data, err := MarshalPayload(nil)
	assert.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	// 结构体载荷正常序列化和还原
	payload := &SummarizeDocumentPayload{
		DocumentID: "doc-1",
		FileName:   "a.txt",
		MinLength:  30,
		MaxLength:  130,
	}
	data, err = MarshalPayload(payload)
	assert.NoError(t, err)

	var decoded SummarizeDocumentPayload
	err = UnmarshalPayload(data, &decoded)
	assert.NoError(t, err)
	assert.Equal(t, payload.DocumentID, decoded.DocumentID)
	assert.Equal(t, payload.MaxLength, decoded.MaxLength)

	// 空数据不报错
	err = UnmarshalPayload(nil, &decoded)
	assert.NoError(t, err)
}

// TestTaskResultAccessors 测试任务结果解码
func TestTaskResultAccessors(t *testing.T) {
	summarizeResult, err := MarshalPayload(&SummarizeDocumentResult{
		DocumentID: "doc-1",
		Summary:    "摘要内容",
		ChunkCount: 2,
	})
	require.NoError(t, err)

	task := &Task{
		ID:     "task-1",
		Type:   TaskSummarizeDocument,
		Status: StatusCompleted,
		Result: summarizeResult,
	}

	t.Run("summarize result decodes", func(t *testing.T) {
		result, err := task.SummarizeResult()
		require.NoError(t, err)
		assert.Equal(t, "摘要内容", result.Summary)
		assert.Equal(t, 2, result.ChunkCount)
	})

	t.Run("wrong task type rejected", func(t *testing.T) {
		_, err := task.BatchResult()
		assert.Error(t, err, "文档摘要任务不应该解码为批量结果")
	})

	t.Run("missing result rejected", func(t *testing.T) {
		empty := &Task{ID: "task-2", Type: TaskSummarizeDocument, Status: StatusPending}
		_, err := empty.SummarizeResult()
		assert.Error(t, err, "没有结果的任务应该返回错误")
	})

	t.Run("done reflects terminal states", func(t *testing.T) {
		assert.True(t, task.Done())
		assert.True(t, (&Task{Status: StatusFailed}).Done())
		assert.False(t, (&Task{Status: StatusPending}).Done())
		assert.False(t, (&Task{Status: StatusProcessing}).Done())
	})
}

// mockHandler 实现Handler接口，用于测试
type mockHandler struct {
	processFunc func(context.Context, *Task) error
	taskTypes   []TaskType
}

func (h *mockHandler) ProcessTask(ctx context.Context, task *Task) error {
	if h.processFunc != nil {
		return h.processFunc(ctx, task)
	}
	return nil
}

func (h *mockHandler) GetTaskTypes() []TaskType {
	return h.taskTypes
}

// TestRedisWorker 测试Redis工作者
// asynq的服务端需要真实的Redis，本地没有时跳过
func TestRedisWorker(t *testing.T) {
	redisAddr := "localhost:6379"

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	_, err := client.Ping(ctx).Result()
	if err != nil {
		t.Skip("Skipping Redis worker test: Redis not available at localhost:6379")
		return
	}
	client.Close()

	cfg := newTestQueueConfig(redisAddr)

	redisQueue, err := NewRedisQueue(cfg)
	require.NoError(t, err)
	defer redisQueue.Close()

	rq, ok := redisQueue.(*RedisQueue)
	require.True(t, ok, "Failed to cast to RedisQueue")

	worker := NewRedisWorker(rq, cfg)
	require.NotNil(t, worker)

	// 注册一个简单的处理器
	processedTasks := make(map[string]bool)
	handler := &mockHandler{
		processFunc: func(ctx context.Context, task *Task) error {
			processedTasks[task.ID] = true
			time.Sleep(100 * time.Millisecond)
			return nil
		},
		taskTypes: []TaskType{TaskSummarizeDocument},
	}

	worker.RegisterHandler(TaskSummarizeDocument, handler)

	// 启动工作者（在后台）
	errChan := make(chan error)
	go func() {
		errChan <- worker.Start()
	}()

	// 等待工作者启动
	time.Sleep(100 * time.Millisecond)

	payload := &SummarizeDocumentPayload{
		DocumentID: "doc-worker-test",
		FilePath:   "/path/to/document.pdf",
		FileName:   "document.pdf",
		FileType:   "pdf",
	}

	taskID, err := redisQueue.Enqueue(ctx, TaskSummarizeDocument, "doc-worker-test", payload)
	require.NoError(t, err)

	// 给工作者一些时间来处理任务
	time.Sleep(500 * time.Millisecond)

	worker.Stop()

	// 检查任务是否已处理
	task, err := redisQueue.GetTask(ctx, taskID)
	if err == nil {
		t.Logf("Task status: %s", task.Status)
	}

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Worker returned error: %v", err)
		}
	default:
	}
}

// TestTaskInfo 测试TaskInfo生成
func TestTaskInfo(t *testing.T) {
	now := time.Now()
	startedAt := now.Add(-5 * time.Minute)
	completedAt := now.Add(-1 * time.Minute)

	task := &Task{
		ID:          "task-123",
		Type:        TaskSummarizeDocument,
		DocumentID:  "doc-123",
		Status:      StatusCompleted,
		Error:       "",
		CreatedAt:   now.Add(-10 * time.Minute),
		UpdatedAt:   now,
		StartedAt:   &startedAt,
		CompletedAt: &completedAt,
		Attempts:    1,
		MaxRetries:  3,
	}

	info := NewTaskInfo(task)

	assert.Equal(t, task.ID, info.ID)
	assert.Equal(t, task.Type, info.Type)
	assert.Equal(t, task.DocumentID, info.DocumentID)
	assert.Equal(t, task.Status, info.Status)
	assert.Equal(t, task.Error, info.Error)
	assert.Equal(t, task.CreatedAt, info.CreatedAt)
	assert.Equal(t, task.StartedAt, info.StartedAt)
	assert.Equal(t, task.CompletedAt, info.CompletedAt)
	assert.Equal(t, 100.0, info.Progress)

	// 各状态对应的进度
	task.Status = StatusPending
	assert.Equal(t, 0.0, NewTaskInfo(task).Progress)
	task.Status = StatusProcessing
	assert.Equal(t, 50.0, NewTaskInfo(task).Progress)
	task.Status = StatusFailed
	assert.Equal(t, 50.0, NewTaskInfo(task).Progress)
}
