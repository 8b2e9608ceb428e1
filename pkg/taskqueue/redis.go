package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis键统一使用docsum命名空间，避免与共用实例的其他服务冲突。
// 文档到任务的关联用按创建时间打分的有序集合保存，
// 查询文档任务时天然按创建顺序返回。
const (
	taskKey        = "docsum:task:"        // 任务数据键前缀
	documentKey    = "docsum:doc:"         // 文档任务索引键前缀
	taskEventsKey  = "docsum:task_events:" // 任务状态变更通知频道前缀
	taskRetention  = 7 * 24 * time.Hour    // 任务记录保留时间
	waitPollPeriod = time.Second           // 等待任务时的轮询间隔
)

// RedisQueue 基于Redis和asynq的摘要任务队列
// asynq负责投递和重试，任务记录本身存在Redis里供状态查询
type RedisQueue struct {
	client      *asynq.Client    // 任务投递
	inspector   *asynq.Inspector // 队列内任务管理
	redisClient *redis.Client    // 任务记录存储
	cfg         *Config
	logger      *logrus.Logger
}

// NewRedisQueue 创建Redis任务队列实例
func NewRedisQueue(cfg *Config) (Queue, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &RedisQueue{
		client:      asynq.NewClient(opt),
		inspector:   asynq.NewInspector(opt),
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Enqueue 将摘要任务加入队列，立即可被处理
func (q *RedisQueue) Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error) {
	return q.enqueue(ctx, taskType, documentID, payload)
}

// EnqueueAt 在指定时间将任务投入处理
func (q *RedisQueue) EnqueueAt(ctx context.Context, taskType TaskType, documentID string, payload interface{}, processAt time.Time) (string, error) {
	return q.enqueue(ctx, taskType, documentID, payload, asynq.ProcessAt(processAt))
}

// EnqueueIn 在指定延迟后将任务投入处理
func (q *RedisQueue) EnqueueIn(ctx context.Context, taskType TaskType, documentID string, payload interface{}, delay time.Duration) (string, error) {
	return q.enqueue(ctx, taskType, documentID, payload, asynq.ProcessIn(delay))
}

// enqueue 生成任务记录并投递到asynq
// asynq任务的载荷只携带任务ID，完整载荷在Redis的任务记录里
func (q *RedisQueue) enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}, opts ...asynq.Option) (string, error) {
	payloadBytes, err := MarshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	task := &Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		DocumentID: documentID,
		Status:     StatusPending,
		Payload:    payloadBytes,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: q.cfg.RetryLimit,
	}

	if err := q.persistTask(ctx, task); err != nil {
		return "", err
	}
	if err := q.indexTask(ctx, task); err != nil {
		return "", err
	}

	if _, err := q.client.EnqueueContext(ctx, asynq.NewTask(string(taskType), []byte(task.ID)), opts...); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   taskType,
		"document_id": documentID,
	}).Info("Task enqueued successfully")

	return task.ID, nil
}

// GetTask 获取任务信息
func (q *RedisQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	data, err := q.redisClient.Get(ctx, taskKey+taskID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task from redis: %w", err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task data: %w", err)
	}

	return &task, nil
}

// GetTasksByDocument 获取文档相关的所有任务，按创建顺序返回
func (q *RedisQueue) GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error) {
	taskIDs, err := q.redisClient.ZRange(ctx, q.documentIndexKey(documentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get document tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				// 任务记录已过期，索引里的残留跳过即可
				continue
			}
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// WaitForTask 等待任务完成并返回结果
// 订阅任务的状态变更通知，同时定期轮询兜底
func (q *RedisQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Done() {
		return task, nil
	}

	pubsub := q.redisClient.Subscribe(ctx, taskEventsKey+taskID)
	defer pubsub.Close()

	ticker := time.NewTicker(waitPollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ErrTaskTimeout
		case <-pubsub.Channel():
		case <-ticker.C:
		}

		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Done() {
			return task, nil
		}
	}
}

// DeleteTask 删除任务记录及其文档索引
func (q *RedisQueue) DeleteTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.DocumentID != "" {
		if err := q.redisClient.ZRem(ctx, q.documentIndexKey(task.DocumentID), taskID).Err(); err != nil {
			return fmt.Errorf("failed to remove task from document index: %w", err)
		}
	}

	if err := q.redisClient.Del(ctx, taskKey+taskID).Err(); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	// 还没被处理的任务同时从asynq队列里撤下，处理中的撤不下来只记日志
	if err := q.inspector.DeleteTask("default", taskID); err != nil {
		q.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to delete task from asynq queue")
	}

	return nil
}

// UpdateTaskStatus 更新任务状态和结果
// 首次进入处理中状态时记录开始时间，进入终态时记录完成时间
func (q *RedisQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = status
	task.UpdatedAt = now

	if status == StatusProcessing && task.StartedAt == nil {
		task.StartedAt = &now
	}
	if status == StatusCompleted || status == StatusFailed {
		task.CompletedAt = &now
	}

	if result != nil {
		resultBytes, err := MarshalPayload(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		task.Result = resultBytes
	}

	if errMsg != "" {
		task.Error = errMsg
	}

	return q.persistTask(ctx, task)
}

// NotifyTaskUpdate 向等待方广播任务状态变更
func (q *RedisQueue) NotifyTaskUpdate(ctx context.Context, taskID string) error {
	return q.redisClient.Publish(ctx, taskEventsKey+taskID, "updated").Err()
}

// Close 关闭队列连接
func (q *RedisQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	return q.redisClient.Close()
}

// persistTask 将任务记录写入Redis，带保留期限
func (q *RedisQueue) persistTask(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.redisClient.Set(ctx, taskKey+task.ID, data, taskRetention).Err(); err != nil {
		return fmt.Errorf("failed to save task data: %w", err)
	}

	return nil
}

// indexTask 将任务加入文档索引，创建时间做排序分值
func (q *RedisQueue) indexTask(ctx context.Context, task *Task) error {
	if task.DocumentID == "" {
		return nil
	}

	key := q.documentIndexKey(task.DocumentID)
	member := redis.Z{
		Score:  float64(task.CreatedAt.UnixNano()),
		Member: task.ID,
	}
	if err := q.redisClient.ZAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("failed to index task for document: %w", err)
	}
	q.redisClient.Expire(ctx, key, taskRetention)

	return nil
}

// documentIndexKey 返回文档任务索引的键
func (q *RedisQueue) documentIndexKey(documentID string) string {
	return documentKey + documentID + ":tasks"
}

// RedisWorker 消费摘要任务的工作者
type RedisWorker struct {
	server   *asynq.Server
	queue    *RedisQueue
	handlers map[TaskType]Handler
	logger   *logrus.Logger
}

// NewRedisWorker 创建Redis工作者
func NewRedisWorker(queue *RedisQueue, cfg *Config) Worker {
	if cfg == nil {
		cfg = queue.cfg
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return cfg.RetryDelay
			},
			Logger: queue.logger,
		},
	)

	return &RedisWorker{
		server:   server,
		queue:    queue,
		handlers: make(map[TaskType]Handler),
		logger:   queue.logger,
	}
}

// RegisterHandler 注册任务处理器
func (w *RedisWorker) RegisterHandler(taskType TaskType, handler Handler) {
	w.handlers[taskType] = handler
}

// Start 启动工作者
func (w *RedisWorker) Start() error {
	mux := asynq.NewServeMux()

	for taskType, handler := range w.handlers {
		mux.HandleFunc(string(taskType), w.dispatch(handler))
		w.logger.WithField("task_type", taskType).Info("Registered handler for task type")
	}

	return w.server.Start(mux)
}

// Stop 停止工作者
func (w *RedisWorker) Stop() {
	w.server.Shutdown()
}

// dispatch 把Handler包装成asynq处理函数
// 负责任务记录的状态流转和变更通知，Handler只关心摘要逻辑本身
func (w *RedisWorker) dispatch(h Handler) asynq.HandlerFunc {
	return func(ctx context.Context, asynqTask *asynq.Task) error {
		taskID := string(asynqTask.Payload())

		task, err := w.queue.GetTask(ctx, taskID)
		if err != nil {
			w.logger.WithError(err).WithField("task_id", taskID).Error("Failed to get task info")
			return err
		}

		if err := w.queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""); err != nil {
			w.logger.WithError(err).WithField("task_id", taskID).Error("Failed to update task status to processing")
		}
		w.queue.NotifyTaskUpdate(ctx, taskID)

		if err := h.ProcessTask(ctx, task); err != nil {
			if updateErr := w.queue.UpdateTaskStatus(ctx, taskID, StatusFailed, nil, err.Error()); updateErr != nil {
				w.logger.WithError(updateErr).WithField("task_id", taskID).Error("Failed to update task status after failure")
			}
			w.queue.NotifyTaskUpdate(ctx, taskID)
			return err
		}

		// 结果由处理器写入，这里只保证状态收敛到已完成
		if current, err := w.queue.GetTask(ctx, taskID); err == nil && current.Status != StatusCompleted {
			if err := w.queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, nil, ""); err != nil {
				w.logger.WithError(err).WithField("task_id", taskID).Error("Failed to update task status after completion")
			}
		}
		w.queue.NotifyTaskUpdate(ctx, taskID)
		return nil
	}
}

// 注册Redis队列工厂函数
func init() {
	RegisterQueueFactory("redis", func(cfg *Config) (Queue, error) {
		return NewRedisQueue(cfg)
	})
}
