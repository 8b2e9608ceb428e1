package taskqueue

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskSummarizeDocument 单文档摘要任务
	TaskSummarizeDocument TaskType = "document_summarize"
	// TaskSummarizeBatch 批量摘要任务
	TaskSummarizeBatch TaskType = "batch_summarize"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	DocumentID  string          `json:"document_id"`  // 关联的文档ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据，不同任务类型对应不同结构
	Result      json.RawMessage `json:"result"`       // 任务结果数据，不同任务类型对应不同结构
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// Done 任务是否已进入终态（已完成或已失败）
func (t *Task) Done() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// SummarizeResult 解码单文档摘要任务的结果
// 任务类型不匹配或还没有结果时返回错误
func (t *Task) SummarizeResult() (*SummarizeDocumentResult, error) {
	if t.Type != TaskSummarizeDocument {
		return nil, fmt.Errorf("task %s is not a document summarize task", t.ID)
	}
	if len(t.Result) == 0 {
		return nil, fmt.Errorf("task %s has no result yet", t.ID)
	}

	var result SummarizeDocumentResult
	if err := json.Unmarshal(t.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode summarize result: %w", err)
	}
	return &result, nil
}

// BatchResult 解码批量摘要任务的结果
func (t *Task) BatchResult() (*BatchSummarizeResult, error) {
	if t.Type != TaskSummarizeBatch {
		return nil, fmt.Errorf("task %s is not a batch summarize task", t.ID)
	}
	if len(t.Result) == 0 {
		return nil, fmt.Errorf("task %s has no result yet", t.ID)
	}

	var result BatchSummarizeResult
	if err := json.Unmarshal(t.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode batch result: %w", err)
	}
	return &result, nil
}

// SummarizeDocumentPayload 单文档摘要任务载荷
type SummarizeDocumentPayload struct {
	DocumentID string            `json:"document_id"` // 文档ID
	FilePath   string            `json:"file_path"`   // 文件存储路径
	FileName   string            `json:"file_name"`   // 文件名
	FileType   string            `json:"file_type"`   // 文件类型
	ChunkSize  int               `json:"chunk_size"`  // 分块大小
	SplitType  string            `json:"split_type"`  // 分割类型: paragraph, sentence, length
	MinLength  int               `json:"min_length"`  // 摘要最小词数
	MaxLength  int               `json:"max_length"`  // 摘要最大词数
	Metadata   map[string]string `json:"metadata"`    // 元数据
}

// SummarizeDocumentResult 单文档摘要任务结果
type SummarizeDocumentResult struct {
	DocumentID string `json:"document_id"` // 文档ID
	Summary    string `json:"summary"`     // 生成的摘要
	ChunkCount int    `json:"chunk_count"` // 分块数量
	Model      string `json:"model"`       // 使用的模型
	TokenCount int    `json:"token_count"` // 消耗的token数量
	Error      string `json:"error"`       // 错误信息（如果有）
}

// BatchSummarizePayload 批量摘要任务载荷
type BatchSummarizePayload struct {
	Paths     []string `json:"paths"`      // 存储中的对象路径列表
	ChunkSize int      `json:"chunk_size"` // 分块大小
	SplitType string   `json:"split_type"` // 分割类型
	MinLength int      `json:"min_length"` // 摘要最小词数
	MaxLength int      `json:"max_length"` // 摘要最大词数
}

// BatchItemResult 批量摘要中单个文件的结果
type BatchItemResult struct {
	Path       string `json:"path"`        // 文件路径
	DocumentID string `json:"document_id"` // 文档ID（如果已创建）
	Summary    string `json:"summary"`     // 生成的摘要
	Error      string `json:"error"`       // 该文件的错误信息（如果有）
}

// BatchSummarizeResult 批量摘要任务结果
// 单个文件失败不影响其他文件，失败项记录在对应的BatchItemResult中
type BatchSummarizeResult struct {
	Items     []BatchItemResult `json:"items"`     // 按输入顺序排列的结果列表
	Succeeded int               `json:"succeeded"` // 成功数量
	Failed    int               `json:"failed"`    // 失败数量
	Error     string            `json:"error"`     // 整体错误信息（如果有）
}
