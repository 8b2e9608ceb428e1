package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyerfyer/doc-summarizer/internal/document"
	"github.com/fyerfyer/doc-summarizer/pkg/storage"
	"github.com/fyerfyer/doc-summarizer/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// BatchItem 批量处理中单个文件的结果
type BatchItem struct {
	Path    string         // 文件路径
	Result  *SummaryResult // 摘要结果，失败时为nil
	Err     error          // 该文件的错误，成功时为nil
}

// BatchService 批量摘要服务
// 支持对本地文件、目录和对象存储中的文件做批量摘要
type BatchService struct {
	summarySvc *SummaryService // 摘要服务
	storage    storage.Storage // 对象存储，可为空
	logger     *logrus.Logger  // 日志记录器
}

// BatchOption 批量服务配置选项
type BatchOption func(*BatchService)

// WithBatchStorage 设置对象存储
func WithBatchStorage(s storage.Storage) BatchOption {
	return func(b *BatchService) {
		b.storage = s
	}
}

// WithBatchLogger 设置日志记录器
func WithBatchLogger(logger *logrus.Logger) BatchOption {
	return func(b *BatchService) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBatchService 创建批量摘要服务
func NewBatchService(summarySvc *SummaryService, opts ...BatchOption) *BatchService {
	srv := &BatchService{
		summarySvc: summarySvc,
		logger:     logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// SummarizeFile 对单个本地文件生成摘要
func (b *BatchService) SummarizeFile(ctx context.Context, path string) (*SummaryResult, error) {
	parser, err := document.ParserFactory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create parser for %s: %w", path, err)
	}

	content, err := parser.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return b.summarySvc.SummarizeText(ctx, content)
}

// SummarizePath 对本地文件或目录生成摘要
// 目录模式下只处理第一层的受支持文件，不递归子目录
// 单个文件失败不会中止其他文件的处理，结果按文件名顺序返回
func (b *BatchService) SummarizePath(ctx context.Context, path string) ([]BatchItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}

	// 单个文件直接处理
	if !info.IsDir() {
		result, err := b.SummarizeFile(ctx, path)
		return []BatchItem{{Path: path, Result: result, Err: err}}, nil
	}

	// 目录模式，列出第一层文件
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var items []BatchItem
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filePath := filepath.Join(path, entry.Name())

		// 跳过不支持的格式
		if document.DetectFormat(filePath) == document.Unknown {
			b.logger.WithField("path", filePath).Debug("Skipping unsupported file")
			continue
		}

		// 检查上下文是否已取消
		select {
		case <-ctx.Done():
			return items, ctx.Err()
		default:
		}

		result, err := b.SummarizeFile(ctx, filePath)
		if err != nil {
			b.logger.WithError(err).WithField("path", filePath).Warn("Failed to summarize file")
		}
		items = append(items, BatchItem{Path: filePath, Result: result, Err: err})
	}

	// 目录中没有任何受支持的文件视为失败，而不是静默返回空结果
	if len(items) == 0 {
		return nil, fmt.Errorf("no supported documents found in directory %s", path)
	}

	return items, nil
}

// SummarizeObjects 对对象存储中的一批文件生成摘要
// ids为存储中的文件标识符，结果按输入顺序返回
func (b *BatchService) SummarizeObjects(ctx context.Context, ids []string) *taskqueue.BatchSummarizeResult {
	result := &taskqueue.BatchSummarizeResult{
		Items: make([]taskqueue.BatchItemResult, 0, len(ids)),
	}

	if b.storage == nil {
		result.Error = "storage not configured"
		result.Failed = len(ids)
		for _, id := range ids {
			result.Items = append(result.Items, taskqueue.BatchItemResult{
				Path:  id,
				Error: "storage not configured",
			})
		}
		return result
	}

	// 建立一次ID到文件名的映射，避免每个文件都遍历存储
	names := make(map[string]string)
	if files, err := b.storage.List(); err == nil {
		for _, f := range files {
			names[f.ID] = f.Name
		}
	} else {
		b.logger.WithError(err).Warn("Failed to list storage files")
	}

	for _, id := range ids {
		item := taskqueue.BatchItemResult{Path: id, DocumentID: id}

		summary, err := b.summarizeObject(ctx, id, names[id])
		if err != nil {
			item.Error = err.Error()
			result.Failed++
		} else {
			item.Summary = summary
			result.Succeeded++
		}

		result.Items = append(result.Items, item)
	}

	return result
}

// summarizeObject 对单个存储对象生成摘要
func (b *BatchService) summarizeObject(ctx context.Context, id string, name string) (string, error) {
	if name == "" {
		name = id
	}

	parser, err := document.ParserFactory(name)
	if err != nil {
		return "", fmt.Errorf("failed to create parser for %s: %w", name, err)
	}

	reader, err := b.storage.Get(id)
	if err != nil {
		return "", fmt.Errorf("failed to get file from storage: %w", err)
	}
	defer reader.Close()

	content, err := parser.ParseReader(reader, name)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", name, err)
	}

	result, err := b.summarySvc.SummarizeText(ctx, content)
	if err != nil {
		return "", err
	}

	return result.Summary, nil
}
