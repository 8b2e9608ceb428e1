package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyerfyer/doc-summarizer/internal/cache"
	"github.com/fyerfyer/doc-summarizer/internal/document"
	"github.com/fyerfyer/doc-summarizer/internal/llm"
	"github.com/sirupsen/logrus"
)

// 默认最小分块词数，低于该词数的分块不做摘要推理
const defaultMinChunkWords = 10

// SummaryResult 摘要生成结果
type SummaryResult struct {
	Summary          string // 最终摘要文本
	ChunkCount       int    // 分块总数
	SummarizedChunks int    // 实际做了推理的分块数
	SkippedChunks    int    // 因过短被跳过的分块数
	Model            string // 使用的模型名称
	TokenCount       int    // 推理消耗的token总数
	Cached           bool   // 结果是否来自缓存
}

// SummaryService 摘要服务
// 负责协调文本分块、逐块推理和结果聚合
type SummaryService struct {
	summarizer    *llm.Summarizer          // 分块摘要器
	splitter      document.Splitter        // 文本分块器
	summaryCache  *cache.SummaryCache      // 摘要结果缓存，可为空
	minChunkWords int                      // 最小分块词数
	logger        *logrus.Logger           // 日志记录器
}

// SummaryOption 摘要服务配置选项
type SummaryOption func(*SummaryService)

// WithSummaryCache 设置摘要结果缓存
func WithSummaryCache(c *cache.SummaryCache) SummaryOption {
	return func(s *SummaryService) {
		s.summaryCache = c
	}
}

// WithMinChunkWords 设置最小分块词数
func WithMinChunkWords(words int) SummaryOption {
	return func(s *SummaryService) {
		if words > 0 {
			s.minChunkWords = words
		}
	}
}

// WithSummaryServiceLogger 设置日志记录器
func WithSummaryServiceLogger(logger *logrus.Logger) SummaryOption {
	return func(s *SummaryService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSummaryService 创建摘要服务
func NewSummaryService(summarizer *llm.Summarizer, splitter document.Splitter, opts ...SummaryOption) *SummaryService {
	srv := &SummaryService{
		summarizer:    summarizer,
		splitter:      splitter,
		minChunkWords: defaultMinChunkWords,
		logger:        logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithLengthBounds 派生一个使用指定摘要长度范围的摘要服务
// 缓存键包含长度范围，不同范围的结果互不干扰
func (s *SummaryService) WithLengthBounds(minWords, maxWords int) *SummaryService {
	derived := *s
	derived.summarizer = s.summarizer.WithOptions(llm.WithLengthBounds(minWords, maxWords))
	return &derived
}

// SummarizeText 对一段完整文本生成摘要
// 文本被分块后逐块推理，各分块摘要按原文顺序用空格拼接
func (s *SummaryService) SummarizeText(ctx context.Context, text string) (*SummaryResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}

	// 整体过短的文本直接原样返回，不做推理
	if llm.WordCount(text) < s.minChunkWords {
		s.logger.WithField("word_count", llm.WordCount(text)).
			Debug("Text too short to summarize, returning as-is")
		return &SummaryResult{
			Summary:       text,
			ChunkCount:    1,
			SkippedChunks: 1,
			Model:         s.summarizer.Client.Name(),
		}, nil
	}

	cfg := s.summarizer.Config()
	model := s.summarizer.Client.Name()

	// 查找缓存，相同文本相同参数直接复用
	if s.summaryCache != nil {
		entry, found, err := s.summaryCache.Get(text, model, cfg.MinLength, cfg.MaxLength)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to read summary cache")
		} else if found {
			s.logger.Debug("Summary cache hit")
			return &SummaryResult{
				Summary:    entry.Summary,
				ChunkCount: entry.ChunkCount,
				Model:      entry.Model,
				TokenCount: entry.TokenCount,
				Cached:     true,
			}, nil
		}
	}

	// 文本分块
	chunks, err := s.splitter.Split(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	result, err := s.SummarizeChunks(ctx, chunks, nil)
	if err != nil {
		return nil, err
	}

	// 写入缓存，失败只记录日志
	if s.summaryCache != nil {
		entry := &cache.SummaryEntry{
			Summary:    result.Summary,
			ChunkCount: result.ChunkCount,
			Model:      result.Model,
			TokenCount: result.TokenCount,
		}
		if err := s.summaryCache.Set(text, model, cfg.MinLength, cfg.MaxLength, entry); err != nil {
			s.logger.WithError(err).Warn("Failed to write summary cache")
		}
	}

	return result, nil
}

// SummarizeChunks 对已分块的文本逐块生成摘要并聚合
// 分块按顺序依次推理，任何一块失败都会中止整个过程
// progress回调在每个分块处理后调用，可为nil
func (s *SummaryService) SummarizeChunks(ctx context.Context, chunks []document.Chunk, progress func(done, total int)) (*SummaryResult, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to summarize")
	}

	summaries := make([]string, 0, len(chunks))
	skipped := 0
	totalTokens := 0
	model := s.summarizer.Client.Name()

	for i, chunk := range chunks {
		// 检查上下文是否已取消
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// 过短的分块跳过推理
		if llm.WordCount(chunk.Text) < s.minChunkWords {
			s.logger.WithFields(logrus.Fields{
				"chunk_index": chunk.Index,
				"word_count":  llm.WordCount(chunk.Text),
			}).Debug("Skipping short chunk")
			skipped++
			if progress != nil {
				progress(i+1, len(chunks))
			}
			continue
		}

		summary, usage, err := s.summarizer.SummarizeWithUsage(ctx, chunk.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize chunk %d: %w", chunk.Index, err)
		}

		summaries = append(summaries, summary)
		if usage != nil {
			totalTokens += usage.TokenCount
			if usage.Model != "" {
				model = usage.Model
			}
		}

		if progress != nil {
			progress(i+1, len(chunks))
		}
	}

	if len(summaries) == 0 {
		return nil, errors.New("all chunks were too short to summarize")
	}

	// 按原文顺序用空格拼接各分块摘要
	return &SummaryResult{
		Summary:          strings.Join(summaries, " "),
		ChunkCount:       len(chunks),
		SummarizedChunks: len(summaries),
		SkippedChunks:    skipped,
		Model:            model,
		TokenCount:       totalTokens,
	}, nil
}

// Summarizer 返回底层的分块摘要器
func (s *SummaryService) Summarizer() *llm.Summarizer {
	return s.summarizer
}
