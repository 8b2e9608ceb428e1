package llm

import (
	"context"
	"strings"
	"sync"
	"text/template"
	"time"
)

// DefaultSummaryTemplate 默认摘要提示词模板
// 包含变量：
// {{.Text}} - 待摘要的文本
// {{.MinWords}} - 摘要最小词数
// {{.MaxWords}} - 摘要最大词数
const DefaultSummaryTemplate = `请你作为一个文本摘要助手，用{{.MinWords}}到{{.MaxWords}}个词概括下面的文本。
摘要必须忠实于原文的主要内容，不要添加原文没有的信息，不要发表评论。

原文:
{{.Text}}

请直接输出摘要内容，不要任何前缀或解释。`

// SummarizerConfig 摘要生成配置
type SummarizerConfig struct {
	// 提示词模板
	Template string
	// 摘要最小词数
	MinLength int
	// 摘要最大词数
	MaxLength int
	// 最大生成Token数
	MaxTokens int
	// 温度参数
	Temperature float32
	// 单次推理超时时间
	Timeout time.Duration
	// 是否按输入长度动态调整摘要长度区间
	DynamicLength bool
}

// DefaultSummarizerConfig 默认摘要配置
// 30/130的长度区间沿用BART摘要模型的常用设置
func DefaultSummarizerConfig() *SummarizerConfig {
	return &SummarizerConfig{
		Template:      DefaultSummaryTemplate,
		MinLength:     30,
		MaxLength:     130,
		MaxTokens:     512,
		Temperature:   0.3,
		Timeout:       60 * time.Second,
		DynamicLength: true,
	}
}

// Summarizer 分块摘要服务
// 每次调用对一个分块做一次模型推理
type Summarizer struct {
	Client Client            // 模型客户端
	config *SummarizerConfig // 配置
	tmpl   *template.Template
	mu     sync.RWMutex // 配置互斥锁
}

// SummarizerOption 摘要配置选项函数类型
type SummarizerOption func(*SummarizerConfig)

// WithSummaryTemplate 设置提示词模板
func WithSummaryTemplate(tpl string) SummarizerOption {
	return func(c *SummarizerConfig) {
		c.Template = tpl
	}
}

// WithLengthBounds 设置摘要长度区间（词数）
func WithLengthBounds(minWords, maxWords int) SummarizerOption {
	return func(c *SummarizerConfig) {
		if minWords > 0 {
			c.MinLength = minWords
		}
		if maxWords > 0 {
			c.MaxLength = maxWords
		}
	}
}

// WithSummaryMaxTokens 设置最大生成Token数
func WithSummaryMaxTokens(tokens int) SummarizerOption {
	return func(c *SummarizerConfig) {
		c.MaxTokens = tokens
	}
}

// WithSummaryTemperature 设置温度参数
func WithSummaryTemperature(temp float32) SummarizerOption {
	return func(c *SummarizerConfig) {
		c.Temperature = temp
	}
}

// WithSummaryTimeout 设置单次推理超时时间
func WithSummaryTimeout(timeout time.Duration) SummarizerOption {
	return func(c *SummarizerConfig) {
		c.Timeout = timeout
	}
}

// WithDynamicLength 设置是否动态调整摘要长度
func WithDynamicLength(enabled bool) SummarizerOption {
	return func(c *SummarizerConfig) {
		c.DynamicLength = enabled
	}
}

// NewSummarizer 创建摘要服务
func NewSummarizer(client Client, opts ...SummarizerOption) *Summarizer {
	cfg := DefaultSummarizerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	tmpl := template.Must(template.New("summary").Parse(cfg.Template))

	return &Summarizer{
		Client: client,
		config: cfg,
		tmpl:   tmpl,
	}
}

// promptData 模板渲染数据
type promptData struct {
	Text     string
	MinWords int
	MaxWords int
}

// SummaryUsage 一次摘要推理的用量信息
type SummaryUsage struct {
	TokenCount int    // 消耗的token数量
	Model      string // 实际使用的模型名称
}

// Summarize 对一段文本做一次摘要推理
// 推理失败不重试，错误原样返回给调用方
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	summary, _, err := s.SummarizeWithUsage(ctx, text)
	return summary, err
}

// SummarizeWithUsage 摘要并返回推理用量
func (s *Summarizer) SummarizeWithUsage(ctx context.Context, text string) (string, *SummaryUsage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, NewModelError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	s.mu.RLock()
	cfg := *s.config
	tmpl := s.tmpl
	s.mu.RUnlock()

	minWords, maxWords := lengthBounds(&cfg, text)

	// 渲染提示词
	var prompt strings.Builder
	if err := tmpl.Execute(&prompt, promptData{
		Text:     text,
		MinWords: minWords,
		MaxWords: maxWords,
	}); err != nil {
		return "", nil, WrapError(err, ErrCodeInvalidRequest)
	}

	// 设置推理超时
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	resp, err := s.Client.Generate(ctx, prompt.String(),
		WithGenerateMaxTokens(cfg.MaxTokens),
		WithGenerateTemperature(cfg.Temperature),
	)
	if err != nil {
		return "", nil, err
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", nil, NewModelError(ErrCodeServerError, "model returned empty summary")
	}

	usage := &SummaryUsage{
		TokenCount: resp.TokenCount,
		Model:      resp.ModelName,
	}
	if usage.Model == "" {
		usage.Model = s.Client.Name()
	}

	return summary, usage, nil
}

// Config 返回当前配置的副本
func (s *Summarizer) Config() SummarizerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.config
}

// lengthBounds 计算摘要长度区间
// 动态模式下按输入词数缩放，避免对短文本要求过长的摘要
func lengthBounds(cfg *SummarizerConfig, text string) (int, int) {
	minWords := cfg.MinLength
	maxWords := cfg.MaxLength

	if !cfg.DynamicLength {
		return minWords, maxWords
	}

	wordCount := len(strings.Fields(text))

	dynamicMin := wordCount / 5
	if dynamicMin < 5 {
		dynamicMin = 5
	}
	if dynamicMin > minWords {
		dynamicMin = minWords
	}

	dynamicMax := wordCount / 2
	if dynamicMax > maxWords {
		dynamicMax = maxWords
	}
	if dynamicMax < dynamicMin+5 {
		dynamicMax = dynamicMin + 5
	}

	return dynamicMin, dynamicMax
}

// WordCount 统计文本的词数
// 用于判断分块是否太短不值得摘要
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// WithOptions 基于当前配置派生一个新的摘要器
// 返回的摘要器与原摘要器共享底层客户端，配置互不影响
func (s *Summarizer) WithOptions(opts ...SummarizerOption) *Summarizer {
	s.mu.RLock()
	cfg := *s.config
	s.mu.RUnlock()

	for _, opt := range opts {
		opt(&cfg)
	}

	return &Summarizer{
		Client: s.Client,
		config: &cfg,
		tmpl:   template.Must(template.New("summary").Parse(cfg.Template)),
	}
}

// UpdateConfig 更新摘要配置
func (s *Summarizer) UpdateConfig(opts ...SummarizerOption) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, opt := range opts {
		opt(s.config)
	}
	s.tmpl = template.Must(template.New("summary").Parse(s.config.Template))
}
