package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fyerfyer/doc-summarizer/internal/document"
	"github.com/fyerfyer/doc-summarizer/internal/llm"
	"github.com/fyerfyer/doc-summarizer/internal/services"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// 命令行配置
type cliConfig struct {
	Model     string        // 摘要模型名称
	APIKey    string        // 模型API密钥
	ChunkSize int           // 分块大小
	MinLength int           // 摘要最小词数
	MaxLength int           // 摘要最大词数
	Timeout   time.Duration // 整体超时时间
	Verbose   bool          // 是否输出详细日志
}

func main() {
	// 加载.env文件（如果存在）
	_ = godotenv.Load()

	cfg := parseFlags()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: summarize [options] <file-or-directory>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	// 初始化日志
	logger := logrus.New()
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key is required (set TONGYI_API_KEY or use -key)")
		os.Exit(2)
	}

	// 创建模型客户端
	client, err := llm.NewClient("tongyi",
		llm.WithAPIKey(cfg.APIKey),
		llm.WithModel(cfg.Model),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create LLM client: %v\n", err)
		os.Exit(1)
	}

	// 创建摘要器和摘要服务
	summarizer := llm.NewSummarizer(client,
		llm.WithLengthBounds(cfg.MinLength, cfg.MaxLength),
		llm.WithDynamicLength(true),
	)

	splitter := document.NewTextSplitter(document.SplitterConfig{
		SplitType: document.BySentence,
		ChunkSize: cfg.ChunkSize,
	})

	summaryService := services.NewSummaryService(summarizer, splitter,
		services.WithSummaryServiceLogger(logger),
	)

	batchService := services.NewBatchService(summaryService,
		services.WithBatchLogger(logger),
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	// 对文件或目录生成摘要
	items, err := batchService.SummarizePath(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(items) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no summarizable input in %s\n", path)
		os.Exit(1)
	}

	// 输出结果，逐个文件标注来源
	failed := 0
	for _, item := range items {
		fmt.Printf("=== %s ===\n", item.Path)
		if item.Err != nil {
			failed++
			fmt.Printf("Error: %v\n\n", item.Err)
			continue
		}
		fmt.Printf("%s\n\n", item.Result.Summary)
	}

	if failed == len(items) && len(items) > 0 {
		os.Exit(1)
	}
}

// parseFlags 解析命令行参数
func parseFlags() cliConfig {
	cfg := cliConfig{}

	flag.StringVar(&cfg.Model, "model", "qwen-turbo", "LLM model name")
	flag.StringVar(&cfg.APIKey, "key", "", "LLM API key")
	flag.IntVar(&cfg.ChunkSize, "chunk-size", 1024, "Maximum text chunk size")
	flag.IntVar(&cfg.MinLength, "min-length", 30, "Minimum summary length in words")
	flag.IntVar(&cfg.MaxLength, "max-length", 130, "Maximum summary length in words")
	flag.DurationVar(&cfg.Timeout, "timeout", 10*time.Minute, "Overall timeout")
	flag.BoolVar(&cfg.Verbose, "v", false, "Enable verbose logging")

	flag.Parse()

	// 环境变量优先级高于命令行默认值
	if cfg.APIKey == "" {
		if key := os.Getenv("TONGYI_API_KEY"); key != "" {
			cfg.APIKey = key
		} else if key := os.Getenv("LLM_API_KEY"); key != "" {
			cfg.APIKey = key
		}
	}

	return cfg
}
