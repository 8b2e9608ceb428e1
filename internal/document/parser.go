package document

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// Parser 文档解析器接口
// 负责将不同格式的文档提取为纯文本
type Parser interface {
	// Parse 解析文档文件，返回提取的文本内容
	Parse(filePath string) (string, error)

	// ParseReader 从Reader解析文档，返回提取的文本内容
	// filename用于确定文档类型
	ParseReader(r io.Reader, filename string) (string, error)
}

// Format 表示文档的格式类型
type Format string

const (
	// PDF 文档格式
	PDF Format = "pdf"
	// Markdown 文档格式
	Markdown Format = "markdown"
	// PlainText 纯文本格式
	PlainText Format = "plaintext"
	// Unknown 未知格式
	Unknown Format = "unknown"
)

// 提取阶段的错误
var (
	// ErrUnsupportedFormat 不支持的文档格式
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEmptyDocument 文档提取后没有任何文本内容
	ErrEmptyDocument = errors.New("no extractable text in document")
)

// ParserFactory 解析器工厂函数，根据文件格式创建对应的解析器
func ParserFactory(filePath string) (Parser, error) {
	switch DetectFormat(filePath) {
	case PDF:
		return NewPDFParser(), nil
	case Markdown:
		return NewMarkdownParser(), nil
	case PlainText:
		return NewPlainTextParser(), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// DetectFormat 根据文件扩展名检测文档格式
func DetectFormat(filePath string) Format {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".pdf":
		return PDF
	case ".md", ".markdown":
		return Markdown
	case ".txt":
		return PlainText
	default:
		return Unknown
	}
}

// Chunk 表示提取文本中的一个有序分块
// 分块是摘要模型的输入单位，按Index保持原文顺序
type Chunk struct {
	Text  string // 分块文本内容
	Index int    // 分块在原文中的序号
}

// Splitter 文本分块器接口
// 负责将长文本切分为不超过最大长度的有序分块
type Splitter interface {
	// Split 将文本切分成分块序列
	Split(text string) ([]Chunk, error)
}
