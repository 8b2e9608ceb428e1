package document

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SplitType 文本分块的方式
type SplitType string

const (
	// BySentence 按句子贪心合并分块
	BySentence SplitType = "sentence"
	// ByParagraph 按段落分块
	ByParagraph SplitType = "paragraph"
	// ByLength 按固定字符长度分块
	ByLength SplitType = "length"
)

// SplitterConfig 分块器配置
type SplitterConfig struct {
	SplitType SplitType // 分块方式
	ChunkSize int       // 单个分块的最大长度（字符数）
	MaxChunks int       // 最大分块数量（0表示不限制）
}

// DefaultSplitterConfig 返回默认分块器配置
// 1024字符对应摘要模型单次输入的安全上限
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		SplitType: BySentence,
		ChunkSize: 1024,
		MaxChunks: 0,
	}
}

// TextSplitter 实现文本分块器接口
// 分块是纯函数：同样的输入和配置总是产生同样的分块序列，
// 且按顺序拼接所有分块即可还原原文（空白符处理除外）
type TextSplitter struct {
	config SplitterConfig
}

// NewTextSplitter 创建新的文本分块器
func NewTextSplitter(config SplitterConfig) *TextSplitter {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1024
	}
	return &TextSplitter{
		config: config,
	}
}

// Split 将文本切分成分块序列
// 非空文本至少产生一个分块，任何分块都不超过ChunkSize
func (s *TextSplitter) Split(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return []Chunk{}, nil
	}

	var parts []string

	switch s.config.SplitType {
	case BySentence:
		parts = s.mergeUnits(s.splitSentences(text))
	case ByParagraph:
		parts = s.mergeUnits(s.splitParagraphs(text))
	case ByLength:
		parts = s.splitByLength(text)
	default:
		return nil, fmt.Errorf("unknown split type: %s", s.config.SplitType)
	}

	// 超长的单元（比如没有句号的长文本）再按长度切分
	parts = s.handleLargeParts(parts)

	// 应用最大分块数量限制
	if s.config.MaxChunks > 0 && len(parts) > s.config.MaxChunks {
		parts = parts[:s.config.MaxChunks]
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Text:  part,
			Index: len(chunks),
		})
	}

	return chunks, nil
}

// splitSentences 将文本切分为句子
func (s *TextSplitter) splitSentences(text string) []string {
	// 中英文常见的句子结束符
	delimiters := []rune{'.', '!', '?', '；', '。', '！', '？'}

	var sentences []string
	var current strings.Builder

	for _, char := range text {
		current.WriteRune(char)

		isEnd := false
		for _, d := range delimiters {
			if char == d {
				isEnd = true
				break
			}
		}

		if isEnd {
			sentence := strings.TrimSpace(current.String())
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
		}
	}

	// 最后一个句子可能没有结束符
	last := strings.TrimSpace(current.String())
	if last != "" {
		sentences = append(sentences, last)
	}

	return sentences
}

// splitParagraphs 将文本按空行切分为段落
func (s *TextSplitter) splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	paragraphs := strings.Split(text, "\n\n")

	var result []string
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}

	return result
}

// mergeUnits 贪心合并切分单元
// 只要加上下一个单元（和连接空格）不超过ChunkSize就继续累积，
// 否则结束当前分块并开始新分块；不回溯，不重叠
func (s *TextSplitter) mergeUnits(units []string) []string {
	var result []string
	var current strings.Builder

	for _, unit := range units {
		if current.Len() > 0 && current.Len()+len(unit)+1 > s.config.ChunkSize {
			result = append(result, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(unit)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// splitByLength 按固定长度切分文本
// 在空白处断开避免截断单词，连续无空白时硬切
func (s *TextSplitter) splitByLength(text string) []string {
	var parts []string

	for i := 0; i < len(text); {
		end := i + s.config.ChunkSize
		if end >= len(text) {
			parts = append(parts, text[i:])
			break
		}

		// 尝试在空白处断开
		cut := end
		for cut > i && !unicode.IsSpace(rune(text[cut])) {
			cut--
		}
		if cut <= i {
			// 找不到空白就硬切，但不能把多字节字符切成两半
			cut = end
			for cut > i && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut <= i {
				cut = end
				for cut < len(text) && !utf8.RuneStart(text[cut]) {
					cut++
				}
			}
		}

		parts = append(parts, text[i:cut])
		i = cut
	}

	return parts
}

// handleLargeParts 处理超长的分块单元
func (s *TextSplitter) handleLargeParts(parts []string) []string {
	var result []string

	for _, part := range parts {
		if len(part) > s.config.ChunkSize {
			result = append(result, s.splitByLength(part)...)
		} else {
			result = append(result, part)
		}
	}

	return result
}
