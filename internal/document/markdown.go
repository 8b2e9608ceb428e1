package document

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownParser Markdown文档解析器
type MarkdownParser struct{}

// NewMarkdownParser 创建新的Markdown解析器
func NewMarkdownParser() Parser {
	return &MarkdownParser{}
}

// Parse 解析Markdown文件并提取文本内容
func (p *MarkdownParser) Parse(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open markdown file: %v", err)
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader解析Markdown内容
// 先渲染成HTML，再剥离标签得到纯文本
func (p *MarkdownParser) ParseReader(r io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read markdown content: %v", err)
	}

	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	mdParser := parser.NewWithExtensions(extensions)
	doc := mdParser.Parse(content)

	htmlFlags := html.CommonFlags
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	htmlContent := markdown.Render(doc, renderer)

	plainText := extractTextFromHTML(string(htmlContent))
	if strings.TrimSpace(plainText) == "" {
		return "", ErrEmptyDocument
	}

	return plainText, nil
}

// htmlTagPattern 匹配HTML标签
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// extractTextFromHTML 从HTML中提取纯文本
// 块级标签的结束位置换成换行符，保留段落结构
func extractTextFromHTML(htmlContent string) string {
	// 块级元素结束时插入换行，让段落分块仍然可用
	for _, tag := range []string{"</p>", "</h1>", "</h2>", "</h3>", "</h4>", "</h5>", "</h6>", "</li>", "</blockquote>", "<br>", "<br/>"} {
		htmlContent = strings.ReplaceAll(htmlContent, tag, tag+"\n")
	}

	// 移除所有HTML标签
	text := htmlTagPattern.ReplaceAllString(htmlContent, "")

	// 还原常见的HTML实体
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
		"&nbsp;", " ",
	)
	text = replacer.Replace(text)

	// 压缩多余空行
	lines := strings.Split(text, "\n")
	var result []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n\n")
}
