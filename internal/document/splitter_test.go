package document

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitBySentence 测试按句子分块功能
func TestSplitBySentence(t *testing.T) {
	config := DefaultSplitterConfig()
	splitter := NewTextSplitter(config)

	t.Run("basic sentence splitting", func(t *testing.T) {
		text := "This is the first sentence. This is the second sentence! Is this the third?"
		chunks, err := splitter.Split(text)
		assert.NoError(t, err)
		require.NotEmpty(t, chunks, "非空文本应该至少产生一个分块")

		t.Logf("分块数量: %d", len(chunks))
		for _, c := range chunks {
			t.Logf("分块 %d: '%s'", c.Index, c.Text)
		}

		// 短文本的句子应该被贪心合并为一个分块
		assert.Equal(t, 1, len(chunks), "总长度小于分块上限时应该合并为一个分块")
		assert.Contains(t, chunks[0].Text, "first sentence")
		assert.Contains(t, chunks[0].Text, "third")
	})

	t.Run("chinese sentence splitting", func(t *testing.T) {
		text := "这是第一个句子。这是第二个句子！这是第三个问题？"
		chunks, err := splitter.Split(text)
		assert.NoError(t, err)
		require.NotEmpty(t, chunks)
		assert.Contains(t, chunks[0].Text, "第一个句子")
	})

	t.Run("greedy merge respects chunk size", func(t *testing.T) {
		small := NewTextSplitter(SplitterConfig{
			SplitType: BySentence,
			ChunkSize: 50,
		})

		var sb strings.Builder
		for i := 0; i < 20; i++ {
			sb.WriteString(fmt.Sprintf("Sentence number %d is here. ", i))
		}

		chunks, err := small.Split(sb.String())
		assert.NoError(t, err)
		assert.Greater(t, len(chunks), 1, "超过分块上限的文本应该被切分成多个分块")

		for _, c := range chunks {
			assert.LessOrEqual(t, len(c.Text), 50, "任何分块都不应该超过配置的大小")
		}
	})

	t.Run("sentence without terminator", func(t *testing.T) {
		text := "a sentence with no terminator at all"
		chunks, err := splitter.Split(text)
		assert.NoError(t, err)
		require.Equal(t, 1, len(chunks), "没有结束符的文本应该作为一个句子处理")
		assert.Equal(t, text, chunks[0].Text)
	})
}

// TestSplitByParagraph 测试按段落分块功能
func TestSplitByParagraph(t *testing.T) {
	splitter := NewTextSplitter(SplitterConfig{
		SplitType: ByParagraph,
		ChunkSize: 30,
	})

	t.Run("paragraphs split by blank lines", func(t *testing.T) {
		text := "First paragraph content here.\n\nSecond paragraph content here.\n\nThird paragraph content here."
		chunks, err := splitter.Split(text)
		assert.NoError(t, err)
		assert.Equal(t, 3, len(chunks), "空行分隔的段落应该各自成块")
		assert.Contains(t, chunks[0].Text, "First")
		assert.Contains(t, chunks[1].Text, "Second")
		assert.Contains(t, chunks[2].Text, "Third")
	})

	t.Run("windows line endings", func(t *testing.T) {
		text := "First paragraph.\r\n\r\nSecond paragraph."
		chunks, err := splitter.Split(text)
		assert.NoError(t, err)
		assert.Equal(t, 2, len(chunks), "应该正确处理Windows换行符")
	})
}

// TestSplitByLength 测试按固定长度分块功能
func TestSplitByLength(t *testing.T) {
	splitter := NewTextSplitter(SplitterConfig{
		SplitType: ByLength,
		ChunkSize: 20,
	})

	t.Run("long text is chunked", func(t *testing.T) {
		text := strings.Repeat("word ", 30)
		chunks, err := splitter.Split(text)
		assert.NoError(t, err)
		assert.Greater(t, len(chunks), 1)

		for _, c := range chunks {
			assert.LessOrEqual(t, len(c.Text), 20, "分块长度不应该超过配置值")
		}
	})

	t.Run("breaks at whitespace", func(t *testing.T) {
		text := "alpha beta gamma delta epsilon zeta"
		chunks, err := splitter.Split(text)
		assert.NoError(t, err)

		// 在空白处断开意味着分块不会截断单词
		for _, c := range chunks {
			for _, w := range strings.Fields(c.Text) {
				assert.Contains(t, text, w, "分块不应该截断单词")
			}
		}
	})

	t.Run("no whitespace hard cut", func(t *testing.T) {
		text := strings.Repeat("x", 55)
		chunks, err := splitter.Split(text)
		assert.NoError(t, err)
		assert.Equal(t, 3, len(chunks), "无空白的长文本应该被硬切")
	})

	t.Run("hard cut keeps runes intact", func(t *testing.T) {
		// 无空白也无标点的中文文本，硬切不能落在多字节字符中间
		text := strings.Repeat("摘要服务分块器测试文本", 5)
		chunks, err := splitter.Split(text)
		assert.NoError(t, err)
		assert.Greater(t, len(chunks), 1)

		var joined strings.Builder
		for _, c := range chunks {
			assert.True(t, utf8.ValidString(c.Text), "分块必须是合法的UTF-8文本")
			joined.WriteString(c.Text)
		}
		assert.Equal(t, text, joined.String(), "按顺序拼接分块应该还原原文")
	})
}

// TestSplitEdgeCases 测试分块的边界情况
func TestSplitEdgeCases(t *testing.T) {
	splitter := NewTextSplitter(DefaultSplitterConfig())

	t.Run("empty text", func(t *testing.T) {
		chunks, err := splitter.Split("")
		assert.NoError(t, err)
		assert.Empty(t, chunks, "空文本应该返回空分块序列")
	})

	t.Run("whitespace only", func(t *testing.T) {
		chunks, err := splitter.Split("   \n\t  ")
		assert.NoError(t, err)
		assert.Empty(t, chunks, "纯空白文本应该返回空分块序列")
	})

	t.Run("unknown split type", func(t *testing.T) {
		bad := NewTextSplitter(SplitterConfig{SplitType: "bogus", ChunkSize: 100})
		_, err := bad.Split("some text")
		assert.Error(t, err, "未知的分块方式应该返回错误")
	})

	t.Run("max chunks limit", func(t *testing.T) {
		limited := NewTextSplitter(SplitterConfig{
			SplitType: BySentence,
			ChunkSize: 20,
			MaxChunks: 2,
		})

		text := "One sentence here. Another sentence here. A third sentence here. A fourth one here."
		chunks, err := limited.Split(text)
		assert.NoError(t, err)
		assert.LessOrEqual(t, len(chunks), 2, "分块数量不应该超过MaxChunks")
	})
}

// TestSplitDeterminismAndOrder 测试分块的确定性和顺序
func TestSplitDeterminismAndOrder(t *testing.T) {
	splitter := NewTextSplitter(SplitterConfig{
		SplitType: BySentence,
		ChunkSize: 64,
	})

	text := "The quick brown fox jumps over the lazy dog. " +
		"Pack my box with five dozen liquor jugs. " +
		"How vexingly quick daft zebras jump. " +
		"Sphinx of black quartz, judge my vow."

	first, err := splitter.Split(text)
	require.NoError(t, err)

	second, err := splitter.Split(text)
	require.NoError(t, err)

	assert.Equal(t, first, second, "同样的输入应该产生同样的分块序列")

	// 分块索引应该连续递增
	for i, c := range first {
		assert.Equal(t, i, c.Index, "分块索引应该与位置一致")
	}

	// 按顺序拼接分块应该还原原文的全部内容
	var joined strings.Builder
	for _, c := range first {
		if joined.Len() > 0 {
			joined.WriteString(" ")
		}
		joined.WriteString(c.Text)
	}
	assert.Equal(t, text, joined.String(), "按顺序拼接分块应该还原原文")
}
