package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSummaryCache 测试摘要缓存
func TestSummaryCache(t *testing.T) {
	backend, err := NewMemoryCache(DefaultConfig())
	require.NoError(t, err)
	sc := NewSummaryCache(backend, time.Hour)

	entry := &SummaryEntry{
		Summary:    "这是缓存的摘要",
		ChunkCount: 3,
		Model:      "qwen-turbo",
		TokenCount: 42,
	}

	t.Run("miss before set", func(t *testing.T) {
		_, found, err := sc.Get("document text", "qwen-turbo", 30, 130)
		assert.NoError(t, err)
		assert.False(t, found, "未缓存的文本应该未命中")
	})

	t.Run("hit after set", func(t *testing.T) {
		require.NoError(t, sc.Set("document text", "qwen-turbo", 30, 130, entry))

		got, found, err := sc.Get("document text", "qwen-turbo", 30, 130)
		require.NoError(t, err)
		require.True(t, found, "缓存后应该命中")
		assert.Equal(t, entry.Summary, got.Summary)
		assert.Equal(t, entry.ChunkCount, got.ChunkCount)
		assert.Equal(t, entry.Model, got.Model)
		assert.Equal(t, entry.TokenCount, got.TokenCount)
	})

	t.Run("different params miss", func(t *testing.T) {
		_, found, err := sc.Get("document text", "qwen-turbo", 10, 20)
		assert.NoError(t, err)
		assert.False(t, found, "不同长度区间的查询不应该命中")

		_, found, err = sc.Get("document text", "other-model", 30, 130)
		assert.NoError(t, err)
		assert.False(t, found, "不同模型的查询不应该命中")
	})

	t.Run("invalidate", func(t *testing.T) {
		require.NoError(t, sc.Invalidate("document text", "qwen-turbo", 30, 130))

		_, found, err := sc.Get("document text", "qwen-turbo", 30, 130)
		assert.NoError(t, err)
		assert.False(t, found, "失效后的缓存不应该命中")
	})

	t.Run("corrupt entry treated as miss", func(t *testing.T) {
		key := SummaryCacheKey("corrupt", "qwen-turbo", 30, 130)
		require.NoError(t, backend.Set(key, "not-json{", time.Minute))

		_, found, err := sc.Get("corrupt", "qwen-turbo", 30, 130)
		assert.NoError(t, err)
		assert.False(t, found, "损坏的缓存数据应该当作未命中")
	})
}
