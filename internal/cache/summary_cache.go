package cache

import (
	"encoding/json"
	"time"
)

// SummaryEntry 缓存的摘要条目
type SummaryEntry struct {
	Summary    string `json:"summary"`     // 摘要文本
	ChunkCount int    `json:"chunk_count"` // 生成摘要时的分块数量
	Model      string `json:"model"`       // 使用的模型
	TokenCount int    `json:"token_count"` // 消耗的token数量
}

// SummaryCache 摘要结果缓存
// 按文本内容哈希寻址，相同文本相同参数直接复用已生成的摘要
type SummaryCache struct {
	cache Cache
	ttl   time.Duration
}

// NewSummaryCache 创建摘要缓存
func NewSummaryCache(cache Cache, ttl time.Duration) *SummaryCache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &SummaryCache{
		cache: cache,
		ttl:   ttl,
	}
}

// Get 查找文本对应的缓存摘要
func (c *SummaryCache) Get(text string, model string, minLength, maxLength int) (*SummaryEntry, bool, error) {
	key := SummaryCacheKey(text, model, minLength, maxLength)
	value, found, err := c.cache.Get(key)
	if err != nil || !found {
		return nil, false, err
	}

	var entry SummaryEntry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		// 缓存数据损坏，当作未命中处理
		return nil, false, nil
	}
	return &entry, true, nil
}

// Set 缓存摘要结果
func (c *SummaryCache) Set(text string, model string, minLength, maxLength int, entry *SummaryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := SummaryCacheKey(text, model, minLength, maxLength)
	return c.cache.Set(key, string(data), c.ttl)
}

// Invalidate 删除文本对应的缓存摘要
func (c *SummaryCache) Invalidate(text string, model string, minLength, maxLength int) error {
	return c.cache.Delete(SummaryCacheKey(text, model, minLength, maxLength))
}
