package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyerfyer/doc-summarizer/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestFile 在指定目录下写入测试文件
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// longText 生成词数足够做摘要的文本
func longText() string {
	return longSentence(1) + " " + longSentence(2)
}

// TestBatchSummarizeFile 测试单个文件摘要
func TestBatchSummarizeFile(t *testing.T) {
	client := &fakeLLMClient{}
	batch := NewBatchService(newTestSummaryService(client))

	dir := t.TempDir()
	path := writeTestFile(t, dir, "doc.txt", longText())

	result, err := batch.SummarizeFile(context.Background(), path)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Summary)
	assert.Greater(t, client.calls, 0)
}

// TestBatchSummarizeFileUnsupported 测试不支持的文件格式
func TestBatchSummarizeFileUnsupported(t *testing.T) {
	client := &fakeLLMClient{}
	batch := NewBatchService(newTestSummaryService(client))

	dir := t.TempDir()
	path := writeTestFile(t, dir, "data.bin", "binary content")

	_, err := batch.SummarizeFile(context.Background(), path)
	require.Error(t, err, "不支持的格式应该返回错误")
}

// TestBatchSummarizePathDirectory 测试目录批量摘要
func TestBatchSummarizePathDirectory(t *testing.T) {
	client := &fakeLLMClient{}
	batch := NewBatchService(newTestSummaryService(client))

	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", longText())
	writeTestFile(t, dir, "b.txt", longText())
	writeTestFile(t, dir, "skip.bin", "unsupported")

	// 子目录不应该被递归处理
	subdir := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(subdir, 0755))
	writeTestFile(t, subdir, "nested.txt", longText())

	items, err := batch.SummarizePath(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, items, 2, "应该只处理第一层的受支持文件")

	for _, item := range items {
		assert.NoError(t, item.Err)
		assert.NotNil(t, item.Result)
		assert.NotEmpty(t, item.Result.Summary)
	}
}

// TestBatchSummarizePathContinuesOnError 测试单个文件失败不中止批量处理
func TestBatchSummarizePathContinuesOnError(t *testing.T) {
	client := &fakeLLMClient{}
	batch := NewBatchService(newTestSummaryService(client))

	dir := t.TempDir()
	// 空的txt文件解析会失败
	writeTestFile(t, dir, "a_empty.txt", "   ")
	writeTestFile(t, dir, "b_good.txt", longText())

	items, err := batch.SummarizePath(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, items, 2)

	failed, succeeded := 0, 0
	for _, item := range items {
		if item.Err != nil {
			failed++
		} else {
			succeeded++
			assert.NotEmpty(t, item.Result.Summary)
		}
	}
	assert.Equal(t, 1, failed, "空文件应该失败")
	assert.Equal(t, 1, succeeded, "其他文件应该继续处理")
}

// TestBatchSummarizePathSingleFile 测试对单个文件路径的处理
func TestBatchSummarizePathSingleFile(t *testing.T) {
	client := &fakeLLMClient{}
	batch := NewBatchService(newTestSummaryService(client))

	dir := t.TempDir()
	path := writeTestFile(t, dir, "single.txt", longText())

	items, err := batch.SummarizePath(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, path, items[0].Path)
	assert.NoError(t, items[0].Err)
}

// TestBatchSummarizePathMissing 测试不存在的路径
func TestBatchSummarizePathMissing(t *testing.T) {
	client := &fakeLLMClient{}
	batch := NewBatchService(newTestSummaryService(client))

	_, err := batch.SummarizePath(context.Background(), "/no/such/path")
	require.Error(t, err, "不存在的路径应该返回错误")
}

// TestBatchSummarizePathEmptyDirectory 测试没有可处理文件的目录
func TestBatchSummarizePathEmptyDirectory(t *testing.T) {
	client := &fakeLLMClient{}
	batch := NewBatchService(newTestSummaryService(client))

	t.Run("empty directory", func(t *testing.T) {
		_, err := batch.SummarizePath(context.Background(), t.TempDir())
		require.Error(t, err, "空目录应该返回错误而不是空结果")
		assert.Contains(t, err.Error(), "no supported documents")
	})

	t.Run("only unsupported files", func(t *testing.T) {
		dir := t.TempDir()
		writeTestFile(t, dir, "notes.docx", "word document")
		writeTestFile(t, dir, "data.bin", "binary content")

		_, err := batch.SummarizePath(context.Background(), dir)
		require.Error(t, err, "只有不支持格式的目录应该返回错误")
		assert.Equal(t, 0, client.calls, "不应该发起任何模型调用")
	})
}

// TestBatchSummarizeObjects 测试对象存储批量摘要
func TestBatchSummarizeObjects(t *testing.T) {
	client := &fakeLLMClient{}

	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	batch := NewBatchService(newTestSummaryService(client),
		WithBatchStorage(store),
	)

	info, err := store.Save(strings.NewReader(longText()), "stored.txt")
	require.NoError(t, err)

	result := batch.SummarizeObjects(context.Background(), []string{info.ID, "missing-id"})
	require.Len(t, result.Items, 2)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed, "不存在的对象应该计为失败")

	assert.NotEmpty(t, result.Items[0].Summary)
	assert.Empty(t, result.Items[0].Error)
	assert.NotEmpty(t, result.Items[1].Error)
}

// TestBatchSummarizeObjectsNoStorage 测试未配置存储时的批量摘要
func TestBatchSummarizeObjectsNoStorage(t *testing.T) {
	client := &fakeLLMClient{}
	batch := NewBatchService(newTestSummaryService(client))

	result := batch.SummarizeObjects(context.Background(), []string{"id1"})
	assert.Equal(t, 1, result.Failed)
	assert.NotEmpty(t, result.Error)
}
