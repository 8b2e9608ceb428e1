package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 元数据旁车文件的后缀
const metaSuffix = ".meta.json"

// LocalStorage 本地文件存储实现
// 文件平铺在基础目录下，以"<id><扩展名>"命名，
// 每个文件旁边有一个元数据文件记录原始文件名和格式信息，
// 这样列表和摘要批处理可以拿到用户上传时的真实文件名
type LocalStorage struct {
	basePath string // 基础存储路径
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	Path string // 本地存储路径
}

// localMeta 落盘的文件元数据
type localMeta struct {
	ID         string    `json:"id"`          // 文件唯一标识符
	Name       string    `json:"name"`        // 原始文件名
	Size       int64     `json:"size"`        // 文件大小
	MimeType   string    `json:"mime_type"`   // 按扩展名推断的MIME类型
	StoredFile string    `json:"stored_file"` // 实际数据文件名
	UploadedAt time.Time `json:"uploaded_at"` // 上传时间
}

// NewLocalStorage 创建本地存储实例
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %v", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %v", err)
	}

	return &LocalStorage{
		basePath: absPath,
	}, nil
}

// Save 保存文件到本地存储
func (s *LocalStorage) Save(reader io.Reader, filename string) (FileInfo, error) {
	id := uuid.New().String()
	storedFile := id + filepath.Ext(filename)
	dataPath := filepath.Join(s.basePath, storedFile)

	file, err := os.Create(dataPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to create file: %v", err)
	}

	size, err := io.Copy(file, reader)
	file.Close()
	if err != nil {
		os.Remove(dataPath)
		return FileInfo{}, fmt.Errorf("failed to write file: %v", err)
	}

	meta := localMeta{
		ID:         id,
		Name:       filename,
		Size:       size,
		MimeType:   getMimeType(filename),
		StoredFile: storedFile,
		UploadedAt: time.Now(),
	}
	if err := s.writeMeta(meta); err != nil {
		os.Remove(dataPath)
		return FileInfo{}, err
	}

	return FileInfo{
		ID:       id,
		Name:     filename,
		Size:     size,
		MimeType: meta.MimeType,
		Path:     storedFile,
	}, nil
}

// Get 获取文件内容
func (s *LocalStorage) Get(id string) (io.ReadCloser, error) {
	meta, err := s.readMeta(id)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(s.basePath, meta.StoredFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}

	return file, nil
}

// Delete 删除文件及其元数据
func (s *LocalStorage) Delete(id string) error {
	meta, err := s.readMeta(id)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.basePath, meta.StoredFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %v", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil {
		return fmt.Errorf("failed to delete file metadata: %v", err)
	}

	return nil
}

// List 列出所有文件
// 返回的文件名是上传时的原始文件名，批量摘要依赖它识别文档格式
func (s *LocalStorage) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %v", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), metaSuffix)
		meta, err := s.readMeta(id)
		if err != nil {
			// 损坏的元数据不应该让整个列表失败
			continue
		}

		files = append(files, FileInfo{
			ID:       meta.ID,
			Name:     meta.Name,
			Size:     meta.Size,
			MimeType: meta.MimeType,
			Path:     meta.StoredFile,
		})
	}

	return files, nil
}

// Exists 检查文件是否存在
func (s *LocalStorage) Exists(id string) (bool, error) {
	_, err := os.Stat(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// metaPath 返回ID对应的元数据文件路径
func (s *LocalStorage) metaPath(id string) string {
	return filepath.Join(s.basePath, id+metaSuffix)
}

// writeMeta 写入元数据文件
func (s *LocalStorage) writeMeta(meta localMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal file metadata: %v", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write file metadata: %v", err)
	}
	return nil
}

// readMeta 读取元数据文件
func (s *LocalStorage) readMeta(id string) (localMeta, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return localMeta{}, fmt.Errorf("file with id %s not found", id)
		}
		return localMeta{}, fmt.Errorf("failed to read file metadata: %v", err)
	}

	var meta localMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return localMeta{}, fmt.Errorf("failed to parse file metadata: %v", err)
	}

	return meta, nil
}
