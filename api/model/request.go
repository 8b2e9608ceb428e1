package model

import (
	"mime/multipart"
	"time"
)

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// DocumentUploadRequest 文档上传请求
type DocumentUploadRequest struct {
	File     *multipart.FileHeader `form:"file" binding:"required"`                      // 文件对象
	Tags     string                `form:"tags" json:"tags" binding:"omitempty,taglist"` // 文档标签，逗号分隔
	Metadata map[string]string     `form:"metadata" json:"metadata" binding:"omitempty"` // 文档元数据
}

// DocumentStatusRequest 文档状态查询请求
type DocumentStatusRequest struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// DocumentSummaryRequest 文档摘要查询请求
type DocumentSummaryRequest struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// DocumentListRequest 文档列表请求
type DocumentListRequest struct {
	PaginationRequest
	StartTime *time.Time `form:"start_time" json:"start_time" binding:"omitempty"` // 开始时间
	EndTime   *time.Time `form:"end_time" json:"end_time" binding:"omitempty"`     // 结束时间
	Status    string     `form:"status" json:"status" binding:"omitempty"`         // 文档状态
	Tags      string     `form:"tags" json:"tags" binding:"omitempty"`             // 标签过滤
}

// DocumentDeleteRequest 文档删除请求
type DocumentDeleteRequest struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// SummarizeTextRequest 原始文本摘要请求
type SummarizeTextRequest struct {
	Text      string `json:"text" binding:"required"`                  // 待摘要的文本
	MinLength int    `json:"min_length" binding:"omitempty,min=1"`     // 可选的摘要最小词数
	MaxLength int    `json:"max_length" binding:"omitempty,min=1"`     // 可选的摘要最大词数
}
