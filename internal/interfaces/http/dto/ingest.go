package dto

import (
	"fmt"
	"time"

	"cbc-curriculum-chatbot/internal/domain/entity"
)

// IngestTextRequest 文本入库请求
type IngestTextRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// IngestQueuedResponse 文件入库排队响应
type IngestQueuedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// IngestTextResponse 文本入库响应
type IngestTextResponse struct {
	Success       bool `json:"success"`
	IndexedChunks int  `json:"indexed_chunks"`
}

// IngestJobResponse 入库任务状态
type IngestJobResponse struct {
	JobID       string `json:"job_id"`
	Kind        string `json:"kind"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	Status      string `json:"status"`
	Chunks      int    `json:"chunks"`
	Error       string `json:"error,omitempty"`
	Attempts    int    `json:"attempts"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// NewIngestQueuedResponse 构造排队响应
func NewIngestQueuedResponse(job *entity.IngestJob) IngestQueuedResponse {
	return IngestQueuedResponse{
		Success: true,
		Message: fmt.Sprintf("File %s queued for ingestion.", job.Filename),
		JobID:   job.ID,
	}
}

// ToIngestJobResponse 转换任务实体
func ToIngestJobResponse(job *entity.IngestJob) IngestJobResponse {
	return IngestJobResponse{
		JobID:       job.ID,
		Kind:        string(job.Kind),
		Filename:    job.Filename,
		ContentType: job.ContentType,
		SizeBytes:   job.SizeBytes,
		Status:      string(job.Status),
		Chunks:      job.Chunks,
		Error:       job.Error,
		Attempts:    job.Attempts,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
	}
}
