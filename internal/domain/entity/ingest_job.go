package entity

import "time"

// IngestKind 入库来源
type IngestKind string

const (
	IngestKindFile IngestKind = "file"
	IngestKindText IngestKind = "text"
)

// IngestStatus 入库任务状态
type IngestStatus string

const (
	IngestStatusQueued     IngestStatus = "queued"
	IngestStatusProcessing IngestStatus = "processing"
	IngestStatusDone       IngestStatus = "done"
	IngestStatusFailed     IngestStatus = "failed"
)

// IngestJob 文档入库任务
type IngestJob struct {
	ID          string       `json:"id"`
	Kind        IngestKind   `json:"kind"`
	Filename    string       `json:"filename"`
	ContentType string       `json:"content_type,omitempty"`
	SizeBytes   int64        `json:"size_bytes"`
	Status      IngestStatus `json:"status"`
	Chunks      int          `json:"chunks"`
	Error       string       `json:"error,omitempty"`
	Attempts    int          `json:"attempts"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewIngestJob 创建排队中的入库任务
func NewIngestJob(id string, kind IngestKind, filename, contentType string, size int64) *IngestJob {
	now := time.Now().UTC()
	return &IngestJob{
		ID:          id,
		Kind:        kind,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   size,
		Status:      IngestStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkProcessing 标记开始处理
func (j *IngestJob) MarkProcessing() {
	j.Status = IngestStatusProcessing
	j.Attempts++
	j.Error = ""
	j.UpdatedAt = time.Now().UTC()
}

// MarkDone 标记完成
func (j *IngestJob) MarkDone(chunks int) {
	j.Status = IngestStatusDone
	j.Chunks = chunks
	j.Error = ""
	j.UpdatedAt = time.Now().UTC()
}

// MarkFailed 标记失败
func (j *IngestJob) MarkFailed(err error) {
	j.Status = IngestStatusFailed
	if err != nil {
		j.Error = err.Error()
	}
	j.UpdatedAt = time.Now().UTC()
}

// Terminal 是否已处于终态
func (j *IngestJob) Terminal() bool {
	return j.Status == IngestStatusDone || j.Status == IngestStatusFailed
}
