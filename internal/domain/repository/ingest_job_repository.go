package repository

import (
	"context"
	"errors"
	"time"

	"cbc-curriculum-chatbot/internal/domain/entity"
)

var (
	// ErrJobNotFound 入库任务不存在或已过期
	ErrJobNotFound = errors.New("ingest job not found")
	// ErrBlobNotFound 暂存文件不存在或已过期
	ErrBlobNotFound = errors.New("ingest blob not found")
)

// IngestJobRepository 入库任务状态存储
type IngestJobRepository interface {
	Save(ctx context.Context, job *entity.IngestJob) error
	Get(ctx context.Context, id string) (*entity.IngestJob, error)
}

// BlobStore 上传文件的临时存储，供异步 worker 读取
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
