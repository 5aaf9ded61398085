package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cbc-curriculum-chatbot/internal/domain/entity"
	"cbc-curriculum-chatbot/internal/domain/repository"
)

const jobKeyPrefix = "ingest:job:"

// IngestJobRepository 入库任务状态仓储，任务记录带 TTL 自动过期
type IngestJobRepository struct {
	cache *Cache
	ttl   time.Duration
}

var _ repository.IngestJobRepository = (*IngestJobRepository)(nil)

// NewIngestJobRepository 创建任务仓储
func NewIngestJobRepository(cache *Cache, ttl time.Duration) *IngestJobRepository {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &IngestJobRepository{cache: cache, ttl: ttl}
}

// Save 保存任务，每次状态迁移都会刷新 TTL
func (r *IngestJobRepository) Save(ctx context.Context, job *entity.IngestJob) error {
	if err := r.cache.Set(ctx, jobKeyPrefix+job.ID, job, r.ttl); err != nil {
		return fmt.Errorf("failed to save ingest job %s: %w", job.ID, err)
	}
	return nil
}

// Get 获取任务
func (r *IngestJobRepository) Get(ctx context.Context, id string) (*entity.IngestJob, error) {
	raw, err := r.cache.Get(ctx, jobKeyPrefix+id)
	if err != nil {
		if IsNil(err) {
			return nil, repository.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load ingest job %s: %w", id, err)
	}

	var job entity.IngestJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to decode ingest job %s: %w", id, err)
	}
	return &job, nil
}
