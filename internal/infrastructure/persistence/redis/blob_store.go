package redis

import (
	"context"
	"fmt"
	"time"

	"cbc-curriculum-chatbot/internal/domain/repository"
)

// BlobStore 上传文件暂存，worker 处理完成后删除
type BlobStore struct {
	client *Client
}

var _ repository.BlobStore = (*BlobStore)(nil)

// NewBlobStore 创建暂存区
func NewBlobStore(client *Client) *BlobStore {
	return &BlobStore{client: client}
}

// BlobKey 任务对应的暂存键
func BlobKey(jobID string) string {
	return "ingest:blob:" + jobID
}

// Put 写入
func (s *BlobStore) Put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("failed to store blob %s: %w", key, err)
	}
	return nil
}

// Get 读取，键不存在时返回 repository.ErrBlobNotFound
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key)
	if err != nil {
		if IsNil(err) {
			return nil, repository.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to load blob %s: %w", key, err)
	}
	return data, nil
}

// Delete 删除
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key)
}
