// Package repository 定义数据访问端口
package repository

import (
	"context"
	"errors"

	"cbc-curriculum-chatbot/internal/domain/entity"
)

// CollectionID 向量库集合的不透明标识
type CollectionID string

var (
	// ErrCollectionNotFound 集合既不存在也无法创建
	ErrCollectionNotFound = errors.New("vector collection not found")
	// ErrBatchLengthMismatch 写入批次的 ids/vectors/documents/metadatas 长度不一致
	ErrBatchLengthMismatch = errors.New("upsert batch columns have different lengths")
)

// VectorStore 向量库访问端口
type VectorStore interface {
	// ResolveCollection 按名称解析集合，不存在时创建；结果在实例内缓存
	ResolveCollection(ctx context.Context, name string) (CollectionID, error)
	// Query 批量相似度检索，每个向量返回一组按相似度降序的片段
	Query(ctx context.Context, id CollectionID, vectors [][]float32, topK int) ([][]entity.Fragment, error)
	// Upsert 按 id 插入或覆盖
	Upsert(ctx context.Context, id CollectionID, batch entity.UpsertBatch) error
	// Count 返回集合记录数
	Count(ctx context.Context, id CollectionID) (int, error)
	// HealthCheck 检查向量库可达
	HealthCheck(ctx context.Context) error
}
