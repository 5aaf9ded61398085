// Package milvus 提供 Milvus 向量库实现，作为 Chroma 之外的可选后端
package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/pkg/tracer"
)

// Client Milvus 客户端
type Client struct {
	milvus client.Client
	config *config.MilvusConfig
}

// NewClient 创建 Milvus 客户端
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	conf := client.Config{Address: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}
	if cfg.User != "" && cfg.Password != "" {
		conf.Username = cfg.User
		conf.Password = cfg.Password
	}

	milvusClient, err := client.NewClient(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}
	return NewClientWith(milvusClient, cfg), nil
}

// NewClientWith 包装已有的 SDK 客户端
func NewClientWith(mc client.Client, cfg *config.MilvusConfig) *Client {
	return &Client{milvus: mc, config: cfg}
}

// Close 关闭 Milvus 连接
func (c *Client) Close() error {
	return c.milvus.Close()
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.HealthCheck")
	defer span.End()

	if _, err := c.milvus.HasCollection(ctx, "health_check"); err != nil {
		tracer.Fail(span, err)
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// ensureCollection 集合不存在时建表并建立 HNSW 索引，随后加载到内存
func (c *Client) ensureCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.EnsureCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	has, err := c.milvus.HasCollection(ctx, name)
	if err != nil {
		tracer.Fail(span, err)
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}

	if !has {
		if err := c.milvus.CreateCollection(ctx, CurriculumSchema(name, c.dimension()), entity.DefaultShardNumber); err != nil {
			tracer.Fail(span, err)
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		idx, err := c.hnswIndex()
		if err != nil {
			return err
		}
		if err := c.milvus.CreateIndex(ctx, name, FieldVector, idx, false); err != nil {
			tracer.Fail(span, err)
			return fmt.Errorf("failed to create index on %s: %w", name, err)
		}
	}

	if err := c.milvus.LoadCollection(ctx, name, false); err != nil {
		tracer.Fail(span, err)
		return fmt.Errorf("failed to load collection %s: %w", name, err)
	}
	return nil
}

func (c *Client) dimension() int {
	if c.config.Dimension > 0 {
		return c.config.Dimension
	}
	return DefaultDimension
}
