// Package chroma 提供 Chroma REST v2 向量库客户端
package chroma

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/domain/entity"
	"cbc-curriculum-chatbot/internal/domain/repository"
	"cbc-curriculum-chatbot/pkg/metrics"
	"cbc-curriculum-chatbot/pkg/tracer"
)

const backendName = "chroma"

// Client Chroma REST 客户端，实现 repository.VectorStore
type Client struct {
	http    *resty.Client
	host    string
	baseURL string
	timeout time.Duration

	mu          sync.RWMutex
	collections map[string]repository.CollectionID
	resolve     singleflight.Group
}

var _ repository.VectorStore = (*Client)(nil)

type collectionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type createCollectionRequest struct {
	Name        string            `json:"name"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	GetOrCreate bool              `json:"get_or_create"`
}

type queryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]*string        `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]*float32       `json:"distances"`
}

type upsertRequest struct {
	IDs        []string            `json:"ids"`
	Embeddings [][]float32         `json:"embeddings"`
	Documents  []string            `json:"documents"`
	Metadatas  []map[string]string `json:"metadatas"`
}

// NewClient 创建 Chroma 客户端
func NewClient(cfg *config.ChromaConfig) *Client {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if !config.IsPlaceholder(cfg.APIKey) {
		httpClient.SetHeader("x-chroma-token", strings.TrimSpace(cfg.APIKey))
	}

	return &Client{
		http:        httpClient,
		host:        host,
		baseURL:     fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s", host, cfg.Tenant, cfg.Database),
		timeout:     timeout,
		collections: make(map[string]repository.CollectionID),
	}
}

// ResolveCollection 按名称解析集合 ID，不存在时创建
// 结果在实例生命周期内缓存
func (c *Client) ResolveCollection(ctx context.Context, name string) (repository.CollectionID, error) {
	c.mu.RLock()
	id, ok := c.collections[name]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	// 共享的解析请求不随任一调用方取消，调用方取消时仅自己提前返回
	ch := c.resolve.DoChan(name, func() (any, error) {
		c.mu.RLock()
		cached, ok := c.collections[name]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		resolved, err := c.resolveRemote(rctx, name)
		if err != nil {
			return repository.CollectionID(""), err
		}

		c.mu.Lock()
		c.collections[name] = resolved
		c.mu.Unlock()
		return resolved, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(repository.CollectionID), nil
	}
}

func (c *Client) resolveRemote(ctx context.Context, name string) (repository.CollectionID, error) {
	ctx, span := tracer.Start(ctx, "chroma.ResolveCollection")
	span.SetAttributes(attribute.String("chroma.collection", name))
	defer span.End()
	defer observe("resolve", time.Now())

	var list []collectionInfo
	resp, err := c.http.R().SetContext(ctx).SetResult(&list).Get(c.baseURL + "/collections")
	if err == nil && !resp.IsError() {
		for _, coll := range list {
			if coll.Name == name && coll.ID != "" {
				return repository.CollectionID(coll.ID), nil
			}
		}
	}

	var created collectionInfo
	resp, err = c.http.R().
		SetContext(ctx).
		SetBody(createCollectionRequest{
			Name:        name,
			Metadata:    map[string]string{"hnsw:space": "cosine"},
			GetOrCreate: true,
		}).
		SetResult(&created).
		Post(c.baseURL + "/collections")
	if err = statusError(resp, err); err != nil {
		failed("resolve")
		tracer.Fail(span, err)
		return "", fmt.Errorf("%w: %s: %v", repository.ErrCollectionNotFound, name, err)
	}
	if created.ID == "" {
		failed("resolve")
		return "", fmt.Errorf("%w: %s: empty id in create response", repository.ErrCollectionNotFound, name)
	}
	return repository.CollectionID(created.ID), nil
}

// Query 批量查询，每个向量返回一组按距离升序的片段
func (c *Client) Query(ctx context.Context, id repository.CollectionID, vectors [][]float32, topK int) ([][]entity.Fragment, error) {
	if len(vectors) == 0 {
		return [][]entity.Fragment{}, nil
	}
	ctx, span := tracer.Start(ctx, "chroma.Query")
	span.SetAttributes(attribute.Int("chroma.vectors", len(vectors)), attribute.Int("chroma.top_k", topK))
	defer span.End()
	defer observe("query", time.Now())

	var out queryResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(queryRequest{
			QueryEmbeddings: vectors,
			NResults:        topK,
			Include:         []string{"documents", "metadatas", "distances"},
		}).
		SetResult(&out).
		Post(c.collectionURL(id, "query"))
	if err = statusError(resp, err); err != nil {
		failed("query")
		tracer.Fail(span, err)
		return nil, fmt.Errorf("chroma query failed: %w", err)
	}

	groups := make([][]entity.Fragment, len(vectors))
	for i := range vectors {
		if i >= len(out.Documents) {
			groups[i] = []entity.Fragment{}
			continue
		}
		docs := out.Documents[i]
		group := make([]entity.Fragment, 0, len(docs))
		for j, doc := range docs {
			if doc == nil || strings.TrimSpace(*doc) == "" {
				continue
			}
			group = append(group, entity.Fragment{
				ID:       at(out.IDs, i, j),
				Text:     *doc,
				Source:   metadataString(out.Metadatas, i, j, "source"),
				Kind:     metadataString(out.Metadatas, i, j, "type"),
				Distance: distance(out.Distances, i, j),
			})
		}
		groups[i] = group
	}
	return groups, nil
}

// Upsert 写入或覆盖向量记录，四个数组长度必须一致
func (c *Client) Upsert(ctx context.Context, id repository.CollectionID, batch entity.UpsertBatch) error {
	if !batch.Consistent() {
		return repository.ErrBatchLengthMismatch
	}
	if batch.Len() == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "chroma.Upsert")
	span.SetAttributes(attribute.Int("chroma.records", batch.Len()))
	defer span.End()
	defer observe("upsert", time.Now())

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(upsertRequest{
			IDs:        batch.IDs,
			Embeddings: batch.Vectors,
			Documents:  batch.Documents,
			Metadatas:  batch.Metadatas,
		}).
		Post(c.collectionURL(id, "upsert"))
	if err = statusError(resp, err); err != nil {
		failed("upsert")
		tracer.Fail(span, err)
		return fmt.Errorf("chroma upsert failed: %w", err)
	}
	return nil
}

// Count 返回集合记录数
func (c *Client) Count(ctx context.Context, id repository.CollectionID) (int, error) {
	defer observe("count", time.Now())
	var n int
	resp, err := c.http.R().SetContext(ctx).SetResult(&n).Get(c.collectionURL(id, "count"))
	if err = statusError(resp, err); err != nil {
		failed("count")
		return 0, fmt.Errorf("chroma count failed: %w", err)
	}
	return n, nil
}

// HealthCheck 调用 heartbeat 接口
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get(c.host + "/api/v2/heartbeat")
	if err = statusError(resp, err); err != nil {
		return fmt.Errorf("chroma heartbeat failed: %w", err)
	}
	return nil
}

func (c *Client) collectionURL(id repository.CollectionID, action string) string {
	return fmt.Sprintf("%s/collections/%s/%s", c.baseURL, id, action)
}

func statusError(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		body := resp.String()
		if len(body) > 200 {
			body = body[:200]
		}
		if resp.StatusCode() == http.StatusNotFound {
			return fmt.Errorf("%w: status=404 body=%s", repository.ErrCollectionNotFound, body)
		}
		return fmt.Errorf("status=%d body=%s", resp.StatusCode(), body)
	}
	return nil
}

func observe(op string, start time.Time) {
	metrics.VectorStoreDuration.WithLabelValues(backendName, op).Observe(time.Since(start).Seconds())
}

func failed(op string) {
	metrics.VectorStoreErrors.WithLabelValues(backendName, op).Inc()
}

func at(ids [][]string, i, j int) string {
	if i < len(ids) && j < len(ids[i]) {
		return ids[i][j]
	}
	return ""
}

func metadataString(metas [][]map[string]any, i, j int, key string) string {
	if i >= len(metas) || j >= len(metas[i]) || metas[i][j] == nil {
		return ""
	}
	if s, ok := metas[i][j][key].(string); ok {
		return s
	}
	return ""
}

func distance(d [][]*float32, i, j int) float32 {
	if i < len(d) && j < len(d[i]) && d[i][j] != nil {
		return *d[i][j]
	}
	return 0
}
