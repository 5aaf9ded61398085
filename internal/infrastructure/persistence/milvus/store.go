package milvus

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	milvusentity "github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"cbc-curriculum-chatbot/internal/domain/entity"
	"cbc-curriculum-chatbot/internal/domain/repository"
	"cbc-curriculum-chatbot/pkg/metrics"
	"cbc-curriculum-chatbot/pkg/tracer"
)

const (
	backendName = "milvus"
	// resolveTimeout 覆盖建集合、建索引与加载
	resolveTimeout = time.Minute
)

// Store 基于 Milvus 的 repository.VectorStore 实现
type Store struct {
	client *Client

	mu      sync.RWMutex
	ready   map[string]struct{}
	resolve singleflight.Group
}

var _ repository.VectorStore = (*Store)(nil)

// NewStore 创建向量存储
func NewStore(client *Client) *Store {
	return &Store{client: client, ready: make(map[string]struct{})}
}

// ResolveCollection 确保集合存在并已加载，集合 ID 即集合名
func (s *Store) ResolveCollection(ctx context.Context, name string) (repository.CollectionID, error) {
	s.mu.RLock()
	_, ok := s.ready[name]
	s.mu.RUnlock()
	if ok {
		return repository.CollectionID(name), nil
	}

	ch := s.resolve.DoChan(name, func() (any, error) {
		defer observe("resolve", time.Now())
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		if err := s.client.ensureCollection(rctx, name); err != nil {
			failed("resolve")
			return nil, fmt.Errorf("%w: %v", repository.ErrCollectionNotFound, err)
		}
		s.mu.Lock()
		s.ready[name] = struct{}{}
		s.mu.Unlock()
		return nil, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
	}
	return repository.CollectionID(name), nil
}

// Query 多向量检索，COSINE 相似度换算为距离 1-score
func (s *Store) Query(ctx context.Context, id repository.CollectionID, vectors [][]float32, topK int) ([][]entity.Fragment, error) {
	if len(vectors) == 0 {
		return [][]entity.Fragment{}, nil
	}
	ctx, span := tracer.Start(ctx, "milvus.Query")
	span.SetAttributes(attribute.Int("milvus.vectors", len(vectors)), attribute.Int("milvus.top_k", topK))
	defer span.End()
	defer observe("query", time.Now())

	queries := make([]milvusentity.Vector, len(vectors))
	for i, v := range vectors {
		queries[i] = milvusentity.FloatVector(v)
	}

	ef := s.client.config.SearchEf
	if ef < topK {
		ef = max(topK, 64)
	}
	sp, err := milvusentity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := s.client.milvus.Search(ctx,
		string(id),
		nil,
		"",
		[]string{FieldDocument, FieldSource, FieldKind},
		queries,
		FieldVector,
		milvusentity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		failed("query")
		tracer.Fail(span, err)
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	groups := make([][]entity.Fragment, len(vectors))
	for i := range groups {
		groups[i] = []entity.Fragment{}
		if i >= len(results) {
			continue
		}
		result := results[i]

		var ids, docs, sources, kinds []string
		if col, ok := result.IDs.(*milvusentity.ColumnVarChar); ok {
			ids = col.Data()
		}
		if col, ok := result.Fields.GetColumn(FieldDocument).(*milvusentity.ColumnVarChar); ok {
			docs = col.Data()
		}
		if col, ok := result.Fields.GetColumn(FieldSource).(*milvusentity.ColumnVarChar); ok {
			sources = col.Data()
		}
		if col, ok := result.Fields.GetColumn(FieldKind).(*milvusentity.ColumnVarChar); ok {
			kinds = col.Data()
		}

		for j := 0; j < result.ResultCount && j < len(docs); j++ {
			if docs[j] == "" {
				continue
			}
			frag := entity.Fragment{Text: docs[j]}
			if j < len(ids) {
				frag.ID = ids[j]
			}
			if j < len(sources) {
				frag.Source = sources[j]
			}
			if j < len(kinds) {
				frag.Kind = kinds[j]
			}
			if j < len(result.Scores) {
				frag.Distance = 1 - result.Scores[j]
			}
			groups[i] = append(groups[i], frag)
		}
	}
	return groups, nil
}

// Upsert 按列写入，主键相同的记录被覆盖
func (s *Store) Upsert(ctx context.Context, id repository.CollectionID, batch entity.UpsertBatch) error {
	if !batch.Consistent() {
		return repository.ErrBatchLengthMismatch
	}
	if batch.Len() == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "milvus.Upsert")
	span.SetAttributes(attribute.Int("milvus.records", batch.Len()))
	defer span.End()
	defer observe("upsert", time.Now())

	sources := make([]string, batch.Len())
	kinds := make([]string, batch.Len())
	for i, meta := range batch.Metadatas {
		sources[i] = meta["source"]
		kinds[i] = meta["type"]
	}

	_, err := s.client.milvus.Upsert(ctx, string(id), "",
		milvusentity.NewColumnVarChar(FieldID, batch.IDs),
		milvusentity.NewColumnFloatVector(FieldVector, len(batch.Vectors[0]), batch.Vectors),
		milvusentity.NewColumnVarChar(FieldDocument, batch.Documents),
		milvusentity.NewColumnVarChar(FieldSource, sources),
		milvusentity.NewColumnVarChar(FieldKind, kinds),
	)
	if err != nil {
		failed("upsert")
		tracer.Fail(span, err)
		return fmt.Errorf("milvus upsert failed: %w", err)
	}
	return nil
}

// Count 返回集合行数
func (s *Store) Count(ctx context.Context, id repository.CollectionID) (int, error) {
	defer observe("count", time.Now())
	stats, err := s.client.milvus.GetCollectionStatistics(ctx, string(id))
	if err != nil {
		failed("count")
		return 0, fmt.Errorf("milvus statistics failed: %w", err)
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("invalid row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

// HealthCheck 健康检查
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

func observe(op string, start time.Time) {
	metrics.VectorStoreDuration.WithLabelValues(backendName, op).Observe(time.Since(start).Seconds())
}

func failed(op string) {
	metrics.VectorStoreErrors.WithLabelValues(backendName, op).Inc()
}
