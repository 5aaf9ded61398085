package retrieval

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/domain/entity"
	"cbc-curriculum-chatbot/internal/domain/repository"
	"cbc-curriculum-chatbot/pkg/logger"
	"cbc-curriculum-chatbot/pkg/metrics"
	"cbc-curriculum-chatbot/pkg/tracer"
)

// FragmentDelimiter 上下文片段分隔符
const FragmentDelimiter = "\n\n---\n\n"

// Retriever 上下文检索器，任何下游失败都降级为空上下文
type Retriever struct {
	embedder   Embedder
	store      repository.VectorStore
	collection string
	cfg        config.RetrievalConfig
}

// NewRetriever 创建检索器
func NewRetriever(embedder Embedder, store repository.VectorStore, vectorCfg *config.VectorConfig, cfg *config.RetrievalConfig) *Retriever {
	return &Retriever{
		embedder:   embedder,
		store:      store,
		collection: vectorCfg.Collection,
		cfg:        *cfg,
	}
}

// DefaultNResults 普通问题的每变体召回数量
func (r *Retriever) DefaultNResults() int {
	if r.cfg.NResults > 0 {
		return r.cfg.NResults
	}
	return 10
}

// FindRelevantContext 返回去重后的上下文文本，无结果时返回空串
func (r *Retriever) FindRelevantContext(ctx context.Context, query, previousAssistant string, nResults int) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}

	ctx, span := tracer.Start(ctx, "retrieval.FindRelevantContext")
	defer span.End()

	if r.embedder == nil || !r.embedder.Configured() || r.store == nil {
		logger.Warn(ctx, "retrieval skipped, embedder or vector store not configured")
		metrics.RetrievalRequestsTotal.WithLabelValues("skipped").Inc()
		return ""
	}
	if nResults <= 0 {
		nResults = r.DefaultNResults()
	}

	variants := BuildVariants(query, previousAssistant, VariantOptions{
		MaxKeywords:      r.cfg.MaxKeywords,
		MinWordLength:    r.cfg.MinWordLength,
		FollowUpMaxWords: r.cfg.FollowUpMaxWords,
		MaxVariants:      r.cfg.MaxVariants,
	})
	span.SetAttributes(attribute.Int("retrieval.variants", len(variants)), attribute.Int("retrieval.n_results", nResults))
	metrics.RetrievalVariants.Observe(float64(len(variants)))

	vectors, err := r.embedder.Embed(ctx, variants)
	if err != nil {
		tracer.Fail(span, err)
		logger.Error(ctx, "variant embedding failed", err, "variants", len(variants))
		metrics.RetrievalRequestsTotal.WithLabelValues("embed_error").Inc()
		return ""
	}
	if len(vectors) == 0 || len(vectors) != len(variants) {
		logger.Warn(ctx, "embedding returned unexpected vector count", "variants", len(variants), "vectors", len(vectors))
		metrics.RetrievalRequestsTotal.WithLabelValues("embed_empty").Inc()
		return ""
	}

	collectionID, err := r.store.ResolveCollection(ctx, r.collection)
	if err != nil {
		tracer.Fail(span, err)
		logger.Error(ctx, "collection resolve failed", err, "collection", r.collection)
		metrics.RetrievalRequestsTotal.WithLabelValues("store_error").Inc()
		return ""
	}

	groups, err := r.store.Query(ctx, collectionID, vectors, nResults)
	if err != nil {
		tracer.Fail(span, err)
		logger.Error(ctx, "vector query failed", err, "collection", r.collection)
		metrics.RetrievalRequestsTotal.WithLabelValues("store_error").Inc()
		return ""
	}

	texts := MergeFragments(groups, r.cfg.FingerprintLength)
	metrics.RetrievalFragments.Observe(float64(len(texts)))
	span.SetAttributes(attribute.Int("retrieval.fragments", len(texts)))
	if len(texts) == 0 {
		metrics.RetrievalRequestsTotal.WithLabelValues("empty").Inc()
		return ""
	}

	metrics.RetrievalRequestsTotal.WithLabelValues("success").Inc()
	logger.Debug(ctx, "context retrieved", "variants", len(variants), "fragments", len(texts))
	return strings.Join(texts, FragmentDelimiter)
}

// MergeFragments 按变体优先级与组内相关度顺序合并，指纹重复的片段只保留首次出现
func MergeFragments(groups [][]entity.Fragment, fingerprintLength int) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, group := range groups {
		for _, frag := range group {
			text := strings.TrimSpace(frag.Text)
			if text == "" {
				continue
			}
			fp := Fingerprint(text, fingerprintLength)
			if _, dup := seen[fp]; dup {
				continue
			}
			seen[fp] = struct{}{}
			out = append(out, text)
		}
	}
	return out
}
