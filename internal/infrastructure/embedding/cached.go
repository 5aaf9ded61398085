package embedding

import (
	"context"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/pkg/metrics"
)

// CachedEmbedder 为 Embedder 增加进程内 LRU 缓存
type CachedEmbedder struct {
	inner Embedder
	cache *expirable.LRU[string, []float32]
}

// NewCachedEmbedder 创建带缓存的 Embedder，size<=0 时直接返回 inner
func NewCachedEmbedder(inner Embedder, cfg *config.EmbeddingConfig) Embedder {
	if cfg.CacheSize <= 0 {
		return inner
	}
	return &CachedEmbedder{
		inner: inner,
		cache: expirable.NewLRU[string, []float32](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// Configured 透传底层状态
func (c *CachedEmbedder) Configured() bool {
	return c.inner.Configured()
}

// Embed 仅对未命中的文本发起请求，输出保持输入顺序
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			continue
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, ErrMalformedResponse
	}
	for j, idx := range missIdx {
		out[idx] = vectors[j]
		c.cache.Add(missTexts[j], vectors[j])
	}
	return out, nil
}
