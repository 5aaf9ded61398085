// Package retrieval 将用户问题扩展为多个检索变体，批量召回并去重拼接为上下文
package retrieval

import "context"

// Embedder 批量向量化
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Configured() bool
}
