// Package chat 编排一次对话回复：问候短路、检索上下文、按优先级逐个尝试生成后端
package chat

import (
	"context"
	"time"

	"cbc-curriculum-chatbot/internal/domain/entity"
)

// Backend 生成后端，Attempt 失败时由编排层切换到下一个
type Backend interface {
	Name() string
	Configured() bool
	Timeout() time.Duration
	Attempt(ctx context.Context, systemPrompt string, turns []entity.Turn) (string, error)
}

// ContextRetriever 检索上下文，失败时返回空串
type ContextRetriever interface {
	FindRelevantContext(ctx context.Context, query, previousAssistant string, nResults int) string
}
