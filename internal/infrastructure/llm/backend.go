package llm

import (
	"context"
	"errors"
	"time"

	"cbc-curriculum-chatbot/internal/domain/entity"
)

// ErrNotConfigured 凭据缺失或为占位值
var ErrNotConfigured = errors.New("llm backend not configured")

// 后端类型
const (
	KindOpenAI = "openai"
	KindKeyed  = "keyed"
)

// DefaultTimeout 单次生成调用的默认超时
const DefaultTimeout = 45 * time.Second

// Backend 单个生成后端
type Backend interface {
	Name() string
	Configured() bool
	Timeout() time.Duration
	Attempt(ctx context.Context, systemPrompt string, turns []entity.Turn) (string, error)
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildMessages 系统提示在前，历史中的 system 轮次被丢弃
func buildMessages(systemPrompt string, turns []entity.Turn) []wireMessage {
	history := entity.Conversation(turns).WithoutSystem()
	msgs := make([]wireMessage, 0, len(history)+1)
	msgs = append(msgs, wireMessage{Role: string(entity.RoleSystem), Content: systemPrompt})
	for _, t := range history {
		msgs = append(msgs, wireMessage{Role: string(t.Role), Content: t.Content})
	}
	return msgs
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}
