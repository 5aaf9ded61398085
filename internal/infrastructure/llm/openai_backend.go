package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/domain/entity"
)

// OpenAIBackend OpenAI 兼容接口后端（Groq、OpenRouter、OpenAI）
type OpenAIBackend struct {
	name       string
	client     openai.Client
	model      string
	maxTokens  int
	temp       float64
	timeout    time.Duration
	configured bool
}

// NewOpenAIBackend 创建 OpenAI 兼容后端，SDK 内部重试关闭，由编排层统一降级
func NewOpenAIBackend(name string, cfg config.ProviderConfig) *OpenAIBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := timeoutOrDefault(cfg.Timeout)
	opts = append(opts, option.WithRequestTimeout(timeout))

	return &OpenAIBackend{
		name:       name,
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		temp:       cfg.Temperature,
		timeout:    timeout,
		configured: !config.IsPlaceholder(cfg.APIKey) && cfg.Model != "",
	}
}

// Name 后端名称
func (b *OpenAIBackend) Name() string { return b.name }

// Timeout 单次调用超时
func (b *OpenAIBackend) Timeout() time.Duration { return b.timeout }

// Configured 是否具备真实凭据
func (b *OpenAIBackend) Configured() bool { return b.configured }

// Attempt 发起一次非流式补全
func (b *OpenAIBackend) Attempt(ctx context.Context, systemPrompt string, turns []entity.Turn) (string, error) {
	if !b.configured {
		return "", ErrNotConfigured
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(b.model),
		Messages:    toOpenAIMessages(buildMessages(systemPrompt, turns)),
		Temperature: openai.Float(b.temp),
	}
	if b.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(b.maxTokens))
	}

	start := time.Now()
	completion, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s completion failed after %s: %w", b.name, time.Since(start).Round(time.Millisecond), err)
	}

	raw := completion.RawJSON()
	if raw == "" && len(completion.Choices) > 0 {
		if text := strings.TrimSpace(completion.Choices[0].Message.Content); text != "" {
			return text, nil
		}
	}
	text, err := ExtractText([]byte(raw))
	if err != nil {
		return "", fmt.Errorf("%s: %w", b.name, err)
	}
	return text, nil
}

func toOpenAIMessages(msgs []wireMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch entity.Role(m.Role) {
		case entity.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case entity.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
