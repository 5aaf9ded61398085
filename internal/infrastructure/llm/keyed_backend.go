package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/domain/entity"
)

// KeyedBackend 请求体内携带 key 与 model_id 的生成接口
type KeyedBackend struct {
	name       string
	http       *resty.Client
	url        string
	apiKey     string
	model      string
	maxTokens  int
	temp       float64
	timeout    time.Duration
	configured bool
}

type keyedRequest struct {
	Key       string        `json:"key"`
	ModelID   string        `json:"model_id"`
	Messages  []wireMessage `json:"messages"`
	Temp      float64       `json:"temp"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

// NewKeyedBackend 创建 keyed 形态后端
func NewKeyedBackend(name string, cfg config.ProviderConfig) *KeyedBackend {
	timeout := timeoutOrDefault(cfg.Timeout)
	url := strings.TrimSpace(cfg.BaseURL)
	return &KeyedBackend{
		name: name,
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		url:        url,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		temp:       cfg.Temperature,
		timeout:    timeout,
		configured: !config.IsPlaceholder(cfg.APIKey) && url != "",
	}
}

// Name 后端名称
func (b *KeyedBackend) Name() string { return b.name }

// Timeout 单次调用超时
func (b *KeyedBackend) Timeout() time.Duration { return b.timeout }

// Configured 是否具备真实凭据
func (b *KeyedBackend) Configured() bool { return b.configured }

// Attempt 发起一次生成请求，任何非 2xx 状态视为失败
func (b *KeyedBackend) Attempt(ctx context.Context, systemPrompt string, turns []entity.Turn) (string, error) {
	if !b.configured {
		return "", ErrNotConfigured
	}

	resp, err := b.http.R().
		SetContext(ctx).
		SetBody(keyedRequest{
			Key:       b.apiKey,
			ModelID:   b.model,
			Messages:  buildMessages(systemPrompt, turns),
			Temp:      b.temp,
			MaxTokens: b.maxTokens,
		}).
		Post(b.url)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", b.name, err)
	}
	if resp.IsError() {
		body := resp.String()
		if len(body) > 200 {
			body = body[:200]
		}
		return "", fmt.Errorf("%s returned status=%d body=%s", b.name, resp.StatusCode(), body)
	}

	text, err := ExtractText(resp.Body())
	if err != nil {
		return "", fmt.Errorf("%s: %w", b.name, err)
	}
	return text, nil
}
