package llm

import (
	"context"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/pkg/logger"
)

// Factory 按 fallback_chain 构建有序后端列表
type Factory struct {
	config *config.LLMConfig
}

// NewFactory 创建后端工厂
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{config: &cfg.LLM}
}

// Backends 返回按优先级排序的后端，链中未定义的名称被忽略
func (f *Factory) Backends() []Backend {
	ctx := context.Background()
	backends := make([]Backend, 0, len(f.config.FallbackChain))
	for _, name := range f.config.FallbackChain {
		p, ok := f.config.Providers[name]
		if !ok {
			logger.Warn(ctx, "fallback chain references unknown provider", "provider", name)
			continue
		}
		switch p.Kind {
		case KindKeyed:
			backends = append(backends, NewKeyedBackend(name, p))
		case KindOpenAI, "":
			backends = append(backends, NewOpenAIBackend(name, p))
		default:
			logger.Warn(ctx, "unsupported provider kind", "provider", name, "kind", p.Kind)
		}
	}
	return backends
}
