package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/domain/entity"
	"cbc-curriculum-chatbot/pkg/logger"
	"cbc-curriculum-chatbot/pkg/metrics"
	"cbc-curriculum-chatbot/pkg/tracer"
)

// 回复路径，用于指标标签
const (
	PathGreeting = "greeting"
	PathBackend  = "backend"
	PathFallback = "fallback"
)

// Result 一次回复的结果
type Result struct {
	Content     string
	Backend     string
	Greeting    bool
	ContextUsed bool
}

// Orchestrator 回复编排器，Reply 永不返回错误
type Orchestrator struct {
	retriever     ContextRetriever
	backends      []Backend
	location      *time.Location
	fallback      string
	greetingMax   int
	nResults      int
	broadNResults int
	now           func() time.Time
}

// NewOrchestrator 创建编排器，backends 的顺序即降级优先级
func NewOrchestrator(retriever ContextRetriever, backends []Backend, chatCfg *config.ChatConfig, retrievalCfg *config.RetrievalConfig) *Orchestrator {
	fallback := strings.TrimSpace(chatCfg.FallbackMessage)
	if fallback == "" {
		fallback = config.DefaultFallbackMessage
	}
	broad := retrievalCfg.BroadNResults
	if broad <= 0 {
		broad = retrievalCfg.NResults
	}
	return &Orchestrator{
		retriever:     retriever,
		backends:      backends,
		location:      loadLocation(chatCfg.Timezone),
		fallback:      fallback,
		greetingMax:   chatCfg.GreetingMaxTokens,
		nResults:      retrievalCfg.NResults,
		broadNResults: broad,
		now:           time.Now,
	}
}

// Reply 生成一轮回复：寒暄直接返回固定文案，否则检索后按顺序尝试后端，全部失败返回兜底文案
func (o *Orchestrator) Reply(ctx context.Context, turns []entity.Turn) (result Result) {
	ctx, span := tracer.Start(ctx, "chat.Reply")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in reply: %v", r)
			tracer.Fail(span, err)
			logger.Error(ctx, "reply panicked, returning fallback", err)
			metrics.ChatRepliesTotal.WithLabelValues(PathFallback).Inc()
			result = Result{Content: o.fallback}
		}
	}()

	conv := entity.Conversation(turns)
	query, ok := conv.LatestUserText()
	if !ok {
		span.SetAttributes(attribute.String("chat.path", PathFallback))
		metrics.ChatRepliesTotal.WithLabelValues(PathFallback).Inc()
		logger.Warn(ctx, "conversation has no user turn, returning fallback message", "turns", len(turns))
		return Result{Content: o.fallback}
	}

	if IsGreeting(query, o.greetingMax) {
		span.SetAttributes(attribute.String("chat.path", PathGreeting))
		metrics.ChatRepliesTotal.WithLabelValues(PathGreeting).Inc()
		logger.Debug(ctx, "greeting short-circuit", "query", truncateRunes(compactOneLine(query), 80))
		return Result{Content: GreetingReply(query), Greeting: true}
	}

	n := o.nResults
	if isBroadQuery(query) {
		n = o.broadNResults
	}
	retrieved := ""
	if o.retriever != nil {
		retrieved = o.retriever.FindRelevantContext(ctx, query, conv.PreviousAssistantText(), n)
	}
	systemPrompt := BuildSystemPrompt(o.now(), o.location, retrieved)
	span.SetAttributes(attribute.Bool("chat.context_used", retrieved != ""), attribute.Int("chat.n_results", n))

	history := conv.WithoutSystem()
	for _, b := range o.backends {
		text, ok := o.attempt(ctx, b, systemPrompt, history)
		if !ok {
			continue
		}
		span.SetAttributes(attribute.String("chat.path", PathBackend), attribute.String("chat.backend", b.Name()))
		metrics.ChatRepliesTotal.WithLabelValues(PathBackend).Inc()
		logger.Info(ctx, "reply generated", "backend", b.Name(), "context_used", retrieved != "", "chars", len([]rune(text)))
		return Result{Content: text, Backend: b.Name(), ContextUsed: retrieved != ""}
	}

	span.SetAttributes(attribute.String("chat.path", PathFallback))
	metrics.ChatRepliesTotal.WithLabelValues(PathFallback).Inc()
	logger.Warn(ctx, "all generation backends failed, returning fallback message", "backends", len(o.backends))
	return Result{Content: o.fallback, ContextUsed: retrieved != ""}
}

// attempt 调用单个后端，未配置、出错或空文本都视为失败
func (o *Orchestrator) attempt(ctx context.Context, b Backend, systemPrompt string, turns []entity.Turn) (string, bool) {
	name := b.Name()
	if !b.Configured() {
		metrics.LLMAttemptsTotal.WithLabelValues(name, "skipped").Inc()
		logger.Debug(ctx, "backend skipped, credential missing", "backend", name)
		return "", false
	}

	ctx, span := tracer.Start(ctx, "chat.attempt")
	span.SetAttributes(attribute.String("llm.backend", name))
	defer span.End()

	timeout := b.Timeout()
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	callCtx, cancel := context.WithTimeout(logger.WithContext(ctx, logger.BackendKey, name), timeout)
	defer cancel()

	start := time.Now()
	text, err := b.Attempt(callCtx, systemPrompt, turns)
	metrics.LLMCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("%s returned empty text", name)
	}
	if err != nil {
		tracer.Fail(span, err)
		metrics.LLMAttemptsTotal.WithLabelValues(name, "error").Inc()
		logger.Warn(ctx, "backend attempt failed", "backend", name, "error", err.Error())
		return "", false
	}
	metrics.LLMAttemptsTotal.WithLabelValues(name, "success").Inc()
	return strings.TrimSpace(text), true
}
