package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cbc-curriculum-chatbot/pkg/logger"
	"cbc-curriculum-chatbot/pkg/metrics"
	"cbc-curriculum-chatbot/pkg/tracer"
)

const (
	minReclaimIdle     = 5 * time.Minute
	pendingBatchSize   = 20
	readBatchSize      = 10
	dlqMonitorInterval = time.Minute
	readErrorPause     = time.Second
)

var (
	errMalformedEntry   = errors.New("stream entry has no decodable data field")
	errRetriesExhausted = errors.New("message exceeded max retries")

	// metadataLogKeys 消息元数据注入日志上下文
	metadataLogKeys = map[string]logger.ContextKey{
		"job_id":     logger.JobIDKey,
		"request_id": logger.RequestIDKey,
		"trace_id":   logger.TraceIDKey,
	}
)

// MessageHandler 消息处理函数，返回错误时消息留在 pending 中等待重投
type MessageHandler func(ctx context.Context, msg *Message) error

// DeadLetterHandler 消息进入死信队列后的回调
type DeadLetterHandler func(ctx context.Context, msg *Message, cause error)

// Consumer 消费者组成员，负责读取、重投与死信
type Consumer struct {
	client        *redis.Client
	stream        Stream
	group         ConsumerGroup
	consumerName  string
	blockTimeout  time.Duration
	claimInterval time.Duration
	reclaimIdle   time.Duration
	retryLimit    int
	backoff       BackoffConfig
	onDeadLetter  DeadLetterHandler

	handlers map[string]MessageHandler
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
	OnDeadLetter  DeadLetterHandler
}

// NewConsumer 创建消费者，零值字段使用默认值
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}
	// 其他成员的 pending 消息至少闲置到超过最长退避两倍才接管
	reclaimIdle := 2 * cfg.Backoff.Max
	if reclaimIdle < minReclaimIdle {
		reclaimIdle = minReclaimIdle
	}

	return &Consumer{
		client:        client,
		stream:        cfg.Stream,
		group:         cfg.Group,
		consumerName:  cfg.ConsumerName,
		blockTimeout:  cfg.BlockTimeout,
		claimInterval: cfg.ClaimInterval,
		reclaimIdle:   reclaimIdle,
		retryLimit:    cfg.RetryLimit,
		backoff:       cfg.Backoff,
		onDeadLetter:  cfg.OnDeadLetter,
		handlers:      make(map[string]MessageHandler),
		stopCh:        make(chan struct{}),
	}
}

// RegisterHandler 按消息类型注册处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start 创建消费者组（已存在时忽略）并在后台开始消费
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("consumer %s already running", c.consumerName)
	}

	err := c.client.XGroupCreateMkStream(ctx, string(c.stream), string(c.group), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", c.group, err)
	}

	c.running = true
	go c.run(ctx)
	return nil
}

// Stop 停止消费，正在处理的消息会执行完
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stopCh)
		c.running = false
	}
}

func (c *Consumer) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// run 每轮先重投到期的自有 pending，按 claimInterval 接管其他成员的闲置消息，再阻塞读新消息
func (c *Consumer) run(ctx context.Context) {
	logger.Info(ctx, "stream consumer started",
		"stream", c.stream,
		"group", c.group,
		"consumer", c.consumerName,
	)
	defer logger.Info(ctx, "stream consumer stopped", "consumer", c.consumerName)

	var lastSweep time.Time
	for !c.stopped(ctx) {
		c.redeliver(ctx, c.consumerName, c.ownRetryIdle)
		if time.Since(lastSweep) >= c.claimInterval {
			c.redeliver(ctx, "", func(int) time.Duration { return c.reclaimIdle })
			lastSweep = time.Now()
		}
		c.readNew(ctx)
	}
}

func (c *Consumer) readNew(ctx context.Context) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    string(c.group),
		Consumer: c.consumerName,
		Streams:  []string{string(c.stream), ">"},
		Count:    readBatchSize,
		Block:    c.blockTimeout,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			logger.Error(ctx, "failed to read from stream", err, "stream", c.stream)
			time.Sleep(readErrorPause)
		}
		return
	}
	for _, s := range streams {
		for _, xmsg := range s.Messages {
			c.processMessage(ctx, xmsg)
		}
	}
}

// ownRetryIdle 自有 pending 的重投间隔；重试耗尽的消息立即进入死信
func (c *Consumer) ownRetryIdle(retries int) time.Duration {
	if retries >= c.retryLimit {
		return 0
	}
	return c.backoff.CalculateBackoff(retries)
}

// redeliver 认领闲置足够久的 pending 消息并重新处理；owner 为空时扫描整个组并跳过自己
func (c *Consumer) redeliver(ctx context.Context, owner string, minIdle func(retries int) time.Duration) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Start:    "-",
		End:      "+",
		Count:    pendingBatchSize,
		Consumer: owner,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			logger.Error(ctx, "failed to query pending messages", err, "stream", c.stream)
		}
		return
	}

	for _, p := range pending {
		if owner == "" && p.Consumer == c.consumerName {
			continue
		}
		retries := int(p.RetryCount)
		idle := minIdle(retries)
		if p.Idle < idle {
			continue
		}
		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   string(c.stream),
			Group:    string(c.group),
			Consumer: c.consumerName,
			MinIdle:  idle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			logger.Error(ctx, "failed to claim pending message", err, "message_id", p.ID, "owner", p.Consumer)
			continue
		}
		for _, xmsg := range claimed {
			if retries >= c.retryLimit {
				c.exhaust(ctx, xmsg)
				continue
			}
			c.processMessage(ctx, xmsg)
		}
	}
}

func decodeEntry(xmsg redis.XMessage) (*Message, error) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil, errMalformedEntry
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedEntry, err)
	}
	return &msg, nil
}

// processMessage 解码并分发；无法解码或无处理器的条目直接确认丢弃
func (c *Consumer) processMessage(ctx context.Context, xmsg redis.XMessage) {
	ctx, span := tracer.Start(ctx, "consumer.processMessage",
		trace.WithAttributes(
			attribute.String("stream", string(c.stream)),
			attribute.String("stream.message_id", xmsg.ID),
		))
	defer span.End()

	msg, err := decodeEntry(xmsg)
	if err != nil {
		logger.Warn(ctx, "dropping malformed stream entry", "message_id", xmsg.ID, "error", err.Error())
		c.ack(ctx, xmsg.ID)
		return
	}
	for key, ctxKey := range metadataLogKeys {
		if v := msg.GetMetadata(key); v != "" {
			ctx = logger.WithContext(ctx, ctxKey, v)
		}
	}
	span.SetAttributes(attribute.String("message.id", msg.ID), attribute.String("message.type", msg.Type))

	c.mu.RLock()
	handler, ok := c.handlers[msg.Type]
	c.mu.RUnlock()
	if !ok {
		logger.Warn(ctx, "no handler for message type", "type", msg.Type)
		c.ack(ctx, xmsg.ID)
		return
	}

	if err := handler(ctx, msg); err != nil {
		tracer.Fail(span, err)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "error").Inc()
		c.handleFailure(ctx, xmsg.ID, msg, err)
		return
	}
	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "success").Inc()
	c.ack(ctx, xmsg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, string(c.stream), string(c.group), id).Err(); err != nil {
		logger.Error(ctx, "failed to ack message", err, "message_id", id)
	}
}

// handleFailure 未达重试上限时不确认，由 redeliver 按退避重投
func (c *Consumer) handleFailure(ctx context.Context, entryID string, msg *Message, cause error) {
	deliveries := c.deliveries(ctx, entryID)
	if deliveries < c.retryLimit {
		logger.Warn(ctx, "handler failed, message left pending for retry",
			"message_id", msg.ID,
			"deliveries", deliveries,
			"error", cause.Error(),
		)
		return
	}
	logger.Error(ctx, "handler failed after max retries", cause, "message_id", msg.ID, "deliveries", deliveries)
	c.deadLetter(ctx, msg, cause)
	c.ack(ctx, entryID)
}

// deliveries 返回条目的投递次数
func (c *Consumer) deliveries(ctx context.Context, entryID string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  entryID,
		End:    entryID,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return int(pending[0].RetryCount)
}

// exhaust 重试耗尽的已认领条目直接进入死信
func (c *Consumer) exhaust(ctx context.Context, xmsg redis.XMessage) {
	if msg, err := decodeEntry(xmsg); err == nil {
		c.deadLetter(ctx, msg, errRetriesExhausted)
	}
	c.ack(ctx, xmsg.ID)
}

// deadLetter 写入 dlq 流并通知 OnDeadLetter
func (c *Consumer) deadLetter(ctx context.Context, msg *Message, cause error) {
	entry, _ := json.Marshal(map[string]any{
		"original_stream": string(c.stream),
		"data":            msg,
		"error":           cause.Error(),
		"failed_at":       time.Now().Unix(),
	})
	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream.DLQStream(),
		Values: map[string]any{"data": string(entry)},
	}).Err(); err != nil {
		logger.Error(ctx, "failed to write DLQ entry", err, "message_id", msg.ID)
	}
	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "dlq").Inc()

	if c.onDeadLetter != nil {
		c.onDeadLetter(ctx, msg, cause)
	}
}

// MonitorDLQ 定期上报死信队列长度，超过阈值时告警；阻塞直到停止
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	ticker := time.NewTicker(dlqMonitorInterval)
	defer ticker.Stop()

	dlq := c.stream.DLQStream()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
		}
		length, err := c.client.XLen(ctx, dlq).Result()
		if err != nil {
			logger.Warn(ctx, "failed to read DLQ length", "stream", dlq, "error", err.Error())
			continue
		}
		metrics.RedisStreamDLQ.WithLabelValues(string(c.stream)).Set(float64(length))
		if length > alertThreshold {
			logger.Warn(ctx, "DLQ has pending messages", "stream", dlq, "count", length)
		}
	}
}
