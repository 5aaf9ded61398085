// Package embedding 提供 Embedding 服务客户端
package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/pkg/logger"
	"cbc-curriculum-chatbot/pkg/metrics"
	"cbc-curriculum-chatbot/pkg/tracer"
)

var (
	// ErrNotConfigured token 缺失或为占位值
	ErrNotConfigured = errors.New("embedding endpoint not configured")
	// ErrMalformedResponse 响应无法解析为向量
	ErrMalformedResponse = errors.New("malformed embedding response")
)

const (
	defaultBatchSize = 32
	defaultTimeout   = 30 * time.Second
)

// Embedder 文本向量化接口，输出与输入一一对应且保持顺序
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Configured() bool
}

// Client 基于 HuggingFace Inference 形态接口的 Embedding 客户端
type Client struct {
	http       *resty.Client
	endpoint   string
	prefix     string
	batchSize  int
	maxRetries uint64
	retryBase  time.Duration
	configured bool
}

type embedRequest struct {
	Inputs  []string     `json:"inputs"`
	Options embedOptions `json:"options"`
}

type embedOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// NewClient 创建 Embedding 客户端
func NewClient(cfg *config.EmbeddingConfig) *Client {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryBase := cfg.RetryBase
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}
	attempts := cfg.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if !config.IsPlaceholder(cfg.Token) {
		httpClient.SetAuthToken(strings.TrimSpace(cfg.Token))
	}

	return &Client{
		http:       httpClient,
		endpoint:   endpoint,
		prefix:     cfg.TextPrefix,
		batchSize:  batchSize,
		maxRetries: uint64(attempts), // #nosec G115 -- attempts clamped above
		retryBase:  retryBase,
		configured: endpoint != "" && !config.IsPlaceholder(cfg.Token),
	}
}

// Configured 是否具备可用的 endpoint 与 token
func (c *Client) Configured() bool {
	return c != nil && c.configured
}

// Prefix 返回入库与查询共用的文本前缀
func (c *Client) Prefix() string {
	return c.prefix
}

// Embed 批量向量化，按 batchSize 分批请求，结果保持输入顺序
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	ctx, span := tracer.Start(ctx, "embedding.Embed")
	span.SetAttributes(attribute.Int("embedding.inputs", len(texts)))
	defer span.End()

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			tracer.Fail(span, err)
			metrics.EmbeddingRequestsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.EmbeddingRequestsTotal.WithLabelValues("success").Inc()
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = c.prefix + t
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.WithJitter(100*time.Millisecond, retry.NewExponential(c.retryBase)))

	var vectors [][]float32
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(embedRequest{Inputs: inputs, Options: embedOptions{WaitForModel: true}}).
			Post(c.endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn(ctx, "embedding request failed, retrying", "error", err.Error())
			return retry.RetryableError(fmt.Errorf("embedding request failed: %w", err))
		}
		if resp.IsError() {
			statusErr := fmt.Errorf("embedding request failed: status=%d body=%s", resp.StatusCode(), truncate(resp.String(), 200))
			if retryableStatus(resp.StatusCode()) {
				logger.Warn(ctx, "embedding endpoint not ready, retrying", "status", resp.StatusCode())
				return retry.RetryableError(statusErr)
			}
			return statusErr
		}

		parsed, err := decodeVectors(resp.Body(), len(inputs))
		if err != nil {
			return err
		}
		vectors = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// decodeVectors 统一三种响应形态：
// 单条输入返回一维向量；多条输入返回二维；token 级输出返回三维，按 token 取均值
func decodeVectors(body []byte, expected int) ([][]float32, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) == 0 || expected != 1 {
			return nil, fmt.Errorf("%w: flat vector for %d inputs", ErrMalformedResponse, expected)
		}
		return [][]float32{flat}, nil
	}

	var matrix [][]float32
	if err := json.Unmarshal(raw, &matrix); err == nil {
		// 单条输入时，二维结果可能是 token 级输出
		if expected == 1 && len(matrix) > 1 {
			return [][]float32{meanPool(matrix)}, nil
		}
		if len(matrix) != expected {
			return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrMalformedResponse, len(matrix), expected)
		}
		return matrix, validate(matrix)
	}

	var tensor [][][]float32
	if err := json.Unmarshal(raw, &tensor); err == nil {
		if len(tensor) != expected {
			return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrMalformedResponse, len(tensor), expected)
		}
		out := make([][]float32, len(tensor))
		for i, tokens := range tensor {
			out[i] = meanPool(tokens)
		}
		return out, validate(out)
	}

	return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, truncate(string(body), 120))
}

func meanPool(tokens [][]float32) []float32 {
	if len(tokens) == 0 {
		return nil
	}
	dim := len(tokens[0])
	out := make([]float32, dim)
	for _, tok := range tokens {
		for j := 0; j < dim && j < len(tok); j++ {
			out[j] += tok[j]
		}
	}
	n := float32(len(tokens))
	for j := range out {
		out[j] /= n
	}
	return out
}

func validate(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at %d", ErrMalformedResponse, i)
		}
	}
	return nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
