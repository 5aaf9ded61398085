package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ServiceName 根路径返回的服务名
const ServiceName = "CBC Chatbot Backend"

// Pinger 依赖健康检查
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// ConfiguredChecker 是否具备可用凭据
type ConfiguredChecker interface {
	Configured() bool
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	redis    Pinger
	vector   Pinger
	embedder ConfiguredChecker
	version  string
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(redis Pinger, vector Pinger, embedder ConfiguredChecker, version string) *HealthHandler {
	return &HealthHandler{
		redis:    redis,
		vector:   vector,
		embedder: embedder,
		version:  version,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Root 服务标识
// @Summary 服务标识
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router / [get]
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: ServiceName})
}

// Health 健康检查接口
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// Ready 就绪检查：Redis 必需，向量库与 Embedding 凭据缺失只标记降级
// @Summary 就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]*readinessCheck{}
	ready := true

	// Redis（必需，承载限流与入库队列）
	checks["redis"] = checkPinger(ctx, h.redis, "redis client not configured")
	if checks["redis"].Status != "ok" {
		ready = false
	}

	// 向量库（可选，检索失败时对话降级为无上下文）
	vector := checkPinger(ctx, h.vector, "vector store not configured")
	if vector.Status == "error" {
		vector.Status = "degraded"
	}
	checks["vector_store"] = vector

	if h.embedder != nil && h.embedder.Configured() {
		checks["embedding"] = &readinessCheck{Status: "ok"}
	} else {
		checks["embedding"] = &readinessCheck{Status: "degraded", Error: "embedding token missing"}
	}

	resp := readinessResponse{Status: "ok", Checks: checks}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func checkPinger(ctx context.Context, p Pinger, missing string) *readinessCheck {
	if p == nil {
		return &readinessCheck{Status: "missing", Error: missing}
	}
	start := time.Now()
	err := p.HealthCheck(ctx)
	check := &readinessCheck{LatencyMs: time.Since(start).Milliseconds(), Status: "ok"}
	if err != nil {
		check.Status = "error"
		check.Error = err.Error()
	}
	return check
}
