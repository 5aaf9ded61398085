// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"

	"cbc-curriculum-chatbot/internal/application/chat"
	"cbc-curriculum-chatbot/internal/application/ingest"
	"cbc-curriculum-chatbot/internal/application/retrieval"
	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/domain/repository"
	"cbc-curriculum-chatbot/internal/infrastructure/embedding"
	"cbc-curriculum-chatbot/internal/infrastructure/llm"
	"cbc-curriculum-chatbot/internal/infrastructure/messaging"
	"cbc-curriculum-chatbot/internal/infrastructure/persistence/chroma"
	"cbc-curriculum-chatbot/internal/infrastructure/persistence/milvus"
	"cbc-curriculum-chatbot/internal/infrastructure/persistence/redis"
	"cbc-curriculum-chatbot/internal/interfaces/http/handler"
	"cbc-curriculum-chatbot/internal/interfaces/http/router"
	"cbc-curriculum-chatbot/pkg/logger"
)

// Server API 网关依赖容器
type Server struct {
	Router *router.Router
	Ingest *ingest.Service
	Redis  *redis.Client
}

// Worker 入库 worker 依赖容器
type Worker struct {
	Ingest *ingest.Service
	Redis  *redis.Client
}

// Bootstrap 本地文档入库依赖容器
type Bootstrap struct {
	Indexer *ingest.Indexer
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideIngestJobRepository 提供入库任务仓储
func ProvideIngestJobRepository(cache *redis.Cache, cfg *config.Config) *redis.IngestJobRepository {
	return redis.NewIngestJobRepository(cache, cfg.Ingestion.JobTTL)
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideEmbedder 提供带进程内缓存的 Embedding 客户端
func ProvideEmbedder(ctx context.Context, cfg *config.Config) embedding.Embedder {
	client := embedding.NewClient(&cfg.Embedding)
	if !client.Configured() {
		logger.Warn(ctx, "embedding token missing, retrieval will return empty context")
	}
	return embedding.NewCachedEmbedder(client, &cfg.Embedding)
}

// ProvideVectorStore 按 vector.backend 选择向量库实现
func ProvideVectorStore(ctx context.Context, cfg *config.Config) (repository.VectorStore, func(), error) {
	switch cfg.Vector.Backend {
	case "", "chroma":
		return chroma.NewClient(&cfg.Vector.Chroma), func() {}, nil
	case "milvus":
		client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			_ = client.Close()
		}
		return milvus.NewStore(client), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported vector backend %q", cfg.Vector.Backend)
	}
}

// ProvideRetriever 提供上下文检索器
func ProvideRetriever(cfg *config.Config, embedder embedding.Embedder, store repository.VectorStore) *retrieval.Retriever {
	return retrieval.NewRetriever(embedder, store, &cfg.Vector, &cfg.Retrieval)
}

// ProvideBackends 按 fallback_chain 提供生成后端
func ProvideBackends(cfg *config.Config) []chat.Backend {
	built := llm.NewFactory(cfg).Backends()
	backends := make([]chat.Backend, 0, len(built))
	for _, b := range built {
		backends = append(backends, b)
	}
	return backends
}

// ProvideOrchestrator 提供回复编排器
func ProvideOrchestrator(cfg *config.Config, retriever chat.ContextRetriever, backends []chat.Backend) *chat.Orchestrator {
	return chat.NewOrchestrator(retriever, backends, &cfg.Chat, &cfg.Retrieval)
}

// ProvideIndexer 提供入库索引器
func ProvideIndexer(cfg *config.Config, embedder embedding.Embedder, store repository.VectorStore) *ingest.Indexer {
	splitter := ingest.NewSplitter(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	return ingest.NewIndexer(embedder, store, cfg.Vector.Collection, splitter)
}

// ProvideIngestService 提供入库服务
func ProvideIngestService(
	cfg *config.Config,
	indexer *ingest.Indexer,
	jobs repository.IngestJobRepository,
	blobs repository.BlobStore,
	publisher ingest.Publisher,
) *ingest.Service {
	return ingest.NewService(indexer, jobs, blobs, publisher, &cfg.Ingestion)
}

// ProvideHealthHandler 提供健康检查处理器
func ProvideHealthHandler(cfg *config.Config, redisClient *redis.Client, store repository.VectorStore, embedder embedding.Embedder) *handler.HealthHandler {
	return handler.NewHealthHandler(redisClient, store, embedder, cfg.App.Version)
}

// NewIngestConsumer 创建入库消息消费者，重试耗尽的消息由 OnDeadLetter 标记失败
func NewIngestConsumer(redisClient *redis.Client, cfg *config.Config, svc *ingest.Service, consumerName string) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamIngestDocuments,
		Group:         messaging.ConsumerGroupIngestWorker,
		ConsumerName:  consumerName,
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
		OnDeadLetter: svc.OnDeadLetter,
	})
	consumer.RegisterHandler(messaging.MessageTypeDocumentIngest, svc.HandleMessage)
	return consumer
}
