//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"cbc-curriculum-chatbot/internal/application/chat"
	"cbc-curriculum-chatbot/internal/application/ingest"
	"cbc-curriculum-chatbot/internal/application/retrieval"
	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/domain/repository"
	"cbc-curriculum-chatbot/internal/infrastructure/messaging"
	"cbc-curriculum-chatbot/internal/infrastructure/persistence/redis"
	"cbc-curriculum-chatbot/internal/interfaces/http/handler"
	"cbc-curriculum-chatbot/internal/interfaces/http/middleware"
	"cbc-curriculum-chatbot/internal/interfaces/http/router"
)

// InitializeServer 初始化 API 网关
func InitializeServer(ctx context.Context, cfg *config.Config) (*Server, func(), error) {
	wire.Build(
		RedisSet,
		MessagingSet,
		VectorSet,
		ChatSet,
		IngestSet,
		RouterSet,
		wire.Struct(new(Server), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化入库 worker
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RedisSet,
		MessagingSet,
		VectorSet,
		IngestSet,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeBootstrap 初始化本地文档入库，不依赖 Redis
func InitializeBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, func(), error) {
	wire.Build(
		VectorSet,
		ProvideIndexer,
		wire.Struct(new(Bootstrap), "*"),
	)
	return nil, nil, nil
}

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	redis.NewBlobStore,
	ProvideIngestJobRepository,
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
	wire.Bind(new(repository.BlobStore), new(*redis.BlobStore)),
	wire.Bind(new(repository.IngestJobRepository), new(*redis.IngestJobRepository)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	wire.Bind(new(ingest.Publisher), new(*messaging.Producer)),
)

// VectorSet Embedding 与向量库提供者集合
var VectorSet = wire.NewSet(
	ProvideEmbedder,
	ProvideVectorStore,
)

// ChatSet 检索与回复编排提供者集合
var ChatSet = wire.NewSet(
	ProvideRetriever,
	ProvideBackends,
	ProvideOrchestrator,
	wire.Bind(new(chat.ContextRetriever), new(*retrieval.Retriever)),
)

// IngestSet 入库提供者集合
var IngestSet = wire.NewSet(
	ProvideIndexer,
	ProvideIngestService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewChatHandler,
	handler.NewIngestHandler,
	wire.Bind(new(handler.Replier), new(*chat.Orchestrator)),
	wire.Bind(new(handler.IngestService), new(*ingest.Service)),
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
