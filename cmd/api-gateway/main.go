// Package main API Gateway 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/infrastructure/messaging"
	"cbc-curriculum-chatbot/internal/wire"
	"cbc-curriculum-chatbot/pkg/logger"
	"cbc-curriculum-chatbot/pkg/tracer"

	"github.com/joho/godotenv"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logger.FromContext(ctx)
	log.Info("starting api-gateway",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
		"vector_backend", cfg.Vector.Backend,
		"fallback_chain", cfg.LLM.FallbackChain,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	server, cleanup, err := wire.InitializeServer(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize server", err)
	}
	defer cleanup()

	// 单进程部署时在网关内消费入库任务
	var consumer *messaging.Consumer
	if cfg.Ingestion.InlineWorker {
		consumer = wire.NewIngestConsumer(server.Redis, cfg, server.Ingest, consumerName("gateway"))
		if err := consumer.Start(ctx); err != nil {
			logger.Fatal(ctx, "failed to start inline ingest consumer", err)
		}
		log.Info("inline ingest consumer started")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	if consumer != nil {
		consumer.Stop()
	}

	log.Info("server exited")
}

func consumerName(role string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = role
	}
	return fmt.Sprintf("%s-%s-%d", role, host, os.Getpid())
}
