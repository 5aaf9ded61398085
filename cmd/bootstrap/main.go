// Package main 将本地文档目录一次性写入向量库
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/wire"
	"cbc-curriculum-chatbot/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dir := flag.String("dir", cfg.Ingestion.DocsDir, "directory containing .pdf/.txt/.md documents")
	flag.Parse()

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	fmt.Printf("Indexing documents from %s into %q...\n", *dir, cfg.Vector.Collection)

	app, cleanup, err := wire.InitializeBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize indexer: %v", err)
	}
	defer cleanup()

	result, err := app.Indexer.IndexDirectory(ctx, *dir)
	if err != nil {
		log.Fatalf("failed to index %s: %v", *dir, err)
	}
	for _, name := range result.Skipped {
		fmt.Printf("  skipped %s\n", name)
	}
	fmt.Printf("Indexed %d files, %d chunks.\n", result.Files, result.Chunks)

	total, err := app.Indexer.Count(ctx)
	if err != nil {
		log.Fatalf("failed to count collection: %v", err)
	}
	fmt.Printf("Collection %q now holds %d records.\n", app.Indexer.Collection(), total)
}
