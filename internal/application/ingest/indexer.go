package ingest

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"cbc-curriculum-chatbot/internal/domain/entity"
	"cbc-curriculum-chatbot/internal/domain/repository"
	"cbc-curriculum-chatbot/pkg/metrics"
	"cbc-curriculum-chatbot/pkg/tracer"
)

// Embedder 批量向量化
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Document 待入库文档
type Document struct {
	// IDPrefix 记录 id 前缀，最终 id 为 {IDPrefix}_{i}
	IDPrefix string
	Source   string
	Kind     string
	Text     string
}

// FileDocument 上传文件，id 形如 cloud_{filename}_{i}
func FileDocument(filename, text string) Document {
	return Document{IDPrefix: "cloud_" + filename, Source: filename, Kind: entity.FragmentKindUpload, Text: text}
}

// TextDocument 直接提交的文本，id 形如 cloud_text_{title}_{i}
func TextDocument(title, text string) Document {
	return Document{IDPrefix: "cloud_text_" + title, Source: title, Kind: entity.FragmentKindText, Text: text}
}

// LocalDocument 本地目录中的文档，id 形如 local_{filename}_{i}
func LocalDocument(filename, text string) Document {
	return Document{IDPrefix: "local_" + filename, Source: filename, Kind: entity.FragmentKindLocal, Text: text}
}

// Indexer 切分、向量化并写入向量库
type Indexer struct {
	embedder   Embedder
	store      repository.VectorStore
	collection string
	splitter   *Splitter
}

// NewIndexer 创建索引器
func NewIndexer(embedder Embedder, store repository.VectorStore, collection string, splitter *Splitter) *Indexer {
	return &Indexer{embedder: embedder, store: store, collection: collection, splitter: splitter}
}

// Collection 目标集合名
func (i *Indexer) Collection() string {
	return i.collection
}

// Index 写入单个文档，返回写入的块数
func (i *Indexer) Index(ctx context.Context, doc Document) (int, error) {
	ctx, span := tracer.Start(ctx, "ingest.Index")
	defer span.End()

	chunks := i.splitter.Split(doc.Text)
	span.SetAttributes(attribute.String("ingest.source", doc.Source), attribute.Int("ingest.chunks", len(chunks)))
	if len(chunks) == 0 {
		return 0, ErrNoText
	}

	vectors, err := i.embedder.Embed(ctx, chunks)
	if err != nil {
		tracer.Fail(span, err)
		return 0, fmt.Errorf("embed chunks of %s: %w", doc.Source, err)
	}
	if len(vectors) != len(chunks) {
		err := fmt.Errorf("embed chunks of %s: got %d vectors for %d chunks", doc.Source, len(vectors), len(chunks))
		tracer.Fail(span, err)
		return 0, err
	}

	batch := entity.UpsertBatch{
		IDs:       make([]string, len(chunks)),
		Vectors:   vectors,
		Documents: chunks,
		Metadatas: make([]map[string]string, len(chunks)),
	}
	for n := range chunks {
		batch.IDs[n] = fmt.Sprintf("%s_%d", doc.IDPrefix, n)
		batch.Metadatas[n] = map[string]string{"source": doc.Source, "type": doc.Kind}
	}

	collectionID, err := i.store.ResolveCollection(ctx, i.collection)
	if err != nil {
		tracer.Fail(span, err)
		return 0, fmt.Errorf("resolve collection %s: %w", i.collection, err)
	}
	if err := i.store.Upsert(ctx, collectionID, batch); err != nil {
		tracer.Fail(span, err)
		return 0, fmt.Errorf("upsert %s: %w", doc.Source, err)
	}

	metrics.IngestChunksTotal.WithLabelValues(doc.Kind).Add(float64(len(chunks)))
	return len(chunks), nil
}

// Count 返回集合当前记录数
func (i *Indexer) Count(ctx context.Context) (int, error) {
	collectionID, err := i.store.ResolveCollection(ctx, i.collection)
	if err != nil {
		return 0, err
	}
	return i.store.Count(ctx, collectionID)
}
