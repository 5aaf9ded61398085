package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/domain/entity"
	"cbc-curriculum-chatbot/internal/domain/repository"
	"cbc-curriculum-chatbot/internal/infrastructure/messaging"
	redisinfra "cbc-curriculum-chatbot/internal/infrastructure/persistence/redis"
	apperrors "cbc-curriculum-chatbot/pkg/errors"
	"cbc-curriculum-chatbot/pkg/logger"
	"cbc-curriculum-chatbot/pkg/metrics"
)

// DefaultTitle 文本入库未提供标题时使用
const DefaultTitle = "Untitled"

// Publisher 投递入库任务
type Publisher interface {
	PublishIngest(ctx context.Context, msg *messaging.IngestMessage) (string, error)
}

// Service 入库用例：文件异步排队，文本同步写入
type Service struct {
	indexer   *Indexer
	jobs      repository.IngestJobRepository
	blobs     repository.BlobStore
	publisher Publisher
	maxBytes  int64
	blobTTL   time.Duration
}

// NewService 创建入库服务
func NewService(indexer *Indexer, jobs repository.IngestJobRepository, blobs repository.BlobStore, publisher Publisher, cfg *config.IngestionConfig) *Service {
	return &Service{
		indexer:   indexer,
		jobs:      jobs,
		blobs:     blobs,
		publisher: publisher,
		maxBytes:  cfg.MaxUploadBytes,
		blobTTL:   cfg.BlobTTL,
	}
}

// MaxUploadBytes 单个上传文件的大小上限
func (s *Service) MaxUploadBytes() int64 {
	return s.maxBytes
}

// EnqueueFile 校验并暂存上传文件，发布入库任务后立即返回
func (s *Service) EnqueueFile(ctx context.Context, filename string, data []byte) (*entity.IngestJob, error) {
	filename = sanitizeFilename(filename)
	if len(data) == 0 {
		return nil, apperrors.ErrEmptyInput.WithDetail("uploaded file is empty")
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, apperrors.ErrPayloadTooLarge.WithDetail(fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}
	contentType := DetectContentType(data)
	if !Supported(contentType) {
		return nil, apperrors.ErrUnsupportedMedia.WithDetail(contentType)
	}

	job := entity.NewIngestJob(uuid.NewString(), entity.IngestKindFile, filename, contentType, int64(len(data)))
	ctx = logger.WithContext(ctx, logger.JobIDKey, job.ID)
	blobKey := redisinfra.BlobKey(job.ID)

	if err := s.blobs.Put(ctx, blobKey, data, s.blobTTL); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to stage upload")
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to record ingest job")
	}
	if _, err := s.publisher.PublishIngest(ctx, &messaging.IngestMessage{
		JobID:       job.ID,
		Filename:    filename,
		ContentType: contentType,
		BlobKey:     blobKey,
	}); err != nil {
		job.MarkFailed(err)
		_ = s.jobs.Save(ctx, job)
		metrics.IngestJobsTotal.WithLabelValues(string(entity.IngestKindFile), string(entity.IngestStatusFailed)).Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeQueueError, "failed to queue ingest job")
	}

	metrics.IngestJobsTotal.WithLabelValues(string(entity.IngestKindFile), string(entity.IngestStatusQueued)).Inc()
	logger.Info(ctx, "file queued for ingestion", "filename", filename, "content_type", contentType, "size", len(data))
	return job, nil
}

// IngestText 同步切分并写入文本，返回块数
func (s *Service) IngestText(ctx context.Context, title, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, apperrors.ErrEmptyInput
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	chunks, err := s.indexer.Index(ctx, TextDocument(title, text))
	if err != nil {
		metrics.IngestJobsTotal.WithLabelValues(string(entity.IngestKindText), string(entity.IngestStatusFailed)).Inc()
		return 0, apperrors.Wrap(err, apperrors.CodeIngestFailed, "text ingestion failed")
	}
	metrics.IngestJobsTotal.WithLabelValues(string(entity.IngestKindText), string(entity.IngestStatusDone)).Inc()
	logger.Info(ctx, "text ingested", "title", title, "chunks", chunks)
	return chunks, nil
}

// JobStatus 查询任务状态
func (s *Service) JobStatus(ctx context.Context, id string) (*entity.IngestJob, error) {
	job, err := s.jobs.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, apperrors.ErrJobNotFound
		}
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to load ingest job")
	}
	return job, nil
}

// HandleMessage 消费入库消息：读取暂存文件、提取文本、写入向量库
func (s *Service) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	var payload messaging.IngestMessage
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("decode ingest payload: %w", err)
	}
	ctx = logger.WithContext(ctx, logger.JobIDKey, payload.JobID)

	job, err := s.jobs.Get(ctx, payload.JobID)
	if err != nil {
		if !errors.Is(err, repository.ErrJobNotFound) {
			return err
		}
		job = entity.NewIngestJob(payload.JobID, entity.IngestKindFile, payload.Filename, payload.ContentType, 0)
	}
	if job.Terminal() {
		logger.Debug(ctx, "ingest job already finished, skipping", "status", job.Status)
		return nil
	}

	job.MarkProcessing()
	if err := s.jobs.Save(ctx, job); err != nil {
		logger.Warn(ctx, "failed to record processing state", "error", err.Error())
	}

	data, err := s.blobs.Get(ctx, payload.BlobKey)
	if err != nil {
		if errors.Is(err, repository.ErrBlobNotFound) {
			s.fail(ctx, job, err)
			return nil
		}
		return err
	}

	text, err := ExtractText(data)
	if err != nil {
		s.fail(ctx, job, err)
		return nil
	}

	chunks, err := s.indexer.Index(ctx, FileDocument(payload.Filename, text))
	if err != nil {
		return err
	}

	job.MarkDone(chunks)
	if err := s.jobs.Save(ctx, job); err != nil {
		logger.Warn(ctx, "failed to record done state", "error", err.Error())
	}
	if err := s.blobs.Delete(ctx, payload.BlobKey); err != nil {
		logger.Warn(ctx, "failed to delete staged upload", "error", err.Error())
	}
	metrics.IngestJobsTotal.WithLabelValues(string(entity.IngestKindFile), string(entity.IngestStatusDone)).Inc()
	logger.Info(ctx, "file ingested", "filename", payload.Filename, "chunks", chunks)
	return nil
}

// OnDeadLetter 重试耗尽后标记任务失败
func (s *Service) OnDeadLetter(ctx context.Context, msg *messaging.Message, cause error) {
	var payload messaging.IngestMessage
	if err := msg.UnmarshalPayload(&payload); err != nil || payload.JobID == "" {
		return
	}
	job, err := s.jobs.Get(ctx, payload.JobID)
	if err != nil {
		logger.Warn(ctx, "dead-lettered ingest job not found", "job_id", payload.JobID)
		return
	}
	s.fail(ctx, job, cause)
	if err := s.blobs.Delete(ctx, payload.BlobKey); err != nil {
		logger.Warn(ctx, "failed to delete staged upload", "error", err.Error())
	}
}

// fail 不可重试的失败直接落终态
func (s *Service) fail(ctx context.Context, job *entity.IngestJob, cause error) {
	job.MarkFailed(cause)
	if err := s.jobs.Save(ctx, job); err != nil {
		logger.Warn(ctx, "failed to record failed state", "error", err.Error())
	}
	metrics.IngestJobsTotal.WithLabelValues(string(job.Kind), string(entity.IngestStatusFailed)).Inc()
	logger.Error(ctx, "ingest job failed", cause, "filename", job.Filename)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}
