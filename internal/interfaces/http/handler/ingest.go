package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"cbc-curriculum-chatbot/internal/domain/entity"
	"cbc-curriculum-chatbot/internal/interfaces/http/dto"
	"cbc-curriculum-chatbot/pkg/errors"
)

// IngestService 入库用例
type IngestService interface {
	MaxUploadBytes() int64
	EnqueueFile(ctx context.Context, filename string, data []byte) (*entity.IngestJob, error)
	IngestText(ctx context.Context, title, text string) (int, error)
	JobStatus(ctx context.Context, id string) (*entity.IngestJob, error)
}

// IngestHandler 入库处理器
type IngestHandler struct {
	svc IngestService
}

// NewIngestHandler 创建入库处理器
func NewIngestHandler(svc IngestService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// UploadFile 暂存上传文件并排队，不等待解析
// @Summary 上传文件入库
// @Tags Ingest
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF 或文本文件"
// @Success 202 {object} dto.IngestQueuedResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 413 {object} dto.ErrorResponse
// @Failure 415 {object} dto.ErrorResponse
// @Router /ingest [post]
func (h *IngestHandler) UploadFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		dto.BadRequest(c, "multipart field 'file' is required")
		return
	}
	limit := h.svc.MaxUploadBytes()
	if limit > 0 && header.Size > limit {
		dto.AppError(c, errors.ErrPayloadTooLarge.WithDetail(fmt.Sprintf("file exceeds %d bytes", limit)))
		return
	}

	f, err := header.Open()
	if err != nil {
		dto.BadRequest(c, "failed to read uploaded file")
		return
	}
	defer f.Close()

	reader := io.Reader(f)
	if limit > 0 {
		reader = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		dto.BadRequest(c, "failed to read uploaded file")
		return
	}

	job, err := h.svc.EnqueueFile(c.Request.Context(), header.Filename, data)
	if err != nil {
		respondError(c, "failed to queue file", err)
		return
	}
	c.JSON(http.StatusAccepted, dto.NewIngestQueuedResponse(job))
}

// IngestText 同步写入文本
// @Summary 文本入库
// @Tags Ingest
// @Accept json
// @Produce json
// @Param body body dto.IngestTextRequest true "标题与正文"
// @Success 200 {object} dto.IngestTextResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /ingest-text [post]
func (h *IngestHandler) IngestText(c *gin.Context) {
	var req dto.IngestTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}
	chunks, err := h.svc.IngestText(c.Request.Context(), req.Title, req.Text)
	if err != nil {
		respondError(c, "failed to ingest text", err)
		return
	}
	c.JSON(http.StatusOK, dto.IngestTextResponse{Success: true, IndexedChunks: chunks})
}

// GetJob 查询入库任务状态
// @Summary 入库任务状态
// @Tags Ingest
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} dto.IngestJobResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /ingest/jobs/{id} [get]
func (h *IngestHandler) GetJob(c *gin.Context) {
	job, err := h.svc.JobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "failed to load ingest job", err)
		return
	}
	c.JSON(http.StatusOK, dto.ToIngestJobResponse(job))
}
