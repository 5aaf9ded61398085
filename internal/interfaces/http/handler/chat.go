package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cbc-curriculum-chatbot/internal/application/chat"
	"cbc-curriculum-chatbot/internal/domain/entity"
	"cbc-curriculum-chatbot/internal/interfaces/http/dto"
)

// Replier 对话回复生成
type Replier interface {
	Reply(ctx context.Context, turns []entity.Turn) chat.Result
}

// ChatHandler 对话处理器
type ChatHandler struct {
	replier Replier
}

// NewChatHandler 创建对话处理器
func NewChatHandler(replier Replier) *ChatHandler {
	return &ChatHandler{replier: replier}
}

// Messages 生成助手回复，校验通过后总是返回 200
// @Summary 对话
// @Tags Chat
// @Accept json
// @Produce json
// @Param body body dto.MessagesRequest true "对话消息"
// @Success 200 {object} dto.ChatResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /chat [post]
func (h *ChatHandler) Messages(c *gin.Context) {
	var req dto.MessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}
	turns, err := req.ToTurns()
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	result := h.replier.Reply(c.Request.Context(), turns)
	c.JSON(http.StatusOK, dto.NewChatResponse(result.Content))
}
