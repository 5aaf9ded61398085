// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"cbc-curriculum-chatbot/internal/interfaces/http/dto"
	"cbc-curriculum-chatbot/pkg/errors"
	"cbc-curriculum-chatbot/pkg/logger"
)

// respondError AppError 按其状态码返回，其余错误记录日志并返回 500
func respondError(c *gin.Context, msg string, err error) {
	if errors.IsAppError(err) {
		appErr := errors.AsAppError(err)
		if appErr.HTTPStatus >= 500 {
			logger.Error(c.Request.Context(), msg, err)
		}
		dto.AppError(c, appErr)
		return
	}
	logger.Error(c.Request.Context(), msg, err)
	dto.InternalError(c, msg)
}
