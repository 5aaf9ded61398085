package dto

import (
	"fmt"

	"cbc-curriculum-chatbot/internal/domain/entity"
)

// TurnRequest 单条对话消息
type TurnRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessagesRequest 对话请求
type MessagesRequest struct {
	Messages []TurnRequest `json:"messages"`
}

// ChatResponse 助手回复
type ChatResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToTurns 校验并转换为领域对话，要求至少包含一条 user 消息
func (r *MessagesRequest) ToTurns() ([]entity.Turn, error) {
	if r == nil || len(r.Messages) == 0 {
		return nil, fmt.Errorf("messages must not be empty")
	}
	turns := make([]entity.Turn, 0, len(r.Messages))
	for i, m := range r.Messages {
		role, ok := entity.ParseRole(m.Role)
		if !ok {
			return nil, fmt.Errorf("messages[%d]: unknown role %q", i, m.Role)
		}
		turns = append(turns, entity.Turn{Role: role, Content: m.Content})
	}
	if entity.Conversation(turns).LatestUserIndex() < 0 {
		return nil, fmt.Errorf("messages must contain a user turn")
	}
	return turns, nil
}

// NewChatResponse 构造助手回复
func NewChatResponse(content string) ChatResponse {
	return ChatResponse{Role: string(entity.RoleAssistant), Content: content}
}
