// Package entity 定义领域实体
package entity

import "strings"

// Turn 一轮对话消息
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation 调用方提交的有序对话，处理过程中只读
type Conversation []Turn

// LatestUserIndex 返回最后一条 user 消息的下标，不存在时返回 -1
func (c Conversation) LatestUserIndex() int {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// LatestUserText 返回最后一条 user 消息的文本
func (c Conversation) LatestUserText() (string, bool) {
	idx := c.LatestUserIndex()
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(c[idx].Content), true
}

// PreviousAssistantText 返回最后一条 user 消息之前最近的 assistant 回复
func (c Conversation) PreviousAssistantText() string {
	idx := c.LatestUserIndex()
	if idx < 0 {
		idx = len(c)
	}
	for i := idx - 1; i >= 0; i-- {
		if c[i].Role == RoleAssistant {
			return strings.TrimSpace(c[i].Content)
		}
	}
	return ""
}

// WithoutSystem 去除调用方传入的 system 消息，系统提示词由服务端统一生成
func (c Conversation) WithoutSystem() Conversation {
	out := make(Conversation, 0, len(c))
	for _, t := range c {
		if t.Role == RoleSystem {
			continue
		}
		out = append(out, t)
	}
	return out
}
