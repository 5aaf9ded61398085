// Package llm 提供文本生成后端实现
package llm

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnparseableResponse 响应体中找不到可用文本
var ErrUnparseableResponse = errors.New("unparseable llm response")

// extractPaths 按顺序尝试的响应路径，首个非空字符串胜出
var extractPaths = []string{
	"choices.0.message.content",
	"choices.0.text",
	"output",
	"output.text",
	"output.0.content.0.text",
	"message",
	"message.content",
}

// ExtractText 从不同形态的生成响应中提取回复文本
func ExtractText(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", ErrUnparseableResponse
	}
	for _, path := range extractPaths {
		res := gjson.GetBytes(body, path)
		if res.Type != gjson.String {
			continue
		}
		if text := strings.TrimSpace(res.String()); text != "" {
			return text, nil
		}
	}
	return "", ErrUnparseableResponse
}
