// Package ingest 将上传文件与文本切分、向量化后写入课程向量库
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedType 既不是 PDF 也不是文本
var ErrUnsupportedType = errors.New("unsupported document type")

// ErrNoText 文档中没有可提取的文本
var ErrNoText = errors.New("document contains no extractable text")

const mimePDF = "application/pdf"

// DetectContentType 按内容嗅探 MIME 类型
func DetectContentType(data []byte) string {
	return mimetype.Detect(data).String()
}

// Supported 是否为可入库的类型
func Supported(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, mimePDF) || strings.HasPrefix(ct, "text/")
}

// ExtractText 按嗅探结果提取正文
func ExtractText(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is(mimePDF):
		return extractPDF(data)
	case strings.HasPrefix(mt.String(), "text/"):
		text := strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
		if text == "" {
			return "", ErrNoText
		}
		return text, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}
}

// extractPDF 逐页提取文本，单页失败时跳过该页
func extractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(content)
	}

	if b.Len() == 0 {
		return "", ErrNoText
	}
	return b.String(), nil
}
