package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cbc-curriculum-chatbot/pkg/logger"
)

var localExtensions = map[string]bool{".pdf": true, ".txt": true, ".md": true}

// LocalResult 本地目录入库统计
type LocalResult struct {
	Files   int
	Chunks  int
	Skipped []string
}

// IndexDirectory 递归索引目录下的 .pdf/.txt/.md 文件，单个文件失败不影响其余文件
func (i *Indexer) IndexDirectory(ctx context.Context, dir string) (LocalResult, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if localExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return LocalResult{}, err
	}
	sort.Strings(paths)

	var res LocalResult
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := filepath.Base(path)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn(ctx, "failed to read local document", "file", name, "error", err.Error())
			res.Skipped = append(res.Skipped, name)
			continue
		}
		text, err := ExtractText(data)
		if err != nil {
			logger.Warn(ctx, "failed to extract local document", "file", name, "error", err.Error())
			res.Skipped = append(res.Skipped, name)
			continue
		}
		chunks, err := i.Index(ctx, LocalDocument(name, text))
		if err != nil {
			logger.Warn(ctx, "failed to index local document", "file", name, "error", err.Error())
			res.Skipped = append(res.Skipped, name)
			continue
		}
		res.Files++
		res.Chunks += chunks
		logger.Info(ctx, "local document indexed", "file", name, "chunks", chunks)
	}
	return res, nil
}
