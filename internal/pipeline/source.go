package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"offshore-assist-go/internal/model"
	"offshore-assist-go/pkg/log"
	"offshore-assist-go/pkg/storage"

	"github.com/minio/minio-go/v7"
)

// Source 加载待导入的原始文档。
type Source interface {
	Name() string
	Load(ctx context.Context) ([]model.SourceDocument, error)
}

// supportedDocType 返回 .md/.txt 对应的文档类型，其余扩展名返回空串。
func supportedDocType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return "md"
	case ".txt":
		return "txt"
	}
	return ""
}

// DirSource 从本地目录递归加载 .md/.txt 文件。
type DirSource struct {
	Dir string
}

func (s DirSource) Name() string { return "dir:" + s.Dir }

func (s DirSource) Load(ctx context.Context) ([]model.SourceDocument, error) {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("语料目录不可用: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s 不是目录", s.Dir)
	}

	var docs []model.SourceDocument
	err = filepath.WalkDir(s.Dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		docType := supportedDocType(d.Name())
		if docType == "" {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			log.Warnf("[DirSource] 读取文件失败: %s, err=%v", p, err)
			return nil
		}
		rel, err := filepath.Rel(s.Dir, p)
		if err != nil {
			rel = d.Name()
		}
		docs = append(docs, model.SourceDocument{
			Content: string(data),
			Source:  filepath.ToSlash(rel),
			DocType: docType,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// MinIOSource 从对象存储桶的 prefix 下加载 .md/.txt 对象。
type MinIOSource struct {
	Client *minio.Client
	Bucket string
	Prefix string
}

func (s MinIOSource) Name() string { return "minio:" + s.Bucket + "/" + s.Prefix }

func (s MinIOSource) Load(ctx context.Context) ([]model.SourceDocument, error) {
	keys, err := storage.ListObjectKeys(ctx, s.Client, s.Bucket, s.Prefix)
	if err != nil {
		return nil, fmt.Errorf("列出对象失败: %w", err)
	}

	var docs []model.SourceDocument
	for _, key := range keys {
		docType := supportedDocType(key)
		if docType == "" {
			continue
		}
		data, err := storage.ReadObject(ctx, s.Client, s.Bucket, key)
		if err != nil {
			log.Warnf("[MinIOSource] 读取对象失败: %s, err=%v", key, err)
			continue
		}
		docs = append(docs, model.SourceDocument{
			Content: string(data),
			Source:  strings.TrimPrefix(strings.TrimPrefix(key, s.Prefix), "/"),
			DocType: docType,
		})
	}
	return docs, nil
}
