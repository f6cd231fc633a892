// Package pipeline 定义了知识库导入的核心流程。
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"offshore-assist-go/internal/config"
	"offshore-assist-go/internal/model"
	"offshore-assist-go/internal/repository"
	"offshore-assist-go/pkg/embedding"
	"offshore-assist-go/pkg/log"

	"github.com/pgvector/pgvector-go"
	"golang.org/x/time/rate"
)

// ErrNothingEmbedded 表示有分块但没有任何分块向量化成功，此时不会触碰现有索引。
var ErrNothingEmbedded = errors.New("no chunk was embedded; index left untouched")

// Ingestor 封装了 文档加载 -> 切分 -> 向量化 -> 写入向量库 的全部依赖。
// 同一时间只应有一个 Run 在执行，互斥由调用方保证。
type Ingestor struct {
	embeddingClient embedding.Client
	store           repository.VectorStore
	chunker         *Chunker
	limiter         *rate.Limiter
	minLength       int
	incremental     bool
}

// NewIngestor 创建一个新的 Ingestor 实例。
func NewIngestor(embeddingClient embedding.Client, store repository.VectorStore, cfg config.IngestConfig) *Ingestor {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	minLength := cfg.MinChunkLength
	if minLength <= 0 {
		minLength = MinChunkLength
	}
	return &Ingestor{
		embeddingClient: embeddingClient,
		store:           store,
		chunker:         NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, minLength),
		limiter:         rate.NewLimiter(limit, 1),
		minLength:       minLength,
		incremental:     cfg.IncrementalWrites,
	}
}

type runOptions struct {
	docTypes map[string]bool
	taskID   string
}

// RunOption 调整单次 Run 的行为。
type RunOption func(*runOptions)

// WithDocTypes 只导入给定类型（md、txt）的文档。
func WithDocTypes(types ...string) RunOption {
	return func(o *runOptions) {
		if len(types) == 0 {
			return
		}
		o.docTypes = make(map[string]bool, len(types))
		for _, t := range types {
			o.docTypes[strings.ToLower(strings.TrimPrefix(t, "."))] = true
		}
	}
}

// WithTaskID 把任务 ID 写入报告。
func WithTaskID(id string) RunOption {
	return func(o *runOptions) { o.taskID = id }
}

// Run 执行一次全量重建。单个分块向量化（或增量模式下写入）失败只计数不中断。
func (p *Ingestor) Run(ctx context.Context, src Source, opts ...RunOption) (*model.IngestReport, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	report := &model.IngestReport{TaskID: o.taskID, Source: src.Name(), StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt).Round(time.Millisecond).String() }()

	// 1. 加载文档
	log.Infof("[Ingestor] 步骤1: 加载文档, source: %s", src.Name())
	loaded, err := src.Load(ctx)
	if err != nil {
		return p.fail(report, fmt.Errorf("加载文档失败: %w", err))
	}
	docs := make([]model.SourceDocument, 0, len(loaded))
	for _, doc := range loaded {
		if o.docTypes != nil && !o.docTypes[doc.DocType] {
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(doc.Content)) < p.minLength {
			log.Infof("[Ingestor] 跳过过短文档: %s", doc.Source)
			report.Skipped++
			continue
		}
		docs = append(docs, doc)
	}
	report.Loaded = len(docs)
	log.Infof("[Ingestor] 步骤1: 加载完成, 有效文档 %d 篇, 跳过 %d 篇", report.Loaded, report.Skipped)

	// 2. 切分
	chunks := p.chunker.Chunk(docs)
	report.Chunks = len(chunks)
	log.Infof("[Ingestor] 步骤2: 文本分块完成, 共生成 %d 个分块", len(chunks))

	if p.incremental {
		if err := p.store.ClearAll(ctx); err != nil {
			return p.fail(report, fmt.Errorf("清空向量库失败: %w", err))
		}
	}

	// 3. 逐块向量化，两次调用之间由 limiter 限速
	records := make([]*model.EmbeddingRecord, 0, len(chunks))
	for i, chunk := range chunks {
		if err := p.limiter.Wait(ctx); err != nil {
			return p.fail(report, err)
		}
		vector, err := p.embeddingClient.CreateEmbedding(ctx, chunk.Content)
		if err != nil {
			log.Errorf("[Ingestor] 分块 %d/%d 向量化失败, source=%s, error: %v", i+1, len(chunks), chunk.Metadata.Source, err)
			report.Failed++
			continue
		}
		record, err := newEmbeddingRecord(chunk, vector)
		if err != nil {
			report.Failed++
			continue
		}

		if p.incremental {
			if err := p.store.UpsertAll(ctx, []*model.EmbeddingRecord{record}); err != nil {
				log.Errorf("[Ingestor] 分块 %d/%d 写入失败, source=%s, error: %v", i+1, len(chunks), chunk.Metadata.Source, err)
				report.Failed++
				continue
			}
			report.Processed++
			continue
		}
		records = append(records, record)
	}

	// 4. 一次性重建索引
	if !p.incremental {
		if len(records) == 0 && len(chunks) > 0 {
			return p.fail(report, ErrNothingEmbedded)
		}
		if err := p.store.RebuildIndex(ctx, records); err != nil {
			report.Failed += len(records)
			return p.fail(report, fmt.Errorf("重建索引失败: %w", err))
		}
		report.Processed = len(records)
	}

	if n, err := p.store.Count(ctx); err != nil {
		log.Warnf("[Ingestor] 统计向量库记录数失败: %v", err)
	} else {
		report.Stored = n
	}

	log.Infow("[Ingestor] 导入完成",
		"source", report.Source,
		"chunks", report.Chunks,
		"processed", report.Processed,
		"failed", report.Failed,
		"stored", report.Stored,
	)
	return report, nil
}

func (p *Ingestor) fail(report *model.IngestReport, err error) (*model.IngestReport, error) {
	report.Error = err.Error()
	log.Errorf("[Ingestor] 导入中止: %v", err)
	return report, err
}

func newEmbeddingRecord(chunk model.DocumentChunk, vector []float32) (*model.EmbeddingRecord, error) {
	meta, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chunk metadata: %w", err)
	}
	return &model.EmbeddingRecord{
		Content:    chunk.Content,
		Embedding:  pgvector.NewVector(vector),
		Metadata:   meta,
		SourceFile: chunk.Metadata.Source,
		ChunkIndex: chunk.Metadata.ChunkIndex,
	}, nil
}
