package repository

import (
	"context"
	"fmt"

	"offshore-assist-go/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// VectorStore 保存分块与向量，并提供最近邻检索。
type VectorStore interface {
	// UpsertAll 批量写入记录。
	UpsertAll(ctx context.Context, records []*model.EmbeddingRecord) error
	// ClearAll 删除全部记录。
	ClearAll(ctx context.Context) error
	// RebuildIndex 清空后写入 records；存储支持时在同一事务内完成。
	RebuildIndex(ctx context.Context, records []*model.EmbeddingRecord) error
	// SimilaritySearch 返回余弦相似度 >= threshold 的最多 limit 条记录，按相似度降序。
	SimilaritySearch(ctx context.Context, query []float32, threshold float64, limit int) ([]model.ContextDoc, error)
	Count(ctx context.Context) (int64, error)
}

const insertBatchSize = 100

// matchDocumentsFunction 与托管库上的 match_documents RPC 保持一致。
const matchDocumentsFunction = `
CREATE OR REPLACE FUNCTION match_documents(
	query_embedding vector(%d),
	match_threshold float,
	match_count int
)
RETURNS TABLE (id bigint, content text, source_file varchar, metadata jsonb, similarity float)
LANGUAGE sql STABLE
AS $$
	SELECT d.id, d.content, d.source_file, d.metadata, 1 - (d.embedding <=> query_embedding) AS similarity
	FROM document_embeddings d
	WHERE 1 - (d.embedding <=> query_embedding) >= match_threshold
	ORDER BY d.embedding <=> query_embedding
	LIMIT match_count;
$$;`

type pgvectorStore struct {
	db     *gorm.DB
	useRPC bool
}

// NewPgVectorStore 创建基于 Postgres + pgvector 的 VectorStore。
// useRPC 为 true 时检索走 match_documents 函数，否则直接执行等价 SQL。
func NewPgVectorStore(db *gorm.DB, useRPC bool) VectorStore {
	return &pgvectorStore{db: db, useRPC: useRPC}
}

// EnsureVectorSchema 安装 vector 扩展、迁移 document_embeddings 表并创建 match_documents 函数。
func EnsureVectorSchema(ctx context.Context, db *gorm.DB, dims int) error {
	tx := db.WithContext(ctx)
	if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	if err := tx.AutoMigrate(&model.EmbeddingRecord{}); err != nil {
		return fmt.Errorf("failed to migrate document_embeddings: %w", err)
	}
	if err := tx.Exec(fmt.Sprintf(matchDocumentsFunction, dims)).Error; err != nil {
		return fmt.Errorf("failed to create match_documents: %w", err)
	}
	return nil
}

func (s *pgvectorStore) UpsertAll(ctx context.Context, records []*model.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(records, insertBatchSize).Error
}

func (s *pgvectorStore) ClearAll(ctx context.Context) error {
	return clearEmbeddings(s.db.WithContext(ctx))
}

func (s *pgvectorStore) RebuildIndex(ctx context.Context, records []*model.EmbeddingRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearEmbeddings(tx); err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(records, insertBatchSize).Error
	})
}

func clearEmbeddings(db *gorm.DB) error {
	return db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.EmbeddingRecord{}).Error
}

type similarityRow struct {
	Content    string
	SourceFile string
	Similarity float64
}

func (s *pgvectorStore) SimilaritySearch(ctx context.Context, query []float32, threshold float64, limit int) ([]model.ContextDoc, error) {
	vec := pgvector.NewVector(query)
	var rows []similarityRow

	var err error
	if s.useRPC {
		err = s.db.WithContext(ctx).
			Raw("SELECT content, source_file, similarity FROM match_documents(?, ?, ?)", vec, threshold, limit).
			Scan(&rows).Error
	} else {
		err = s.db.WithContext(ctx).
			Raw(`SELECT content, source_file, 1 - (embedding <=> ?) AS similarity
				FROM document_embeddings
				WHERE 1 - (embedding <=> ?) >= ?
				ORDER BY embedding <=> ?
				LIMIT ?`, vec, vec, threshold, vec, limit).
			Scan(&rows).Error
	}
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	docs := make([]model.ContextDoc, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, model.ContextDoc{Content: r.Content, Source: r.SourceFile, Similarity: r.Similarity})
	}
	return docs, nil
}

func (s *pgvectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.EmbeddingRecord{}).Count(&n).Error
	return n, err
}
