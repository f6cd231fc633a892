package service

import (
	"context"

	"offshore-assist-go/internal/model"
	"offshore-assist-go/internal/repository"
	"offshore-assist-go/pkg/embedding"
	"offshore-assist-go/pkg/log"
)

const (
	DefaultMatchCount     = 5
	DefaultMatchThreshold = 0.5
)

// RetrievalService 为一条查询检索知识库上下文。
type RetrievalService interface {
	// Retrieve 返回相似度不低于阈值的最多 limit 条上下文，任何失败都退化为空列表。
	Retrieve(ctx context.Context, query string, limit int) []model.ContextDoc
}

type retrievalService struct {
	embeddingClient embedding.Client
	store           repository.VectorStore
	threshold       float64
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。threshold 为负数时使用 DefaultMatchThreshold，0 表示不过滤。
func NewRetrievalService(embeddingClient embedding.Client, store repository.VectorStore, threshold float64) RetrievalService {
	if threshold < 0 {
		threshold = DefaultMatchThreshold
	}
	return &retrievalService{
		embeddingClient: embeddingClient,
		store:           store,
		threshold:       threshold,
	}
}

func (s *retrievalService) Retrieve(ctx context.Context, query string, limit int) []model.ContextDoc {
	if limit <= 0 {
		limit = DefaultMatchCount
	}

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		log.Errorf("[RetrievalService] 向量化查询失败, 退化为无上下文: %v", err)
		return []model.ContextDoc{}
	}

	results, err := s.store.SimilaritySearch(ctx, queryVector, s.threshold, limit)
	if err != nil {
		log.Errorf("[RetrievalService] 相似度检索失败, 退化为无上下文: %v", err)
		return []model.ContextDoc{}
	}

	docs := make([]model.ContextDoc, 0, len(results))
	for _, r := range results {
		if r.Similarity < s.threshold {
			continue
		}
		docs = append(docs, r)
		if len(docs) == limit {
			break
		}
	}
	log.Infof("[RetrievalService] 检索完成, 命中 %d 条上下文", len(docs))
	return docs
}
