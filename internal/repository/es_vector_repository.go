package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"offshore-assist-go/internal/model"
	"offshore-assist-go/pkg/es"
	"offshore-assist-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

type esVectorStore struct {
	client    *elasticsearch.Client
	indexName string
}

// NewESVectorStore 创建基于 Elasticsearch dense_vector 的 VectorStore。
// RebuildIndex 在 ES 上不是事务性的：delete_by_query 与 bulk 之间存在空窗。
func NewESVectorStore(client *elasticsearch.Client, indexName string) VectorStore {
	return &esVectorStore{client: client, indexName: indexName}
}

func toEsDocuments(records []*model.EmbeddingRecord) []model.EsEmbeddingDocument {
	docs := make([]model.EsEmbeddingDocument, 0, len(records))
	for _, r := range records {
		var meta model.ChunkMetadata
		if len(r.Metadata) > 0 {
			if err := json.Unmarshal(r.Metadata, &meta); err != nil {
				log.Warnf("[ESVectorStore] metadata 解析失败, source=%s chunk=%d: %v", r.SourceFile, r.ChunkIndex, err)
			}
		}
		docs = append(docs, model.EsEmbeddingDocument{
			VectorID:   fmt.Sprintf("%s_%d", r.SourceFile, r.ChunkIndex),
			Content:    r.Content,
			Vector:     r.Embedding.Slice(),
			Metadata:   meta,
			SourceFile: r.SourceFile,
			ChunkIndex: r.ChunkIndex,
		})
	}
	return docs
}

func (s *esVectorStore) UpsertAll(ctx context.Context, records []*model.EmbeddingRecord) error {
	return es.BulkIndex(ctx, s.client, s.indexName, toEsDocuments(records))
}

func (s *esVectorStore) ClearAll(ctx context.Context) error {
	return es.DeleteAll(ctx, s.client, s.indexName)
}

func (s *esVectorStore) RebuildIndex(ctx context.Context, records []*model.EmbeddingRecord) error {
	if err := s.ClearAll(ctx); err != nil {
		return err
	}
	return s.UpsertAll(ctx, records)
}

func (s *esVectorStore) SimilaritySearch(ctx context.Context, query []float32, threshold float64, limit int) ([]model.ContextDoc, error) {
	numCandidates := limit * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   query,
			"k":              limit,
			"num_candidates": numCandidates,
		},
		"_source": []string{"content", "source_file"},
		"size":    limit,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned an error: %s", string(body))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsEmbeddingDocument `json:"_source"`
				Score  float64                   `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	docs := make([]model.ContextDoc, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		sim := cosineFromScore(hit.Score)
		if sim < threshold {
			continue
		}
		docs = append(docs, model.ContextDoc{
			Content:    hit.Source.Content,
			Source:     hit.Source.SourceFile,
			Similarity: sim,
		})
	}
	return docs, nil
}

// cosineFromScore 把 ES cosine knn 的 _score = (1 + cos) / 2 还原为余弦相似度。
func cosineFromScore(score float64) float64 {
	return 2*score - 1
}

func (s *esVectorStore) Count(ctx context.Context) (int64, error) {
	return es.Count(ctx, s.client, s.indexName)
}
