package repository

import (
	"encoding/json"
	"testing"

	"offshore-assist-go/internal/model"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineFromScore(t *testing.T) {
	assert.InDelta(t, 1.0, cosineFromScore(1.0), 1e-9)
	assert.InDelta(t, 0.0, cosineFromScore(0.5), 1e-9)
	assert.InDelta(t, 0.5, cosineFromScore(0.75), 1e-9)
	assert.InDelta(t, -1.0, cosineFromScore(0), 1e-9)
}

func TestToEsDocuments(t *testing.T) {
	meta, err := json.Marshal(model.ChunkMetadata{Source: "faq.md", DocType: "md", ChunkIndex: 2, TotalChunks: 3})
	require.NoError(t, err)

	docs := toEsDocuments([]*model.EmbeddingRecord{{
		Content:    "We provide offshore staffing.",
		Embedding:  pgvector.NewVector([]float32{0.5, 0.25}),
		Metadata:   meta,
		SourceFile: "faq.md",
		ChunkIndex: 2,
	}})

	require.Len(t, docs, 1)
	assert.Equal(t, "faq.md_2", docs[0].VectorID)
	assert.Equal(t, []float32{0.5, 0.25}, docs[0].Vector)
	assert.Equal(t, 3, docs[0].Metadata.TotalChunks)
	assert.Equal(t, "md", docs[0].Metadata.DocType)
}
