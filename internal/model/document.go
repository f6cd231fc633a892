package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// SourceDocument 是从语料目录或对象存储加载的一篇原始文档。
type SourceDocument struct {
	Content string
	Source  string
	DocType string
}

// ChunkMetadata 随分块一起写入 document_embeddings.metadata。
type ChunkMetadata struct {
	Source      string `json:"source"`
	DocType     string `json:"type"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// DocumentChunk 是切分后的一段文本，入库后不再修改。
type DocumentChunk struct {
	Content  string
	Metadata ChunkMetadata
}

// EmbeddingRecord 对应 document_embeddings 表。每次导入都会整表重建。
type EmbeddingRecord struct {
	ID         uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Content    string          `gorm:"type:text;not null" json:"content"`
	Embedding  pgvector.Vector `gorm:"type:vector(768)" json:"-"`
	Metadata   datatypes.JSON  `gorm:"type:jsonb" json:"metadata"`
	SourceFile string          `gorm:"type:varchar(255);index" json:"source_file"`
	ChunkIndex int             `gorm:"not null" json:"chunk_index"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (EmbeddingRecord) TableName() string {
	return "document_embeddings"
}

// EsEmbeddingDocument 是 Elasticsearch 向量库中的文档结构。
type EsEmbeddingDocument struct {
	VectorID   string        `json:"vector_id"`
	Content    string        `json:"content"`
	Vector     []float32     `json:"vector"`
	Metadata   ChunkMetadata `json:"metadata"`
	SourceFile string        `json:"source_file"`
	ChunkIndex int           `json:"chunk_index"`
}

// IngestReport 汇总一次知识库导入的结果。
type IngestReport struct {
	TaskID    string    `json:"taskId,omitempty"`
	Source    string    `json:"source"`
	Loaded    int       `json:"loaded"`
	Skipped   int       `json:"skipped"`
	Chunks    int       `json:"chunks"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Stored    int64     `json:"stored"`
	StartedAt time.Time `json:"startedAt"`
	Duration  string    `json:"duration"`
	Error     string    `json:"error,omitempty"`
}
