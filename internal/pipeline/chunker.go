package pipeline

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"offshore-assist-go/internal/model"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 200
	// MinChunkLength 是分块（以及整篇文档）trim 后的最小字符数，低于该值直接丢弃。
	MinChunkLength = 50
)

var paragraphSep = regexp.MustCompile(`\n\s*\n`)

// Chunker 按段落边界把文档切成带重叠的分块。
// 只在段落之间切分，单个超长段落会原样成为一个分块。
type Chunker struct {
	chunkSize int
	overlap   int
	minLength int
}

// NewChunker 创建 Chunker，非法参数回落到默认值。
func NewChunker(chunkSize, overlap, minLength int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if minLength <= 0 {
		minLength = MinChunkLength
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap, minLength: minLength}
}

// Chunk 切分全部文档，同一来源的分块 ChunkIndex 为 0..N-1 且 TotalChunks 均为 N。
func (c *Chunker) Chunk(docs []model.SourceDocument) []model.DocumentChunk {
	var out []model.DocumentChunk
	for _, doc := range docs {
		if utf8.RuneCountInString(strings.TrimSpace(doc.Content)) < c.minLength {
			continue
		}
		out = append(out, c.chunkOne(doc)...)
	}
	return out
}

func (c *Chunker) chunkOne(doc model.SourceDocument) []model.DocumentChunk {
	var chunks []model.DocumentChunk
	emit := func(text string) {
		text = strings.TrimSpace(text)
		if utf8.RuneCountInString(text) < c.minLength {
			return
		}
		chunks = append(chunks, model.DocumentChunk{
			Content: text,
			Metadata: model.ChunkMetadata{
				Source:     doc.Source,
				DocType:    doc.DocType,
				ChunkIndex: len(chunks),
			},
		})
	}

	var buf string
	for _, para := range paragraphSep.Split(doc.Content, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if buf != "" && utf8.RuneCountInString(buf)+utf8.RuneCountInString(para) > c.chunkSize {
			emit(buf)
			buf = joinParagraphs(c.overlapTail(buf), para)
			continue
		}
		buf = joinParagraphs(buf, para)
	}
	emit(buf)

	for i := range chunks {
		chunks[i].Metadata.TotalChunks = len(chunks)
	}
	return chunks
}

// overlapTail 取上一块末尾 overlap/5 个词作为下一块的开头，近似 overlap 个字符。
func (c *Chunker) overlapTail(text string) string {
	n := c.overlap / 5
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

func joinParagraphs(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n\n" + b
}
