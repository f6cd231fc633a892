package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"offshore-assist-go/internal/config"
	"offshore-assist-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	// 内容包含 failOn 时返回错误
	failOn string
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("embedding api unavailable")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type memStore struct {
	records  []*model.EmbeddingRecord
	clears   int
	rebuilds int
	upserts  int
	failOn   string
}

func (m *memStore) UpsertAll(_ context.Context, records []*model.EmbeddingRecord) error {
	m.upserts++
	for _, r := range records {
		if m.failOn != "" && strings.Contains(r.Content, m.failOn) {
			return errors.New("insert failed")
		}
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *memStore) ClearAll(context.Context) error {
	m.clears++
	m.records = nil
	return nil
}

func (m *memStore) RebuildIndex(ctx context.Context, records []*model.EmbeddingRecord) error {
	m.rebuilds++
	m.records = append([]*model.EmbeddingRecord(nil), records...)
	return nil
}

func (m *memStore) SimilaritySearch(context.Context, []float32, float64, int) ([]model.ContextDoc, error) {
	return nil, nil
}

func (m *memStore) Count(context.Context) (int64, error) {
	return int64(len(m.records)), nil
}

type staticSource []model.SourceDocument

func (s staticSource) Name() string { return "static" }

func (s staticSource) Load(context.Context) ([]model.SourceDocument, error) { return s, nil }

func corpus() staticSource {
	return staticSource{
		{Content: paragraph("svc", 300) + "\n\n" + paragraph("ops", 300) + "\n\n" + paragraph("bpo", 300), Source: "services.md", DocType: "md"},
		{Content: paragraph("job", 200), Source: "careers.txt", DocType: "txt"},
		{Content: "tiny", Source: "stub.md", DocType: "md"},
	}
}

func testIngestConfig() config.IngestConfig {
	return config.IngestConfig{ChunkSize: 400, ChunkOverlap: 100, MinChunkLength: MinChunkLength}
}

func TestIngestorRun_RebuildIsIdempotent(t *testing.T) {
	store := &memStore{}
	emb := &fakeEmbedder{}
	ing := NewIngestor(emb, store, testIngestConfig())

	first, err := ing.Run(context.Background(), corpus())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Loaded)
	assert.Equal(t, 1, first.Skipped)
	assert.Equal(t, first.Chunks, first.Processed)
	assert.Zero(t, first.Failed)
	assert.Equal(t, int64(first.Chunks), first.Stored)

	second, err := ing.Run(context.Background(), corpus())
	require.NoError(t, err)
	assert.Equal(t, first.Stored, second.Stored)
	assert.Equal(t, 2, store.rebuilds)
	assert.Zero(t, store.clears)

	for _, r := range store.records {
		assert.NotEqual(t, "stub.md", r.SourceFile)
		assert.Len(t, r.Embedding.Slice(), 3)
	}
}

func TestIngestorRun_CountsEmbeddingFailures(t *testing.T) {
	store := &memStore{}
	ing := NewIngestor(&fakeEmbedder{failOn: "jobw"}, store, testIngestConfig())

	report, err := ing.Run(context.Background(), corpus())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, report.Chunks-1, report.Processed)
	assert.Equal(t, int64(report.Processed), report.Stored)
}

func TestIngestorRun_NothingEmbeddedKeepsIndex(t *testing.T) {
	store := &memStore{records: []*model.EmbeddingRecord{{Content: "existing"}}}
	ing := NewIngestor(&fakeEmbedder{failOn: "w"}, store, testIngestConfig())

	report, err := ing.Run(context.Background(), corpus())
	assert.ErrorIs(t, err, ErrNothingEmbedded)
	assert.Equal(t, report.Chunks, report.Failed)
	assert.Zero(t, store.rebuilds)
	assert.Len(t, store.records, 1)
}

func TestIngestorRun_IncrementalWrites(t *testing.T) {
	store := &memStore{records: []*model.EmbeddingRecord{{Content: "stale"}}, failOn: "jobw"}
	cfg := testIngestConfig()
	cfg.IncrementalWrites = true
	ing := NewIngestor(&fakeEmbedder{}, store, cfg)

	report, err := ing.Run(context.Background(), corpus())
	require.NoError(t, err)
	assert.Equal(t, 1, store.clears)
	assert.Equal(t, report.Chunks, store.upserts)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, report.Chunks-1, report.Processed)
	for _, r := range store.records {
		assert.NotEqual(t, "stale", r.Content)
	}
}

func TestIngestorRun_DocTypeFilter(t *testing.T) {
	store := &memStore{}
	ing := NewIngestor(&fakeEmbedder{}, store, testIngestConfig())

	report, err := ing.Run(context.Background(), corpus(), WithDocTypes(".txt"), WithTaskID("t-1"))
	require.NoError(t, err)
	assert.Equal(t, "t-1", report.TaskID)
	assert.Equal(t, 1, report.Loaded)
	for _, r := range store.records {
		assert.Equal(t, "careers.txt", r.SourceFile)
	}
}

func TestDirSource_LoadsMarkdownAndText(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "faq"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "services.md"), []byte("# Services"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faq", "hours.TXT"), []byte("We are open 24/7."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.ts"), []byte("export {}"), 0o644))

	docs, err := DirSource{Dir: dir}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	bySource := map[string]model.SourceDocument{}
	for _, d := range docs {
		bySource[d.Source] = d
	}
	assert.Equal(t, "md", bySource["services.md"].DocType)
	assert.Equal(t, "txt", bySource["faq/hours.TXT"].DocType)
}

func TestDirSource_MissingDir(t *testing.T) {
	_, err := DirSource{Dir: filepath.Join(t.TempDir(), "nope")}.Load(context.Background())
	assert.Error(t, err)
}
