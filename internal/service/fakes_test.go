package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"offshore-assist-go/internal/model"
	"offshore-assist-go/internal/repository"
	"offshore-assist-go/pkg/llm"
	"offshore-assist-go/pkg/tasks"

	"github.com/pgvector/pgvector-go"
)

var errUpstream = errors.New("upstream unavailable")

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) CreateEmbedding(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

// fakeVectorStore 原样返回预置的检索结果，不做阈值过滤。
type fakeVectorStore struct {
	mu        sync.Mutex
	results   []model.ContextDoc
	searchErr error
	records   []*model.EmbeddingRecord

	gotThreshold float64
	gotLimit     int
}

func (f *fakeVectorStore) UpsertAll(_ context.Context, records []*model.EmbeddingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeVectorStore) ClearAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = nil
	return nil
}

func (f *fakeVectorStore) RebuildIndex(_ context.Context, records []*model.EmbeddingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append([]*model.EmbeddingRecord(nil), records...)
	return nil
}

func (f *fakeVectorStore) SimilaritySearch(_ context.Context, _ []float32, threshold float64, limit int) ([]model.ContextDoc, error) {
	f.gotThreshold = threshold
	f.gotLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeVectorStore) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.records)), nil
}

type fakeLLM struct {
	reply  string
	err    error
	chunks []string
	got    []llm.Message
}

func (f *fakeLLM) Chat(_ context.Context, messages []llm.Message, _ *llm.GenerationParams) (string, error) {
	f.got = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) StreamChatMessages(_ context.Context, messages []llm.Message, _ *llm.GenerationParams, w llm.MessageWriter) (string, error) {
	f.got = messages
	if f.err != nil {
		return "", f.err
	}
	var full string
	for _, c := range f.chunks {
		full += c
		if err := w.WriteMessage(1, []byte(c)); err != nil {
			return full, err
		}
	}
	return full, nil
}

type recordingWriter struct {
	frames []string
}

func (w *recordingWriter) WriteMessage(_ int, data []byte) error {
	w.frames = append(w.frames, string(data))
	return nil
}

// fakeConversationRepo 是内存中的 ConversationRepository。
type fakeConversationRepo struct {
	mu       sync.Mutex
	convs    map[string]*model.ChatConversation
	messages []model.ChatMessage
	nextID   uint

	createErr  error
	messageErr error
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{convs: map[string]*model.ChatConversation{}}
}

func (r *fakeConversationRepo) Create(_ context.Context, conv *model.ChatConversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	c := *conv
	r.convs[conv.ID] = &c
	return nil
}

func (r *fakeConversationRepo) FindByID(_ context.Context, id string) (*model.ChatConversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeConversationRepo) MarkHandoff(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return repository.ErrConversationNotFound
	}
	c.IsBotConversation = false
	c.HandoffRequested = true
	c.HandoffRequestedAt = &at
	c.Status = model.ConversationStatusPendingHuman
	c.LastMessageAt = at
	return nil
}

func (r *fakeConversationRepo) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[id]; ok {
		c.LastMessageAt = at
	}
	return nil
}

func (r *fakeConversationRepo) AddMessage(_ context.Context, msg *model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messageErr != nil {
		return r.messageErr
	}
	r.nextID++
	msg.ID = r.nextID
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeConversationRepo) ListMessages(_ context.Context, conversationID string) ([]model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ChatMessage
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeConversationRepo) ListHandoffs(_ context.Context, limit int) ([]model.ChatConversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ChatConversation
	for _, c := range r.convs {
		if c.HandoffRequested {
			out = append(out, *c)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeIngestState struct {
	mu      sync.Mutex
	locked  bool
	report  *model.IngestReport
	acquire int
	release int
}

func (f *fakeIngestState) AcquireLock(context.Context, time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked {
		return "", repository.ErrIngestRunning
	}
	f.locked = true
	f.acquire++
	return "token", nil
}

func (f *fakeIngestState) ReleaseLock(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = false
	f.release++
	return nil
}

func (f *fakeIngestState) IsRunning(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked, nil
}

func (f *fakeIngestState) SaveReport(_ context.Context, report *model.IngestReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.report = report
	return nil
}

func (f *fakeIngestState) LastReport(context.Context) (*model.IngestReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.report, nil
}

type fakePublisher struct {
	tasks []tasks.IngestTask
	err   error
}

func (f *fakePublisher) ProduceIngestTask(_ context.Context, task tasks.IngestTask) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func embeddingRecord(content string) *model.EmbeddingRecord {
	return &model.EmbeddingRecord{Content: content, Embedding: pgvector.NewVector([]float32{1, 0, 0})}
}
