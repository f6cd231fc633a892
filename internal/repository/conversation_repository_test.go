package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"offshore-assist-go/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库按连接隔离，只保留一个连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, MigrateConversations(context.Background(), db))
	return db
}

func newConversation(id string, at time.Time) *model.ChatConversation {
	return &model.ChatConversation{
		ID:                id,
		IsBotConversation: true,
		Status:            model.ConversationStatusActive,
		StartedAt:         at,
		LastMessageAt:     at,
	}
}

func TestConversationRepository_ListMessagesAscending(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDB(t))
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newConversation("c1", base)))

	// 乱序写入
	for _, offset := range []int{3, 1, 2} {
		require.NoError(t, repo.AddMessage(ctx, &model.ChatMessage{
			ConversationID: "c1",
			SenderType:     model.SenderUser,
			Message:        fmt.Sprintf("msg-%d", offset),
			CreatedAt:      base.Add(time.Duration(offset) * time.Second),
		}))
	}
	require.NoError(t, repo.AddMessage(ctx, &model.ChatMessage{
		ConversationID: "other",
		SenderType:     model.SenderUser,
		Message:        "not mine",
		CreatedAt:      base,
	}))

	msgs, err := repo.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, msg := range msgs {
		assert.Equal(t, fmt.Sprintf("msg-%d", i+1), msg.Message)
		assert.True(t, msg.CreatedAt.Equal(base.Add(time.Duration(i+1)*time.Second)))
	}

	empty, err := repo.ListMessages(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestConversationRepository_MarkHandoff(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDB(t))
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newConversation("c1", start)))

	at := start.Add(time.Minute)
	require.NoError(t, repo.MarkHandoff(ctx, "c1", at))

	conv, err := repo.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, conv.HandoffRequested)
	assert.False(t, conv.IsBotConversation)
	assert.Equal(t, model.ConversationStatusPendingHuman, conv.Status)
	require.NotNil(t, conv.HandoffRequestedAt)
	assert.True(t, conv.HandoffRequestedAt.Equal(at))
	assert.True(t, conv.LastMessageAt.Equal(at))

	// 未知会话
	assert.ErrorIs(t, repo.MarkHandoff(ctx, "nope", at), ErrConversationNotFound)
	_, err = repo.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationRepository_CreateKeepsBotFlagFalse(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDB(t))
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	conv := newConversation("h1", now)
	conv.IsBotConversation = false
	conv.HandoffRequested = true
	conv.HandoffRequestedAt = &now
	conv.Status = model.ConversationStatusPendingHuman
	require.NoError(t, repo.Create(ctx, conv))

	got, err := repo.FindByID(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, got.IsBotConversation)
	assert.True(t, got.HandoffRequested)
}

func TestConversationRepository_ListHandoffs(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDB(t))
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	for _, id := range []string{"a", "b", "c", "bot"} {
		require.NoError(t, repo.Create(ctx, newConversation(id, base)))
	}
	require.NoError(t, repo.MarkHandoff(ctx, "a", base.Add(1*time.Minute)))
	require.NoError(t, repo.MarkHandoff(ctx, "c", base.Add(3*time.Minute)))
	require.NoError(t, repo.MarkHandoff(ctx, "b", base.Add(2*time.Minute)))

	convs, err := repo.ListHandoffs(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	// 最近请求的排在前面，未转人工的不出现
	assert.Equal(t, []string{"c", "b", "a"}, ids)

	limited, err := repo.ListHandoffs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestConversationRepository_Touch(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDB(t))
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newConversation("c1", start)))

	later := start.Add(5 * time.Minute)
	require.NoError(t, repo.Touch(ctx, "c1", later))

	conv, err := repo.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, conv.LastMessageAt.Equal(later))
	assert.True(t, conv.IsBotConversation)
}
