// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"offshore-assist-go/internal/model"

	"gorm.io/gorm"
)

// ErrConversationNotFound 表示会话不存在。
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository 定义了会话与消息的持久化操作。
type ConversationRepository interface {
	Create(ctx context.Context, conv *model.ChatConversation) error
	FindByID(ctx context.Context, id string) (*model.ChatConversation, error)
	// MarkHandoff 把会话标记为待人工处理，该转换是单向的。
	MarkHandoff(ctx context.Context, id string, at time.Time) error
	// Touch 更新 last_message_at。
	Touch(ctx context.Context, id string, at time.Time) error
	AddMessage(ctx context.Context, msg *model.ChatMessage) error
	// ListMessages 按 created_at 升序返回会话的全部消息。
	ListMessages(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	// ListHandoffs 返回最近请求转人工的会话。
	ListHandoffs(ctx context.Context, limit int) ([]model.ChatConversation, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// MigrateConversations 迁移 chat_conversations 与 chat_messages 表。
func MigrateConversations(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&model.ChatConversation{}, &model.ChatMessage{})
}

func (r *conversationRepository) Create(ctx context.Context, conv *model.ChatConversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (*model.ChatConversation, error) {
	var conv model.ChatConversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) MarkHandoff(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.ChatConversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_bot_conversation":  false,
			"handoff_requested":    true,
			"handoff_requested_at": at,
			"status":               model.ConversationStatusPendingHuman,
			"last_message_at":      at,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark handoff: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *conversationRepository) Touch(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.ChatConversation{}).
		Where("id = ?", id).
		Update("last_message_at", at).Error
}

func (r *conversationRepository) AddMessage(ctx context.Context, msg *model.ChatMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *conversationRepository) ListMessages(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

func (r *conversationRepository) ListHandoffs(ctx context.Context, limit int) ([]model.ChatConversation, error) {
	var convs []model.ChatConversation
	err := r.db.WithContext(ctx).
		Where("handoff_requested = ?", true).
		Order("handoff_requested_at DESC").
		Limit(limit).
		Find(&convs).Error
	return convs, err
}
