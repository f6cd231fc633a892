package service

import (
	"context"

	"offshore-assist-go/internal/model"
	"offshore-assist-go/internal/repository"
)

const (
	defaultHandoffListLimit = 50
	maxHandoffListLimit     = 200
)

// ConversationService 为员工后台提供会话查询。
type ConversationService interface {
	// ListHandoffs 返回最近请求转人工的会话，按请求时间倒序。
	ListHandoffs(ctx context.Context, limit int) ([]model.ChatConversation, error)
	GetMessages(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

func (s *conversationService) ListHandoffs(ctx context.Context, limit int) ([]model.ChatConversation, error) {
	if limit <= 0 {
		limit = defaultHandoffListLimit
	}
	if limit > maxHandoffListLimit {
		limit = maxHandoffListLimit
	}
	return s.repo.ListHandoffs(ctx, limit)
}

// GetMessages 先确认会话存在，再返回其全部消息。
func (s *conversationService) GetMessages(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	if _, err := s.repo.FindByID(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID)
}
