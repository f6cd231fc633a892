// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"offshore-assist-go/internal/config"
	"offshore-assist-go/internal/model"
	"offshore-assist-go/internal/repository"
	"offshore-assist-go/pkg/llm"
	"offshore-assist-go/pkg/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrInvalidMessages 表示请求中的最后一条消息不是非空的用户消息。
var ErrInvalidMessages = errors.New("the last message must be a non-empty message with role \"user\"")

const (
	DefaultSupportPhone = "+63 2 8700 1234"
	DefaultSupportEmail = "support@offshore-assist.com"

	defaultHandoffTemplate  = "Thanks for reaching out. I've passed this conversation to our team and a member of staff will get back to you shortly. If it's urgent, call us on {phone} or email {email}."
	defaultFallbackTemplate = "Sorry, I'm having trouble answering right now. Please try again in a moment, or contact our team directly on {phone} or at {email}."
)

// ChatService 定义了聊天编排的接口。
type ChatService interface {
	// Chat 处理一次请求：分类 -> 转人工 或 检索+生成 -> 持久化。
	Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
	// StreamChat 与 Chat 状态相同，回复以增量分块写入 writer。
	StreamChat(ctx context.Context, req model.ChatRequest, writer llm.MessageWriter) (*model.ChatResponse, error)
	// History 按 created_at 升序返回会话消息。
	History(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
}

type chatService struct {
	detector        *HandoffDetector
	retrieval       RetrievalService
	generator       ResponseGenerator
	repo            repository.ConversationRepository
	matchCount      int
	handoffMessage  string
	fallbackMessage string
	now             func() time.Time
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	detector *HandoffDetector,
	retrieval RetrievalService,
	generator ResponseGenerator,
	repo repository.ConversationRepository,
	chatCfg config.ChatConfig,
	matchCount int,
) ChatService {
	if matchCount <= 0 {
		matchCount = DefaultMatchCount
	}
	return &chatService{
		detector:        detector,
		retrieval:       retrieval,
		generator:       generator,
		repo:            repo,
		matchCount:      matchCount,
		handoffMessage:  HandoffMessage(chatCfg),
		fallbackMessage: FallbackMessage(chatCfg),
		now:             time.Now,
	}
}

// HandoffMessage 返回转人工固定话术，{phone}、{email} 会被替换为联系方式。
func HandoffMessage(cfg config.ChatConfig) string {
	return renderContact(cfg.HandoffMessage, defaultHandoffTemplate, cfg)
}

// FallbackMessage 返回生成失败时的固定话术。
func FallbackMessage(cfg config.ChatConfig) string {
	return renderContact(cfg.FallbackMessage, defaultFallbackTemplate, cfg)
}

func renderContact(tmpl, fallback string, cfg config.ChatConfig) string {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = fallback
	}
	phone := cfg.SupportPhone
	if phone == "" {
		phone = DefaultSupportPhone
	}
	email := cfg.SupportEmail
	if email == "" {
		email = DefaultSupportEmail
	}
	return strings.NewReplacer("{phone}", phone, "{email}", email).Replace(tmpl)
}

func latestUserTurn(messages []model.ChatTurn) (model.ChatTurn, error) {
	if len(messages) == 0 {
		return model.ChatTurn{}, ErrInvalidMessages
	}
	latest := messages[len(messages)-1]
	if latest.Role != model.SenderUser || strings.TrimSpace(latest.Content) == "" {
		return model.ChatTurn{}, ErrInvalidMessages
	}
	return latest, nil
}

func (s *chatService) Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	latest, err := latestUserTurn(req.Messages)
	if err != nil {
		return nil, err
	}

	if s.detector.ShouldHandoff(latest.Content) {
		log.Infof("[ChatService] 命中转人工关键词, conversation=%s", req.ConversationID)
		return s.handoff(ctx, req, latest), nil
	}

	docs := s.retrieval.Retrieve(ctx, latest.Content, s.matchCount)
	reply, err := s.generator.Generate(ctx, req.Messages, docs)
	if err != nil {
		log.Errorf("[ChatService] 生成回复失败, 使用兜底话术: %v", err)
		reply = s.fallbackMessage
	}

	convID := s.persistTurn(ctx, req, latest.Content, reply)
	return &model.ChatResponse{
		Message:        reply,
		ConversationID: convID,
		Sources:        distinctSources(docs),
	}, nil
}

func (s *chatService) StreamChat(ctx context.Context, req model.ChatRequest, writer llm.MessageWriter) (*model.ChatResponse, error) {
	latest, err := latestUserTurn(req.Messages)
	if err != nil {
		return nil, err
	}

	if s.detector.ShouldHandoff(latest.Content) {
		resp := s.handoff(ctx, req, latest)
		if err := writer.WriteMessage(websocket.TextMessage, []byte(resp.Message)); err != nil {
			log.Warnf("[ChatService] 推送转人工话术失败: %v", err)
		}
		return resp, nil
	}

	docs := s.retrieval.Retrieve(ctx, latest.Content, s.matchCount)
	reply, err := s.generator.Stream(ctx, req.Messages, docs, writer)
	if err != nil {
		log.Errorf("[ChatService] 流式生成失败: %v", err)
		if reply == "" {
			reply = s.fallbackMessage
			if werr := writer.WriteMessage(websocket.TextMessage, []byte(reply)); werr != nil {
				log.Warnf("[ChatService] 推送兜底话术失败: %v", werr)
			}
		}
	}

	convID := s.persistTurn(ctx, req, latest.Content, reply)
	return &model.ChatResponse{
		Message:        reply,
		ConversationID: convID,
		Sources:        distinctSources(docs),
	}, nil
}

func (s *chatService) History(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	msgs, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// handoff 标记（或新建）会话为待人工处理，并写入用户消息与转人工话术。不做检索与生成。
func (s *chatService) handoff(ctx context.Context, req model.ChatRequest, latest model.ChatTurn) *model.ChatResponse {
	// 回复已确定，持久化不随请求取消
	ctx = context.WithoutCancel(ctx)
	now := s.now()
	convID := req.ConversationID

	if convID != "" {
		err := s.repo.MarkHandoff(ctx, convID, now)
		if errors.Is(err, repository.ErrConversationNotFound) {
			convID = ""
		} else if err != nil {
			log.Errorf("[ChatService] 标记转人工失败, conversation=%s: %v", convID, err)
		}
	}
	if convID == "" {
		conv := s.newConversation(req, now)
		conv.IsBotConversation = false
		conv.HandoffRequested = true
		conv.HandoffRequestedAt = &now
		conv.Status = model.ConversationStatusPendingHuman
		if err := s.repo.Create(ctx, conv); err != nil {
			log.Errorf("[ChatService] 创建转人工会话失败: %v", err)
		} else {
			convID = conv.ID
		}
	}

	if convID != "" {
		s.saveMessages(ctx, convID, req.UserID, latest.Content, s.handoffMessage, now)
	}
	return &model.ChatResponse{
		Message:          s.handoffMessage,
		ConversationID:   convID,
		HandoffRequested: true,
	}
}

// persistTurn 在生成之后写入用户与机器人两条消息；任何失败只记录日志，返回可用的会话 ID（可能为空）。
func (s *chatService) persistTurn(ctx context.Context, req model.ChatRequest, question, answer string) string {
	ctx = context.WithoutCancel(ctx)
	now := s.now()
	convID := req.ConversationID

	if convID == "" {
		conv := s.newConversation(req, now)
		if err := s.repo.Create(ctx, conv); err != nil {
			log.Errorf("[ChatService] 创建会话失败, 本轮不持久化: %v", err)
			return ""
		}
		convID = conv.ID
	}

	s.saveMessages(ctx, convID, req.UserID, question, answer, now)
	if err := s.repo.Touch(ctx, convID, s.now()); err != nil {
		log.Errorf("[ChatService] 更新 last_message_at 失败, conversation=%s: %v", convID, err)
	}
	return convID
}

func (s *chatService) saveMessages(ctx context.Context, convID, userID, question, answer string, at time.Time) {
	userMsg := &model.ChatMessage{
		ConversationID: convID,
		SenderType:     model.SenderUser,
		SenderID:       optionalString(userID),
		Message:        question,
		CreatedAt:      at,
	}
	if err := s.repo.AddMessage(ctx, userMsg); err != nil {
		log.Errorf("[ChatService] 保存用户消息失败, conversation=%s: %v", convID, err)
	}

	botMsg := &model.ChatMessage{
		ConversationID: convID,
		SenderType:     model.SenderBot,
		Message:        answer,
		CreatedAt:      s.now(),
	}
	if err := s.repo.AddMessage(ctx, botMsg); err != nil {
		log.Errorf("[ChatService] 保存机器人消息失败, conversation=%s: %v", convID, err)
	}
}

func (s *chatService) newConversation(req model.ChatRequest, now time.Time) *model.ChatConversation {
	return &model.ChatConversation{
		ID:                uuid.NewString(),
		UserID:            optionalString(req.UserID),
		VisitorEmail:      optionalString(req.VisitorEmail),
		VisitorName:       optionalString(req.VisitorName),
		IsBotConversation: true,
		Status:            model.ConversationStatusActive,
		StartedAt:         now,
		LastMessageAt:     now,
	}
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// distinctSources 按首次出现顺序去重来源标签。
func distinctSources(docs []model.ContextDoc) []string {
	if len(docs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(docs))
	var out []string
	for _, d := range docs {
		if d.Source == "" || seen[d.Source] {
			continue
		}
		seen[d.Source] = true
		out = append(out, d.Source)
	}
	return out
}
