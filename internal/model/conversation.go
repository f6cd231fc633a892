// Package model 包含了应用的数据模型定义。
package model

import "time"

const (
	// SenderUser 和 SenderBot 是 chat_messages.sender_type 的取值。
	SenderUser = "user"
	SenderBot  = "bot"

	ConversationStatusActive       = "active"
	ConversationStatusPendingHuman = "pending_human"
)

// ChatConversation 对应 chat_conversations 表。
// HandoffRequested 一旦置为 true，IsBotConversation 即为 false，不会自动回到机器人模式。
type ChatConversation struct {
	ID                 string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID             *string    `gorm:"type:varchar(64);index" json:"userId,omitempty"`
	VisitorEmail       *string    `gorm:"type:varchar(255)" json:"visitorEmail,omitempty"`
	VisitorName        *string    `gorm:"type:varchar(255)" json:"visitorName,omitempty"`
	IsBotConversation  bool       `gorm:"not null" json:"isBotConversation"`
	Status             string     `gorm:"type:varchar(32);not null;default:active" json:"status"`
	HandoffRequested   bool       `gorm:"not null;default:false;index" json:"handoffRequested"`
	HandoffRequestedAt *time.Time `json:"handoffRequestedAt,omitempty"`
	StartedAt          time.Time  `gorm:"not null" json:"startedAt"`
	LastMessageAt      time.Time  `gorm:"not null;index" json:"lastMessageAt"`
}

func (ChatConversation) TableName() string {
	return "chat_conversations"
}

// ChatMessage 对应 chat_messages 表，只追加，不修改。
type ChatMessage struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"type:varchar(36);not null;index" json:"conversationId"`
	SenderType     string    `gorm:"type:varchar(16);not null" json:"senderType"`
	SenderID       *string   `gorm:"type:varchar(64)" json:"senderId,omitempty"`
	Message        string    `gorm:"type:text;not null" json:"message"`
	CreatedAt      time.Time `gorm:"not null;index" json:"createdAt"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
