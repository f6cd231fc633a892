package model

// ChatTurn 是客户端提交的一条角色消息。
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 是 POST /api/v1/chat 的请求体。
type ChatRequest struct {
	Messages       []ChatTurn `json:"messages"`
	ConversationID string     `json:"conversationId,omitempty"`
	UserID         string     `json:"userId,omitempty"`
	VisitorEmail   string     `json:"visitorEmail,omitempty"`
	VisitorName    string     `json:"visitorName,omitempty"`
}

// ChatResponse 是聊天接口的返回体。
type ChatResponse struct {
	Message          string   `json:"message"`
	ConversationID   string   `json:"conversationId,omitempty"`
	HandoffRequested bool     `json:"handoffRequested,omitempty"`
	Sources          []string `json:"sources,omitempty"`
}

// ContextDoc 是检索得到的一段上下文。
type ContextDoc struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}
