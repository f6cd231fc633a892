// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"offshore-assist-go/internal/middleware"
	"offshore-assist-go/internal/model"
	"offshore-assist-go/internal/service"
	"offshore-assist-go/pkg/log"
	"offshore-assist-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 聊天挂件嵌在公开站点上，允许所有来源
	},
}

// ChatHandler 处理聊天挂件的 HTTP 与 WebSocket 请求。
type ChatHandler struct {
	chatService service.ChatService
	verifier    *token.Verifier
}

// NewChatHandler 创建一个新的 ChatHandler。verifier 用于校验 WebSocket 查询参数中的 token。
func NewChatHandler(chatService service.ChatService, verifier *token.Verifier) *ChatHandler {
	return &ChatHandler{chatService: chatService, verifier: verifier}
}

// applyIdentity 用 token 中的身份覆盖请求体里的 userId。
func applyIdentity(req *model.ChatRequest, claims *token.CustomClaims) {
	if claims == nil {
		return
	}
	req.UserID = claims.UserID()
	if req.VisitorEmail == "" {
		req.VisitorEmail = claims.Email
	}
}

// Chat 处理 POST /api/v1/chat。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[ChatHandler] 无效的请求体: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	applyIdentity(&req, middleware.ClaimsFrom(c))

	resp, err := h.chatService.Chat(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMessages) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Errorf("[ChatHandler] 聊天处理失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History 处理 GET /api/v1/chat?conversationId=。
func (h *ChatHandler) History(c *gin.Context) {
	conversationID := strings.TrimSpace(c.Query("conversationId"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
		return
	}
	msgs, err := h.chatService.History(c.Request.Context(), conversationID)
	if err != nil {
		log.Errorf("[ChatHandler] 获取会话消息失败, conversation=%s: %v", conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// wsChunkWriter 把增量文本包装成 {"chunk":"..."} 写入连接。
type wsChunkWriter struct {
	conn *websocket.Conn
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsChunkWriter) WriteMessage(messageType int, data []byte) error {
	b, _ := json.Marshal(map[string]string{"chunk": string(data)})
	return w.conn.WriteMessage(messageType, b)
}

func writeJSONFrame(conn *websocket.Conn, payload interface{}) {
	b, _ := json.Marshal(payload)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("[ChatHandler] 写入 WebSocket 失败: %v", err)
	}
}

// HandleWebSocket 处理 GET /api/v1/chat/ws。每个入站文本帧是一个 ChatRequest JSON。
func (h *ChatHandler) HandleWebSocket(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	// 浏览器无法给 WebSocket 设置请求头，token 也可放在查询参数里
	if claims == nil && h.verifier != nil {
		if t := c.Query("token"); t != "" {
			if cl, err := h.verifier.VerifyToken(t); err == nil {
				claims = cl
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	writer := &wsChunkWriter{conn: conn}
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		var req model.ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			writeJSONFrame(conn, gin.H{"error": "invalid request body"})
			continue
		}
		applyIdentity(&req, claims)

		resp, err := h.chatService.StreamChat(ctx, req, writer)
		if err != nil {
			if errors.Is(err, service.ErrInvalidMessages) {
				writeJSONFrame(conn, gin.H{"error": err.Error()})
				continue
			}
			log.Errorf("处理流式响应失败: %v", err)
			writeJSONFrame(conn, gin.H{"error": "internal server error"})
			return
		}

		writeJSONFrame(conn, gin.H{
			"type":             "completion",
			"status":           "finished",
			"conversationId":   resp.ConversationID,
			"handoffRequested": resp.HandoffRequested,
			"sources":          resp.Sources,
			"timestamp":        time.Now().UnixMilli(),
		})
	}
}
