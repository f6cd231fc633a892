package handler

import (
	"net/http"

	"offshore-assist-go/internal/middleware"
	"offshore-assist-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Handlers 汇总路由需要的全部处理器。
type Handlers struct {
	Chat         *ChatHandler
	Conversation *ConversationHandler
	Admin        *AdminHandler
	Search       *SearchHandler
}

// NewRouter 创建 gin 引擎并注册全部路由。
func NewRouter(h Handlers, verifier *token.Verifier, staffRoles []string) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		// 聊天挂件：访客与登录用户均可访问
		chat := apiV1.Group("/chat")
		chat.Use(middleware.OptionalAuth(verifier))
		{
			chat.POST("", h.Chat.Chat)
			chat.GET("", h.Chat.History)
			chat.GET("/ws", h.Chat.HandleWebSocket)
		}

		// 员工后台，需要同时通过认证和员工授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(verifier), middleware.StaffAuthMiddleware(staffRoles))
		{
			conversations := admin.Group("/conversations")
			{
				conversations.GET("/handoffs", h.Conversation.ListHandoffs)
				conversations.GET("/:id/messages", h.Conversation.GetMessages)
			}

			knowledge := admin.Group("/knowledge")
			{
				knowledge.POST("/rebuild", h.Admin.RebuildKnowledge)
				knowledge.GET("/status", h.Admin.KnowledgeStatus)
				knowledge.GET("/search", h.Search.SearchKnowledge)
			}
		}
	}
	return r
}
