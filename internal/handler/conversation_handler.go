package handler

import (
	"errors"
	"net/http"
	"strconv"

	"offshore-assist-go/internal/repository"
	"offshore-assist-go/internal/service"
	"offshore-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 为员工后台提供会话查询接口。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// ListHandoffs 处理 GET /api/v1/admin/conversations/handoffs。
func (h *ConversationHandler) ListHandoffs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "limit 必须是正整数", "data": nil})
		return
	}

	convs, err := h.service.ListHandoffs(c.Request.Context(), limit)
	if err != nil {
		log.Errorf("[ConversationHandler] 查询转人工会话失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "Failed to retrieve handoff conversations", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": convs})
}

// GetMessages 处理 GET /api/v1/admin/conversations/:id/messages。
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	id := c.Param("id")
	msgs, err := h.service.GetMessages(c.Request.Context(), id)
	if errors.Is(err, repository.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在", "data": nil})
		return
	}
	if err != nil {
		log.Errorf("[ConversationHandler] 查询会话消息失败, conversation=%s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "Failed to retrieve messages", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": msgs})
}
