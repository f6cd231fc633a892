package handler

import (
	"errors"
	"net/http"

	"offshore-assist-go/internal/middleware"
	"offshore-assist-go/internal/repository"
	"offshore-assist-go/internal/service"
	"offshore-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责知识库重建与状态查询。
type AdminHandler struct {
	ingestService service.IngestService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(ingestService service.IngestService) *AdminHandler {
	return &AdminHandler{ingestService: ingestService}
}

// RebuildRequest 是知识库重建接口的可选请求体。
type RebuildRequest struct {
	Source   string   `json:"source"`
	DocTypes []string `json:"docTypes"`
}

// RebuildKnowledge 处理 POST /api/v1/admin/knowledge/rebuild。
func (h *AdminHandler) RebuildKnowledge(c *gin.Context) {
	var req RebuildRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
			return
		}
	}

	requestedBy := ""
	if claims := middleware.ClaimsFrom(c); claims != nil {
		requestedBy = claims.UserID()
	}

	taskID, err := h.ingestService.Trigger(c.Request.Context(), req.Source, req.DocTypes, requestedBy)
	switch {
	case errors.Is(err, repository.ErrIngestRunning):
		c.JSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "message": "已有导入任务在执行", "data": nil})
		return
	case errors.Is(err, service.ErrUnknownSource):
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
		return
	case err != nil:
		log.Errorf("[AdminHandler] 触发知识库重建失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "触发重建失败", "data": nil})
		return
	}

	log.Infof("[AdminHandler] 知识库重建已触发, TaskID=%s, by=%s", taskID, requestedBy)
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "accepted", "data": gin.H{"taskId": taskID}})
}

// KnowledgeStatus 处理 GET /api/v1/admin/knowledge/status。
func (h *AdminHandler) KnowledgeStatus(c *gin.Context) {
	status, err := h.ingestService.Status(c.Request.Context())
	if err != nil {
		log.Errorf("[AdminHandler] 查询知识库状态失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "查询状态失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": status})
}
