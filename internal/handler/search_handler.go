package handler

import (
	"net/http"
	"strconv"

	"offshore-assist-go/internal/service"
	"offshore-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 让员工直接检查知识库检索结果。
type SearchHandler struct {
	retrieval service.RetrievalService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(retrieval service.RetrievalService) *SearchHandler {
	return &SearchHandler{retrieval: retrieval}
}

// SearchKnowledge 处理 GET /api/v1/admin/knowledge/search?query=&topK=。
func (h *SearchHandler) SearchKnowledge(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		log.Warnf("[SearchHandler] 搜索请求失败: query 参数为空")
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的查询参数", "data": nil})
		return
	}
	topK, err := strconv.Atoi(c.DefaultQuery("topK", "5"))
	if err != nil || topK <= 0 {
		topK = service.DefaultMatchCount
	}

	results := h.retrieval.Retrieve(c.Request.Context(), query, topK)
	log.Infof("[SearchHandler] 知识库检索完成, query: '%s', 返回 %d 条结果", query, len(results))
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": results})
}
