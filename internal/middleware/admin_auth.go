package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// StaffAuthMiddleware 检查 token 的 role 是否属于员工角色。
// 此中间件必须在 AuthMiddleware 之后使用。
func StaffAuthMiddleware(staffRoles []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(staffRoles))
	for _, r := range staffRoles {
		allowed[strings.ToLower(r)] = true
	}
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
			return
		}
		if !allowed[strings.ToLower(claims.Role)] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "权限不足，需要员工权限", "data": nil})
			return
		}
		c.Next()
	}
}
