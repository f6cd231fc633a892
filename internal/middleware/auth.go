// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"offshore-assist-go/pkg/log"
	"offshore-assist-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// ClaimsKey 是 claims 在 gin.Context 中的键。
const ClaimsKey = "claims"

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix)), true
}

// AuthMiddleware 要求请求携带有效的 Bearer token，并把 claims 存入上下文。
func AuthMiddleware(verifier *token.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含有效的授权头", "data": nil})
			return
		}
		claims, err := verifier.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// OptionalAuth 在携带有效 token 时存入 claims；没有或无效时按访客处理。
// 聊天接口同时服务访客和已登录用户。
func OptionalAuth(verifier *token.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, ok := bearerToken(c); ok {
			if claims, err := verifier.VerifyToken(tokenString); err == nil {
				c.Set(ClaimsKey, claims)
			} else {
				log.Warnf("忽略无效 token, 按访客处理: %v", err)
			}
		}
		c.Next()
	}
}

// ClaimsFrom 返回 AuthMiddleware/OptionalAuth 存入的 claims，没有时返回 nil。
func ClaimsFrom(c *gin.Context) *token.CustomClaims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*token.CustomClaims)
	return claims
}
