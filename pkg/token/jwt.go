// Package token 校验外部身份提供方签发的 JSON Web Token (HS256)。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrEmptySecret 表示未配置签名密钥，此时拒绝签发与校验任何 token。
var ErrEmptySecret = errors.New("jwt secret is empty")

// Verifier 负责校验 token 并取出身份信息。
type Verifier struct {
	secretKey []byte
}

// CustomClaims 是身份提供方放入 token 的字段。
// 用户 ID 使用标准的 sub 声明。
type CustomClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID 返回 sub 声明。
func (c *CustomClaims) UserID() string {
	return c.Subject
}

// NewVerifier 创建一个新的 Verifier 实例。secret 与身份提供方的 JWT secret 一致。
func NewVerifier(secret string) *Verifier {
	return &Verifier{secretKey: []byte(secret)}
}

// Sign 为给定身份签发一个 token，用于本地调试与测试。
func (v *Verifier) Sign(userID, email, role string, ttl time.Duration) (string, error) {
	if len(v.secretKey) == 0 {
		return "", ErrEmptySecret
	}
	now := time.Now()
	claims := CustomClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secretKey)
}

// VerifyToken 验证给定的 token 字符串。
// 签名不匹配、已过期或缺少 sub 时返回错误。
func (v *Verifier) VerifyToken(tokenString string) (*CustomClaims, error) {
	if len(v.secretKey) == 0 {
		return nil, ErrEmptySecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
