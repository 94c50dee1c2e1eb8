package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/pulse/pkg/response"
)

const ContextUserID = "user_id"

// JWTAuth 解析 Bearer token，把用户 id 放进请求上下文
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.Unauthorized(c, "invalid claims")
			c.Abort()
			return
		}
		sub, ok := claims["sub"].(float64)
		if !ok {
			response.Unauthorized(c, "invalid subject")
			c.Abort()
			return
		}
		c.Set(ContextUserID, int64(sub))
		c.Next()
	}
}

// UserID 取当前登录用户 id；仅在 JWTAuth 之后的 handler 里调用
func UserID(c *gin.Context) int64 {
	v, _ := c.Get(ContextUserID)
	id, _ := v.(int64)
	return id
}
