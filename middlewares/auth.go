package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shop-service/utils"
)

const (
	CtxUserID = "userID"
	CtxRole   = "role"
)

// AuthMiddleware 必须携带 Bearer token，没有返回 401，无效返回 403
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "error": "authorization token required"})
			return
		}
		claims, err := utils.ParseToken(secret, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "invalid or expired token"})
			return
		}
		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxRole, claims.Role)
		c.Next()
	}
}

// OptionalAuth 购物车等游客也能访问的接口，token 有效时识别用户
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := bearerToken(c); raw != "" {
			if claims, err := utils.ParseToken(secret, raw); err == nil {
				c.Set(CtxUserID, claims.UserID)
				c.Set(CtxRole, claims.Role)
			}
		}
		c.Next()
	}
}

// AdminOnly 放在 AuthMiddleware 之后
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxRole) != utils.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "admin only"})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
