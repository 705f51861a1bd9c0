package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailforge/backend/internal/auth/jwt"
	"mailforge/backend/internal/domain"
)

// TokenBlacklist 已吊销令牌查询接口（按 JTI）。
type TokenBlacklist interface {
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// JWTAuth JWT认证中间件
type JWTAuth struct {
	tokens    *jwt.Manager
	blacklist TokenBlacklist // 可为 nil（未启用 Redis 时）
	log       *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(tokens *jwt.Manager, blacklist TokenBlacklist, log *zap.Logger) *JWTAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTAuth{
		tokens:    tokens,
		blacklist: blacklist,
		log:       log,
	}
}

// RequireAuth 要求JWT认证
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			c.Abort()
			return
		}

		claims, err := ja.tokens.ValidateToken(token)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			c.Abort()
			return
		}

		if ja.blacklist != nil && claims.ID != "" {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			revoked, err := ja.blacklist.IsBlacklisted(ctx, claims.ID)
			cancel()
			if err != nil {
				// 黑名单不可用时放行令牌，只记录日志
				ja.log.Warn("blacklist check failed", zap.Error(err))
			} else if revoked {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error": "token has been revoked",
				})
				c.Abort()
				return
			}
		}

		// 将用户信息存储到上下文
		c.Set("userID", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// RequireRole 要求指定角色之一（需先经过 RequireAuth）
func (ja *JWTAuth) RequireRole(roles ...domain.UserRole) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[string(r)] = true
	}

	return func(c *gin.Context) {
		roleVal, exists := c.Get("role")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		role, ok := roleVal.(string)
		if !ok || !allowed[role] {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractToken 从请求中提取JWT token
func (ja *JWTAuth) extractToken(c *gin.Context) string {
	// 1. 从 Authorization header 提取
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	// 2. 从 cookie 提取
	token, err := c.Cookie("access_token")
	if err == nil && token != "" {
		return token
	}

	return ""
}
