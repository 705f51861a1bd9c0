package httptransport

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailforge/backend/internal/auth"
	jwtpkg "mailforge/backend/internal/auth/jwt"
	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/storage"
)

// TokenRevoker 令牌吊销接口（按 JTI 写入黑名单）。
type TokenRevoker interface {
	AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error
}

// AuthHandler 处理认证相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service
	revoker     TokenRevoker // 可为 nil（未启用 Redis 时登出只在客户端生效）
	log         *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *auth.Service, revoker TokenRevoker, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{
		authService: authService,
		revoker:     revoker,
		log:         log,
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
	IsActive bool   `json:"isActive"`
}

func newUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     string(u.Role),
		IsActive: u.IsActive,
	}
}

// Login 处理管理员登录请求
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.authService.Login(auth.LoginInput{
		Identifier: strings.TrimSpace(req.Username),
		Password:   req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			Unauthorized(c, MsgInvalidCredentials)
		case errors.Is(err, auth.ErrUserInactive):
			Forbidden(c, GetErrorMessage(auth.ErrUserInactive))
		default:
			h.log.Error("failed to login", zap.Error(err))
			InternalError(c, "登录失败，请稍后重试")
		}
		return
	}

	h.log.Info("admin logged in",
		zap.String("user_id", result.User.ID),
		zap.String("email", result.User.Email),
	)

	Success(c, gin.H{
		"user":         newUserResponse(result.User),
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
		"tokenType":    result.TokenType,
		"expiresIn":    result.ExpiresIn,
	})
}

// Refresh 刷新访问令牌
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	accessToken, err := h.authService.RefreshToken(req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, jwtpkg.ErrExpiredToken):
			Unauthorized(c, MsgTokenExpired)
		case errors.Is(err, jwtpkg.ErrInvalidToken):
			Unauthorized(c, "刷新令牌无效")
		default:
			h.log.Error("failed to refresh token", zap.Error(err))
			InternalError(c, "刷新令牌失败")
		}
		return
	}

	Success(c, gin.H{
		"accessToken": accessToken,
	})
}

// Logout 登出：将当前访问令牌按 JTI 加入黑名单
func (h *AuthHandler) Logout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		Unauthorized(c, MsgTokenInvalid)
		return
	}

	if h.revoker != nil && claims.ID != "" && claims.ExpiresAt != nil {
		ttl := time.Until(claims.ExpiresAt.Time)
		if ttl > 0 {
			if err := h.revoker.AddToBlacklist(c.Request.Context(), claims.ID, ttl); err != nil {
				h.log.Error("failed to blacklist token", zap.Error(err))
				InternalError(c, "登出失败")
				return
			}
		}
	}

	Success(c, gin.H{"message": "已登出"})
}

// Me 获取当前用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			NotFound(c, MsgUserNotFound)
			return
		}
		h.log.Error("failed to get user", zap.Error(err))
		InternalError(c, MsgUserGetFailed)
		return
	}

	Success(c, newUserResponse(user))
}

// bearerToken 从 Authorization 头提取 Bearer 令牌
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}
