package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"mailforge/backend/internal/auth/jwt"
	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/storage"
)

var (
	// ErrInvalidEmail 无效的邮箱格式
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserInactive 用户已被禁用
	ErrUserInactive = errors.New("user is inactive")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Service 管理员认证服务
//
// 平台没有自助注册入口，管理员账户由 create-admin 命令或
// 已有管理员通过 CreateUser 创建。
type Service struct {
	users  storage.UserRepository
	tokens *jwt.Manager
}

// NewService 创建认证服务
func NewService(users storage.UserRepository, tokens *jwt.Manager) *Service {
	return &Service{users: users, tokens: tokens}
}

// CreateUserInput 创建账户的输入
type CreateUserInput struct {
	Email    string
	Username string
	Password string
	Role     domain.UserRole
}

// LoginInput 登录输入
type LoginInput struct {
	Identifier string // 用户名或邮箱
	Password   string
}

// LoginResult 登录成功的响应
type LoginResult struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	TokenType    string       `json:"tokenType"`
	ExpiresIn    int64        `json:"expiresIn"`
}

// CreateUser 创建管理员账户
func (s *Service) CreateUser(input CreateUserInput) (*domain.User, error) {
	if !emailRegex.MatchString(input.Email) {
		return nil, ErrInvalidEmail
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = domain.RoleAdmin
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(input.Email),
		Username:     strings.ToLower(input.Username),
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login 管理员登录
func (s *Service) Login(input LoginInput) (*LoginResult, error) {
	identifier := strings.ToLower(input.Identifier)

	// 优先按邮箱查找，失败再按用户名查找
	user, err := s.users.GetUserByEmail(identifier)
	if err != nil {
		user, err = s.users.GetUserByUsername(identifier)
		if err != nil {
			return nil, ErrInvalidCredentials
		}
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	// 更新最后登录时间
	_ = s.users.UpdateLastLogin(user.ID)

	pair, err := s.tokens.GenerateTokenPair(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return &LoginResult{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// RefreshToken 用刷新令牌换取新的访问令牌
func (s *Service) RefreshToken(refreshToken string) (string, error) {
	return s.tokens.RefreshAccessToken(refreshToken)
}

// GetUserByID 根据 ID 获取用户
func (s *Service) GetUserByID(userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

// ValidateToken 验证访问令牌
func (s *Service) ValidateToken(token string) (*jwt.Claims, error) {
	return s.tokens.ValidateToken(token)
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
