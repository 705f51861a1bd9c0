package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailforge/backend/internal/auth/jwt"
	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/storage"
	"mailforge/backend/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	tokens := jwt.NewManager("test-secret-key-32-chars-long-minimum!!", "mailforge", 15*time.Minute, 7*24*time.Hour)
	return NewService(store, tokens), store
}

func TestCreateUser(t *testing.T) {
	t.Run("创建成功", func(t *testing.T) {
		svc, _ := newTestService(t)

		user, err := svc.CreateUser(CreateUserInput{
			Email:    "Admin@Example.com",
			Username: "Admin",
			Password: "strong-password-1",
		})

		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "admin@example.com", user.Email) // 邮箱转小写
		assert.Equal(t, "admin", user.Username)
		assert.Equal(t, domain.RoleAdmin, user.Role) // 默认角色
		assert.True(t, user.IsActive)
		assert.NotEqual(t, "strong-password-1", user.PasswordHash)
	})

	t.Run("无效邮箱失败", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.CreateUser(CreateUserInput{
			Email:    "not-an-email",
			Username: "admin",
			Password: "strong-password-1",
		})

		assert.ErrorIs(t, err, ErrInvalidEmail)
	})

	t.Run("密码太短失败", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.CreateUser(CreateUserInput{
			Email:    "admin@example.com",
			Username: "admin",
			Password: "short",
		})

		assert.ErrorIs(t, err, domain.ErrPasswordTooShort)
	})

	t.Run("邮箱重复失败", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.CreateUser(CreateUserInput{
			Email:    "admin@example.com",
			Username: "admin",
			Password: "strong-password-1",
		})
		require.NoError(t, err)

		_, err = svc.CreateUser(CreateUserInput{
			Email:    "admin@example.com",
			Username: "other",
			Password: "strong-password-1",
		})

		assert.ErrorIs(t, err, storage.ErrEmailExists)
	})
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateUser(CreateUserInput{
		Email:    "admin@example.com",
		Username: "admin",
		Password: "strong-password-1",
	})
	require.NoError(t, err)

	t.Run("邮箱登录成功", func(t *testing.T) {
		result, err := svc.Login(LoginInput{
			Identifier: "admin@example.com",
			Password:   "strong-password-1",
		})

		require.NoError(t, err)
		assert.NotEmpty(t, result.AccessToken)
		assert.NotEmpty(t, result.RefreshToken)
		assert.Equal(t, "Bearer", result.TokenType)
		assert.Equal(t, int64(900), result.ExpiresIn)

		// 令牌能通过验证并携带角色
		claims, err := svc.ValidateToken(result.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, result.User.ID, claims.UserID)
		assert.Equal(t, "admin", claims.Role)
		assert.NotEmpty(t, claims.ID) // JTI 供黑名单使用
	})

	t.Run("用户名登录成功", func(t *testing.T) {
		result, err := svc.Login(LoginInput{
			Identifier: "admin",
			Password:   "strong-password-1",
		})

		require.NoError(t, err)
		assert.Equal(t, "admin@example.com", result.User.Email)
	})

	t.Run("密码错误失败", func(t *testing.T) {
		_, err := svc.Login(LoginInput{
			Identifier: "admin@example.com",
			Password:   "wrong-password",
		})

		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("用户不存在失败", func(t *testing.T) {
		_, err := svc.Login(LoginInput{
			Identifier: "nobody@example.com",
			Password:   "strong-password-1",
		})

		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestRefreshToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateUser(CreateUserInput{
		Email:    "admin@example.com",
		Username: "admin",
		Password: "strong-password-1",
	})
	require.NoError(t, err)

	result, err := svc.Login(LoginInput{Identifier: "admin", Password: "strong-password-1"})
	require.NoError(t, err)

	t.Run("刷新成功", func(t *testing.T) {
		accessToken, err := svc.RefreshToken(result.RefreshToken)

		require.NoError(t, err)
		claims, err := svc.ValidateToken(accessToken)
		require.NoError(t, err)
		assert.Equal(t, result.User.ID, claims.UserID)
	})

	t.Run("伪造令牌失败", func(t *testing.T) {
		_, err := svc.RefreshToken("not-a-token")

		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("my-password")

	require.NoError(t, err)
	assert.True(t, CheckPassword("my-password", hash))
	assert.False(t, CheckPassword("other-password", hash))
}
