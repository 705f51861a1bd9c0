package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailforge/backend/internal/auth"
	jwtpkg "mailforge/backend/internal/auth/jwt"
	"mailforge/backend/internal/config"
	"mailforge/backend/internal/health"
	"mailforge/backend/internal/middleware"
	"mailforge/backend/internal/monitoring"
	"mailforge/backend/internal/service"
	"mailforge/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	AuthService    *auth.Service
	DomainService  *service.DomainTrustService
	MailboxService *service.MailboxService
	MessageService *service.MessageService
	JWTManager     *jwtpkg.Manager
	WebSocketHub   *websocket.Hub // 可为 nil
	Metrics        *monitoring.Metrics
	HealthChecker  *health.Checker

	// Blacklist / Revoker 由 Redis 客户端提供，未启用时为 nil
	Blacklist middleware.TokenBlacklist
	Revoker   TokenRevoker

	Logger *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	mon := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
	router.Use(mon.PanicRecovery())
	router.Use(mon.HTTPMetrics())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())

	// 管理 API 的请求体远小于邮件本体，1MB 足够
	router.Use(middleware.RequestSizeLimit(1 << 20))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.Revoker, deps.Logger)
	domainHandler := NewDomainHandler(deps.DomainService, deps.Metrics, deps.Logger)
	mailboxHandler := NewMailboxHandler(deps.MailboxService, deps.Logger)
	messageHandler := NewMessageHandler(deps.MailboxService, deps.MessageService, deps.Logger)

	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Blacklist, deps.Logger)

	// 运维端点
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	if deps.HealthChecker != nil {
		router.GET("/live", gin.WrapH(deps.HealthChecker.Handler()))
		router.GET("/ready", gin.WrapH(deps.HealthChecker.Handler()))
		router.GET("/health", func(c *gin.Context) {
			c.JSON(200, deps.HealthChecker.Snapshot())
		})
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh", authHandler.Refresh)
			authRoutes.POST("/logout", authHandler.Logout)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		// ========== Domain Routes ==========
		domainRoutes := v1.Group("/domains")
		domainRoutes.Use(jwtAuth.RequireAuth())
		{
			domainRoutes.POST("", domainHandler.AddDomain)
			domainRoutes.GET("", domainHandler.ListDomains)
			domainRoutes.GET("/:id", domainHandler.GetDomain)
			domainRoutes.GET("/:id/records", domainHandler.ListRecords)
			domainRoutes.POST("/:id/verify", domainHandler.VerifyDomain)
		}

		// ========== Mailbox Routes ==========
		mailboxRoutes := v1.Group("/mailboxes")
		mailboxRoutes.Use(jwtAuth.RequireAuth())
		{
			mailboxRoutes.POST("", mailboxHandler.CreateMailbox)
			mailboxRoutes.GET("", mailboxHandler.ListMailboxes)
			mailboxRoutes.DELETE("/:id", mailboxHandler.DeleteMailbox)

			// 邮件查询端点
			mailboxRoutes.GET("/:id/messages", messageHandler.ListMessages)
			mailboxRoutes.GET("/:id/messages/:messageId", messageHandler.GetMessage)
			mailboxRoutes.POST("/:id/messages/:messageId/read", messageHandler.MarkMessageRead)
		}

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	return router
}
