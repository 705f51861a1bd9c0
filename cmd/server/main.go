package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailforge/backend/internal/auth"
	jwtpkg "mailforge/backend/internal/auth/jwt"
	"mailforge/backend/internal/config"
	"mailforge/backend/internal/dnsx"
	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/health"
	"mailforge/backend/internal/logger"
	"mailforge/backend/internal/monitoring"
	"mailforge/backend/internal/provider"
	"mailforge/backend/internal/secrets"
	"mailforge/backend/internal/service"
	"mailforge/backend/internal/smtp"
	"mailforge/backend/internal/storage"
	"mailforge/backend/internal/storage/memory"
	redisclient "mailforge/backend/internal/storage/redis"
	sqlstore "mailforge/backend/internal/storage/sql"
	httptransport "mailforge/backend/internal/transport/http"
	"mailforge/backend/internal/websocket"
)

// main 启动同时包含管理 HTTP API 与入站 SMTP 网关的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		MaxSizeMB:   100,
		MaxBackups:  3,
		MaxAgeDays:  28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting mailforge server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Driver != "" && cfg.Database.DSN != "" {
		sqlStore, err := sqlstore.NewStore(ctx, sqlstore.Options{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		store = sqlStore
		log.Info("using database storage", zap.String("driver", cfg.Database.Driver))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 初始化 Redis（JWT 黑名单 + 新邮件通知），未启用时相关能力自动降级
	var redisClient *redisclient.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisclient.New(redisclient.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			panic(fmt.Sprintf("failed to connect to redis: %v", err))
		}
		defer redisClient.Close()
		log.Info("redis connected", zap.String("address", cfg.Redis.Address))
	}

	// 初始化监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewChecker(store, redisClient, log)

	// 可逆加密的 SMTP 口令存储
	var box *secrets.Box
	if cfg.Secrets.EncryptionKey != "" {
		box, err = secrets.NewBox(cfg.Secrets.EncryptionKey)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize secrets box: %v", err))
		}
	} else {
		log.Warn("secrets.encryption_key not set, smtp relay passwords will not be stored")
	}

	// 第三方域名校验服务商（可选）
	var domainProvider service.DomainProvider
	if cfg.Provider.Enabled {
		domainProvider = provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey)
		log.Info("domain provider enabled", zap.String("base_url", cfg.Provider.BaseURL))
	}

	// 初始化服务层
	dnsClient := dnsx.NewClient(nil, cfg.DNS.LookupTimeout)
	domainService := service.NewDomainTrustService(store, dnsClient, domainProvider, cfg.DNS, log)
	mailboxService := service.NewMailboxService(store, box, log)
	messageService := service.NewMessageService(store, log)

	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authService := auth.NewService(store, jwtManager)

	// 创建 WebSocket Hub
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, store, log)

	// SMTP 网关的新邮件通知：WebSocket 推送 + Redis 发布
	notifier := &mailNotifier{hub: wsHub, redis: redisClient, log: log}

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	deps := httptransport.RouterDependencies{
		Config:         cfg,
		AuthService:    authService,
		DomainService:  domainService,
		MailboxService: mailboxService,
		MessageService: messageService,
		JWTManager:     jwtManager,
		WebSocketHub:   wsHub,
		Metrics:        metrics,
		HealthChecker:  healthChecker,
		Logger:         log,
	}
	if redisClient != nil {
		deps.Blacklist = redisClient
		deps.Revoker = redisClient
	}
	router := httptransport.NewRouter(deps)

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 创建 SMTP 服务器
	smtpBackend := smtp.NewBackend(mailboxService, messageService, notifier, metrics, cfg.SMTP, log)
	smtpServer := smtp.NewServer(smtpBackend)

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpServer.ListenAndServe(); err != nil {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 定时复核已验证域名 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()

		log.Info("starting domain reverification task", zap.Duration("interval", 6*time.Hour))

		for {
			select {
			case <-groupCtx.Done():
				log.Info("domain reverification task stopped")
				return nil
			case <-ticker.C:
				if err := domainService.ReverifyVerified(groupCtx); err != nil {
					log.Error("domain reverification failed", zap.Error(err))
				}
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := smtpServer.Close(); err != nil {
			log.Warn("SMTP server close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// mailNotifier 将新邮件事件同时推送到 WebSocket 客户端和 Redis 频道。
type mailNotifier struct {
	hub   *websocket.Hub
	redis *redisclient.Client
	log   *zap.Logger
}

func (n *mailNotifier) NotifyNewMail(mailboxID string, message *domain.Message) {
	n.hub.NotifyNewMail(mailboxID, message)

	if n.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := n.redis.PublishNewMail(ctx, mailboxID, message); err != nil {
			n.log.Warn("failed to publish new mail event",
				zap.String("mailbox_id", mailboxID),
				zap.Error(err),
			)
		}
	}
}
