package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"mailforge/backend/internal/storage"
	"mailforge/backend/internal/storage/redis"
)

// Checker 服务健康检查器
type Checker struct {
	health healthcheck.Handler
	store  storage.Store
	redis  *redis.Client // 未启用 Redis 时为 nil
	logger *zap.Logger
}

// NewChecker 创建健康检查器
func NewChecker(store storage.Store, redisClient *redis.Client, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Checker{
		health: healthcheck.NewHandler(),
		store:  store,
		redis:  redisClient,
		logger: logger,
	}
	c.addChecks()
	return c
}

func (c *Checker) addChecks() {
	c.health.AddLivenessCheck("storage", func() error {
		return c.store.Health()
	})

	if c.redis != nil {
		c.health.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return c.redis.Ping(ctx)
		})
	}
}

// Handler 返回健康检查 HTTP 处理器（/live 和 /ready）
func (c *Checker) Handler() http.Handler {
	return c.health
}

// Snapshot 执行一轮检查并返回各组件状态
func (c *Checker) Snapshot() map[string]string {
	results := make(map[string]string)

	if err := c.store.Health(); err != nil {
		results["storage"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["storage"] = "OK"
	}

	if c.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.redis.Ping(ctx); err != nil {
			results["redis"] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results["redis"] = "OK"
		}
	} else {
		results["redis"] = "NOT_CONFIGURED"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)
	return results
}
