package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"mailforge/backend/internal/domain"
)

// 键前缀
const (
	blacklistPrefix = "mailforge:jwt:blacklist:"
	newMailChannel  = "mailforge:newmail:"
)

// Client 封装 Redis 客户端，提供 JWT 黑名单与新邮件通知能力。
type Client struct {
	rdb *goredis.Client
}

// Options Redis 连接参数。
type Options struct {
	Address  string
	Password string
	DB       int
}

// New 创建新的 Redis 客户端并验证连通性。
func New(opts Options) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping 测试 Redis 连接。
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭 Redis 连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AddToBlacklist 将已注销的 JWT（按 jti）加入黑名单，到期自动清除。
func (c *Client) AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // 已过期的令牌无需拉黑
	}
	return c.rdb.Set(ctx, blacklistPrefix+jti, "1", ttl).Err()
}

// IsBlacklisted 检查 JWT 是否在黑名单中。
func (c *Client) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := c.rdb.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PublishNewMail 发布新邮件通知，供其他实例的推送端订阅。
func (c *Client) PublishNewMail(ctx context.Context, mailboxID string, message *domain.Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, newMailChannel+mailboxID, payload).Err()
}

// SubscribeNewMail 订阅指定邮箱的新邮件通知。
func (c *Client) SubscribeNewMail(ctx context.Context, mailboxID string) *goredis.PubSub {
	return c.rdb.Subscribe(ctx, newMailChannel+mailboxID)
}
