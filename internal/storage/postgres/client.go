package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Client 封装 PostgreSQL 连接池（pgx）。
//
// SQL 存储层通过 DB() 拿到 database/sql 句柄再交给 GORM，
// 连接池参数统一在这里配置。
type Client struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

// Options 连接池参数。
type Options struct {
	DSN             string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
}

// New 创建新的 PostgreSQL 客户端并验证连通性。
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	poolConfig, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.ConnMaxLifetime
	}
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{
		pool: pool,
		db:   stdlib.OpenDBFromPool(pool),
	}, nil
}

// Pool 返回底层的 pgx 连接池。
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// DB 返回基于连接池的 database/sql 句柄。
func (c *Client) DB() *sql.DB {
	return c.db
}

// Ping 测试数据库连接。
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Stats 返回连接池统计信息。
func (c *Client) Stats() *pgxpool.Stat {
	return c.pool.Stat()
}

// Close 关闭数据库连接池。
func (c *Client) Close() error {
	if err := c.db.Close(); err != nil {
		return err
	}
	c.pool.Close()
	return nil
}
