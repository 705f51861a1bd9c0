package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// SMTPConfig 定义入站 SMTP 网关的配置
type SMTPConfig struct {
	BindAddr string // SMTP 服务监听地址，格式 "host:port"，默认 ":25"
	Domain   string // 服务器域名，用于 HELO/EHLO 响应

	AuthRequired        bool // 是否强制要求 AUTH 后才能投递
	RequireSenderMatch  bool // MAIL FROM 必须等于已认证身份（严格部署）
	EnforceVerifiedRcpt bool // RCPT TO 时要求收件域名已验证（默认开启）

	MaxMessageBytes int64 // DATA 阶段的消息体积上限，默认 25 MiB
	MaxRecipients   int   // 单会话最大收件人数量

	MaxConnsPerIP int // 单个客户端 IP 的最大并发连接数
	ConnRatePerIP int // 单个客户端 IP 每秒允许的新建连接数
}

// DNSConfig 定义 DNS 记录生成与验证的配置
type DNSConfig struct {
	ServerIP      string        // 平台收信服务器的公网 IPv4 地址
	MailHost      string        // MX 记录指向的收信主机名
	DKIMSelector  string        // DKIM selector 标签，默认 "dkim"
	DMARCPolicy   string        // DMARC 策略: "quarantine" 或 "none"
	RecordTTL     int           // 生成记录的 TTL（秒），默认 3600
	LookupTimeout time.Duration // 单次 DNS 解析的超时时间
}

// ProviderConfig 定义第三方域名认证服务商的接入配置
type ProviderConfig struct {
	Enabled bool   // 是否启用第三方校验
	BaseURL string // 服务商 API 地址
	APIKey  string // 服务商 API 密钥
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// DatabaseConfig 定义数据库连接配置（支持 PostgreSQL 和 MySQL）
type DatabaseConfig struct {
	Driver          string        // 数据库类型: "postgres" 或 "mysql"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 服务配置
type RedisConfig struct {
	Enabled  bool   // 是否启用 Redis（黑名单与新邮件通知）
	Address  string // Redis 服务地址，格式 "host:port"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// JWTConfig 定义 JWT 认证相关配置
type JWTConfig struct {
	Secret        string        // JWT 签名密钥，必须至少 32 字符
	Issuer        string        // JWT 签发者标识，默认 "mailforge"
	AccessExpiry  time.Duration // 访问令牌有效期，默认 15 分钟
	RefreshExpiry time.Duration // 刷新令牌有效期，默认 7 天
}

// SecretsConfig 定义凭证静态加密配置
type SecretsConfig struct {
	EncryptionKey string // 邮箱 SMTP 口令加密密钥
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置。
//
// 配置为不可变值：启动时加载一次，按构造参数注入各组件，
// 不提供运行期修改入口。
type Config struct {
	Server   ServerConfig
	SMTP     SMTPConfig
	DNS      DNSConfig
	Provider ProviderConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Secrets  SecretsConfig
}

// DefaultMaxMessageBytes DATA 阶段默认消息体积上限（25 MiB）。
const DefaultMaxMessageBytes = 25 << 20

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: MAILFORGE_
// 例如: MAILFORGE_SMTP_BIND_ADDR, MAILFORGE_DNS_SERVER_IP
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("mailforge")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 9000)
	viper.SetDefault("smtp.bind_addr", ":25")
	viper.SetDefault("smtp.domain", "mail.mailforge.dev")
	viper.SetDefault("smtp.auth_required", false)
	viper.SetDefault("smtp.require_sender_match", false)
	viper.SetDefault("smtp.enforce_verified_rcpt", true)
	viper.SetDefault("smtp.max_message_bytes", DefaultMaxMessageBytes)
	viper.SetDefault("smtp.max_recipients", 50)
	viper.SetDefault("smtp.max_conns_per_ip", 10)
	viper.SetDefault("smtp.conn_rate_per_ip", 5)
	viper.SetDefault("dns.server_ip", "127.0.0.1")
	viper.SetDefault("dns.mail_host", "mail.mailforge.dev")
	viper.SetDefault("dns.dkim_selector", "dkim")
	viper.SetDefault("dns.dmarc_policy", "quarantine")
	viper.SetDefault("dns.record_ttl", 3600)
	viper.SetDefault("dns.lookup_timeout", "5s")
	viper.SetDefault("provider.enabled", false)
	viper.SetDefault("provider.base_url", "https://api.sendgrid.com/v3")
	viper.SetDefault("provider.api_key", "")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.driver", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "mailforge")
	viper.SetDefault("jwt.access_expiry", "15m")
	viper.SetDefault("jwt.refresh_expiry", "168h")
	viper.SetDefault("secrets.encryption_key", "")

	lookupTimeout, err := time.ParseDuration(viper.GetString("dns.lookup_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid dns.lookup_timeout: %w", err)
	}

	dmarcPolicy := strings.ToLower(viper.GetString("dns.dmarc_policy"))
	if dmarcPolicy != "quarantine" && dmarcPolicy != "none" {
		return nil, fmt.Errorf("invalid dns.dmarc_policy: %q (allowed: quarantine, none)", dmarcPolicy)
	}

	maxMessageBytes := viper.GetInt64("smtp.max_message_bytes")
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	accessExpiry, err := time.ParseDuration(viper.GetString("jwt.access_expiry"))
	if err != nil {
		accessExpiry = 15 * time.Minute
	}

	refreshExpiry, err := time.ParseDuration(viper.GetString("jwt.refresh_expiry"))
	if err != nil {
		refreshExpiry = 7 * 24 * time.Hour
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set MAILFORGE_JWT_SECRET environment variable")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	if viper.GetBool("provider.enabled") && viper.GetString("provider.api_key") == "" {
		return nil, fmt.Errorf("provider.api_key is required when provider.enabled is true")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		SMTP: SMTPConfig{
			BindAddr:            viper.GetString("smtp.bind_addr"),
			Domain:              viper.GetString("smtp.domain"),
			AuthRequired:        viper.GetBool("smtp.auth_required"),
			RequireSenderMatch:  viper.GetBool("smtp.require_sender_match"),
			EnforceVerifiedRcpt: viper.GetBool("smtp.enforce_verified_rcpt"),
			MaxMessageBytes:     maxMessageBytes,
			MaxRecipients:       viper.GetInt("smtp.max_recipients"),
			MaxConnsPerIP:       viper.GetInt("smtp.max_conns_per_ip"),
			ConnRatePerIP:       viper.GetInt("smtp.conn_rate_per_ip"),
		},
		DNS: DNSConfig{
			ServerIP:      viper.GetString("dns.server_ip"),
			MailHost:      strings.ToLower(viper.GetString("dns.mail_host")),
			DKIMSelector:  viper.GetString("dns.dkim_selector"),
			DMARCPolicy:   dmarcPolicy,
			RecordTTL:     viper.GetInt("dns.record_ttl"),
			LookupTimeout: lookupTimeout,
		},
		Provider: ProviderConfig{
			Enabled: viper.GetBool("provider.enabled"),
			BaseURL: viper.GetString("provider.base_url"),
			APIKey:  viper.GetString("provider.api_key"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Driver:          viper.GetString("database.driver"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:        jwtSecret,
			Issuer:        viper.GetString("jwt.issuer"),
			AccessExpiry:  accessExpiry,
			RefreshExpiry: refreshExpiry,
		},
		Secrets: SecretsConfig{
			EncryptionKey: viper.GetString("secrets.encryption_key"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片。
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（从 backend/ 子目录运行时）
//
// 如果文件不存在，静默失败（.env 是可选的）；
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
