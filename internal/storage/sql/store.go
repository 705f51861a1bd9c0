package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/storage"
	"mailforge/backend/internal/storage/postgres"
)

// Store SQL 数据库存储实现（支持 PostgreSQL 和 MySQL 5.7+）。
//
// PostgreSQL 走 pgx 连接池；MySQL 走 database/sql 标准连接池。
// GORM 负责迁移与查询，TranslateError 打开后唯一键冲突
// 统一转换为 storage 层的冲突错误。
type Store struct {
	db         *gorm.DB
	sqlDB      *sql.DB
	pgClient   *postgres.Client // 仅 postgres 模式下非 nil
	driverName string           // "postgres" or "mysql"
}

// Options 数据库连接参数。
type Options struct {
	Driver          string // "postgres" 或 "mysql"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore 创建 SQL 数据库存储并执行自动迁移。
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	store := &Store{driverName: opts.Driver}

	switch opts.Driver {
	case "postgres":
		client, err := postgres.New(ctx, postgres.Options{
			DSN:             opts.DSN,
			MaxConns:        opts.MaxOpenConns,
			MinConns:        opts.MaxIdleConns,
			ConnMaxLifetime: opts.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{
			Conn: client.DB(),
		}), gormConfig)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to initialize GORM: %w", err)
		}
		store.pgClient = client
		store.sqlDB = client.DB()
		store.db = gormDB

	case "mysql":
		db, err := sql.Open("mysql", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxIdleConns)
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		gormDB, err := gorm.Open(gormmysql.New(gormmysql.Config{
			Conn: db,
		}), gormConfig)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize GORM: %w", err)
		}
		store.sqlDB = db
		store.db = gormDB

	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql)", opts.Driver)
	}

	if err := store.migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 执行数据库迁移。
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.Domain{},
		&domain.DNSRecord{},
		&domain.Mailbox{},
		&domain.Message{},
		&domain.Attachment{},
	)
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.pgClient != nil {
		return s.pgClient.Close()
	}
	if s.sqlDB != nil {
		return s.sqlDB.Close()
	}
	return nil
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	if s.sqlDB == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.sqlDB.Ping()
}

// ========== Domain Repository ==========

// CreateDomainWithRecords 在一个事务中写入域名及其全部记录。
func (s *Store) CreateDomainWithRecords(d *domain.Domain, records []*domain.DNSRecord) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(d).Error; err != nil {
			return err
		}
		for _, r := range records {
			if err := tx.Create(r).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrDomainExists
	}
	return err
}

// GetDomain 根据 ID 获取域名。
func (s *Store) GetDomain(id string) (*domain.Domain, error) {
	var d domain.Domain
	if err := s.db.First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrDomainNotFound
		}
		return nil, err
	}
	return &d, nil
}

// GetDomainByNameAndAdmin 根据域名与所有者获取域名。
func (s *Store) GetDomainByNameAndAdmin(name, adminID string) (*domain.Domain, error) {
	var d domain.Domain
	err := s.db.First(&d, "name = ? AND admin_id = ?", strings.ToLower(name), adminID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrDomainNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ListDomainsByAdminID 获取管理员名下的全部域名。
func (s *Store) ListDomainsByAdminID(adminID string) ([]*domain.Domain, error) {
	var out []*domain.Domain
	if err := s.db.Where("admin_id = ?", adminID).Order("name").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListVerifiedDomains 获取全部已验证域名。
func (s *Store) ListVerifiedDomains() ([]*domain.Domain, error) {
	var out []*domain.Domain
	if err := s.db.Where("verified = ?", true).Order("name").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SaveDomain 更新域名。
func (s *Store) SaveDomain(d *domain.Domain) error {
	res := s.db.Model(&domain.Domain{}).Where("id = ?", d.ID).Updates(map[string]interface{}{
		"verified":    d.Verified,
		"verified_at": d.VerifiedAt,
		"provider_id": d.ProviderID,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrDomainNotFound
	}
	return nil
}

// ListDNSRecords 返回域名下的记录，typeFilter 为空表示全部。
func (s *Store) ListDNSRecords(domainID string, typeFilter domain.RecordType) ([]*domain.DNSRecord, error) {
	q := s.db.Where("domain_id = ?", domainID)
	if typeFilter != "" {
		q = q.Where("type = ?", typeFilter)
	}
	var out []*domain.DNSRecord
	if err := q.Order("created_at").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SaveDNSRecord 更新单条 DNS 记录。
func (s *Store) SaveDNSRecord(r *domain.DNSRecord) error {
	res := s.db.Model(&domain.DNSRecord{}).Where("id = ?", r.ID).Updates(map[string]interface{}{
		"value":    r.Value,
		"verified": r.Verified,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrRecordNotFound
	}
	return nil
}

// ========== Mailbox Repository ==========

// SaveMailbox 保存邮箱信息。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	err := s.db.Save(mailbox).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrMailboxExists
	}
	return err
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	var mb domain.Mailbox
	if err := s.db.First(&mb, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, err
	}
	return &mb, nil
}

// GetMailboxByAddress 根据地址获取邮箱。
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	var mb domain.Mailbox
	err := s.db.First(&mb, "address = ?", strings.ToLower(address)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, err
	}
	return &mb, nil
}

// ListMailboxesByDomainID 获取域名下的全部邮箱。
func (s *Store) ListMailboxesByDomainID(domainID string) ([]*domain.Mailbox, error) {
	var out []*domain.Mailbox
	if err := s.db.Where("domain_id = ?", domainID).Order("address").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteMailbox 删除邮箱。
func (s *Store) DeleteMailbox(id string) error {
	res := s.db.Delete(&domain.Mailbox{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrMailboxNotFound
	}
	return nil
}

// ========== Message Repository ==========

// SaveMessage 保存入站邮件及其附件。
func (s *Store) SaveMessage(message *domain.Message) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		attachments := message.Attachments
		message.Attachments = nil
		if err := tx.Create(message).Error; err != nil {
			message.Attachments = attachments
			return err
		}
		for _, att := range attachments {
			att.MessageID = message.ID
			if err := tx.Create(att).Error; err != nil {
				message.Attachments = attachments
				return err
			}
		}
		message.Attachments = attachments
		return nil
	})
}

// ListMessages 按接收时间倒序返回邮箱内的全部邮件。
func (s *Store) ListMessages(mailboxID string) ([]domain.Message, error) {
	var out []domain.Message
	err := s.db.Where("mailbox_id = ?", mailboxID).Order("created_at DESC").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetMessage 获取指定邮件（含附件）。
func (s *Store) GetMessage(mailboxID, messageID string) (*domain.Message, error) {
	var m domain.Message
	err := s.db.Preload("Attachments").
		First(&m, "id = ? AND mailbox_id = ?", messageID, mailboxID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}

// MarkMessageRead 标记邮件为已读。
func (s *Store) MarkMessageRead(mailboxID, messageID string) error {
	res := s.db.Model(&domain.Message{}).
		Where("id = ? AND mailbox_id = ?", messageID, mailboxID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrMessageNotFound
	}
	return nil
}

// ========== User Repository ==========

// CreateUser 创建管理员账户。
func (s *Store) CreateUser(user *domain.User) error {
	err := s.db.Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrEmailExists
	}
	return err
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	var u domain.User
	if err := s.db.First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail 根据邮箱地址获取用户。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	var u domain.User
	err := s.db.First(&u, "email = ?", strings.ToLower(email)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername 根据用户名获取用户。
func (s *Store) GetUserByUsername(username string) (*domain.User, error) {
	var u domain.User
	err := s.db.First(&u, "username = ?", strings.ToLower(username)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpdateLastLogin 更新最近登录时间。
func (s *Store) UpdateLastLogin(userID string) error {
	now := time.Now().UTC()
	res := s.db.Model(&domain.User{}).Where("id = ?", userID).Update("last_login_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
