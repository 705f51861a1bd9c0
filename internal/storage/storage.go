package storage

import (
	"errors"

	"mailforge/backend/internal/domain"
)

// 存储层统一的未找到 / 冲突错误
var (
	ErrDomainNotFound  = errors.New("domain not found")
	ErrDomainExists    = errors.New("domain already exists")
	ErrRecordNotFound  = errors.New("dns record not found")
	ErrMailboxNotFound = errors.New("mailbox not found")
	ErrMailboxExists   = errors.New("mailbox already exists")
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailExists     = errors.New("email already exists")
	ErrUsernameExists  = errors.New("username already exists")
)

// DomainRepository 定义域名与 DNS 记录的存取操作。
type DomainRepository interface {
	// CreateDomainWithRecords 以事务方式写入域名及其全部记录；
	// 任何一条写入失败则整体回滚，不留下部分数据。
	CreateDomainWithRecords(d *domain.Domain, records []*domain.DNSRecord) error
	GetDomain(id string) (*domain.Domain, error)
	GetDomainByNameAndAdmin(name, adminID string) (*domain.Domain, error)
	ListDomainsByAdminID(adminID string) ([]*domain.Domain, error)
	// ListVerifiedDomains 返回全部已验证域名，供后台复核任务使用。
	ListVerifiedDomains() ([]*domain.Domain, error)
	SaveDomain(d *domain.Domain) error

	// ListDNSRecords 返回域名下的记录，typeFilter 为空表示全部。
	ListDNSRecords(domainID string, typeFilter domain.RecordType) ([]*domain.DNSRecord, error)
	SaveDNSRecord(r *domain.DNSRecord) error
}

// MailboxRepository 定义邮箱目录的存取操作。
type MailboxRepository interface {
	SaveMailbox(mailbox *domain.Mailbox) error
	GetMailbox(id string) (*domain.Mailbox, error)
	GetMailboxByAddress(address string) (*domain.Mailbox, error)
	ListMailboxesByDomainID(domainID string) ([]*domain.Mailbox, error)
	DeleteMailbox(id string) error
}

// MessageRepository 定义入站邮件的存取操作。
type MessageRepository interface {
	SaveMessage(message *domain.Message) error
	ListMessages(mailboxID string) ([]domain.Message, error)
	GetMessage(mailboxID, messageID string) (*domain.Message, error)
	MarkMessageRead(mailboxID, messageID string) error
}

// UserRepository 定义管理员账户的存取操作。
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	GetUserByEmail(email string) (*domain.User, error)
	GetUserByUsername(username string) (*domain.User, error)
	UpdateLastLogin(userID string) error
}

// Store 定义完整的存储接口。
type Store interface {
	DomainRepository
	MailboxRepository
	MessageRepository
	UserRepository

	// 工具方法
	Close() error
	Health() error
}
