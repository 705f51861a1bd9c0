package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailforge/backend/internal/auth"
	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/secrets"
	"mailforge/backend/internal/storage"
)

var (
	// ErrMailboxNotFound 邮箱不存在
	ErrMailboxNotFound = errors.New("mailbox not found")
	// ErrMailboxExists 邮箱地址已被占用
	ErrMailboxExists = errors.New("mailbox already exists")
	// ErrMailboxInactive 邮箱已停用
	ErrMailboxInactive = errors.New("mailbox is inactive")
	// ErrDomainNotVerified 所属域名尚未通过验证
	ErrDomainNotVerified = errors.New("domain not verified")
	// ErrBadCredentials 邮箱凭证校验失败
	ErrBadCredentials = errors.New("bad mailbox credentials")
)

// MailboxService 邮箱目录服务
//
// 面向管理端提供邮箱的创建与管理，面向 SMTP 网关提供
// 收件判定所需的地址查询和 AUTH 凭证校验。
type MailboxService struct {
	store  storage.Store
	box    *secrets.Box // 为 nil 时不保存可逆加密的 SMTP 口令
	logger *zap.Logger
}

// NewMailboxService 创建邮箱目录服务
func NewMailboxService(store storage.Store, box *secrets.Box, logger *zap.Logger) *MailboxService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailboxService{store: store, box: box, logger: logger}
}

// CreateMailboxInput 创建邮箱的输入
type CreateMailboxInput struct {
	AdminID   string
	DomainID  string
	LocalPart string
	Password  string
	Quota     int // MB，非正值使用默认配额
}

// Create 在已验证的托管域名下创建邮箱
//
// 要求域名属于该管理员且已通过验证；本地部分按地址语法校验；
// 口令同时保存 bcrypt 哈希（AUTH 校验用）和可逆加密副本
// （外发中继构造转发凭证用）。
func (s *MailboxService) Create(input CreateMailboxInput) (*domain.Mailbox, error) {
	d, err := s.store.GetDomain(input.DomainID)
	if err != nil {
		return nil, ErrDomainNotFound
	}
	if d.AdminID != input.AdminID {
		return nil, ErrNotDomainOwner
	}
	if !d.Verified {
		return nil, ErrDomainNotVerified
	}

	localPart := strings.ToLower(strings.TrimSpace(input.LocalPart))
	if err := domain.ValidateLocalPart(localPart); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	address := localPart + "@" + d.Name
	if _, err := s.store.GetMailboxByAddress(address); err == nil {
		return nil, ErrMailboxExists
	}

	passwordHash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var encrypted string
	if s.box != nil {
		encrypted, err = s.box.Encrypt(input.Password)
		if err != nil {
			return nil, fmt.Errorf("encrypt smtp password: %w", err)
		}
	}

	quota := input.Quota
	if quota <= 0 {
		quota = 5120
	}

	now := time.Now().UTC()
	mailbox := &domain.Mailbox{
		ID:              uuid.NewString(),
		Address:         address,
		LocalPart:       localPart,
		DomainID:        d.ID,
		PasswordHash:    passwordHash,
		SMTPPasswordEnc: encrypted,
		IsActive:        true,
		Quota:           quota,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.SaveMailbox(mailbox); err != nil {
		if errors.Is(err, storage.ErrMailboxExists) {
			return nil, ErrMailboxExists
		}
		return nil, err
	}

	s.logger.Info("mailbox created",
		zap.String("address", address),
		zap.String("domain", d.Name))

	return mailbox, nil
}

// GetByAddress 按完整地址查询邮箱，返回收件判定所需的最小视图
//
// 地址转小写后查询；邮箱停用视同不存在。
func (s *MailboxService) GetByAddress(address string) (*domain.MailboxRef, error) {
	normalized := strings.ToLower(strings.TrimSpace(address))

	mailbox, err := s.store.GetMailboxByAddress(normalized)
	if err != nil {
		return nil, ErrMailboxNotFound
	}
	if !mailbox.IsActive {
		return nil, ErrMailboxInactive
	}

	d, err := s.store.GetDomain(mailbox.DomainID)
	if err != nil {
		return nil, ErrDomainNotFound
	}

	return &domain.MailboxRef{
		ID:             mailbox.ID,
		Address:        mailbox.Address,
		DomainID:       d.ID,
		DomainVerified: d.Verified,
	}, nil
}

// VerifyCredential 校验邮箱的 SMTP AUTH 凭证
func (s *MailboxService) VerifyCredential(address, password string) (*domain.MailboxRef, error) {
	normalized := strings.ToLower(strings.TrimSpace(address))

	mailbox, err := s.store.GetMailboxByAddress(normalized)
	if err != nil {
		return nil, ErrBadCredentials
	}
	if !mailbox.IsActive {
		return nil, ErrMailboxInactive
	}
	if !auth.CheckPassword(password, mailbox.PasswordHash) {
		return nil, ErrBadCredentials
	}

	d, err := s.store.GetDomain(mailbox.DomainID)
	if err != nil {
		return nil, ErrDomainNotFound
	}

	return &domain.MailboxRef{
		ID:             mailbox.ID,
		Address:        mailbox.Address,
		DomainID:       d.ID,
		DomainVerified: d.Verified,
	}, nil
}

// List 列出域名下的全部邮箱（校验所有者）
func (s *MailboxService) List(domainID, adminID string) ([]*domain.Mailbox, error) {
	d, err := s.store.GetDomain(domainID)
	if err != nil {
		return nil, ErrDomainNotFound
	}
	if d.AdminID != adminID {
		return nil, ErrNotDomainOwner
	}
	return s.store.ListMailboxesByDomainID(domainID)
}

// Get 获取单个邮箱（校验所有者）
func (s *MailboxService) Get(mailboxID, adminID string) (*domain.Mailbox, error) {
	mailbox, err := s.store.GetMailbox(mailboxID)
	if err != nil {
		return nil, ErrMailboxNotFound
	}
	d, err := s.store.GetDomain(mailbox.DomainID)
	if err != nil {
		return nil, ErrDomainNotFound
	}
	if d.AdminID != adminID {
		return nil, ErrNotDomainOwner
	}
	return mailbox, nil
}

// Delete 删除邮箱（校验所有者）
func (s *MailboxService) Delete(mailboxID, adminID string) error {
	mailbox, err := s.store.GetMailbox(mailboxID)
	if err != nil {
		return ErrMailboxNotFound
	}
	d, err := s.store.GetDomain(mailbox.DomainID)
	if err != nil {
		return ErrDomainNotFound
	}
	if d.AdminID != adminID {
		return ErrNotDomainOwner
	}
	return s.store.DeleteMailbox(mailboxID)
}
