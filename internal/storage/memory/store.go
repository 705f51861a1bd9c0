package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/storage"
)

// Store 使用内存保存域名、邮箱与邮件数据，主要用于开发验证与测试。
type Store struct {
	mu sync.RWMutex

	domains     map[string]*domain.Domain    // domainID -> domain
	byNameAdmin map[string]string            // name + "\x00" + adminID -> domainID
	records     map[string]*domain.DNSRecord // recordID -> record
	byDomain    map[string][]string          // domainID -> recordIDs（保持插入顺序）

	mailboxes map[string]*domain.Mailbox // mailboxID -> mailbox
	byAddress map[string]string          // address -> mailboxID

	messages map[string]map[string]*domain.Message // mailboxID -> messageID -> message

	users      map[string]*domain.User // userID -> user
	byEmail    map[string]string       // email -> userID
	byUsername map[string]string       // username -> userID
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		domains:     make(map[string]*domain.Domain),
		byNameAdmin: make(map[string]string),
		records:     make(map[string]*domain.DNSRecord),
		byDomain:    make(map[string][]string),
		mailboxes:   make(map[string]*domain.Mailbox),
		byAddress:   make(map[string]string),
		messages:    make(map[string]map[string]*domain.Message),
		users:       make(map[string]*domain.User),
		byEmail:     make(map[string]string),
		byUsername:  make(map[string]string),
	}
}

func nameAdminKey(name, adminID string) string {
	return strings.ToLower(name) + "\x00" + adminID
}

// ========== Domain Repository ==========

// CreateDomainWithRecords 原子写入域名及其全部记录。
func (s *Store) CreateDomainWithRecords(d *domain.Domain, records []*domain.DNSRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := nameAdminKey(d.Name, d.AdminID)
	if _, ok := s.byNameAdmin[key]; ok {
		return storage.ErrDomainExists
	}

	// 单锁之下整体写入，天然满足全有或全无
	dc := *d
	s.domains[d.ID] = &dc
	s.byNameAdmin[key] = d.ID
	ids := make([]string, 0, len(records))
	for _, r := range records {
		rc := *r
		s.records[r.ID] = &rc
		ids = append(ids, r.ID)
	}
	s.byDomain[d.ID] = ids

	return nil
}

// GetDomain 根据 ID 获取域名。
func (s *Store) GetDomain(id string) (*domain.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.domains[id]
	if !ok {
		return nil, storage.ErrDomainNotFound
	}
	dc := *d
	return &dc, nil
}

// GetDomainByNameAndAdmin 根据域名与所有者获取域名。
func (s *Store) GetDomainByNameAndAdmin(name, adminID string) (*domain.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNameAdmin[nameAdminKey(name, adminID)]
	if !ok {
		return nil, storage.ErrDomainNotFound
	}
	dc := *s.domains[id]
	return &dc, nil
}

// ListDomainsByAdminID 获取管理员名下的全部域名。
func (s *Store) ListDomainsByAdminID(adminID string) ([]*domain.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Domain, 0)
	for _, d := range s.domains {
		if d.AdminID == adminID {
			dc := *d
			out = append(out, &dc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListVerifiedDomains 获取全部已验证域名。
func (s *Store) ListVerifiedDomains() ([]*domain.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Domain, 0)
	for _, d := range s.domains {
		if d.Verified {
			dc := *d
			out = append(out, &dc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveDomain 更新域名。
func (s *Store) SaveDomain(d *domain.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.domains[d.ID]; !ok {
		return storage.ErrDomainNotFound
	}
	dc := *d
	dc.UpdatedAt = time.Now().UTC()
	s.domains[d.ID] = &dc
	return nil
}

// ListDNSRecords 返回域名下的记录，typeFilter 为空表示全部。
func (s *Store) ListDNSRecords(domainID string, typeFilter domain.RecordType) ([]*domain.DNSRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.domains[domainID]; !ok {
		return nil, storage.ErrDomainNotFound
	}

	out := make([]*domain.DNSRecord, 0)
	for _, id := range s.byDomain[domainID] {
		r := s.records[id]
		if typeFilter != "" && r.Type != typeFilter {
			continue
		}
		rc := *r
		out = append(out, &rc)
	}
	return out, nil
}

// SaveDNSRecord 更新单条 DNS 记录。
func (s *Store) SaveDNSRecord(r *domain.DNSRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[r.ID]; !ok {
		return storage.ErrRecordNotFound
	}
	rc := *r
	rc.UpdatedAt = time.Now().UTC()
	s.records[r.ID] = &rc
	return nil
}

// ========== Mailbox Repository ==========

// SaveMailbox 保存邮箱信息。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := strings.ToLower(mailbox.Address)
	if existingID, ok := s.byAddress[addr]; ok && existingID != mailbox.ID {
		return storage.ErrMailboxExists
	}

	mc := *mailbox
	s.mailboxes[mailbox.ID] = &mc
	s.byAddress[addr] = mailbox.ID
	return nil
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	mc := *mb
	return &mc, nil
}

// GetMailboxByAddress 根据地址获取邮箱。
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[strings.ToLower(address)]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	mc := *s.mailboxes[id]
	return &mc, nil
}

// ListMailboxesByDomainID 获取域名下的全部邮箱。
func (s *Store) ListMailboxesByDomainID(domainID string) ([]*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Mailbox, 0)
	for _, mb := range s.mailboxes {
		if mb.DomainID == domainID {
			mc := *mb
			out = append(out, &mc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// DeleteMailbox 删除邮箱及其全部邮件。
func (s *Store) DeleteMailbox(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return storage.ErrMailboxNotFound
	}
	delete(s.byAddress, strings.ToLower(mb.Address))
	delete(s.mailboxes, id)
	delete(s.messages, id)
	return nil
}

// ========== Message Repository ==========

// SaveMessage 保存入站邮件。
func (s *Store) SaveMessage(message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mailboxes[message.MailboxID]; !ok {
		return storage.ErrMailboxNotFound
	}

	box, ok := s.messages[message.MailboxID]
	if !ok {
		box = make(map[string]*domain.Message)
		s.messages[message.MailboxID] = box
	}
	mc := *message
	box[message.ID] = &mc
	return nil
}

// ListMessages 按接收时间倒序返回邮箱内的全部邮件。
func (s *Store) ListMessages(mailboxID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	box := s.messages[mailboxID]
	out := make([]domain.Message, 0, len(box))
	for _, m := range box {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetMessage 获取指定邮件。
func (s *Store) GetMessage(mailboxID, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[mailboxID][messageID]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	mc := *m
	return &mc, nil
}

// MarkMessageRead 标记邮件为已读。
func (s *Store) MarkMessageRead(mailboxID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[mailboxID][messageID]
	if !ok {
		return storage.ErrMessageNotFound
	}
	m.IsRead = true
	return nil
}

// ========== User Repository ==========

// CreateUser 创建管理员账户。
func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := s.byEmail[email]; ok {
		return storage.ErrEmailExists
	}
	if user.Username != "" {
		if _, ok := s.byUsername[strings.ToLower(user.Username)]; ok {
			return storage.ErrUsernameExists
		}
	}

	uc := *user
	s.users[user.ID] = &uc
	s.byEmail[email] = user.ID
	if user.Username != "" {
		s.byUsername[strings.ToLower(user.Username)] = user.ID
	}
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	uc := *u
	return &uc, nil
}

// GetUserByEmail 根据邮箱地址获取用户。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	uc := *s.users[id]
	return &uc, nil
}

// GetUserByUsername 根据用户名获取用户。
func (s *Store) GetUserByUsername(username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	uc := *s.users[id]
	return &uc, nil
}

// UpdateLastLogin 更新最近登录时间。
func (s *Store) UpdateLastLogin(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	now := time.Now().UTC()
	u.LastLoginAt = &now
	return nil
}

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error { return nil }

// Health 健康检查（内存实现总是健康）。
func (s *Store) Health() error { return nil }
