package smtp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailforge/backend/internal/config"
	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/secrets"
	"mailforge/backend/internal/service"
	"mailforge/backend/internal/storage"
	"mailforge/backend/internal/storage/memory"
)

// capturingNotifier 记录收到的新邮件通知
type capturingNotifier struct {
	mu       sync.Mutex
	notified []string
}

func (n *capturingNotifier) NotifyNewMail(mailboxID string, _ *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, mailboxID)
}

// faultyMessageStore 指定邮箱写入失败的存储包装
type faultyMessageStore struct {
	storage.MessageRepository
	failMailboxID string
}

func (f *faultyMessageStore) SaveMessage(message *domain.Message) error {
	if message.MailboxID == f.failMailboxID {
		return errors.New("disk full")
	}
	return f.MessageRepository.SaveMessage(message)
}

type testEnv struct {
	store    *memory.Store
	backend  *Backend
	notifier *capturingNotifier
	mailbox  *domain.Mailbox
	cfg      config.SMTPConfig
}

func testSMTPConfig() config.SMTPConfig {
	return config.SMTPConfig{
		BindAddr:            ":2525",
		Domain:              "mx.mailforge.dev",
		EnforceVerifiedRcpt: true,
		MaxMessageBytes:     config.DefaultMaxMessageBytes,
		MaxRecipients:       50,
		MaxConnsPerIP:       10,
		ConnRatePerIP:       100,
	}
}

// newTestEnv 搭建一个带已验证域名和邮箱的网关环境
func newTestEnv(t *testing.T, cfg config.SMTPConfig) *testEnv {
	t.Helper()

	store := memory.NewStore()

	trust := service.NewDomainTrustService(store, nil, nil, config.DNSConfig{
		ServerIP:     "192.0.2.10",
		MailHost:     "mx.mailforge.dev",
		DKIMSelector: "dkim",
		DMARCPolicy:  "quarantine",
		RecordTTL:    3600,
	}, zap.NewNop())

	d, _, err := trust.AddDomain(context.Background(), service.AddDomainInput{
		AdminID: "admin-1",
		Name:    "example.com",
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	d.Verified = true
	d.VerifiedAt = &now
	require.NoError(t, store.SaveDomain(d))

	box, err := secrets.NewBox("test-encryption-passphrase")
	require.NoError(t, err)
	mailboxes := service.NewMailboxService(store, box, zap.NewNop())

	mailbox, err := mailboxes.Create(service.CreateMailboxInput{
		AdminID:   "admin-1",
		DomainID:  d.ID,
		LocalPart: "support",
		Password:  "smtp-password-1",
	})
	require.NoError(t, err)

	notifier := &capturingNotifier{}
	messages := service.NewMessageService(store, zap.NewNop())
	backend := NewBackend(mailboxes, messages, notifier, nil, cfg, zap.NewNop())

	return &testEnv{
		store:    store,
		backend:  backend,
		notifier: notifier,
		mailbox:  mailbox,
		cfg:      cfg,
	}
}

func (e *testEnv) newSession() *session {
	return &session{
		backend:  e.backend,
		remoteIP: "192.0.2.100",
		logger:   zap.NewNop(),
	}
}

func smtpCode(t *testing.T, err error) int {
	t.Helper()
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	return smtpErr.Code
}

const sampleMail = "From: alice@example.net\r\n" +
	"To: support@example.com\r\n" +
	"Subject: hello\r\n" +
	"\r\n" +
	"plain body\r\n"

func TestSessionMail(t *testing.T) {
	t.Run("普通发件人", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())
		s := env.newSession()

		assert.NoError(t, s.Mail("<Alice@Example.NET>", nil))
		assert.Equal(t, "alice@example.net", s.fromAddress)
	})

	t.Run("空发件人返回501", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())
		s := env.newSession()

		err := s.Mail("", nil)

		assert.Equal(t, 501, smtpCode(t, err))
	})

	t.Run("非法发件地址返回501", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())
		s := env.newSession()

		err := s.Mail("not an address", nil)

		assert.Equal(t, 501, smtpCode(t, err))
	})

	t.Run("要求认证时未认证返回530", func(t *testing.T) {
		cfg := testSMTPConfig()
		cfg.AuthRequired = true
		env := newTestEnv(t, cfg)
		s := env.newSession()

		err := s.Mail("alice@example.net", nil)

		assert.Equal(t, 530, smtpCode(t, err))
	})

	t.Run("发件人必须匹配认证身份", func(t *testing.T) {
		cfg := testSMTPConfig()
		cfg.RequireSenderMatch = true
		env := newTestEnv(t, cfg)
		s := env.newSession()
		s.authenticated = true
		s.authAddress = "support@example.com"

		assert.NoError(t, s.Mail("support@example.com", nil))

		err := s.Mail("other@example.com", nil)
		assert.Equal(t, 550, smtpCode(t, err))
	})
}

func TestSessionRcpt(t *testing.T) {
	t.Run("托管邮箱接受", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())
		s := env.newSession()

		require.NoError(t, s.Rcpt("<Support@Example.COM>", nil))
		require.Len(t, s.recipients, 1)
		assert.Equal(t, "support@example.com", s.recipients[0].address)
		assert.Equal(t, env.mailbox.ID, s.recipients[0].mailboxID)
	})

	t.Run("未知邮箱返回550", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())
		s := env.newSession()

		err := s.Rcpt("nobody@example.com", nil)

		assert.Equal(t, 550, smtpCode(t, err))
	})

	t.Run("外部域名返回550", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())
		s := env.newSession()

		err := s.Rcpt("someone@external.org", nil)

		assert.Equal(t, 550, smtpCode(t, err))
	})

	t.Run("非法地址返回501", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())
		s := env.newSession()

		err := s.Rcpt("no-at-sign", nil)

		assert.Equal(t, 501, smtpCode(t, err))
	})

	t.Run("未验证域名默认拒绝", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())

		// 域名退回未验证
		d, err := env.store.GetDomain(env.mailbox.DomainID)
		require.NoError(t, err)
		d.Verified = false
		require.NoError(t, env.store.SaveDomain(d))

		s := env.newSession()
		err = s.Rcpt("support@example.com", nil)

		assert.Equal(t, 550, smtpCode(t, err))
	})

	t.Run("未验证域名可按配置放行", func(t *testing.T) {
		cfg := testSMTPConfig()
		cfg.EnforceVerifiedRcpt = false
		env := newTestEnv(t, cfg)

		d, err := env.store.GetDomain(env.mailbox.DomainID)
		require.NoError(t, err)
		d.Verified = false
		require.NoError(t, env.store.SaveDomain(d))

		s := env.newSession()
		assert.NoError(t, s.Rcpt("support@example.com", nil))
	})

	t.Run("超出收件人上限返回452", func(t *testing.T) {
		cfg := testSMTPConfig()
		cfg.MaxRecipients = 1
		env := newTestEnv(t, cfg)
		s := env.newSession()

		require.NoError(t, s.Rcpt("support@example.com", nil))
		err := s.Rcpt("support@example.com", nil)

		assert.Equal(t, 452, smtpCode(t, err))
	})
}

func TestSessionData(t *testing.T) {
	t.Run("接收并落库", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())
		s := env.newSession()
		require.NoError(t, s.Mail("alice@example.net", nil))
		require.NoError(t, s.Rcpt("support@example.com", nil))

		require.NoError(t, s.Data(strings.NewReader(sampleMail)))

		messages, err := env.store.ListMessages(env.mailbox.ID)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "alice@example.net", messages[0].From)
		assert.Equal(t, "support@example.com", messages[0].To)
		assert.Equal(t, "hello", messages[0].Subject)
		assert.Contains(t, messages[0].Text, "plain body")

		// 通知已发出
		assert.Equal(t, []string{env.mailbox.ID}, env.notifier.notified)
	})

	t.Run("超过体积上限返回552", func(t *testing.T) {
		cfg := testSMTPConfig()
		cfg.MaxMessageBytes = 128
		env := newTestEnv(t, cfg)
		s := env.newSession()
		require.NoError(t, s.Mail("alice@example.net", nil))
		require.NoError(t, s.Rcpt("support@example.com", nil))

		big := sampleMail + strings.Repeat("x", 256)
		err := s.Data(strings.NewReader(big))

		assert.Equal(t, 552, smtpCode(t, err))

		messages, err2 := env.store.ListMessages(env.mailbox.ID)
		require.NoError(t, err2)
		assert.Empty(t, messages)
	})

	t.Run("缺少From头返回554", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())
		s := env.newSession()
		require.NoError(t, s.Mail("alice@example.net", nil))
		require.NoError(t, s.Rcpt("support@example.com", nil))

		noFrom := "To: support@example.com\r\nSubject: x\r\n\r\nbody\r\n"
		err := s.Data(strings.NewReader(noFrom))

		assert.Equal(t, 554, smtpCode(t, err))
	})

	t.Run("空发件人回退到From头", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())
		s := env.newSession()
		require.NoError(t, s.Mail("alice@example.net", nil))
		require.NoError(t, s.Rcpt("support@example.com", nil))
		s.fromAddress = ""

		require.NoError(t, s.Data(strings.NewReader(sampleMail)))

		messages, err := env.store.ListMessages(env.mailbox.ID)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "alice@example.net", messages[0].From)
	})

	t.Run("多收件人各存一份", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())

		// 再建一个邮箱
		box, err := secrets.NewBox("test-encryption-passphrase")
		require.NoError(t, err)
		mailboxes := service.NewMailboxService(env.store, box, zap.NewNop())
		second, err := mailboxes.Create(service.CreateMailboxInput{
			AdminID:   "admin-1",
			DomainID:  env.mailbox.DomainID,
			LocalPart: "sales",
			Password:  "smtp-password-2",
		})
		require.NoError(t, err)

		s := env.newSession()
		require.NoError(t, s.Mail("alice@example.net", nil))
		require.NoError(t, s.Rcpt("support@example.com", nil))
		require.NoError(t, s.Rcpt("sales@example.com", nil))

		require.NoError(t, s.Data(strings.NewReader(sampleMail)))

		first, err := env.store.ListMessages(env.mailbox.ID)
		require.NoError(t, err)
		assert.Len(t, first, 1)

		secondList, err := env.store.ListMessages(second.ID)
		require.NoError(t, err)
		assert.Len(t, secondList, 1)
	})

	t.Run("单个收件人落库失败不影响其他收件人", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())

		box, err := secrets.NewBox("test-encryption-passphrase")
		require.NoError(t, err)
		mailboxes := service.NewMailboxService(env.store, box, zap.NewNop())
		second, err := mailboxes.Create(service.CreateMailboxInput{
			AdminID:   "admin-1",
			DomainID:  env.mailbox.DomainID,
			LocalPart: "sales",
			Password:  "smtp-password-2",
		})
		require.NoError(t, err)

		// 第二个邮箱落库失败，第一个照常投递
		faulty := &faultyMessageStore{MessageRepository: env.store, failMailboxID: second.ID}
		messages := service.NewMessageService(faulty, zap.NewNop())
		backend := NewBackend(mailboxes, messages, env.notifier, nil, env.cfg, zap.NewNop())
		s := &session{backend: backend, remoteIP: "192.0.2.100", logger: zap.NewNop()}

		require.NoError(t, s.Mail("alice@example.net", nil))
		require.NoError(t, s.Rcpt("support@example.com", nil))
		require.NoError(t, s.Rcpt("sales@example.com", nil))

		require.NoError(t, s.Data(strings.NewReader(sampleMail)))

		first, err := env.store.ListMessages(env.mailbox.ID)
		require.NoError(t, err)
		assert.Len(t, first, 1)

		secondList, err := env.store.ListMessages(second.ID)
		require.NoError(t, err)
		assert.Empty(t, secondList)

		// 只有成功落库的邮箱收到通知
		assert.Equal(t, []string{env.mailbox.ID}, env.notifier.notified)
	})

	t.Run("全部收件人落库失败返回451", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())

		box, err := secrets.NewBox("test-encryption-passphrase")
		require.NoError(t, err)
		mailboxes := service.NewMailboxService(env.store, box, zap.NewNop())

		faulty := &faultyMessageStore{MessageRepository: env.store, failMailboxID: env.mailbox.ID}
		messages := service.NewMessageService(faulty, zap.NewNop())
		backend := NewBackend(mailboxes, messages, env.notifier, nil, env.cfg, zap.NewNop())
		s := &session{backend: backend, remoteIP: "192.0.2.100", logger: zap.NewNop()}

		require.NoError(t, s.Mail("alice@example.net", nil))
		require.NoError(t, s.Rcpt("support@example.com", nil))

		err = s.Data(strings.NewReader(sampleMail))

		assert.Equal(t, 451, smtpCode(t, err))
		assert.Empty(t, env.notifier.notified)

		msgs, err := env.store.ListMessages(env.mailbox.ID)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("危险附件被剥离", func(t *testing.T) {
		env := newTestEnv(t, testSMTPConfig())
		s := env.newSession()
		require.NoError(t, s.Mail("alice@example.net", nil))
		require.NoError(t, s.Rcpt("support@example.com", nil))

		raw := "From: alice@example.net\r\n" +
			"To: support@example.com\r\n" +
			"Subject: files\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
			"\r\n" +
			"--b1\r\n" +
			"Content-Type: text/plain\r\n" +
			"\r\n" +
			"see attachments\r\n" +
			"--b1\r\n" +
			"Content-Type: application/octet-stream\r\n" +
			"Content-Disposition: attachment; filename=\"evil.exe\"\r\n" +
			"\r\n" +
			"MZ\x90\x00\r\n" +
			"--b1\r\n" +
			"Content-Type: text/plain\r\n" +
			"Content-Disposition: attachment; filename=\"notes.txt\"\r\n" +
			"\r\n" +
			"safe content\r\n" +
			"--b1--\r\n"

		require.NoError(t, s.Data(strings.NewReader(raw)))

		messages, err := env.store.ListMessages(env.mailbox.ID)
		require.NoError(t, err)
		require.Len(t, messages, 1)

		msg, err := env.store.GetMessage(env.mailbox.ID, messages[0].ID)
		require.NoError(t, err)
		require.Len(t, msg.Attachments, 1)
		assert.Equal(t, "notes.txt", msg.Attachments[0].Filename)
	})
}

func TestRecipientDirectoryCache(t *testing.T) {
	env := newTestEnv(t, testSMTPConfig())

	ref, err := env.backend.lookupRecipient("support@example.com")
	require.NoError(t, err)

	// 删除底层邮箱后缓存内仍可命中
	require.NoError(t, env.store.DeleteMailbox(ref.ID))

	cached, err := env.backend.lookupRecipient("support@example.com")
	require.NoError(t, err)
	assert.Equal(t, ref.ID, cached.ID)
}

func TestSessionReset(t *testing.T) {
	env := newTestEnv(t, testSMTPConfig())
	s := env.newSession()
	s.authenticated = true
	s.authAddress = "support@example.com"
	require.NoError(t, s.Mail("alice@example.net", nil))
	require.NoError(t, s.Rcpt("support@example.com", nil))

	s.Reset()

	assert.Empty(t, s.fromAddress)
	assert.Empty(t, s.recipients)
	assert.True(t, s.authenticated) // 认证状态跨事务保留
}

func TestConnLimiter(t *testing.T) {
	t.Run("并发连接上限", func(t *testing.T) {
		limiter := NewConnLimiter(2, 100)

		assert.True(t, limiter.Acquire("192.0.2.1"))
		assert.True(t, limiter.Acquire("192.0.2.1"))
		assert.False(t, limiter.Acquire("192.0.2.1"))

		// 不同 IP 不受影响
		assert.True(t, limiter.Acquire("192.0.2.2"))

		limiter.Release("192.0.2.1")
		assert.True(t, limiter.Acquire("192.0.2.1"))
	})

	t.Run("速率限制", func(t *testing.T) {
		limiter := NewConnLimiter(100, 2)

		assert.True(t, limiter.Acquire("192.0.2.1"))
		assert.True(t, limiter.Acquire("192.0.2.1"))
		// 令牌耗尽
		assert.False(t, limiter.Acquire("192.0.2.1"))
	})

	t.Run("零值不限制", func(t *testing.T) {
		limiter := NewConnLimiter(0, 0)

		for i := 0; i < 100; i++ {
			assert.True(t, limiter.Acquire("192.0.2.1"))
		}
	})
}
