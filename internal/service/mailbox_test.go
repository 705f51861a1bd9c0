package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/secrets"
	"mailforge/backend/internal/storage/memory"
)

// newVerifiedDomain 登记一个域名并直接置为已验证
func newVerifiedDomain(t *testing.T, store *memory.Store, adminID, name string) *domain.Domain {
	t.Helper()
	svc := NewDomainTrustService(store, &fakeLookuper{}, nil, testDNSConfig(), zap.NewNop())
	d, _, err := svc.AddDomain(context.Background(), AddDomainInput{AdminID: adminID, Name: name})
	require.NoError(t, err)

	now := time.Now().UTC()
	d.Verified = true
	d.VerifiedAt = &now
	require.NoError(t, store.SaveDomain(d))
	return d
}

func newMailboxService(t *testing.T, store *memory.Store) *MailboxService {
	t.Helper()
	box, err := secrets.NewBox("test-encryption-passphrase")
	require.NoError(t, err)
	return NewMailboxService(store, box, zap.NewNop())
}

func TestMailboxCreate(t *testing.T) {
	t.Run("创建成功", func(t *testing.T) {
		store := memory.NewStore()
		d := newVerifiedDomain(t, store, "admin-1", "example.com")
		svc := newMailboxService(t, store)

		mailbox, err := svc.Create(CreateMailboxInput{
			AdminID:   "admin-1",
			DomainID:  d.ID,
			LocalPart: "Support",
			Password:  "smtp-password-1",
		})

		require.NoError(t, err)
		assert.Equal(t, "support@example.com", mailbox.Address) // 本地部分转小写
		assert.Equal(t, "support", mailbox.LocalPart)
		assert.True(t, mailbox.IsActive)
		assert.Equal(t, 5120, mailbox.Quota)
		assert.NotEqual(t, "smtp-password-1", mailbox.PasswordHash)
		assert.NotEmpty(t, mailbox.SMTPPasswordEnc)
		assert.NotContains(t, mailbox.SMTPPasswordEnc, "smtp-password-1")
	})

	t.Run("未验证域名拒绝创建", func(t *testing.T) {
		store := memory.NewStore()
		trust := NewDomainTrustService(store, &fakeLookuper{}, nil, testDNSConfig(), zap.NewNop())
		d, _, err := trust.AddDomain(context.Background(), AddDomainInput{AdminID: "admin-1", Name: "example.com"})
		require.NoError(t, err)
		svc := newMailboxService(t, store)

		_, err = svc.Create(CreateMailboxInput{
			AdminID:   "admin-1",
			DomainID:  d.ID,
			LocalPart: "support",
			Password:  "smtp-password-1",
		})

		assert.ErrorIs(t, err, ErrDomainNotVerified)
	})

	t.Run("非所有者拒绝创建", func(t *testing.T) {
		store := memory.NewStore()
		d := newVerifiedDomain(t, store, "admin-1", "example.com")
		svc := newMailboxService(t, store)

		_, err := svc.Create(CreateMailboxInput{
			AdminID:   "admin-2",
			DomainID:  d.ID,
			LocalPart: "support",
			Password:  "smtp-password-1",
		})

		assert.ErrorIs(t, err, ErrNotDomainOwner)
	})

	t.Run("非法本地部分失败", func(t *testing.T) {
		store := memory.NewStore()
		d := newVerifiedDomain(t, store, "admin-1", "example.com")
		svc := newMailboxService(t, store)

		for _, localPart := range []string{"", "has space", "中文"} {
			_, err := svc.Create(CreateMailboxInput{
				AdminID:   "admin-1",
				DomainID:  d.ID,
				LocalPart: localPart,
				Password:  "smtp-password-1",
			})
			assert.ErrorIs(t, err, domain.ErrInvalidLocalPart, "localPart=%q", localPart)
		}
	})

	t.Run("地址重复失败", func(t *testing.T) {
		store := memory.NewStore()
		d := newVerifiedDomain(t, store, "admin-1", "example.com")
		svc := newMailboxService(t, store)

		_, err := svc.Create(CreateMailboxInput{
			AdminID: "admin-1", DomainID: d.ID, LocalPart: "support", Password: "smtp-password-1",
		})
		require.NoError(t, err)

		_, err = svc.Create(CreateMailboxInput{
			AdminID: "admin-1", DomainID: d.ID, LocalPart: "support", Password: "smtp-password-2",
		})

		assert.ErrorIs(t, err, ErrMailboxExists)
	})
}

func TestMailboxGetByAddress(t *testing.T) {
	store := memory.NewStore()
	d := newVerifiedDomain(t, store, "admin-1", "example.com")
	svc := newMailboxService(t, store)

	created, err := svc.Create(CreateMailboxInput{
		AdminID: "admin-1", DomainID: d.ID, LocalPart: "support", Password: "smtp-password-1",
	})
	require.NoError(t, err)

	t.Run("查询返回最小视图", func(t *testing.T) {
		ref, err := svc.GetByAddress("Support@Example.COM")

		require.NoError(t, err)
		assert.Equal(t, created.ID, ref.ID)
		assert.Equal(t, "support@example.com", ref.Address)
		assert.Equal(t, d.ID, ref.DomainID)
		assert.True(t, ref.DomainVerified)
	})

	t.Run("地址不存在", func(t *testing.T) {
		_, err := svc.GetByAddress("nobody@example.com")

		assert.ErrorIs(t, err, ErrMailboxNotFound)
	})

	t.Run("域名退回未验证后视图随之更新", func(t *testing.T) {
		d.Verified = false
		d.VerifiedAt = nil
		require.NoError(t, store.SaveDomain(d))

		ref, err := svc.GetByAddress("support@example.com")

		require.NoError(t, err)
		assert.False(t, ref.DomainVerified)

		// 恢复状态
		now := time.Now().UTC()
		d.Verified = true
		d.VerifiedAt = &now
		require.NoError(t, store.SaveDomain(d))
	})
}

func TestMailboxVerifyCredential(t *testing.T) {
	store := memory.NewStore()
	d := newVerifiedDomain(t, store, "admin-1", "example.com")
	svc := newMailboxService(t, store)

	_, err := svc.Create(CreateMailboxInput{
		AdminID: "admin-1", DomainID: d.ID, LocalPart: "support", Password: "smtp-password-1",
	})
	require.NoError(t, err)

	t.Run("凭证正确", func(t *testing.T) {
		ref, err := svc.VerifyCredential("support@example.com", "smtp-password-1")

		require.NoError(t, err)
		assert.Equal(t, "support@example.com", ref.Address)
	})

	t.Run("密码错误", func(t *testing.T) {
		_, err := svc.VerifyCredential("support@example.com", "wrong-password")

		assert.ErrorIs(t, err, ErrBadCredentials)
	})

	t.Run("地址不存在", func(t *testing.T) {
		_, err := svc.VerifyCredential("nobody@example.com", "smtp-password-1")

		assert.ErrorIs(t, err, ErrBadCredentials)
	})
}

func TestMessageService(t *testing.T) {
	store := memory.NewStore()
	d := newVerifiedDomain(t, store, "admin-1", "example.com")
	mailboxes := newMailboxService(t, store)
	messages := NewMessageService(store, zap.NewNop())

	mailbox, err := mailboxes.Create(CreateMailboxInput{
		AdminID: "admin-1", DomainID: d.ID, LocalPart: "support", Password: "smtp-password-1",
	})
	require.NoError(t, err)

	t.Run("落库和读取", func(t *testing.T) {
		stored, err := messages.Store(StoreMessageInput{
			MailboxID: mailbox.ID,
			From:      "alice@example.net",
			To:        "support@example.com",
			Subject:   "hello",
			Text:      "plain body",
			HTML:      "<p>html body</p>",
			Attachments: []*domain.Attachment{
				{Filename: "a.txt", ContentType: "text/plain", Size: 4, Content: []byte("data")},
			},
		})

		require.NoError(t, err)
		assert.NotEmpty(t, stored.ID)
		require.Len(t, stored.Attachments, 1)
		assert.Equal(t, stored.ID, stored.Attachments[0].MessageID)

		list, err := messages.List(mailbox.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "hello", list[0].Subject)
		assert.False(t, list[0].IsRead)

		got, err := messages.Get(mailbox.ID, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, "plain body", got.Text)
	})

	t.Run("标记已读", func(t *testing.T) {
		list, err := messages.List(mailbox.ID)
		require.NoError(t, err)
		require.NotEmpty(t, list)

		require.NoError(t, messages.MarkRead(mailbox.ID, list[0].ID))

		got, err := messages.Get(mailbox.ID, list[0].ID)
		require.NoError(t, err)
		assert.True(t, got.IsRead)
	})

	t.Run("邮件不存在", func(t *testing.T) {
		_, err := messages.Get(mailbox.ID, "missing")
		assert.ErrorIs(t, err, ErrMessageNotFound)

		err = messages.MarkRead(mailbox.ID, "missing")
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})
}
