package smtp

import (
	"errors"
	"io"
	"net"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"mailforge/backend/internal/cache"
	"mailforge/backend/internal/config"
	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/monitoring"
	"mailforge/backend/internal/security"
	"mailforge/backend/internal/service"
)

// Notifier 新邮件落库后的通知出口（WebSocket 推送、Redis 发布等）。
type Notifier interface {
	NotifyNewMail(mailboxID string, message *domain.Message)
}

// 常用的 SMTP 拒绝回复
var (
	errTooManyConns = &gosmtp.SMTPError{
		Code:         421,
		EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
		Message:      "too many connections, try again later",
	}
	errAuthRequired = &gosmtp.SMTPError{
		Code:         530,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
		Message:      "authentication required",
	}
	errAuthFailed = &gosmtp.SMTPError{
		Code:         535,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
		Message:      "authentication credentials invalid",
	}
	errSenderMismatch = &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
		Message:      "sender address does not match authenticated user",
	}
	errBadSender = &gosmtp.SMTPError{
		Code:         501,
		EnhancedCode: gosmtp.EnhancedCode{5, 1, 7},
		Message:      "invalid sender address",
	}
	errBadRecipient = &gosmtp.SMTPError{
		Code:         501,
		EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
		Message:      "invalid recipient address",
	}
	errTooManyRcpts = &gosmtp.SMTPError{
		Code:         452,
		EnhancedCode: gosmtp.EnhancedCode{4, 5, 3},
		Message:      "too many recipients",
	}
	errUnknownRecipient = &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
		Message:      "recipient mailbox not found",
	}
	errDomainUnverified = &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
		Message:      "recipient domain not verified",
	}
	errMessageTooLarge = &gosmtp.SMTPError{
		Code:         552,
		EnhancedCode: gosmtp.EnhancedCode{5, 3, 4},
		Message:      "message exceeds maximum size",
	}
	errMalformedMessage = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
		Message:      "malformed message content",
	}
	errMissingFrom = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
		Message:      "message missing From header",
	}
	errStorageFailure = &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
		Message:      "temporary storage failure, try again later",
	}
)

// Backend 实现 go-smtp 的 Backend 接口
//
// 只收不发的入站网关：RCPT 阶段要求收件地址对应平台托管的
// 邮箱且所属域名已通过验证（后者可按配置放宽），外部地址
// 一律 550 拒绝，因此不会成为开放中继。
type Backend struct {
	mailboxes *service.MailboxService
	messages  *service.MessageService
	notifier  Notifier
	limiter   *ConnLimiter
	directory *cache.LocalCache // RCPT 查询结果的短 TTL 缓存
	screener  *security.Screener
	metrics   *monitoring.Metrics
	cfg       config.SMTPConfig
	logger    *zap.Logger
}

// 收件人目录缓存参数。TTL 取短值，域名验证状态变化
// 最多延迟这么久反映到收件判定上。
const (
	directoryCacheSize = 4096
	directoryCacheTTL  = 30 * time.Second
)

// NewBackend 创建 SMTP Backend
func NewBackend(
	mailboxes *service.MailboxService,
	messages *service.MessageService,
	notifier Notifier,
	metrics *monitoring.Metrics,
	cfg config.SMTPConfig,
	logger *zap.Logger,
) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		mailboxes: mailboxes,
		messages:  messages,
		notifier:  notifier,
		limiter:   NewConnLimiter(cfg.MaxConnsPerIP, cfg.ConnRatePerIP),
		directory: cache.NewLocalCache(directoryCacheSize, directoryCacheTTL),
		screener:  security.NewScreener(),
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
	}
}

// lookupRecipient 查询收件地址，命中缓存时不落存储层
func (b *Backend) lookupRecipient(addr string) (*domain.MailboxRef, error) {
	if cached, ok := b.directory.Get(addr); ok {
		return cached.(*domain.MailboxRef), nil
	}
	ref, err := b.mailboxes.GetByAddress(addr)
	if err != nil {
		return nil, err
	}
	b.directory.Set(addr, ref)
	return ref, nil
}

// NewServer 按配置构造 go-smtp 服务器
func NewServer(backend *Backend) *gosmtp.Server {
	s := gosmtp.NewServer(backend)
	s.Addr = backend.cfg.BindAddr
	s.Domain = backend.cfg.Domain
	s.MaxMessageBytes = backend.cfg.MaxMessageBytes
	s.MaxRecipients = backend.cfg.MaxRecipients
	s.ReadTimeout = 60 * time.Second
	s.WriteTimeout = 60 * time.Second
	s.AllowInsecureAuth = true
	return s
}

// NewSession 创建新的 SMTP 会话
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	ip := remoteIP(c)

	if !b.limiter.Acquire(ip) {
		if b.metrics != nil {
			b.metrics.SMTPSessionsRejected.Inc()
		}
		b.logger.Warn("smtp connection rejected by limiter", zap.String("remote_ip", ip))
		return nil, errTooManyConns
	}

	if b.metrics != nil {
		b.metrics.SMTPSessionsTotal.Inc()
		b.metrics.SMTPSessionsActive.Inc()
	}

	return &session{
		backend:  b,
		remoteIP: ip,
		logger:   b.logger.With(zap.String("remote_ip", ip)),
	}, nil
}

func remoteIP(c *gosmtp.Conn) string {
	if c == nil || c.Conn() == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(c.Conn().RemoteAddr().String())
	if err != nil {
		return c.Conn().RemoteAddr().String()
	}
	return host
}

type recipient struct {
	address   string
	mailboxID string
}

type session struct {
	backend  *Backend
	remoteIP string
	logger   *zap.Logger

	authenticated bool
	authAddress   string
	fromAddress   string
	recipients    []recipient
}

// AuthMechanisms 返回支持的认证机制
func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

// Auth 处理 AUTH 命令，凭证按邮箱目录校验
func (s *session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, gosmtp.ErrAuthUnsupported
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		ref, err := s.backend.mailboxes.VerifyCredential(username, password)
		if err != nil {
			if s.backend.metrics != nil {
				s.backend.metrics.SMTPAuthFailures.Inc()
			}
			s.logger.Warn("smtp auth failed", zap.String("username", username))
			return errAuthFailed
		}
		s.authenticated = true
		s.authAddress = ref.Address
		s.logger.Info("smtp auth succeeded", zap.String("address", ref.Address))
		return nil
	}), nil
}

// Mail 处理 MAIL FROM 命令
//
// 发件地址缺失或语法非法返回 501；配置了 auth_required 时
// 未认证会话直接拒绝；配置了 require_sender_match 时发件
// 地址必须等于认证身份。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	if s.backend.cfg.AuthRequired && !s.authenticated {
		return errAuthRequired
	}

	addr := normalizeAddress(from)
	if addr == "" {
		return errBadSender
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return errBadSender
	}

	if s.backend.cfg.RequireSenderMatch && s.authenticated &&
		!strings.EqualFold(addr, s.authAddress) {
		return errSenderMismatch
	}

	s.fromAddress = addr
	return nil
}

// Rcpt 处理 RCPT TO 命令
//
// 收件地址必须对应平台托管的邮箱；enforce_verified_rcpt
// 开启时还要求所属域名已通过验证。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)
	if _, _, err := domain.SplitAddress(addr); err != nil {
		return errBadRecipient
	}

	if s.backend.cfg.MaxRecipients > 0 && len(s.recipients) >= s.backend.cfg.MaxRecipients {
		return errTooManyRcpts
	}

	ref, err := s.backend.lookupRecipient(addr)
	if err != nil {
		s.countRejected("unknown_recipient")
		s.logger.Info("recipient rejected", zap.String("to", addr))
		return errUnknownRecipient
	}

	if !ref.DomainVerified && s.backend.cfg.EnforceVerifiedRcpt {
		s.countRejected("domain_unverified")
		s.logger.Info("recipient domain not verified", zap.String("to", addr))
		return errDomainUnverified
	}

	s.recipients = append(s.recipients, recipient{
		address:   addr,
		mailboxID: ref.ID,
	})
	return nil
}

// Data 处理邮件内容
//
// 超过体积上限返回 552；解析失败或缺少 From 头返回 554。
// 持久化按收件人隔离：单个收件人落库失败只记录并跳过，
// 全部失败才返回临时错误让对端重试。
func (s *session) Data(r io.Reader) error {
	limit := s.backend.cfg.MaxMessageBytes
	if limit <= 0 {
		limit = config.DefaultMaxMessageBytes
	}

	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return err
	}
	if int64(len(raw)) > limit {
		s.countRejected("too_large")
		s.logger.Warn("message exceeds size limit", zap.Int("bytes", len(raw)))
		return errMessageTooLarge
	}

	parsed, err := ParseEmail(raw)
	if err != nil {
		s.countRejected("malformed")
		s.logger.Warn("message parse failed", zap.Error(err))
		return errMalformedMessage
	}
	if strings.TrimSpace(parsed.From) == "" {
		s.countRejected("missing_from")
		return errMissingFrom
	}

	from := s.fromAddress
	if from == "" {
		from = parsed.From
	}

	// 剥离被筛查器拦截的附件，邮件本身照常投递
	attachments := parsed.Attachments[:0]
	for _, att := range parsed.Attachments {
		ok, reason := s.backend.screener.Check(att.Filename, att.Content)
		if !ok {
			if s.backend.metrics != nil {
				s.backend.metrics.AttachmentsBlocked.Inc()
			}
			s.logger.Warn("attachment blocked",
				zap.String("filename", att.Filename),
				zap.String("reason", reason))
			continue
		}
		attachments = append(attachments, att)
	}

	stored := 0
	for _, rcpt := range s.recipients {
		message, err := s.backend.messages.Store(service.StoreMessageInput{
			MailboxID:   rcpt.mailboxID,
			From:        from,
			To:          rcpt.address,
			Subject:     parsed.Subject,
			Text:        parsed.Text,
			HTML:        parsed.HTML,
			Attachments: attachments,
		})
		if err != nil {
			// 单收件人失败不影响其他收件人
			if s.backend.metrics != nil {
				s.backend.metrics.MessageStoreErrors.Inc()
			}
			s.logger.Error("message store failed",
				zap.String("to", rcpt.address), zap.Error(err))
			continue
		}

		stored++
		if s.backend.metrics != nil {
			s.backend.metrics.MessagesAccepted.Inc()
			s.backend.metrics.MessageSizeBytes.Observe(float64(len(raw)))
		}
		if s.backend.notifier != nil {
			s.backend.notifier.NotifyNewMail(rcpt.mailboxID, message)
		}
	}

	if stored == 0 && len(s.recipients) > 0 {
		return errStorageFailure
	}

	s.logger.Info("message accepted",
		zap.String("from", from),
		zap.Int("recipients", len(s.recipients)),
		zap.Int("stored", stored),
		zap.Int("bytes", len(raw)))
	return nil
}

// Reset 重置会话状态（认证状态保留）
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束
func (s *session) Logout() error {
	s.backend.limiter.Release(s.remoteIP)
	if s.backend.metrics != nil {
		s.backend.metrics.SMTPSessionsActive.Dec()
	}
	return nil
}

func (s *session) countRejected(reason string) {
	if s.backend.metrics != nil {
		s.backend.metrics.MessagesRejected.WithLabelValues(reason).Inc()
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}

// IsTemporary 判断 SMTP 错误是否为临时错误（4xx）
func IsTemporary(err error) bool {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Temporary()
	}
	return false
}
