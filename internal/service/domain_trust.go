package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailforge/backend/internal/config"
	"mailforge/backend/internal/dnsx"
	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/pool"
	"mailforge/backend/internal/provider"
	"mailforge/backend/internal/storage"
)

var (
	// ErrDomainAlreadyExists 同一管理员下域名已存在
	ErrDomainAlreadyExists = errors.New("domain already exists")
	// ErrDomainNotFound 域名不存在
	ErrDomainNotFound = errors.New("domain not found")
	// ErrNotDomainOwner 不是域名所有者
	ErrNotDomainOwner = errors.New("not domain owner")
	// ErrInvalidRecordType 不支持的记录类型过滤条件
	ErrInvalidRecordType = errors.New("invalid record type filter")
)

// verifyConcurrency 单次验证流程中并发执行的 DNS 查询数上限。
const verifyConcurrency = 4

// dkimKeyBits DKIM 签名密钥的 RSA 位数。
const dkimKeyBits = 2048

// DomainProvider 第三方域名认证服务商的能力抽象。
type DomainProvider interface {
	Register(ctx context.Context, domainName string) (*provider.Registration, error)
	Validate(ctx context.Context, providerID int64) (*provider.Validation, error)
}

// DNSLookuper DNS 查询能力抽象，生产环境由 dnsx.Client 实现。
type DNSLookuper interface {
	Lookup(ctx context.Context, name, recordType string) ([]string, error)
}

// DomainTrustService 域名信任服务
//
// 负责域名登记（生成待发布的 DNS 记录模板与 DKIM 密钥对）
// 和域名验证（线上解析逐条比对并汇总判定）。
type DomainTrustService struct {
	store    storage.Store
	dns      DNSLookuper
	provider DomainProvider // 未接入时为 nil
	cfg      config.DNSConfig
	logger   *zap.Logger
}

// NewDomainTrustService 创建域名信任服务
func NewDomainTrustService(store storage.Store, dns DNSLookuper, prov DomainProvider, cfg config.DNSConfig, logger *zap.Logger) *DomainTrustService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DomainTrustService{
		store:    store,
		dns:      dns,
		provider: prov,
		cfg:      cfg,
		logger:   logger,
	}
}

// AddDomainInput 登记域名的输入
type AddDomainInput struct {
	AdminID string
	Name    string
}

// AddDomain 登记域名并生成待发布的 DNS 记录
//
// 流程：
//  1. 校验域名语法并转小写
//  2. 同一管理员下域名唯一（不同管理员可以登记同名域名）
//  3. 生成 2048 位 RSA DKIM 密钥对
//  4. 生成确定性的记录模板（A / MX / SPF / DKIM / DMARC）
//  5. 如果接入了服务商，在服务商侧登记并追加其要求的记录
//  6. 域名与全部记录在同一事务中落库，失败不留部分数据
func (s *DomainTrustService) AddDomain(ctx context.Context, input AddDomainInput) (*domain.Domain, []*domain.DNSRecord, error) {
	name, err := domain.NormalizeHostname(input.Name)
	if err != nil {
		return nil, nil, err
	}

	// 同一管理员下不允许重复登记
	if _, err := s.store.GetDomainByNameAndAdmin(name, input.AdminID); err == nil {
		return nil, nil, ErrDomainAlreadyExists
	}

	privateKeyPEM, publicKeyTXT, err := generateDKIMKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("generate dkim key pair: %w", err)
	}

	now := time.Now().UTC()
	d := &domain.Domain{
		ID:             uuid.NewString(),
		Name:           name,
		AdminID:        input.AdminID,
		Verified:       false,
		DKIMSelector:   s.cfg.DKIMSelector,
		DKIMPrivateKey: privateKeyPEM,
		DKIMPublicKey:  publicKeyTXT,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	records := s.recordTemplate(d, now)

	// 服务商登记失败直接报错，不落库，保持可重试
	if s.provider != nil {
		registration, err := s.provider.Register(ctx, name)
		if err != nil {
			return nil, nil, fmt.Errorf("provider registration: %w", err)
		}
		d.ProviderID = strconv.FormatInt(registration.ID, 10)
		for _, rec := range registration.Records {
			records = append(records, &domain.DNSRecord{
				ID:        uuid.NewString(),
				DomainID:  d.ID,
				Type:      domain.RecordType(strings.ToUpper(rec.Type)),
				Host:      rec.Host,
				Value:     rec.Value,
				TTL:       s.cfg.RecordTTL,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	}

	if err := s.store.CreateDomainWithRecords(d, records); err != nil {
		if errors.Is(err, storage.ErrDomainExists) {
			return nil, nil, ErrDomainAlreadyExists
		}
		return nil, nil, fmt.Errorf("persist domain: %w", err)
	}

	s.logger.Info("domain registered",
		zap.String("domain", name),
		zap.String("admin_id", input.AdminID),
		zap.Int("records", len(records)),
		zap.Bool("provider", d.ProviderID != ""))

	return d, records, nil
}

// recordTemplate 生成平台要求的基础记录模板。
func (s *DomainTrustService) recordTemplate(d *domain.Domain, now time.Time) []*domain.DNSRecord {
	mxPriority := 10
	newRecord := func(t domain.RecordType, host, value string, priority *int) *domain.DNSRecord {
		return &domain.DNSRecord{
			ID:        uuid.NewString(),
			DomainID:  d.ID,
			Type:      t,
			Host:      host,
			Value:     value,
			Priority:  priority,
			TTL:       s.cfg.RecordTTL,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	return []*domain.DNSRecord{
		// 收信主机的 A 记录
		newRecord(domain.RecordTypeA, "mail", s.cfg.ServerIP, nil),
		// 根域名 MX 指向平台收信主机
		newRecord(domain.RecordTypeMX, domain.ApexHost, s.cfg.MailHost, &mxPriority),
		// SPF：授权 MX 主机和平台服务器发信
		newRecord(domain.RecordTypeTXT, domain.ApexHost,
			fmt.Sprintf("v=spf1 a mx ip4:%s ~all", s.cfg.ServerIP), nil),
		// DKIM 公钥
		newRecord(domain.RecordTypeTXT, s.cfg.DKIMSelector+"._domainkey",
			"v=DKIM1; k=rsa; p="+d.DKIMPublicKey, nil),
		// DMARC 策略
		newRecord(domain.RecordTypeTXT, "_dmarc",
			fmt.Sprintf("v=DMARC1; p=%s; rua=mailto:dmarc@%s", s.cfg.DMARCPolicy, d.Name), nil),
	}
}

// GetDomain 获取域名（校验所有者）
func (s *DomainTrustService) GetDomain(domainID, adminID string) (*domain.Domain, error) {
	d, err := s.store.GetDomain(domainID)
	if err != nil {
		return nil, ErrDomainNotFound
	}
	if d.AdminID != adminID {
		return nil, ErrNotDomainOwner
	}
	return d, nil
}

// ListDomains 列出管理员名下的全部域名
func (s *DomainTrustService) ListDomains(adminID string) ([]*domain.Domain, error) {
	return s.store.ListDomainsByAdminID(adminID)
}

// ListPublishedRecords 返回域名记录的发布格式（"@" 已解析为完整主机名）
func (s *DomainTrustService) ListPublishedRecords(domainID, adminID string) ([]domain.PublishedRecord, error) {
	d, err := s.GetDomain(domainID, adminID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListDNSRecords(d.ID, "")
	if err != nil {
		return nil, err
	}
	published := make([]domain.PublishedRecord, 0, len(records))
	for _, rec := range records {
		published = append(published, rec.Publication(d.Name))
	}
	return published, nil
}

// VerifyDomain 对域名执行一轮完整验证并返回报告
//
// typeFilter 非空时只检查该类型的记录，但整体 verified 判定
// 仍然要求全部记录通过，部分检查不会把域名翻成已验证。
//
// 每条记录独立做线上解析：
//   - 解析失败不中断流程，错误写入该条的检查结果
//   - 线上观测到非空的不同值时，存量值被观测值覆盖（自愈），
//     该条标记为未验证，下一轮按新值比对
//
// 设置了服务商 ID 时追加服务商侧校验，最终判定为
// 全部记录通过 AND 服务商整体通过。流程幂等，可重复触发。
func (s *DomainTrustService) VerifyDomain(ctx context.Context, domainID, adminID string, typeFilter domain.RecordType) (*domain.VerificationReport, error) {
	d, err := s.GetDomain(domainID, adminID)
	if err != nil {
		return nil, err
	}

	if typeFilter != "" {
		switch typeFilter {
		case domain.RecordTypeA, domain.RecordTypeMX, domain.RecordTypeTXT, domain.RecordTypeCNAME:
		default:
			return nil, ErrInvalidRecordType
		}
	}

	records, err := s.store.ListDNSRecords(d.ID, typeFilter)
	if err != nil {
		return nil, err
	}

	report := &domain.VerificationReport{
		DomainID:   d.ID,
		DomainName: d.Name,
		Records:    make([]domain.RecordCheck, len(records)),
		CheckedAt:  time.Now().UTC(),
	}

	// 逐条并发解析，单条失败不影响其他记录
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			report.Records[i] = s.checkRecord(gctx, d, rec)
			return nil
		})
	}
	_ = g.Wait()

	// 服务商校验先于落库：子检查的判定会回写到对应记录上
	providerValid := true
	if d.ProviderID != "" {
		report.Provider = s.checkProvider(ctx, d, records, report)
		providerValid = report.Provider.Valid
	}

	allMatch := true
	for i, rec := range records {
		if !report.Records[i].Match {
			allMatch = false
		}
		rec.Verified = report.Records[i].Match
		if err := s.store.SaveDNSRecord(rec); err != nil {
			s.logger.Warn("save dns record failed",
				zap.String("record_id", rec.ID), zap.Error(err))
		}
	}

	fullPass := allMatch && providerValid

	// 只检查子集时不改动域名的整体验证状态
	if typeFilter != "" {
		report.Verified = d.Verified
		s.logger.Info("partial domain verification completed",
			zap.String("domain", d.Name),
			zap.String("type", string(typeFilter)),
			zap.Bool("pass", fullPass))
		return report, nil
	}

	report.Verified = fullPass

	if d.Verified != fullPass {
		d.Verified = fullPass
		if fullPass {
			now := time.Now().UTC()
			d.VerifiedAt = &now
		} else {
			d.VerifiedAt = nil
		}
		if err := s.store.SaveDomain(d); err != nil {
			return nil, fmt.Errorf("save domain: %w", err)
		}
	}

	s.logger.Info("domain verification completed",
		zap.String("domain", d.Name),
		zap.Bool("verified", report.Verified),
		zap.Int("records", len(records)))

	return report, nil
}

// checkRecord 对单条记录做线上解析和比对，必要时自愈存量值。
func (s *DomainTrustService) checkRecord(ctx context.Context, d *domain.Domain, rec *domain.DNSRecord) domain.RecordCheck {
	name := rec.LookupName(d.Name)
	check := domain.RecordCheck{
		RecordID: rec.ID,
		Type:     rec.Type,
		Name:     name,
		Expected: rec.Value,
	}

	values, err := s.dns.Lookup(ctx, name, string(rec.Type))
	if err != nil {
		check.Error = err.Error()
		return check
	}
	check.Observed = values

	for _, value := range values {
		if dnsx.Equal(string(rec.Type), rec.Value, value) {
			check.Match = true
			return check
		}
	}

	// 未命中且线上有非空观测值：用观测值覆盖存量值，
	// 管理员看到的始终是线上实际存在的记录
	if len(values) > 0 && values[0] != "" && values[0] != rec.Value {
		rec.Value = values[0]
		check.Healed = true
	}
	return check
}

// checkProvider 执行服务商侧校验并把子检查对应回本地记录
//
// 关联到记录的子检查直接决定该条记录的验证标记：
// 服务商托管的记录（如转发 CNAME）本地解析可能看不到，
// 这类记录以服务商的判定为准。
func (s *DomainTrustService) checkProvider(ctx context.Context, d *domain.Domain, records []*domain.DNSRecord, report *domain.VerificationReport) *domain.ProviderSummary {
	summary := &domain.ProviderSummary{}

	if s.provider == nil {
		summary.Error = provider.ErrProviderDisabled.Error()
		return summary
	}

	providerID, err := strconv.ParseInt(d.ProviderID, 10, 64)
	if err != nil {
		summary.Error = fmt.Sprintf("invalid provider id %q", d.ProviderID)
		return summary
	}

	validation, err := s.provider.Validate(ctx, providerID)
	if err != nil {
		summary.Error = err.Error()
		return summary
	}

	summary.Valid = validation.Valid
	summary.SubChecks = make([]domain.ProviderSubCheck, 0, len(validation.SubChecks))
	for _, sub := range validation.SubChecks {
		check := domain.ProviderSubCheck{
			Name:   sub.Name,
			Host:   sub.Host,
			Valid:  sub.Valid,
			Reason: sub.Reason,
		}
		if i := matchSubCheck(d, records, sub); i >= 0 {
			if check.Host == "" {
				check.Host = records[i].LookupName(d.Name)
			}
			report.Records[i].Match = sub.Valid
		}
		summary.SubChecks = append(summary.SubChecks, check)
	}
	return summary
}

// matchSubCheck 按主机名把服务商子检查关联到本地记录，找不到返回 -1。
//
// 子检查带主机名时按完整主机名或裸标签精确匹配；
// 否则去掉 "_cname" / "_record" 之类的后缀，把剩余部分
// 当作记录主机名的子串来找。
func matchSubCheck(d *domain.Domain, records []*domain.DNSRecord, sub provider.SubCheck) int {
	host := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(sub.Host)), ".")
	key := strings.ToLower(strings.TrimSpace(sub.Name))
	for _, suffix := range []string{"_cname", "_record", "_txt"} {
		key = strings.TrimSuffix(key, suffix)
	}

	for i, rec := range records {
		name := strings.ToLower(rec.LookupName(d.Name))
		if host != "" {
			if name == host || strings.ToLower(rec.Host) == host {
				return i
			}
			continue
		}
		if key != "" && strings.Contains(name, key) {
			return i
		}
	}
	return -1
}

// ReverifyVerified 对全部已验证域名复核一轮 DNS 记录
//
// DNS 记录可能在验证通过后被改动或删除，后台任务定期
// 复核并撤销失效域名的验证状态。复核通过协程池执行，
// 限制对解析器的并发压力。
func (s *DomainTrustService) ReverifyVerified(ctx context.Context) error {
	domains, err := s.store.ListVerifiedDomains()
	if err != nil {
		return err
	}
	if len(domains) == 0 {
		return nil
	}

	workers := pool.NewWorkerPool(2, len(domains), s.logger)
	workers.Start(ctx)

	for _, d := range domains {
		workers.Submit(func() {
			report, err := s.VerifyDomain(ctx, d.ID, d.AdminID, "")
			if err != nil {
				s.logger.Warn("background reverification failed",
					zap.String("domain", d.Name),
					zap.Error(err),
				)
				return
			}
			if !report.Verified {
				s.logger.Warn("domain lost verified status",
					zap.String("domain", d.Name),
					zap.String("domain_id", d.ID),
				)
			}
		})
	}

	workers.Stop()
	return nil
}

// generateDKIMKeyPair 生成 DKIM 签名密钥对
//
// 返回 PEM 编码的私钥和去掉头尾与空白的公钥
// （后者直接拼进 DKIM TXT 记录的 p= 字段）。
func generateDKIMKeyPair() (privateKeyPEM, publicKeyTXT string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, dkimKeyBits)
	if err != nil {
		return "", "", err
	}

	privateBlock := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	privateKeyPEM = string(pem.EncodeToMemory(privateBlock))

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", err
	}
	publicBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicDER,
	}
	publicPEM := string(pem.EncodeToMemory(publicBlock))

	// 去掉 PEM 头尾和换行，得到纯 base64 公钥
	publicKeyTXT = strings.NewReplacer(
		"-----BEGIN PUBLIC KEY-----", "",
		"-----END PUBLIC KEY-----", "",
		"\n", "",
		"\r", "",
		" ", "",
	).Replace(publicPEM)

	return privateKeyPEM, publicKeyTXT, nil
}
