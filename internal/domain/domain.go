package domain

import (
	"strings"
	"time"
)

// RecordType DNS 记录类型
type RecordType string

const (
	// RecordTypeA A 记录（主机名 -> IPv4 地址）
	RecordTypeA RecordType = "A"
	// RecordTypeMX MX 记录（收信服务器）
	RecordTypeMX RecordType = "MX"
	// RecordTypeTXT TXT 记录（SPF / DKIM / DMARC 等文本记录）
	RecordTypeTXT RecordType = "TXT"
	// RecordTypeCNAME CNAME 记录（别名，第三方服务商常用）
	RecordTypeCNAME RecordType = "CNAME"
)

// ApexHost 表示记录挂在域名根节点（裸域名）上。
const ApexHost = "@"

// Domain 管理员注册的发信域名。
//
// verified 只由验证流程翻转：所有关联 DNS 记录逐条验证通过、
// 且（如果设置了第三方服务商 ID）服务商校验整体通过后才会置 true。
type Domain struct {
	ID      string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name    string `json:"name" gorm:"type:varchar(253);not null;uniqueIndex:idx_domain_name_admin"`
	AdminID string `json:"adminId" gorm:"type:varchar(36);not null;uniqueIndex:idx_domain_name_admin;index"`

	Verified   bool       `json:"verified" gorm:"default:false;index"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`

	// DKIM 签名密钥对：私钥仅服务端保存，公钥发布到 DNS
	DKIMSelector   string `json:"dkimSelector" gorm:"type:varchar(63)"`
	DKIMPrivateKey string `json:"-" gorm:"type:text"`
	DKIMPublicKey  string `json:"dkimPublicKey,omitempty" gorm:"type:text"`

	// ProviderID 第三方域名认证服务商分配的域名标识（未接入时为空）
	ProviderID string `json:"providerId,omitempty" gorm:"type:varchar(64)"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// DNSRecord 域名下的一条待发布 DNS 记录。
//
// verified 在每次验证流程中重新计算，不做缓存推断。
// 同一域名下允许多条同类型记录（例如两个 DKIM selector）。
type DNSRecord struct {
	ID       string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	DomainID string     `json:"domainId" gorm:"type:varchar(36);index;not null"`
	Type     RecordType `json:"type" gorm:"type:varchar(10);not null"`
	Host     string     `json:"host" gorm:"type:varchar(253);not null"` // "@" 或子域名标签
	Value    string     `json:"value" gorm:"type:text;not null"`
	Priority *int       `json:"priority,omitempty"` // 仅 MX 记录有意义
	TTL      int        `json:"ttl" gorm:"default:3600"`
	Verified bool       `json:"verified" gorm:"default:false"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// LookupName 返回该记录做 DNS 查询时使用的完整主机名。
//
// 根节点记录使用裸域名；子域名标签拼接在域名之前；
// 服务商返回的记录可能已经携带完整主机名，此时原样使用。
func (r *DNSRecord) LookupName(domainName string) string {
	switch {
	case r.Host == ApexHost, r.Host == "", strings.EqualFold(r.Host, domainName):
		return domainName
	case strings.HasSuffix(strings.ToLower(r.Host), "."+strings.ToLower(domainName)):
		return r.Host
	default:
		return r.Host + "." + domainName
	}
}

// PublishedRecord 面向管理员展示的记录发布格式（"@" 已解析为裸域名）。
type PublishedRecord struct {
	Type     RecordType `json:"type"`
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	Priority *int       `json:"priority,omitempty"`
	TTL      int        `json:"ttl"`
}

// Publication 将记录转换为发布格式。
func (r *DNSRecord) Publication(domainName string) PublishedRecord {
	return PublishedRecord{
		Type:     r.Type,
		Name:     r.LookupName(domainName),
		Value:    r.Value,
		Priority: r.Priority,
		TTL:      r.TTL,
	}
}
