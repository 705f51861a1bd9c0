package domain

import "time"

// Mailbox 托管域名下的一个邮箱账户。
//
// 核心对邮箱只读：网关按地址解析邮箱并检查所属域名的 verified 标志，
// 不在协议路径上创建或修改邮箱。
type Mailbox struct {
	ID        string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address   string `json:"address" gorm:"type:varchar(254);uniqueIndex;not null"`
	LocalPart string `json:"localPart" gorm:"type:varchar(64)"`
	DomainID  string `json:"domainId" gorm:"type:varchar(36);index;not null"`

	// PasswordHash bcrypt 哈希，SMTP AUTH 按此校验凭证
	PasswordHash string `json:"-" gorm:"type:varchar(255)"`
	// SMTPPasswordEnc AES 加密的原始口令，供外发中继构造转发凭证
	SMTPPasswordEnc string `json:"-" gorm:"type:text"`

	IsActive  bool      `json:"isActive" gorm:"default:true;index"`
	Quota     int       `json:"quota" gorm:"default:5120"` // MB
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// MailboxRef 邮箱目录查询结果：收件判定所需的最小视图。
type MailboxRef struct {
	ID             string `json:"id"`
	Address        string `json:"address"`
	DomainID       string `json:"domainId"`
	DomainVerified bool   `json:"domainVerified"`
}
