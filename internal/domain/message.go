package domain

import "time"

// Message 表示入站网关收下的一封邮件。
//
// 每个被接受的 (发件人, 收件人, 正文) 组合在 DATA 阶段只产生一条记录；
// 核心的职责到把记录交给消息存储为止。
type Message struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxID string    `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	From      string    `json:"from" gorm:"type:varchar(254)"`
	To        string    `json:"to" gorm:"type:varchar(254)"`
	Subject   string    `json:"subject" gorm:"type:varchar(500)"`
	Text      string    `json:"text,omitempty" gorm:"type:text"`
	HTML      string    `json:"html,omitempty" gorm:"type:text"`
	IsRead    bool      `json:"isRead" gorm:"default:false;index"`
	CreatedAt time.Time `json:"createdAt"`

	Attachments []*Attachment `json:"attachments,omitempty" gorm:"foreignKey:MessageID"`
}

// Attachment 邮件附件描述。
type Attachment struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MessageID   string `json:"messageId" gorm:"type:varchar(36);index;not null"`
	Filename    string `json:"filename" gorm:"type:varchar(255)"`
	ContentType string `json:"contentType" gorm:"type:varchar(100)"`
	Size        int64  `json:"size"`
	Content     []byte `json:"-"`
}
