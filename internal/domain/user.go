package domain

import "time"

// UserRole 用户角色
type UserRole string

const (
	// RoleAdmin 平台管理员，可注册域名并管理其下邮箱
	RoleAdmin UserRole = "admin"
	// RoleOperator 运维角色，只读
	RoleOperator UserRole = "operator"
)

// User 平台管理员账户（域名的所有者身份）。
type User struct {
	ID           string   `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string   `json:"email" gorm:"type:varchar(254);uniqueIndex;not null"`
	Username     string   `json:"username" gorm:"type:varchar(32);uniqueIndex"`
	PasswordHash string   `json:"-" gorm:"type:varchar(255)"`
	Role         UserRole `json:"role" gorm:"type:varchar(20);default:'admin'"`
	IsActive     bool     `json:"isActive" gorm:"default:true"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}
