package httptransport

import (
	"mailforge/backend/internal/auth"
	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/service"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 域名错误
	service.ErrDomainAlreadyExists: "域名已存在",
	service.ErrDomainNotFound:      "域名不存在",
	service.ErrNotDomainOwner:      "您不是该域名的所有者",
	service.ErrInvalidRecordType:   "不支持的记录类型",
	service.ErrDomainNotVerified:   "域名尚未通过验证",

	// 邮箱错误
	service.ErrMailboxNotFound: "邮箱不存在",
	service.ErrMailboxExists:   "邮箱地址已被占用",
	service.ErrMailboxInactive: "邮箱已停用",

	// 邮件错误
	service.ErrMessageNotFound: "邮件不存在",

	// 认证错误
	auth.ErrInvalidCredentials: "用户名或密码错误",
	auth.ErrUserInactive:       "账户已被禁用",
	auth.ErrInvalidEmail:       "邮箱格式无效",

	// 输入校验错误
	domain.ErrInvalidHostname:  "域名格式无效",
	domain.ErrInvalidLocalPart: "邮箱前缀格式无效",
	domain.ErrPasswordTooShort: "密码长度至少8位",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"

	// 认证相关
	MsgAuthRequired       = "需要登录认证"
	MsgInvalidCredentials = "用户名或密码错误"
	MsgTokenExpired       = "登录已过期，请重新登录"
	MsgTokenInvalid       = "无效的访问令牌"

	// 域名相关
	MsgDomainAddFailed     = "添加域名失败"
	MsgDomainListFailed    = "获取域名列表失败"
	MsgDomainGetFailed     = "获取域名详情失败"
	MsgDomainVerifyFailed  = "验证域名失败"
	MsgDomainRecordsFailed = "获取DNS记录失败"

	// 邮箱相关
	MsgMailboxCreateFailed = "创建邮箱失败"
	MsgMailboxListFailed   = "获取邮箱列表失败"
	MsgMailboxDeleteFailed = "删除邮箱失败"

	// 邮件相关
	MsgMessageListFailed     = "获取邮件列表失败"
	MsgMessageGetFailed      = "获取邮件详情失败"
	MsgMessageMarkReadFailed = "标记已读失败"

	// 用户相关
	MsgUserNotFound  = "用户不存在"
	MsgUserGetFailed = "获取用户信息失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
