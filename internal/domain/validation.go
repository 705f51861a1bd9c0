package domain

import (
	"errors"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidHostname  = errors.New("invalid hostname")
	ErrHostnameTooLong  = errors.New("hostname too long (max 253 chars)")
	ErrInvalidAddress   = errors.New("invalid email address")
	ErrInvalidLocalPart = errors.New("invalid local part format")
	ErrPasswordTooShort = errors.New("password too short (min 8 chars)")
	ErrPasswordTooLong  = errors.New("password too long (max 128 chars)")
)

// 验证常量
const (
	MaxHostnameLength  = 253 // 完整主机名最大长度
	MaxLabelLength     = 63  // 单个标签最大长度
	MaxLocalPartLength = 64  // 邮箱本地部分最大长度
	MaxAddressLength   = 254 // 完整邮箱地址最大长度

	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var (
	// 主机名标签：小写字母、数字、连字符
	hostLabelRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

	// 邮箱本地部分
	localPartRegex = regexp.MustCompile(`^[a-z0-9._%+-]+$`)
)

// ValidateHostname 校验发信域名的语法。
//
// 规则：小写后的各标签只含 [a-z0-9-]，以 "." 连接，
// 末级标签（顶级域）长度至少 2。
func ValidateHostname(name string) error {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return ErrInvalidHostname
	}
	if len(name) > MaxHostnameLength {
		return ErrHostnameTooLong
	}

	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return ErrInvalidHostname
	}
	for _, label := range labels {
		if label == "" || len(label) > MaxLabelLength {
			return ErrInvalidHostname
		}
		if !hostLabelRegex.MatchString(label) {
			return ErrInvalidHostname
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return ErrInvalidHostname
		}
	}

	// 顶级域至少两个字符
	if len(labels[len(labels)-1]) < 2 {
		return ErrInvalidHostname
	}

	return nil
}

// NormalizeHostname 去除空白、转小写并校验语法。
func NormalizeHostname(name string) (string, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if err := ValidateHostname(name); err != nil {
		return "", err
	}
	return name, nil
}

// SplitAddress 把邮箱地址拆成本地部分和域名。
//
// 地址先做小写归一；缺少本地部分或域名时返回 ErrInvalidAddress。
func SplitAddress(address string) (localPart, hostname string, err error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" || len(address) > MaxAddressLength {
		return "", "", ErrInvalidAddress
	}

	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return "", "", ErrInvalidAddress
	}

	return address[:at], address[at+1:], nil
}

// ValidateLocalPart 校验邮箱本地部分。
func ValidateLocalPart(localPart string) error {
	if localPart == "" || len(localPart) > MaxLocalPartLength {
		return ErrInvalidLocalPart
	}
	if !localPartRegex.MatchString(strings.ToLower(localPart)) {
		return ErrInvalidLocalPart
	}
	return nil
}

// ValidatePassword 校验口令长度。
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}
