package security

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Screener 入站附件安全筛查器
//
// 对入站邮件的附件做静态检查，命中的附件在落库前被剥离。
// 只拦截明确危险的内容，不做白名单限制。
type Screener struct {
	dangerousExtensions map[string]bool
}

// NewScreener 创建附件筛查器
func NewScreener() *Screener {
	return &Screener{
		dangerousExtensions: map[string]bool{
			".exe": true,
			".bat": true,
			".cmd": true,
			".scr": true,
			".pif": true,
			".com": true,
			".vbs": true,
			".jar": true,
			".msi": true,
			".ps1": true,
		},
	}
}

// 可执行文件的魔数
var executableSignatures = [][]byte{
	{0x4D, 0x5A},             // PE
	{0x7F, 0x45, 0x4C, 0x46}, // ELF
	{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O 32
	{0xFE, 0xED, 0xFA, 0xCF}, // Mach-O 64
	{0xCE, 0xFA, 0xED, 0xFE}, // Mach-O（小端）
	{0xCF, 0xFA, 0xED, 0xFE},
}

// Check 检查单个附件，返回是否放行及拦截原因
func (s *Screener) Check(filename string, content []byte) (bool, string) {
	ext := strings.ToLower(filepath.Ext(filename))
	if s.dangerousExtensions[ext] {
		return false, "dangerous file extension: " + ext
	}

	for _, sig := range executableSignatures {
		if bytes.HasPrefix(content, sig) {
			return false, "executable content detected"
		}
	}

	return true, ""
}
