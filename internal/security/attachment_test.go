package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScreenerCheck(t *testing.T) {
	s := NewScreener()

	t.Run("普通附件放行", func(t *testing.T) {
		ok, reason := s.Check("report.pdf", []byte("%PDF-1.7 ..."))
		assert.True(t, ok)
		assert.Empty(t, reason)
	})

	t.Run("危险扩展名拦截", func(t *testing.T) {
		cases := []string{"setup.exe", "run.BAT", "script.vbs", "tool.jar", "installer.msi"}
		for _, name := range cases {
			ok, reason := s.Check(name, []byte("anything"))
			assert.False(t, ok, name)
			assert.Contains(t, reason, "extension")
		}
	})

	t.Run("可执行魔数拦截", func(t *testing.T) {
		pe := append([]byte{0x4D, 0x5A}, make([]byte, 64)...)
		ok, reason := s.Check("image.png", pe)
		assert.False(t, ok)
		assert.Contains(t, reason, "executable")

		elf := []byte{0x7F, 0x45, 0x4C, 0x46, 0x02}
		ok, _ = s.Check("data.bin", elf)
		assert.False(t, ok)
	})

	t.Run("空内容放行", func(t *testing.T) {
		ok, _ := s.Check("empty.txt", nil)
		assert.True(t, ok)
	})
}
