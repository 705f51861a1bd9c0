package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHostname(t *testing.T) {
	t.Run("合法域名归一化", func(t *testing.T) {
		name, err := NormalizeHostname("  Example.COM ")
		require.NoError(t, err)
		assert.Equal(t, "example.com", name)
	})

	t.Run("非法域名报错", func(t *testing.T) {
		for _, name := range []string{"", "nodots", "-bad.example.com", "bad-.example.com", "exa mple.com", "example.c", "under_score.com"} {
			_, err := NormalizeHostname(name)
			assert.ErrorIs(t, err, ErrInvalidHostname, "name=%q", name)
		}
	})

	t.Run("超长域名报错", func(t *testing.T) {
		long := ""
		for len(long) < MaxHostnameLength {
			long += "abcdefgh."
		}
		long += "com"
		_, err := NormalizeHostname(long)
		assert.ErrorIs(t, err, ErrHostnameTooLong)
	})
}

func TestValidateLocalPart(t *testing.T) {
	assert.NoError(t, ValidateLocalPart("alice.bob+tag%x_1-2"))
	assert.ErrorIs(t, ValidateLocalPart(""), ErrInvalidLocalPart)
	assert.ErrorIs(t, ValidateLocalPart("with space"), ErrInvalidLocalPart)
}
