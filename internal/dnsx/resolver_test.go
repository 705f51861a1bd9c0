package dnsx

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver 测试用的假解析器
type fakeResolver struct {
	hosts  map[string][]string
	cnames map[string]string
	mxs    map[string][]*net.MX
	txts   map[string][]string
	err    error
}

func (f *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hosts[host], nil
}

func (f *fakeResolver) LookupCNAME(_ context.Context, host string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if cname, ok := f.cnames[host]; ok {
		return cname, nil
	}
	return host + ".", nil
}

func (f *fakeResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.mxs[name], nil
}

func (f *fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.txts[name], nil
}

func TestLookupA(t *testing.T) {
	resolver := &fakeResolver{
		hosts: map[string][]string{
			"mail.example.com": {"192.0.2.10", "2001:db8::1"},
		},
	}
	client := NewClient(resolver, time.Second)

	t.Run("返回IPv4地址并过滤IPv6", func(t *testing.T) {
		values, err := client.Lookup(context.Background(), "mail.example.com", "A")

		require.NoError(t, err)
		assert.Equal(t, []string{"192.0.2.10"}, values)
	})

	t.Run("无记录返回ErrNoAnswer", func(t *testing.T) {
		_, err := client.Lookup(context.Background(), "missing.example.com", "A")

		require.Error(t, err)
		assert.True(t, IsNotFound(err))

		var lookupErr *LookupError
		require.ErrorAs(t, err, &lookupErr)
		assert.Equal(t, "missing.example.com", lookupErr.Name)
		assert.Equal(t, "A", lookupErr.Type)
	})
}

func TestLookupMX(t *testing.T) {
	resolver := &fakeResolver{
		mxs: map[string][]*net.MX{
			"example.com": {
				{Host: "backup.example.com.", Pref: 20},
				{Host: "MX.Example.COM.", Pref: 10},
			},
		},
	}
	client := NewClient(resolver, time.Second)

	values, err := client.Lookup(context.Background(), "example.com", "MX")

	require.NoError(t, err)
	// 按优先级排序，主机名转小写并去掉尾部的点
	assert.Equal(t, []string{"mx.example.com", "backup.example.com"}, values)
}

func TestLookupCNAME(t *testing.T) {
	resolver := &fakeResolver{
		cnames: map[string]string{
			"alias.example.com": "Target.Example.Com.",
		},
	}
	client := NewClient(resolver, time.Second)

	t.Run("返回规整后的规范名", func(t *testing.T) {
		values, err := client.Lookup(context.Background(), "alias.example.com", "CNAME")

		require.NoError(t, err)
		assert.Equal(t, []string{"target.example.com"}, values)
	})

	t.Run("无CNAME链视为无记录", func(t *testing.T) {
		// LookupCNAME 对无 CNAME 的名字返回查询名本身
		_, err := client.Lookup(context.Background(), "plain.example.com", "CNAME")

		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}

func TestLookupTXT(t *testing.T) {
	resolver := &fakeResolver{
		txts: map[string][]string{
			"example.com": {"v=spf1 include:mailforge.dev ~all"},
		},
	}
	client := NewClient(resolver, time.Second)

	values, err := client.Lookup(context.Background(), "example.com", "TXT")

	require.NoError(t, err)
	assert.Equal(t, []string{"v=spf1 include:mailforge.dev ~all"}, values)
}

func TestLookupErrors(t *testing.T) {
	t.Run("不支持的记录类型", func(t *testing.T) {
		client := NewClient(&fakeResolver{}, time.Second)

		_, err := client.Lookup(context.Background(), "example.com", "SRV")

		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("底层解析错误被包装", func(t *testing.T) {
		netErr := &net.DNSError{Err: "no such host", Name: "example.com", IsNotFound: true}
		client := NewClient(&fakeResolver{err: netErr}, time.Second)

		_, err := client.Lookup(context.Background(), "example.com", "TXT")

		require.Error(t, err)
		assert.True(t, IsNotFound(err))

		var lookupErr *LookupError
		require.ErrorAs(t, err, &lookupErr)
		assert.True(t, errors.Is(lookupErr.Err, netErr) || lookupErr.Err == error(netErr))
	})
}

func TestNormalizeTXT(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "去掉包裹引号",
			input:    `"v=spf1 include:mailforge.dev ~all"`,
			expected: "v=spf1 include:mailforge.dev ~all",
		},
		{
			name:     "折叠多余空白",
			input:    "  v=DMARC1;   p=quarantine  ",
			expected: "v=dmarc1;p=quarantine",
		},
		{
			name:     "大写转小写",
			input:    "V=SPF1 Include:Mailforge.Dev ~ALL",
			expected: "v=spf1 include:mailforge.dev ~all",
		},
		{
			name:     "分号周围的空格",
			input:    "v=DKIM1; k=rsa; p=MIIBIjAN",
			expected: "v=dkim1;k=rsa;p=miibijan",
		},
		{
			name:     "空字符串",
			input:    "",
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeTXT(tc.input))
		})
	}
}

func TestEqual(t *testing.T) {
	t.Run("TXT规整后相等", func(t *testing.T) {
		assert.True(t, Equal("TXT", `"v=DKIM1; k=rsa"`, "v=dkim1;k=rsa"))
		assert.False(t, Equal("TXT", "v=spf1 ~all", "v=spf1 -all"))
	})

	t.Run("MX主机名规整后相等", func(t *testing.T) {
		assert.True(t, Equal("MX", "mail.example.com", "MAIL.example.com."))
		assert.False(t, Equal("MX", "mail.example.com", "mx.example.com"))
	})

	t.Run("A记录精确比较", func(t *testing.T) {
		assert.True(t, Equal("A", "192.0.2.10", " 192.0.2.10"))
		assert.False(t, Equal("A", "192.0.2.10", "192.0.2.11"))
	})

	t.Run("CNAME规整后相等", func(t *testing.T) {
		assert.True(t, Equal("CNAME", "target.example.com.", "Target.Example.Com"))
	})
}

func TestCanonicalHost(t *testing.T) {
	assert.Equal(t, "mail.example.com", CanonicalHost(" Mail.Example.COM. "))
	assert.Equal(t, "", CanonicalHost(""))
}
