package dnsx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

// 解析相关的错误定义
var (
	// ErrUnsupportedType 表示不支持的记录类型
	ErrUnsupportedType = errors.New("unsupported dns record type")
	// ErrNoAnswer 表示查询成功但没有任何记录
	ErrNoAnswer = errors.New("no dns records found")
)

// LookupError 封装一次失败的 DNS 查询，保留查询名与记录类型。
type LookupError struct {
	Name string // 查询的主机名
	Type string // 记录类型
	Err  error  // 底层解析错误
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("dns lookup %s %s: %v", e.Type, e.Name, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// IsNotFound 判断错误是否为"域名不存在/无记录"，
// 区别于超时和网络故障等临时性错误。
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNoAnswer) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	return false
}

// Resolver 定义域名验证所需的 DNS 查询能力。
//
// 与 net.Resolver 的签名保持一致，便于生产环境直接注入
// 标准解析器，测试环境注入假实现。
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Client 基于标准解析器的 DNS 查询客户端，带统一超时控制。
type Client struct {
	resolver Resolver
	timeout  time.Duration
}

// NewClient 创建 DNS 查询客户端
//
// resolver 为 nil 时使用系统默认解析器；
// timeout 为每次查询的独立超时时间，非正值表示不限制。
func NewClient(resolver Resolver, timeout time.Duration) *Client {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Client{resolver: resolver, timeout: timeout}
}

// Lookup 按记录类型查询主机名，返回规整后的记录值列表
//
// 各类型的返回值形态：
//   - A:     IPv4 地址字符串（过滤 IPv6 结果）
//   - CNAME: 规范名（去掉尾部的点，转小写）
//   - MX:    交换机主机名（去掉尾部的点，转小写，按优先级排序）
//   - TXT:   原始 TXT 字符串
//
// 查询失败返回 *LookupError；查询成功但无记录返回包裹
// ErrNoAnswer 的 *LookupError。
func (c *Client) Lookup(ctx context.Context, name, recordType string) ([]string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		values []string
		err    error
	)

	switch strings.ToUpper(recordType) {
	case "A":
		values, err = c.lookupA(ctx, name)
	case "CNAME":
		values, err = c.lookupCNAME(ctx, name)
	case "MX":
		values, err = c.lookupMX(ctx, name)
	case "TXT":
		values, err = c.resolver.LookupTXT(ctx, name)
	default:
		return nil, &LookupError{Name: name, Type: recordType, Err: ErrUnsupportedType}
	}

	if err != nil {
		return nil, &LookupError{Name: name, Type: recordType, Err: err}
	}
	if len(values) == 0 {
		return nil, &LookupError{Name: name, Type: recordType, Err: ErrNoAnswer}
	}
	return values, nil
}

func (c *Client) lookupA(ctx context.Context, name string) ([]string, error) {
	addrs, err := c.resolver.LookupHost(ctx, name)
	if err != nil {
		return nil, err
	}
	ips := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		ip := net.ParseIP(addr)
		if ip != nil && ip.To4() != nil {
			ips = append(ips, ip.String())
		}
	}
	return ips, nil
}

func (c *Client) lookupCNAME(ctx context.Context, name string) ([]string, error) {
	cname, err := c.resolver.LookupCNAME(ctx, name)
	if err != nil {
		return nil, err
	}
	cname = CanonicalHost(cname)
	if cname == "" || cname == CanonicalHost(name) {
		// LookupCNAME 在没有 CNAME 链时返回查询名本身
		return nil, nil
	}
	return []string{cname}, nil
}

func (c *Client) lookupMX(ctx context.Context, name string) ([]string, error) {
	records, err := c.resolver.LookupMX(ctx, name)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Pref < records[j].Pref
	})
	hosts := make([]string, 0, len(records))
	for _, mx := range records {
		host := CanonicalHost(mx.Host)
		if host != "" {
			hosts = append(hosts, host)
		}
	}
	return hosts, nil
}

// CanonicalHost 规整主机名：去掉尾部的点并转小写。
func CanonicalHost(host string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
}

// NormalizeTXT 规整 TXT 记录值用于比较
//
// DNS 服务商在展示和返回 TXT 记录时经常带引号或把长记录
// 切分成多段，此处去掉包裹引号、折叠空白并转小写，
// 使语义相同的记录能够判等。
func NormalizeTXT(value string) string {
	v := strings.TrimSpace(value)
	v = strings.Trim(v, `"`)
	v = strings.Join(strings.Fields(v), " ")
	// 分号后的空格不影响语义，统一去除
	v = strings.ReplaceAll(v, "; ", ";")
	v = strings.ReplaceAll(v, " ;", ";")
	return strings.ToLower(v)
}

// Equal 按记录类型比较期望值与观测值是否一致
//
// TXT 记录先经 NormalizeTXT 规整再比较，其余类型在
// 主机名规整后做精确比较。
func Equal(recordType, expected, observed string) bool {
	switch strings.ToUpper(recordType) {
	case "TXT":
		return NormalizeTXT(expected) == NormalizeTXT(observed)
	case "A":
		return strings.TrimSpace(expected) == strings.TrimSpace(observed)
	default:
		return CanonicalHost(expected) == CanonicalHost(observed)
	}
}
