package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"
)

// 服务商相关的错误定义
var (
	// ErrProviderDisabled 表示服务商接入未启用
	ErrProviderDisabled = errors.New("domain provider is not enabled")
	// ErrDomainNotRegistered 表示域名尚未在服务商侧登记
	ErrDomainNotRegistered = errors.New("domain is not registered with provider")
)

// APIError 封装服务商返回的非 2xx 响应。
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Record 服务商要求客户发布的一条 DNS 记录。
type Record struct {
	Name  string // 子校验名称，例如 "mail_cname"、"dkim1"
	Type  string // 记录类型
	Host  string // 记录主机名
	Value string // 记录值
}

// Registration 域名在服务商侧登记成功后的结果。
type Registration struct {
	ID      int64    // 服务商分配的域名标识
	Records []Record // 需要客户发布的 DNS 记录
}

// SubCheck 服务商校验结果中的单项子校验。
type SubCheck struct {
	Name   string // 子校验名称
	Host   string // 对应的记录主机名
	Valid  bool   // 该项是否通过
	Reason string // 未通过时的原因说明
}

// Validation 服务商对域名的整体校验结果。
type Validation struct {
	ID        int64      // 服务商域名标识
	Valid     bool       // 整体是否通过
	SubChecks []SubCheck // 各项子校验明细
}

// Client 域名认证服务商的 HTTP 客户端
//
// 对接 SendGrid 风格的域名白标 (domain whitelabel) API：
// 登记域名换取需要发布的 DNS 记录，之后触发服务商侧校验。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient 创建服务商客户端
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// sendgrid whitelabel API 的请求与响应结构
type registerRequest struct {
	Domain            string `json:"domain"`
	AutomaticSecurity bool   `json:"automatic_security"`
	Default           bool   `json:"default"`
}

type dnsEntry struct {
	Valid bool   `json:"valid"`
	Type  string `json:"type"`
	Host  string `json:"host"`
	Data  string `json:"data"`
}

type registerResponse struct {
	ID     int64               `json:"id"`
	Domain string              `json:"domain"`
	Valid  bool                `json:"valid"`
	DNS    map[string]dnsEntry `json:"dns"`
}

type validationDetail struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

type validateResponse struct {
	ID                int64                       `json:"id"`
	Valid             bool                        `json:"valid"`
	ValidationResults map[string]validationDetail `json:"validation_results"`
}

// Register 在服务商侧登记域名
//
// 返回服务商分配的域名标识和需要发布的 DNS 记录列表。
// 记录按子校验名称排序，保证结果稳定。
func (c *Client) Register(ctx context.Context, domainName string) (*Registration, error) {
	body := registerRequest{
		Domain:            domainName,
		AutomaticSecurity: true,
	}

	var resp registerResponse
	if err := c.do(ctx, http.MethodPost, "/whitelabel/domains", body, &resp); err != nil {
		return nil, fmt.Errorf("register domain %s: %w", domainName, err)
	}

	names := make([]string, 0, len(resp.DNS))
	for name := range resp.DNS {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		entry := resp.DNS[name]
		records = append(records, Record{
			Name:  name,
			Type:  entry.Type,
			Host:  entry.Host,
			Value: entry.Data,
		})
	}

	return &Registration{ID: resp.ID, Records: records}, nil
}

// Validate 触发服务商侧的域名校验并返回结果
//
// 子校验按名称排序，保证结果稳定。
func (c *Client) Validate(ctx context.Context, providerID int64) (*Validation, error) {
	if providerID <= 0 {
		return nil, ErrDomainNotRegistered
	}

	path := "/whitelabel/domains/" + strconv.FormatInt(providerID, 10) + "/validate"

	var resp validateResponse
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("validate domain %d: %w", providerID, err)
	}

	names := make([]string, 0, len(resp.ValidationResults))
	for name := range resp.ValidationResults {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]SubCheck, 0, len(names))
	for _, name := range names {
		detail := resp.ValidationResults[name]
		checks = append(checks, SubCheck{
			Name:   name,
			Valid:  detail.Valid,
			Reason: detail.Reason,
		})
	}

	return &Validation{
		ID:        resp.ID,
		Valid:     resp.Valid,
		SubChecks: checks,
	}, nil
}

// do 执行一次带认证的 API 请求并解码 JSON 响应。
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 响应体最多读取 1 MiB
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
