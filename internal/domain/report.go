package domain

import "time"

// RecordCheck 单条 DNS 记录在一次验证流程中的检查结果。
type RecordCheck struct {
	RecordID string     `json:"recordId"`
	Type     RecordType `json:"type"`
	Name     string     `json:"name"`     // 实际查询的主机名
	Expected string     `json:"expected"` // 期望值（检查时的存量值）
	Observed []string   `json:"observed"` // 本次线上解析返回的值
	Match    bool       `json:"match"`
	Healed   bool       `json:"healed,omitempty"` // 存量值被线上观测值覆盖
	Error    string     `json:"error,omitempty"`  // 解析失败原因（NXDOMAIN / 超时等）
}

// ProviderSubCheck 第三方服务商返回的单项子检查结果。
type ProviderSubCheck struct {
	Name   string `json:"name"`
	Host   string `json:"host,omitempty"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ProviderSummary 第三方服务商本轮校验的汇总。
type ProviderSummary struct {
	Valid     bool               `json:"valid"`
	SubChecks []ProviderSubCheck `json:"subChecks,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// VerificationReport 一次域名验证流程的完整报告。
//
// 验证请求总是返回完整报告，调用方据此区分
// "DNS 尚未生效" 与 "DNS 配置错误"。
type VerificationReport struct {
	DomainID   string           `json:"domainId"`
	DomainName string           `json:"domainName"`
	Verified   bool             `json:"verified"`
	Records    []RecordCheck    `json:"records"`
	Provider   *ProviderSummary `json:"provider,omitempty"`
	CheckedAt  time.Time        `json:"checkedAt"`
}
