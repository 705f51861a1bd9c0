package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/monitoring"
	"mailforge/backend/internal/service"
)

// DomainHandler 处理托管域名相关的 HTTP 请求
type DomainHandler struct {
	domains *service.DomainTrustService
	metrics *monitoring.Metrics // 可为 nil
	log     *zap.Logger
}

// NewDomainHandler 创建域名处理器
func NewDomainHandler(domains *service.DomainTrustService, metrics *monitoring.Metrics, log *zap.Logger) *DomainHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &DomainHandler{
		domains: domains,
		metrics: metrics,
		log:     log,
	}
}

type addDomainRequest struct {
	Domain string `json:"domain" binding:"required"`
}

// AddDomain 登记新域名并返回待发布的 DNS 记录
func (h *DomainHandler) AddDomain(c *gin.Context) {
	var req addDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	adminID := c.GetString("userID")
	d, records, err := h.domains.AddDomain(c.Request.Context(), service.AddDomainInput{
		AdminID: adminID,
		Name:    req.Domain,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidHostname):
			BadRequest(c, GetErrorMessage(domain.ErrInvalidHostname))
		case errors.Is(err, service.ErrDomainAlreadyExists):
			Conflict(c, GetErrorMessage(service.ErrDomainAlreadyExists))
		default:
			h.log.Error("failed to add domain",
				zap.String("domain", req.Domain),
				zap.Error(err),
			)
			InternalError(c, MsgDomainAddFailed)
		}
		return
	}

	if h.metrics != nil {
		h.metrics.DomainsRegistered.Inc()
	}

	published := make([]domain.PublishedRecord, 0, len(records))
	for _, r := range records {
		published = append(published, r.Publication(d.Name))
	}

	Created(c, gin.H{
		"domain":  d,
		"records": published,
	})
}

// ListDomains 列出当前管理员名下的全部域名
func (h *DomainHandler) ListDomains(c *gin.Context) {
	adminID := c.GetString("userID")
	list, err := h.domains.ListDomains(adminID)
	if err != nil {
		h.log.Error("failed to list domains", zap.Error(err))
		InternalError(c, MsgDomainListFailed)
		return
	}
	Success(c, gin.H{"domains": list})
}

// GetDomain 获取域名详情
func (h *DomainHandler) GetDomain(c *gin.Context) {
	adminID := c.GetString("userID")
	d, err := h.domains.GetDomain(c.Param("id"), adminID)
	if err != nil {
		h.respondDomainError(c, err, MsgDomainGetFailed)
		return
	}
	Success(c, d)
}

// ListRecords 返回域名的发布格式 DNS 记录
func (h *DomainHandler) ListRecords(c *gin.Context) {
	adminID := c.GetString("userID")
	records, err := h.domains.ListPublishedRecords(c.Param("id"), adminID)
	if err != nil {
		h.respondDomainError(c, err, MsgDomainRecordsFailed)
		return
	}
	Success(c, gin.H{"records": records})
}

// VerifyDomain 触发一轮域名验证，支持 ?type= 过滤单一记录类型
func (h *DomainHandler) VerifyDomain(c *gin.Context) {
	adminID := c.GetString("userID")
	typeFilter := domain.RecordType(c.Query("type"))

	report, err := h.domains.VerifyDomain(c.Request.Context(), c.Param("id"), adminID, typeFilter)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRecordType) {
			BadRequest(c, GetErrorMessage(service.ErrInvalidRecordType))
			return
		}
		h.respondDomainError(c, err, MsgDomainVerifyFailed)
		return
	}

	if h.metrics != nil {
		h.metrics.VerificationRuns.Inc()
		if report.Verified {
			h.metrics.VerificationsPassed.Inc()
		}
	}

	Success(c, report)
}

// respondDomainError 域名操作的通用错误分发
func (h *DomainHandler) respondDomainError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrDomainNotFound):
		NotFound(c, GetErrorMessage(service.ErrDomainNotFound))
	case errors.Is(err, service.ErrNotDomainOwner):
		Forbidden(c, GetErrorMessage(service.ErrNotDomainOwner))
	default:
		h.log.Error("domain operation failed", zap.Error(err))
		InternalError(c, fallback)
	}
}
