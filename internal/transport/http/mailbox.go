package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/service"
)

// MailboxHandler 处理邮箱管理相关的 HTTP 请求
type MailboxHandler struct {
	mailboxes *service.MailboxService
	log       *zap.Logger
}

// NewMailboxHandler 创建邮箱处理器
func NewMailboxHandler(mailboxes *service.MailboxService, log *zap.Logger) *MailboxHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MailboxHandler{
		mailboxes: mailboxes,
		log:       log,
	}
}

type createMailboxRequest struct {
	DomainID  string `json:"domainId" binding:"required"`
	LocalPart string `json:"localPart" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Quota     int    `json:"quota"` // MB，缺省使用默认配额
}

// CreateMailbox 在已验证域名下创建邮箱
func (h *MailboxHandler) CreateMailbox(c *gin.Context) {
	var req createMailboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	adminID := c.GetString("userID")
	mailbox, err := h.mailboxes.Create(service.CreateMailboxInput{
		AdminID:   adminID,
		DomainID:  req.DomainID,
		LocalPart: req.LocalPart,
		Password:  req.Password,
		Quota:     req.Quota,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDomainNotFound):
			NotFound(c, GetErrorMessage(service.ErrDomainNotFound))
		case errors.Is(err, service.ErrNotDomainOwner):
			Forbidden(c, GetErrorMessage(service.ErrNotDomainOwner))
		case errors.Is(err, service.ErrDomainNotVerified):
			Forbidden(c, GetErrorMessage(service.ErrDomainNotVerified))
		case errors.Is(err, domain.ErrInvalidLocalPart):
			BadRequest(c, GetErrorMessage(domain.ErrInvalidLocalPart))
		case errors.Is(err, domain.ErrPasswordTooShort):
			BadRequest(c, GetErrorMessage(domain.ErrPasswordTooShort))
		case errors.Is(err, service.ErrMailboxExists):
			Conflict(c, GetErrorMessage(service.ErrMailboxExists))
		default:
			h.log.Error("failed to create mailbox",
				zap.String("domain_id", req.DomainID),
				zap.Error(err),
			)
			InternalError(c, MsgMailboxCreateFailed)
		}
		return
	}

	Created(c, mailbox)
}

// ListMailboxes 列出指定域名下的邮箱
func (h *MailboxHandler) ListMailboxes(c *gin.Context) {
	domainID := c.Query("domainId")
	if domainID == "" {
		BadRequest(c, "缺少 domainId 参数")
		return
	}

	adminID := c.GetString("userID")
	list, err := h.mailboxes.List(domainID, adminID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDomainNotFound):
			NotFound(c, GetErrorMessage(service.ErrDomainNotFound))
		case errors.Is(err, service.ErrNotDomainOwner):
			Forbidden(c, GetErrorMessage(service.ErrNotDomainOwner))
		default:
			h.log.Error("failed to list mailboxes", zap.Error(err))
			InternalError(c, MsgMailboxListFailed)
		}
		return
	}
	Success(c, gin.H{"mailboxes": list})
}

// DeleteMailbox 删除邮箱
func (h *MailboxHandler) DeleteMailbox(c *gin.Context) {
	adminID := c.GetString("userID")
	if err := h.mailboxes.Delete(c.Param("id"), adminID); err != nil {
		switch {
		case errors.Is(err, service.ErrMailboxNotFound):
			NotFound(c, GetErrorMessage(service.ErrMailboxNotFound))
		case errors.Is(err, service.ErrDomainNotFound):
			NotFound(c, GetErrorMessage(service.ErrDomainNotFound))
		case errors.Is(err, service.ErrNotDomainOwner):
			Forbidden(c, GetErrorMessage(service.ErrNotDomainOwner))
		default:
			h.log.Error("failed to delete mailbox", zap.Error(err))
			InternalError(c, MsgMailboxDeleteFailed)
		}
		return
	}
	NoContent(c)
}
