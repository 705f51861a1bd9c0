package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailforge/backend/internal/service"
)

// MessageHandler 处理入站邮件查询相关的 HTTP 请求
type MessageHandler struct {
	mailboxes *service.MailboxService // 所有权校验
	messages  *service.MessageService
	log       *zap.Logger
}

// NewMessageHandler 创建邮件处理器
func NewMessageHandler(mailboxes *service.MailboxService, messages *service.MessageService, log *zap.Logger) *MessageHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageHandler{
		mailboxes: mailboxes,
		messages:  messages,
		log:       log,
	}
}

// ownedMailbox 校验路径中的邮箱归当前管理员所有，失败时写入响应并返回 false。
func (h *MessageHandler) ownedMailbox(c *gin.Context) (string, bool) {
	mailboxID := c.Param("id")
	adminID := c.GetString("userID")

	if _, err := h.mailboxes.Get(mailboxID, adminID); err != nil {
		switch {
		case errors.Is(err, service.ErrMailboxNotFound):
			NotFound(c, GetErrorMessage(service.ErrMailboxNotFound))
		case errors.Is(err, service.ErrDomainNotFound):
			NotFound(c, GetErrorMessage(service.ErrDomainNotFound))
		case errors.Is(err, service.ErrNotDomainOwner):
			Forbidden(c, GetErrorMessage(service.ErrNotDomainOwner))
		default:
			h.log.Error("failed to resolve mailbox", zap.Error(err))
			InternalError(c, MsgInternalError)
		}
		return "", false
	}
	return mailboxID, true
}

// ListMessages 列出邮箱内的邮件（概要，不含正文附件内容）
func (h *MessageHandler) ListMessages(c *gin.Context) {
	mailboxID, ok := h.ownedMailbox(c)
	if !ok {
		return
	}

	list, err := h.messages.List(mailboxID)
	if err != nil {
		h.log.Error("failed to list messages", zap.Error(err))
		InternalError(c, MsgMessageListFailed)
		return
	}
	Success(c, gin.H{"messages": list})
}

// GetMessage 获取单封邮件详情
func (h *MessageHandler) GetMessage(c *gin.Context) {
	mailboxID, ok := h.ownedMailbox(c)
	if !ok {
		return
	}

	msg, err := h.messages.Get(mailboxID, c.Param("messageId"))
	if err != nil {
		if errors.Is(err, service.ErrMessageNotFound) {
			NotFound(c, GetErrorMessage(service.ErrMessageNotFound))
			return
		}
		h.log.Error("failed to get message", zap.Error(err))
		InternalError(c, MsgMessageGetFailed)
		return
	}
	Success(c, msg)
}

// MarkMessageRead 标记邮件为已读
func (h *MessageHandler) MarkMessageRead(c *gin.Context) {
	mailboxID, ok := h.ownedMailbox(c)
	if !ok {
		return
	}

	if err := h.messages.MarkRead(mailboxID, c.Param("messageId")); err != nil {
		if errors.Is(err, service.ErrMessageNotFound) {
			NotFound(c, GetErrorMessage(service.ErrMessageNotFound))
			return
		}
		h.log.Error("failed to mark message read", zap.Error(err))
		InternalError(c, MsgMessageMarkReadFailed)
		return
	}
	Success(c, gin.H{"message": "已标记为已读"})
}
