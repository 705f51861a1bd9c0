package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/storage"
)

var (
	// ErrMessageNotFound 邮件不存在
	ErrMessageNotFound = errors.New("message not found")
)

// MessageService 入站邮件存储服务
//
// 网关侧的持久化失败是单收件人级的可恢复错误：调用方记录并
// 跳过该收件人，不影响同一封邮件的其他收件人。
type MessageService struct {
	store  storage.MessageRepository
	logger *zap.Logger
}

// NewMessageService 创建邮件存储服务
func NewMessageService(store storage.MessageRepository, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{store: store, logger: logger}
}

// StoreMessageInput 入站邮件的落库输入
type StoreMessageInput struct {
	MailboxID   string
	From        string
	To          string
	Subject     string
	Text        string
	HTML        string
	Attachments []*domain.Attachment
}

// Store 把一封入站邮件写入收件人邮箱
func (s *MessageService) Store(input StoreMessageInput) (*domain.Message, error) {
	message := &domain.Message{
		ID:        uuid.NewString(),
		MailboxID: input.MailboxID,
		From:      input.From,
		To:        input.To,
		Subject:   input.Subject,
		Text:      input.Text,
		HTML:      input.HTML,
		CreatedAt: time.Now().UTC(),
	}

	for _, att := range input.Attachments {
		message.Attachments = append(message.Attachments, &domain.Attachment{
			ID:          uuid.NewString(),
			MessageID:   message.ID,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
			Content:     att.Content,
		})
	}

	if err := s.store.SaveMessage(message); err != nil {
		return nil, err
	}

	s.logger.Debug("message stored",
		zap.String("mailbox_id", input.MailboxID),
		zap.String("from", input.From),
		zap.Int("attachments", len(message.Attachments)))

	return message, nil
}

// List 列出邮箱下的全部邮件
func (s *MessageService) List(mailboxID string) ([]domain.Message, error) {
	return s.store.ListMessages(mailboxID)
}

// Get 获取单封邮件
func (s *MessageService) Get(mailboxID, messageID string) (*domain.Message, error) {
	message, err := s.store.GetMessage(mailboxID, messageID)
	if err != nil {
		return nil, ErrMessageNotFound
	}
	return message, nil
}

// MarkRead 标记邮件已读
func (s *MessageService) MarkRead(mailboxID, messageID string) error {
	if err := s.store.MarkMessageRead(mailboxID, messageID); err != nil {
		if errors.Is(err, storage.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	return nil
}
