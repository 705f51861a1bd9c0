package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mailforge/backend/internal/auth/jwt"
	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/storage"
)

// MessageType WebSocket 消息类型
type MessageType string

const (
	MessageTypeNewMail     MessageType = "new_mail"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeSubscribed  MessageType = "subscribed"
	MessageTypeError       MessageType = "error"
)

// Message WebSocket 消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	MailboxID string          `json:"mailboxId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMailData 新邮件通知数据
type NewMailData struct {
	MessageID string `json:"messageId"`
	MailboxID string `json:"mailboxId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Preview   string `json:"preview,omitempty"`
	HasHTML   bool   `json:"hasHtml"`
	HasText   bool   `json:"hasText"`
	CreatedAt string `json:"createdAt"`
}

// Client 一个已认证的 WebSocket 客户端连接
type Client struct {
	ID      string
	AdminID string

	conn       *websocket.Conn
	send       chan []byte
	hub        *Hub
	mailboxIDs map[string]bool // 已订阅的邮箱
	mu         sync.RWMutex
	log        *zap.Logger
}

// Hub 管理全部 WebSocket 连接并分发新邮件通知
//
// 管理员用 JWT 建连，按邮箱订阅；订阅前校验邮箱所属域名
// 确实归该管理员所有。
type Hub struct {
	clients        map[string]*Client
	mailboxes      map[string]map[string]*Client // mailboxID -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *broadcastMessage
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
	tokens         *jwt.Manager
	store          storage.Store
}

type broadcastMessage struct {
	mailboxID string
	message   *Message
}

// NewHub 创建 WebSocket Hub
func NewHub(allowedOrigins []string, tokens *jwt.Manager, store storage.Store, logger *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:        make(map[string]*Client),
		mailboxes:      make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *broadcastMessage, 256),
		log:            logger,
		allowedOrigins: allowedOrigins,
		tokens:         tokens,
		store:          store,
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Info("client registered", zap.String("id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for mailboxID := range client.mailboxIDs {
					if clients, exists := h.mailboxes[mailboxID]; exists {
						delete(clients, client.ID)
						if len(clients) == 0 {
							delete(h.mailboxes, mailboxID)
						}
					}
				}
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToMailbox(msg.mailboxID, msg.message)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// NotifyNewMail 向订阅了该邮箱的客户端推送新邮件通知
func (h *Hub) NotifyNewMail(mailboxID string, message *domain.Message) {
	preview := message.Text
	if len(preview) > 100 {
		preview = preview[:100]
	}

	data, err := json.Marshal(NewMailData{
		MessageID: message.ID,
		MailboxID: mailboxID,
		From:      message.From,
		To:        message.To,
		Subject:   message.Subject,
		Preview:   preview,
		HasHTML:   message.HTML != "",
		HasText:   message.Text != "",
		CreatedAt: message.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		h.log.Error("failed to marshal new mail data", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeNewMail,
		MailboxID: mailboxID,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- &broadcastMessage{mailboxID: mailboxID, message: msg}:
	default:
		// 通知通道满时丢弃，入站路径不等待推送
		h.log.Warn("broadcast channel full, dropping notification",
			zap.String("mailbox_id", mailboxID))
	}
}

func (h *Hub) broadcastToMailbox(mailboxID string, msg *Message) {
	h.mu.RLock()
	clients := h.mailboxes[mailboxID]
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			h.log.Warn("client channel blocked, skipping", zap.String("client_id", client.ID))
		}
	}
}

func (h *Hub) pingAllClients() {
	data, err := json.Marshal(&Message{Type: MessageTypePing, Timestamp: time.Now()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.mailboxes = make(map[string]map[string]*Client)
}

// authenticateClient 认证客户端，要求有效的管理员 JWT
func (h *Hub) authenticateClient(c *gin.Context) (*Client, error) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		return nil, errors.New("missing authentication token")
	}

	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	return &Client{
		ID:         uuid.NewString(),
		AdminID:    claims.UserID,
		mailboxIDs: make(map[string]bool),
		log:        h.log,
	}, nil
}

// canSubscribe 检查管理员是否有权订阅邮箱
func (h *Hub) canSubscribe(adminID, mailboxID string) bool {
	mailbox, err := h.store.GetMailbox(mailboxID)
	if err != nil {
		return false
	}
	d, err := h.store.GetDomain(mailbox.DomainID)
	if err != nil {
		return false
	}
	return d.AdminID == adminID
}

func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}
			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// HandleWebSocket 处理 WebSocket 连接升级
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		client, err := hub.authenticateClient(c)
		if err != nil {
			hub.log.Warn("websocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client.conn = conn
		client.hub = hub
		client.send = make(chan []byte, 256)

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket error", zap.Error(err))
			}
			break
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.subscribeMailbox(msg.MailboxID)
	case MessageTypeUnsubscribe:
		c.unsubscribeMailbox(msg.MailboxID)
	case MessageTypePong:
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	default:
		c.log.Warn("unknown message type", zap.String("type", string(msg.Type)))
	}
}

func (c *Client) subscribeMailbox(mailboxID string) {
	if mailboxID == "" {
		c.sendError("mailbox ID is required")
		return
	}

	if !c.hub.canSubscribe(c.AdminID, mailboxID) {
		c.log.Warn("subscription denied",
			zap.String("client_id", c.ID),
			zap.String("mailbox_id", mailboxID))
		c.sendError("no permission to access mailbox: " + mailboxID)
		return
	}

	c.mu.Lock()
	c.mailboxIDs[mailboxID] = true
	c.mu.Unlock()

	c.hub.mu.Lock()
	if c.hub.mailboxes[mailboxID] == nil {
		c.hub.mailboxes[mailboxID] = make(map[string]*Client)
	}
	c.hub.mailboxes[mailboxID][c.ID] = c
	c.hub.mu.Unlock()

	c.log.Info("subscribed to mailbox",
		zap.String("client_id", c.ID),
		zap.String("mailbox_id", mailboxID))

	c.sendMessage(&Message{
		Type:      MessageTypeSubscribed,
		MailboxID: mailboxID,
		Timestamp: time.Now(),
	})
}

func (c *Client) unsubscribeMailbox(mailboxID string) {
	c.mu.Lock()
	delete(c.mailboxIDs, mailboxID)
	c.mu.Unlock()

	c.hub.mu.Lock()
	if clients, exists := c.hub.mailboxes[mailboxID]; exists {
		delete(clients, c.ID)
		if len(clients) == 0 {
			delete(c.hub.mailboxes, mailboxID)
		}
	}
	c.hub.mu.Unlock()
}

func (c *Client) sendError(errMsg string) {
	c.sendMessage(&Message{
		Type:      MessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked", zap.String("client_id", c.ID))
	}
}
