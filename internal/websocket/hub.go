package chatws

import (
	"context"
	"errors"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/khanhquoc4114/app-sub000/internal/models"
	"github.com/khanhquoc4114/app-sub000/internal/services"
)

const (
	sendBufferSize   = 32
	broadcastBacklog = 64
	maxFrameSize     = 16 * 1024
	writeTimeout     = 10 * time.Second
	// Clients ping every 30s; two missed pings drop the connection.
	readTimeout   = 75 * time.Second
	sendTimeout   = 5 * time.Second
	pruneInterval = time.Minute
)

type Hub struct {
	clients    map[int64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan MessageFrame
	direct     chan directFrame

	limiter *limiterPool
	logger  *zap.Logger
	metrics *Metrics
	done    chan struct{}
}

type HubConfig struct {
	// SendRate is the sustained number of messages per second a user may
	// send, SendBurst the bucket size.
	SendRate   float64
	SendBurst  int
	Logger     *zap.Logger
	Registerer prometheus.Registerer
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	role   string
	send   chan []byte
}

type directFrame struct {
	client  *Client
	payload []byte
}

type sender interface {
	SendMessage(
		ctx context.Context,
		actorID int64,
		role string,
		receiverID int64,
		content string,
	) (*services.ChatDelivery, error)
}

func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan MessageFrame, broadcastBacklog),
		direct:     make(chan directFrame, broadcastBacklog),
		limiter:    newLimiterPool(cfg.SendRate, cfg.SendBurst),
		logger:     logger.Named("chat_hub"),
		metrics:    NewMetrics(cfg.Registerer),
		done:       make(chan struct{}),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64, role string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		role:   role,
		send:   make(chan []byte, sendBufferSize),
	}
}

// Run owns the connection registry until ctx is cancelled. On return every
// client's send channel is closed.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
			h.metrics.Connections.Inc()
			h.logger.Debug("client registered", zap.Int64("user_id", client.userID), zap.Int("connections", len(set)))
		case client := <-h.unregister:
			h.remove(client)
		case frame := <-h.broadcast:
			h.deliver(frame)
		case direct := <-h.direct:
			h.sendToClient(direct.client, direct.payload)
		case now := <-ticker.C:
			if removed := h.limiter.prune(now.Add(-limiterIdleTTL)); removed > 0 {
				h.logger.Debug("pruned idle rate limiters", zap.Int("count", removed))
			}
		case <-ctx.Done():
			for userID, set := range h.clients {
				for client := range set {
					close(client.send)
				}
				delete(h.clients, userID)
			}
			h.metrics.Connections.Set(0)
			return
		}
	}
}

// Register adds client to the registry. It reports false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish relays a stored message to every connection of its sender and
// receiver.
func (h *Hub) Publish(message *models.ChatMessage) {
	select {
	case h.broadcast <- frameFromMessage(message):
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := set[client]; exists {
		delete(set, client)
		close(client.send)
		h.metrics.Connections.Dec()
	}
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
}

func (h *Hub) deliver(frame MessageFrame) {
	encoded, err := encodeFrame(frame)
	if err != nil {
		h.logger.Error("encode message frame", zap.Int64("message_id", frame.ID), zap.Error(err))
		return
	}

	h.sendToUser(frame.From, encoded)
	if frame.To != frame.From {
		h.sendToUser(frame.To, encoded)
	}
	h.metrics.Relayed.Inc()
}

func (h *Hub) sendToUser(userID int64, payload []byte) {
	for client := range h.clients[userID] {
		h.sendToClient(client, payload)
	}
}

func (h *Hub) sendToClient(client *Client, payload []byte) {
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, registered := set[client]; !registered {
		return
	}

	select {
	case client.send <- payload:
	default:
		h.metrics.SlowConsumers.Inc()
		h.logger.Warn("dropping slow chat client", zap.Int64("user_id", client.userID))
		h.remove(client)
	}
}

func (c *Client) ReadPump(service sender) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug("chat connection lost", zap.Int64("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var incoming inboundFrame
		if err := decodeInbound(payload, &incoming); err != nil {
			c.reject("invalid_payload", "invalid message payload")
			continue
		}

		switch incoming.Type {
		case frameTypePing:
			continue
		case "", frameTypeMessage:
		default:
			c.reject("unsupported_type", "unsupported message type")
			continue
		}

		if !c.hub.limiter.Allow(c.userID) {
			c.reject("rate_limited", "rate limit exceeded")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		delivery, err := service.SendMessage(ctx, c.userID, c.role, incoming.To, incoming.Message)
		cancel()
		if err != nil {
			c.rejectSend(err)
			continue
		}

		c.hub.Publish(delivery.Message)
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout),
	)
}

func (c *Client) rejectSend(err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		c.reject("invalid_message", "invalid message")
	case errors.Is(err, services.ErrUserNotFound):
		c.reject("unknown_receiver", "receiver not found")
	case errors.Is(err, services.ErrForbidden):
		c.reject("forbidden", "forbidden")
	default:
		c.hub.logger.Error("store chat message", zap.Int64("user_id", c.userID), zap.Error(err))
		c.reject("internal", "failed to send message")
	}
}

func (c *Client) reject(reason, message string) {
	c.hub.metrics.Rejected.WithLabelValues(reason).Inc()

	payload, err := encodeFrame(controlFrame{Type: frameTypeError, Message: message})
	if err != nil {
		return
	}
	select {
	case c.hub.direct <- directFrame{client: c, payload: payload}:
	case <-c.hub.done:
	}
}
