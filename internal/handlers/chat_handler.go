package handlers

import (
	"context"
	"errors"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/khanhquoc4114/app-sub000/internal/models"
	"github.com/khanhquoc4114/app-sub000/internal/services"
	chatws "github.com/khanhquoc4114/app-sub000/internal/websocket"
	"github.com/khanhquoc4114/app-sub000/pkg/utils"
)

type chatApplicationService interface {
	ListConversations(ctx context.Context, actorID int64, role string) ([]models.ConversationSummary, error)
	History(ctx context.Context, actorID int64, role string, peerID int64, limit int) ([]models.ChatMessage, error)
	MarkRead(ctx context.Context, actorID int64, role string, peerID int64) (int64, error)
	SendMessage(ctx context.Context, actorID int64, role string, receiverID int64, content string) (*services.ChatDelivery, error)
}

type ChatHandler struct {
	service   chatApplicationService
	hub       *chatws.Hub
	jwtSecret string
	logger    *zap.Logger
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

func NewChatHandler(service chatApplicationService, hub *chatws.Hub, jwtSecret string, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		service:   service,
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	userID, role, err := actorFromLocals(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversations, err := h.service.ListConversations(c.Context(), userID, role)
	if err != nil {
		return h.mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

// GetHistory returns the latest messages exchanged with a peer, oldest
// first.
func (h *ChatHandler) GetHistory(c *fiber.Ctx) error {
	userID, role, err := actorFromLocals(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	peerID, err := parsePeerID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid peer id"})
	}

	limit := parsePositiveInt(c.Query("limit"), services.DefaultHistoryLimit)
	messages, err := h.service.History(c.Context(), userID, role, peerID, services.NormalizeHistoryLimit(limit))
	if err != nil {
		return h.mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	userID, role, err := actorFromLocals(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	peerID, err := parsePeerID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid peer id"})
	}

	if _, err := h.service.MarkRead(c.Context(), userID, role, peerID); err != nil {
		return h.mapChatError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// SendMessage stores a message sent over REST and relays it to both
// participants exactly like a websocket send.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, role, err := actorFromLocals(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	peerID, err := parsePeerID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid peer id"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	delivery, err := h.service.SendMessage(c.Context(), userID, role, peerID, req.Message)
	if err != nil {
		return h.mapChatError(c, err)
	}
	h.hub.Publish(delivery.Message)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": delivery.Message})
}

func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	userIDStr, _ := conn.Locals("user_id").(string)
	role, _ := conn.Locals("role").(string)
	userID, err := parseUserID(userIDStr)
	if err != nil {
		_ = conn.Close()
		return
	}

	client := chatws.NewClient(h.hub, conn, userID, role)
	if !h.hub.Register(client) {
		_ = conn.Close()
		return
	}

	written := make(chan struct{})
	go func() {
		defer close(written)
		client.WritePump()
	}()
	client.ReadPump(h.service)
	<-written
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func (h *ChatHandler) mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	default:
		h.logger.Error("chat request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
