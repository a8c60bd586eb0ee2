package routes

import (
	"context"
	"errors"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/khanhquoc4114/app-sub000/internal/config"
	"github.com/khanhquoc4114/app-sub000/internal/handlers"
	"github.com/khanhquoc4114/app-sub000/internal/middleware"
	"github.com/khanhquoc4114/app-sub000/internal/repository"
	"github.com/khanhquoc4114/app-sub000/internal/services"
	chatws "github.com/khanhquoc4114/app-sub000/internal/websocket"
)

// Deps are the shared resources the routes are built from.
type Deps struct {
	DB       *pgxpool.Pool
	Logger   *zap.Logger
	Registry *prometheus.Registry
}

// RegisterRoutes mounts the chat API on app and starts the websocket hub,
// which runs until ctx is cancelled.
func RegisterRoutes(ctx context.Context, app *fiber.App, cfg *config.Config, deps Deps) error {
	if cfg == nil || cfg.JWTSecret == "" {
		return errors.New("routes: JWT secret is required")
	}
	if deps.DB == nil {
		return errors.New("routes: database pool is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	userRepo := repository.NewUserRepository(deps.DB)
	conversationRepo := repository.NewConversationRepository(deps.DB)
	messageRepo := repository.NewMessageRepository(deps.DB)

	var registerer prometheus.Registerer
	if deps.Registry != nil {
		registerer = deps.Registry
	}
	chatHub := chatws.NewHub(chatws.HubConfig{
		SendRate:   cfg.ChatSendRate,
		SendBurst:  cfg.ChatSendBurst,
		Logger:     logger,
		Registerer: registerer,
	})
	go chatHub.Run(ctx)

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	chatService := services.NewChatService(deps.DB, conversationRepo, messageRepo, userRepo)
	chatHandler := handlers.NewChatHandler(chatService, chatHub, cfg.JWTSecret, logger)

	if deps.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	conversations := authProtected.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)

	messages := authProtected.Group("/messages")
	messages.Get("/:peerId", chatHandler.GetHistory)
	messages.Post("/:peerId", chatHandler.SendMessage)
	messages.Post("/:peerId/read", chatHandler.MarkRead)

	return nil
}
