package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanhquoc4114/app-sub000/internal/chatclient"
	"github.com/khanhquoc4114/app-sub000/internal/config"
	"github.com/khanhquoc4114/app-sub000/internal/logging"
	"github.com/khanhquoc4114/app-sub000/internal/models"
	"github.com/khanhquoc4114/app-sub000/pkg/utils"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "chatclient",
		Short:        "Terminal client for the chat relay",
		SilenceUsage: true,
	}
	root.AddCommand(newTokenCmd(), newLoginCmd(), newChatCmd())
	return root
}

func newTokenCmd() *cobra.Command {
	var (
		userID int64
		role   string
		secret string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}
			if userID <= 0 {
				return fmt.Errorf("--user-id must be positive")
			}
			if !models.ValidRole(role) {
				return fmt.Errorf("invalid role %q", role)
			}
			token, err := utils.GenerateTokenWithTTL(strconv.FormatInt(userID, 10), role, secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id to embed")
	cmd.Flags().StringVar(&role, "role", models.RoleUser, "role to embed")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", utils.DefaultTokenTTL, "token lifetime")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a token for CHAT_TOKEN",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadClientConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			token, user, err := chatclient.Login(ctx, nil, cfg.ServerURL, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "logged in as %s (id %d)\n", user.Name, user.ID)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newChatCmd() *cobra.Command {
	var server, token string
	var peer int64
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadClientConfig()
			if err != nil {
				return err
			}
			if server != "" {
				cfg.ServerURL = server
			}
			if token != "" {
				cfg.Token = token
			}
			if cfg.Token == "" {
				return fmt.Errorf("no token: set CHAT_TOKEN or pass --token")
			}

			log, err := logging.New(cfg.AppEnv, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			resolveCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			self, err := chatclient.ResolveUser(resolveCtx, nil, cfg.ServerURL, cfg.Token)
			cancel()
			if err != nil {
				return err
			}

			client, err := chatclient.New(chatclient.Config{
				Endpoint:          cfg.WebSocketURL(),
				APIBaseURL:        cfg.APIBaseURL(),
				Auth:              chatclient.NewStaticAuth(cfg.Token, self),
				Logger:            log,
				HistoryLimit:      cfg.HistoryLimit,
				HeartbeatInterval: cfg.HeartbeatInterval,
				ReconnectBase:     cfg.ReconnectBase,
				ReconnectMax:      cfg.ReconnectMax,
				ReadAckDelay:      cfg.ReadAckDelay,
			})
			if err != nil {
				return err
			}
			defer client.Close()

			client.Connect()
			s := newSession(client, cmd.InOrStdin(), cmd.OutOrStdout())
			if peer > 0 {
				s.open(peer)
			}
			return s.run(ctx)
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "server URL (defaults to CHAT_SERVER_URL)")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (defaults to CHAT_TOKEN)")
	cmd.Flags().Int64Var(&peer, "peer", 0, "conversation to open on start")
	return cmd
}
