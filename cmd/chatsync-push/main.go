package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rlee0/assistant-sub002/internal/config"
	"github.com/rlee0/assistant-sub002/internal/logging"
	"github.com/rlee0/assistant-sub002/internal/persist"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatsync-push <conversation.json>",
		Short: "Push a locally held conversation to the chat store",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return push(cmd.Context(), cmd, args[0])
		},
	}

	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	rootCmd.Flags().String("base-url", defaults.GetString("client.base_url"), "Chat store base URL")
	rootCmd.Flags().String("session-token", "", "Session token (overrides env)")
	rootCmd.Flags().Int("timeout-seconds", defaults.GetInt("client.timeout_seconds"), "Request timeout in seconds")
	rootCmd.Flags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	for key, flag := range map[string]string{
		"client.base_url":        "base-url",
		"client.session_token":   "session-token",
		"client.timeout_seconds": "timeout-seconds",
		"log.level":              "log-level",
	} {
		if err := viper.BindPFlag(key, rootCmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func push(ctx context.Context, cmd *cobra.Command, path string) error {
	clientConfig, err := config.LoadClient(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(clientConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	conversation, err := persist.DecodeConversation(file)
	_ = file.Close()
	if err != nil {
		return err
	}

	transport, err := persist.NewHTTPTransport(persist.HTTPTransportConfig{
		BaseURL:      clientConfig.BaseURL,
		SessionToken: clientConfig.SessionToken,
		HTTPClient:   &http.Client{},
	})
	if err != nil {
		return err
	}

	orchestrator, err := persist.New(persist.Config{
		Transport: transport,
		Timeout:   clientConfig.Timeout,
		Logger:    logger,
		OnSynced: func(conversationID string, chat persist.ChatSummary) {
			logger.Info("conversation synced",
				zap.String("conversation_id", conversationID),
				zap.String("title", chat.Title),
				zap.Time("updated_at", chat.UpdatedAt),
			)
		},
	})
	if err != nil {
		return err
	}
	defer orchestrator.Close()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result := <-orchestrator.Persist(signalCtx, conversation.ID, conversation.Metadata, conversation.Messages)
	if result.Outcome != persist.OutcomeSucceeded {
		return fmt.Errorf("push %s: %s (status %d): %v", conversation.ID, result.Outcome, result.StatusCode, result.Err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s synced at %s\n", result.Chat.ID, result.Chat.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
