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
	"time"

	"github.com/joho/godotenv"
	"github.com/rlee0/assistant-sub002/internal/auth"
	"github.com/rlee0/assistant-sub002/internal/chats"
	"github.com/rlee0/assistant-sub002/internal/config"
	"github.com/rlee0/assistant-sub002/internal/database"
	"github.com/rlee0/assistant-sub002/internal/logging"
	"github.com/rlee0/assistant-sub002/internal/ratelimit"
	"github.com/rlee0/assistant-sub002/internal/server"
	"github.com/rlee0/assistant-sub002/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatsync-api",
		Short: "Chat state synchronization service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMintSessionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("cookie-name", defaults.GetString("tauth.cookie_name"), "Session cookie name")
	cmd.PersistentFlags().Float64("rate-per-second", defaults.GetFloat64("ratelimit.per_second"), "Requests per second allowed per owner")
	cmd.PersistentFlags().Int("rate-burst", defaults.GetInt("ratelimit.burst"), "Request burst allowed per owner")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "tauth.signing_secret", "signing-secret")
	bindFlag(cmd, "tauth.cookie_name", "cookie-name")
	bindFlag(cmd, "ratelimit.per_second", "rate-per-second")
	bindFlag(cmd, "ratelimit.burst", "rate-burst")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.TAuthSigningKey),
		Issuer:        appConfig.TAuthIssuer,
		CookieName:    appConfig.TAuthCookieName,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Logger:   logger.Named("users"),
	})
	if err != nil {
		return err
	}

	identity, err := server.NewSessionIdentity(validator, userService)
	if err != nil {
		return err
	}

	chatService, err := chats.NewService(chats.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: chats.NewUUIDProvider(),
		Logger:     logger.Named("chats"),
	})
	if err != nil {
		return err
	}

	limiter := ratelimit.New(appConfig.RatePerSecond, appConfig.RateBurst, 0)
	limiter.Start()
	defer limiter.Stop()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		ChatService:       chatService,
		Identity:          identity,
		Realtime:          server.NewRealtimeDispatcher(),
		RateLimiter:       limiter,
		Logger:            logger,
		AllowedOrigins:    appConfig.CORSAllowedOrigins,
		HeartbeatInterval: appConfig.HeartbeatInterval,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func newMintSessionCommand() *cobra.Command {
	var (
		email       string
		displayName string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mint-session <user-id>",
		Short: "Print a signed session token for the given user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
				SigningSecret: []byte(appConfig.TAuthSigningKey),
				Issuer:        appConfig.TAuthIssuer,
				TTL:           ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(args[0], email, displayName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&displayName, "display-name", "", "Display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
