package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/quillbin/quillbin/internal/auth"
	"github.com/quillbin/quillbin/internal/cleanup"
	"github.com/quillbin/quillbin/internal/config"
	"github.com/quillbin/quillbin/internal/database"
	"github.com/quillbin/quillbin/internal/logging"
	"github.com/quillbin/quillbin/internal/pastes"
	"github.com/quillbin/quillbin/internal/server"
	"github.com/quillbin/quillbin/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quillbin-api",
		Short: "Quillbin pastebin backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "PostgreSQL connection string")
	cmd.PersistentFlags().Int("token-ttl-hours", defaults.GetInt("auth.token_ttl_hours"), "Session token TTL in hours")
	cmd.PersistentFlags().Int("sweep-interval-minutes", defaults.GetInt("cleanup.sweep_interval_minutes"), "Expired paste sweep interval in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.token_ttl_hours", "token-ttl-hours")
	bindFlag(cmd, "cleanup.sweep_interval_minutes", "sweep-interval-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
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

	db, err := database.OpenPostgres(appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := database.Migrate(db, logger); err != nil {
		return err
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	pasteService, err := pastes.NewService(pastes.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: pastes.NewNanoIDProvider(),
		Users:      userService,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	sweeper, err := cleanup.NewSweeper(cleanup.SweeperConfig{
		Store:    pasteService,
		Interval: appConfig.SweepInterval,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:       tokenIssuer,
		PasteService: pasteService,
		UserService:  userService,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper.Start(signalCtx)
	defer sweeper.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
