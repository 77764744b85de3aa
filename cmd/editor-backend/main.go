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
	"github.com/vega/editor-backend/internal/auth"
	"github.com/vega/editor-backend/internal/config"
	"github.com/vega/editor-backend/internal/database"
	"github.com/vega/editor-backend/internal/gists"
	"github.com/vega/editor-backend/internal/github"
	"github.com/vega/editor-backend/internal/logging"
	"github.com/vega/editor-backend/internal/server"
	"github.com/vega/editor-backend/internal/users"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "editor-backend",
		Short: "Vega editor backend service",
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
	cmd.PersistentFlags().String("github-client-id", defaults.GetString("github.client_id"), "GitHub OAuth client ID")
	cmd.PersistentFlags().String("github-client-secret", "", "GitHub OAuth client secret (overrides env)")
	cmd.PersistentFlags().String("github-callback-url", defaults.GetString("github.callback_url"), "OAuth callback URL")
	cmd.PersistentFlags().String("homepage-url", defaults.GetString("homepage.url"), "Editor homepage URL")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("cors.allowed_origins"), "Allowed CORS origins")
	cmd.PersistentFlags().Int("page-size", defaults.GetInt("gists.page_size"), "Gist page size")
	cmd.PersistentFlags().Duration("upstream-timeout", defaults.GetDuration("upstream.timeout"), "Timeout for upstream GitHub calls")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "github.client_id", "github-client-id")
	bindFlag(cmd, "github.client_secret", "github-client-secret")
	bindFlag(cmd, "github.callback_url", "github-callback-url")
	bindFlag(cmd, "homepage.url", "homepage-url")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "gists.page_size", "page-size")
	bindFlag(cmd, "upstream.timeout", "upstream-timeout")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	return viper.ReadInConfig()
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

	codec, err := auth.NewCodec(auth.CodecConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	resolver, err := auth.NewResolver(auth.ResolverConfig{
		Codec:      codec,
		CookieName: appConfig.CookieName,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	gateway, err := github.NewGateway(github.GatewayConfig{
		ClientID:     appConfig.GitHubClientID,
		ClientSecret: appConfig.GitHubClientSecret,
		CallbackURL:  appConfig.CallbackURL,
		Timeout:      appConfig.UpstreamTimeout,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	engine, err := gists.NewEngine(gists.EngineConfig{
		Gateway:  gateway,
		PageSize: appConfig.PageSize,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Resolver:       resolver,
		Tokens:         codec,
		Engine:         engine,
		OAuth:          gateway,
		Writer:         gateway,
		Users:          userService,
		Logger:         logger,
		CookieName:     appConfig.CookieName,
		HomepageURL:    appConfig.HomepageURL,
		AllowedOrigins: appConfig.AllowedOrigins,
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
