package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/liveshard/internal/api"
	"github.com/mcoot/liveshard/internal/config"
	"github.com/mcoot/liveshard/internal/factory"
	"github.com/mcoot/liveshard/internal/logging"
)

// NewServeCmd creates the command that runs a shard in the foreground
func NewServeCmd() *cobra.Command {
	return newServeCmd()
}

func newServeCmd() *cobra.Command {
	var (
		port    int
		storage string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a session shard",
		Long: `Run a session shard until interrupted. Settings come from the environment
(LIVESHARD_ENV, STORAGE_TYPE, REDIS_URL, ...); flags override the port and
storage backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				settings.Port = port
			}
			if cmd.Flags().Changed("storage") {
				settings.StorageType = storage
			}
			if err := settings.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, settings)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Listen port (env: PORT)")
	cmd.Flags().StringVar(&storage, "storage", config.StorageMemory, "Storage backend: memory, redis, sqlite (env: STORAGE_TYPE)")

	return cmd
}

// runServer serves the shard until ctx is done, then drains sessions
func runServer(ctx context.Context, settings config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, logging.HandlerOptions(logging.ParseLevel(settings.LogLevel))))
	slog.SetDefault(logger)

	app, err := factory.New(factory.Config{Settings: settings, Logger: logger})
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		return err
	}
	app.Start(context.WithoutCancel(ctx))

	router := api.NewRouter(api.RouterConfig{
		Logger:       logger,
		Players:      app.Players,
		Store:        app.Store,
		Characters:   app.Characters,
		World:        app.World,
		Mtx:          app.Mtx,
		Sync:         app.Sync,
		Moderation:   app.Platform,
		Metrics:      app.Metrics,
		Gatherer:     app.Gatherer,
		IsDeveloper:  settings.IsDeveloper,
		ReadyTimeout: settings.CharacterLoadTimeout,
	})

	serverConfig := api.DefaultServerConfig()
	serverConfig.Port = settings.Port
	serverConfig.ShutdownTimeout = settings.ShutdownTimeout
	server := api.NewServer(router, serverConfig, logger)
	// Open sync streams would otherwise hold shutdown until its deadline
	server.OnShutdown(app.Sync.Stop)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("env", string(settings.Env())),
		slog.String("storage", settings.StorageType),
	)

	var serveErr error
	select {
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server error", slog.String("error", serveErr.Error()))
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("application shutdown error", slog.String("error", err.Error()))
		return errors.Join(serveErr, err)
	}

	logger.Info("server stopped")
	return serveErr
}
