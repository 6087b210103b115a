package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/carepoint/carepoint/internal/app"
	"github.com/carepoint/carepoint/internal/assignments"
	"github.com/carepoint/carepoint/internal/auth"
	"github.com/carepoint/carepoint/internal/observability"
	"github.com/carepoint/carepoint/internal/platform/cache"
	"github.com/carepoint/carepoint/internal/platform/db"
	"github.com/carepoint/carepoint/internal/shared"
	"github.com/carepoint/carepoint/jobs"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "carepoint",
		Short:         "CarePoint hospital access server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(accessCmd())
	rootCmd.AddCommand(jobsCmd())

	if err := rootCmd.Execute(); err != nil {
		var code exitError
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		slog.Default().Error("carepoint", slog.Any("error", err))
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.InTestMode() {
				slog.Default().Info("test mode detected, skipping runtime startup")
				return nil
			}
			return runServer()
		},
	}
}

func runServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient := cache.New(cfg.RedisAddr)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	err = app.AwaitReady(ctx, cfg.StartupTimeout,
		app.ReadinessCheck{Name: "postgres", Probe: dbpool.Ping},
		app.ReadinessCheck{Name: "redis", Probe: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	)
	if err != nil {
		return err
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	notifier, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	application, err := app.Build(app.Backends{
		Logger:      logger,
		Config:      cfg,
		Sessions:    shared.NewSessionManager(redisClient, "carepoint_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction()),
		Accounts:    auth.NewRepository(dbpool),
		Assignments: assignments.NewPGStore(dbpool),
		Notifier:    notifier,
		Audit:       shared.NewAuditLogger(dbpool),
		Metrics:     observability.NewMetrics(),
		JobHandler:  jobs.NewHandler(inspector, logger),
	})
	if err != nil {
		return err
	}
	defer application.Close()

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           application.Handler,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}
