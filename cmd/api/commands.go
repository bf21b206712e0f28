package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mateatletas/payments/config"
	"github.com/mateatletas/payments/internal/api"
	"github.com/mateatletas/payments/internal/platform/mercadopago"
	"github.com/mateatletas/payments/internal/platform/postgres"
)

const shutdownTimeout = 10 * time.Second

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "payments",
		Short:        "Mercado Pago checkout, webhook and membership lifecycle service",
		SilenceUsage: true,
	}
	serve := serveCommand()
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, migrateCommand(), sweepCommand())
	return root
}

func serveCommand() *cobra.Command {
	var skipMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the overdue scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger, !skipMigrations)
			if err != nil {
				logger.Error("startup failed", zap.Error(err))
				return err
			}
			defer a.Close()

			return a.serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply database migrations on startup")
	return cmd
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if cfg.Database.Driver != config.StoragePostgres {
				return fmt.Errorf("migrate requires STORAGE_DRIVER=%s", config.StoragePostgres)
			}
			db, err := postgres.Open(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()
			return postgres.Migrate(db, logger)
		},
	}
}

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-overdue",
		Short: "Mark lapsed memberships as overdue once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			a, err := newApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			marked, err := a.sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d memberships overdue\n", marked)
			return nil
		},
	}
}

// bootstrap loads .env (best effort), configuration and the logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration error", zap.Error(err))
		return nil, nil, err
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}
	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("storage", cfg.Database.Driver),
		zap.String("backoffice_url", cfg.Core.BaseURL),
		zap.Bool("mock_mode", mercadopago.IsMockToken(cfg.MercadoPago.AccessToken)))
	return cfg, logger, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func (a *app) serve(ctx context.Context) error {
	if err := a.sweeper.Start(a.cfg.Scheduler.OverdueSchedule); err != nil {
		return fmt.Errorf("schedule overdue sweep: %w", err)
	}
	defer func() { <-a.sweeper.Stop().Done() }()

	handler := api.NewHandler(a.service, a.logger)
	router := api.SetupRouter(handler, api.RouterConfig{
		GinMode:          a.cfg.Server.GinMode,
		AllowedOrigin:    a.cfg.FrontendURL,
		JWTSecret:        a.cfg.Security.JWTSecret,
		WebhookValidator: mercadopago.NewWebhookValidator(a.cfg.Security.WebhookSecret),
		RequireSignature: a.cfg.IsProduction(),
		Gatherer:         a.registry,
		Logger:           a.logger,
	})

	srv := &http.Server{
		Addr:              ":" + a.cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		a.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	a.logger.Info("server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
