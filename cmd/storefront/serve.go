package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/marketplace/storefront/docs"
	"github.com/marketplace/storefront/internal/api"
	"github.com/marketplace/storefront/internal/api/metrics"
	"github.com/marketplace/storefront/internal/core/service"
	"github.com/marketplace/storefront/internal/infrastructure/config"
	mongodb "github.com/marketplace/storefront/internal/infrastructure/db/mongo"
	"github.com/marketplace/storefront/internal/infrastructure/http/handlers"
	"github.com/marketplace/storefront/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront HTTP server as one execution context",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to serve")
	}

	store, release, err := openStore(ctx, cfg, logger.Component("durable_store"))
	if err != nil {
		return err
	}
	defer release()
	log = log.With().Str("context_id", store.ContextID()).Logger()

	client, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() { _ = mongodb.Disconnect(client) }()

	users := mongodb.NewUserRepository(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}
	credentials := service.NewCredentialService(users, cfg.JWTSecret, cfg.TokenTTL, log)

	sessions := service.NewSessionStore(store, log,
		service.WithSessionKeys(sessionKeys(cfg)),
		service.WithObserver(metrics.SessionRecorder{}),
	)
	defer sessions.Close()
	// Requests arriving before the first read see the loading state.
	go sessions.Init(ctx)

	e := api.NewRouter(api.Dependencies{
		Credentials: credentials,
		Sessions:    sessions,
		Readiness: map[string]handlers.Check{
			"durable_store": store.Ping,
			"mongodb": func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			},
		},
		Log: log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("backend", cfg.Store.Backend).Msg("storefront listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
