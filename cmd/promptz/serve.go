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

	"github.com/cremich/promptz-sub001/pkg/promptz/api"
	"github.com/cremich/promptz-sub001/pkg/promptz/config"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Create missing tables before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger, migrate bool) error {
	rt, err := cfg.Build(ctx, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if migrate {
		if err := rt.Migrate(ctx); err != nil {
			return err
		}
	}

	srv, cleanup, err := newServer(cfg, rt, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	store, _ := config.ParseStoreURL(cfg.StoreURL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting",
			"addr", srv.Addr,
			"env", cfg.Environment,
			"store", store.Type,
			"sinks", rt.Publisher.Len(),
			"archive", rt.Replayer != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server exited")
	return nil
}

// newServer assembles the HTTP server. cleanup stops the rate limiter.
func newServer(cfg *config.ServerConfig, rt *config.Runtime, logger *slog.Logger) (*http.Server, func(), error) {
	auth, err := api.NewAuthenticator([]byte(cfg.JWTSecret))
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	handlerOpts := []api.HandlerOption{api.WithLogger(logger), api.WithAuthenticator(auth)}
	if cfg.CounterRateLimit > 0 {
		limiter := api.NewLimiter(cfg.CounterRateLimit, time.Minute, cfg.CounterRateLimit)
		cleanup = limiter.Close
		handlerOpts = append(handlerOpts, api.WithCounterLimiter(limiter))
	}

	httpMetrics, err := api.NewHTTPMetrics(rt.Metrics)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	router := api.NewRouter(api.RouterConfig{
		Handler:        api.NewHandler(rt.Service, rt.Registry, handlerOpts...),
		Logger:         logger,
		Gatherer:       rt.Metrics,
		HTTPMetrics:    httpMetrics,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		TrustProxy:     cfg.TrustProxy,
	})

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}, cleanup, nil
}

func migrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables of every kind in the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			rt, err := cfg.Build(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("Migration complete", "kinds", len(rt.Registry.Kinds()))
			return nil
		},
	}
}
