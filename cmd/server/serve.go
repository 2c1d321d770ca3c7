package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/esvd-explorer/server/internal/api"
	"github.com/esvd-explorer/server/internal/session"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(opts, false)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg
	logger := a.logger

	logger.Info("starting ESVD explorer", zap.Int("port", cfg.Server.Port))

	registry, err := a.registry(ctx)
	if err != nil {
		return err
	}

	sessions, err := session.NewStore(session.Config{
		MaxSessions: cfg.Session.MaxSessions,
		IdleTTL:     time.Duration(cfg.Session.IdleTTLMinutes) * time.Minute,
	}, logger.Named("session"))
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	sessions.OnChange = a.metrics.SetSessions
	sessions.Start()
	defer sessions.Stop()
	logger.Info("session store ready",
		zap.Int("max_sessions", cfg.Session.MaxSessions),
		zap.Int("idle_ttl_minutes", cfg.Session.IdleTTLMinutes),
	)

	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		CORSOrigins: cfg.Server.CORSOrigins,
		Sessions:    sessions,
		Metrics:     a.metrics,
		Logger:      logger.Named("http"),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}
