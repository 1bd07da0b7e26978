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

	"github.com/zacharycox-tamu/mcp-checkuptime/internal/authz"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/config"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/dispatch"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/httpapi"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/logctx"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/sessions"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/tools"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config.load.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}

	log := slog.New(logctx.Handler{
		Handler: slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	store, err := newSessionStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := tools.NewRegistry(log, tools.ExecRunner{})
	disp := dispatch.New(log, reg)

	handler := httpapi.New(disp, store, newAuthorizer(cfg, log), httpapi.WithLogger(log))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server.start",
			slog.String("addr", cfg.Addr()),
			slog.Bool("auth", cfg.AuthEnabled()),
			slog.String("session_backend", cfg.SessionBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server.shutdown.start")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server.shutdown.done")
	return nil
}

func newSessionStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (sessions.Store, error) {
	switch cfg.SessionBackend {
	case "redis":
		log.Info("sessions.backend", slog.String("backend", "redis"), slog.String("addr", cfg.RedisAddr))
		return sessions.NewRedisStore(ctx, sessions.RedisConfig{
			Addr:      cfg.RedisAddr,
			KeyPrefix: cfg.RedisKeyPrefix,
			TTL:       cfg.SessionTTL,
		})
	default:
		log.Info("sessions.backend", slog.String("backend", "memory"))
		return sessions.NewMemoryStore(sessions.WithTTL(cfg.SessionTTL)), nil
	}
}

func newAuthorizer(cfg *config.Config, log *slog.Logger) authz.Authorizer {
	switch {
	case cfg.JWTSecret != "":
		log.Info("auth.mode", slog.String("mode", "jwt"))
		return authz.HS256([]byte(cfg.JWTSecret))
	case cfg.BearerToken != "":
		log.Info("auth.mode", slog.String("mode", "static_token"))
		return authz.StaticToken(cfg.BearerToken)
	default:
		log.Info("auth.mode", slog.String("mode", "disabled"))
		return authz.Disabled()
	}
}
