package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/support-widget/internal/config"
	"github.com/zhouzirui/support-widget/internal/handler"
	"github.com/zhouzirui/support-widget/internal/handler/widget"
	"github.com/zhouzirui/support-widget/internal/logging"
	"github.com/zhouzirui/support-widget/internal/service/chat"
	"github.com/zhouzirui/support-widget/internal/service/orchestrator"
	"github.com/zhouzirui/support-widget/internal/service/push"
	"github.com/zhouzirui/support-widget/internal/service/render"
	"github.com/zhouzirui/support-widget/internal/service/transport"
	"github.com/zhouzirui/support-widget/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, using system environment only")
	}

	store, err := storage.Open(ctx, storage.Options{
		Driver:        cfg.Storage.Driver,
		SQLitePath:    cfg.Storage.SQLitePath,
		RedisAddr:     cfg.Storage.RedisAddr,
		RedisPassword: cfg.Storage.RedisPassword,
		RedisDB:       cfg.Storage.RedisDB,
		TTL:           cfg.Storage.TTL,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to open storage")
	}
	defer store.Close()
	log.Info().Str("driver", cfg.Storage.Driver).Msg("session storage ready")

	hub := push.NewHub()
	tabs := chat.NewService(chat.Config{
		API:        transport.NewHTTPAPI(cfg.Widget.BackendURL, cfg.Widget.RequestTimeout),
		Storage:    store,
		Presenters: hub.Presenter,
		Render: render.Options{
			FallbackDelay: cfg.Widget.FallbackDelay,
			MaxBlockLen:   cfg.Widget.MaxBlockLen,
			AvatarURL:     cfg.Widget.AvatarURL(),
		},
		Orchestrator: orchestrator.Options{
			MaxAttempts: cfg.Widget.MaxAttempts,
			RetryDelay:  cfg.Widget.RetryDelay,
		},
		IdleTTL: cfg.Storage.TTL,
	})
	defer tabs.Close()

	widgetHandler := widget.New(tabs, hub, widget.Options{
		BackendURL:    cfg.Widget.BackendURL,
		FrontendURL:   cfg.Widget.FrontendURL,
		AvatarURL:     cfg.Widget.AvatarURL(),
		RatePerSecond: cfg.RateLimit.PerSecond,
		RateBurst:     cfg.RateLimit.Burst,
	})

	router := handler.NewRouter(widgetHandler, handler.StaticConfig{
		Dir:        cfg.Widget.FrontendDir,
		AvatarPath: cfg.Widget.AvatarPath,
	})

	go tabs.RunJanitor(ctx, janitorInterval(cfg.Storage.TTL))

	startServer(ctx, cfg.Server, router)
	widgetHandler.Wait()
}

// janitorInterval sweeps often enough that a tab outlives its TTL by at most
// a quarter of it.
func janitorInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = chat.DefaultIdleTTL
	}
	return max(ttl/4, time.Second)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("support widget gateway listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
