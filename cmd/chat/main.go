package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"botgw/internal/chatserver"
	"botgw/internal/config"
	"botgw/internal/httpapi"
	"botgw/internal/logging"
	"botgw/internal/observability"
	"botgw/internal/provider"
)

func main() {
	cfg := config.LoadChat()
	logging.Init("chat", cfg.LogFormat)

	observability.Register(prometheus.DefaultRegisterer)

	ai := &provider.Client{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Referer: cfg.ProviderReferer,
		Title:   cfg.ProviderTitle,
		// streams stay open for the whole completion
		HTTP: &http.Client{Timeout: 5 * time.Minute},
	}

	api := &chatserver.API{
		AI:           ai,
		ChatModel:    cfg.ChatModel,
		DefaultModel: cfg.DefaultModel,
	}

	s := httpapi.New()
	api.Register(s.Mux)
	s.Mux.HandleFunc("/healthz", httpapi.Healthz())
	s.Mux.HandleFunc("/readyz", httpapi.Readyz(0))

	handler := httpapi.Logging(httpapi.Metrics(observability.APIRequests)(s.Mux))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("chat shutdown", "signal", sig.String())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("chat listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("chat server failed", "err", err)
		os.Exit(1)
	}
}
