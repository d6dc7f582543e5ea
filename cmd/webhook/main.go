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

	"botgw/internal/agent"
	"botgw/internal/awsutil"
	"botgw/internal/commerce/shopify"
	"botgw/internal/config"
	"botgw/internal/httpapi"
	"botgw/internal/logging"
	"botgw/internal/observability"
	"botgw/internal/provider"
	sqsqueue "botgw/internal/queue/sqs"
	"botgw/internal/reply"
	"botgw/internal/store/pg"
	"botgw/internal/util"
	"botgw/internal/webhookserver"
)

func main() {
	cfg := config.LoadWebhook()
	logging.Init("webhook", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{})
	if err != nil {
		slog.Error("webhook db connect failed", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	st := pg.New(db)

	ai := &provider.Client{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Referer: cfg.ProviderReferer,
		Title:   cfg.ProviderTitle,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}

	// The commerce agent only exists when a storefront is configured;
	// ecommerce bots fall back to plain completions otherwise.
	var agentRunner reply.AgentRunner
	if cfg.ShopifyStoreDomain != "" && cfg.ShopifyStorefrontToken != "" {
		commerce := &shopify.Client{
			StoreDomain: cfg.ShopifyStoreDomain,
			Token:       cfg.ShopifyStorefrontToken,
			APIVersion:  cfg.ShopifyAPIVersion,
			HTTP:        &http.Client{Timeout: 15 * time.Second},
		}
		agentRunner = &agent.Agent{
			AI:       ai,
			Commerce: commerce,
			Model:    cfg.AgentModel,
			MaxTurns: cfg.AgentMaxTurns,
		}
	}

	orchestrator := &reply.Orchestrator{
		AI:           ai,
		Agent:        agentRunner,
		ChatModel:    cfg.ChatModel,
		CompactModel: cfg.CompactModel,
	}

	var enqueuer webhookserver.Enqueuer
	if cfg.ReplyQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("webhook sqs client init failed", "err", err)
			os.Exit(1)
		}
		enqueuer = &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.ReplyQueueURL}
	}

	gateway := &webhookserver.Gateway{
		Store:        st,
		Replier:      orchestrator,
		Queue:        enqueuer,
		LogIDGen:     util.NewWebhookLogID,
		JobIDGen:     util.NewReplyJobID,
		ReplyTimeout: time.Duration(cfg.ReplyTimeoutSeconds) * time.Second,
	}

	s := httpapi.New()
	gateway.Register(s.Mux)

	s.Mux.HandleFunc("/healthz", httpapi.Healthz())
	s.Mux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))

	handler := httpapi.Logging(httpapi.Metrics(observability.APIRequests)(s.Mux))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("webhook shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("webhook listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("webhook server failed", "err", err)
		os.Exit(1)
	}

	db.Close()
}
