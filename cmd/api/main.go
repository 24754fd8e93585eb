package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"summit-webhook/internal/client"
	"summit-webhook/internal/config"
	"summit-webhook/internal/logger"
	"summit-webhook/internal/repository"
	"summit-webhook/internal/server"
	"summit-webhook/internal/service"
	"summit-webhook/pkg/rabbitmq"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log, cfg.Environment.Name)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := client.InitDBClient(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("init database", zap.Error(err))
	}

	accountStore := newAccountStore(log, cfg, repository.NewAccountRepository(db))

	failures := service.FanoutSink{repository.NewFulfillmentFailureRepository(db)}
	if cfg.DeadLetter.AMQPURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.DeadLetter.AMQPURL)
		if err != nil {
			// failures still land in the database table
			log.Error("connect dead-letter broker", zap.Error(err))
		} else {
			defer producer.Close()
			failures = append(failures, &rabbitmq.FailureSink{
				Publisher:  producer,
				Exchange:   cfg.DeadLetter.Exchange,
				RoutingKey: cfg.DeadLetter.RoutingKey,
			})
		}
	}

	if !cfg.Webhook.SecretConfigured() {
		log.Warn("WEBHOOK_SECRET is not configured: webhook signatures will NOT be verified",
			zap.String("provider", cfg.Webhook.Provider),
		)
	}

	fulfillmentService := service.NewFulfillmentService(log, accountStore, cfg.Webhook.PaidPlan, cfg.Webhook.StoreTimeout)
	webhookService := service.NewWebhookService(
		log,
		cfg.Webhook.Provider,
		cfg.Webhook.PaidPlan,
		service.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.SecretConfigured()),
		fulfillmentService,
		repository.NewWebhookEventRepository(db),
		failures,
		cfg.Webhook.StoreTimeout,
	)

	serverAddr := cfg.Address()

	// Init HTTP server
	srv := server.NewServer(log, cfg.ServiceName, cfg.Webhook.MaxBody, webhookService)

	log.Info("starting HTTP server",
		zap.String("address", serverAddr),
		zap.String("provider", cfg.Webhook.Provider),
		zap.Bool("signature_verification", webhookService.SignatureVerificationEnabled()),
		zap.Bool("fulfillment", webhookService.FulfillmentEnabled()),
	)
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Info("signal received, starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
}

// newAccountStore picks the hosted backend when one is configured and falls
// back to the local database otherwise. A backend without a service key
// yields no store at all: fulfillment is disabled rather than attempted with
// credentials that cannot write.
func newAccountStore(log *zap.Logger, cfg *config.Config, local repository.AccountStore) repository.AccountStore {
	if !cfg.Backend.Enabled() {
		return local
	}

	store, err := client.NewBackendClient(&cfg.Backend)
	if err != nil {
		log.Error("BACKEND_URL is set but the backend client is unusable: payment fulfillment is DISABLED",
			zap.String("backend_url", cfg.Backend.URL),
			zap.Error(err),
		)
		return nil
	}
	return store
}
