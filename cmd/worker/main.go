package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"sengine/internal/config"
	"sengine/internal/db"
	"sengine/internal/gateway"
	"sengine/internal/handler"
	"sengine/internal/logger"
	"sengine/internal/queue"
	"sengine/internal/ratelimit"
	"sengine/internal/repository"
	"sengine/internal/service"
	"sengine/internal/worker"
)

const version = "1.0.0"

func main() {
	// Load .env file (ignore error in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger()
	if cfg.IsDevelopment() {
		log = logger.NewConsoleLogger()
	}
	log.WithField("version", version).Info("Starting sengine worker")

	pools, err := db.Open(cfg)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("Failed to open database pools")
	}
	defer pools.Close()
	log.Info("Connected to database")

	conn, err := queue.NewConnection(cfg.RabbitMQ.URL, log)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("Failed to connect to RabbitMQ")
	}
	defer conn.Close()

	if err := queue.DeclareTopology(conn); err != nil {
		log.WithField("error", err.Error()).Fatal("Failed to declare broker topology")
	}

	publisher, err := queue.NewPublisher(conn)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("Failed to create publisher")
	}

	// Repositories
	scheduledRepo := repository.NewScheduledMessageRepository(pools)
	messageRepo := repository.NewMessageRepository(pools)
	contactRepo := repository.NewContactRepository(pools)
	userRepo := repository.NewUserRepository(pools)
	dripContactRepo := repository.NewDripContactRepository(pools)
	creditRepo := repository.NewCreditRepository(pools)
	webhookRepo := repository.NewWebhookRepository(pools)
	optOutRepo := repository.NewOptOutRepository(pools)

	// Services
	creditSvc := service.NewCreditService(creditRepo, log)
	templateSvc := service.NewTemplateService()
	webhookSvc := service.NewWebhookService(webhookRepo, publisher, log)
	gatewayClient := gateway.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, log)
	pacer := ratelimit.NewSendLimiter(cfg.Twilio.RateLimitPerSec, cfg.Twilio.RateLimitBurst)

	// Workers
	dispatcher := worker.NewDispatcher(
		scheduledRepo, messageRepo, contactRepo, userRepo, dripContactRepo,
		creditSvc, templateSvc, gatewayClient, pacer, webhookSvc,
		cfg.Twilio.StatusCallbackURL, log,
	)
	reconciler := worker.NewStatusReconciler(messageRepo, webhookSvc, log)
	inbound := worker.NewInboundWorker(userRepo, contactRepo, messageRepo, optOutRepo, webhookSvc, publisher, log)
	webhookDispatcher := worker.NewWebhookDispatcher(webhookRepo, log)

	consumers, err := buildConsumers(cfg, conn, log, dispatcher.HandleDelivery, reconciler.HandleDelivery, inbound.HandleDelivery, webhookDispatcher.HandleDelivery)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("Failed to create consumers")
	}

	scheduler := worker.NewPreQueueScheduler(
		scheduledRepo, publisher, conn,
		cfg.Drip.PreQueueInterval, cfg.PreQueueWindow(), cfg.Drip.PreQueueBatch,
		log,
	)
	monitor := worker.NewQueueMonitor(conn, log)

	supervisor := worker.NewSupervisor(consumers, scheduler, monitor, cfg.Worker.KillTimeout, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := supervisor.Start(ctx); err != nil {
		log.WithField("error", err.Error()).Fatal("Failed to start worker components")
	}

	opsServer := startOpsServer(cfg, pools, conn, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("Shutting down")

	supervisor.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err.Error()).Warn("Ops server shutdown failed")
	}

	conn.Close()
	pools.Close()
	log.Info("Worker stopped")
}

// buildConsumers wires one consumer per queue the worker owns. Consumer tags
// carry a process-unique suffix so the broker can cancel them individually.
func buildConsumers(
	cfg *config.Config,
	conn *queue.Connection,
	log logger.Logger,
	dispatch, status, inbound, webhook func(context.Context, amqp.Delivery) error,
) ([]*queue.Consumer, error) {
	suffix := uuid.New().String()[:8]

	specs := []struct {
		queue    string
		tag      string
		prefetch int
		handler  queue.DeliveryHandler
		enabled  bool
	}{
		{queue.QueueDripMessages, "drip-dispatcher-" + suffix, cfg.Drip.ConsumerPrefetch, dispatch, true},
		{queue.QueueInboxStatus, "status-reconciler-" + suffix, cfg.Worker.MessagePrefetch, status, true},
		{queue.QueueInboxInbound, "inbound-ingestor-" + suffix, cfg.Worker.MessagePrefetch, inbound, cfg.Worker.MessageWorkerEnabled},
		{queue.QueueInboxWebhook, "webhook-dispatcher-" + suffix, cfg.Worker.MessagePrefetch, webhook, true},
	}

	var consumers []*queue.Consumer
	for _, spec := range specs {
		if !spec.enabled {
			continue
		}
		c, err := queue.NewConsumer(conn, spec.queue, spec.tag, spec.prefetch, spec.handler, log)
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, c)
	}
	return consumers, nil
}

func startOpsServer(cfg *config.Config, pools *db.Pools, conn *queue.Connection, log logger.Logger) *http.Server {
	healthSvc := service.NewHealthService(pools, conn, version)
	router := handler.NewRouter(
		handler.NewHealthHandler(healthSvc),
		handler.NewQueuesHandler(conn),
		log,
	)

	server := &http.Server{
		Addr:    ":" + cfg.Ops.Port,
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Ops.Port).Info("Ops HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err.Error()).Error("Ops server failed")
		}
	}()

	return server
}
