package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/orderlane/api/internal/di"
	"github.com/orderlane/api/internal/handlers"
	"github.com/orderlane/api/internal/platform/auth"
	"github.com/orderlane/api/internal/platform/config"
	pfirestore "github.com/orderlane/api/internal/platform/firestore"
	"github.com/orderlane/api/internal/platform/idempotency"
	"github.com/orderlane/api/internal/platform/jobs"
	"github.com/orderlane/api/internal/platform/observability"
	"github.com/orderlane/api/internal/platform/secrets"
	firestoreRepo "github.com/orderlane/api/internal/repositories/firestore"
	"github.com/orderlane/api/internal/services"
)

const idempotencyCleanupInterval = time.Hour

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		os.Stderr.WriteString("failed to initialise logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx, secrets.WithLogger(logger.Named("secrets")))
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, cfg.Firestore)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	// Event publishing is optional; a blank project disables it (local runs,
	// emulator-only environments).
	var (
		orderEvents     services.OrderEventPublisher
		inventoryEvents services.InventoryEventPublisher
	)
	if strings.TrimSpace(cfg.Events.ProjectID) != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		orderTopic := pubsubClient.Topic(cfg.Events.OrdersTopic)
		inventoryTopic := pubsubClient.Topic(cfg.Events.InventoryTopic)
		defer orderTopic.Stop()
		defer inventoryTopic.Stop()

		publisher, err := jobs.NewPubSubEventPublisher(orderTopic, inventoryTopic)
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
		orderEvents = publisher
		inventoryEvents = publisher
	}

	container, err := di.NewContainer(ctx, di.ContainerDeps{
		Config:          cfg,
		Registry:        registry,
		Logger:          logger.Named("services"),
		OrderEvents:     orderEvents,
		InventoryEvents: inventoryEvents,
	})
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to obtain firestore client", zap.Error(err))
	}
	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(idempotencyCleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("idempotency")
		for {
			select {
			case <-cleanupTicker.C:
				runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
				removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), 500)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	orderHandlers := handlers.NewOrderHandlers(
		container.Services.Orders,
		container.Services.Cancellations,
		container.Services.Refunds,
		container.Services.Shipments,
	)
	cancellationHandlers := handlers.NewCancellationHandlers(container.Services.Cancellations)
	refundHandlers := handlers.NewRefundHandlers(container.Services.Refunds)
	shipmentHandlers := handlers.NewShipmentHandlers(container.Services.Shipments)
	inventoryHandlers := handlers.NewInventoryHandlers(container.Services.Inventory)
	auditHandlers := handlers.NewAuditHandlers(container.Services.Audit)
	webhookHandlers := handlers.NewPaymentWebhookHandlers(container.WebhookDecoder, container.SettlementProcessor)
	healthHandlers := handlers.NewHealthHandlers(registry.Health())

	extractor := auth.NewExtractor()

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
			idempotencyMiddleware,
		),
		handlers.WithIdentityMiddleware(extractor.RequireActor()),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(
			orderHandlers.Routes,
			cancellationHandlers.OrderRoutes,
			refundHandlers.OrderRoutes,
			shipmentHandlers.OrderRoutes,
			auditHandlers.OrderRoutes,
		),
		handlers.WithCancellationRoutes(cancellationHandlers.Routes),
		handlers.WithRefundRoutes(refundHandlers.Routes),
		handlers.WithShipmentRoutes(shipmentHandlers.Routes),
		handlers.WithInventoryRoutes(inventoryHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("orderlane api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
