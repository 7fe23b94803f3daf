package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/nuage-shop/api/internal/di"
	"github.com/nuage-shop/api/internal/handlers"
	"github.com/nuage-shop/api/internal/platform/auth"
	"github.com/nuage-shop/api/internal/platform/config"
	pfirestore "github.com/nuage-shop/api/internal/platform/firestore"
	"github.com/nuage-shop/api/internal/platform/idempotency"
	"github.com/nuage-shop/api/internal/platform/observability"
	"github.com/nuage-shop/api/internal/platform/secrets"
)

const shutdownGrace = 15 * time.Second

// Populated at build time via -ldflags.
var (
	version   = "dev"
	commitSHA = ""
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(defaultSecretProject()),
	)
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
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("configuration incomplete", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()

	container, err := di.NewContainer(ctx, di.Deps{
		Config:    cfg,
		Logger:    logger,
		Firestore: firestoreProvider,
		PubSub:    pubsubClient,
	})
	if err != nil {
		logger.Fatal("failed to assemble dependencies", zap.Error(err))
	}
	defer func() {
		if err := container.Close(context.Background()); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(zap.NewStdLog(logger.Named("idempotency"))),
	)

	if strings.TrimSpace(cfg.Admin.HMACSecret) == "" {
		logger.Warn("admin hmac secret is not configured; signed routes will refuse requests")
	}
	hmacValidator := auth.NewHMACValidator(
		auth.StaticSecretProvider(cfg.Admin.HMACSecret),
		auth.NewInMemoryNonceStore(),
		auth.WithHMACHeaders(cfg.Admin.SignatureHeader, cfg.Admin.TimestampHeader, cfg.Admin.NonceHeader),
		auth.WithHMACClockSkew(cfg.Admin.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Admin.NonceTTL),
		auth.WithHMACLogger(zap.NewStdLog(logger.Named("auth"))),
	)
	signedRoutes := hmacValidator.RequireHMAC("admin")

	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(handlers.BuildInfo{
			Version:     version,
			CommitSHA:   commitSHA,
			Environment: cfg.Environment,
			StartedAt:   startedAt,
		}),
		handlers.WithReadyCheck("firestore", firestoreReadyCheck(firestoreClient)),
		handlers.WithReadyCheck("pubsub", pubsubReadyCheck(container.NotificationTopic())),
	)

	orderHandlers := handlers.NewOrderHandlers(container.Services.Orders)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(container.Services.Checkout).Routes),
		handlers.WithCheckoutMiddlewares(idempotencyMiddleware),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPublicOrderRoutes(orderHandlers.PublicRoutes),
		handlers.WithOrderMiddlewares(signedRoutes),
		handlers.WithAdminRoutes(handlers.NewAdminHandlers(container.Services.Orders).Routes),
		handlers.WithAdminMiddlewares(signedRoutes),
		handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(container.Payments, container.Services.PaymentEvents).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("environment", cfg.Environment),
			zap.String("version", version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	case <-runCtx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func defaultSecretProject() string {
	for _, key := range []string{"NUAGE_FIRESTORE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"} {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func firestoreReadyCheck(client *firestore.Client) handlers.ReadyCheck {
	return func(ctx context.Context) error {
		iter := client.Collection("orders").Limit(1).Documents(ctx)
		defer iter.Stop()
		if _, err := iter.Next(); err != nil && err != iterator.Done {
			return err
		}
		return nil
	}
}

func pubsubReadyCheck(topic *pubsub.Topic) handlers.ReadyCheck {
	return func(ctx context.Context) error {
		ok, err := topic.Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("topic %s does not exist", topic.ID())
		}
		return nil
	}
}
