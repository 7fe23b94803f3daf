package di

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/nuage-shop/api/internal/domain"
	"github.com/nuage-shop/api/internal/payments"
	"github.com/nuage-shop/api/internal/platform/config"
	pfirestore "github.com/nuage-shop/api/internal/platform/firestore"
	"github.com/nuage-shop/api/internal/platform/jobs"
	"github.com/nuage-shop/api/internal/platform/observability"
	"github.com/nuage-shop/api/internal/repositories"
	firestoreRepo "github.com/nuage-shop/api/internal/repositories/firestore"
	"github.com/nuage-shop/api/internal/services"
)

// Deps carries the externally constructed infrastructure the container wires
// together. The caller owns the lifecycle of the Firestore provider and the
// Pub/Sub client; the container owns the topic it derives from them.
type Deps struct {
	Config    config.Config
	Logger    *zap.Logger
	Firestore *pfirestore.Provider
	PubSub    *pubsub.Client

	// Tracker is optional; when nil, settled purchases are recorded in logs only.
	Tracker services.ConversionTracker
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Checkout      services.CheckoutService
	Orders        services.OrderService
	PaymentEvents services.PaymentEventService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config config.Config

	Orders   repositories.OrderRepository
	Counters repositories.CounterRepository
	Catalog  repositories.ProductCatalog

	Payments   payments.Provider
	Publisher  services.NotificationPublisher
	Dispatcher *services.NotificationDispatcher
	Services   Services

	topic *pubsub.Topic
}

// NewContainer constructs the runtime dependencies.
func NewContainer(ctx context.Context, deps Deps) (*Container, error) {
	if deps.Firestore == nil {
		return nil, errors.New("di: firestore provider is required")
	}
	if deps.PubSub == nil {
		return nil, errors.New("di: pubsub client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config

	orderRepo, err := firestoreRepo.NewOrderRepository(deps.Firestore)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	counterRepo, err := firestoreRepo.NewCounterRepository(deps.Firestore)
	if err != nil {
		return nil, fmt.Errorf("build counter repository: %w", err)
	}
	productRepo, err := firestoreRepo.NewProductRepository(deps.Firestore)
	if err != nil {
		return nil, fmt.Errorf("build product repository: %w", err)
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Logger:        observability.EventLogger(logger.Named("stripe")),
	})
	if err != nil {
		return nil, fmt.Errorf("build stripe provider: %w", err)
	}

	topic := deps.PubSub.Topic(cfg.PubSub.NotificationTopic)
	publisher, err := jobs.NewPubSubNotificationPublisher(topic)
	if err != nil {
		return nil, fmt.Errorf("build notification publisher: %w", err)
	}

	dispatcher, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
		Publisher: publisher,
		Logger:    observability.EventLogger(logger.Named("notifications")),
	})
	if err != nil {
		return nil, fmt.Errorf("build notification dispatcher: %w", err)
	}

	tracker := deps.Tracker
	if tracker == nil {
		tracker = &logConversionTracker{log: observability.EventLogger(logger.Named("analytics"))}
	}

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:            orderRepo,
		Counters:          counterRepo,
		Catalog:           productRepo,
		Payments:          stripeProvider,
		SuccessURL:        cfg.Stripe.SuccessURL,
		CancelURL:         cfg.Stripe.CancelURL,
		Currency:          cfg.Shop.Currency,
		Locale:            cfg.Stripe.Locale,
		OrderNumberPrefix: cfg.Shop.OrderNumberPrefix,
		Logger:            observability.EventLogger(logger.Named("checkout")),
	})
	if err != nil {
		return nil, fmt.Errorf("build checkout service: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     orderRepo,
		Dispatcher: dispatcher,
		Logger:     observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	paymentEventSvc, err := services.NewPaymentEventService(services.PaymentEventServiceDeps{
		Orders:     orderRepo,
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Logger:     observability.EventLogger(logger.Named("payments")),
	})
	if err != nil {
		return nil, fmt.Errorf("build payment event service: %w", err)
	}

	return &Container{
		Config:     cfg,
		Orders:     orderRepo,
		Counters:   counterRepo,
		Catalog:    productRepo,
		Payments:   stripeProvider,
		Publisher:  publisher,
		Dispatcher: dispatcher,
		Services: Services{
			Checkout:      checkoutSvc,
			Orders:        orderSvc,
			PaymentEvents: paymentEventSvc,
		},
		topic: topic,
	}, nil
}

// NotificationTopic exposes the outbox topic for readiness probes.
func (c *Container) NotificationTopic() *pubsub.Topic {
	if c == nil {
		return nil
	}
	return c.topic
}

// Close flushes outstanding notification publishes. The Firestore provider and
// Pub/Sub client are closed by their owner.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.topic == nil {
		return nil
	}
	c.topic.Stop()
	return nil
}

// logConversionTracker records settled purchases in the structured log stream.
// It stands in until a real analytics backend is wired.
type logConversionTracker struct {
	log func(ctx context.Context, event string, fields map[string]any)
}

func (t *logConversionTracker) TrackPurchase(ctx context.Context, order domain.Order) error {
	t.log(ctx, "analytics.purchase", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"totalAmount": order.Total,
	})
	return nil
}
