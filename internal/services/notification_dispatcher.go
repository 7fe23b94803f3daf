package services

import (
	"context"
	"errors"
	"time"

	"github.com/nuage-shop/api/internal/domain"
)

const defaultNotificationTimeout = 10 * time.Second

// NotificationDispatcherDeps wires the dependencies of the dispatcher.
type NotificationDispatcherDeps struct {
	Publisher NotificationPublisher
	Logger    func(ctx context.Context, event string, fields map[string]any)
	// Launch runs the publish attempt; defaults to a plain goroutine. Tests
	// inject a synchronous variant.
	Launch  func(fn func())
	Timeout time.Duration
}

// NotificationDispatcher publishes notification messages to the outbox topic
// without ever blocking or failing the caller. Publish failures are logged
// and dropped; delivery guarantees beyond that live on the subscription side.
type NotificationDispatcher struct {
	publisher NotificationPublisher
	logger    func(ctx context.Context, event string, fields map[string]any)
	launch    func(fn func())
	timeout   time.Duration
}

// NewNotificationDispatcher constructs a dispatcher validating required dependencies.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (*NotificationDispatcher, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification dispatcher: publisher is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	launch := deps.Launch
	if launch == nil {
		launch = func(fn func()) { go fn() }
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	return &NotificationDispatcher{
		publisher: deps.Publisher,
		logger:    logger,
		launch:    launch,
		timeout:   timeout,
	}, nil
}

// Dispatch publishes the message on a detached context so the triggering
// request can complete independently.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, msg NotificationMessage) {
	if d == nil || d.publisher == nil {
		return
	}
	d.launch(func() {
		publishCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.publisher.Publish(publishCtx, msg); err != nil {
			d.logger(publishCtx, "notifications.publish_failed", map[string]any{
				"kind":        string(msg.Kind),
				"orderId":     msg.OrderID,
				"orderNumber": msg.OrderNumber,
				"error":       err.Error(),
			})
			return
		}
		d.logger(publishCtx, "notifications.published", map[string]any{
			"kind":        string(msg.Kind),
			"orderId":     msg.OrderID,
			"orderNumber": msg.OrderNumber,
		})
	})
}

// DispatchTransition fires the notification matching the order's new status,
// when the status has one.
func (d *NotificationDispatcher) DispatchTransition(ctx context.Context, order domain.Order) {
	msg, ok := TransitionNotification(order)
	if !ok {
		return
	}
	d.Dispatch(ctx, msg)
}

// TransitionNotification maps a freshly applied status to its outbound email.
// Shipped orders without a tracking number deliberately trigger nothing.
func TransitionNotification(order domain.Order) (NotificationMessage, bool) {
	msg := NotificationMessage{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Email:       order.ShippingAddress.Email,
		FirstName:   order.ShippingAddress.FirstName,
		Status:      string(order.Status),
		StatusLabel: domain.OrderStatusLabels[order.Status],
	}

	switch order.Status {
	case domain.OrderStatusConfirmed:
		msg.Kind = NotificationOrderConfirmation
		msg.TotalAmount = order.Total
		return msg, true
	case domain.OrderStatusShipped:
		if order.TrackingNumber == "" {
			return NotificationMessage{}, false
		}
		msg.Kind = NotificationShippingUpdate
		msg.TrackingNumber = order.TrackingNumber
		msg.TrackingURL = order.TrackingURL
		return msg, true
	case domain.OrderStatusProcessing, domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		msg.Kind = NotificationStatusUpdate
		return msg, true
	default:
		return NotificationMessage{}, false
	}
}
