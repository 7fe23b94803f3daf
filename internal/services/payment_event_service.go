package services

import (
	"context"
	"errors"

	"github.com/nuage-shop/api/internal/domain"
	"github.com/nuage-shop/api/internal/payments"
	"github.com/nuage-shop/api/internal/repositories"
)

const paymentStatusPaid = "paid"

// statuses at or beyond the confirmed stage; a completed event arriving for
// one of these is a duplicate delivery.
var confirmedOrBeyond = map[domain.OrderStatus]bool{
	domain.OrderStatusConfirmed:  true,
	domain.OrderStatusProcessing: true,
	domain.OrderStatusShipped:    true,
	domain.OrderStatusDelivered:  true,
}

// PaymentEventServiceDeps wires the dependencies of the payment event service.
type PaymentEventServiceDeps struct {
	Orders     repositories.OrderRepository
	Dispatcher *NotificationDispatcher
	Tracker    ConversionTracker
	Logger     func(ctx context.Context, event string, fields map[string]any)
	// Launch runs best-effort side effects; defaults to a plain goroutine.
	Launch func(fn func())
}

type paymentEventService struct {
	orders     repositories.OrderRepository
	dispatcher *NotificationDispatcher
	tracker    ConversionTracker
	logger     func(ctx context.Context, event string, fields map[string]any)
	launch     func(fn func())
}

// NewPaymentEventService constructs a PaymentEventService validating required dependencies.
func NewPaymentEventService(deps PaymentEventServiceDeps) (PaymentEventService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment event service: order repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	launch := deps.Launch
	if launch == nil {
		launch = func(fn func()) { go fn() }
	}
	return &paymentEventService{
		orders:     deps.Orders,
		dispatcher: deps.Dispatcher,
		tracker:    deps.Tracker,
		logger:     logger,
		launch:     launch,
	}, nil
}

// HandleEvent reconciles a verified webhook event against the order store.
// Non-actionable events (unknown correlation id, unpaid session, duplicate or
// late delivery) return nil so the caller acknowledges them; only infrastructure
// failures surface as errors, and the caller still acknowledges those after
// logging them.
func (s *paymentEventService) HandleEvent(ctx context.Context, event payments.WebhookEvent) error {
	switch event.Type {
	case payments.EventCheckoutCompleted:
		return s.handleCompleted(ctx, event)
	case payments.EventCheckoutExpired:
		return s.handleExpired(ctx, event)
	default:
		s.logger(ctx, "payments.event_ignored", map[string]any{
			"eventId": event.ID,
			"type":    string(event.Type),
		})
		return nil
	}
}

func (s *paymentEventService) handleCompleted(ctx context.Context, event payments.WebhookEvent) error {
	orderID := event.ClientReferenceID
	if orderID == "" {
		s.logger(ctx, "payments.completed_without_reference", map[string]any{
			"eventId":   event.ID,
			"sessionId": event.SessionID,
		})
		return nil
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			s.logger(ctx, "payments.completed_unknown_order", map[string]any{
				"eventId": event.ID,
				"orderId": orderID,
			})
			return nil
		}
		return err
	}

	if event.PaymentStatus != paymentStatusPaid {
		s.logger(ctx, "payments.completed_not_paid", map[string]any{
			"eventId":       event.ID,
			"orderId":       orderID,
			"paymentStatus": event.PaymentStatus,
		})
		return nil
	}

	if confirmedOrBeyond[order.Status] {
		s.logger(ctx, "payments.completed_duplicate", map[string]any{
			"eventId": event.ID,
			"orderId": orderID,
			"status":  string(order.Status),
		})
		return nil
	}

	// A settled payment for a cancelled order (the expiry won the race) must
	// never resurrect it. Surface the payment so operators can refund it.
	if order.Status == domain.OrderStatusCancelled {
		s.logger(ctx, "payments.paid_after_cancellation", map[string]any{
			"eventId":       event.ID,
			"orderId":       orderID,
			"orderNumber":   order.OrderNumber,
			"paymentIntent": event.PaymentIntentID,
		})
		return nil
	}

	result, err := s.orders.Transition(ctx, repositories.TransitionRequest{
		OrderID:         orderID,
		To:              domain.OrderStatusConfirmed,
		AllowedFrom:     []domain.OrderStatus{domain.OrderStatusPendingPayment},
		PaymentIntentID: event.PaymentIntentID,
	})
	if err != nil {
		if _, ok := repositories.AsTransitionError(err); ok {
			// Lost the race against a concurrent delivery; the winner already
			// confirmed the order.
			s.logger(ctx, "payments.completed_raced", map[string]any{
				"eventId": event.ID,
				"orderId": orderID,
			})
			return nil
		}
		return err
	}
	if !result.Transitioned {
		return nil
	}

	s.logger(ctx, "payments.order_confirmed", map[string]any{
		"eventId":       event.ID,
		"orderId":       result.Order.ID,
		"orderNumber":   result.Order.OrderNumber,
		"paymentIntent": event.PaymentIntentID,
	})

	if s.dispatcher != nil {
		s.dispatcher.DispatchTransition(ctx, result.Order)
	}
	s.trackConversion(result.Order)
	return nil
}

func (s *paymentEventService) handleExpired(ctx context.Context, event payments.WebhookEvent) error {
	orderID := event.ClientReferenceID
	if orderID == "" {
		return nil
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil
		}
		return err
	}

	// An order that progressed past payment must never be reverted by a stale
	// expiry notification.
	if order.Status != domain.OrderStatusPendingPayment {
		s.logger(ctx, "payments.expired_ignored", map[string]any{
			"eventId": event.ID,
			"orderId": orderID,
			"status":  string(order.Status),
		})
		return nil
	}

	result, err := s.orders.Transition(ctx, repositories.TransitionRequest{
		OrderID:     orderID,
		To:          domain.OrderStatusCancelled,
		AllowedFrom: []domain.OrderStatus{domain.OrderStatusPendingPayment},
	})
	if err != nil {
		if _, ok := repositories.AsTransitionError(err); ok {
			s.logger(ctx, "payments.expired_raced", map[string]any{
				"eventId": event.ID,
				"orderId": orderID,
			})
			return nil
		}
		return err
	}
	if !result.Transitioned {
		return nil
	}

	s.logger(ctx, "payments.order_cancelled", map[string]any{
		"eventId":     event.ID,
		"orderId":     result.Order.ID,
		"orderNumber": result.Order.OrderNumber,
	})
	if s.dispatcher != nil {
		s.dispatcher.DispatchTransition(ctx, result.Order)
	}
	return nil
}

func (s *paymentEventService) trackConversion(order domain.Order) {
	if s.tracker == nil {
		return
	}
	s.launch(func() {
		trackCtx, cancel := context.WithTimeout(context.Background(), defaultNotificationTimeout)
		defer cancel()
		if err := s.tracker.TrackPurchase(trackCtx, order); err != nil {
			s.logger(trackCtx, "payments.conversion_tracking_failed", map[string]any{
				"orderId":     order.ID,
				"orderNumber": order.OrderNumber,
				"error":       err.Error(),
			})
		}
	})
}
