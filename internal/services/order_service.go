package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nuage-shop/api/internal/domain"
	"github.com/nuage-shop/api/internal/repositories"
)

var (
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("orders: not found")
	// ErrInvalidOrderStatus indicates the requested status is outside the enumeration.
	ErrInvalidOrderStatus = errors.New("orders: invalid status")
	// ErrTransitionNotAllowed indicates the stored status rejects the transition.
	ErrTransitionNotAllowed = errors.New("orders: transition not allowed")
	// ErrOrdersUnavailable indicates the order store is currently unreachable.
	ErrOrdersUnavailable = errors.New("orders: unavailable")
)

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Dispatcher *NotificationDispatcher
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	dispatcher *NotificationDispatcher
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders:     deps.Orders,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}, nil
}

// GetOrder fetches a single order by its identifier.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, ErrOrderNotFound
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.translateLookupError(ctx, err)
	}
	return order, nil
}

// GetOrderByNumber fetches a single order by its human-readable number.
func (s *orderService) GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, ErrOrderNotFound
	}
	order, err := s.orders.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, s.translateLookupError(ctx, err)
	}
	return order, nil
}

// ListOrders returns orders newest first, optionally filtered by email.
func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error) {
	orders, err := s.orders.List(ctx, repositories.ListOrdersFilter{
		Email: strings.TrimSpace(query.Email),
		Limit: query.Limit,
	})
	if err != nil {
		s.logger(ctx, "orders.list_failed", map[string]any{"error": err.Error()})
		return nil, ErrOrdersUnavailable
	}
	return orders, nil
}

// OrderStats aggregates order counts per status.
func (s *orderService) OrderStats(ctx context.Context) (OrderStats, error) {
	counts, err := s.orders.CountByStatus(ctx)
	if err != nil {
		s.logger(ctx, "orders.stats_failed", map[string]any{"error": err.Error()})
		return OrderStats{}, ErrOrdersUnavailable
	}
	stats := OrderStats{ByStatus: counts}
	for _, count := range counts {
		stats.Total += count
	}
	return stats, nil
}

// UpdateStatus drives an administrative status transition through the
// transition table. The change is applied as a compare-and-swap against the
// stored status, so a repeated request is a no-op.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, ErrOrderNotFound
	}
	if !domain.ValidOrderStatus(cmd.Status) {
		return domain.Order{}, fmt.Errorf("%w: %q", ErrInvalidOrderStatus, cmd.Status)
	}

	result, err := s.orders.Transition(ctx, repositories.TransitionRequest{
		OrderID: orderID,
		To:      cmd.Status,
	})
	if err != nil {
		if transition, ok := repositories.AsTransitionError(err); ok {
			return domain.Order{}, fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, transition.From, transition.To)
		}
		return domain.Order{}, s.translateLookupError(ctx, err)
	}

	if result.Transitioned {
		s.logger(ctx, "orders.status_changed", map[string]any{
			"orderId":     result.Order.ID,
			"orderNumber": result.Order.OrderNumber,
			"from":        string(result.From),
			"to":          string(result.Order.Status),
		})
		if s.dispatcher != nil {
			s.dispatcher.DispatchTransition(ctx, result.Order)
		}
	}
	return result.Order, nil
}

// UpdateTracking patches the provided shipment tracking fields, leaving absent
// fields and the status untouched.
func (s *orderService) UpdateTracking(ctx context.Context, cmd UpdateTrackingCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, ErrOrderNotFound
	}

	order, err := s.orders.UpdateTracking(ctx, orderID, repositories.TrackingPatch{
		TrackingNumber:    trimPatchField(cmd.TrackingNumber),
		TrackingURL:       trimPatchField(cmd.TrackingURL),
		EstimatedDelivery: trimPatchField(cmd.EstimatedDelivery),
	})
	if err != nil {
		return domain.Order{}, s.translateLookupError(ctx, err)
	}

	s.logger(ctx, "orders.tracking_updated", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
	})
	return order, nil
}

// VerifyOrder lets a customer prove ownership of an order. The email match is
// case-insensitive, and a mismatch is reported exactly like a missing order so
// the operation cannot be used to enumerate order numbers.
func (s *orderService) VerifyOrder(ctx context.Context, orderNumber, email string) error {
	orderNumber = strings.TrimSpace(orderNumber)
	email = strings.ToLower(strings.TrimSpace(email))
	if orderNumber == "" || email == "" {
		return ErrOrderNotFound
	}

	order, err := s.orders.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return s.translateLookupError(ctx, err)
	}
	if strings.ToLower(strings.TrimSpace(order.ShippingAddress.Email)) != email {
		s.logger(ctx, "orders.verify_mismatch", map[string]any{
			"orderNumber": orderNumber,
		})
		return ErrOrderNotFound
	}
	return nil
}

func trimPatchField(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}

func (s *orderService) translateLookupError(ctx context.Context, err error) error {
	if repositories.IsNotFound(err) {
		return ErrOrderNotFound
	}
	s.logger(ctx, "orders.store_error", map[string]any{"error": err.Error()})
	return ErrOrdersUnavailable
}
