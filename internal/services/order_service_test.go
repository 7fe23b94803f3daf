package services

import (
	"context"
	"errors"
	"testing"

	"github.com/nuage-shop/api/internal/domain"
	"github.com/nuage-shop/api/internal/repositories"
)

func newOrderFixture(t *testing.T, store repositories.OrderRepository, publisher *memPublisher) OrderService {
	t.Helper()
	var dispatcher *NotificationDispatcher
	if publisher != nil {
		var err error
		dispatcher, err = NewNotificationDispatcher(NotificationDispatcherDeps{
			Publisher: publisher,
			Launch:    syncLaunch,
		})
		if err != nil {
			t.Fatalf("NewNotificationDispatcher returned error: %v", err)
		}
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:     store,
		Dispatcher: dispatcher,
	})
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}
	return svc
}

func TestUpdateStatusShippedWithTrackingSendsShippingEmail(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderStatusProcessing
	order.TrackingNumber = "TRK-123"
	order.TrackingURL = "https://carrier.example/TRK-123"
	store := newCASOrderStore(order)
	publisher := &memPublisher{}
	svc := newOrderFixture(t, store, publisher)

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: "ord_01ABC",
		Status:  domain.OrderStatusShipped,
	})
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if updated.Status != domain.OrderStatusShipped {
		t.Fatalf("status = %q, want shipped", updated.Status)
	}

	messages := publisher.published()
	if len(messages) != 1 {
		t.Fatalf("published %d notifications, want exactly 1", len(messages))
	}
	if messages[0].Kind != NotificationShippingUpdate {
		t.Fatalf("notification kind = %q, want shipping update", messages[0].Kind)
	}
	if messages[0].TrackingNumber != "TRK-123" {
		t.Fatalf("tracking number = %q", messages[0].TrackingNumber)
	}
}

func TestUpdateStatusShippedWithoutTrackingSendsNothing(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderStatusProcessing
	store := newCASOrderStore(order)
	publisher := &memPublisher{}
	svc := newOrderFixture(t, store, publisher)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: "ord_01ABC",
		Status:  domain.OrderStatusShipped,
	})
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if len(publisher.published()) != 0 {
		t.Fatalf("published %d notifications, want none", len(publisher.published()))
	}
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderStatusDelivered
	store := newCASOrderStore(order)
	svc := newOrderFixture(t, store, nil)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: "ord_01ABC",
		Status:  domain.OrderStatusProcessing,
	})
	if !errors.Is(err, ErrTransitionNotAllowed) {
		t.Fatalf("expected ErrTransitionNotAllowed, got %v", err)
	}
}

func TestUpdateStatusForcesCancellationFromAnyState(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderStatusShipped
	store := newCASOrderStore(order)
	publisher := &memPublisher{}
	svc := newOrderFixture(t, store, publisher)

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: "ord_01ABC",
		Status:  domain.OrderStatusCancelled,
	})
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %q, want cancelled", updated.Status)
	}
	messages := publisher.published()
	if len(messages) != 1 || messages[0].Kind != NotificationStatusUpdate {
		t.Fatalf("expected one status-update notification, got %+v", messages)
	}
}

func TestUpdateStatusReappliedIsNoOp(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderStatusProcessing
	store := newCASOrderStore(order)
	publisher := &memPublisher{}
	svc := newOrderFixture(t, store, publisher)

	if _, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{OrderID: "ord_01ABC", Status: domain.OrderStatusProcessing}); err != nil {
		t.Fatalf("re-applying current status must be a no-op, got %v", err)
	}
	if store.transitions != 0 {
		t.Fatalf("transitions = %d, want 0", store.transitions)
	}
	if len(publisher.published()) != 0 {
		t.Fatalf("published %d notifications, want none", len(publisher.published()))
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc := newOrderFixture(t, newCASOrderStore(pendingOrder()), nil)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: "ord_01ABC",
		Status:  domain.OrderStatus("misplaced"),
	})
	if !errors.Is(err, ErrInvalidOrderStatus) {
		t.Fatalf("expected ErrInvalidOrderStatus, got %v", err)
	}
}

func TestUpdateTrackingPatchesFieldsWithoutStatusChange(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderStatusProcessing
	store := newCASOrderStore(order)
	publisher := &memPublisher{}
	svc := newOrderFixture(t, store, publisher)

	updated, err := svc.UpdateTracking(context.Background(), UpdateTrackingCommand{
		OrderID:           "ord_01ABC",
		TrackingNumber:    strptr(" TRK-999 "),
		TrackingURL:       strptr("https://carrier.example/TRK-999"),
		EstimatedDelivery: strptr("2026-03-20"),
	})
	if err != nil {
		t.Fatalf("UpdateTracking returned error: %v", err)
	}
	if updated.TrackingNumber != "TRK-999" {
		t.Fatalf("tracking number = %q, want trimmed TRK-999", updated.TrackingNumber)
	}
	if updated.Status != domain.OrderStatusProcessing {
		t.Fatalf("status = %q, must be untouched", updated.Status)
	}
	if len(publisher.published()) != 0 {
		t.Fatalf("tracking patch must not notify, got %d messages", len(publisher.published()))
	}
}

func TestUpdateTrackingPartialPatchKeepsStoredFields(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderStatusProcessing
	order.TrackingNumber = "TRK-123"
	order.TrackingURL = "https://carrier.example/TRK-123"
	store := newCASOrderStore(order)
	svc := newOrderFixture(t, store, nil)

	updated, err := svc.UpdateTracking(context.Background(), UpdateTrackingCommand{
		OrderID:           "ord_01ABC",
		EstimatedDelivery: strptr("2026-09-10"),
	})
	if err != nil {
		t.Fatalf("UpdateTracking returned error: %v", err)
	}
	if updated.TrackingNumber != "TRK-123" {
		t.Fatalf("tracking number = %q, partial patch must not clear it", updated.TrackingNumber)
	}
	if updated.TrackingURL != "https://carrier.example/TRK-123" {
		t.Fatalf("tracking url = %q, partial patch must not clear it", updated.TrackingURL)
	}
	if updated.EstimatedDelivery != "2026-09-10" {
		t.Fatalf("estimated delivery = %q, want 2026-09-10", updated.EstimatedDelivery)
	}
}

func TestVerifyOrderMatchesEmailCaseInsensitive(t *testing.T) {
	svc := newOrderFixture(t, newCASOrderStore(pendingOrder()), nil)

	if err := svc.VerifyOrder(context.Background(), "NU-2026-0042", " Claire@Example.FR "); err != nil {
		t.Fatalf("VerifyOrder returned error: %v", err)
	}
}

func TestVerifyOrderMismatchedEmailIsNotFound(t *testing.T) {
	svc := newOrderFixture(t, newCASOrderStore(pendingOrder()), nil)

	if err := svc.VerifyOrder(context.Background(), "NU-2026-0042", "autre@example.fr"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on email mismatch, got %v", err)
	}
	if err := svc.VerifyOrder(context.Background(), "NU-2026-9999", "claire@example.fr"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on unknown number, got %v", err)
	}
}

func strptr(s string) *string { return &s }

func TestGetOrderTranslatesNotFound(t *testing.T) {
	svc := newOrderFixture(t, newCASOrderStore(pendingOrder()), nil)

	if _, err := svc.GetOrder(context.Background(), "ord_MISSING"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := svc.GetOrderByNumber(context.Background(), "NU-2026-9999"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderStatsSumsStatusCounts(t *testing.T) {
	store := &stubOrderRepository{
		countByStatus: func(ctx context.Context) (map[domain.OrderStatus]int64, error) {
			return map[domain.OrderStatus]int64{
				domain.OrderStatusConfirmed: 3,
				domain.OrderStatusShipped:   2,
			}, nil
		},
	}
	svc := newOrderFixture(t, store, nil)

	stats, err := svc.OrderStats(context.Background())
	if err != nil {
		t.Fatalf("OrderStats returned error: %v", err)
	}
	if stats.Total != 5 {
		t.Fatalf("total = %d, want 5", stats.Total)
	}
	if stats.ByStatus[domain.OrderStatusConfirmed] != 3 {
		t.Fatalf("confirmed = %d, want 3", stats.ByStatus[domain.OrderStatusConfirmed])
	}
}
