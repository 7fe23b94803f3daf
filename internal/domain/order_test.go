package domain

import "testing"

func TestCanTransitionHappyPath(t *testing.T) {
	steps := []struct {
		from OrderStatus
		to   OrderStatus
	}{
		{OrderStatusPendingPayment, OrderStatusConfirmed},
		{OrderStatusConfirmed, OrderStatusProcessing},
		{OrderStatusProcessing, OrderStatusShipped},
		{OrderStatusShipped, OrderStatusDelivered},
	}
	for _, step := range steps {
		if !CanTransition(step.from, step.to) {
			t.Fatalf("expected %s -> %s to be legal", step.from, step.to)
		}
	}
}

func TestCanTransitionRejectsIllegalMoves(t *testing.T) {
	cases := []struct {
		from OrderStatus
		to   OrderStatus
	}{
		{OrderStatusPendingPayment, OrderStatusShipped},
		{OrderStatusConfirmed, OrderStatusDelivered},
		{OrderStatusDelivered, OrderStatusShipped},
		{OrderStatusShipped, OrderStatusConfirmed},
		{OrderStatusCancelled, OrderStatusConfirmed},
		{OrderStatusConfirmed, OrderStatusConfirmed},
	}
	for _, c := range cases {
		if CanTransition(c.from, c.to) {
			t.Fatalf("expected %s -> %s to be illegal", c.from, c.to)
		}
	}
}

func TestCanTransitionAllowsForcedCancellation(t *testing.T) {
	for _, from := range []OrderStatus{
		OrderStatusPendingPayment,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
	} {
		if !CanTransition(from, OrderStatusCancelled) {
			t.Fatalf("expected cancellation from %s to be allowed", from)
		}
	}
	if CanTransition(OrderStatusCancelled, OrderStatusCancelled) {
		t.Fatalf("cancelling a cancelled order should be a no-op, not a transition")
	}
}

func TestNextOrderNumberSkipsGaps(t *testing.T) {
	existing := []string{"NU-2026-0001", "NU-2026-0003"}
	if got := NextOrderNumber("NU", 2026, existing); got != "NU-2026-0004" {
		t.Fatalf("expected NU-2026-0004, got %s", got)
	}
}

func TestNextOrderNumberIgnoresOtherYearsAndGarbage(t *testing.T) {
	existing := []string{"NU-2025-0042", "NU-2026-abcd", "XX-2026-0009", "NU-2026-0002"}
	if got := NextOrderNumber("NU", 2026, existing); got != "NU-2026-0003" {
		t.Fatalf("expected NU-2026-0003, got %s", got)
	}
}

func TestNextOrderNumberStartsAtOne(t *testing.T) {
	if got := NextOrderNumber("NU", 2026, nil); got != "NU-2026-0001" {
		t.Fatalf("expected NU-2026-0001, got %s", got)
	}
}

func TestOrderItemLineTotal(t *testing.T) {
	item := OrderItem{UnitPrice: 1290, Quantity: 3}
	if item.LineTotal() != 3870 {
		t.Fatalf("expected 3870, got %d", item.LineTotal())
	}
}
