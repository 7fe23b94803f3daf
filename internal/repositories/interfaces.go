package repositories

import (
	"context"

	"github.com/nuage-shop/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ListOrdersFilter narrows order listings. Results are always newest first.
type ListOrdersFilter struct {
	// Email filters on the shipping address email when non-empty.
	Email string
	// Limit caps the number of returned orders; zero means no cap.
	Limit int
}

// TrackingPatch carries the shipment tracking fields updated by administrators.
// Nil fields are left as stored, so a partial patch never clears existing
// values. The order status is deliberately untouched by tracking patches.
type TrackingPatch struct {
	TrackingNumber    *string
	TrackingURL       *string
	EstimatedDelivery *string
}

// TransitionRequest describes a compare-and-swap status transition. The swap is
// guarded by the status stored at transaction time, never by what the caller
// last read.
type TransitionRequest struct {
	OrderID string
	To      domain.OrderStatus
	// AllowedFrom additionally restricts the source states beyond the
	// transition table. Empty means the table alone decides.
	AllowedFrom []domain.OrderStatus
	// PaymentIntentID is recorded on the order when the transition applies.
	PaymentIntentID string
}

// TransitionResult reports the outcome of a transition attempt.
type TransitionResult struct {
	Order domain.Order
	// Transitioned is false when the order already carried the target status,
	// in which case the attempt is an idempotent no-op.
	Transitioned bool
	From         domain.OrderStatus
}

// OrderRepository persists order aggregates.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter ListOrdersFilter) ([]domain.Order, error)
	// ListOrderNumbers returns every order number starting with the prefix.
	// Used once per year to seed the allocation counter.
	ListOrderNumbers(ctx context.Context, prefix string) ([]string, error)
	SetPaymentSession(ctx context.Context, orderID, sessionID string) error
	UpdateTracking(ctx context.Context, orderID string, patch TrackingPatch) (domain.Order, error)
	Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error)
	CountByStatus(ctx context.Context) (map[domain.OrderStatus]int64, error)
}

// CounterRepository allocates monotonically increasing sequence values.
type CounterRepository interface {
	// Next increments the named counter and returns its new value. When the
	// counter does not exist yet, seed is consulted for the starting point.
	Next(ctx context.Context, counterID string, seed func(ctx context.Context) (int64, error)) (int64, error)
}

// ProductCatalog exposes read-only access to the product collection.
type ProductCatalog interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
}
