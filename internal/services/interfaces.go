package services

import (
	"context"

	"github.com/nuage-shop/api/internal/domain"
	"github.com/nuage-shop/api/internal/payments"
)

// NotificationKind enumerates the email templates the mailer worker renders.
type NotificationKind string

const (
	// NotificationOrderConfirmation is sent once when payment settles.
	NotificationOrderConfirmation NotificationKind = "order_confirmation"
	// NotificationStatusUpdate is the generic lifecycle update email.
	NotificationStatusUpdate NotificationKind = "status_update"
	// NotificationShippingUpdate carries tracking details for shipped orders.
	NotificationShippingUpdate NotificationKind = "shipping_update"
)

// NotificationMessage is the outbox payload handed to the mailer worker.
type NotificationMessage struct {
	Kind           NotificationKind `json:"kind"`
	OrderID        string           `json:"orderId"`
	OrderNumber    string           `json:"orderNumber"`
	Email          string           `json:"email"`
	FirstName      string           `json:"firstName,omitempty"`
	Status         string           `json:"status"`
	StatusLabel    string           `json:"statusLabel,omitempty"`
	TrackingNumber string           `json:"trackingNumber,omitempty"`
	TrackingURL    string           `json:"trackingUrl,omitempty"`
	TotalAmount    int64            `json:"totalAmount,omitempty"`
}

// NotificationPublisher delivers notification messages to the outbox topic.
type NotificationPublisher interface {
	Publish(ctx context.Context, msg NotificationMessage) error
}

// ConversionTracker records a settled purchase with an analytics collaborator.
type ConversionTracker interface {
	TrackPurchase(ctx context.Context, order domain.Order) error
}

// CheckoutItemInput is one untrusted cart line. UnitPrice is accepted for
// shape compatibility but never read when computing totals.
type CheckoutItemInput struct {
	ProductID    string
	ProductName  string
	ProductImage string
	UnitPrice    int64
	Quantity     int64
}

// CreateCheckoutCommand captures a cart submission.
type CreateCheckoutCommand struct {
	Items           []CheckoutItemInput
	ShippingAddress domain.ShippingAddress
	ShippingCost    int64
	Notes           string
}

// CheckoutResult is returned to the storefront after session creation.
type CheckoutResult struct {
	OrderID     string
	OrderNumber string
	RedirectURL string
}

// CheckoutService turns a verified cart into a pending order plus a hosted
// payment session.
type CheckoutService interface {
	CreateCheckout(ctx context.Context, cmd CreateCheckoutCommand) (CheckoutResult, error)
}

// ListOrdersQuery narrows order listings.
type ListOrdersQuery struct {
	Email string
	Limit int
}

// OrderStats aggregates order counts per lifecycle status.
type OrderStats struct {
	Total    int64
	ByStatus map[domain.OrderStatus]int64
}

// UpdateStatusCommand drives an administrative status transition.
type UpdateStatusCommand struct {
	OrderID string
	Status  domain.OrderStatus
}

// UpdateTrackingCommand patches shipment tracking fields, never status. Nil
// fields were absent from the request and leave the stored value untouched.
type UpdateTrackingCommand struct {
	OrderID           string
	TrackingNumber    *string
	TrackingURL       *string
	EstimatedDelivery *string
}

// OrderService exposes order lookups and administrative mutations.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	// VerifyOrder confirms that the order exists and that the supplied email
	// matches its shipping address. Missing order and mismatched email are
	// indistinguishable to the caller.
	VerifyOrder(ctx context.Context, orderNumber, email string) error
	ListOrders(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error)
	OrderStats(ctx context.Context) (OrderStats, error)
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error)
	UpdateTracking(ctx context.Context, cmd UpdateTrackingCommand) (domain.Order, error)
}

// PaymentEventService reconciles provider webhook events against orders.
type PaymentEventService interface {
	HandleEvent(ctx context.Context, event payments.WebhookEvent) error
}
