package payments

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidWebhookSignature is returned when a webhook payload fails
// signature verification. Callers must reject the request; every other
// webhook failure is acknowledged so the PSP does not retry forever.
var ErrInvalidWebhookSignature = errors.New("payments: invalid webhook signature")

// EventType enumerates the webhook events the reconciliation flow consumes.
type EventType string

const (
	// EventCheckoutCompleted signals a checkout session where payment settled.
	EventCheckoutCompleted EventType = "checkout.session.completed"
	// EventCheckoutExpired signals a checkout session abandoned by the customer.
	EventCheckoutExpired EventType = "checkout.session.expired"
)

// CheckoutLineItem mirrors one order line into the hosted payment page.
type CheckoutLineItem struct {
	Name     string
	Image    string
	Quantity int64
	Amount   int64
}

// CheckoutSessionRequest captures the payload required to create a hosted
// checkout session for an order.
type CheckoutSessionRequest struct {
	OrderID        string
	OrderNumber    string
	CustomerEmail  string
	Currency       string
	Locale         string
	SuccessURL     string
	CancelURL      string
	ShippingAmount int64
	Items          []CheckoutLineItem
	Metadata       map[string]string
	IdempotencyKey string
}

// CheckoutSession represents the PSP session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	IntentID    string
	ExpiresAt   time.Time
}

// WebhookEvent normalises the PSP webhook payload for reconciliation.
type WebhookEvent struct {
	ID                string
	Type              EventType
	SessionID         string
	ClientReferenceID string
	PaymentIntentID   string
	PaymentStatus     string
	CustomerEmail     string
}

// Recognised reports whether the event type participates in reconciliation.
func (e WebhookEvent) Recognised() bool {
	return e.Type == EventCheckoutCompleted || e.Type == EventCheckoutExpired
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	ParseWebhookEvent(payload []byte, signatureHeader string) (WebhookEvent, error)
}
