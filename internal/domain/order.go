package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OrderStatus enumerates the closed set of order lifecycle states.
type OrderStatus string

const (
	// OrderStatusPendingPayment is the sole initial state: the order exists but payment has not been confirmed.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusConfirmed indicates the payment provider reported a successful payment.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared for shipment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the carrier reported delivery. Terminal for automatic transitions.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled. Terminal for automatic transitions.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatusLabels maps statuses to the customer-facing French labels used in notifications.
var OrderStatusLabels = map[OrderStatus]string{
	OrderStatusPendingPayment: "En attente de paiement",
	OrderStatusConfirmed:      "Confirmee",
	OrderStatusProcessing:     "En preparation",
	OrderStatusShipped:        "Expediee",
	OrderStatusDelivered:      "Livree",
	OrderStatusCancelled:      "Annulee",
}

// orderStatusTransitions is the single source of truth for legal automatic transitions.
// Administrative cancellation is handled separately: any state may be forced to cancelled.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment: {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:      {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:     {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:        {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:      {},
	OrderStatusCancelled:      {},
}

// ValidOrderStatus reports whether the value belongs to the closed enumeration.
func ValidOrderStatus(status OrderStatus) bool {
	_, ok := orderStatusTransitions[status]
	return ok
}

// CanTransition reports whether moving from the current stored status to the
// target is legal. Forcing cancellation is always allowed so administrators can
// abort an order at any stage.
func CanTransition(from, to OrderStatus) bool {
	if !ValidOrderStatus(from) || !ValidOrderStatus(to) {
		return false
	}
	if to == OrderStatusCancelled {
		return from != OrderStatusCancelled
	}
	for _, next := range orderStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusesFrom returns every status from which the target can legally be reached.
func StatusesFrom(to OrderStatus) []OrderStatus {
	var from []OrderStatus
	for status := range orderStatusTransitions {
		if CanTransition(status, to) {
			from = append(from, status)
		}
	}
	return from
}

// OrderItem is an immutable snapshot of a purchased product line. Prices are
// copied from the catalog at creation time so historical orders are immune to
// later catalog edits.
type OrderItem struct {
	ProductID    string
	ProductName  string
	ProductImage string
	// UnitPrice is the catalog-verified price in euro cents at purchase time.
	UnitPrice int64
	Quantity  int64
}

// LineTotal returns the item subtotal in euro cents.
func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * i.Quantity
}

// ShippingAddress is the denormalised destination snapshot stored on the order.
type ShippingAddress struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Address      string
	AddressLine2 string
	City         string
	PostalCode   string
	Country      string
}

// Order is the aggregate root: the durable record of a purchase attempt from
// cart submission through delivery or cancellation.
type Order struct {
	ID          string
	OrderNumber string
	Items       []OrderItem

	// Subtotal, Shipping and Total are euro cents. Invariant at creation:
	// Total == Subtotal + Shipping and Subtotal == sum of line totals.
	Subtotal int64
	Shipping int64
	Total    int64

	Status          OrderStatus
	ShippingAddress ShippingAddress
	Notes           string

	TrackingNumber    string
	TrackingURL       string
	EstimatedDelivery string

	PaymentSessionID string
	PaymentIntentID  string

	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderNumberPrefix is the storefront prefix of human-readable order numbers.
const OrderNumberPrefix = "NU"

// FormatOrderNumber renders the bit-exact order number format PREFIX-YYYY-NNNN.
func FormatOrderNumber(prefix string, year int, sequence int64) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, sequence)
}

// OrderNumberYearPrefix returns the shared prefix of all numbers allocated in a year.
func OrderNumberYearPrefix(prefix string, year int) string {
	return fmt.Sprintf("%s-%d-", prefix, year)
}

// MaxOrderNumberSequence scans existing order numbers for the given year prefix
// and returns the highest numeric suffix. Numbers for other years or with
// malformed suffixes are ignored. Used to seed the allocation counter when it
// does not exist yet.
func MaxOrderNumberSequence(yearPrefix string, existing []string) int64 {
	var max int64
	for _, number := range existing {
		if !strings.HasPrefix(number, yearPrefix) {
			continue
		}
		suffix, err := strconv.ParseInt(number[len(yearPrefix):], 10, 64)
		if err != nil || suffix <= max {
			continue
		}
		max = suffix
	}
	return max
}

// NextOrderNumber computes the next number after the highest existing suffix
// for the year. Retained for seeding and as the reference allocation rule; the
// production path increments a transactional counter instead.
func NextOrderNumber(prefix string, year int, existing []string) string {
	yearPrefix := OrderNumberYearPrefix(prefix, year)
	return FormatOrderNumber(prefix, year, MaxOrderNumberSequence(yearPrefix, existing)+1)
}
