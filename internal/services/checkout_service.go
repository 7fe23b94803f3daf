package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nuage-shop/api/internal/domain"
	"github.com/nuage-shop/api/internal/payments"
	"github.com/nuage-shop/api/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrEmptyCart indicates the submitted cart carried no usable line items.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrInvalidCartItem indicates a line item with a non-positive quantity.
	ErrInvalidCartItem = errors.New("checkout: invalid cart item")
	// ErrShippingAddressRequired indicates the shipping address or its email is missing.
	ErrShippingAddressRequired = errors.New("checkout: shipping address is required")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrPaymentSessionFailed indicates the PSP session could not be created.
	ErrPaymentSessionFailed = errors.New("checkout: payment session failed")
)

// ProductNotFoundError names the offending cart line by its client-supplied
// display name so the storefront can render a useful message.
type ProductNotFoundError struct {
	ProductID   string
	ProductName string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("checkout: product %s (%s) not found", e.ProductID, e.ProductName)
}

// AsProductNotFound unwraps err into a ProductNotFoundError when possible.
func AsProductNotFound(err error) (*ProductNotFoundError, bool) {
	var notFound *ProductNotFoundError
	if errors.As(err, &notFound) {
		return notFound, true
	}
	return nil, false
}

// checkoutSessionCreator abstracts the payments provider for easier testing.
type checkoutSessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Orders   repositories.OrderRepository
	Counters repositories.CounterRepository
	Catalog  repositories.ProductCatalog
	Payments checkoutSessionCreator

	SuccessURL        string
	CancelURL         string
	Currency          string
	Locale            string
	OrderNumberPrefix string

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	orders   repositories.OrderRepository
	counters repositories.CounterRepository
	catalog  repositories.ProductCatalog
	payments checkoutSessionCreator

	successURL   string
	cancelURL    string
	currency     string
	locale       string
	numberPrefix string

	now    func() time.Time
	idGen  func() string
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("checkout service: product catalog is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return orderIDPrefix + ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "eur"
	}
	prefix := strings.TrimSpace(deps.OrderNumberPrefix)
	if prefix == "" {
		prefix = domain.OrderNumberPrefix
	}

	return &checkoutService{
		orders:       deps.Orders,
		counters:     deps.Counters,
		catalog:      deps.Catalog,
		payments:     deps.Payments,
		successURL:   strings.TrimSpace(deps.SuccessURL),
		cancelURL:    strings.TrimSpace(deps.CancelURL),
		currency:     currency,
		locale:       strings.TrimSpace(deps.Locale),
		numberPrefix: prefix,
		now: func() time.Time {
			return clock().UTC()
		},
		idGen:  idGen,
		logger: logger,
	}, nil
}

// CreateCheckout verifies the cart against the catalog, persists a pending
// order, and opens the hosted payment session. Client-supplied prices are
// never read when computing totals.
func (s *checkoutService) CreateCheckout(ctx context.Context, cmd CreateCheckoutCommand) (CheckoutResult, error) {
	if s == nil || s.orders == nil || s.payments == nil {
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	if len(cmd.Items) == 0 {
		return CheckoutResult{}, ErrEmptyCart
	}
	if strings.TrimSpace(cmd.ShippingAddress.Email) == "" {
		return CheckoutResult{}, ErrShippingAddressRequired
	}

	items, subtotal, err := s.verifyCart(ctx, cmd.Items)
	if err != nil {
		return CheckoutResult{}, err
	}

	shipping := cmd.ShippingCost
	if shipping < 0 {
		shipping = 0
	}

	now := s.now()
	orderNumber, err := s.allocateOrderNumber(ctx, now.Year())
	if err != nil {
		s.logger(ctx, "checkout.order_number_failed", map[string]any{
			"error": err.Error(),
		})
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	order := domain.Order{
		ID:              s.idGen(),
		OrderNumber:     orderNumber,
		Items:           items,
		Subtotal:        subtotal,
		Shipping:        shipping,
		Total:           subtotal + shipping,
		Status:          domain.OrderStatusPendingPayment,
		ShippingAddress: cmd.ShippingAddress,
		Notes:           strings.TrimSpace(cmd.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		s.logger(ctx, "checkout.order_persist_failed", map[string]any{
			"orderNumber": orderNumber,
			"error":       err.Error(),
		})
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerEmail:  order.ShippingAddress.Email,
		Currency:       s.currency,
		Locale:         s.locale,
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		ShippingAmount: order.Shipping,
		Items:          checkoutLineItems(order.Items),
	})
	if err != nil {
		s.logger(ctx, "checkout.session_failed", map[string]any{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
			"error":       err.Error(),
		})
		return CheckoutResult{}, ErrPaymentSessionFailed
	}

	// Correlation is recovered at webhook time via client_reference_id, so
	// the back-reference on the order is best-effort only.
	if err := s.orders.SetPaymentSession(ctx, order.ID, session.ID); err != nil {
		s.logger(ctx, "checkout.session_writeback_failed", map[string]any{
			"orderId":   order.ID,
			"sessionId": session.ID,
			"error":     err.Error(),
		})
	}

	s.logger(ctx, "checkout.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"sessionId":   session.ID,
		"total":       order.Total,
	})

	return CheckoutResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		RedirectURL: session.RedirectURL,
	}, nil
}

func (s *checkoutService) verifyCart(ctx context.Context, lines []CheckoutItemInput) ([]domain.OrderItem, int64, error) {
	items := make([]domain.OrderItem, 0, len(lines))
	var subtotal int64

	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" || line.Quantity <= 0 {
			return nil, 0, ErrInvalidCartItem
		}

		product, err := s.catalog.FindByID(ctx, productID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return nil, 0, &ProductNotFoundError{ProductID: productID, ProductName: line.ProductName}
			}
			s.logger(ctx, "checkout.catalog_lookup_failed", map[string]any{
				"productId": productID,
				"error":     err.Error(),
			})
			return nil, 0, ErrCheckoutUnavailable
		}
		if !product.Active {
			return nil, 0, &ProductNotFoundError{ProductID: productID, ProductName: line.ProductName}
		}

		name := product.Name
		if name == "" {
			name = strings.TrimSpace(line.ProductName)
		}
		image := product.Image
		if image == "" {
			image = strings.TrimSpace(line.ProductImage)
		}

		item := domain.OrderItem{
			ProductID:    productID,
			ProductName:  name,
			ProductImage: image,
			UnitPrice:    product.Price,
			Quantity:     line.Quantity,
		}
		items = append(items, item)
		subtotal += item.LineTotal()
	}

	return items, subtotal, nil
}

func (s *checkoutService) allocateOrderNumber(ctx context.Context, year int) (string, error) {
	counterID := fmt.Sprintf("order-numbers-%d", year)
	yearPrefix := domain.OrderNumberYearPrefix(s.numberPrefix, year)

	sequence, err := s.counters.Next(ctx, counterID, func(ctx context.Context) (int64, error) {
		existing, err := s.orders.ListOrderNumbers(ctx, yearPrefix)
		if err != nil {
			return 0, err
		}
		return domain.MaxOrderNumberSequence(yearPrefix, existing), nil
	})
	if err != nil {
		return "", err
	}
	return domain.FormatOrderNumber(s.numberPrefix, year, sequence), nil
}

func checkoutLineItems(items []domain.OrderItem) []payments.CheckoutLineItem {
	lines := make([]payments.CheckoutLineItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, payments.CheckoutLineItem{
			Name:     item.ProductName,
			Image:    item.ProductImage,
			Quantity: item.Quantity,
			Amount:   item.UnitPrice,
		})
	}
	return lines
}
