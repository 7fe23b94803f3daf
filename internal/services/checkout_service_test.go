package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nuage-shop/api/internal/domain"
	"github.com/nuage-shop/api/internal/payments"
	"github.com/nuage-shop/api/internal/repositories"
)

type stubRepoError struct {
	notFound bool
	conflict bool
}

func (e stubRepoError) Error() string       { return "stub repository error" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return !e.notFound && !e.conflict }

type stubOrderRepository struct {
	insert            func(ctx context.Context, order domain.Order) error
	findByID          func(ctx context.Context, orderID string) (domain.Order, error)
	findByOrderNumber func(ctx context.Context, orderNumber string) (domain.Order, error)
	list              func(ctx context.Context, filter repositories.ListOrdersFilter) ([]domain.Order, error)
	listOrderNumbers  func(ctx context.Context, prefix string) ([]string, error)
	setPaymentSession func(ctx context.Context, orderID, sessionID string) error
	updateTracking    func(ctx context.Context, orderID string, patch repositories.TrackingPatch) (domain.Order, error)
	transition        func(ctx context.Context, req repositories.TransitionRequest) (repositories.TransitionResult, error)
	countByStatus     func(ctx context.Context) (map[domain.OrderStatus]int64, error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insert == nil {
		return nil
	}
	return s.insert(ctx, order)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByID == nil {
		return domain.Order{}, stubRepoError{notFound: true}
	}
	return s.findByID(ctx, orderID)
}

func (s *stubOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if s.findByOrderNumber == nil {
		return domain.Order{}, stubRepoError{notFound: true}
	}
	return s.findByOrderNumber(ctx, orderNumber)
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.ListOrdersFilter) ([]domain.Order, error) {
	if s.list == nil {
		return nil, nil
	}
	return s.list(ctx, filter)
}

func (s *stubOrderRepository) ListOrderNumbers(ctx context.Context, prefix string) ([]string, error) {
	if s.listOrderNumbers == nil {
		return nil, nil
	}
	return s.listOrderNumbers(ctx, prefix)
}

func (s *stubOrderRepository) SetPaymentSession(ctx context.Context, orderID, sessionID string) error {
	if s.setPaymentSession == nil {
		return nil
	}
	return s.setPaymentSession(ctx, orderID, sessionID)
}

func (s *stubOrderRepository) UpdateTracking(ctx context.Context, orderID string, patch repositories.TrackingPatch) (domain.Order, error) {
	if s.updateTracking == nil {
		return domain.Order{}, stubRepoError{notFound: true}
	}
	return s.updateTracking(ctx, orderID, patch)
}

func (s *stubOrderRepository) Transition(ctx context.Context, req repositories.TransitionRequest) (repositories.TransitionResult, error) {
	if s.transition == nil {
		return repositories.TransitionResult{}, stubRepoError{notFound: true}
	}
	return s.transition(ctx, req)
}

func (s *stubOrderRepository) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int64, error) {
	if s.countByStatus == nil {
		return map[domain.OrderStatus]int64{}, nil
	}
	return s.countByStatus(ctx)
}

type stubCatalog struct {
	products map[string]domain.Product
}

func (s *stubCatalog) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, stubRepoError{notFound: true}
	}
	return product, nil
}

type stubCounter struct {
	calls int
}

func (s *stubCounter) Next(ctx context.Context, counterID string, seed func(ctx context.Context) (int64, error)) (int64, error) {
	s.calls++
	start := int64(0)
	if seed != nil {
		var err error
		start, err = seed(ctx)
		if err != nil {
			return 0, err
		}
	}
	return start + int64(s.calls), nil
}

type stubPaymentProvider struct {
	session payments.CheckoutSession
	err     error
	last    payments.CheckoutSessionRequest
	calls   int
}

func (s *stubPaymentProvider) CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return payments.CheckoutSession{}, s.err
	}
	return s.session, nil
}

func fixedClock2026() time.Time {
	return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
}

func newCheckoutFixture(t *testing.T, orders *stubOrderRepository, catalog *stubCatalog, provider *stubPaymentProvider) CheckoutService {
	t.Helper()
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Orders:     orders,
		Counters:   &stubCounter{},
		Catalog:    catalog,
		Payments:   provider,
		SuccessURL: "https://shop.example/checkout/success",
		CancelURL:  "https://shop.example/checkout/cancel",
		Currency:   "eur",
		Locale:     "fr",
		Clock:      fixedClock2026,
		IDGenerator: func() string {
			return "ord_TEST"
		},
	})
	if err != nil {
		t.Fatalf("NewCheckoutService returned error: %v", err)
	}
	return svc
}

func addressWithEmail(email string) domain.ShippingAddress {
	return domain.ShippingAddress{
		FirstName:  "Claire",
		LastName:   "Moreau",
		Email:      email,
		Address:    "12 rue des Lilas",
		City:       "Lyon",
		PostalCode: "69003",
		Country:    "FR",
	}
}

func TestCreateCheckoutComputesTotalsFromCatalogPrices(t *testing.T) {
	var inserted *domain.Order
	orders := &stubOrderRepository{
		insert: func(ctx context.Context, order domain.Order) error {
			inserted = &order
			return nil
		},
	}
	catalog := &stubCatalog{products: map[string]domain.Product{
		"p1": {ID: "p1", Name: "Bougie lavande", Price: 1000, Active: true},
	}}
	provider := &stubPaymentProvider{
		session: payments.CheckoutSession{ID: "cs_1", RedirectURL: "https://checkout.stripe.com/pay/cs_1"},
	}
	svc := newCheckoutFixture(t, orders, catalog, provider)

	result, err := svc.CreateCheckout(context.Background(), CreateCheckoutCommand{
		Items: []CheckoutItemInput{
			// The client lies about the price; the catalog value must win.
			{ProductID: "p1", ProductName: "Bougie lavande", UnitPrice: 1, Quantity: 2},
		},
		ShippingAddress: addressWithEmail("claire@example.fr"),
		ShippingCost:    590,
	})
	if err != nil {
		t.Fatalf("CreateCheckout returned error: %v", err)
	}

	if inserted == nil {
		t.Fatal("expected order to be inserted")
	}
	if inserted.Subtotal != 2000 {
		t.Fatalf("subtotal = %d, want 2000", inserted.Subtotal)
	}
	if inserted.Total != 2590 {
		t.Fatalf("total = %d, want 2590", inserted.Total)
	}
	if inserted.Status != domain.OrderStatusPendingPayment {
		t.Fatalf("status = %q, want pending_payment", inserted.Status)
	}
	if inserted.Items[0].UnitPrice != 1000 {
		t.Fatalf("unit price = %d, want catalog price 1000", inserted.Items[0].UnitPrice)
	}
	if result.OrderNumber != "NU-2026-0001" {
		t.Fatalf("order number = %q, want NU-2026-0001", result.OrderNumber)
	}
	if result.RedirectURL != "https://checkout.stripe.com/pay/cs_1" {
		t.Fatalf("redirect URL = %q", result.RedirectURL)
	}
	if provider.last.ShippingAmount != 590 {
		t.Fatalf("session shipping = %d, want 590", provider.last.ShippingAmount)
	}
	if provider.last.Items[0].Amount != 1000 {
		t.Fatalf("session line amount = %d, want 1000", provider.last.Items[0].Amount)
	}
}

func TestCreateCheckoutSeedsCounterFromExistingNumbers(t *testing.T) {
	orders := &stubOrderRepository{
		listOrderNumbers: func(ctx context.Context, prefix string) ([]string, error) {
			if prefix != "NU-2026-" {
				return nil, fmt.Errorf("unexpected prefix %q", prefix)
			}
			return []string{"NU-2026-0001", "NU-2026-0003"}, nil
		},
	}
	catalog := &stubCatalog{products: map[string]domain.Product{
		"p1": {ID: "p1", Name: "Savon doux", Price: 800, Active: true},
	}}
	provider := &stubPaymentProvider{session: payments.CheckoutSession{ID: "cs_2", RedirectURL: "https://pay"}}
	svc := newCheckoutFixture(t, orders, catalog, provider)

	result, err := svc.CreateCheckout(context.Background(), CreateCheckoutCommand{
		Items:           []CheckoutItemInput{{ProductID: "p1", ProductName: "Savon doux", Quantity: 1}},
		ShippingAddress: addressWithEmail("claire@example.fr"),
	})
	if err != nil {
		t.Fatalf("CreateCheckout returned error: %v", err)
	}
	if result.OrderNumber != "NU-2026-0004" {
		t.Fatalf("order number = %q, want NU-2026-0004", result.OrderNumber)
	}
}

func TestCreateCheckoutRejectsUnknownProduct(t *testing.T) {
	inserts := 0
	orders := &stubOrderRepository{
		insert: func(ctx context.Context, order domain.Order) error {
			inserts++
			return nil
		},
	}
	catalog := &stubCatalog{products: map[string]domain.Product{}}
	svc := newCheckoutFixture(t, orders, catalog, &stubPaymentProvider{})

	_, err := svc.CreateCheckout(context.Background(), CreateCheckoutCommand{
		Items:           []CheckoutItemInput{{ProductID: "ghost", ProductName: "Diffuseur ambre", Quantity: 1}},
		ShippingAddress: addressWithEmail("claire@example.fr"),
	})
	notFound, ok := AsProductNotFound(err)
	if !ok {
		t.Fatalf("expected ProductNotFoundError, got %v", err)
	}
	if notFound.ProductName != "Diffuseur ambre" {
		t.Fatalf("error names %q, want the client-supplied display name", notFound.ProductName)
	}
	if inserts != 0 {
		t.Fatalf("expected no order insert, got %d", inserts)
	}
}

func TestCreateCheckoutRejectsInactiveProduct(t *testing.T) {
	catalog := &stubCatalog{products: map[string]domain.Product{
		"p1": {ID: "p1", Name: "Retired", Price: 500, Active: false},
	}}
	svc := newCheckoutFixture(t, &stubOrderRepository{}, catalog, &stubPaymentProvider{})

	_, err := svc.CreateCheckout(context.Background(), CreateCheckoutCommand{
		Items:           []CheckoutItemInput{{ProductID: "p1", ProductName: "Retired", Quantity: 1}},
		ShippingAddress: addressWithEmail("claire@example.fr"),
	})
	if _, ok := AsProductNotFound(err); !ok {
		t.Fatalf("expected ProductNotFoundError for inactive product, got %v", err)
	}
}

func TestCreateCheckoutRejectsEmptyCart(t *testing.T) {
	svc := newCheckoutFixture(t, &stubOrderRepository{}, &stubCatalog{}, &stubPaymentProvider{})

	_, err := svc.CreateCheckout(context.Background(), CreateCheckoutCommand{
		ShippingAddress: addressWithEmail("claire@example.fr"),
	})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCreateCheckoutRequiresShippingEmail(t *testing.T) {
	svc := newCheckoutFixture(t, &stubOrderRepository{}, &stubCatalog{}, &stubPaymentProvider{})

	_, err := svc.CreateCheckout(context.Background(), CreateCheckoutCommand{
		Items:           []CheckoutItemInput{{ProductID: "p1", Quantity: 1}},
		ShippingAddress: addressWithEmail(""),
	})
	if !errors.Is(err, ErrShippingAddressRequired) {
		t.Fatalf("expected ErrShippingAddressRequired, got %v", err)
	}
}

func TestCreateCheckoutSessionWritebackIsBestEffort(t *testing.T) {
	orders := &stubOrderRepository{
		setPaymentSession: func(ctx context.Context, orderID, sessionID string) error {
			return errors.New("firestore unavailable")
		},
	}
	catalog := &stubCatalog{products: map[string]domain.Product{
		"p1": {ID: "p1", Name: "Bougie", Price: 1500, Active: true},
	}}
	provider := &stubPaymentProvider{session: payments.CheckoutSession{ID: "cs_3", RedirectURL: "https://pay"}}
	svc := newCheckoutFixture(t, orders, catalog, provider)

	result, err := svc.CreateCheckout(context.Background(), CreateCheckoutCommand{
		Items:           []CheckoutItemInput{{ProductID: "p1", ProductName: "Bougie", Quantity: 1}},
		ShippingAddress: addressWithEmail("claire@example.fr"),
	})
	if err != nil {
		t.Fatalf("writeback failure must not fail checkout, got %v", err)
	}
	if result.RedirectURL != "https://pay" {
		t.Fatalf("redirect URL = %q", result.RedirectURL)
	}
}

func TestCreateCheckoutReportsPaymentFailure(t *testing.T) {
	catalog := &stubCatalog{products: map[string]domain.Product{
		"p1": {ID: "p1", Name: "Bougie", Price: 1500, Active: true},
	}}
	provider := &stubPaymentProvider{err: errors.New("stripe down")}
	svc := newCheckoutFixture(t, &stubOrderRepository{}, catalog, provider)

	_, err := svc.CreateCheckout(context.Background(), CreateCheckoutCommand{
		Items:           []CheckoutItemInput{{ProductID: "p1", ProductName: "Bougie", Quantity: 1}},
		ShippingAddress: addressWithEmail("claire@example.fr"),
	})
	if !errors.Is(err, ErrPaymentSessionFailed) {
		t.Fatalf("expected ErrPaymentSessionFailed, got %v", err)
	}
}
