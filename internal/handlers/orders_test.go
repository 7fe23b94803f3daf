package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nuage-shop/api/internal/domain"
	"github.com/nuage-shop/api/internal/services"
)

type stubOrderService struct {
	getOrder         func(ctx context.Context, orderID string) (domain.Order, error)
	getOrderByNumber func(ctx context.Context, orderNumber string) (domain.Order, error)
	listOrders       func(ctx context.Context, query services.ListOrdersQuery) ([]domain.Order, error)
	orderStats       func(ctx context.Context) (services.OrderStats, error)
	updateStatus     func(ctx context.Context, cmd services.UpdateStatusCommand) (domain.Order, error)
	updateTracking   func(ctx context.Context, cmd services.UpdateTrackingCommand) (domain.Order, error)
	verifyOrder      func(ctx context.Context, orderNumber, email string) error
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getOrder == nil {
		return domain.Order{}, services.ErrOrderNotFound
	}
	return s.getOrder(ctx, orderID)
}

func (s *stubOrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if s.getOrderByNumber == nil {
		return domain.Order{}, services.ErrOrderNotFound
	}
	return s.getOrderByNumber(ctx, orderNumber)
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.ListOrdersQuery) ([]domain.Order, error) {
	if s.listOrders == nil {
		return nil, nil
	}
	return s.listOrders(ctx, query)
}

func (s *stubOrderService) OrderStats(ctx context.Context) (services.OrderStats, error) {
	if s.orderStats == nil {
		return services.OrderStats{}, nil
	}
	return s.orderStats(ctx)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateStatusCommand) (domain.Order, error) {
	if s.updateStatus == nil {
		return domain.Order{}, services.ErrOrderNotFound
	}
	return s.updateStatus(ctx, cmd)
}

func (s *stubOrderService) UpdateTracking(ctx context.Context, cmd services.UpdateTrackingCommand) (domain.Order, error) {
	if s.updateTracking == nil {
		return domain.Order{}, services.ErrOrderNotFound
	}
	return s.updateTracking(ctx, cmd)
}

func (s *stubOrderService) VerifyOrder(ctx context.Context, orderNumber, email string) error {
	if s.verifyOrder == nil {
		return services.ErrOrderNotFound
	}
	return s.verifyOrder(ctx, orderNumber, email)
}

func sampleOrder() domain.Order {
	created := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:          "ord_01ABC",
		OrderNumber: "NU-2026-0042",
		Items: []domain.OrderItem{
			{ProductID: "p1", ProductName: "Bougie lavande", UnitPrice: 1000, Quantity: 2},
		},
		Subtotal: 2000,
		Shipping: 590,
		Total:    2590,
		Status:   domain.OrderStatusConfirmed,
		ShippingAddress: domain.ShippingAddress{
			FirstName:  "Claire",
			LastName:   "Moreau",
			Email:      "claire@example.fr",
			Address:    "12 rue des Lilas",
			City:       "Lyon",
			PostalCode: "69003",
			Country:    "FR",
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func newOrdersRouter(svc services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewOrderHandlers(svc).Routes(r)
	return r
}

func TestListOrdersAppliesEmailFilter(t *testing.T) {
	var captured services.ListOrdersQuery
	svc := &stubOrderService{
		listOrders: func(ctx context.Context, query services.ListOrdersQuery) ([]domain.Order, error) {
			captured = query
			return []domain.Order{sampleOrder()}, nil
		},
	}
	router := newOrdersRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/?email=claire%40example.fr&limit=10", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if captured.Email != "claire@example.fr" {
		t.Fatalf("email filter = %q", captured.Email)
	}
	if captured.Limit != 10 {
		t.Fatalf("limit = %d, want 10", captured.Limit)
	}

	var body struct {
		Orders []orderResponse `json:"orders"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(body.Orders) != 1 || body.Orders[0].OrderNumber != "NU-2026-0042" {
		t.Fatalf("unexpected orders payload %+v", body.Orders)
	}
}

func TestGetOrderReturnsNotFound(t *testing.T) {
	router := newOrdersRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/ord_MISSING", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestGetOrderByNumber(t *testing.T) {
	svc := &stubOrderService{
		getOrderByNumber: func(ctx context.Context, orderNumber string) (domain.Order, error) {
			if orderNumber != "NU-2026-0042" {
				t.Fatalf("order number = %q", orderNumber)
			}
			return sampleOrder(), nil
		},
	}
	router := newOrdersRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/number/NU-2026-0042", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Total != 2590 {
		t.Fatalf("total = %d, want 2590", body.Total)
	}
	if body.StatusLabel != "Confirmee" {
		t.Fatalf("statusLabel = %q", body.StatusLabel)
	}
}

func TestOrderStatsPayload(t *testing.T) {
	svc := &stubOrderService{
		orderStats: func(ctx context.Context) (services.OrderStats, error) {
			return services.OrderStats{
				Total: 5,
				ByStatus: map[domain.OrderStatus]int64{
					domain.OrderStatusConfirmed: 3,
					domain.OrderStatusShipped:   2,
				},
			}, nil
		},
	}
	router := newOrdersRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body struct {
		Total    int64            `json:"total"`
		ByStatus map[string]int64 `json:"byStatus"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Total != 5 || body.ByStatus["confirmed"] != 3 {
		t.Fatalf("unexpected stats payload %+v", body)
	}
}

func newVerifyRouter(svc services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewOrderHandlers(svc).PublicRoutes(r)
	return r
}

func TestVerifyOrderEndpointSuccess(t *testing.T) {
	svc := &stubOrderService{
		verifyOrder: func(ctx context.Context, orderNumber, email string) error {
			if orderNumber != "NU-2026-0042" || email != "claire@example.fr" {
				t.Fatalf("unexpected verification %q / %q", orderNumber, email)
			}
			return nil
		},
	}
	router := newVerifyRouter(svc)

	payload := `{"orderNumber":"NU-2026-0042","email":"claire@example.fr"}`
	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !body.Success {
		t.Fatalf("success = false, want true")
	}
}

func TestVerifyOrderEndpointMismatchIsNotFound(t *testing.T) {
	router := newVerifyRouter(&stubOrderService{})

	payload := `{"orderNumber":"NU-2026-0042","email":"autre@example.fr"}`
	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestVerifyOrderEndpointRequiresBothFields(t *testing.T) {
	router := newVerifyRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(`{"orderNumber":"NU-2026-0042"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestListOrdersRejectsInvalidLimit(t *testing.T) {
	router := newOrdersRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/?limit=abc", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}
