package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nuage-shop/api/internal/domain"
	"github.com/nuage-shop/api/internal/platform/httpx"
	"github.com/nuage-shop/api/internal/services"
)

const (
	maxOrderListLimit    = 200
	maxVerifyRequestBody = 4 * 1024
)

// OrderHandlers exposes the read-only order endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
	r.Get("/stats", h.orderStats)
	r.Get("/number/{orderNumber}", h.getOrderByNumber)
	r.Get("/{orderID}", h.getOrder)
}

// PublicRoutes registers the order endpoints reachable without a signed request.
func (h *OrderHandlers) PublicRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/verify", h.verifyOrder)
}

type orderItemResponse struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	ProductImage string `json:"productImage,omitempty"`
	UnitPrice    int64  `json:"unitPrice"`
	Quantity     int64  `json:"quantity"`
}

type orderAddressResponse struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Address      string `json:"address"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
}

type orderResponse struct {
	ID                string               `json:"id"`
	OrderNumber       string               `json:"orderNumber"`
	Items             []orderItemResponse  `json:"items"`
	Subtotal          int64                `json:"subtotal"`
	Shipping          int64                `json:"shipping"`
	Total             int64                `json:"total"`
	Status            string               `json:"status"`
	StatusLabel       string               `json:"statusLabel,omitempty"`
	ShippingAddress   orderAddressResponse `json:"shippingAddress"`
	Notes             string               `json:"notes,omitempty"`
	TrackingNumber    string               `json:"trackingNumber,omitempty"`
	TrackingURL       string               `json:"trackingUrl,omitempty"`
	EstimatedDelivery string               `json:"estimatedDelivery,omitempty"`
	PaymentSessionID  string               `json:"paymentSessionId,omitempty"`
	PaymentIntentID   string               `json:"paymentIntentId,omitempty"`
	ShippedAt         string               `json:"shippedAt,omitempty"`
	DeliveredAt       string               `json:"deliveredAt,omitempty"`
	CreatedAt         string               `json:"createdAt"`
	UpdatedAt         string               `json:"updatedAt"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			UnitPrice:    item.UnitPrice,
			Quantity:     item.Quantity,
		})
	}
	return orderResponse{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Items:       items,
		Subtotal:    order.Subtotal,
		Shipping:    order.Shipping,
		Total:       order.Total,
		Status:      string(order.Status),
		StatusLabel: domain.OrderStatusLabels[order.Status],
		ShippingAddress: orderAddressResponse{
			FirstName:    order.ShippingAddress.FirstName,
			LastName:     order.ShippingAddress.LastName,
			Email:        order.ShippingAddress.Email,
			Phone:        order.ShippingAddress.Phone,
			Address:      order.ShippingAddress.Address,
			AddressLine2: order.ShippingAddress.AddressLine2,
			City:         order.ShippingAddress.City,
			PostalCode:   order.ShippingAddress.PostalCode,
			Country:      order.ShippingAddress.Country,
		},
		Notes:             order.Notes,
		TrackingNumber:    order.TrackingNumber,
		TrackingURL:       order.TrackingURL,
		EstimatedDelivery: order.EstimatedDelivery,
		PaymentSessionID:  order.PaymentSessionID,
		PaymentIntentID:   order.PaymentIntentID,
		ShippedAt:         formatTimePtr(order.ShippedAt),
		DeliveredAt:       formatTimePtr(order.DeliveredAt),
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
	}
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(ctx, w)
		return
	}

	query := services.ListOrdersQuery{
		Email: strings.TrimSpace(r.URL.Query().Get("email")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		if limit > maxOrderListLimit {
			limit = maxOrderListLimit
		}
		query.Limit = limit
	}

	orders, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payload := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		payload = append(payload, toOrderResponse(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": payload})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(ctx, w)
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandlers) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(ctx, w)
		return
	}

	order, err := h.orders.GetOrderByNumber(ctx, chi.URLParam(r, "orderNumber"))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

type verifyOrderRequest struct {
	OrderNumber string `json:"orderNumber"`
	Email       string `json:"email"`
}

// verifyOrder lets a customer prove ownership of an order with its number and
// the shipping email. Unknown numbers and mismatched emails both answer 404 so
// the endpoint never reveals whether an order exists.
func (h *OrderHandlers) verifyOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(ctx, w)
		return
	}

	body, err := readLimitedBody(r, maxVerifyRequestBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	var req verifyOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	orderNumber := strings.TrimSpace(req.OrderNumber)
	email := strings.TrimSpace(req.Email)
	if orderNumber == "" || email == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Numero de commande et email requis", http.StatusBadRequest))
		return
	}

	if err := h.orders.VerifyOrder(ctx, orderNumber, email); err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

func (h *OrderHandlers) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(ctx, w)
		return
	}

	stats, err := h.orders.OrderStats(ctx)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	byStatus := make(map[string]int64, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[string(status)] = count
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"total":    stats.Total,
		"byStatus": byStatus,
	})
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "Commande introuvable", http.StatusNotFound))
	case errors.Is(err, services.ErrOrdersUnavailable):
		writeOrdersUnavailable(ctx, w)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("orders_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writeOrdersUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
}
