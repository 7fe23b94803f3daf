package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nuage-shop/api/internal/domain"
	"github.com/nuage-shop/api/internal/platform/httpx"
	"github.com/nuage-shop/api/internal/services"
)

const maxAdminRequestBody = 8 * 1024

// AdminHandlers exposes the administrative order mutations.
type AdminHandlers struct {
	orders services.OrderService
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(orders services.OrderService) *AdminHandlers {
	return &AdminHandlers{orders: orders}
}

// Routes registers admin endpoints under the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/{orderID}/status", h.updateStatus)
	r.Post("/orders/{orderID}/tracking", h.updateTracking)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// updateTrackingRequest uses pointer fields so an absent JSON key can be told
// apart from an explicit empty string; absent keys leave stored values alone.
type updateTrackingRequest struct {
	TrackingNumber    *string `json:"trackingNumber"`
	TrackingURL       *string `json:"trackingUrl"`
	EstimatedDelivery *string `json:"estimatedDelivery"`
}

func (h *AdminHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(ctx, w)
		return
	}

	body, err := readLimitedBody(r, maxAdminRequestBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	var req updateStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  domain.OrderStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		h.writeAdminError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

func (h *AdminHandlers) updateTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(ctx, w)
		return
	}

	body, err := readLimitedBody(r, maxAdminRequestBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	var req updateTrackingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateTracking(ctx, services.UpdateTrackingCommand{
		OrderID:           chi.URLParam(r, "orderID"),
		TrackingNumber:    req.TrackingNumber,
		TrackingURL:       req.TrackingURL,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		h.writeAdminError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

func (h *AdminHandlers) writeAdminError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "Commande introuvable", http.StatusNotFound))
	case errors.Is(err, services.ErrInvalidOrderStatus):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status", "Statut invalide", http.StatusBadRequest))
	case errors.Is(err, services.ErrTransitionNotAllowed):
		httpx.WriteError(ctx, w, httpx.NewError("transition_not_allowed", "Transition de statut non autorisee", http.StatusConflict))
	case errors.Is(err, services.ErrOrdersUnavailable):
		writeOrdersUnavailable(ctx, w)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("orders_error", "failed to process order request", http.StatusInternalServerError))
	}
}
