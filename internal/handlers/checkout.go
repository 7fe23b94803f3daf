package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nuage-shop/api/internal/domain"
	"github.com/nuage-shop/api/internal/platform/httpx"
	"github.com/nuage-shop/api/internal/services"
)

const maxCheckoutRequestBody = 32 * 1024

// CheckoutHandlers exposes the cart-to-payment endpoint.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createCheckout)
}

type checkoutItemRequest struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	ProductImage string `json:"productImage"`
	Price        int64  `json:"price"`
	Quantity     int64  `json:"quantity"`
}

type checkoutAddressRequest struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	AddressLine2 string `json:"addressLine2"`
	City         string `json:"city"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
}

type checkoutRequest struct {
	Items           []checkoutItemRequest  `json:"items"`
	ShippingAddress checkoutAddressRequest `json:"shippingAddress"`
	ShippingCost    int64                  `json:"shippingCost"`
	Notes           string                 `json:"notes"`
}

type checkoutResponse struct {
	URL         string `json:"url"`
	OrderNumber string `json:"orderNumber"`
}

func (h *CheckoutHandlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "Service temporairement indisponible", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		if errors.Is(err, errEmptyBody) {
			httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "Le panier est vide", http.StatusBadRequest))
			return
		}
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Requete invalide", status))
		return
	}

	var req checkoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Requete invalide", http.StatusBadRequest))
		return
	}

	items := make([]services.CheckoutItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.CheckoutItemInput{
			ProductID:    strings.TrimSpace(item.ProductID),
			ProductName:  strings.TrimSpace(item.ProductName),
			ProductImage: strings.TrimSpace(item.ProductImage),
			UnitPrice:    item.Price,
			Quantity:     item.Quantity,
		})
	}

	result, err := h.checkout.CreateCheckout(ctx, services.CreateCheckoutCommand{
		Items: items,
		ShippingAddress: domain.ShippingAddress{
			FirstName:    strings.TrimSpace(req.ShippingAddress.FirstName),
			LastName:     strings.TrimSpace(req.ShippingAddress.LastName),
			Email:        strings.TrimSpace(req.ShippingAddress.Email),
			Phone:        strings.TrimSpace(req.ShippingAddress.Phone),
			Address:      strings.TrimSpace(req.ShippingAddress.Address),
			AddressLine2: strings.TrimSpace(req.ShippingAddress.AddressLine2),
			City:         strings.TrimSpace(req.ShippingAddress.City),
			PostalCode:   strings.TrimSpace(req.ShippingAddress.PostalCode),
			Country:      strings.TrimSpace(req.ShippingAddress.Country),
		},
		ShippingCost: req.ShippingCost,
		Notes:        req.Notes,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, checkoutResponse{
		URL:         result.RedirectURL,
		OrderNumber: result.OrderNumber,
	})
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if notFound, ok := services.AsProductNotFound(err); ok {
		name := notFound.ProductName
		if name == "" {
			name = notFound.ProductID
		}
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", fmt.Sprintf("Produit introuvable: %s", name), http.StatusBadRequest))
		return
	}

	switch {
	case errors.Is(err, services.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "Le panier est vide", http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidCartItem):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_cart", "Le panier est invalide", http.StatusBadRequest))
	case errors.Is(err, services.ErrShippingAddressRequired):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_address_required", "L'adresse de livraison est requise", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "Service temporairement indisponible", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_session_failed", "Erreur lors de la creation de la session de paiement", http.StatusInternalServerError))
	}
}
