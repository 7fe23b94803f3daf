package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nuage-shop/api/internal/payments"
	"github.com/nuage-shop/api/internal/platform/httpx"
	"github.com/nuage-shop/api/internal/platform/requestctx"
	"github.com/nuage-shop/api/internal/services"
)

const (
	maxWebhookBody        = 1 << 20
	stripeSignatureHeader = "Stripe-Signature"
)

// WebhookHandlers consumes payment provider event deliveries.
type WebhookHandlers struct {
	provider payments.Provider
	events   services.PaymentEventService
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(provider payments.Provider, events services.PaymentEventService) *WebhookHandlers {
	return &WebhookHandlers{
		provider: provider,
		events:   events,
	}
}

// Routes registers webhook endpoints under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

// handleStripe verifies the delivery and reconciles it against the order
// store. Only an absent or invalid signature is rejected; internal failures
// are logged and acknowledged so the provider does not retry forever.
func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	if h.provider == nil || h.events == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhooks_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	signature := strings.TrimSpace(r.Header.Get(stripeSignatureHeader))
	if signature == "" {
		httpx.WriteError(ctx, w, httpx.NewError("signature_missing", "signature header is required", http.StatusBadRequest))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	event, err := h.provider.ParseWebhookEvent(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidWebhookSignature) {
			logger.Warn("webhook signature rejected", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "signature verification failed", http.StatusBadRequest))
			return
		}
		// The signature checked out but the payload could not be decoded;
		// acknowledge so the provider does not retry an unparseable event.
		logger.Error("webhook payload rejected", zap.Error(err))
		writeJSONResponse(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if event.Recognised() {
		if err := h.events.HandleEvent(ctx, event); err != nil {
			// Acknowledged despite the failure to avoid provider retry
			// storms; the lost transition surfaces through this log line.
			logger.Error("webhook event processing failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.String("order_id", event.ClientReferenceID),
				zap.Error(err),
			)
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]bool{"received": true})
}
