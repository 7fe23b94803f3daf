package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/nuage-shop/api/internal/payments"
)

type stubWebhookProvider struct {
	event payments.WebhookEvent
	err   error
}

func (s *stubWebhookProvider) CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	return payments.CheckoutSession{}, errors.New("not used")
}

func (s *stubWebhookProvider) ParseWebhookEvent(payload []byte, signatureHeader string) (payments.WebhookEvent, error) {
	if s.err != nil {
		return payments.WebhookEvent{}, s.err
	}
	return s.event, nil
}

type stubEventService struct {
	err    error
	events []payments.WebhookEvent
}

func (s *stubEventService) HandleEvent(ctx context.Context, event payments.WebhookEvent) error {
	s.events = append(s.events, event)
	return s.err
}

func newWebhookRouter(provider payments.Provider, events *stubEventService) chi.Router {
	r := chi.NewRouter()
	NewWebhookHandlers(provider, events).Routes(r)
	return r
}

func postWebhook(router chi.Router, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(`{"id":"evt_1"}`))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	events := &stubEventService{}
	router := newWebhookRouter(&stubWebhookProvider{}, events)

	rr := postWebhook(router, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if len(events.events) != 0 {
		t.Fatal("no event must be processed without a signature")
	}
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	events := &stubEventService{}
	provider := &stubWebhookProvider{err: payments.ErrInvalidWebhookSignature}
	router := newWebhookRouter(provider, events)

	rr := postWebhook(router, "t=1,v1=bad")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if len(events.events) != 0 {
		t.Fatal("no event must be processed on signature failure")
	}
}

func TestWebhookAcknowledgesRecognisedEvent(t *testing.T) {
	events := &stubEventService{}
	provider := &stubWebhookProvider{event: payments.WebhookEvent{
		ID:                "evt_1",
		Type:              payments.EventCheckoutCompleted,
		ClientReferenceID: "ord_01ABC",
		PaymentStatus:     "paid",
	}}
	router := newWebhookRouter(provider, events)

	rr := postWebhook(router, "t=1,v1=ok")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"received":true`) {
		t.Fatalf("body = %s, want received acknowledgment", rr.Body.String())
	}
	if len(events.events) != 1 {
		t.Fatalf("processed %d events, want 1", len(events.events))
	}
}

func TestWebhookAcknowledgesDespiteProcessingError(t *testing.T) {
	events := &stubEventService{err: errors.New("firestore down")}
	provider := &stubWebhookProvider{event: payments.WebhookEvent{
		ID:                "evt_1",
		Type:              payments.EventCheckoutCompleted,
		ClientReferenceID: "ord_01ABC",
		PaymentStatus:     "paid",
	}}
	router := newWebhookRouter(provider, events)

	rr := postWebhook(router, "t=1,v1=ok")
	if rr.Code != http.StatusOK {
		t.Fatalf("internal errors must still acknowledge, got %d", rr.Code)
	}
}

func TestWebhookIgnoresUnrecognisedEvent(t *testing.T) {
	events := &stubEventService{}
	provider := &stubWebhookProvider{event: payments.WebhookEvent{
		ID:   "evt_2",
		Type: payments.EventType("invoice.paid"),
	}}
	router := newWebhookRouter(provider, events)

	rr := postWebhook(router, "t=1,v1=ok")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if len(events.events) != 0 {
		t.Fatalf("unrecognised events must not reach the service, got %d", len(events.events))
	}
}
