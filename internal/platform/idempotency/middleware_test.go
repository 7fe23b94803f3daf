package idempotency

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
}

func newHandler(calls *int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"url":"https://checkout.stripe.com/s/abc","orderNumber":"NU-2026-0001"}`))
	})
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	var calls int32
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(newHandler(&calls))

	body := `{"items":[{"productId":"p1","quantity":1}]}`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "key-123")
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201, got %d", i, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "NU-2026-0001") {
			t.Fatalf("attempt %d: unexpected body %s", i, rec.Body.String())
		}
		if i == 1 && rec.Header().Get("X-Idempotent-Replay") != "true" {
			t.Fatalf("expected replay header on second attempt")
		}
	}

	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	var calls int32
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(newHandler(&calls))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
	}

	if calls != 2 {
		t.Fatalf("expected handler to run twice without a key, ran %d times", calls)
	}
}

func TestMiddlewareRejectsKeyReuseWithDifferentBody(t *testing.T) {
	var calls int32
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(newHandler(&calls))

	first := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"items":[1]}`))
	first.Header.Set("Idempotency-Key", "key-456")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"items":[2]}`))
	second.Header.Set("Idempotency-Key", "key-456")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for fingerprint mismatch, got %d", rec.Code)
	}
}

func TestMiddlewareIgnoresGetRequests(t *testing.T) {
	var calls int32
	store := NewMemoryStore()
	handler := Middleware(store, WithClock(fixedClock))(newHandler(&calls))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Idempotency-Key", "key-789")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if calls != 1 {
		t.Fatalf("expected handler invocation, got %d", calls)
	}
	if rec.Header().Get("X-Idempotent-Replay") == "true" {
		t.Fatalf("GET requests must not be recorded")
	}
}
