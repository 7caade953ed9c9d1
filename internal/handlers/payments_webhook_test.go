package handlers

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/payments"
	"github.com/orderlane/api/internal/services"
)

const webhookTestSecret = "whsec_test_handler_secret"

func signWebhookPayload(t *testing.T, payload string, at time.Time) string {
	t.Helper()
	signature := webhook.ComputeSignature(at, []byte(payload), webhookTestSecret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(signature))
}

func settlementEventPayload(orderID string) string {
	return fmt.Sprintf(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"created": 1735800000,
		"data": {
			"object": {
				"id": "pi_123",
				"amount": 3000,
				"amount_received": 3000,
				"currency": "jpy",
				"metadata": {"order_id": %q}
			}
		}
	}`, orderID)
}

func newWebhookRouter(t *testing.T, orders services.OrderService) chi.Router {
	t.Helper()
	decoder, err := payments.NewWebhookDecoder(webhookTestSecret)
	if err != nil {
		t.Fatalf("failed to build decoder: %v", err)
	}
	processor, err := payments.NewSettlementProcessor(payments.SettlementProcessorDeps{Orders: orders})
	if err != nil {
		t.Fatalf("failed to build processor: %v", err)
	}
	handler := NewPaymentWebhookHandlers(decoder, processor)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)
	return router
}

func TestPaymentWebhookAppliesSettlement(t *testing.T) {
	var captured services.MarkOrderPaidCommand
	orders := &stubOrderService{
		markPaidFn: func(ctx context.Context, cmd services.MarkOrderPaidCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Status: domain.OrderStatusProcessing}, nil
		},
	}

	router := newWebhookRouter(t, orders)
	payload := settlementEventPayload("ord_1")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signWebhookPayload(t, payload, time.Now()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.PaymentRef != "pi_123" {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.PaidAmount != 3000 || captured.Currency != "JPY" {
		t.Fatalf("unexpected settlement amount %#v", captured)
	}
	if captured.Actor.ID != "payment-webhook" {
		t.Fatalf("expected webhook actor, got %#v", captured.Actor)
	}
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	orders := &stubOrderService{
		markPaidFn: func(ctx context.Context, cmd services.MarkOrderPaidCommand) (services.Order, error) {
			t.Fatalf("mark paid should not be called")
			return services.Order{}, nil
		},
	}

	router := newWebhookRouter(t, orders)
	payload := settlementEventPayload("ord_1")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestPaymentWebhookAcknowledgesIgnoredEvents(t *testing.T) {
	orders := &stubOrderService{
		markPaidFn: func(ctx context.Context, cmd services.MarkOrderPaidCommand) (services.Order, error) {
			t.Fatalf("mark paid should not be called")
			return services.Order{}, nil
		},
	}

	router := newWebhookRouter(t, orders)
	payload := `{"id":"evt_2","type":"payment_intent.created","created":1735800000,"data":{"object":{"id":"pi_9"}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signWebhookPayload(t, payload, time.Now()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
}

func TestPaymentWebhookSwallowsReplay(t *testing.T) {
	orders := &stubOrderService{
		markPaidFn: func(ctx context.Context, cmd services.MarkOrderPaidCommand) (services.Order, error) {
			return services.Order{}, services.ErrConflict
		},
	}

	router := newWebhookRouter(t, orders)
	payload := settlementEventPayload("ord_1")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signWebhookPayload(t, payload, time.Now()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected replay to be acknowledged with 204, got %d", rr.Code)
	}
}

func TestPaymentWebhookUnknownOrder(t *testing.T) {
	orders := &stubOrderService{
		markPaidFn: func(ctx context.Context, cmd services.MarkOrderPaidCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}

	router := newWebhookRouter(t, orders)
	payload := settlementEventPayload("ord_missing")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signWebhookPayload(t, payload, time.Now()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestPaymentWebhookUnconfigured(t *testing.T) {
	handler := NewPaymentWebhookHandlers(nil, nil)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(`{}`))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
