package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orderlane/api/internal/payments"
	"github.com/orderlane/api/internal/platform/httpx"
)

const (
	maxWebhookBodySize = 256 * 1024
	signatureHeader    = "Stripe-Signature"
	webhookRateLimit   = 120
	webhookRateWindow  = time.Minute
)

// PaymentWebhookHandlers receives the payment collaborator's settlement
// notifications. The route sits outside the gateway identity middleware;
// authenticity comes from the webhook signature.
type PaymentWebhookHandlers struct {
	decoder   *payments.WebhookDecoder
	processor *payments.SettlementProcessor
	limiter   rateLimiter
}

// NewPaymentWebhookHandlers constructs PaymentWebhookHandlers.
func NewPaymentWebhookHandlers(decoder *payments.WebhookDecoder, processor *payments.SettlementProcessor) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{
		decoder:   decoder,
		processor: processor,
		limiter:   newSimpleRateLimiter(webhookRateLimit, webhookRateWindow, nil),
	}
}

// Routes registers the /webhooks endpoints.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.handleSettlement)
}

func (h *PaymentWebhookHandlers) handleSettlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.decoder == nil || h.processor == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "settlement intake not configured", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many webhook deliveries", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	settlement, err := h.decoder.Decode(body, r.Header.Get(signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrInvalidSignature):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		case errors.Is(err, payments.ErrIgnoredEvent):
			// Acknowledge so the collaborator stops retrying.
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, payments.ErrMissingOrderRef):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "settlement carries no order reference", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed webhook payload", http.StatusBadRequest))
		}
		return
	}

	if err := h.processor.Process(ctx, settlement); err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
