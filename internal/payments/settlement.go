// Package payments adapts the external payment collaborator's webhook wire
// format into settlement confirmations for the order service. The engine never
// initiates capture; it only consumes the collaborator's signed notifications.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/services"
)

// Logger defines the logging contract for settlement intake.
type Logger func(ctx context.Context, event string, fields map[string]any)

// metadata key the checkout integration stamps on every payment intent.
const orderIDMetadataKey = "order_id"

var (
	// ErrInvalidSignature indicates the webhook payload failed verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrIgnoredEvent indicates an event type the engine does not consume.
	ErrIgnoredEvent = errors.New("payments: event type ignored")
	// ErrMissingOrderRef indicates the settlement carries no order reference.
	ErrMissingOrderRef = errors.New("payments: settlement missing order reference")
)

// Settlement is one confirmed payment extracted from a webhook event.
type Settlement struct {
	OrderID    string
	PaymentRef string
	Amount     int64
	Currency   string
	PaidAt     time.Time
}

// WebhookDecoder verifies and decodes the collaborator's webhook payloads.
type WebhookDecoder struct {
	signingSecret string
}

// NewWebhookDecoder constructs a decoder bound to the endpoint's signing secret.
func NewWebhookDecoder(signingSecret string) (*WebhookDecoder, error) {
	if strings.TrimSpace(signingSecret) == "" {
		return nil, errors.New("payments: webhook signing secret is required")
	}
	return &WebhookDecoder{signingSecret: signingSecret}, nil
}

// Decode verifies the payload signature and extracts the settlement. Event
// types other than payment_intent.succeeded return ErrIgnoredEvent so the
// endpoint can acknowledge them without acting.
func (d *WebhookDecoder) Decode(payload []byte, signatureHeader string) (Settlement, error) {
	// The endpoint's pinned API version trails the SDK, so the strict version
	// check would reject otherwise valid deliveries.
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, d.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Settlement{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Type != "payment_intent.succeeded" {
		return Settlement{}, fmt.Errorf("%w: %s", ErrIgnoredEvent, event.Type)
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return Settlement{}, fmt.Errorf("payments: decode payment intent: %w", err)
	}

	orderID := strings.TrimSpace(intent.Metadata[orderIDMetadataKey])
	if orderID == "" {
		return Settlement{}, ErrMissingOrderRef
	}

	amount := intent.AmountReceived
	if amount == 0 {
		amount = intent.Amount
	}

	return Settlement{
		OrderID:    orderID,
		PaymentRef: intent.ID,
		Amount:     amount,
		Currency:   strings.ToUpper(string(intent.Currency)),
		PaidAt:     time.Unix(event.Created, 0).UTC(),
	}, nil
}

// SettlementProcessorDeps wires the processor's collaborators.
type SettlementProcessorDeps struct {
	Orders services.OrderService
	Logger Logger
}

// SettlementProcessor applies decoded settlements to the order lifecycle.
type SettlementProcessor struct {
	orders services.OrderService
	logger Logger
}

// NewSettlementProcessor constructs the settlement processor.
func NewSettlementProcessor(deps SettlementProcessorDeps) (*SettlementProcessor, error) {
	if deps.Orders == nil {
		return nil, errors.New("settlement processor requires order service")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &SettlementProcessor{orders: deps.Orders, logger: logger}, nil
}

// settlementActor attributes webhook-driven mutations in the audit trail.
var settlementActor = domain.Actor{Type: domain.ActorAdmin, ID: "payment-webhook"}

// Process marks the referenced order paid. A settlement replayed against an
// already-paid order reports success so the collaborator stops retrying.
func (p *SettlementProcessor) Process(ctx context.Context, settlement Settlement) error {
	_, err := p.orders.MarkPaid(ctx, services.MarkOrderPaidCommand{
		Actor:      settlementActor,
		OrderID:    settlement.OrderID,
		PaymentRef: settlement.PaymentRef,
		PaidAmount: settlement.Amount,
		Currency:   settlement.Currency,
		PaidAt:     settlement.PaidAt,
	})
	if err != nil {
		if errors.Is(err, services.ErrConflict) {
			p.logger(ctx, "payments.settlement.replayed", map[string]any{
				"order_id":    settlement.OrderID,
				"payment_ref": settlement.PaymentRef,
			})
			return nil
		}
		return err
	}

	p.logger(ctx, "payments.settlement.applied", map[string]any{
		"order_id":    settlement.OrderID,
		"payment_ref": settlement.PaymentRef,
		"amount":      settlement.Amount,
		"currency":    settlement.Currency,
	})
	return nil
}
