package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/services"
)

func newTestPublisher(t *testing.T) (*PubSubEventPublisher, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	orderTopic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	inventoryTopic, err := client.CreateTopic(ctx, "inventory-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubEventPublisher(orderTopic, inventoryTopic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}
	return publisher, srv
}

func TestPubSubEventPublisherPublishesOrderEvent(t *testing.T) {
	publisher, srv := newTestPublisher(t)

	occurredAt := time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:           "order.status.changed",
		OrderID:        "ord_test",
		OrderNumber:    "ORD-202605-000042",
		PreviousStatus: "pending",
		CurrentStatus:  "processing",
		Actor:          domain.Actor{Type: domain.ActorAdmin, ID: "adm_1"},
		OccurredAt:     occurredAt,
	}

	if err := publisher.PublishOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload orderEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != event.OrderID || payload.CurrentStatus != "processing" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["eventType"]; attr != "order.status.changed" {
		t.Fatalf("expected eventType attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["orderNumber"]; attr != "ORD-202605-000042" {
		t.Fatalf("expected orderNumber attribute, got %q", attr)
	}
}

func TestPubSubEventPublisherPublishesInventoryEvent(t *testing.T) {
	publisher, srv := newTestPublisher(t)

	event := services.InventoryEvent{
		Type:       "inventory.low_stock",
		SKU:        "sku-espresso",
		ChangeType: "adjust",
		Delta:      -4,
		Available:  2,
		LowStock:   true,
		OccurredAt: time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishInventoryEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishInventoryEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if attr := messages[0].Attributes["sku"]; attr != "sku-espresso" {
		t.Fatalf("expected sku attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["lowStock"]; attr != "true" {
		t.Fatalf("expected lowStock attribute, got %q", attr)
	}
}
