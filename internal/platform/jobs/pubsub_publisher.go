// Package jobs publishes domain events to Pub/Sub for downstream consumers
// (notifications, analytics, seller dashboards). Delivery is at-least-once;
// consumers deduplicate on the event payload.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/orderlane/api/internal/platform/textutil"
	"github.com/orderlane/api/internal/services"
)

// PubSubEventPublisher publishes order and inventory events to their topics.
type PubSubEventPublisher struct {
	orderTopic     *pubsub.Topic
	inventoryTopic *pubsub.Topic
	marshal        func(any) ([]byte, error)
}

var (
	_ services.OrderEventPublisher     = (*PubSubEventPublisher)(nil)
	_ services.InventoryEventPublisher = (*PubSubEventPublisher)(nil)
)

// NewPubSubEventPublisher constructs a publisher bound to the given topics.
func NewPubSubEventPublisher(orderTopic, inventoryTopic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if orderTopic == nil {
		return nil, errors.New("pubsub event publisher: order topic is required")
	}
	if inventoryTopic == nil {
		return nil, errors.New("pubsub event publisher: inventory topic is required")
	}
	return &PubSubEventPublisher{
		orderTopic:     orderTopic,
		inventoryTopic: inventoryTopic,
		marshal:        json.Marshal,
	}, nil
}

type orderEventMessage struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorType      string         `json:"actorType"`
	ActorID        string         `json:"actorId"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type inventoryEventMessage struct {
	Type       string    `json:"type"`
	SKU        string    `json:"sku"`
	ChangeType string    `json:"changeType,omitempty"`
	Delta      int       `json:"delta"`
	Available  int       `json:"available"`
	LowStock   bool      `json:"lowStock"`
	OccurredAt time.Time `json:"occurredAt"`
}

// PublishOrderEvent emits one order lifecycle event on the order topic.
func (p *PubSubEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.orderTopic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(orderEventMessage{
		Type:           event.Type,
		OrderID:        event.OrderID,
		OrderNumber:    event.OrderNumber,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorType:      string(event.Actor.Type),
		ActorID:        event.Actor.ID,
		OccurredAt:     event.OccurredAt,
		Metadata:       event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	result := p.orderTopic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: textutil.NormalizeStringMap(map[string]string{
			"eventType":     event.Type,
			"orderId":       event.OrderID,
			"orderNumber":   event.OrderNumber,
			"currentStatus": event.CurrentStatus,
		}),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// PublishInventoryEvent emits one stock change event on the inventory topic.
func (p *PubSubEventPublisher) PublishInventoryEvent(ctx context.Context, event services.InventoryEvent) error {
	if p == nil || p.inventoryTopic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(inventoryEventMessage{
		Type:       event.Type,
		SKU:        event.SKU,
		ChangeType: event.ChangeType,
		Delta:      event.Delta,
		Available:  event.Available,
		LowStock:   event.LowStock,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal inventory event: %w", err)
	}

	attrs := textutil.NormalizeStringMap(map[string]string{
		"eventType": event.Type,
		"sku":       event.SKU,
	})
	if attrs == nil {
		attrs = make(map[string]string, 1)
	}
	attrs["lowStock"] = strconv.FormatBool(event.LowStock)

	result := p.inventoryTopic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish inventory event: %w", err)
	}
	return nil
}
