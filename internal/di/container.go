// Package di assembles the engine's runtime object graph: repositories,
// domain services, event publishers, and the payment settlement intake.
package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orderlane/api/internal/payments"
	"github.com/orderlane/api/internal/platform/config"
	"github.com/orderlane/api/internal/repositories"
	"github.com/orderlane/api/internal/services"
)

// Services bundles the service-layer contracts handlers rely upon.
type Services struct {
	Orders        services.OrderService
	Inventory     services.InventoryService
	Cancellations services.CancellationService
	Refunds       services.RefundService
	Shipments     services.ShipmentService
	Audit         services.AuditTrailService
}

// ContainerDeps carries the externally constructed collaborators. The
// registry is required; publishers and logger are optional and degrade to
// no-ops when absent.
type ContainerDeps struct {
	Config          config.Config
	Registry        repositories.Registry
	Logger          *zap.Logger
	OrderEvents     services.OrderEventPublisher
	InventoryEvents services.InventoryEventPublisher
}

// Container wires repositories, services, and settlement intake for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	// Settlement intake; nil when no webhook secret is configured.
	WebhookDecoder      *payments.WebhookDecoder
	SettlementProcessor *payments.SettlementProcessor
}

// NewContainer constructs the runtime dependency graph.
func NewContainer(ctx context.Context, deps ContainerDeps) (*Container, error) {
	reg := deps.Registry
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	logger := serviceLogger(deps.Logger)

	audit, err := services.NewAuditTrailService(services.AuditTrailServiceDeps{
		AuditTrail: reg.AuditTrail(),
		Orders:     reg.Orders(),
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build audit trail service: %w", err)
	}

	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory:  reg.Inventory(),
		Orders:     reg.Orders(),
		UnitOfWork: reg,
		Clock:      time.Now,
		Events:     deps.InventoryEvents,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build inventory service: %w", err)
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Counters:   reg.Counters(),
		Catalog:    reg.Catalog(),
		Inventory:  inventory,
		Audit:      audit,
		UnitOfWork: reg,
		Clock:      time.Now,
		Events:     deps.OrderEvents,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	cancellations, err := services.NewCancellationService(services.CancellationServiceDeps{
		Cancellations: reg.Cancellations(),
		Orders:        reg.Orders(),
		OrderService:  orders,
		Audit:         audit,
		UnitOfWork:    reg,
		Clock:         time.Now,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build cancellation service: %w", err)
	}

	refunds, err := services.NewRefundService(services.RefundServiceDeps{
		Refunds:      reg.Refunds(),
		Orders:       reg.Orders(),
		OrderService: orders,
		Audit:        audit,
		UnitOfWork:   reg,
		Clock:        time.Now,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build refund service: %w", err)
	}

	shipments, err := services.NewShipmentService(services.ShipmentServiceDeps{
		Shipments:    reg.Shipments(),
		Orders:       reg.Orders(),
		OrderService: orders,
		Counters:     reg.Counters(),
		Audit:        audit,
		UnitOfWork:   reg,
		Clock:        time.Now,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build shipment service: %w", err)
	}

	container := &Container{
		Config:       deps.Config,
		Repositories: reg,
		Services: Services{
			Orders:        orders,
			Inventory:     inventory,
			Cancellations: cancellations,
			Refunds:       refunds,
			Shipments:     shipments,
			Audit:         audit,
		},
	}

	if deps.Config.Payments.StripeWebhookSecret != "" {
		decoder, err := payments.NewWebhookDecoder(deps.Config.Payments.StripeWebhookSecret)
		if err != nil {
			return nil, fmt.Errorf("build webhook decoder: %w", err)
		}
		processor, err := payments.NewSettlementProcessor(payments.SettlementProcessorDeps{
			Orders: orders,
			Logger: payments.Logger(logger),
		})
		if err != nil {
			return nil, fmt.Errorf("build settlement processor: %w", err)
		}
		container.WebhookDecoder = decoder
		container.SettlementProcessor = processor
	}

	return container, nil
}

// Close releases resources held by the repository layer.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

// serviceLogger adapts the zap logger to the structured event callback the
// services accept.
func serviceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		return func(context.Context, string, map[string]any) {}
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
