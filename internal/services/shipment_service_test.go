package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/orderlane/api/internal/domain"
)

func newTestShipmentService(t *testing.T, deps ShipmentServiceDeps) ShipmentService {
	t.Helper()
	if deps.Shipments == nil {
		deps.Shipments = &stubShipmentRepo{}
	}
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{
			findFn: func(_ context.Context, id string) (domain.Order, error) {
				return paidOrderFixture(id), nil
			},
		}
	}
	if deps.OrderService == nil {
		deps.OrderService = &stubOrderService{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubCounterRepo{
			nextFn: func(_ context.Context, counterID string, _ int64) (int64, error) {
				if counterID != "shipments" {
					t.Fatalf("unexpected counter id %s", counterID)
				}
				return 7, nil
			},
		}
	}
	if deps.Audit == nil {
		deps.Audit = &captureAuditService{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2026, 5, 5, 11, 0, 0, 0, time.UTC) }
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = sequentialIDs("SHP")
	}
	svc, err := NewShipmentService(deps)
	if err != nil {
		t.Fatalf("new shipment service: %v", err)
	}
	return svc
}

func TestShipmentServiceCreate(t *testing.T) {
	var inserted domain.Shipment
	shipRepo := &stubShipmentRepo{
		insertFn: func(_ context.Context, sh domain.Shipment) error {
			inserted = sh
			return nil
		},
	}
	audit := &captureAuditService{}
	svc := newTestShipmentService(t, ShipmentServiceDeps{Shipments: shipRepo, Audit: audit})

	shipment, err := svc.Create(context.Background(), CreateShipmentCommand{
		Actor:   domain.Actor{Type: domain.ActorAdmin, ID: "adm_1"},
		OrderID: "ord_1",
		Carrier: "UPS",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if shipment.ShipmentNumber != "SHP-202605-000007" {
		t.Fatalf("unexpected shipment number %s", shipment.ShipmentNumber)
	}
	if shipment.Status != domain.ShipmentPending {
		t.Fatalf("expected pending got %s", shipment.Status)
	}
	if inserted.ID != shipment.ID {
		t.Fatalf("shipment not persisted")
	}
	if len(audit.records) != 1 || audit.records[0].EventType != "shipment.created" {
		t.Fatalf("expected shipment.created audit record, got %+v", audit.records)
	}
}

func TestShipmentServiceCreateGuards(t *testing.T) {
	svc := newTestShipmentService(t, ShipmentServiceDeps{})

	if _, err := svc.Create(context.Background(), CreateShipmentCommand{
		Actor:   domain.Actor{Type: domain.ActorCustomer, ID: "cus_1"},
		OrderID: "ord_1",
		Carrier: "UPS",
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for customer got %v", err)
	}

	orderRepo := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			return pendingOrderFixture(id), nil
		},
	}
	svc = newTestShipmentService(t, ShipmentServiceDeps{Orders: orderRepo})
	if _, err := svc.Create(context.Background(), CreateShipmentCommand{
		Actor:   domain.Actor{Type: domain.ActorAdmin, ID: "adm_1"},
		OrderID: "ord_1",
		Carrier: "UPS",
	}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for unpaid order got %v", err)
	}
}

func TestShipmentServiceTransitionRequiresTracking(t *testing.T) {
	shipRepo := &stubShipmentRepo{
		findFn: func(_ context.Context, id string) (domain.Shipment, error) {
			return domain.Shipment{ID: id, OrderID: "ord_1", ShipmentNumber: "SHP-1", Status: domain.ShipmentPending}, nil
		},
	}
	svc := newTestShipmentService(t, ShipmentServiceDeps{Shipments: shipRepo})
	actor := domain.Actor{Type: domain.ActorAdmin, ID: "adm_1"}

	if _, err := svc.Transition(context.Background(), ShipmentTransitionCommand{
		Actor:        actor,
		ShipmentID:   "shp_1",
		TargetStatus: domain.ShipmentShipped,
	}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected tracking number requirement got %v", err)
	}

	shipment, err := svc.Transition(context.Background(), ShipmentTransitionCommand{
		Actor:          actor,
		ShipmentID:     "shp_1",
		TargetStatus:   domain.ShipmentShipped,
		TrackingNumber: valuePtr("1Z999"),
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if shipment.DispatchedAt == nil {
		t.Fatalf("expected dispatched_at to be set on shipped")
	}
	if shipment.TrackingNumber == nil || *shipment.TrackingNumber != "1Z999" {
		t.Fatalf("tracking number not recorded")
	}
}

func TestShipmentServiceTransitionGraph(t *testing.T) {
	shipRepo := &stubShipmentRepo{
		findFn: func(_ context.Context, id string) (domain.Shipment, error) {
			return domain.Shipment{ID: id, OrderID: "ord_1", Status: domain.ShipmentPending}, nil
		},
	}
	svc := newTestShipmentService(t, ShipmentServiceDeps{Shipments: shipRepo})

	_, err := svc.Transition(context.Background(), ShipmentTransitionCommand{
		Actor:        domain.Actor{Type: domain.ActorAdmin, ID: "adm_1"},
		ShipmentID:   "shp_1",
		TargetStatus: domain.ShipmentDelivered,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending -> delivered must be rejected, got %v", err)
	}
}

func TestShipmentServiceLastDeliveryFulfillsOrder(t *testing.T) {
	tracking := "1Z999"
	current := domain.Shipment{
		ID: "shp_2", OrderID: "ord_1", ShipmentNumber: "SHP-2",
		Status: domain.ShipmentInTransit, TrackingNumber: &tracking,
	}
	shipRepo := &stubShipmentRepo{
		findFn: func(context.Context, string) (domain.Shipment, error) {
			return current, nil
		},
		updateFn: func(_ context.Context, sh domain.Shipment) error {
			current = sh
			return nil
		},
		listFn: func(context.Context, string) ([]domain.Shipment, error) {
			return []domain.Shipment{
				{ID: "shp_1", OrderID: "ord_1", Status: domain.ShipmentDelivered},
				current,
				{ID: "shp_3", OrderID: "ord_1", Status: domain.ShipmentCancelled},
			}, nil
		},
	}
	var transitioned OrderStatusTransitionCommand
	orderSvc := &stubOrderService{
		transitionFn: func(_ context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
			transitioned = cmd
			return Order{ID: cmd.OrderID, Status: cmd.TargetStatus}, nil
		},
	}
	svc := newTestShipmentService(t, ShipmentServiceDeps{Shipments: shipRepo, OrderService: orderSvc})

	shipment, err := svc.Transition(context.Background(), ShipmentTransitionCommand{
		Actor:        domain.Actor{Type: domain.ActorAdmin, ID: "adm_1"},
		ShipmentID:   "shp_2",
		TargetStatus: domain.ShipmentDelivered,
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if shipment.DeliveredAt == nil {
		t.Fatalf("expected delivered_at to be set")
	}
	if transitioned.TargetStatus != domain.OrderStatusFulfilled || transitioned.OrderID != "ord_1" {
		t.Fatalf("expected order fulfillment, got %+v", transitioned)
	}
}

func TestShipmentServicePartialDeliveryKeepsOrder(t *testing.T) {
	tracking := "1Z999"
	shipRepo := &stubShipmentRepo{
		findFn: func(_ context.Context, id string) (domain.Shipment, error) {
			return domain.Shipment{ID: id, OrderID: "ord_1", Status: domain.ShipmentInTransit, TrackingNumber: &tracking}, nil
		},
		listFn: func(context.Context, string) ([]domain.Shipment, error) {
			return []domain.Shipment{
				{ID: "shp_1", OrderID: "ord_1", Status: domain.ShipmentShipped},
				{ID: "shp_2", OrderID: "ord_1", Status: domain.ShipmentDelivered},
			}, nil
		},
	}
	orderSvc := &stubOrderService{
		transitionFn: func(context.Context, OrderStatusTransitionCommand) (Order, error) {
			return Order{}, errors.New("order must not transition while shipments are open")
		},
	}
	svc := newTestShipmentService(t, ShipmentServiceDeps{Shipments: shipRepo, OrderService: orderSvc})

	if _, err := svc.Transition(context.Background(), ShipmentTransitionCommand{
		Actor:        domain.Actor{Type: domain.ActorAdmin, ID: "adm_1"},
		ShipmentID:   "shp_2",
		TargetStatus: domain.ShipmentDelivered,
	}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
}
