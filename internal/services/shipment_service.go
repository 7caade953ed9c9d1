package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/repositories"
)

const (
	shipmentIDPrefix  = "shp_"
	shipmentCounterID = "shipments"
)

// ShipmentServiceDeps bundles collaborators required to construct the shipment service.
type ShipmentServiceDeps struct {
	Shipments    repositories.ShipmentRepository
	Orders       repositories.OrderRepository
	OrderService OrderService
	Counters     repositories.CounterRepository
	Audit        AuditTrailService
	UnitOfWork   repositories.UnitOfWork
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type shipmentService struct {
	shipments    repositories.ShipmentRepository
	orders       repositories.OrderRepository
	orderService OrderService
	counters     repositories.CounterRepository
	audit        AuditTrailService
	unitOfWork   repositories.UnitOfWork
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewShipmentService wires dependencies into a concrete ShipmentService implementation.
func NewShipmentService(deps ShipmentServiceDeps) (ShipmentService, error) {
	if deps.Shipments == nil {
		return nil, errors.New("shipment service: shipment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("shipment service: order repository is required")
	}
	if deps.OrderService == nil {
		return nil, errors.New("shipment service: order service is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("shipment service: counter repository is required")
	}
	if deps.Audit == nil {
		return nil, errors.New("shipment service: audit trail service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &shipmentService{
		shipments:    deps.Shipments,
		orders:       deps.Orders,
		orderService: deps.OrderService,
		counters:     deps.Counters,
		audit:        deps.Audit,
		unitOfWork:   unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *shipmentService) Create(ctx context.Context, cmd CreateShipmentCommand) (Shipment, error) {
	carrier := strings.TrimSpace(cmd.Carrier)
	if carrier == "" {
		return Shipment{}, fmt.Errorf("%w: carrier is required", ErrInvalidInput)
	}
	if cmd.Actor.Type == domain.ActorCustomer {
		return Shipment{}, fmt.Errorf("%w: customers cannot create shipments", ErrForbidden)
	}

	now := s.clock()
	number, err := s.generateShipmentNumber(ctx, now)
	if err != nil {
		return Shipment{}, err
	}

	var shipment Shipment
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.loadOrder(txCtx, cmd.Actor, cmd.OrderID)
		if err != nil {
			return err
		}
		if !order.Status.PostPayment() || order.Status.Terminal() {
			return fmt.Errorf("%w: shipments require a paid, open order; order %s is %s", ErrInvalidTransition, order.ID, order.Status)
		}

		shipment = Shipment{
			ID:             shipmentIDPrefix + s.newID(),
			OrderID:        order.ID,
			ShipmentNumber: number,
			Carrier:        carrier,
			TrackingNumber: normalizeTracking(cmd.TrackingNumber),
			Status:         domain.ShipmentPending,
			Remark:         sanitizeText(cmd.Remark),
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := s.shipments.Insert(txCtx, shipment); err != nil {
			return mapRepositoryError(err, ErrShipmentNotFound)
		}
		return s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    "shipment.created",
			StatusBefore: "",
			StatusAfter:  string(shipment.Status),
			Message:      fmt.Sprintf("shipment %s created with carrier %s", shipment.ShipmentNumber, carrier),
			OccurredAt:   now,
		})
	})
	if err != nil {
		return Shipment{}, err
	}
	return shipment, nil
}

// Transition moves one shipment along its lifecycle. When the last moving
// shipment of a processing order is delivered the order is fulfilled inside
// the same unit of work.
func (s *shipmentService) Transition(ctx context.Context, cmd ShipmentTransitionCommand) (Shipment, error) {
	target := cmd.TargetStatus
	if !target.Known() {
		return Shipment{}, fmt.Errorf("%w: unknown shipment status %q", ErrInvalidInput, target)
	}
	if cmd.Actor.Type == domain.ActorCustomer {
		return Shipment{}, fmt.Errorf("%w: customers cannot update shipments", ErrForbidden)
	}

	var shipment Shipment
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		shipment, err = s.shipments.FindByID(txCtx, strings.TrimSpace(cmd.ShipmentID))
		if err != nil {
			return mapRepositoryError(err, ErrShipmentNotFound)
		}

		order, err := s.loadOrder(txCtx, cmd.Actor, shipment.OrderID)
		if err != nil {
			return err
		}

		if !shipment.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: shipment %s cannot move from %s to %s", ErrInvalidTransition, shipment.ID, shipment.Status, target)
		}

		now := s.clock()
		previous := shipment.Status

		if tracking := normalizeTracking(cmd.TrackingNumber); tracking != nil {
			shipment.TrackingNumber = tracking
		}
		if target.Moving() && shipment.TrackingNumber == nil {
			return fmt.Errorf("%w: shipment %s needs a tracking number before it can be %s", ErrInvalidInput, shipment.ID, target)
		}

		shipment.Status = target
		shipment.UpdatedAt = now
		if remark := sanitizeText(cmd.Remark); remark != "" {
			shipment.Remark = remark
		}

		if target == domain.ShipmentShipped && shipment.DispatchedAt == nil {
			dispatched := now
			if cmd.DispatchedAt != nil {
				dispatched = cmd.DispatchedAt.UTC()
			}
			shipment.DispatchedAt = &dispatched
		}
		if target == domain.ShipmentDelivered && shipment.DeliveredAt == nil {
			delivered := now
			if cmd.DeliveredAt != nil {
				delivered = cmd.DeliveredAt.UTC()
			}
			shipment.DeliveredAt = &delivered
		}

		if err := s.shipments.Update(txCtx, shipment); err != nil {
			return mapRepositoryError(err, ErrShipmentNotFound)
		}
		if err := s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    "shipment.status.changed",
			StatusBefore: string(previous),
			StatusAfter:  string(shipment.Status),
			Message:      fmt.Sprintf("shipment %s moved to %s", shipment.ShipmentNumber, shipment.Status),
			OccurredAt:   now,
		}); err != nil {
			return err
		}

		if target == domain.ShipmentDelivered {
			return s.fulfillWhenComplete(txCtx, cmd.Actor, order, shipment)
		}
		return nil
	})
	if err != nil {
		return Shipment{}, err
	}
	return shipment, nil
}

func (s *shipmentService) ListByOrder(ctx context.Context, actor Actor, orderID string) ([]Shipment, error) {
	order, err := s.loadOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	shipments, err := s.shipments.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, mapRepositoryError(err, ErrShipmentNotFound)
	}
	return shipments, nil
}

// fulfillWhenComplete fulfills a processing order once every shipment that was
// not cancelled or returned has been delivered.
func (s *shipmentService) fulfillWhenComplete(ctx context.Context, actor Actor, order Order, delivered Shipment) error {
	if order.Status != domain.OrderStatusProcessing {
		return nil
	}

	shipments, err := s.shipments.ListByOrder(ctx, order.ID)
	if err != nil {
		return mapRepositoryError(err, ErrShipmentNotFound)
	}
	for _, sh := range shipments {
		if sh.ID == delivered.ID {
			continue
		}
		switch sh.Status {
		case domain.ShipmentDelivered, domain.ShipmentCancelled, domain.ShipmentReturned:
		default:
			return nil
		}
	}

	_, err = s.orderService.TransitionStatus(ctx, OrderStatusTransitionCommand{
		Actor:        actor,
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusFulfilled,
		Message:      fmt.Sprintf("all shipments delivered, last was %s", delivered.ShipmentNumber),
	})
	return err
}

func (s *shipmentService) loadOrder(ctx context.Context, actor Actor, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if order.DeletedAt != nil {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	if err := authorizeOrderAccess(actor, order); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *shipmentService) generateShipmentNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, shipmentCounterID, 1)
	if err != nil {
		return "", mapRepositoryError(err, ErrShipmentNotFound)
	}
	return fmt.Sprintf("SHP-%04d%02d-%06d", now.Year(), int(now.Month()), seq), nil
}

func normalizeTracking(tracking *string) *string {
	if tracking == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*tracking)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
