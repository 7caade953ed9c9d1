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

const cancellationIDPrefix = "cxl_"

// CancellationServiceDeps bundles collaborators required to construct the cancellation service.
type CancellationServiceDeps struct {
	Cancellations repositories.CancellationRepository
	Orders        repositories.OrderRepository
	OrderService  OrderService
	Audit         AuditTrailService
	UnitOfWork    repositories.UnitOfWork
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type cancellationService struct {
	cancellations repositories.CancellationRepository
	orders        repositories.OrderRepository
	orderService  OrderService
	audit         AuditTrailService
	unitOfWork    repositories.UnitOfWork
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewCancellationService wires dependencies into a concrete CancellationService implementation.
func NewCancellationService(deps CancellationServiceDeps) (CancellationService, error) {
	if deps.Cancellations == nil {
		return nil, errors.New("cancellation service: cancellation repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("cancellation service: order repository is required")
	}
	if deps.OrderService == nil {
		return nil, errors.New("cancellation service: order service is required")
	}
	if deps.Audit == nil {
		return nil, errors.New("cancellation service: audit trail service is required")
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

	return &cancellationService{
		cancellations: deps.Cancellations,
		orders:        deps.Orders,
		orderService:  deps.OrderService,
		audit:         deps.Audit,
		unitOfWork:    unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *cancellationService) Request(ctx context.Context, cmd RequestCancellationCommand) (Cancellation, error) {
	reason := strings.TrimSpace(cmd.ReasonCode)
	if reason == "" {
		return Cancellation{}, fmt.Errorf("%w: reason code is required", ErrInvalidInput)
	}

	var cancellation Cancellation
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.loadOrder(txCtx, cmd.Actor, cmd.OrderID)
		if err != nil {
			return err
		}
		if !order.Status.Editable() {
			return fmt.Errorf("%w: order %s is %s and can no longer be cancelled", ErrInvalidTransition, order.ID, order.Status)
		}

		if open, err := s.cancellations.FindOpenByOrder(txCtx, order.ID); err != nil {
			if mapped := mapRepositoryError(err, ErrCancellationNotFound); !errors.Is(mapped, ErrCancellationNotFound) {
				return mapped
			}
		} else if open.Open() {
			return fmt.Errorf("%w: cancellation %s is already open for order %s", ErrConflict, open.ID, order.ID)
		}

		now := s.clock()
		cancellation = Cancellation{
			ID:          cancellationIDPrefix + s.newID(),
			OrderID:     order.ID,
			Initiator:   cmd.Actor,
			ReasonCode:  reason,
			Status:      domain.CancellationPending,
			Explanation: sanitizeText(cmd.Explanation),
			RequestedAt: now,
		}

		if err := s.cancellations.Insert(txCtx, cancellation); err != nil {
			return mapRepositoryError(err, ErrCancellationNotFound)
		}
		return s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    "cancellation.requested",
			StatusBefore: "",
			StatusAfter:  string(cancellation.Status),
			Message:      fmt.Sprintf("cancellation %s requested: %s", cancellation.ID, reason),
			OccurredAt:   now,
		})
	})
	if err != nil {
		return Cancellation{}, err
	}
	return cancellation, nil
}

// Resolve applies a reviewer decision. Approval cancels the order inside the
// same unit of work, so a failed order transition rolls the decision back too.
func (s *cancellationService) Resolve(ctx context.Context, cmd ResolveCancellationCommand) (Cancellation, error) {
	if cmd.Decision != CancellationDecisionApprove && cmd.Decision != CancellationDecisionDeny {
		return Cancellation{}, fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, cmd.Decision)
	}

	var cancellation Cancellation
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		cancellation, err = s.cancellations.FindByID(txCtx, strings.TrimSpace(cmd.CancellationID))
		if err != nil {
			return mapRepositoryError(err, ErrCancellationNotFound)
		}

		order, err := s.loadOrder(txCtx, cmd.Actor, cancellation.OrderID)
		if err != nil {
			return err
		}
		// Customers raise cancellations; they never review them.
		if cmd.Actor.Type == domain.ActorCustomer {
			return fmt.Errorf("%w: customers cannot resolve cancellations", ErrForbidden)
		}

		now := s.clock()
		previous := cancellation.Status

		switch cmd.Decision {
		case CancellationDecisionDeny:
			if !cancellation.Status.CanTransitionTo(domain.CancellationDenied) {
				return fmt.Errorf("%w: cancellation %s is %s", ErrInvalidTransition, cancellation.ID, cancellation.Status)
			}
			cancellation.Status = domain.CancellationDenied
			cancellation.ResolvedAt = &now

		case CancellationDecisionApprove:
			if !cancellation.Status.CanTransitionTo(domain.CancellationApproved) {
				return fmt.Errorf("%w: cancellation %s is %s", ErrInvalidTransition, cancellation.ID, cancellation.Status)
			}
			if _, err := s.orderService.TransitionStatus(txCtx, OrderStatusTransitionCommand{
				Actor:        cmd.Actor,
				OrderID:      order.ID,
				TargetStatus: domain.OrderStatusCancelled,
				Message:      fmt.Sprintf("cancellation %s approved", cancellation.ID),
			}); err != nil {
				return err
			}
			cancellation.Status = domain.CancellationCompleted
			cancellation.ResolvedAt = &now
		}

		if err := s.cancellations.Update(txCtx, cancellation); err != nil {
			return mapRepositoryError(err, ErrCancellationNotFound)
		}
		return s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    "cancellation.resolved",
			StatusBefore: string(previous),
			StatusAfter:  string(cancellation.Status),
			Message:      fmt.Sprintf("cancellation %s resolved as %s", cancellation.ID, cancellation.Status),
			OccurredAt:   now,
		})
	})
	if err != nil {
		return Cancellation{}, err
	}
	return cancellation, nil
}

func (s *cancellationService) ListByOrder(ctx context.Context, actor Actor, orderID string) ([]Cancellation, error) {
	order, err := s.loadOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	cancellations, err := s.cancellations.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, mapRepositoryError(err, ErrCancellationNotFound)
	}
	return cancellations, nil
}

func (s *cancellationService) loadOrder(ctx context.Context, actor Actor, orderID string) (Order, error) {
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
