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

const refundIDPrefix = "rfd_"

// RefundServiceDeps bundles collaborators required to construct the refund service.
type RefundServiceDeps struct {
	Refunds      repositories.RefundRepository
	Orders       repositories.OrderRepository
	OrderService OrderService
	Audit        AuditTrailService
	UnitOfWork   repositories.UnitOfWork
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type refundService struct {
	refunds      repositories.RefundRepository
	orders       repositories.OrderRepository
	orderService OrderService
	audit        AuditTrailService
	unitOfWork   repositories.UnitOfWork
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewRefundService wires dependencies into a concrete RefundService implementation.
func NewRefundService(deps RefundServiceDeps) (RefundService, error) {
	if deps.Refunds == nil {
		return nil, errors.New("refund service: refund repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("refund service: order repository is required")
	}
	if deps.OrderService == nil {
		return nil, errors.New("refund service: order service is required")
	}
	if deps.Audit == nil {
		return nil, errors.New("refund service: audit trail service is required")
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

	return &refundService{
		refunds:      deps.Refunds,
		orders:       deps.Orders,
		orderService: deps.OrderService,
		audit:        deps.Audit,
		unitOfWork:   unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *refundService) Request(ctx context.Context, cmd RequestRefundCommand) (Refund, error) {
	if cmd.Amount <= 0 {
		return Refund{}, fmt.Errorf("%w: refund amount must be positive", ErrInvalidInput)
	}
	reason := strings.TrimSpace(cmd.ReasonCode)
	if reason == "" {
		return Refund{}, fmt.Errorf("%w: reason code is required", ErrInvalidInput)
	}

	var refund Refund
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.loadOrder(txCtx, cmd.Actor, cmd.OrderID)
		if err != nil {
			return err
		}
		if !order.Status.PostPayment() || order.PaidAt == nil {
			return fmt.Errorf("%w: order %s has no settled payment to refund", ErrInvalidTransition, order.ID)
		}

		outstanding, err := s.outstandingAmount(txCtx, order.ID)
		if err != nil {
			return err
		}
		if outstanding+cmd.Amount > order.PaidAmount {
			return fmt.Errorf("%w: refund of %d would exceed the settled amount %d (already claimed %d)",
				ErrConflict, cmd.Amount, order.PaidAmount, outstanding)
		}

		now := s.clock()
		refund = Refund{
			ID:          refundIDPrefix + s.newID(),
			OrderID:     order.ID,
			PaymentRef:  firstPaymentRef(cmd.PaymentRef, order.PaymentRef),
			Initiator:   cmd.Actor,
			ReasonCode:  reason,
			Status:      domain.RefundPending,
			Amount:      cmd.Amount,
			Currency:    order.Currency,
			Explanation: sanitizeText(cmd.Explanation),
			RequestedAt: now,
		}

		if err := s.refunds.Insert(txCtx, refund); err != nil {
			return mapRepositoryError(err, ErrRefundNotFound)
		}
		return s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    "refund.requested",
			StatusBefore: "",
			StatusAfter:  string(refund.Status),
			Message:      fmt.Sprintf("refund %s requested for %d %s: %s", refund.ID, refund.Amount, refund.Currency, reason),
			OccurredAt:   now,
		})
	})
	if err != nil {
		return Refund{}, err
	}
	return refund, nil
}

// Resolve applies a reviewer decision to a refund. Completing a refund that
// exhausts the settled amount moves the order to refunded when the lifecycle
// still allows it; a completed order keeps its status and only the money moves.
func (s *refundService) Resolve(ctx context.Context, cmd ResolveRefundCommand) (Refund, error) {
	target, ok := refundDecisionTarget(cmd.Decision)
	if !ok {
		return Refund{}, fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, cmd.Decision)
	}

	var refund Refund
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		refund, err = s.refunds.FindByID(txCtx, strings.TrimSpace(cmd.RefundID))
		if err != nil {
			return mapRepositoryError(err, ErrRefundNotFound)
		}

		order, err := s.loadOrder(txCtx, cmd.Actor, refund.OrderID)
		if err != nil {
			return err
		}
		if cmd.Actor.Type == domain.ActorCustomer {
			return fmt.Errorf("%w: customers cannot resolve refunds", ErrForbidden)
		}

		if !refund.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: refund %s is %s and cannot become %s", ErrInvalidTransition, refund.ID, refund.Status, target)
		}

		now := s.clock()
		previous := refund.Status
		refund.Status = target

		if target == domain.RefundCompleted {
			refund.SettledAt = &now
			if err := s.settleOrderStatus(txCtx, cmd.Actor, order, refund); err != nil {
				return err
			}
		}

		if err := s.refunds.Update(txCtx, refund); err != nil {
			return mapRepositoryError(err, ErrRefundNotFound)
		}
		return s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    "refund.resolved",
			StatusBefore: string(previous),
			StatusAfter:  string(refund.Status),
			Message:      fmt.Sprintf("refund %s resolved as %s", refund.ID, refund.Status),
			OccurredAt:   now,
		})
	})
	if err != nil {
		return Refund{}, err
	}
	return refund, nil
}

func (s *refundService) ListByOrder(ctx context.Context, actor Actor, orderID string) ([]Refund, error) {
	order, err := s.loadOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	refunds, err := s.refunds.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, mapRepositoryError(err, ErrRefundNotFound)
	}
	return refunds, nil
}

// settleOrderStatus flips the order to refunded once the completed refunds
// cover the full settled amount. Terminal orders stay where they are.
func (s *refundService) settleOrderStatus(ctx context.Context, actor Actor, order Order, completing Refund) error {
	existing, err := s.refunds.ListByOrder(ctx, order.ID)
	if err != nil {
		return mapRepositoryError(err, ErrRefundNotFound)
	}

	var completed int64 = completing.Amount
	for _, r := range existing {
		if r.ID != completing.ID && r.Status == domain.RefundCompleted {
			completed += r.Amount
		}
	}
	if completed < order.PaidAmount {
		return nil
	}

	if !order.Status.CanTransitionTo(domain.OrderStatusRefunded) {
		s.logger(ctx, "refund.order.status.kept", map[string]any{
			"order":  order.ID,
			"status": string(order.Status),
			"refund": completing.ID,
		})
		return nil
	}

	_, err = s.orderService.TransitionStatus(ctx, OrderStatusTransitionCommand{
		Actor:        actor,
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusRefunded,
		Message:      fmt.Sprintf("refund %s completed the settled amount", completing.ID),
	})
	return err
}

// outstandingAmount sums the refunds that still claim part of the settled
// payment. Denied and failed refunds release their claim.
func (s *refundService) outstandingAmount(ctx context.Context, orderID string) (int64, error) {
	refunds, err := s.refunds.ListByOrder(ctx, orderID)
	if err != nil {
		return 0, mapRepositoryError(err, ErrRefundNotFound)
	}
	var total int64
	for _, r := range refunds {
		switch r.Status {
		case domain.RefundDenied, domain.RefundFailed:
		default:
			total += r.Amount
		}
	}
	return total, nil
}

func (s *refundService) loadOrder(ctx context.Context, actor Actor, orderID string) (Order, error) {
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

func refundDecisionTarget(decision RefundDecision) (domain.RefundStatus, bool) {
	switch decision {
	case RefundDecisionApprove:
		return domain.RefundApproved, true
	case RefundDecisionDeny:
		return domain.RefundDenied, true
	case RefundDecisionComplete:
		return domain.RefundCompleted, true
	case RefundDecisionFail:
		return domain.RefundFailed, true
	}
	return "", false
}

func firstPaymentRef(refs ...*string) *string {
	for _, ref := range refs {
		if ref != nil && strings.TrimSpace(*ref) != "" {
			return ref
		}
	}
	return nil
}
