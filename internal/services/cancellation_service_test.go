package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/orderlane/api/internal/domain"
)

type stubOrderService struct {
	transitionFn func(context.Context, OrderStatusTransitionCommand) (Order, error)
}

func (s *stubOrderService) PlaceOrder(context.Context, PlaceOrderCommand) (Order, error) {
	return Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(context.Context, Actor, string) (Order, error) {
	return Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrderByNumber(context.Context, Actor, string) (Order, error) {
	return Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(context.Context, Actor, OrderListFilter) (domain.CursorPage[Order], error) {
	return domain.CursorPage[Order]{}, errors.New("not implemented")
}

func (s *stubOrderService) AddItem(context.Context, AddOrderItemCommand) (Order, error) {
	return Order{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdateItem(context.Context, UpdateOrderItemCommand) (Order, error) {
	return Order{}, errors.New("not implemented")
}

func (s *stubOrderService) RemoveItem(context.Context, RemoveOrderItemCommand) (Order, error) {
	return Order{}, errors.New("not implemented")
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return Order{ID: cmd.OrderID, Status: cmd.TargetStatus}, nil
}

func (s *stubOrderService) MarkPaid(context.Context, MarkOrderPaidCommand) (Order, error) {
	return Order{}, errors.New("not implemented")
}

func (s *stubOrderService) SetBusinessStatus(context.Context, SetBusinessStatusCommand) (Order, error) {
	return Order{}, errors.New("not implemented")
}

func (s *stubOrderService) SoftDelete(context.Context, SoftDeleteOrderCommand) error {
	return errors.New("not implemented")
}

func newTestCancellationService(t *testing.T, deps CancellationServiceDeps) CancellationService {
	t.Helper()
	if deps.Cancellations == nil {
		deps.Cancellations = &stubCancellationRepo{}
	}
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{
			findFn: func(_ context.Context, id string) (domain.Order, error) {
				return pendingOrderFixture(id), nil
			},
		}
	}
	if deps.OrderService == nil {
		deps.OrderService = &stubOrderService{}
	}
	if deps.Audit == nil {
		deps.Audit = &captureAuditService{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2026, 5, 3, 14, 0, 0, 0, time.UTC) }
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = sequentialIDs("CXL")
	}
	svc, err := NewCancellationService(deps)
	if err != nil {
		t.Fatalf("new cancellation service: %v", err)
	}
	return svc
}

func TestCancellationServiceRequest(t *testing.T) {
	var inserted domain.Cancellation
	cancelRepo := &stubCancellationRepo{
		insertFn: func(_ context.Context, c domain.Cancellation) error {
			inserted = c
			return nil
		},
	}
	audit := &captureAuditService{}
	svc := newTestCancellationService(t, CancellationServiceDeps{Cancellations: cancelRepo, Audit: audit})

	cancellation, err := svc.Request(context.Background(), RequestCancellationCommand{
		Actor:       domain.Actor{Type: domain.ActorCustomer, ID: "cus_1"},
		OrderID:     "ord_1",
		ReasonCode:  "changed_mind",
		Explanation: "<b>no</b> longer needed",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if cancellation.Status != domain.CancellationPending {
		t.Fatalf("expected pending got %s", cancellation.Status)
	}
	if inserted.Explanation != "no longer needed" {
		t.Fatalf("expected sanitized explanation, got %q", inserted.Explanation)
	}
	if len(audit.records) != 1 || audit.records[0].EventType != "cancellation.requested" {
		t.Fatalf("expected cancellation.requested audit record, got %+v", audit.records)
	}
}

func TestCancellationServiceRequestRejectsSecondOpen(t *testing.T) {
	cancelRepo := &stubCancellationRepo{
		findOpenFn: func(_ context.Context, orderID string) (domain.Cancellation, error) {
			return domain.Cancellation{ID: "cxl_open", OrderID: orderID, Status: domain.CancellationPending}, nil
		},
	}
	svc := newTestCancellationService(t, CancellationServiceDeps{Cancellations: cancelRepo})

	_, err := svc.Request(context.Background(), RequestCancellationCommand{
		Actor:      domain.Actor{Type: domain.ActorCustomer, ID: "cus_1"},
		OrderID:    "ord_1",
		ReasonCode: "changed_mind",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict got %v", err)
	}
}

func TestCancellationServiceRequestRequiresEditableOrder(t *testing.T) {
	orderRepo := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			order := pendingOrderFixture(id)
			order.Status = domain.OrderStatusFulfilled
			return order, nil
		},
	}
	svc := newTestCancellationService(t, CancellationServiceDeps{Orders: orderRepo})

	_, err := svc.Request(context.Background(), RequestCancellationCommand{
		Actor:      domain.Actor{Type: domain.ActorCustomer, ID: "cus_1"},
		OrderID:    "ord_1",
		ReasonCode: "changed_mind",
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition got %v", err)
	}
}

func TestCancellationServiceResolveApproveCancelsOrder(t *testing.T) {
	var updated domain.Cancellation
	cancelRepo := &stubCancellationRepo{
		findFn: func(_ context.Context, id string) (domain.Cancellation, error) {
			return domain.Cancellation{ID: id, OrderID: "ord_1", Status: domain.CancellationPending}, nil
		},
		updateFn: func(_ context.Context, c domain.Cancellation) error {
			updated = c
			return nil
		},
	}
	var transitioned OrderStatusTransitionCommand
	orderSvc := &stubOrderService{
		transitionFn: func(_ context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
			transitioned = cmd
			return Order{ID: cmd.OrderID, Status: cmd.TargetStatus}, nil
		},
	}
	audit := &captureAuditService{}
	svc := newTestCancellationService(t, CancellationServiceDeps{
		Cancellations: cancelRepo,
		OrderService:  orderSvc,
		Audit:         audit,
	})

	cancellation, err := svc.Resolve(context.Background(), ResolveCancellationCommand{
		Actor:          domain.Actor{Type: domain.ActorAdmin, ID: "adm_1"},
		CancellationID: "cxl_1",
		Decision:       CancellationDecisionApprove,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cancellation.Status != domain.CancellationCompleted {
		t.Fatalf("expected completed got %s", cancellation.Status)
	}
	if cancellation.ResolvedAt == nil {
		t.Fatalf("expected resolved_at to be set")
	}
	if transitioned.TargetStatus != domain.OrderStatusCancelled || transitioned.OrderID != "ord_1" {
		t.Fatalf("expected order cancellation, got %+v", transitioned)
	}
	if updated.Status != domain.CancellationCompleted {
		t.Fatalf("persisted cancellation not completed: %+v", updated)
	}
	if len(audit.records) != 1 || audit.records[0].EventType != "cancellation.resolved" {
		t.Fatalf("expected cancellation.resolved audit record, got %+v", audit.records)
	}
}

func TestCancellationServiceResolveDeny(t *testing.T) {
	cancelRepo := &stubCancellationRepo{
		findFn: func(_ context.Context, id string) (domain.Cancellation, error) {
			return domain.Cancellation{ID: id, OrderID: "ord_1", Status: domain.CancellationPending}, nil
		},
	}
	orderSvc := &stubOrderService{
		transitionFn: func(context.Context, OrderStatusTransitionCommand) (Order, error) {
			return Order{}, errors.New("order must not change on deny")
		},
	}
	seller := "sel_1"
	orderRepo := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			order := pendingOrderFixture(id)
			order.SellerID = &seller
			return order, nil
		},
	}
	svc := newTestCancellationService(t, CancellationServiceDeps{Cancellations: cancelRepo, Orders: orderRepo, OrderService: orderSvc})

	cancellation, err := svc.Resolve(context.Background(), ResolveCancellationCommand{
		Actor:          domain.Actor{Type: domain.ActorSeller, ID: "sel_1"},
		CancellationID: "cxl_1",
		Decision:       CancellationDecisionDeny,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cancellation.Status != domain.CancellationDenied {
		t.Fatalf("expected denied got %s", cancellation.Status)
	}
}

func TestCancellationServiceResolveRejectsCustomer(t *testing.T) {
	cancelRepo := &stubCancellationRepo{
		findFn: func(_ context.Context, id string) (domain.Cancellation, error) {
			return domain.Cancellation{ID: id, OrderID: "ord_1", Status: domain.CancellationPending}, nil
		},
	}
	svc := newTestCancellationService(t, CancellationServiceDeps{Cancellations: cancelRepo})

	_, err := svc.Resolve(context.Background(), ResolveCancellationCommand{
		Actor:          domain.Actor{Type: domain.ActorCustomer, ID: "cus_1"},
		CancellationID: "cxl_1",
		Decision:       CancellationDecisionApprove,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden got %v", err)
	}
}

func TestCancellationServiceResolveRejectsSettled(t *testing.T) {
	cancelRepo := &stubCancellationRepo{
		findFn: func(_ context.Context, id string) (domain.Cancellation, error) {
			return domain.Cancellation{ID: id, OrderID: "ord_1", Status: domain.CancellationDenied}, nil
		},
	}
	svc := newTestCancellationService(t, CancellationServiceDeps{Cancellations: cancelRepo})

	_, err := svc.Resolve(context.Background(), ResolveCancellationCommand{
		Actor:          domain.Actor{Type: domain.ActorAdmin, ID: "adm_1"},
		CancellationID: "cxl_1",
		Decision:       CancellationDecisionApprove,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition got %v", err)
	}
}
