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
	orderEventCreated         = "order.created"
	orderEventStatusChanged   = "order.status.changed"
	orderEventPaid            = "order.paid"
	orderEventItemAdded       = "order.item.added"
	orderEventItemUpdated     = "order.item.updated"
	orderEventItemRemoved     = "order.item.removed"
	orderEventDeleted         = "order.deleted"
	orderEventBusinessChanged = "order.business_status.changed"

	orderIDPrefix = "ord_"
	itemIDPrefix  = "itm_"

	orderCounterID = "orders"
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	Catalog     repositories.CatalogRepository
	Inventory   InventoryService
	Audit       AuditTrailService
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	counters   repositories.CounterRepository
	catalog    repositories.CatalogRepository
	inventory  InventoryService
	audit      AuditTrailService
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}
	if deps.Audit == nil {
		return nil, errors.New("order service: audit trail service is required")
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

	return &orderService{
		orders:     deps.Orders,
		counters:   deps.Counters,
		catalog:    deps.Catalog,
		inventory:  deps.Inventory,
		audit:      deps.Audit,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	if len(cmd.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one line", ErrInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if !domain.ValidCurrency(currency) {
		return Order{}, fmt.Errorf("%w: invalid currency %q", ErrInvalidInput, cmd.Currency)
	}

	customerID, err := resolveCustomer(cmd.Actor, cmd.CustomerID)
	if err != nil {
		return Order{}, err
	}

	seen := make(map[string]struct{}, len(cmd.Lines))
	for _, line := range cmd.Lines {
		sku := strings.TrimSpace(line.SKU)
		if sku == "" {
			return Order{}, fmt.Errorf("%w: line sku is required", ErrInvalidInput)
		}
		if line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: line quantity must be positive", ErrInvalidInput)
		}
		if line.UnitPrice < 0 {
			return Order{}, fmt.Errorf("%w: line unit price must not be negative", ErrInvalidInput)
		}
		if _, dup := seen[sku]; dup {
			return Order{}, fmt.Errorf("%w: duplicate sku %s in order lines", ErrConflict, sku)
		}
		seen[sku] = struct{}{}
	}

	now := s.clock()

	order := Order{
		ID:                 orderIDPrefix + s.newID(),
		CustomerID:         customerID,
		SellerID:           cmd.SellerID,
		ShippingAddressRef: cmd.ShippingAddressRef,
		PaymentMethodRef:   cmd.PaymentMethodRef,
		Status:             domain.OrderStatusPending,
		BusinessStatus:     sanitizeText(cmd.BusinessStatus),
		Currency:           currency,
		PlacedAt:           now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	for _, line := range cmd.Lines {
		sku, err := s.lookupSKU(ctx, line.SKU)
		if err != nil {
			return Order{}, err
		}
		order.Items = append(order.Items, domain.OrderItem{
			ID:           itemIDPrefix + s.newID(),
			OrderID:      order.ID,
			SKU:          sku.Ref,
			SKUCode:      sku.Code,
			ItemName:     sku.Name,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			Currency:     currency,
			ItemTotal:    domain.ItemTotal(line.Quantity, line.UnitPrice),
			RefundStatus: domain.ItemRefundNone,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	order.OrderTotal = domain.RecomputeOrderTotal(order.Items)

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}
	order.OrderNumber = number

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		for _, item := range order.Items {
			if _, err := s.inventory.Reserve(txCtx, InventoryChangeCommand{
				Actor:         cmd.Actor,
				SKU:           item.SKU,
				Quantity:      item.Quantity,
				ReferenceType: movementReferenceOrder,
				ReferenceID:   order.ID,
			}); err != nil {
				return err
			}
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		return s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    "order.placed",
			StatusBefore: "",
			StatusAfter:  string(order.Status),
			Message:      fmt.Sprintf("order %s placed with %d lines", order.OrderNumber, len(order.Items)),
			OccurredAt:   now,
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		Actor:         cmd.Actor,
		OccurredAt:    now,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if err := authorizeOrderAccess(actor, order); err != nil {
		return Order{}, err
	}
	if order.DeletedAt != nil && actor.Type != domain.ActorAdmin {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, actor Actor, orderNumber string) (Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrInvalidInput)
	}

	order, err := s.orders.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if err := authorizeOrderAccess(actor, order); err != nil {
		return Order{}, err
	}
	if order.DeletedAt != nil && actor.Type != domain.ActorAdmin {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderNumber)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, actor Actor, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if !actor.Valid() {
		return domain.CursorPage[Order]{}, ErrForbidden
	}

	repoFilter := repositories.OrderListFilter{
		CustomerID: strings.TrimSpace(filter.CustomerID),
		SellerID:   strings.TrimSpace(filter.SellerID),
		Statuses:   filter.Statuses,
		CreatedRange: domain.RangeQuery[time.Time]{
			From: filter.PlacedFrom,
			To:   filter.PlacedTo,
		},
		IncludeDeleted: filter.IncludeDeleted,
		Pagination:     filter.Pagination,
	}

	// Non-admin actors only ever see their own orders.
	switch actor.Type {
	case domain.ActorCustomer:
		repoFilter.CustomerID = actor.ID
		repoFilter.IncludeDeleted = false
	case domain.ActorSeller:
		repoFilter.SellerID = actor.ID
		repoFilter.IncludeDeleted = false
	}

	page, err := s.orders.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return page, nil
}

func (s *orderService) AddItem(ctx context.Context, cmd AddOrderItemCommand) (Order, error) {
	skuRef := strings.TrimSpace(cmd.SKU)
	if skuRef == "" {
		return Order{}, fmt.Errorf("%w: sku is required", ErrInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Order{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	if cmd.UnitPrice < 0 {
		return Order{}, fmt.Errorf("%w: unit price must not be negative", ErrInvalidInput)
	}

	sku, err := s.lookupSKU(ctx, skuRef)
	if err != nil {
		return Order{}, err
	}

	var order Order
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.loadForUpdate(txCtx, cmd.Actor, cmd.OrderID)
		if err != nil {
			return err
		}
		if !order.Status.Editable() {
			return fmt.Errorf("%w: items cannot be added while order is %s", ErrInvalidTransition, order.Status)
		}
		if _, exists := order.ActiveItemBySKU(sku.Ref); exists {
			return fmt.Errorf("%w: order already has an active item for sku %s", ErrConflict, sku.Ref)
		}

		now := s.clock()
		if _, err := s.inventory.Reserve(txCtx, InventoryChangeCommand{
			Actor:         cmd.Actor,
			SKU:           sku.Ref,
			Quantity:      cmd.Quantity,
			ReferenceType: movementReferenceOrder,
			ReferenceID:   order.ID,
		}); err != nil {
			return err
		}

		order.Items = append(order.Items, domain.OrderItem{
			ID:           itemIDPrefix + s.newID(),
			OrderID:      order.ID,
			SKU:          sku.Ref,
			SKUCode:      sku.Code,
			ItemName:     sku.Name,
			Quantity:     cmd.Quantity,
			UnitPrice:    cmd.UnitPrice,
			Currency:     order.Currency,
			ItemTotal:    domain.ItemTotal(cmd.Quantity, cmd.UnitPrice),
			RefundStatus: domain.ItemRefundNone,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		s.recomputeTotals(&order, now)

		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		return s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    orderEventItemAdded,
			StatusBefore: string(order.Status),
			StatusAfter:  string(order.Status),
			Message:      fmt.Sprintf("added sku %s x%d", sku.Ref, cmd.Quantity),
			OccurredAt:   now,
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventItemAdded,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		Actor:         cmd.Actor,
		OccurredAt:    order.UpdatedAt,
		Metadata:      map[string]any{"sku": sku.Ref, "quantity": cmd.Quantity},
	})

	return order, nil
}

func (s *orderService) UpdateItem(ctx context.Context, cmd UpdateOrderItemCommand) (Order, error) {
	if cmd.NewQuantity == nil && cmd.NewUnitPrice == nil {
		return Order{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if cmd.NewQuantity != nil && *cmd.NewQuantity <= 0 {
		return Order{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	if cmd.NewUnitPrice != nil && *cmd.NewUnitPrice < 0 {
		return Order{}, fmt.Errorf("%w: unit price must not be negative", ErrInvalidInput)
	}

	var order Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.loadForUpdate(txCtx, cmd.Actor, cmd.OrderID)
		if err != nil {
			return err
		}
		if !order.Status.Editable() {
			return fmt.Errorf("%w: items cannot be changed while order is %s", ErrInvalidTransition, order.Status)
		}

		item, ok := order.ItemByID(strings.TrimSpace(cmd.ItemID))
		if !ok || item.DeletedAt != nil {
			return fmt.Errorf("%w: item %s on order %s", ErrItemNotFound, cmd.ItemID, order.ID)
		}
		if item.RefundStatus.Locked() {
			return fmt.Errorf("%w: item %s refund status %s forbids edits", ErrInvalidTransition, item.ID, item.RefundStatus)
		}

		now := s.clock()

		if cmd.NewQuantity != nil && *cmd.NewQuantity != item.Quantity {
			delta := *cmd.NewQuantity - item.Quantity
			change := InventoryChangeCommand{
				Actor:         cmd.Actor,
				SKU:           item.SKU,
				ReferenceType: movementReferenceOrder,
				ReferenceID:   order.ID,
			}
			if delta > 0 {
				change.Quantity = delta
				if _, err := s.inventory.Reserve(txCtx, change); err != nil {
					return err
				}
			} else {
				change.Quantity = -delta
				if _, err := s.inventory.Release(txCtx, change); err != nil {
					return err
				}
			}
			item.Quantity = *cmd.NewQuantity
		}
		if cmd.NewUnitPrice != nil {
			item.UnitPrice = *cmd.NewUnitPrice
		}
		item.ItemTotal = domain.ItemTotal(item.Quantity, item.UnitPrice)
		item.UpdatedAt = now
		s.recomputeTotals(&order, now)

		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		return s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    orderEventItemUpdated,
			StatusBefore: string(order.Status),
			StatusAfter:  string(order.Status),
			Message:      fmt.Sprintf("updated item %s to x%d @ %d", item.ID, item.Quantity, item.UnitPrice),
			OccurredAt:   now,
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventItemUpdated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		Actor:         cmd.Actor,
		OccurredAt:    order.UpdatedAt,
		Metadata:      map[string]any{"item": strings.TrimSpace(cmd.ItemID)},
	})

	return order, nil
}

func (s *orderService) RemoveItem(ctx context.Context, cmd RemoveOrderItemCommand) (Order, error) {
	var order Order
	var removedSKU string
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.loadForUpdate(txCtx, cmd.Actor, cmd.OrderID)
		if err != nil {
			return err
		}
		if !order.Status.Editable() {
			return fmt.Errorf("%w: items cannot be removed while order is %s", ErrInvalidTransition, order.Status)
		}

		item, ok := order.ItemByID(strings.TrimSpace(cmd.ItemID))
		if !ok || item.DeletedAt != nil {
			return fmt.Errorf("%w: item %s on order %s", ErrItemNotFound, cmd.ItemID, order.ID)
		}
		if item.RefundStatus != domain.ItemRefundNone {
			return fmt.Errorf("%w: item %s refund status %s forbids removal", ErrInvalidTransition, item.ID, item.RefundStatus)
		}

		now := s.clock()
		if _, err := s.inventory.Release(txCtx, InventoryChangeCommand{
			Actor:         cmd.Actor,
			SKU:           item.SKU,
			Quantity:      item.Quantity,
			ReferenceType: movementReferenceOrder,
			ReferenceID:   order.ID,
		}); err != nil {
			return err
		}

		item.DeletedAt = &now
		item.UpdatedAt = now
		removedSKU = item.SKU
		s.recomputeTotals(&order, now)

		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		return s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    orderEventItemRemoved,
			StatusBefore: string(order.Status),
			StatusAfter:  string(order.Status),
			Message:      fmt.Sprintf("removed sku %s x%d", item.SKU, item.Quantity),
			OccurredAt:   now,
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventItemRemoved,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		Actor:         cmd.Actor,
		OccurredAt:    order.UpdatedAt,
		Metadata:      map[string]any{"sku": removedSKU},
	})

	return order, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	target := cmd.TargetStatus
	if !target.Known() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, target)
	}

	var order Order
	var prev domain.OrderStatus
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.loadForUpdate(txCtx, cmd.Actor, cmd.OrderID)
		if err != nil {
			return err
		}

		if cmd.ExpectedStatus != nil && order.Status != *cmd.ExpectedStatus {
			return fmt.Errorf("%w: expected status %q but was %q", ErrConflict, *cmd.ExpectedStatus, order.Status)
		}

		prev = order.Status
		now := s.clock()
		if err := s.applyTransition(txCtx, &order, target, cmd.Actor, now); err != nil {
			return err
		}

		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		return s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    orderEventStatusChanged,
			StatusBefore: string(prev),
			StatusAfter:  string(order.Status),
			Message:      sanitizeText(cmd.Message),
			OccurredAt:   now,
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prev),
		CurrentStatus:  string(order.Status),
		Actor:          cmd.Actor,
		OccurredAt:     order.UpdatedAt,
	})

	return order, nil
}

// MarkPaid consumes a settlement confirmation from the payment collaborator.
// The order moves pending → processing and paid_at is set exactly once.
func (s *orderService) MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error) {
	if cmd.PaidAmount <= 0 {
		return Order{}, fmt.Errorf("%w: paid amount must be positive", ErrInvalidInput)
	}

	var order Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.loadForUpdate(txCtx, cmd.Actor, cmd.OrderID)
		if err != nil {
			return err
		}
		if order.PaidAt != nil {
			return fmt.Errorf("%w: order %s is already settled", ErrConflict, order.ID)
		}
		if order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: settlement applies to pending orders, order is %s", ErrInvalidTransition, order.Status)
		}
		if currency := strings.ToUpper(strings.TrimSpace(cmd.Currency)); currency != "" && currency != order.Currency {
			return fmt.Errorf("%w: settlement currency %s does not match order currency %s", ErrConflict, currency, order.Currency)
		}

		now := s.clock()
		paidAt := cmd.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		paidAt = paidAt.UTC()

		order.Status = domain.OrderStatusProcessing
		order.PaidAt = &paidAt
		order.PaidAmount = cmd.PaidAmount
		if ref := strings.TrimSpace(cmd.PaymentRef); ref != "" {
			order.PaymentRef = &ref
		}
		order.UpdatedAt = now

		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		return s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    orderEventPaid,
			StatusBefore: string(domain.OrderStatusPending),
			StatusAfter:  string(order.Status),
			Message:      fmt.Sprintf("settlement of %d %s recorded", cmd.PaidAmount, order.Currency),
			OccurredAt:   now,
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaid,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(domain.OrderStatusPending),
		CurrentStatus:  string(order.Status),
		Actor:          cmd.Actor,
		OccurredAt:     order.UpdatedAt,
		Metadata:       map[string]any{"amount": cmd.PaidAmount, "currency": order.Currency},
	})

	return order, nil
}

func (s *orderService) SetBusinessStatus(ctx context.Context, cmd SetBusinessStatusCommand) (Order, error) {
	label := sanitizeText(cmd.BusinessStatus)

	var order Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.loadForUpdate(txCtx, cmd.Actor, cmd.OrderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return fmt.Errorf("%w: business status is frozen once order is %s", ErrInvalidTransition, order.Status)
		}

		now := s.clock()
		previous := order.BusinessStatus
		order.BusinessStatus = label
		order.UpdatedAt = now

		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		return s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    orderEventBusinessChanged,
			StatusBefore: string(order.Status),
			StatusAfter:  string(order.Status),
			Message:      fmt.Sprintf("business status %q → %q", previous, label),
			OccurredAt:   now,
		})
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// SoftDelete marks a terminal order deleted. Repeated calls are a no-op.
func (s *orderService) SoftDelete(ctx context.Context, cmd SoftDeleteOrderCommand) error {
	return s.runInTx(ctx, func(txCtx context.Context) error {
		orderID := strings.TrimSpace(cmd.OrderID)
		if orderID == "" {
			return fmt.Errorf("%w: order id is required", ErrInvalidInput)
		}

		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		if err := authorizeOrderAccess(cmd.Actor, order); err != nil {
			return err
		}
		if order.DeletedAt != nil {
			return nil
		}
		if !order.Status.Terminal() {
			return fmt.Errorf("%w: only terminal orders may be deleted, order is %s", ErrInvalidTransition, order.Status)
		}

		now := s.clock()
		order.DeletedAt = &now
		order.UpdatedAt = now

		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		return s.audit.Record(txCtx, AuditRecord{
			OrderID:      order.ID,
			Actor:        cmd.Actor,
			EventType:    orderEventDeleted,
			StatusBefore: string(order.Status),
			StatusAfter:  string(order.Status),
			Message:      "order soft-deleted",
			OccurredAt:   now,
		})
	})
}

// applyTransition validates the move against the lifecycle graph and applies
// the stock side effects owed on entry: cancelled releases every active item's
// reservation, leaving the editable phase into fulfilled/completed commits
// reservations to sold, and fulfilled_at is stamped exactly once.
func (s *orderService) applyTransition(ctx context.Context, order *Order, target domain.OrderStatus, actor Actor, now time.Time) error {
	if !order.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s cannot move to %s", ErrInvalidTransition, order.Status, target)
	}

	fromEditable := order.Status.Editable()
	order.Status = target
	order.UpdatedAt = now

	switch target {
	case domain.OrderStatusCancelled:
		for _, item := range order.ActiveItems() {
			if _, err := s.inventory.Release(ctx, InventoryChangeCommand{
				Actor:         actor,
				SKU:           item.SKU,
				Quantity:      item.Quantity,
				ReferenceType: movementReferenceOrder,
				ReferenceID:   order.ID,
			}); err != nil {
				return err
			}
		}
	case domain.OrderStatusFulfilled, domain.OrderStatusCompleted:
		if fromEditable {
			for _, item := range order.ActiveItems() {
				if _, err := s.inventory.Commit(ctx, InventoryChangeCommand{
					Actor:         actor,
					SKU:           item.SKU,
					Quantity:      item.Quantity,
					ReferenceType: movementReferenceOrder,
					ReferenceID:   order.ID,
				}); err != nil {
					return err
				}
			}
		}
		if target == domain.OrderStatusFulfilled && order.FulfilledAt == nil {
			order.FulfilledAt = &now
		}
	}

	return nil
}

// loadForUpdate re-reads the order inside the transaction and applies the
// ownership rules. Soft-deleted orders are invisible to mutations.
func (s *orderService) loadForUpdate(ctx context.Context, actor Actor, orderID string) (Order, error) {
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

func (s *orderService) lookupSKU(ctx context.Context, ref string) (CatalogSKU, error) {
	if s.catalog == nil {
		return CatalogSKU{}, errors.New("order service: catalog repository not configured")
	}
	sku, err := s.catalog.GetSKU(ctx, strings.TrimSpace(ref))
	if err != nil {
		return CatalogSKU{}, mapRepositoryError(err, ErrSKUNotFound)
	}
	if !sku.Active {
		return CatalogSKU{}, fmt.Errorf("%w: sku %s is inactive", ErrConflict, sku.Ref)
	}
	return sku, nil
}

// recomputeTotals derives order_total from the active items, never by
// incremental arithmetic, so partial failures cannot leave a stale total.
func (s *orderService) recomputeTotals(order *Order, now time.Time) {
	order.OrderTotal = domain.RecomputeOrderTotal(order.Items)
	order.UpdatedAt = now
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderCounterID, 1)
	if err != nil {
		return "", mapRepositoryError(err, ErrOrderNotFound)
	}
	return fmt.Sprintf("ORD-%04d%02d-%06d", now.Year(), int(now.Month()), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func resolveCustomer(actor Actor, customerID string) (string, error) {
	customerID = strings.TrimSpace(customerID)
	switch actor.Type {
	case domain.ActorCustomer:
		if customerID != "" && customerID != actor.ID {
			return "", fmt.Errorf("%w: customers may only place their own orders", ErrForbidden)
		}
		return actor.ID, nil
	case domain.ActorAdmin:
		if customerID == "" {
			return "", fmt.Errorf("%w: customer id is required", ErrInvalidInput)
		}
		return customerID, nil
	case domain.ActorSeller:
		return "", fmt.Errorf("%w: sellers cannot place orders", ErrForbidden)
	}
	return "", ErrForbidden
}
