package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/repositories/memory"
)

// engineHarness wires every service over one in-memory registry so scenarios
// exercise the real transactional composition instead of stubs.
type engineHarness struct {
	registry      *memory.Registry
	orders        OrderService
	inventory     InventoryService
	cancellations CancellationService
	refunds       RefundService
	shipments     ShipmentService
	audit         AuditTrailService
	orderEvents   *captureOrderEvents
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()

	reg := memory.NewRegistry()
	clock := func() time.Time { return time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC) }
	newID := sequentialIDs("E2E")
	orderEvents := &captureOrderEvents{}

	audit, err := NewAuditTrailService(AuditTrailServiceDeps{
		AuditTrail:  reg.AuditTrail(),
		Orders:      reg.Orders(),
		Clock:       clock,
		IDGenerator: newID,
	})
	if err != nil {
		t.Fatalf("audit service: %v", err)
	}

	inventory, err := NewInventoryService(InventoryServiceDeps{
		Inventory:   reg.Inventory(),
		Orders:      reg.Orders(),
		UnitOfWork:  reg,
		Clock:       clock,
		IDGenerator: newID,
	})
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}

	orders, err := NewOrderService(OrderServiceDeps{
		Orders:      reg.Orders(),
		Counters:    reg.Counters(),
		Catalog:     reg.Catalog(),
		Inventory:   inventory,
		Audit:       audit,
		UnitOfWork:  reg,
		Clock:       clock,
		IDGenerator: newID,
		Events:      orderEvents,
	})
	if err != nil {
		t.Fatalf("order service: %v", err)
	}

	cancellations, err := NewCancellationService(CancellationServiceDeps{
		Cancellations: reg.Cancellations(),
		Orders:        reg.Orders(),
		OrderService:  orders,
		Audit:         audit,
		UnitOfWork:    reg,
		Clock:         clock,
		IDGenerator:   newID,
	})
	if err != nil {
		t.Fatalf("cancellation service: %v", err)
	}

	refunds, err := NewRefundService(RefundServiceDeps{
		Refunds:      reg.Refunds(),
		Orders:       reg.Orders(),
		OrderService: orders,
		Audit:        audit,
		UnitOfWork:   reg,
		Clock:        clock,
		IDGenerator:  newID,
	})
	if err != nil {
		t.Fatalf("refund service: %v", err)
	}

	shipments, err := NewShipmentService(ShipmentServiceDeps{
		Shipments:    reg.Shipments(),
		Orders:       reg.Orders(),
		OrderService: orders,
		Counters:     reg.Counters(),
		Audit:        audit,
		UnitOfWork:   reg,
		Clock:        clock,
		IDGenerator:  newID,
	})
	if err != nil {
		t.Fatalf("shipment service: %v", err)
	}

	reg.SeedCatalog(
		domain.CatalogSKU{Ref: "sku-espresso", Code: "ESP-01", Name: "Espresso Machine", Active: true},
		domain.CatalogSKU{Ref: "sku-filter", Code: "FLT-02", Name: "Filter Pack", Active: true},
		domain.CatalogSKU{Ref: "sku-hot", Code: "HOT-03", Name: "Limited Edition Grinder", Active: true},
	)
	reg.SeedInventory(
		domain.InventoryRecord{SKU: "sku-espresso", Available: 10},
		domain.InventoryRecord{SKU: "sku-filter", Available: 20},
		domain.InventoryRecord{SKU: "sku-hot", Available: 1},
	)

	return &engineHarness{
		registry:      reg,
		orders:        orders,
		inventory:     inventory,
		cancellations: cancellations,
		refunds:       refunds,
		shipments:     shipments,
		audit:         audit,
		orderEvents:   orderEvents,
	}
}

var (
	e2eCustomer = domain.Actor{Type: domain.ActorCustomer, ID: "cus_1"}
	e2eAdmin    = domain.Actor{Type: domain.ActorAdmin, ID: "adm_1"}
)

func (h *engineHarness) placeOrder(t *testing.T, lines ...PlaceOrderLine) Order {
	t.Helper()
	order, err := h.orders.PlaceOrder(context.Background(), PlaceOrderCommand{
		Actor:    e2eCustomer,
		Currency: "USD",
		Lines:    lines,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	return order
}

func (h *engineHarness) stock(t *testing.T, sku string) domain.InventoryRecord {
	t.Helper()
	record, err := h.inventory.GetStock(context.Background(), sku)
	if err != nil {
		t.Fatalf("get stock %s: %v", sku, err)
	}
	return record
}

func TestEngineScenarioOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)

	order := h.placeOrder(t,
		PlaceOrderLine{SKU: "sku-espresso", Quantity: 2, UnitPrice: 15000},
		PlaceOrderLine{SKU: "sku-filter", Quantity: 3, UnitPrice: 900},
	)
	if order.OrderTotal != 2*15000+3*900 {
		t.Fatalf("unexpected total %d", order.OrderTotal)
	}
	if got := h.stock(t, "sku-espresso"); got.Available != 8 || got.Reserved != 2 {
		t.Fatalf("espresso counters after placement: %+v", got)
	}

	order, err := h.orders.MarkPaid(ctx, MarkOrderPaidCommand{
		Actor:      e2eAdmin,
		OrderID:    order.ID,
		PaymentRef: "pi_42",
		PaidAmount: order.OrderTotal,
	})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing got %s", order.Status)
	}

	shipment, err := h.shipments.Create(ctx, CreateShipmentCommand{
		Actor:   e2eAdmin,
		OrderID: order.ID,
		Carrier: "DHL",
	})
	if err != nil {
		t.Fatalf("create shipment: %v", err)
	}
	if _, err := h.shipments.Transition(ctx, ShipmentTransitionCommand{
		Actor:          e2eAdmin,
		ShipmentID:     shipment.ID,
		TargetStatus:   domain.ShipmentShipped,
		TrackingNumber: valuePtr("JD014600003"),
	}); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if _, err := h.shipments.Transition(ctx, ShipmentTransitionCommand{
		Actor:        e2eAdmin,
		ShipmentID:   shipment.ID,
		TargetStatus: domain.ShipmentDelivered,
	}); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	// Delivery of the only shipment fulfills the order and commits the
	// reservations to sold.
	order, err = h.orders.GetOrder(ctx, e2eAdmin, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusFulfilled {
		t.Fatalf("expected fulfilled got %s", order.Status)
	}
	if order.FulfilledAt == nil {
		t.Fatalf("expected fulfilled_at to be set")
	}
	if got := h.stock(t, "sku-espresso"); got.Available != 8 || got.Reserved != 0 || got.Sold != 2 {
		t.Fatalf("espresso counters after fulfillment: %+v", got)
	}
	if got := h.stock(t, "sku-filter"); got.Reserved != 0 || got.Sold != 3 {
		t.Fatalf("filter counters after fulfillment: %+v", got)
	}

	order, err = h.orders.TransitionStatus(ctx, OrderStatusTransitionCommand{
		Actor:        e2eAdmin,
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusCompleted,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !order.Status.Terminal() {
		t.Fatalf("completed must be terminal")
	}

	// Every mutation along the way left exactly one audit record.
	trail, err := h.audit.List(ctx, e2eAdmin, AuditListFilter{OrderID: order.ID})
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	wantEvents := []string{
		"order.placed",
		"order.paid",
		"shipment.created",
		"shipment.status.changed",
		"shipment.status.changed",
		"order.status.changed",
		"order.status.changed",
	}
	if len(trail.Items) != len(wantEvents) {
		t.Fatalf("expected %d audit entries got %d: %+v", len(wantEvents), len(trail.Items), trail.Items)
	}

	if err := h.orders.SoftDelete(ctx, SoftDeleteOrderCommand{Actor: e2eAdmin, OrderID: order.ID}); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := h.orders.GetOrder(ctx, e2eCustomer, order.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("deleted order must be invisible to customers, got %v", err)
	}
	if _, err := h.orders.GetOrder(ctx, e2eAdmin, order.ID); err != nil {
		t.Fatalf("admins must still read deleted orders: %v", err)
	}
}

func TestEngineScenarioCancellationRestoresStock(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)

	order := h.placeOrder(t, PlaceOrderLine{SKU: "sku-espresso", Quantity: 4, UnitPrice: 15000})
	if got := h.stock(t, "sku-espresso"); got.Available != 6 || got.Reserved != 4 {
		t.Fatalf("counters after placement: %+v", got)
	}

	cancellation, err := h.cancellations.Request(ctx, RequestCancellationCommand{
		Actor:      e2eCustomer,
		OrderID:    order.ID,
		ReasonCode: "changed_mind",
	})
	if err != nil {
		t.Fatalf("request cancellation: %v", err)
	}

	// Only one open cancellation may exist.
	if _, err := h.cancellations.Request(ctx, RequestCancellationCommand{
		Actor:      e2eCustomer,
		OrderID:    order.ID,
		ReasonCode: "changed_mind",
	}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for second open cancellation, got %v", err)
	}

	resolved, err := h.cancellations.Resolve(ctx, ResolveCancellationCommand{
		Actor:          e2eAdmin,
		CancellationID: cancellation.ID,
		Decision:       CancellationDecisionApprove,
	})
	if err != nil {
		t.Fatalf("approve cancellation: %v", err)
	}
	if resolved.Status != domain.CancellationCompleted {
		t.Fatalf("expected completed cancellation got %s", resolved.Status)
	}

	order, err = h.orders.GetOrder(ctx, e2eAdmin, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled got %s", order.Status)
	}
	if got := h.stock(t, "sku-espresso"); got.Available != 10 || got.Reserved != 0 {
		t.Fatalf("counters must be restored after cancellation: %+v", got)
	}

	// Terminal orders never move again.
	if _, err := h.orders.TransitionStatus(ctx, OrderStatusTransitionCommand{
		Actor:        e2eAdmin,
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusProcessing,
	}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from cancelled, got %v", err)
	}
}

func TestEngineScenarioFullRefundFlipsOrder(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)

	order := h.placeOrder(t, PlaceOrderLine{SKU: "sku-filter", Quantity: 2, UnitPrice: 900})
	order, err := h.orders.MarkPaid(ctx, MarkOrderPaidCommand{
		Actor:      e2eAdmin,
		OrderID:    order.ID,
		PaidAmount: order.OrderTotal,
	})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if order, err = h.orders.TransitionStatus(ctx, OrderStatusTransitionCommand{
		Actor:        e2eAdmin,
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusFulfilled,
	}); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	refund, err := h.refunds.Request(ctx, RequestRefundCommand{
		Actor:      e2eCustomer,
		OrderID:    order.ID,
		ReasonCode: "damaged",
		Amount:     order.PaidAmount,
	})
	if err != nil {
		t.Fatalf("request refund: %v", err)
	}
	if refund, err = h.refunds.Resolve(ctx, ResolveRefundCommand{
		Actor:    e2eAdmin,
		RefundID: refund.ID,
		Decision: RefundDecisionApprove,
	}); err != nil {
		t.Fatalf("approve refund: %v", err)
	}
	if refund, err = h.refunds.Resolve(ctx, ResolveRefundCommand{
		Actor:    e2eAdmin,
		RefundID: refund.ID,
		Decision: RefundDecisionComplete,
	}); err != nil {
		t.Fatalf("complete refund: %v", err)
	}
	if refund.SettledAt == nil {
		t.Fatalf("expected settled_at on completed refund")
	}

	order, err = h.orders.GetOrder(ctx, e2eAdmin, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusRefunded {
		t.Fatalf("expected refunded got %s", order.Status)
	}

	// The settled amount is exhausted; further refunds are rejected.
	if _, err := h.refunds.Request(ctx, RequestRefundCommand{
		Actor:      e2eCustomer,
		OrderID:    order.ID,
		ReasonCode: "damaged",
		Amount:     1,
	}); err == nil {
		t.Fatalf("expected refund request against exhausted settlement to fail")
	}
}

func TestEngineConcurrentReservationOfLastUnit(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)

	first := h.placeOrder(t, PlaceOrderLine{SKU: "sku-espresso", Quantity: 1, UnitPrice: 15000})
	second := h.placeOrder(t, PlaceOrderLine{SKU: "sku-filter", Quantity: 1, UnitPrice: 900})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, orderID := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, orderID string) {
			defer wg.Done()
			_, errs[i] = h.orders.AddItem(ctx, AddOrderItemCommand{
				Actor:     e2eCustomer,
				OrderID:   orderID,
				SKU:       "sku-hot",
				Quantity:  1,
				UnitPrice: 49900,
			})
		}(i, orderID)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			if !errors.Is(err, ErrInsufficientStock) {
				t.Fatalf("unexpected error %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("exactly one reservation of the last unit must fail, got %d failures", failures)
	}

	record := h.stock(t, "sku-hot")
	if record.Available != 0 || record.Reserved != 1 {
		t.Fatalf("last unit counters inconsistent: %+v", record)
	}
}
