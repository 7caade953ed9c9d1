package services

import (
	"context"
	"time"

	domain "github.com/orderlane/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination        = domain.Pagination
	Actor             = domain.Actor
	Order             = domain.Order
	OrderItem         = domain.OrderItem
	OrderStatus       = domain.OrderStatus
	InventoryRecord   = domain.InventoryRecord
	InventoryMovement = domain.InventoryMovement
	Cancellation      = domain.Cancellation
	Refund            = domain.Refund
	Shipment          = domain.Shipment
	AuditEntry        = domain.AuditEntry
	CatalogSKU        = domain.CatalogSKU
)

// OrderService owns the order aggregate: placement, line item management, the
// lifecycle state machine, settlement intake, and terminal soft deletion.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error)
	GetOrderByNumber(ctx context.Context, actor Actor, orderNumber string) (Order, error)
	ListOrders(ctx context.Context, actor Actor, filter OrderListFilter) (domain.CursorPage[Order], error)
	AddItem(ctx context.Context, cmd AddOrderItemCommand) (Order, error)
	UpdateItem(ctx context.Context, cmd UpdateOrderItemCommand) (Order, error)
	RemoveItem(ctx context.Context, cmd RemoveOrderItemCommand) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error)
	SetBusinessStatus(ctx context.Context, cmd SetBusinessStatusCommand) (Order, error)
	SoftDelete(ctx context.Context, cmd SoftDeleteOrderCommand) error
}

// InventoryService is the stock ledger: the only component that mutates the
// per-SKU counters. Reserve, Release, and Commit expect to run inside the
// caller's unit of work; Adjust opens its own.
type InventoryService interface {
	Reserve(ctx context.Context, cmd InventoryChangeCommand) (InventoryRecord, error)
	Release(ctx context.Context, cmd InventoryChangeCommand) (InventoryRecord, error)
	Commit(ctx context.Context, cmd InventoryChangeCommand) (InventoryRecord, error)
	Adjust(ctx context.Context, cmd InventoryAdjustCommand) (InventoryRecord, error)
	GetStock(ctx context.Context, sku string) (InventoryRecord, error)
	ListLowStock(ctx context.Context, pager Pagination) (domain.CursorPage[InventoryRecord], error)
	ListMovements(ctx context.Context, filter InventoryMovementFilter) (domain.CursorPage[InventoryMovement], error)
	RepairReleases(ctx context.Context, cmd RepairReleasesCommand) (RepairReleasesResult, error)
}

// CancellationService runs the cancellation workflow for an order.
type CancellationService interface {
	Request(ctx context.Context, cmd RequestCancellationCommand) (Cancellation, error)
	Resolve(ctx context.Context, cmd ResolveCancellationCommand) (Cancellation, error)
	ListByOrder(ctx context.Context, actor Actor, orderID string) ([]Cancellation, error)
}

// RefundService runs the refund workflow against a settled payment.
type RefundService interface {
	Request(ctx context.Context, cmd RequestRefundCommand) (Refund, error)
	Resolve(ctx context.Context, cmd ResolveRefundCommand) (Refund, error)
	ListByOrder(ctx context.Context, actor Actor, orderID string) ([]Refund, error)
}

// ShipmentService tracks physical fulfillment per shipment and reports
// aggregate delivery back to the order.
type ShipmentService interface {
	Create(ctx context.Context, cmd CreateShipmentCommand) (Shipment, error)
	Transition(ctx context.Context, cmd ShipmentTransitionCommand) (Shipment, error)
	ListByOrder(ctx context.Context, actor Actor, orderID string) ([]Shipment, error)
}

// AuditTrailService persists the append-only audit trail. Record is invoked by
// the other services inside the same transaction as the mutation it describes;
// a Record failure aborts that transaction.
type AuditTrailService interface {
	Record(ctx context.Context, record AuditRecord) error
	List(ctx context.Context, actor Actor, filter AuditListFilter) (domain.CursorPage[AuditEntry], error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// InventoryEventPublisher publishes stock change notifications.
type InventoryEventPublisher interface {
	PublishInventoryEvent(ctx context.Context, event InventoryEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	Actor          Actor
	OccurredAt     time.Time
	Metadata       map[string]any
}

// InventoryEvent captures metadata for emitted stock events.
type InventoryEvent struct {
	Type       string
	SKU        string
	ChangeType string
	Delta      int
	Available  int
	LowStock   bool
	OccurredAt time.Time
}

// Command and DTO definitions ------------------------------------------------

// PlaceOrderLine is one requested line at order placement.
type PlaceOrderLine struct {
	SKU       string
	Quantity  int
	UnitPrice int64
}

type PlaceOrderCommand struct {
	Actor              Actor
	CustomerID         string
	SellerID           *string
	ShippingAddressRef *string
	PaymentMethodRef   *string
	Currency           string
	Lines              []PlaceOrderLine
	BusinessStatus     string
}

type AddOrderItemCommand struct {
	Actor     Actor
	OrderID   string
	SKU       string
	Quantity  int
	UnitPrice int64
}

type UpdateOrderItemCommand struct {
	Actor        Actor
	OrderID      string
	ItemID       string
	NewQuantity  *int
	NewUnitPrice *int64
}

type RemoveOrderItemCommand struct {
	Actor   Actor
	OrderID string
	ItemID  string
}

type OrderStatusTransitionCommand struct {
	Actor          Actor
	OrderID        string
	TargetStatus   OrderStatus
	ExpectedStatus *OrderStatus
	Message        string
}

// MarkOrderPaidCommand carries a settlement confirmation from the payment
// collaborator. The engine never initiates capture itself.
type MarkOrderPaidCommand struct {
	Actor      Actor
	OrderID    string
	PaymentRef string
	PaidAmount int64
	Currency   string
	PaidAt     time.Time
}

type SetBusinessStatusCommand struct {
	Actor          Actor
	OrderID        string
	BusinessStatus string
}

type SoftDeleteOrderCommand struct {
	Actor   Actor
	OrderID string
}

// OrderListFilter narrows order listings; non-admin actors are additionally
// scoped to their own orders by the service.
type OrderListFilter struct {
	CustomerID     string
	SellerID       string
	Statuses       []OrderStatus
	PlacedFrom     *time.Time
	PlacedTo       *time.Time
	IncludeDeleted bool
	Pagination     Pagination
}

// InventoryChangeCommand moves quantity between the counters of one SKU.
type InventoryChangeCommand struct {
	Actor         Actor
	SKU           string
	Quantity      int
	ReferenceType string
	ReferenceID   string
	Note          string
}

type InventoryAdjustCommand struct {
	Actor Actor
	SKU   string
	Delta int
	Note  string
}

type InventoryMovementFilter struct {
	SKU           string
	ChangeType    domain.InventoryChangeType
	ReferenceType string
	ReferenceID   string
	Pagination    Pagination
}

// RepairReleasesCommand reconciles stock for one cancelled or refunded order:
// any active item whose reservation was never released is released now.
type RepairReleasesCommand struct {
	Actor   Actor
	OrderID string
}

type RepairReleasesResult struct {
	OrderID  string
	Released map[string]int
}

type RequestCancellationCommand struct {
	Actor       Actor
	OrderID     string
	ReasonCode  string
	Explanation string
}

// CancellationDecision is the reviewer's verdict on a pending cancellation.
type CancellationDecision string

const (
	CancellationDecisionApprove CancellationDecision = "approve"
	CancellationDecisionDeny    CancellationDecision = "deny"
)

type ResolveCancellationCommand struct {
	Actor          Actor
	CancellationID string
	Decision       CancellationDecision
}

type RequestRefundCommand struct {
	Actor       Actor
	OrderID     string
	PaymentRef  *string
	ReasonCode  string
	Explanation string
	Amount      int64
}

// RefundDecision is the reviewer's verdict on a refund request.
type RefundDecision string

const (
	RefundDecisionApprove  RefundDecision = "approve"
	RefundDecisionDeny     RefundDecision = "deny"
	RefundDecisionComplete RefundDecision = "complete"
	RefundDecisionFail     RefundDecision = "fail"
)

type ResolveRefundCommand struct {
	Actor    Actor
	RefundID string
	Decision RefundDecision
}

type CreateShipmentCommand struct {
	Actor          Actor
	OrderID        string
	Carrier        string
	TrackingNumber *string
	Remark         string
}

type ShipmentTransitionCommand struct {
	Actor          Actor
	ShipmentID     string
	TargetStatus   domain.ShipmentStatus
	TrackingNumber *string
	DispatchedAt   *time.Time
	DeliveredAt    *time.Time
	Remark         string
}

// AuditRecord is the payload for one audit trail entry.
type AuditRecord struct {
	OrderID      string
	Actor        Actor
	EventType    string
	StatusBefore string
	StatusAfter  string
	Message      string
	OccurredAt   time.Time
}

type AuditListFilter struct {
	OrderID    string
	EventType  string
	From       *time.Time
	To         *time.Time
	Pagination Pagination
}
