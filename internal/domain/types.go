package domain

import (
	"strings"
	"time"

	"golang.org/x/text/currency"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results together with the continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// ActorType identifies which kind of principal performed an operation.
type ActorType string

const (
	// ActorCustomer is the buyer who owns the order.
	ActorCustomer ActorType = "customer"
	// ActorSeller is the merchant fulfilling the order.
	ActorSeller ActorType = "seller"
	// ActorAdmin is back-office staff.
	ActorAdmin ActorType = "admin"
)

// Actor is an already-authenticated principal supplied by the auth collaborator.
// Exactly one (Type, ID) pair identifies the initiator of every mutation.
type Actor struct {
	Type ActorType
	ID   string
}

// IsZero reports whether the actor carries no identity.
func (a Actor) IsZero() bool {
	return strings.TrimSpace(a.ID) == "" || strings.TrimSpace(string(a.Type)) == ""
}

// Valid reports whether the actor type is one of the known principals.
func (a Actor) Valid() bool {
	switch a.Type {
	case ActorCustomer, ActorSeller, ActorAdmin:
		return strings.TrimSpace(a.ID) != ""
	}
	return false
}

// Order is the aggregate root for the order lifecycle. Line items are owned by
// the order and are persisted with it; order_total is always the sum of the
// item totals over non-deleted items.
type Order struct {
	ID                 string
	OrderNumber        string
	CustomerID         string
	SellerID           *string
	ShippingAddressRef *string
	PaymentMethodRef   *string
	Status             OrderStatus
	BusinessStatus     string
	Currency           string
	OrderTotal         int64
	PaidAmount         int64
	PaymentRef         *string
	Items              []OrderItem
	PlacedAt           time.Time
	PaidAt             *time.Time
	FulfilledAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
}

// ActiveItems returns the non-deleted line items of the order.
func (o Order) ActiveItems() []OrderItem {
	active := make([]OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		if item.DeletedAt == nil {
			active = append(active, item)
		}
	}
	return active
}

// ItemByID finds a line item by identity. The second return reports presence.
func (o Order) ItemByID(itemID string) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// ActiveItemBySKU finds the non-deleted line item for a SKU, if any. At most
// one such item exists per order.
func (o Order) ActiveItemBySKU(sku string) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].SKU == sku && o.Items[i].DeletedAt == nil {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// OrderItem is one line of an order. Name and SKU code are snapshots taken
// when the line was added and never change afterwards.
type OrderItem struct {
	ID           string
	OrderID      string
	SKU          string
	SKUCode      string
	ItemName     string
	Quantity     int
	UnitPrice    int64
	Currency     string
	ItemTotal    int64
	RefundStatus ItemRefundStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// ItemRefundStatus tracks the per-line refund/return position of an item.
type ItemRefundStatus string

const (
	ItemRefundNone       ItemRefundStatus = "none"
	ItemRefundPending    ItemRefundStatus = "pending"
	ItemRefundProcessing ItemRefundStatus = "processing"
	ItemRefundShipped    ItemRefundStatus = "shipped"
	ItemRefundDelivered  ItemRefundStatus = "delivered"
	ItemRefundRefunded   ItemRefundStatus = "refunded"
	ItemRefundCancelled  ItemRefundStatus = "cancelled"
)

// Locked reports whether the per-line refund status forbids further edits.
func (s ItemRefundStatus) Locked() bool {
	return s == ItemRefundRefunded || s == ItemRefundCancelled
}

// InventoryRecord carries the per-SKU stock counters. Only the inventory
// ledger mutates these numbers; Available must never be negative.
type InventoryRecord struct {
	SKU               string
	ProductRef        string
	Available         int
	Reserved          int
	Sold              int
	LowStockThreshold *int
	Status            string
	UpdatedAt         time.Time
}

// LowStock reports whether the record sits at or below its threshold.
func (r InventoryRecord) LowStock() bool {
	return r.LowStockThreshold != nil && r.Available <= *r.LowStockThreshold
}

// InventoryChangeType labels entries in the stock movement log.
type InventoryChangeType string

const (
	InventoryChangeReserve InventoryChangeType = "reserve"
	InventoryChangeRelease InventoryChangeType = "release"
	InventoryChangeCommit  InventoryChangeType = "commit"
	InventoryChangeAdjust  InventoryChangeType = "adjust"
)

// InventoryMovement is one append-only entry in the per-SKU stock log,
// recording counter values before and after the change.
type InventoryMovement struct {
	ID              string
	SKU             string
	ChangeType      InventoryChangeType
	Delta           int
	AvailableBefore int
	AvailableAfter  int
	ReservedBefore  int
	ReservedAfter   int
	ReferenceType   string
	ReferenceID     string
	Note            string
	Actor           Actor
	CreatedAt       time.Time
}

// Cancellation models one cancellation request raised against an order.
type Cancellation struct {
	ID          string
	OrderID     string
	Initiator   Actor
	ReasonCode  string
	Status      CancellationStatus
	Explanation string
	RequestedAt time.Time
	ResolvedAt  *time.Time
}

// Open reports whether the cancellation still blocks new requests.
func (c Cancellation) Open() bool {
	return c.Status == CancellationPending || c.Status == CancellationApproved
}

// Refund models one refund request against a settled payment.
type Refund struct {
	ID          string
	OrderID     string
	PaymentRef  *string
	Initiator   Actor
	ReasonCode  string
	Status      RefundStatus
	Amount      int64
	Currency    string
	Explanation string
	RequestedAt time.Time
	SettledAt   *time.Time
}

// Shipment tracks physical fulfillment progress for part of an order.
// Several shipments may exist per order and evolve independently.
type Shipment struct {
	ID             string
	OrderID        string
	ShipmentNumber string
	Carrier        string
	TrackingNumber *string
	Status         ShipmentStatus
	DispatchedAt   *time.Time
	DeliveredAt    *time.Time
	Remark         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AuditEntry is one append-only record of a state-changing operation.
// Entries are never updated or deleted once written.
type AuditEntry struct {
	ID           string
	OrderID      string
	Actor        Actor
	EventType    string
	StatusBefore string
	StatusAfter  string
	Message      string
	CreatedAt    time.Time
}

// CatalogSKU is the read-only view of a sellable variant supplied by the
// catalog collaborator.
type CatalogSKU struct {
	Ref    string
	Code   string
	Name   string
	Active bool
}

// ValidCurrency reports whether code is a well-formed ISO 4217 currency code.
func ValidCurrency(code string) bool {
	_, err := currency.ParseISO(strings.TrimSpace(code))
	return err == nil
}
