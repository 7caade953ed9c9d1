package repositories

import (
	"context"
	"time"

	domain "github.com/orderlane/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Inventory() InventoryRepository
	Cancellations() CancellationRepository
	Refunds() RefundRepository
	Shipments() ShipmentRepository
	AuditTrail() AuditTrailRepository
	Counters() CounterRepository
	Catalog() CatalogRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations into one transactional boundary.
// Implementations must guarantee that reads performed through the ctx passed
// to fn observe a consistent snapshot and that all writes commit atomically,
// retrying fn on optimistic conflicts where the backend supports it. fn must
// therefore be free of side effects outside the repositories. Nested RunInTx
// calls join the ambient transaction instead of opening a new one, so services
// can compose each other's operations inside one atomic unit.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order aggregates, line items included.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	CustomerID     string
	SellerID       string
	Statuses       []domain.OrderStatus
	CreatedRange   domain.RangeQuery[time.Time]
	IncludeDeleted bool
	Pagination     domain.Pagination
}

// InventoryRepository persists per-SKU stock counters and the append-only
// movement log. Counter arithmetic lives in the inventory ledger service; the
// repository only reads and writes rows inside the ambient transaction.
type InventoryRepository interface {
	Get(ctx context.Context, sku string) (domain.InventoryRecord, error)
	Save(ctx context.Context, record domain.InventoryRecord) error
	AppendMovement(ctx context.Context, movement domain.InventoryMovement) error
	ListMovements(ctx context.Context, filter MovementFilter) (domain.CursorPage[domain.InventoryMovement], error)
	ListLowStock(ctx context.Context, query LowStockQuery) (domain.CursorPage[domain.InventoryRecord], error)
}

// MovementFilter narrows movement-log listings.
type MovementFilter struct {
	SKU           string
	ChangeType    domain.InventoryChangeType
	ReferenceType string
	ReferenceID   string
	Pagination    domain.Pagination
}

// LowStockQuery controls pagination for low stock listings.
type LowStockQuery struct {
	Pagination domain.Pagination
}

// CancellationRepository persists cancellation workflow records.
type CancellationRepository interface {
	Insert(ctx context.Context, cancellation domain.Cancellation) error
	Update(ctx context.Context, cancellation domain.Cancellation) error
	FindByID(ctx context.Context, cancellationID string) (domain.Cancellation, error)
	FindOpenByOrder(ctx context.Context, orderID string) (domain.Cancellation, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Cancellation, error)
}

// RefundRepository persists refund workflow records.
type RefundRepository interface {
	Insert(ctx context.Context, refund domain.Refund) error
	Update(ctx context.Context, refund domain.Refund) error
	FindByID(ctx context.Context, refundID string) (domain.Refund, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error)
}

// ShipmentRepository persists shipment tracking records.
type ShipmentRepository interface {
	Insert(ctx context.Context, shipment domain.Shipment) error
	Update(ctx context.Context, shipment domain.Shipment) error
	FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error)
}

// AuditTrailRepository persists immutable audit trail entries. No update or
// delete operation exists by design of the entity.
type AuditTrailRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	ListByOrder(ctx context.Context, filter AuditFilter) (domain.CursorPage[domain.AuditEntry], error)
}

// AuditFilter narrows audit trail listings for one order.
type AuditFilter struct {
	OrderID    string
	EventType  string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// CatalogRepository is the read-only view onto the catalog collaborator.
type CatalogRepository interface {
	GetSKU(ctx context.Context, skuRef string) (domain.CatalogSKU, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
