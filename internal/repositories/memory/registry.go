// Package memory provides a process-local Registry implementation. It backs
// unit and scenario tests and the local development mode, and mirrors the
// transactional semantics of the Firestore registry: RunInTx serializes
// transactions, nested calls join the ambient transaction, and a failed
// transaction leaves no partial writes behind.
package memory

import (
	"context"
	"sync"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/repositories"
)

type txMarker struct{}

// Registry keeps every aggregate in maps guarded by one mutex. Transactions
// take the mutex for their whole duration and roll the state back on error.
type Registry struct {
	mu    sync.Mutex
	state *state

	health repositories.HealthRepository
}

type state struct {
	orders        map[string]domain.Order
	inventory     map[string]domain.InventoryRecord
	movements     []domain.InventoryMovement
	cancellations map[string]domain.Cancellation
	refunds       map[string]domain.Refund
	shipments     map[string]domain.Shipment
	audit         []domain.AuditEntry
	counters      map[string]int64
	catalog       map[string]domain.CatalogSKU
}

func newState() *state {
	return &state{
		orders:        map[string]domain.Order{},
		inventory:     map[string]domain.InventoryRecord{},
		cancellations: map[string]domain.Cancellation{},
		refunds:       map[string]domain.Refund{},
		shipments:     map[string]domain.Shipment{},
		counters:      map[string]int64{},
		catalog:       map[string]domain.CatalogSKU{},
	}
}

func (s *state) clone() *state {
	next := &state{
		orders:        make(map[string]domain.Order, len(s.orders)),
		inventory:     make(map[string]domain.InventoryRecord, len(s.inventory)),
		movements:     append([]domain.InventoryMovement(nil), s.movements...),
		cancellations: make(map[string]domain.Cancellation, len(s.cancellations)),
		refunds:       make(map[string]domain.Refund, len(s.refunds)),
		shipments:     make(map[string]domain.Shipment, len(s.shipments)),
		audit:         append([]domain.AuditEntry(nil), s.audit...),
		counters:      make(map[string]int64, len(s.counters)),
		catalog:       make(map[string]domain.CatalogSKU, len(s.catalog)),
	}
	for id, order := range s.orders {
		next.orders[id] = cloneOrder(order)
	}
	for sku, record := range s.inventory {
		next.inventory[sku] = record
	}
	for id, c := range s.cancellations {
		next.cancellations[id] = c
	}
	for id, r := range s.refunds {
		next.refunds[id] = r
	}
	for id, sh := range s.shipments {
		next.shipments[id] = sh
	}
	for id, n := range s.counters {
		next.counters[id] = n
	}
	for ref, sku := range s.catalog {
		next.catalog[ref] = sku
	}
	return next
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	return order
}

// NewRegistry constructs an empty in-memory registry.
func NewRegistry() *Registry {
	r := &Registry{state: newState()}
	r.health, _ = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "memory", Check: func(context.Context) error { return nil }},
	})
	return r
}

// Close implements repositories.Registry. There is nothing to release.
func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) Orders() repositories.OrderRepository               { return &orderRepository{reg: r} }
func (r *Registry) Inventory() repositories.InventoryRepository        { return &inventoryRepository{reg: r} }
func (r *Registry) Cancellations() repositories.CancellationRepository { return &cancellationRepository{reg: r} }
func (r *Registry) Refunds() repositories.RefundRepository             { return &refundRepository{reg: r} }
func (r *Registry) Shipments() repositories.ShipmentRepository         { return &shipmentRepository{reg: r} }
func (r *Registry) AuditTrail() repositories.AuditTrailRepository      { return &auditTrailRepository{reg: r} }
func (r *Registry) Counters() repositories.CounterRepository           { return &counterRepository{reg: r} }
func (r *Registry) Catalog() repositories.CatalogRepository            { return &catalogRepository{reg: r} }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }

// RunInTx serializes the transaction against all other registry access. The
// callback runs against the live state; on error the pre-transaction snapshot
// is restored so partial writes never survive.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.state.clone()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

// SeedCatalog registers a sellable SKU. Intended for tests and local setups.
func (r *Registry) SeedCatalog(skus ...domain.CatalogSKU) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sku := range skus {
		r.state.catalog[sku.Ref] = sku
	}
}

// SeedInventory installs stock records. Intended for tests and local setups.
func (r *Registry) SeedInventory(records ...domain.InventoryRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range records {
		r.state.inventory[record.SKU] = record
	}
}

func inTx(ctx context.Context) bool {
	marked, _ := ctx.Value(txMarker{}).(bool)
	return marked
}

// lock takes the registry mutex for access outside a transaction. Inside a
// transaction the mutex is already held by RunInTx.
func (r *Registry) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}
