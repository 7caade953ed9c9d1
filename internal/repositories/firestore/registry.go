package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/orderlane/api/internal/platform/config"
	pfirestore "github.com/orderlane/api/internal/platform/firestore"
	"github.com/orderlane/api/internal/repositories"
)

// Registry wires the Firestore-backed repositories behind the repositories.Registry interface.
type Registry struct {
	provider   *pfirestore.Provider
	txAttempts int

	orders        *OrderRepository
	inventory     *InventoryRepository
	cancellations *CancellationRepository
	refunds       *RefundRepository
	shipments     *ShipmentRepository
	audit         *AuditTrailRepository
	counters      *CounterRepository
	catalog       *CatalogRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the Firestore registry from a shared provider.
func NewRegistry(provider *pfirestore.Provider, cfg config.FirestoreConfig) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires a provider")
	}

	reg := &Registry{
		provider:   provider,
		txAttempts: cfg.TxMaxAttempts,
	}

	var err error
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.inventory, err = NewInventoryRepository(provider); err != nil {
		return nil, err
	}
	if reg.cancellations, err = NewCancellationRepository(provider); err != nil {
		return nil, err
	}
	if reg.refunds, err = NewRefundRepository(provider); err != nil {
		return nil, err
	}
	if reg.shipments, err = NewShipmentRepository(provider); err != nil {
		return nil, err
	}
	if reg.audit, err = NewAuditTrailRepository(provider); err != nil {
		return nil, err
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, err
	}
	if reg.catalog, err = NewCatalogRepository(provider); err != nil {
		return nil, err
	}

	reg.health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return reg, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes fn inside a Firestore transaction. A nested call joins the
// ambient transaction so composed service operations commit as one unit.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("firestore registry: transaction function is nil")
	}
	if _, ok := pfirestore.TxFromContext(ctx); ok {
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.WithTx(ctx, tx))
	}, pfirestore.WithTxAttempts(r.txAttempts))
}

func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) Inventory() repositories.InventoryRepository       { return r.inventory }
func (r *Registry) Cancellations() repositories.CancellationRepository { return r.cancellations }
func (r *Registry) Refunds() repositories.RefundRepository             { return r.refunds }
func (r *Registry) Shipments() repositories.ShipmentRepository         { return r.shipments }
func (r *Registry) AuditTrail() repositories.AuditTrailRepository      { return r.audit }
func (r *Registry) Counters() repositories.CounterRepository           { return r.counters }
func (r *Registry) Catalog() repositories.CatalogRepository            { return r.catalog }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }
