package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/orderlane/api/internal/domain"
	pfirestore "github.com/orderlane/api/internal/platform/firestore"
	"github.com/orderlane/api/internal/repositories"
)

// ShipmentRepository persists shipment tracking records.
type ShipmentRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[shipmentDocument]
}

var _ repositories.ShipmentRepository = (*ShipmentRepository)(nil)

// NewShipmentRepository constructs the Firestore backed shipment repository.
func NewShipmentRepository(provider *pfirestore.Provider) (*ShipmentRepository, error) {
	if provider == nil {
		return nil, errors.New("shipment repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[shipmentDocument](provider, shipmentsCollection, nil, nil)
	return &ShipmentRepository{provider: provider, base: base}, nil
}

type shipmentDocument struct {
	OrderID        string     `firestore:"orderId"`
	ShipmentNumber string     `firestore:"shipmentNumber"`
	Carrier        string     `firestore:"carrier"`
	TrackingNumber *string    `firestore:"trackingNumber"`
	Status         string     `firestore:"status"`
	DispatchedAt   *time.Time `firestore:"dispatchedAt"`
	DeliveredAt    *time.Time `firestore:"deliveredAt"`
	Remark         string     `firestore:"remark"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

func newShipmentDocument(shipment domain.Shipment) shipmentDocument {
	return shipmentDocument{
		OrderID:        shipment.OrderID,
		ShipmentNumber: shipment.ShipmentNumber,
		Carrier:        shipment.Carrier,
		TrackingNumber: shipment.TrackingNumber,
		Status:         string(shipment.Status),
		DispatchedAt:   shipment.DispatchedAt,
		DeliveredAt:    shipment.DeliveredAt,
		Remark:         shipment.Remark,
		CreatedAt:      shipment.CreatedAt,
		UpdatedAt:      shipment.UpdatedAt,
	}
}

func (d shipmentDocument) toDomain(id string) domain.Shipment {
	return domain.Shipment{
		ID:             id,
		OrderID:        d.OrderID,
		ShipmentNumber: d.ShipmentNumber,
		Carrier:        d.Carrier,
		TrackingNumber: d.TrackingNumber,
		Status:         domain.ShipmentStatus(d.Status),
		DispatchedAt:   d.DispatchedAt,
		DeliveredAt:    d.DeliveredAt,
		Remark:         d.Remark,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// Insert persists a new shipment.
func (r *ShipmentRepository) Insert(ctx context.Context, shipment domain.Shipment) error {
	ref, err := r.base.DocumentRef(ctx, shipment.ID)
	if err != nil {
		return err
	}
	if err := txCreate(ctx, ref, newShipmentDocument(shipment)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return conflictError("shipment "+shipment.ID+" already exists", err)
		}
		return pfirestore.WrapError("shipments.insert", err)
	}
	return nil
}

// Update replaces the stored shipment state.
func (r *ShipmentRepository) Update(ctx context.Context, shipment domain.Shipment) error {
	ref, err := r.base.DocumentRef(ctx, shipment.ID)
	if err != nil {
		return err
	}
	if _, err := txGet(ctx, ref); err != nil {
		if status.Code(err) == codes.NotFound {
			return notFoundError("shipment", shipment.ID)
		}
		return pfirestore.WrapError("shipments.update", err)
	}
	if err := txSet(ctx, ref, newShipmentDocument(shipment)); err != nil {
		return pfirestore.WrapError("shipments.update", err)
	}
	return nil
}

// FindByID loads one shipment.
func (r *ShipmentRepository) FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error) {
	ref, err := r.base.DocumentRef(ctx, shipmentID)
	if err != nil {
		return domain.Shipment{}, err
	}
	snap, err := txGet(ctx, ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.Shipment{}, notFoundError("shipment", shipmentID)
		}
		return domain.Shipment{}, pfirestore.WrapError("shipments.get", err)
	}
	var doc shipmentDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Shipment{}, pfirestore.WrapError("shipments.get", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// ListByOrder returns the order's shipments oldest first. The shipment
// service inspects siblings inside its transaction to detect full delivery,
// so the query joins the ambient transaction when one is active.
func (r *ShipmentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error) {
	coll, err := collectionRef(ctx, r.provider, shipmentsCollection)
	if err != nil {
		return nil, err
	}
	query := coll.
		Where("orderId", "==", strings.TrimSpace(orderID)).
		OrderBy("createdAt", firestore.Asc)
	snaps, err := collectSnapshots("shipments.list", txDocuments(ctx, query))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Shipment, 0, len(snaps))
	for _, snap := range snaps {
		var doc shipmentDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("shipments.list", err)
		}
		out = append(out, doc.toDomain(snap.Ref.ID))
	}
	return out, nil
}
