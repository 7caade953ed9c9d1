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

// InventoryRepository stores per-SKU stock counters and the append-only
// movement log. All counter arithmetic happens in the service layer; this
// repository only reads and writes rows through the ambient transaction.
type InventoryRepository struct {
	provider  *pfirestore.Provider
	stocks    *pfirestore.BaseRepository[stockDocument]
	movements *pfirestore.BaseRepository[movementDocument]
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)

// NewInventoryRepository constructs the Firestore backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	stocks := pfirestore.NewBaseRepository[stockDocument](provider, inventoryCollection, nil, nil)
	movements := pfirestore.NewBaseRepository[movementDocument](provider, movementsCollection, nil, nil)
	return &InventoryRepository{provider: provider, stocks: stocks, movements: movements}, nil
}

// stockDocument is keyed by SKU. LowStock mirrors the threshold comparison so
// listings can filter server side; Firestore cannot compare two fields.
type stockDocument struct {
	ProductRef        string    `firestore:"productRef"`
	Available         int       `firestore:"available"`
	Reserved          int       `firestore:"reserved"`
	Sold              int       `firestore:"sold"`
	LowStockThreshold *int      `firestore:"lowStockThreshold"`
	LowStock          bool      `firestore:"lowStock"`
	Status            string    `firestore:"status"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

func newStockDocument(record domain.InventoryRecord) stockDocument {
	return stockDocument{
		ProductRef:        record.ProductRef,
		Available:         record.Available,
		Reserved:          record.Reserved,
		Sold:              record.Sold,
		LowStockThreshold: record.LowStockThreshold,
		LowStock:          record.LowStock(),
		Status:            record.Status,
		UpdatedAt:         record.UpdatedAt,
	}
}

func (d stockDocument) toDomain(sku string) domain.InventoryRecord {
	return domain.InventoryRecord{
		SKU:               sku,
		ProductRef:        d.ProductRef,
		Available:         d.Available,
		Reserved:          d.Reserved,
		Sold:              d.Sold,
		LowStockThreshold: d.LowStockThreshold,
		Status:            d.Status,
		UpdatedAt:         d.UpdatedAt,
	}
}

type movementDocument struct {
	SKU             string    `firestore:"sku"`
	ChangeType      string    `firestore:"changeType"`
	Delta           int       `firestore:"delta"`
	AvailableBefore int       `firestore:"availableBefore"`
	AvailableAfter  int       `firestore:"availableAfter"`
	ReservedBefore  int       `firestore:"reservedBefore"`
	ReservedAfter   int       `firestore:"reservedAfter"`
	ReferenceType   string    `firestore:"referenceType"`
	ReferenceID     string    `firestore:"referenceId"`
	Note            string    `firestore:"note"`
	ActorType       string    `firestore:"actorType"`
	ActorID         string    `firestore:"actorId"`
	CreatedAt       time.Time `firestore:"createdAt"`
}

func newMovementDocument(movement domain.InventoryMovement) movementDocument {
	return movementDocument{
		SKU:             movement.SKU,
		ChangeType:      string(movement.ChangeType),
		Delta:           movement.Delta,
		AvailableBefore: movement.AvailableBefore,
		AvailableAfter:  movement.AvailableAfter,
		ReservedBefore:  movement.ReservedBefore,
		ReservedAfter:   movement.ReservedAfter,
		ReferenceType:   movement.ReferenceType,
		ReferenceID:     movement.ReferenceID,
		Note:            movement.Note,
		ActorType:       string(movement.Actor.Type),
		ActorID:         movement.Actor.ID,
		CreatedAt:       movement.CreatedAt,
	}
}

func (d movementDocument) toDomain(id string) domain.InventoryMovement {
	return domain.InventoryMovement{
		ID:              id,
		SKU:             d.SKU,
		ChangeType:      domain.InventoryChangeType(d.ChangeType),
		Delta:           d.Delta,
		AvailableBefore: d.AvailableBefore,
		AvailableAfter:  d.AvailableAfter,
		ReservedBefore:  d.ReservedBefore,
		ReservedAfter:   d.ReservedAfter,
		ReferenceType:   d.ReferenceType,
		ReferenceID:     d.ReferenceID,
		Note:            d.Note,
		Actor:           domain.Actor{Type: domain.ActorType(d.ActorType), ID: d.ActorID},
		CreatedAt:       d.CreatedAt,
	}
}

// Get loads the stock record for one SKU.
func (r *InventoryRepository) Get(ctx context.Context, sku string) (domain.InventoryRecord, error) {
	ref, err := r.stocks.DocumentRef(ctx, strings.TrimSpace(sku))
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	snap, err := txGet(ctx, ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.InventoryRecord{}, notFoundError("inventory record", sku)
		}
		return domain.InventoryRecord{}, pfirestore.WrapError("inventory.get", err)
	}
	var doc stockDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.InventoryRecord{}, pfirestore.WrapError("inventory.get", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// Save upserts the stock record under its SKU.
func (r *InventoryRepository) Save(ctx context.Context, record domain.InventoryRecord) error {
	ref, err := r.stocks.DocumentRef(ctx, strings.TrimSpace(record.SKU))
	if err != nil {
		return err
	}
	if err := txSet(ctx, ref, newStockDocument(record)); err != nil {
		return pfirestore.WrapError("inventory.save", err)
	}
	return nil
}

// AppendMovement writes one immutable entry to the movement log.
func (r *InventoryRepository) AppendMovement(ctx context.Context, movement domain.InventoryMovement) error {
	ref, err := r.movements.DocumentRef(ctx, movement.ID)
	if err != nil {
		return err
	}
	if err := txCreate(ctx, ref, newMovementDocument(movement)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return conflictError("movement "+movement.ID+" already exists", err)
		}
		return pfirestore.WrapError("inventory.append_movement", err)
	}
	return nil
}

// ListMovements returns one page of the movement log newest first.
func (r *InventoryRepository) ListMovements(ctx context.Context, filter repositories.MovementFilter) (domain.CursorPage[domain.InventoryMovement], error) {
	coll, err := collectionRef(ctx, r.provider, movementsCollection)
	if err != nil {
		return domain.CursorPage[domain.InventoryMovement]{}, err
	}

	query := coll.Query
	if sku := strings.TrimSpace(filter.SKU); sku != "" {
		query = query.Where("sku", "==", sku)
	}
	if filter.ChangeType != "" {
		query = query.Where("changeType", "==", string(filter.ChangeType))
	}
	if refType := strings.TrimSpace(filter.ReferenceType); refType != "" {
		query = query.Where("referenceType", "==", refType)
	}
	if refID := strings.TrimSpace(filter.ReferenceID); refID != "" {
		query = query.Where("referenceId", "==", refID)
	}

	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)

	cursor, err := decodeCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.InventoryMovement]{}, err
	}
	if len(cursor.StartAfter) > 0 {
		query = query.StartAfter(cursor.StartAfter...)
	}

	pageSize := normalizePageSize(filter.Pagination.PageSize)
	snaps, err := collectSnapshots("inventory.list_movements", txDocuments(ctx, query.Limit(pageSize+1)))
	if err != nil {
		return domain.CursorPage[domain.InventoryMovement]{}, err
	}

	page := domain.CursorPage[domain.InventoryMovement]{}
	hasMore := len(snaps) > pageSize
	if hasMore {
		snaps = snaps[:pageSize]
	}
	for _, snap := range snaps {
		var doc movementDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.InventoryMovement]{}, pfirestore.WrapError("inventory.list_movements", err)
		}
		page.Items = append(page.Items, doc.toDomain(snap.Ref.ID))
	}
	if hasMore && len(snaps) > 0 {
		last := snaps[len(snaps)-1]
		var doc movementDocument
		if err := last.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.InventoryMovement]{}, pfirestore.WrapError("inventory.list_movements", err)
		}
		token, err := encodeCursor(doc.CreatedAt, last.Ref.ID)
		if err != nil {
			return domain.CursorPage[domain.InventoryMovement]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// ListLowStock returns stock records sitting at or below their threshold.
func (r *InventoryRepository) ListLowStock(ctx context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.InventoryRecord], error) {
	coll, err := collectionRef(ctx, r.provider, inventoryCollection)
	if err != nil {
		return domain.CursorPage[domain.InventoryRecord]{}, err
	}

	q := coll.Where("lowStock", "==", true).
		OrderBy(firestore.DocumentID, firestore.Asc)

	cursor, err := decodeCursor(query.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.InventoryRecord]{}, err
	}
	if len(cursor.StartAfter) > 0 {
		q = q.StartAfter(cursor.StartAfter...)
	}

	pageSize := normalizePageSize(query.Pagination.PageSize)
	snaps, err := collectSnapshots("inventory.list_low_stock", txDocuments(ctx, q.Limit(pageSize+1)))
	if err != nil {
		return domain.CursorPage[domain.InventoryRecord]{}, err
	}

	page := domain.CursorPage[domain.InventoryRecord]{}
	hasMore := len(snaps) > pageSize
	if hasMore {
		snaps = snaps[:pageSize]
	}
	for _, snap := range snaps {
		var doc stockDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.InventoryRecord]{}, pfirestore.WrapError("inventory.list_low_stock", err)
		}
		page.Items = append(page.Items, doc.toDomain(snap.Ref.ID))
	}
	if hasMore && len(snaps) > 0 {
		token, err := encodeCursor(snaps[len(snaps)-1].Ref.ID)
		if err != nil {
			return domain.CursorPage[domain.InventoryRecord]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}
