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
	inventoryEventChanged  = "inventory.stock.changed"
	inventoryEventLowStock = "inventory.low_stock"

	movementIDPrefix = "mov_"

	movementReferenceOrder      = "order"
	movementReferenceAdjustment = "adjustment"
	movementReferenceRepair     = "repair"
)

// InventoryServiceDeps bundles collaborators required to construct the stock ledger.
type InventoryServiceDeps struct {
	Inventory   repositories.InventoryRepository
	Orders      repositories.OrderRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      InventoryEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	inventory  repositories.InventoryRepository
	orders     repositories.OrderRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     InventoryEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
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

	return &inventoryService{
		inventory:  deps.Inventory,
		orders:     deps.Orders,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *inventoryService) Reserve(ctx context.Context, cmd InventoryChangeCommand) (InventoryRecord, error) {
	record, err := s.loadRecord(ctx, cmd.SKU)
	if err != nil {
		return InventoryRecord{}, err
	}
	if cmd.Quantity <= 0 {
		return InventoryRecord{}, fmt.Errorf("%w: reserve quantity must be positive", ErrInvalidInput)
	}
	if record.Available < cmd.Quantity {
		return InventoryRecord{}, fmt.Errorf("%w: sku %s has %d available, %d requested",
			ErrInsufficientStock, record.SKU, record.Available, cmd.Quantity)
	}

	before := record
	record.Available -= cmd.Quantity
	record.Reserved += cmd.Quantity
	return s.persistChange(ctx, before, record, domain.InventoryChangeReserve, -cmd.Quantity, cmd)
}

func (s *inventoryService) Release(ctx context.Context, cmd InventoryChangeCommand) (InventoryRecord, error) {
	record, err := s.loadRecord(ctx, cmd.SKU)
	if err != nil {
		return InventoryRecord{}, err
	}
	if cmd.Quantity <= 0 {
		return InventoryRecord{}, fmt.Errorf("%w: release quantity must be positive", ErrInvalidInput)
	}

	before := record
	record.Available += cmd.Quantity
	record.Reserved -= cmd.Quantity
	return s.persistChange(ctx, before, record, domain.InventoryChangeRelease, cmd.Quantity, cmd)
}

func (s *inventoryService) Commit(ctx context.Context, cmd InventoryChangeCommand) (InventoryRecord, error) {
	record, err := s.loadRecord(ctx, cmd.SKU)
	if err != nil {
		return InventoryRecord{}, err
	}
	if cmd.Quantity <= 0 {
		return InventoryRecord{}, fmt.Errorf("%w: commit quantity must be positive", ErrInvalidInput)
	}

	before := record
	record.Reserved -= cmd.Quantity
	record.Sold += cmd.Quantity
	return s.persistChange(ctx, before, record, domain.InventoryChangeCommit, 0, cmd)
}

func (s *inventoryService) Adjust(ctx context.Context, cmd InventoryAdjustCommand) (InventoryRecord, error) {
	if cmd.Delta == 0 {
		return InventoryRecord{}, fmt.Errorf("%w: adjustment delta must be non-zero", ErrInvalidInput)
	}
	if !cmd.Actor.Valid() || cmd.Actor.Type != domain.ActorAdmin {
		return InventoryRecord{}, fmt.Errorf("%w: inventory adjustments are admin-only", ErrForbidden)
	}

	var record InventoryRecord
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.loadRecord(txCtx, cmd.SKU)
		if err != nil {
			return err
		}
		if loaded.Available+cmd.Delta < 0 {
			return fmt.Errorf("%w: adjustment would leave sku %s with %d available",
				ErrConflict, loaded.SKU, loaded.Available+cmd.Delta)
		}
		before := loaded
		loaded.Available += cmd.Delta
		record, err = s.persistChange(txCtx, before, loaded, domain.InventoryChangeAdjust, cmd.Delta, InventoryChangeCommand{
			Actor:         cmd.Actor,
			SKU:           cmd.SKU,
			Quantity:      cmd.Delta,
			ReferenceType: movementReferenceAdjustment,
			Note:          cmd.Note,
		})
		return err
	})
	if err != nil {
		return InventoryRecord{}, err
	}

	s.publishEvent(ctx, InventoryEvent{
		Type:       inventoryEventChanged,
		SKU:        record.SKU,
		ChangeType: string(domain.InventoryChangeAdjust),
		Delta:      cmd.Delta,
		Available:  record.Available,
		LowStock:   record.LowStock(),
		OccurredAt: s.clock(),
	})
	if record.LowStock() {
		s.publishEvent(ctx, InventoryEvent{
			Type:       inventoryEventLowStock,
			SKU:        record.SKU,
			Available:  record.Available,
			LowStock:   true,
			OccurredAt: s.clock(),
		})
	}

	return record, nil
}

func (s *inventoryService) GetStock(ctx context.Context, sku string) (InventoryRecord, error) {
	return s.loadRecord(ctx, sku)
}

func (s *inventoryService) ListLowStock(ctx context.Context, pager Pagination) (domain.CursorPage[InventoryRecord], error) {
	page, err := s.inventory.ListLowStock(ctx, repositories.LowStockQuery{Pagination: pager})
	if err != nil {
		return domain.CursorPage[InventoryRecord]{}, mapRepositoryError(err, ErrSKUNotFound)
	}
	return page, nil
}

func (s *inventoryService) ListMovements(ctx context.Context, filter InventoryMovementFilter) (domain.CursorPage[InventoryMovement], error) {
	page, err := s.inventory.ListMovements(ctx, repositories.MovementFilter{
		SKU:           strings.TrimSpace(filter.SKU),
		ChangeType:    filter.ChangeType,
		ReferenceType: filter.ReferenceType,
		ReferenceID:   filter.ReferenceID,
		Pagination:    filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[InventoryMovement]{}, mapRepositoryError(err, ErrSKUNotFound)
	}
	return page, nil
}

// RepairReleases reconciles stock for one cancelled or refunded order. The
// releasable quantity is re-derived from the order's active items minus the
// releases already present in the movement log, so running it twice is a no-op.
func (s *inventoryService) RepairReleases(ctx context.Context, cmd RepairReleasesCommand) (RepairReleasesResult, error) {
	if !cmd.Actor.Valid() || cmd.Actor.Type != domain.ActorAdmin {
		return RepairReleasesResult{}, fmt.Errorf("%w: inventory repair is admin-only", ErrForbidden)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return RepairReleasesResult{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if s.orders == nil {
		return RepairReleasesResult{}, errors.New("inventory service: order repository not configured")
	}

	result := RepairReleasesResult{OrderID: orderID, Released: map[string]int{}}

	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		if order.Status != domain.OrderStatusCancelled && order.Status != domain.OrderStatusRefunded {
			return fmt.Errorf("%w: order %s is %s, repair applies to cancelled or refunded orders",
				ErrInvalidTransition, orderID, order.Status)
		}

		for _, item := range order.ActiveItems() {
			released, err := s.releasedQuantity(txCtx, item.SKU, orderID)
			if err != nil {
				return err
			}
			missing := item.Quantity - released
			if missing <= 0 {
				continue
			}
			if _, err := s.Release(txCtx, InventoryChangeCommand{
				Actor:         cmd.Actor,
				SKU:           item.SKU,
				Quantity:      missing,
				ReferenceType: movementReferenceRepair,
				ReferenceID:   orderID,
				Note:          "reconciled release for cancelled order",
			}); err != nil {
				return err
			}
			result.Released[item.SKU] = missing
		}
		return nil
	})
	if err != nil {
		return RepairReleasesResult{}, err
	}

	if len(result.Released) > 0 {
		s.logger(ctx, "inventory.repair.released", map[string]any{
			"order": orderID,
			"skus":  len(result.Released),
		})
	}
	return result, nil
}

// releasedQuantity sums release movements recorded for the SKU against the
// given order, including repair releases.
func (s *inventoryService) releasedQuantity(ctx context.Context, sku, orderID string) (int, error) {
	total := 0
	token := ""
	for {
		page, err := s.inventory.ListMovements(ctx, repositories.MovementFilter{
			SKU:         sku,
			ChangeType:  domain.InventoryChangeRelease,
			ReferenceID: orderID,
			Pagination:  domain.Pagination{PageSize: 100, PageToken: token},
		})
		if err != nil {
			return 0, mapRepositoryError(err, ErrSKUNotFound)
		}
		for _, movement := range page.Items {
			total += movement.Delta
		}
		if page.NextPageToken == "" {
			return total, nil
		}
		token = page.NextPageToken
	}
}

func (s *inventoryService) loadRecord(ctx context.Context, sku string) (InventoryRecord, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return InventoryRecord{}, fmt.Errorf("%w: sku is required", ErrInvalidInput)
	}
	record, err := s.inventory.Get(ctx, sku)
	if err != nil {
		return InventoryRecord{}, mapRepositoryError(err, ErrSKUNotFound)
	}
	return record, nil
}

// persistChange saves the mutated counters and appends the movement row inside
// the ambient transaction. The non-negativity invariant is checked here, after
// every mutation: a violation means a lost update and aborts the transaction.
func (s *inventoryService) persistChange(ctx context.Context, before, record InventoryRecord, change domain.InventoryChangeType, availableDelta int, cmd InventoryChangeCommand) (InventoryRecord, error) {
	if record.Available < 0 {
		s.logger(ctx, "inventory.consistency.violation", map[string]any{
			"sku":       record.SKU,
			"available": record.Available,
			"change":    string(change),
		})
		return InventoryRecord{}, fmt.Errorf("%w: sku %s available would become %d",
			ErrInternalConsistency, record.SKU, record.Available)
	}
	if record.Reserved < 0 {
		s.logger(ctx, "inventory.consistency.violation", map[string]any{
			"sku":      record.SKU,
			"reserved": record.Reserved,
			"change":   string(change),
		})
		return InventoryRecord{}, fmt.Errorf("%w: sku %s reserved would become %d",
			ErrInternalConsistency, record.SKU, record.Reserved)
	}

	now := s.clock()
	record.UpdatedAt = now
	if err := s.inventory.Save(ctx, record); err != nil {
		return InventoryRecord{}, mapRepositoryError(err, ErrSKUNotFound)
	}

	movement := domain.InventoryMovement{
		ID:              movementIDPrefix + s.newID(),
		SKU:             record.SKU,
		ChangeType:      change,
		Delta:           availableDelta,
		AvailableBefore: before.Available,
		AvailableAfter:  record.Available,
		ReservedBefore:  before.Reserved,
		ReservedAfter:   record.Reserved,
		ReferenceType:   cmd.ReferenceType,
		ReferenceID:     cmd.ReferenceID,
		Note:            sanitizeText(cmd.Note),
		Actor:           cmd.Actor,
		CreatedAt:       now,
	}
	if err := s.inventory.AppendMovement(ctx, movement); err != nil {
		return InventoryRecord{}, mapRepositoryError(err, ErrSKUNotFound)
	}

	return record, nil
}

func (s *inventoryService) publishEvent(ctx context.Context, event InventoryEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishInventoryEvent(ctx, event); err != nil {
		s.logger(ctx, "inventory.event.publish.failed", map[string]any{
			"type":  event.Type,
			"sku":   event.SKU,
			"error": err.Error(),
		})
	}
}
