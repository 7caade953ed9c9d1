package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/repositories"
)

type stubOrderRepo struct {
	insertFn       func(context.Context, domain.Order) error
	updateFn       func(context.Context, domain.Order) error
	findFn         func(context.Context, string) (domain.Order, error)
	findByNumberFn func(context.Context, string) (domain.Order, error)
	listFn         func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if s.findByNumberFn != nil {
		return s.findByNumberFn(ctx, orderNumber)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

type stubInventoryRepo struct {
	getFn          func(context.Context, string) (domain.InventoryRecord, error)
	saveFn         func(context.Context, domain.InventoryRecord) error
	appendFn       func(context.Context, domain.InventoryMovement) error
	listMoveFn     func(context.Context, repositories.MovementFilter) (domain.CursorPage[domain.InventoryMovement], error)
	listLowStockFn func(context.Context, repositories.LowStockQuery) (domain.CursorPage[domain.InventoryRecord], error)
}

func (s *stubInventoryRepo) Get(ctx context.Context, sku string) (domain.InventoryRecord, error) {
	if s.getFn != nil {
		return s.getFn(ctx, sku)
	}
	return domain.InventoryRecord{}, errors.New("not implemented")
}

func (s *stubInventoryRepo) Save(ctx context.Context, record domain.InventoryRecord) error {
	if s.saveFn != nil {
		return s.saveFn(ctx, record)
	}
	return nil
}

func (s *stubInventoryRepo) AppendMovement(ctx context.Context, movement domain.InventoryMovement) error {
	if s.appendFn != nil {
		return s.appendFn(ctx, movement)
	}
	return nil
}

func (s *stubInventoryRepo) ListMovements(ctx context.Context, filter repositories.MovementFilter) (domain.CursorPage[domain.InventoryMovement], error) {
	if s.listMoveFn != nil {
		return s.listMoveFn(ctx, filter)
	}
	return domain.CursorPage[domain.InventoryMovement]{}, nil
}

func (s *stubInventoryRepo) ListLowStock(ctx context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.InventoryRecord], error) {
	if s.listLowStockFn != nil {
		return s.listLowStockFn(ctx, query)
	}
	return domain.CursorPage[domain.InventoryRecord]{}, nil
}

type stubCancellationRepo struct {
	insertFn   func(context.Context, domain.Cancellation) error
	updateFn   func(context.Context, domain.Cancellation) error
	findFn     func(context.Context, string) (domain.Cancellation, error)
	findOpenFn func(context.Context, string) (domain.Cancellation, error)
	listFn     func(context.Context, string) ([]domain.Cancellation, error)
}

func (s *stubCancellationRepo) Insert(ctx context.Context, c domain.Cancellation) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, c)
	}
	return nil
}

func (s *stubCancellationRepo) Update(ctx context.Context, c domain.Cancellation) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, c)
	}
	return nil
}

func (s *stubCancellationRepo) FindByID(ctx context.Context, id string) (domain.Cancellation, error) {
	if s.findFn != nil {
		return s.findFn(ctx, id)
	}
	return domain.Cancellation{}, errors.New("not implemented")
}

func (s *stubCancellationRepo) FindOpenByOrder(ctx context.Context, orderID string) (domain.Cancellation, error) {
	if s.findOpenFn != nil {
		return s.findOpenFn(ctx, orderID)
	}
	return domain.Cancellation{}, notFoundRepoError{}
}

func (s *stubCancellationRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Cancellation, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID)
	}
	return nil, nil
}

type stubRefundRepo struct {
	insertFn func(context.Context, domain.Refund) error
	updateFn func(context.Context, domain.Refund) error
	findFn   func(context.Context, string) (domain.Refund, error)
	listFn   func(context.Context, string) ([]domain.Refund, error)
}

func (s *stubRefundRepo) Insert(ctx context.Context, r domain.Refund) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, r)
	}
	return nil
}

func (s *stubRefundRepo) Update(ctx context.Context, r domain.Refund) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, r)
	}
	return nil
}

func (s *stubRefundRepo) FindByID(ctx context.Context, id string) (domain.Refund, error) {
	if s.findFn != nil {
		return s.findFn(ctx, id)
	}
	return domain.Refund{}, errors.New("not implemented")
}

func (s *stubRefundRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID)
	}
	return nil, nil
}

type stubShipmentRepo struct {
	insertFn func(context.Context, domain.Shipment) error
	updateFn func(context.Context, domain.Shipment) error
	findFn   func(context.Context, string) (domain.Shipment, error)
	listFn   func(context.Context, string) ([]domain.Shipment, error)
}

func (s *stubShipmentRepo) Insert(ctx context.Context, sh domain.Shipment) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, sh)
	}
	return nil
}

func (s *stubShipmentRepo) Update(ctx context.Context, sh domain.Shipment) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, sh)
	}
	return nil
}

func (s *stubShipmentRepo) FindByID(ctx context.Context, id string) (domain.Shipment, error) {
	if s.findFn != nil {
		return s.findFn(ctx, id)
	}
	return domain.Shipment{}, errors.New("not implemented")
}

func (s *stubShipmentRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID)
	}
	return nil, nil
}

type stubAuditRepo struct {
	appendFn func(context.Context, domain.AuditEntry) error
	listFn   func(context.Context, repositories.AuditFilter) (domain.CursorPage[domain.AuditEntry], error)
}

func (s *stubAuditRepo) Append(ctx context.Context, entry domain.AuditEntry) error {
	if s.appendFn != nil {
		return s.appendFn(ctx, entry)
	}
	return nil
}

func (s *stubAuditRepo) ListByOrder(ctx context.Context, filter repositories.AuditFilter) (domain.CursorPage[domain.AuditEntry], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.AuditEntry]{}, nil
}

type stubCounterRepo struct {
	nextFn func(context.Context, string, int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

type stubCatalogRepo struct {
	getFn func(context.Context, string) (domain.CatalogSKU, error)
}

func (s *stubCatalogRepo) GetSKU(ctx context.Context, ref string) (domain.CatalogSKU, error) {
	if s.getFn != nil {
		return s.getFn(ctx, ref)
	}
	return domain.CatalogSKU{Ref: ref, Code: ref, Name: "SKU " + ref, Active: true}, nil
}

type stubInventoryService struct {
	reserveFn func(context.Context, InventoryChangeCommand) (domain.InventoryRecord, error)
	releaseFn func(context.Context, InventoryChangeCommand) (domain.InventoryRecord, error)
	commitFn  func(context.Context, InventoryChangeCommand) (domain.InventoryRecord, error)
}

func (s *stubInventoryService) Reserve(ctx context.Context, cmd InventoryChangeCommand) (domain.InventoryRecord, error) {
	if s.reserveFn != nil {
		return s.reserveFn(ctx, cmd)
	}
	return domain.InventoryRecord{SKU: cmd.SKU}, nil
}

func (s *stubInventoryService) Release(ctx context.Context, cmd InventoryChangeCommand) (domain.InventoryRecord, error) {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, cmd)
	}
	return domain.InventoryRecord{SKU: cmd.SKU}, nil
}

func (s *stubInventoryService) Commit(ctx context.Context, cmd InventoryChangeCommand) (domain.InventoryRecord, error) {
	if s.commitFn != nil {
		return s.commitFn(ctx, cmd)
	}
	return domain.InventoryRecord{SKU: cmd.SKU}, nil
}

func (s *stubInventoryService) Adjust(context.Context, InventoryAdjustCommand) (domain.InventoryRecord, error) {
	return domain.InventoryRecord{}, errors.New("not implemented")
}

func (s *stubInventoryService) GetStock(context.Context, string) (domain.InventoryRecord, error) {
	return domain.InventoryRecord{}, errors.New("not implemented")
}

func (s *stubInventoryService) ListLowStock(context.Context, domain.Pagination) (domain.CursorPage[domain.InventoryRecord], error) {
	return domain.CursorPage[domain.InventoryRecord]{}, errors.New("not implemented")
}

func (s *stubInventoryService) ListMovements(context.Context, InventoryMovementFilter) (domain.CursorPage[domain.InventoryMovement], error) {
	return domain.CursorPage[domain.InventoryMovement]{}, errors.New("not implemented")
}

func (s *stubInventoryService) RepairReleases(context.Context, RepairReleasesCommand) (RepairReleasesResult, error) {
	return RepairReleasesResult{}, errors.New("not implemented")
}

type captureAuditService struct {
	records []AuditRecord
	failFn  func(AuditRecord) error
}

func (c *captureAuditService) Record(_ context.Context, record AuditRecord) error {
	if c.failFn != nil {
		if err := c.failFn(record); err != nil {
			return err
		}
	}
	c.records = append(c.records, record)
	return nil
}

func (c *captureAuditService) List(context.Context, domain.Actor, AuditListFilter) (domain.CursorPage[domain.AuditEntry], error) {
	return domain.CursorPage[domain.AuditEntry]{}, errors.New("not implemented")
}

type captureOrderEvents struct {
	events []OrderEvent
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return nil
}

type captureInventoryEvents struct {
	events []InventoryEvent
}

func (c *captureInventoryEvents) PublishInventoryEvent(_ context.Context, event InventoryEvent) error {
	c.events = append(c.events, event)
	return nil
}

type stubUnitOfWork struct {
	runFn func(context.Context, func(context.Context) error) error
}

func (s *stubUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.runFn != nil {
		return s.runFn(ctx, fn)
	}
	return fn(ctx)
}

type notFoundRepoError struct{}

func (notFoundRepoError) Error() string       { return "not found" }
func (notFoundRepoError) IsNotFound() bool    { return true }
func (notFoundRepoError) IsConflict() bool    { return false }
func (notFoundRepoError) IsUnavailable() bool { return false }

type conflictRepoError struct{}

func (conflictRepoError) Error() string       { return "conflict" }
func (conflictRepoError) IsNotFound() bool    { return false }
func (conflictRepoError) IsConflict() bool    { return true }
func (conflictRepoError) IsUnavailable() bool { return false }

func sequentialIDs(prefix string) func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("%s%04d", prefix, n)
	}
}
