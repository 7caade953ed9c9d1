package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/repositories"
)

const defaultPageSize = 50

type orderRepository struct {
	reg *Registry
}

func (r *orderRepository) Insert(ctx context.Context, order domain.Order) error {
	defer r.reg.lock(ctx)()
	if _, exists := r.reg.state.orders[order.ID]; exists {
		return repositories.NewError(repositories.ErrorConflict, fmt.Sprintf("order %s already exists", order.ID), nil)
	}
	r.reg.state.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *orderRepository) Update(ctx context.Context, order domain.Order) error {
	defer r.reg.lock(ctx)()
	if _, exists := r.reg.state.orders[order.ID]; !exists {
		return repositories.NewError(repositories.ErrorNotFound, fmt.Sprintf("order %s", order.ID), nil)
	}
	r.reg.state.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	defer r.reg.lock(ctx)()
	order, ok := r.reg.state.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewError(repositories.ErrorNotFound, fmt.Sprintf("order %s", orderID), nil)
	}
	return cloneOrder(order), nil
}

func (r *orderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	defer r.reg.lock(ctx)()
	for _, order := range r.reg.state.orders {
		if order.OrderNumber == orderNumber {
			return cloneOrder(order), nil
		}
	}
	return domain.Order{}, repositories.NewError(repositories.ErrorNotFound, fmt.Sprintf("order number %s", orderNumber), nil)
}

func (r *orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	defer r.reg.lock(ctx)()

	var matched []domain.Order
	for _, order := range r.reg.state.orders {
		if !filter.IncludeDeleted && order.DeletedAt != nil {
			continue
		}
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		if filter.SellerID != "" && (order.SellerID == nil || *order.SellerID != filter.SellerID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, order.Status) {
			continue
		}
		if filter.CreatedRange.From != nil && order.PlacedAt.Before(*filter.CreatedRange.From) {
			continue
		}
		if filter.CreatedRange.To != nil && order.PlacedAt.After(*filter.CreatedRange.To) {
			continue
		}
		matched = append(matched, cloneOrder(order))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].PlacedAt.Equal(matched[j].PlacedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].PlacedAt.After(matched[j].PlacedAt)
	})
	return paginate(matched, filter.Pagination)
}

func containsStatus(statuses []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type inventoryRepository struct {
	reg *Registry
}

func (r *inventoryRepository) Get(ctx context.Context, sku string) (domain.InventoryRecord, error) {
	defer r.reg.lock(ctx)()
	record, ok := r.reg.state.inventory[sku]
	if !ok {
		return domain.InventoryRecord{}, repositories.NewError(repositories.ErrorNotFound, fmt.Sprintf("sku %s", sku), nil)
	}
	return record, nil
}

func (r *inventoryRepository) Save(ctx context.Context, record domain.InventoryRecord) error {
	defer r.reg.lock(ctx)()
	r.reg.state.inventory[record.SKU] = record
	return nil
}

func (r *inventoryRepository) AppendMovement(ctx context.Context, movement domain.InventoryMovement) error {
	defer r.reg.lock(ctx)()
	r.reg.state.movements = append(r.reg.state.movements, movement)
	return nil
}

func (r *inventoryRepository) ListMovements(ctx context.Context, filter repositories.MovementFilter) (domain.CursorPage[domain.InventoryMovement], error) {
	defer r.reg.lock(ctx)()

	var matched []domain.InventoryMovement
	for _, m := range r.reg.state.movements {
		if filter.SKU != "" && m.SKU != filter.SKU {
			continue
		}
		if filter.ChangeType != "" && m.ChangeType != filter.ChangeType {
			continue
		}
		if filter.ReferenceType != "" && m.ReferenceType != filter.ReferenceType {
			continue
		}
		if filter.ReferenceID != "" && m.ReferenceID != filter.ReferenceID {
			continue
		}
		matched = append(matched, m)
	}
	return paginate(matched, filter.Pagination)
}

func (r *inventoryRepository) ListLowStock(ctx context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.InventoryRecord], error) {
	defer r.reg.lock(ctx)()

	var matched []domain.InventoryRecord
	for _, record := range r.reg.state.inventory {
		if record.LowStock() {
			matched = append(matched, record)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].SKU < matched[j].SKU })
	return paginate(matched, query.Pagination)
}

type cancellationRepository struct {
	reg *Registry
}

func (r *cancellationRepository) Insert(ctx context.Context, cancellation domain.Cancellation) error {
	defer r.reg.lock(ctx)()
	if _, exists := r.reg.state.cancellations[cancellation.ID]; exists {
		return repositories.NewError(repositories.ErrorConflict, fmt.Sprintf("cancellation %s already exists", cancellation.ID), nil)
	}
	r.reg.state.cancellations[cancellation.ID] = cancellation
	return nil
}

func (r *cancellationRepository) Update(ctx context.Context, cancellation domain.Cancellation) error {
	defer r.reg.lock(ctx)()
	if _, exists := r.reg.state.cancellations[cancellation.ID]; !exists {
		return repositories.NewError(repositories.ErrorNotFound, fmt.Sprintf("cancellation %s", cancellation.ID), nil)
	}
	r.reg.state.cancellations[cancellation.ID] = cancellation
	return nil
}

func (r *cancellationRepository) FindByID(ctx context.Context, cancellationID string) (domain.Cancellation, error) {
	defer r.reg.lock(ctx)()
	cancellation, ok := r.reg.state.cancellations[cancellationID]
	if !ok {
		return domain.Cancellation{}, repositories.NewError(repositories.ErrorNotFound, fmt.Sprintf("cancellation %s", cancellationID), nil)
	}
	return cancellation, nil
}

func (r *cancellationRepository) FindOpenByOrder(ctx context.Context, orderID string) (domain.Cancellation, error) {
	defer r.reg.lock(ctx)()
	for _, cancellation := range r.reg.state.cancellations {
		if cancellation.OrderID == orderID && cancellation.Open() {
			return cancellation, nil
		}
	}
	return domain.Cancellation{}, repositories.NewError(repositories.ErrorNotFound, fmt.Sprintf("no open cancellation for order %s", orderID), nil)
}

func (r *cancellationRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Cancellation, error) {
	defer r.reg.lock(ctx)()
	var matched []domain.Cancellation
	for _, cancellation := range r.reg.state.cancellations {
		if cancellation.OrderID == orderID {
			matched = append(matched, cancellation)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].RequestedAt.Before(matched[j].RequestedAt) })
	return matched, nil
}

type refundRepository struct {
	reg *Registry
}

func (r *refundRepository) Insert(ctx context.Context, refund domain.Refund) error {
	defer r.reg.lock(ctx)()
	if _, exists := r.reg.state.refunds[refund.ID]; exists {
		return repositories.NewError(repositories.ErrorConflict, fmt.Sprintf("refund %s already exists", refund.ID), nil)
	}
	r.reg.state.refunds[refund.ID] = refund
	return nil
}

func (r *refundRepository) Update(ctx context.Context, refund domain.Refund) error {
	defer r.reg.lock(ctx)()
	if _, exists := r.reg.state.refunds[refund.ID]; !exists {
		return repositories.NewError(repositories.ErrorNotFound, fmt.Sprintf("refund %s", refund.ID), nil)
	}
	r.reg.state.refunds[refund.ID] = refund
	return nil
}

func (r *refundRepository) FindByID(ctx context.Context, refundID string) (domain.Refund, error) {
	defer r.reg.lock(ctx)()
	refund, ok := r.reg.state.refunds[refundID]
	if !ok {
		return domain.Refund{}, repositories.NewError(repositories.ErrorNotFound, fmt.Sprintf("refund %s", refundID), nil)
	}
	return refund, nil
}

func (r *refundRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error) {
	defer r.reg.lock(ctx)()
	var matched []domain.Refund
	for _, refund := range r.reg.state.refunds {
		if refund.OrderID == orderID {
			matched = append(matched, refund)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].RequestedAt.Before(matched[j].RequestedAt) })
	return matched, nil
}

type shipmentRepository struct {
	reg *Registry
}

func (r *shipmentRepository) Insert(ctx context.Context, shipment domain.Shipment) error {
	defer r.reg.lock(ctx)()
	if _, exists := r.reg.state.shipments[shipment.ID]; exists {
		return repositories.NewError(repositories.ErrorConflict, fmt.Sprintf("shipment %s already exists", shipment.ID), nil)
	}
	r.reg.state.shipments[shipment.ID] = shipment
	return nil
}

func (r *shipmentRepository) Update(ctx context.Context, shipment domain.Shipment) error {
	defer r.reg.lock(ctx)()
	if _, exists := r.reg.state.shipments[shipment.ID]; !exists {
		return repositories.NewError(repositories.ErrorNotFound, fmt.Sprintf("shipment %s", shipment.ID), nil)
	}
	r.reg.state.shipments[shipment.ID] = shipment
	return nil
}

func (r *shipmentRepository) FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error) {
	defer r.reg.lock(ctx)()
	shipment, ok := r.reg.state.shipments[shipmentID]
	if !ok {
		return domain.Shipment{}, repositories.NewError(repositories.ErrorNotFound, fmt.Sprintf("shipment %s", shipmentID), nil)
	}
	return shipment, nil
}

func (r *shipmentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error) {
	defer r.reg.lock(ctx)()
	var matched []domain.Shipment
	for _, shipment := range r.reg.state.shipments {
		if shipment.OrderID == orderID {
			matched = append(matched, shipment)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	return matched, nil
}

type auditTrailRepository struct {
	reg *Registry
}

func (r *auditTrailRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	defer r.reg.lock(ctx)()
	r.reg.state.audit = append(r.reg.state.audit, entry)
	return nil
}

func (r *auditTrailRepository) ListByOrder(ctx context.Context, filter repositories.AuditFilter) (domain.CursorPage[domain.AuditEntry], error) {
	defer r.reg.lock(ctx)()

	var matched []domain.AuditEntry
	for _, entry := range r.reg.state.audit {
		if filter.OrderID != "" && entry.OrderID != filter.OrderID {
			continue
		}
		if filter.EventType != "" && entry.EventType != filter.EventType {
			continue
		}
		if filter.DateRange.From != nil && entry.CreatedAt.Before(*filter.DateRange.From) {
			continue
		}
		if filter.DateRange.To != nil && entry.CreatedAt.After(*filter.DateRange.To) {
			continue
		}
		matched = append(matched, entry)
	}
	return paginate(matched, filter.Pagination)
}

type counterRepository struct {
	reg *Registry
}

func (r *counterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	defer r.reg.lock(ctx)()
	if step <= 0 {
		return 0, repositories.NewError(repositories.ErrorInvalidState, "counter step must be positive", nil)
	}
	r.reg.state.counters[counterID] += step
	return r.reg.state.counters[counterID], nil
}

type catalogRepository struct {
	reg *Registry
}

func (r *catalogRepository) GetSKU(ctx context.Context, skuRef string) (domain.CatalogSKU, error) {
	defer r.reg.lock(ctx)()
	sku, ok := r.reg.state.catalog[skuRef]
	if !ok {
		return domain.CatalogSKU{}, repositories.NewError(repositories.ErrorNotFound, fmt.Sprintf("sku %s", skuRef), nil)
	}
	return sku, nil
}

// paginate slices the matched rows using a numeric offset token.
func paginate[T any](items []T, pager domain.Pagination) (domain.CursorPage[T], error) {
	size := pager.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	offset := 0
	if pager.PageToken != "" {
		parsed, err := strconv.Atoi(pager.PageToken)
		if err != nil || parsed < 0 {
			return domain.CursorPage[T]{}, repositories.NewError(repositories.ErrorInvalidState, fmt.Sprintf("invalid page token %q", pager.PageToken), err)
		}
		offset = parsed
	}
	if offset >= len(items) {
		return domain.CursorPage[T]{}, nil
	}

	end := offset + size
	next := ""
	if end < len(items) {
		next = strconv.Itoa(end)
	} else {
		end = len(items)
	}
	return domain.CursorPage[T]{Items: items[offset:end], NextPageToken: next}, nil
}
