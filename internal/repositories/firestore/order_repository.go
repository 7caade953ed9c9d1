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

// OrderRepository persists order aggregates, line items embedded.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs the Firestore backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, base: base}, nil
}

type orderDocument struct {
	OrderNumber        string              `firestore:"orderNumber"`
	CustomerID         string              `firestore:"customerId"`
	SellerID           *string             `firestore:"sellerId"`
	ShippingAddressRef *string             `firestore:"shippingAddressRef"`
	PaymentMethodRef   *string             `firestore:"paymentMethodRef"`
	Status             string              `firestore:"status"`
	BusinessStatus     string              `firestore:"businessStatus"`
	Currency           string              `firestore:"currency"`
	OrderTotal         int64               `firestore:"orderTotal"`
	PaidAmount         int64               `firestore:"paidAmount"`
	PaymentRef         *string             `firestore:"paymentRef"`
	Items              []orderItemDocument `firestore:"items"`
	PlacedAt           time.Time           `firestore:"placedAt"`
	PaidAt             *time.Time          `firestore:"paidAt"`
	FulfilledAt        *time.Time          `firestore:"fulfilledAt"`
	CreatedAt          time.Time           `firestore:"createdAt"`
	UpdatedAt          time.Time           `firestore:"updatedAt"`
	DeletedAt          *time.Time          `firestore:"deletedAt"`
	// Deleted mirrors DeletedAt so listings can filter server side.
	Deleted bool `firestore:"deleted"`
}

type orderItemDocument struct {
	ID           string     `firestore:"id"`
	SKU          string     `firestore:"sku"`
	SKUCode      string     `firestore:"skuCode"`
	ItemName     string     `firestore:"itemName"`
	Quantity     int        `firestore:"quantity"`
	UnitPrice    int64      `firestore:"unitPrice"`
	Currency     string     `firestore:"currency"`
	ItemTotal    int64      `firestore:"itemTotal"`
	RefundStatus string     `firestore:"refundStatus"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
	DeletedAt    *time.Time `firestore:"deletedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ID:           item.ID,
			SKU:          item.SKU,
			SKUCode:      item.SKUCode,
			ItemName:     item.ItemName,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			Currency:     item.Currency,
			ItemTotal:    item.ItemTotal,
			RefundStatus: string(item.RefundStatus),
			CreatedAt:    item.CreatedAt,
			UpdatedAt:    item.UpdatedAt,
			DeletedAt:    item.DeletedAt,
		})
	}
	return orderDocument{
		OrderNumber:        order.OrderNumber,
		CustomerID:         order.CustomerID,
		SellerID:           order.SellerID,
		ShippingAddressRef: order.ShippingAddressRef,
		PaymentMethodRef:   order.PaymentMethodRef,
		Status:             string(order.Status),
		BusinessStatus:     order.BusinessStatus,
		Currency:           order.Currency,
		OrderTotal:         order.OrderTotal,
		PaidAmount:         order.PaidAmount,
		PaymentRef:         order.PaymentRef,
		Items:              items,
		PlacedAt:           order.PlacedAt,
		PaidAt:             order.PaidAt,
		FulfilledAt:        order.FulfilledAt,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
		DeletedAt:          order.DeletedAt,
		Deleted:            order.DeletedAt != nil,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ID:           item.ID,
			OrderID:      id,
			SKU:          item.SKU,
			SKUCode:      item.SKUCode,
			ItemName:     item.ItemName,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			Currency:     item.Currency,
			ItemTotal:    item.ItemTotal,
			RefundStatus: domain.ItemRefundStatus(item.RefundStatus),
			CreatedAt:    item.CreatedAt,
			UpdatedAt:    item.UpdatedAt,
			DeletedAt:    item.DeletedAt,
		})
	}
	return domain.Order{
		ID:                 id,
		OrderNumber:        d.OrderNumber,
		CustomerID:         d.CustomerID,
		SellerID:           d.SellerID,
		ShippingAddressRef: d.ShippingAddressRef,
		PaymentMethodRef:   d.PaymentMethodRef,
		Status:             domain.OrderStatus(d.Status),
		BusinessStatus:     d.BusinessStatus,
		Currency:           d.Currency,
		OrderTotal:         d.OrderTotal,
		PaidAmount:         d.PaidAmount,
		PaymentRef:         d.PaymentRef,
		Items:              items,
		PlacedAt:           d.PlacedAt,
		PaidAt:             d.PaidAt,
		FulfilledAt:        d.FulfilledAt,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
		DeletedAt:          d.DeletedAt,
	}
}

// Insert persists a brand-new order aggregate.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if err := txCreate(ctx, ref, newOrderDocument(order)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return conflictError("order "+order.ID+" already exists", err)
		}
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the stored aggregate with the provided state.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := txGet(ctx, ref); err != nil {
		if status.Code(err) == codes.NotFound {
			return notFoundError("order", order.ID)
		}
		return pfirestore.WrapError("orders.update", err)
	}
	if err := txSet(ctx, ref, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID loads one order aggregate.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := txGet(ctx, ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.Order{}, notFoundError("order", orderID)
		}
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// FindByOrderNumber resolves an order by its human-facing number.
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	trimmed := strings.TrimSpace(orderNumber)
	if trimmed == "" {
		return domain.Order{}, notFoundError("order", orderNumber)
	}
	coll, err := collectionRef(ctx, r.provider, ordersCollection)
	if err != nil {
		return domain.Order{}, err
	}
	query := coll.Where("orderNumber", "==", trimmed).Limit(1)
	snaps, err := collectSnapshots("orders.find_by_number", txDocuments(ctx, query))
	if err != nil {
		return domain.Order{}, err
	}
	if len(snaps) == 0 {
		return domain.Order{}, notFoundError("order", trimmed)
	}
	var doc orderDocument
	if err := snaps[0].DataTo(&doc); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find_by_number", err)
	}
	return doc.toDomain(snaps[0].Ref.ID), nil
}

// List returns one page of orders newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	coll, err := collectionRef(ctx, r.provider, ordersCollection)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	query := coll.Query
	if !filter.IncludeDeleted {
		query = query.Where("deleted", "==", false)
	}
	if customer := strings.TrimSpace(filter.CustomerID); customer != "" {
		query = query.Where("customerId", "==", customer)
	}
	if seller := strings.TrimSpace(filter.SellerID); seller != "" {
		query = query.Where("sellerId", "==", seller)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.CreatedRange.From != nil {
		query = query.Where("placedAt", ">=", *filter.CreatedRange.From)
	}
	if filter.CreatedRange.To != nil {
		query = query.Where("placedAt", "<=", *filter.CreatedRange.To)
	}

	query = query.
		OrderBy("placedAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)

	cursor, err := decodeCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	if len(cursor.StartAfter) > 0 {
		query = query.StartAfter(cursor.StartAfter...)
	}

	pageSize := normalizePageSize(filter.Pagination.PageSize)
	query = query.Limit(pageSize + 1)

	snaps, err := collectSnapshots("orders.list", txDocuments(ctx, query))
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	hasMore := len(snaps) > pageSize
	if hasMore {
		snaps = snaps[:pageSize]
	}
	for _, snap := range snaps {
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		page.Items = append(page.Items, doc.toDomain(snap.Ref.ID))
	}
	if hasMore && len(snaps) > 0 {
		last := snaps[len(snaps)-1]
		var doc orderDocument
		if err := last.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		token, err := encodeCursor(doc.PlacedAt, last.Ref.ID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}
