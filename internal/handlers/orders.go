package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/platform/httpx"
	"github.com/orderlane/api/internal/platform/textutil"
	"github.com/orderlane/api/internal/services"
)

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	orders        services.OrderService
	cancellations services.CancellationService
	refunds       services.RefundService
	shipments     services.ShipmentService
}

// NewOrderHandlers constructs OrderHandlers. The workflow services enrich the
// order detail payload and may be nil in reduced deployments.
func NewOrderHandlers(orders services.OrderService, cancellations services.CancellationService, refunds services.RefundService, shipments services.ShipmentService) *OrderHandlers {
	return &OrderHandlers{
		orders:        orders,
		cancellations: cancellations,
		refunds:       refunds,
		shipments:     shipments,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/by-number/{orderNumber}", h.getOrderByNumber)
	r.Get("/{orderID}", h.getOrder)
	r.Delete("/{orderID}", h.softDeleteOrder)
	r.Post("/{orderID}:transition", h.transitionOrder)
	r.Post("/{orderID}:set-business-status", h.setBusinessStatus)
	r.Post("/{orderID}/items", h.addItem)
	r.Patch("/{orderID}/items/{itemID}", h.updateItem)
	r.Delete("/{orderID}/items/{itemID}", h.removeItem)
}

type placeOrderRequest struct {
	CustomerID         string           `json:"customer_id"`
	SellerID           *string          `json:"seller_id"`
	ShippingAddressRef *string          `json:"shipping_address_ref"`
	PaymentMethodRef   *string          `json:"payment_method_ref"`
	Currency           string           `json:"currency"`
	BusinessStatus     string           `json:"business_status"`
	Lines              []orderLineInput `json:"lines"`
}

type orderLineInput struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	lines := make([]services.PlaceOrderLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, services.PlaceOrderLine{
			SKU:       strings.TrimSpace(line.SKU),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	order, err := h.orders.PlaceOrder(ctx, services.PlaceOrderCommand{
		Actor:              actor,
		CustomerID:         strings.TrimSpace(req.CustomerID),
		SellerID:           req.SellerID,
		ShippingAddressRef: req.ShippingAddressRef,
		PaymentMethodRef:   req.PaymentMethodRef,
		Currency:           req.Currency,
		Lines:              lines,
		BusinessStatus:     req.BusinessStatus,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := services.OrderListFilter{
		CustomerID: strings.TrimSpace(query.Get("customer_id")),
		SellerID:   strings.TrimSpace(query.Get("seller_id")),
	}
	for _, status := range textutil.SplitList(query["status"]...) {
		filter.Statuses = append(filter.Statuses, domain.OrderStatus(status))
	}
	if raw := strings.TrimSpace(query.Get("placed_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "placed_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.PlacedFrom = &ts
	}
	if raw := strings.TrimSpace(query.Get("placed_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "placed_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.PlacedTo = &ts
	}
	filter.IncludeDeleted = strings.EqualFold(query.Get("include_deleted"), "true")

	pager, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}
	filter.Pagination = pager

	page, err := h.orders.ListOrders(ctx, actor, filter)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, actor, orderID)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	h.writeOrderDetail(ctx, w, actor, order)
}

func (h *OrderHandlers) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderNumber := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if orderNumber == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order number is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrderByNumber(ctx, actor, orderNumber)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	h.writeOrderDetail(ctx, w, actor, order)
}

func (h *OrderHandlers) writeOrderDetail(ctx context.Context, w http.ResponseWriter, actor services.Actor, order services.Order) {
	payload := orderDetailResponse{Order: buildOrderPayload(order)}
	if h.cancellations != nil {
		if cancellations, err := h.cancellations.ListByOrder(ctx, actor, order.ID); err == nil {
			for _, c := range cancellations {
				payload.Cancellations = append(payload.Cancellations, buildCancellationPayload(c))
			}
		}
	}
	if h.refunds != nil {
		if refunds, err := h.refunds.ListByOrder(ctx, actor, order.ID); err == nil {
			for _, refund := range refunds {
				payload.Refunds = append(payload.Refunds, buildRefundPayload(refund))
			}
		}
	}
	if h.shipments != nil {
		if shipments, err := h.shipments.ListByOrder(ctx, actor, order.ID); err == nil {
			for _, shipment := range shipments {
				payload.Shipments = append(payload.Shipments, buildShipmentPayload(shipment))
			}
		}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type transitionOrderRequest struct {
	TargetStatus   string `json:"target_status"`
	ExpectedStatus string `json:"expected_status"`
	Message        string `json:"message"`
}

func (h *OrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req transitionOrderRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TargetStatus) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "target_status is required", http.StatusBadRequest))
		return
	}

	cmd := services.OrderStatusTransitionCommand{
		Actor:        actor,
		OrderID:      orderID,
		TargetStatus: domain.OrderStatus(strings.TrimSpace(req.TargetStatus)),
		Message:      req.Message,
	}
	if raw := strings.TrimSpace(req.ExpectedStatus); raw != "" {
		expected := domain.OrderStatus(raw)
		cmd.ExpectedStatus = &expected
	}

	order, err := h.orders.TransitionStatus(ctx, cmd)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type setBusinessStatusRequest struct {
	BusinessStatus string `json:"business_status"`
}

func (h *OrderHandlers) setBusinessStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req setBusinessStatusRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.SetBusinessStatus(ctx, services.SetBusinessStatusCommand{
		Actor:          actor,
		OrderID:        orderID,
		BusinessStatus: req.BusinessStatus,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) softDeleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if err := h.orders.SoftDelete(ctx, services.SoftDeleteOrderCommand{Actor: actor, OrderID: orderID}); err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addItemRequest struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func (h *OrderHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req addItemRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.AddItem(ctx, services.AddOrderItemCommand{
		Actor:     actor,
		OrderID:   orderID,
		SKU:       strings.TrimSpace(req.SKU),
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

type updateItemRequest struct {
	Quantity  *int   `json:"quantity"`
	UnitPrice *int64 `json:"unit_price"`
}

func (h *OrderHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	var req updateItemRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.UpdateItem(ctx, services.UpdateOrderItemCommand{
		Actor:        actor,
		OrderID:      orderID,
		ItemID:       itemID,
		NewQuantity:  req.Quantity,
		NewUnitPrice: req.UnitPrice,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))

	order, err := h.orders.RemoveItem(ctx, services.RemoveOrderItemCommand{
		Actor:   actor,
		OrderID: orderID,
		ItemID:  itemID,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// Response payloads ----------------------------------------------------------

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID             string `json:"id"`
	OrderNumber    string `json:"order_number"`
	CustomerID     string `json:"customer_id"`
	Status         string `json:"status"`
	BusinessStatus string `json:"business_status,omitempty"`
	Currency       string `json:"currency"`
	OrderTotal     int64  `json:"order_total"`
	PlacedAt       string `json:"placed_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderDetailResponse struct {
	Order         orderPayload          `json:"order"`
	Cancellations []cancellationPayload `json:"cancellations,omitempty"`
	Refunds       []refundPayload       `json:"refunds,omitempty"`
	Shipments     []shipmentPayload     `json:"shipments,omitempty"`
}

type orderPayload struct {
	ID                 string             `json:"id"`
	OrderNumber        string             `json:"order_number"`
	CustomerID         string             `json:"customer_id"`
	SellerID           *string            `json:"seller_id,omitempty"`
	ShippingAddressRef *string            `json:"shipping_address_ref,omitempty"`
	PaymentMethodRef   *string            `json:"payment_method_ref,omitempty"`
	Status             string             `json:"status"`
	BusinessStatus     string             `json:"business_status,omitempty"`
	Currency           string             `json:"currency"`
	OrderTotal         int64              `json:"order_total"`
	PaidAmount         int64              `json:"paid_amount,omitempty"`
	PaymentRef         *string            `json:"payment_ref,omitempty"`
	Items              []orderItemPayload `json:"items"`
	PlacedAt           string             `json:"placed_at"`
	PaidAt             string             `json:"paid_at,omitempty"`
	FulfilledAt        string             `json:"fulfilled_at,omitempty"`
	CreatedAt          string             `json:"created_at"`
	UpdatedAt          string             `json:"updated_at,omitempty"`
	DeletedAt          string             `json:"deleted_at,omitempty"`
}

type orderItemPayload struct {
	ID           string `json:"id"`
	SKU          string `json:"sku"`
	SKUCode      string `json:"sku_code,omitempty"`
	ItemName     string `json:"item_name,omitempty"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
	Currency     string `json:"currency"`
	ItemTotal    int64  `json:"item_total"`
	RefundStatus string `json:"refund_status"`
	DeletedAt    string `json:"deleted_at,omitempty"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerID:     order.CustomerID,
		Status:         string(order.Status),
		BusinessStatus: order.BusinessStatus,
		Currency:       order.Currency,
		OrderTotal:     order.OrderTotal,
		PlacedAt:       formatTime(order.PlacedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ID:           item.ID,
			SKU:          item.SKU,
			SKUCode:      item.SKUCode,
			ItemName:     item.ItemName,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			Currency:     item.Currency,
			ItemTotal:    item.ItemTotal,
			RefundStatus: string(item.RefundStatus),
			DeletedAt:    formatTimePtr(item.DeletedAt),
		})
	}
	return orderPayload{
		ID:                 order.ID,
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
		PlacedAt:           formatTime(order.PlacedAt),
		PaidAt:             formatTimePtr(order.PaidAt),
		FulfilledAt:        formatTimePtr(order.FulfilledAt),
		CreatedAt:          formatTime(order.CreatedAt),
		UpdatedAt:          formatTime(order.UpdatedAt),
		DeletedAt:          formatTimePtr(order.DeletedAt),
	}
}
