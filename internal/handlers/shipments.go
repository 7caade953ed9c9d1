package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/platform/httpx"
	"github.com/orderlane/api/internal/services"
)

// ShipmentHandlers exposes the shipment tracking endpoints.
type ShipmentHandlers struct {
	shipments services.ShipmentService
}

// NewShipmentHandlers constructs ShipmentHandlers.
func NewShipmentHandlers(shipments services.ShipmentService) *ShipmentHandlers {
	return &ShipmentHandlers{shipments: shipments}
}

// OrderRoutes registers the order-scoped shipment endpoints.
func (h *ShipmentHandlers) OrderRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{orderID}/shipments", h.createShipment)
	r.Get("/{orderID}/shipments", h.listShipments)
}

// Routes registers the shipment transition endpoint.
func (h *ShipmentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{shipmentID}:transition", h.transitionShipment)
}

type createShipmentRequest struct {
	Carrier        string  `json:"carrier"`
	TrackingNumber *string `json:"tracking_number"`
	Remark         string  `json:"remark"`
}

func (h *ShipmentHandlers) createShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req createShipmentRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	shipment, err := h.shipments.Create(ctx, services.CreateShipmentCommand{
		Actor:          actor,
		OrderID:        orderID,
		Carrier:        strings.TrimSpace(req.Carrier),
		TrackingNumber: req.TrackingNumber,
		Remark:         req.Remark,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, shipmentResponse{Shipment: buildShipmentPayload(shipment)})
}

type transitionShipmentRequest struct {
	TargetStatus   string  `json:"target_status"`
	TrackingNumber *string `json:"tracking_number"`
	DispatchedAt   string  `json:"dispatched_at"`
	DeliveredAt    string  `json:"delivered_at"`
	Remark         string  `json:"remark"`
}

func (h *ShipmentHandlers) transitionShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	shipmentID := strings.TrimSpace(chi.URLParam(r, "shipmentID"))
	var req transitionShipmentRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TargetStatus) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "target_status is required", http.StatusBadRequest))
		return
	}

	cmd := services.ShipmentTransitionCommand{
		Actor:          actor,
		ShipmentID:     shipmentID,
		TargetStatus:   domain.ShipmentStatus(strings.TrimSpace(req.TargetStatus)),
		TrackingNumber: req.TrackingNumber,
		Remark:         req.Remark,
	}
	if raw := strings.TrimSpace(req.DispatchedAt); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "dispatched_at must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.DispatchedAt = &ts
	}
	if raw := strings.TrimSpace(req.DeliveredAt); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "delivered_at must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.DeliveredAt = &ts
	}

	shipment, err := h.shipments.Transition(ctx, cmd)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, shipmentResponse{Shipment: buildShipmentPayload(shipment)})
}

func (h *ShipmentHandlers) listShipments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	shipments, err := h.shipments.ListByOrder(ctx, actor, orderID)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	items := make([]shipmentPayload, 0, len(shipments))
	for _, shipment := range shipments {
		items = append(items, buildShipmentPayload(shipment))
	}
	writeJSONResponse(w, http.StatusOK, shipmentListResponse{Items: items})
}

type shipmentResponse struct {
	Shipment shipmentPayload `json:"shipment"`
}

type shipmentListResponse struct {
	Items []shipmentPayload `json:"items"`
}

type shipmentPayload struct {
	ID             string  `json:"id"`
	OrderID        string  `json:"order_id"`
	ShipmentNumber string  `json:"shipment_number"`
	Carrier        string  `json:"carrier"`
	TrackingNumber *string `json:"tracking_number,omitempty"`
	Status         string  `json:"status"`
	DispatchedAt   string  `json:"dispatched_at,omitempty"`
	DeliveredAt    string  `json:"delivered_at,omitempty"`
	Remark         string  `json:"remark,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

func buildShipmentPayload(shipment services.Shipment) shipmentPayload {
	return shipmentPayload{
		ID:             shipment.ID,
		OrderID:        shipment.OrderID,
		ShipmentNumber: shipment.ShipmentNumber,
		Carrier:        shipment.Carrier,
		TrackingNumber: shipment.TrackingNumber,
		Status:         string(shipment.Status),
		DispatchedAt:   formatTimePtr(shipment.DispatchedAt),
		DeliveredAt:    formatTimePtr(shipment.DeliveredAt),
		Remark:         shipment.Remark,
		CreatedAt:      formatTime(shipment.CreatedAt),
		UpdatedAt:      formatTime(shipment.UpdatedAt),
	}
}
