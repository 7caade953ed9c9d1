package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/platform/httpx"
	"github.com/orderlane/api/internal/services"
)

// InventoryHandlers exposes the stock ledger's read surface plus the
// admin-only adjustment and reconciliation endpoints.
type InventoryHandlers struct {
	inventory services.InventoryService
}

// NewInventoryHandlers constructs InventoryHandlers.
func NewInventoryHandlers(inventory services.InventoryService) *InventoryHandlers {
	return &InventoryHandlers{inventory: inventory}
}

// Routes registers the /inventory endpoints.
func (h *InventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/low-stock", h.listLowStock)
	r.Get("/movements", h.listMovements)
	r.Get("/{sku}", h.getStock)
	r.Post("/{sku}:adjust", h.adjustStock)
	r.Post("/repair-releases", h.repairReleases)
}

func (h *InventoryHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireActor(ctx, w); !ok {
		return
	}

	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	record, err := h.inventory.GetStock(ctx, sku)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stockResponse{Stock: buildStockPayload(record)})
}

func (h *InventoryHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireActor(ctx, w); !ok {
		return
	}

	pager, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}

	page, err := h.inventory.ListLowStock(ctx, pager)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	items := make([]stockPayload, 0, len(page.Items))
	for _, record := range page.Items {
		items = append(items, buildStockPayload(record))
	}
	writeJSONResponse(w, http.StatusOK, stockListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *InventoryHandlers) listMovements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireActor(ctx, w); !ok {
		return
	}

	query := r.URL.Query()
	pager, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}

	page, err := h.inventory.ListMovements(ctx, services.InventoryMovementFilter{
		SKU:           strings.TrimSpace(query.Get("sku")),
		ChangeType:    domain.InventoryChangeType(strings.TrimSpace(query.Get("change_type"))),
		ReferenceType: strings.TrimSpace(query.Get("reference_type")),
		ReferenceID:   strings.TrimSpace(query.Get("reference_id")),
		Pagination:    pager,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	items := make([]movementPayload, 0, len(page.Items))
	for _, movement := range page.Items {
		items = append(items, buildMovementPayload(movement))
	}
	writeJSONResponse(w, http.StatusOK, movementListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

type adjustStockRequest struct {
	Delta int    `json:"delta"`
	Note  string `json:"note"`
}

func (h *InventoryHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	var req adjustStockRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	if req.Delta == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "delta must be non-zero", http.StatusBadRequest))
		return
	}

	record, err := h.inventory.Adjust(ctx, services.InventoryAdjustCommand{
		Actor: actor,
		SKU:   sku,
		Delta: req.Delta,
		Note:  req.Note,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stockResponse{Stock: buildStockPayload(record)})
}

type repairReleasesRequest struct {
	OrderID string `json:"order_id"`
}

func (h *InventoryHandlers) repairReleases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	var req repairReleasesRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id is required", http.StatusBadRequest))
		return
	}

	result, err := h.inventory.RepairReleases(ctx, services.RepairReleasesCommand{
		Actor:   actor,
		OrderID: strings.TrimSpace(req.OrderID),
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, repairReleasesResponse{
		OrderID:  result.OrderID,
		Released: result.Released,
	})
}

type stockResponse struct {
	Stock stockPayload `json:"stock"`
}

type stockListResponse struct {
	Items         []stockPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type stockPayload struct {
	SKU               string `json:"sku"`
	ProductRef        string `json:"product_ref,omitempty"`
	Available         int    `json:"available"`
	Reserved          int    `json:"reserved"`
	Sold              int    `json:"sold"`
	LowStockThreshold *int   `json:"low_stock_threshold,omitempty"`
	LowStock          bool   `json:"low_stock"`
	Status            string `json:"status,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

func buildStockPayload(record services.InventoryRecord) stockPayload {
	return stockPayload{
		SKU:               record.SKU,
		ProductRef:        record.ProductRef,
		Available:         record.Available,
		Reserved:          record.Reserved,
		Sold:              record.Sold,
		LowStockThreshold: record.LowStockThreshold,
		LowStock:          record.LowStock(),
		Status:            record.Status,
		UpdatedAt:         formatTime(record.UpdatedAt),
	}
}

type movementListResponse struct {
	Items         []movementPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type movementPayload struct {
	ID              string `json:"id"`
	SKU             string `json:"sku"`
	ChangeType      string `json:"change_type"`
	Delta           int    `json:"delta"`
	AvailableBefore int    `json:"available_before"`
	AvailableAfter  int    `json:"available_after"`
	ReservedBefore  int    `json:"reserved_before"`
	ReservedAfter   int    `json:"reserved_after"`
	ReferenceType   string `json:"reference_type,omitempty"`
	ReferenceID     string `json:"reference_id,omitempty"`
	Note            string `json:"note,omitempty"`
	ActorType       string `json:"actor_type"`
	ActorID         string `json:"actor_id"`
	CreatedAt       string `json:"created_at"`
}

func buildMovementPayload(movement services.InventoryMovement) movementPayload {
	return movementPayload{
		ID:              movement.ID,
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
		CreatedAt:       formatTime(movement.CreatedAt),
	}
}

type repairReleasesResponse struct {
	OrderID  string         `json:"order_id"`
	Released map[string]int `json:"released"`
}
