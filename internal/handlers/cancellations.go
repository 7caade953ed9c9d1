package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orderlane/api/internal/platform/httpx"
	"github.com/orderlane/api/internal/services"
)

// CancellationHandlers exposes the cancellation workflow endpoints.
type CancellationHandlers struct {
	cancellations services.CancellationService
}

// NewCancellationHandlers constructs CancellationHandlers.
func NewCancellationHandlers(cancellations services.CancellationService) *CancellationHandlers {
	return &CancellationHandlers{cancellations: cancellations}
}

// OrderRoutes registers the order-scoped cancellation endpoints.
func (h *CancellationHandlers) OrderRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{orderID}/cancellations", h.requestCancellation)
	r.Get("/{orderID}/cancellations", h.listCancellations)
}

// Routes registers the cancellation resolution endpoint.
func (h *CancellationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{cancellationID}:resolve", h.resolveCancellation)
}

type requestCancellationRequest struct {
	ReasonCode  string `json:"reason_code"`
	Explanation string `json:"explanation"`
}

func (h *CancellationHandlers) requestCancellation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req requestCancellationRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	cancellation, err := h.cancellations.Request(ctx, services.RequestCancellationCommand{
		Actor:       actor,
		OrderID:     orderID,
		ReasonCode:  strings.TrimSpace(req.ReasonCode),
		Explanation: req.Explanation,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, cancellationResponse{Cancellation: buildCancellationPayload(cancellation)})
}

type resolveCancellationRequest struct {
	Decision string `json:"decision"`
}

func (h *CancellationHandlers) resolveCancellation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	cancellationID := strings.TrimSpace(chi.URLParam(r, "cancellationID"))
	var req resolveCancellationRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Decision) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "decision is required", http.StatusBadRequest))
		return
	}

	cancellation, err := h.cancellations.Resolve(ctx, services.ResolveCancellationCommand{
		Actor:          actor,
		CancellationID: cancellationID,
		Decision:       services.CancellationDecision(strings.ToLower(strings.TrimSpace(req.Decision))),
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cancellationResponse{Cancellation: buildCancellationPayload(cancellation)})
}

func (h *CancellationHandlers) listCancellations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	cancellations, err := h.cancellations.ListByOrder(ctx, actor, orderID)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	items := make([]cancellationPayload, 0, len(cancellations))
	for _, cancellation := range cancellations {
		items = append(items, buildCancellationPayload(cancellation))
	}
	writeJSONResponse(w, http.StatusOK, cancellationListResponse{Items: items})
}

type cancellationResponse struct {
	Cancellation cancellationPayload `json:"cancellation"`
}

type cancellationListResponse struct {
	Items []cancellationPayload `json:"items"`
}

type cancellationPayload struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	InitiatorType string `json:"initiator_type"`
	InitiatorID   string `json:"initiator_id"`
	ReasonCode    string `json:"reason_code"`
	Status        string `json:"status"`
	Explanation   string `json:"explanation,omitempty"`
	RequestedAt   string `json:"requested_at"`
	ResolvedAt    string `json:"resolved_at,omitempty"`
}

func buildCancellationPayload(c services.Cancellation) cancellationPayload {
	return cancellationPayload{
		ID:            c.ID,
		OrderID:       c.OrderID,
		InitiatorType: string(c.Initiator.Type),
		InitiatorID:   c.Initiator.ID,
		ReasonCode:    c.ReasonCode,
		Status:        string(c.Status),
		Explanation:   c.Explanation,
		RequestedAt:   formatTime(c.RequestedAt),
		ResolvedAt:    formatTimePtr(c.ResolvedAt),
	}
}
