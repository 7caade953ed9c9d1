package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orderlane/api/internal/platform/httpx"
	"github.com/orderlane/api/internal/services"
)

// AuditHandlers exposes the read-only audit trail endpoint.
type AuditHandlers struct {
	audit services.AuditTrailService
}

// NewAuditHandlers constructs AuditHandlers.
func NewAuditHandlers(audit services.AuditTrailService) *AuditHandlers {
	return &AuditHandlers{audit: audit}
}

// OrderRoutes registers the order-scoped audit endpoint.
func (h *AuditHandlers) OrderRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{orderID}/audit", h.listAuditTrail)
}

func (h *AuditHandlers) listAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	query := r.URL.Query()

	filter := services.AuditListFilter{
		OrderID:   orderID,
		EventType: strings.TrimSpace(query.Get("event_type")),
	}
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "to must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.To = &ts
	}

	pager, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}
	filter.Pagination = pager

	page, err := h.audit.List(ctx, actor, filter)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	items := make([]auditEntryPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, auditEntryPayload{
			ID:           entry.ID,
			OrderID:      entry.OrderID,
			ActorType:    string(entry.Actor.Type),
			ActorID:      entry.Actor.ID,
			EventType:    entry.EventType,
			StatusBefore: entry.StatusBefore,
			StatusAfter:  entry.StatusAfter,
			Message:      entry.Message,
			CreatedAt:    formatTime(entry.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, auditListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

type auditListResponse struct {
	Items         []auditEntryPayload `json:"items"`
	NextPageToken string              `json:"next_page_token,omitempty"`
}

type auditEntryPayload struct {
	ID           string `json:"id"`
	OrderID      string `json:"order_id"`
	ActorType    string `json:"actor_type"`
	ActorID      string `json:"actor_id"`
	EventType    string `json:"event_type"`
	StatusBefore string `json:"status_before,omitempty"`
	StatusAfter  string `json:"status_after,omitempty"`
	Message      string `json:"message,omitempty"`
	CreatedAt    string `json:"created_at"`
}
