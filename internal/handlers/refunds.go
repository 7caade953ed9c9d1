package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orderlane/api/internal/platform/httpx"
	"github.com/orderlane/api/internal/services"
)

// RefundHandlers exposes the refund workflow endpoints.
type RefundHandlers struct {
	refunds services.RefundService
}

// NewRefundHandlers constructs RefundHandlers.
func NewRefundHandlers(refunds services.RefundService) *RefundHandlers {
	return &RefundHandlers{refunds: refunds}
}

// OrderRoutes registers the order-scoped refund endpoints.
func (h *RefundHandlers) OrderRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{orderID}/refunds", h.requestRefund)
	r.Get("/{orderID}/refunds", h.listRefunds)
}

// Routes registers the refund resolution endpoint.
func (h *RefundHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{refundID}:resolve", h.resolveRefund)
}

type requestRefundRequest struct {
	Amount      int64   `json:"amount"`
	PaymentRef  *string `json:"payment_ref"`
	ReasonCode  string  `json:"reason_code"`
	Explanation string  `json:"explanation"`
}

func (h *RefundHandlers) requestRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req requestRefundRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	refund, err := h.refunds.Request(ctx, services.RequestRefundCommand{
		Actor:       actor,
		OrderID:     orderID,
		PaymentRef:  req.PaymentRef,
		ReasonCode:  strings.TrimSpace(req.ReasonCode),
		Explanation: req.Explanation,
		Amount:      req.Amount,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, refundResponse{Refund: buildRefundPayload(refund)})
}

type resolveRefundRequest struct {
	Decision string `json:"decision"`
}

func (h *RefundHandlers) resolveRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	refundID := strings.TrimSpace(chi.URLParam(r, "refundID"))
	var req resolveRefundRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Decision) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "decision is required", http.StatusBadRequest))
		return
	}

	refund, err := h.refunds.Resolve(ctx, services.ResolveRefundCommand{
		Actor:    actor,
		RefundID: refundID,
		Decision: services.RefundDecision(strings.ToLower(strings.TrimSpace(req.Decision))),
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, refundResponse{Refund: buildRefundPayload(refund)})
}

func (h *RefundHandlers) listRefunds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	refunds, err := h.refunds.ListByOrder(ctx, actor, orderID)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	items := make([]refundPayload, 0, len(refunds))
	for _, refund := range refunds {
		items = append(items, buildRefundPayload(refund))
	}
	writeJSONResponse(w, http.StatusOK, refundListResponse{Items: items})
}

type refundResponse struct {
	Refund refundPayload `json:"refund"`
}

type refundListResponse struct {
	Items []refundPayload `json:"items"`
}

type refundPayload struct {
	ID            string  `json:"id"`
	OrderID       string  `json:"order_id"`
	PaymentRef    *string `json:"payment_ref,omitempty"`
	InitiatorType string  `json:"initiator_type"`
	InitiatorID   string  `json:"initiator_id"`
	ReasonCode    string  `json:"reason_code"`
	Status        string  `json:"status"`
	Amount        int64   `json:"amount"`
	Currency      string  `json:"currency"`
	Explanation   string  `json:"explanation,omitempty"`
	RequestedAt   string  `json:"requested_at"`
	SettledAt     string  `json:"settled_at,omitempty"`
}

func buildRefundPayload(refund services.Refund) refundPayload {
	return refundPayload{
		ID:            refund.ID,
		OrderID:       refund.OrderID,
		PaymentRef:    refund.PaymentRef,
		InitiatorType: string(refund.Initiator.Type),
		InitiatorID:   refund.Initiator.ID,
		ReasonCode:    refund.ReasonCode,
		Status:        string(refund.Status),
		Amount:        refund.Amount,
		Currency:      refund.Currency,
		Explanation:   refund.Explanation,
		RequestedAt:   formatTime(refund.RequestedAt),
		SettledAt:     formatTimePtr(refund.SettledAt),
	}
}
