package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/services"
)

type stubAuditService struct {
	recordFn func(context.Context, services.AuditRecord) error
	listFn   func(context.Context, services.Actor, services.AuditListFilter) (domain.CursorPage[services.AuditEntry], error)
}

func (s *stubAuditService) Record(ctx context.Context, record services.AuditRecord) error {
	if s.recordFn != nil {
		return s.recordFn(ctx, record)
	}
	return errors.New("not implemented")
}

func (s *stubAuditService) List(ctx context.Context, actor services.Actor, filter services.AuditListFilter) (domain.CursorPage[services.AuditEntry], error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, filter)
	}
	return domain.CursorPage[services.AuditEntry]{}, nil
}

func newAuditRouter(service services.AuditTrailService) chi.Router {
	handler := NewAuditHandlers(service)
	router := chi.NewRouter()
	router.Route("/orders", handler.OrderRoutes)
	return router
}

func TestAuditHandlersListCapturesFilter(t *testing.T) {
	from := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 8, 5, 16, 0, 0, 0, time.UTC)
	var captured services.AuditListFilter

	service := &stubAuditService{
		listFn: func(ctx context.Context, actor services.Actor, filter services.AuditListFilter) (domain.CursorPage[services.AuditEntry], error) {
			captured = filter
			return domain.CursorPage[services.AuditEntry]{
				Items: []services.AuditEntry{
					{
						ID:           "aud_1",
						OrderID:      filter.OrderID,
						Actor:        domain.Actor{Type: domain.ActorAdmin, ID: "admin-1"},
						EventType:    "status_transition",
						StatusBefore: "pending",
						StatusAfter:  "processing",
						Message:      "payment settled",
						CreatedAt:    now,
					},
				},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	router := newAuditRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1/audit?event_type=status_transition&from=2025-08-01T00:00:00Z&page_size=25", nil)
	req = withActor(req, domain.ActorAdmin, "admin-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.EventType != "status_transition" {
		t.Fatalf("unexpected filter %#v", captured)
	}
	if captured.From == nil || !captured.From.Equal(from) {
		t.Fatalf("expected from filter, got %#v", captured.From)
	}
	if captured.Pagination.PageSize != 25 {
		t.Fatalf("expected page size 25, got %d", captured.Pagination.PageSize)
	}

	var resp auditListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(resp.Items))
	}
	entry := resp.Items[0]
	if entry.StatusBefore != "pending" || entry.StatusAfter != "processing" {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if resp.NextPageToken != "tok-next" {
		t.Fatalf("expected next page token, got %s", resp.NextPageToken)
	}
}

func TestAuditHandlersListInvalidRange(t *testing.T) {
	router := newAuditRouter(&stubAuditService{})
	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1/audit?from=lately", nil)
	req = withActor(req, domain.ActorAdmin, "admin-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAuditHandlersListForbidden(t *testing.T) {
	service := &stubAuditService{
		listFn: func(ctx context.Context, actor services.Actor, filter services.AuditListFilter) (domain.CursorPage[services.AuditEntry], error) {
			return domain.CursorPage[services.AuditEntry]{}, services.ErrForbidden
		},
	}

	router := newAuditRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1/audit", nil)
	req = withActor(req, domain.ActorCustomer, "other-cust")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestAuditHandlersListUnauthenticated(t *testing.T) {
	router := newAuditRouter(&stubAuditService{})
	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1/audit", nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}
