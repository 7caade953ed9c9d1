package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/services"
)

type stubInventoryService struct {
	reserveFn  func(context.Context, services.InventoryChangeCommand) (services.InventoryRecord, error)
	releaseFn  func(context.Context, services.InventoryChangeCommand) (services.InventoryRecord, error)
	commitFn   func(context.Context, services.InventoryChangeCommand) (services.InventoryRecord, error)
	adjustFn   func(context.Context, services.InventoryAdjustCommand) (services.InventoryRecord, error)
	getFn      func(context.Context, string) (services.InventoryRecord, error)
	lowStockFn func(context.Context, services.Pagination) (domain.CursorPage[services.InventoryRecord], error)
	listFn     func(context.Context, services.InventoryMovementFilter) (domain.CursorPage[services.InventoryMovement], error)
	repairFn   func(context.Context, services.RepairReleasesCommand) (services.RepairReleasesResult, error)
}

func (s *stubInventoryService) Reserve(ctx context.Context, cmd services.InventoryChangeCommand) (services.InventoryRecord, error) {
	if s.reserveFn != nil {
		return s.reserveFn(ctx, cmd)
	}
	return services.InventoryRecord{}, errors.New("not implemented")
}

func (s *stubInventoryService) Release(ctx context.Context, cmd services.InventoryChangeCommand) (services.InventoryRecord, error) {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, cmd)
	}
	return services.InventoryRecord{}, errors.New("not implemented")
}

func (s *stubInventoryService) Commit(ctx context.Context, cmd services.InventoryChangeCommand) (services.InventoryRecord, error) {
	if s.commitFn != nil {
		return s.commitFn(ctx, cmd)
	}
	return services.InventoryRecord{}, errors.New("not implemented")
}

func (s *stubInventoryService) Adjust(ctx context.Context, cmd services.InventoryAdjustCommand) (services.InventoryRecord, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, cmd)
	}
	return services.InventoryRecord{}, errors.New("not implemented")
}

func (s *stubInventoryService) GetStock(ctx context.Context, sku string) (services.InventoryRecord, error) {
	if s.getFn != nil {
		return s.getFn(ctx, sku)
	}
	return services.InventoryRecord{}, errors.New("not implemented")
}

func (s *stubInventoryService) ListLowStock(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.InventoryRecord], error) {
	if s.lowStockFn != nil {
		return s.lowStockFn(ctx, pager)
	}
	return domain.CursorPage[services.InventoryRecord]{}, nil
}

func (s *stubInventoryService) ListMovements(ctx context.Context, filter services.InventoryMovementFilter) (domain.CursorPage[services.InventoryMovement], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.InventoryMovement]{}, nil
}

func (s *stubInventoryService) RepairReleases(ctx context.Context, cmd services.RepairReleasesCommand) (services.RepairReleasesResult, error) {
	if s.repairFn != nil {
		return s.repairFn(ctx, cmd)
	}
	return services.RepairReleasesResult{}, errors.New("not implemented")
}

func newInventoryRouter(service services.InventoryService) chi.Router {
	handler := NewInventoryHandlers(service)
	router := chi.NewRouter()
	router.Route("/inventory", handler.Routes)
	return router
}

func TestInventoryHandlersGetStock(t *testing.T) {
	threshold := 5
	now := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)

	service := &stubInventoryService{
		getFn: func(ctx context.Context, sku string) (services.InventoryRecord, error) {
			if sku != "sku-1" {
				t.Fatalf("unexpected sku %s", sku)
			}
			return services.InventoryRecord{
				SKU:               "sku-1",
				ProductRef:        "prod-1",
				Available:         3,
				Reserved:          2,
				Sold:              10,
				LowStockThreshold: &threshold,
				Status:            "active",
				UpdatedAt:         now,
			}, nil
		},
	}

	router := newInventoryRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/inventory/sku-1", nil)
	req = withActor(req, domain.ActorSeller, "seller-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp stockResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Stock.Available != 3 || resp.Stock.Reserved != 2 || resp.Stock.Sold != 10 {
		t.Fatalf("unexpected counters %#v", resp.Stock)
	}
	if !resp.Stock.LowStock {
		t.Fatalf("expected low_stock true at available 3 threshold 5")
	}
}

func TestInventoryHandlersGetStockNotFound(t *testing.T) {
	service := &stubInventoryService{
		getFn: func(ctx context.Context, sku string) (services.InventoryRecord, error) {
			return services.InventoryRecord{}, services.ErrSKUNotFound
		},
	}

	router := newInventoryRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/inventory/sku-missing", nil)
	req = withActor(req, domain.ActorSeller, "seller-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestInventoryHandlersListLowStock(t *testing.T) {
	threshold := 10
	service := &stubInventoryService{
		lowStockFn: func(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.InventoryRecord], error) {
			if pager.PageSize != 5 {
				t.Fatalf("expected page size 5, got %d", pager.PageSize)
			}
			return domain.CursorPage[services.InventoryRecord]{
				Items: []services.InventoryRecord{
					{SKU: "sku-1", Available: 2, LowStockThreshold: &threshold},
					{SKU: "sku-2", Available: 0, LowStockThreshold: &threshold},
				},
				NextPageToken: "tok-more",
			}, nil
		},
	}

	router := newInventoryRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/inventory/low-stock?page_size=5", nil)
	req = withActor(req, domain.ActorAdmin, "admin-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp stockListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 2 || resp.NextPageToken != "tok-more" {
		t.Fatalf("unexpected page %#v", resp)
	}
}

func TestInventoryHandlersListMovementsCapturesFilter(t *testing.T) {
	now := time.Date(2025, 8, 2, 14, 0, 0, 0, time.UTC)
	var captured services.InventoryMovementFilter

	service := &stubInventoryService{
		listFn: func(ctx context.Context, filter services.InventoryMovementFilter) (domain.CursorPage[services.InventoryMovement], error) {
			captured = filter
			return domain.CursorPage[services.InventoryMovement]{
				Items: []services.InventoryMovement{
					{
						ID:              "mov_1",
						SKU:             "sku-1",
						ChangeType:      domain.InventoryChangeReserve,
						Delta:           -2,
						AvailableBefore: 5,
						AvailableAfter:  3,
						ReservedBefore:  0,
						ReservedAfter:   2,
						ReferenceType:   "order",
						ReferenceID:     "ord_1",
						Actor:           domain.Actor{Type: domain.ActorCustomer, ID: "cust-1"},
						CreatedAt:       now,
					},
				},
			}, nil
		},
	}

	router := newInventoryRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/inventory/movements?sku=sku-1&change_type=reserve&reference_type=order&reference_id=ord_1", nil)
	req = withActor(req, domain.ActorAdmin, "admin-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.SKU != "sku-1" || captured.ChangeType != domain.InventoryChangeReserve {
		t.Fatalf("unexpected filter %#v", captured)
	}
	if captured.ReferenceType != "order" || captured.ReferenceID != "ord_1" {
		t.Fatalf("unexpected reference filter %#v", captured)
	}

	var resp movementListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].AvailableAfter != 3 || resp.Items[0].ReservedAfter != 2 {
		t.Fatalf("unexpected movement payload %#v", resp.Items)
	}
}

func TestInventoryHandlersAdjustSuccess(t *testing.T) {
	var captured services.InventoryAdjustCommand
	service := &stubInventoryService{
		adjustFn: func(ctx context.Context, cmd services.InventoryAdjustCommand) (services.InventoryRecord, error) {
			captured = cmd
			return services.InventoryRecord{SKU: cmd.SKU, Available: 15}, nil
		},
	}

	router := newInventoryRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/inventory/sku-1:adjust", strings.NewReader(`{"delta":10,"note":"restock delivery"}`))
	req = withActor(req, domain.ActorAdmin, "admin-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.SKU != "sku-1" || captured.Delta != 10 || captured.Note != "restock delivery" {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestInventoryHandlersAdjustRejectsZeroDelta(t *testing.T) {
	router := newInventoryRouter(&stubInventoryService{})
	req := httptest.NewRequest(http.MethodPost, "/inventory/sku-1:adjust", strings.NewReader(`{"delta":0}`))
	req = withActor(req, domain.ActorAdmin, "admin-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestInventoryHandlersAdjustForbiddenForCustomers(t *testing.T) {
	service := &stubInventoryService{
		adjustFn: func(ctx context.Context, cmd services.InventoryAdjustCommand) (services.InventoryRecord, error) {
			return services.InventoryRecord{}, services.ErrForbidden
		},
	}

	router := newInventoryRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/inventory/sku-1:adjust", strings.NewReader(`{"delta":-1}`))
	req = withActor(req, domain.ActorCustomer, "cust-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestInventoryHandlersAdjustBelowReserved(t *testing.T) {
	service := &stubInventoryService{
		adjustFn: func(ctx context.Context, cmd services.InventoryAdjustCommand) (services.InventoryRecord, error) {
			return services.InventoryRecord{}, services.ErrInsufficientStock
		},
	}

	router := newInventoryRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/inventory/sku-1:adjust", strings.NewReader(`{"delta":-100}`))
	req = withActor(req, domain.ActorAdmin, "admin-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestInventoryHandlersRepairReleases(t *testing.T) {
	var captured services.RepairReleasesCommand
	service := &stubInventoryService{
		repairFn: func(ctx context.Context, cmd services.RepairReleasesCommand) (services.RepairReleasesResult, error) {
			captured = cmd
			return services.RepairReleasesResult{
				OrderID:  cmd.OrderID,
				Released: map[string]int{"sku-1": 2},
			}, nil
		},
	}

	router := newInventoryRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/inventory/repair-releases", strings.NewReader(`{"order_id":"ord_1"}`))
	req = withActor(req, domain.ActorAdmin, "admin-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" {
		t.Fatalf("expected order id ord_1, got %s", captured.OrderID)
	}

	var resp repairReleasesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Released["sku-1"] != 2 {
		t.Fatalf("unexpected released map %#v", resp.Released)
	}
}

func TestInventoryHandlersRepairReleasesRequiresOrder(t *testing.T) {
	router := newInventoryRouter(&stubInventoryService{})
	req := httptest.NewRequest(http.MethodPost, "/inventory/repair-releases", strings.NewReader(`{}`))
	req = withActor(req, domain.ActorAdmin, "admin-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
