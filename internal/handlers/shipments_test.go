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

type stubShipmentService struct {
	createFn     func(context.Context, services.CreateShipmentCommand) (services.Shipment, error)
	transitionFn func(context.Context, services.ShipmentTransitionCommand) (services.Shipment, error)
	listFn       func(context.Context, services.Actor, string) ([]services.Shipment, error)
}

func (s *stubShipmentService) Create(ctx context.Context, cmd services.CreateShipmentCommand) (services.Shipment, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Shipment{}, errors.New("not implemented")
}

func (s *stubShipmentService) Transition(ctx context.Context, cmd services.ShipmentTransitionCommand) (services.Shipment, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Shipment{}, errors.New("not implemented")
}

func (s *stubShipmentService) ListByOrder(ctx context.Context, actor services.Actor, orderID string) ([]services.Shipment, error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, orderID)
	}
	return nil, nil
}

func newShipmentRouter(service services.ShipmentService) chi.Router {
	handler := NewShipmentHandlers(service)
	router := chi.NewRouter()
	router.Route("/orders", handler.OrderRoutes)
	router.Route("/shipments", handler.Routes)
	return router
}

func TestShipmentHandlersCreateSuccess(t *testing.T) {
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	tracking := "TRK-001"
	var captured services.CreateShipmentCommand

	service := &stubShipmentService{
		createFn: func(ctx context.Context, cmd services.CreateShipmentCommand) (services.Shipment, error) {
			captured = cmd
			return services.Shipment{
				ID:             "shp_1",
				OrderID:        cmd.OrderID,
				ShipmentNumber: "SHP-2025-000001",
				Carrier:        cmd.Carrier,
				TrackingNumber: cmd.TrackingNumber,
				Status:         domain.ShipmentPending,
				Remark:         cmd.Remark,
				CreatedAt:      now,
				UpdatedAt:      now,
			}, nil
		},
	}

	router := newShipmentRouter(service)
	body := `{"carrier":" yamato ","tracking_number":"TRK-001","remark":"fragile"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/shipments", strings.NewReader(body))
	req = withActor(req, domain.ActorSeller, "seller-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Carrier != "yamato" {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.TrackingNumber == nil || *captured.TrackingNumber != tracking {
		t.Fatalf("expected tracking number, got %#v", captured.TrackingNumber)
	}

	var resp shipmentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Shipment.ShipmentNumber != "SHP-2025-000001" {
		t.Fatalf("expected shipment number, got %s", resp.Shipment.ShipmentNumber)
	}
}

func TestShipmentHandlersCreateRejectsUnfulfillableOrder(t *testing.T) {
	service := &stubShipmentService{
		createFn: func(ctx context.Context, cmd services.CreateShipmentCommand) (services.Shipment, error) {
			return services.Shipment{}, services.ErrInvalidTransition
		},
	}

	router := newShipmentRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/shipments", strings.NewReader(`{"carrier":"yamato"}`))
	req = withActor(req, domain.ActorSeller, "seller-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestShipmentHandlersTransitionParsesTimestamps(t *testing.T) {
	dispatchedAt := time.Date(2025, 7, 2, 8, 30, 0, 0, time.UTC)
	var captured services.ShipmentTransitionCommand

	service := &stubShipmentService{
		transitionFn: func(ctx context.Context, cmd services.ShipmentTransitionCommand) (services.Shipment, error) {
			captured = cmd
			return services.Shipment{
				ID:           cmd.ShipmentID,
				OrderID:      "ord_1",
				Status:       cmd.TargetStatus,
				DispatchedAt: cmd.DispatchedAt,
			}, nil
		},
	}

	router := newShipmentRouter(service)
	body := `{"target_status":"shipped","tracking_number":"TRK-002","dispatched_at":"2025-07-02T08:30:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/shipments/shp_1:transition", strings.NewReader(body))
	req = withActor(req, domain.ActorSeller, "seller-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ShipmentID != "shp_1" || captured.TargetStatus != domain.ShipmentShipped {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.DispatchedAt == nil || !captured.DispatchedAt.Equal(dispatchedAt) {
		t.Fatalf("expected dispatched_at %s, got %#v", dispatchedAt, captured.DispatchedAt)
	}
}

func TestShipmentHandlersTransitionInvalidTimestamp(t *testing.T) {
	router := newShipmentRouter(&stubShipmentService{})
	req := httptest.NewRequest(http.MethodPost, "/shipments/shp_1:transition", strings.NewReader(`{"target_status":"shipped","dispatched_at":"yesterday"}`))
	req = withActor(req, domain.ActorSeller, "seller-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestShipmentHandlersTransitionRequiresTarget(t *testing.T) {
	router := newShipmentRouter(&stubShipmentService{})
	req := httptest.NewRequest(http.MethodPost, "/shipments/shp_1:transition", strings.NewReader(`{"remark":"moving"}`))
	req = withActor(req, domain.ActorSeller, "seller-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestShipmentHandlersTransitionNotFound(t *testing.T) {
	service := &stubShipmentService{
		transitionFn: func(ctx context.Context, cmd services.ShipmentTransitionCommand) (services.Shipment, error) {
			return services.Shipment{}, services.ErrShipmentNotFound
		},
	}

	router := newShipmentRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/shipments/shp_missing:transition", strings.NewReader(`{"target_status":"in_transit"}`))
	req = withActor(req, domain.ActorSeller, "seller-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestShipmentHandlersListByOrder(t *testing.T) {
	now := time.Date(2025, 7, 3, 12, 0, 0, 0, time.UTC)
	service := &stubShipmentService{
		listFn: func(ctx context.Context, actor services.Actor, orderID string) ([]services.Shipment, error) {
			return []services.Shipment{
				{ID: "shp_1", OrderID: orderID, ShipmentNumber: "SHP-000001", Status: domain.ShipmentDelivered, CreatedAt: now.Add(-48 * time.Hour)},
				{ID: "shp_2", OrderID: orderID, ShipmentNumber: "SHP-000002", Status: domain.ShipmentInTransit, CreatedAt: now},
			}, nil
		},
	}

	router := newShipmentRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1/shipments", nil)
	req = withActor(req, domain.ActorCustomer, "cust-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp shipmentListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[1].Status != string(domain.ShipmentInTransit) {
		t.Fatalf("unexpected items %#v", resp.Items)
	}
}
