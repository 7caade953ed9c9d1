package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/repositories"
)

func newTestAuditTrailService(t *testing.T, deps AuditTrailServiceDeps) AuditTrailService {
	t.Helper()
	if deps.AuditTrail == nil {
		deps.AuditTrail = &stubAuditRepo{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2026, 5, 6, 16, 0, 0, 0, time.UTC) }
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = sequentialIDs("AUD")
	}
	svc, err := NewAuditTrailService(deps)
	if err != nil {
		t.Fatalf("new audit trail service: %v", err)
	}
	return svc
}

func TestAuditTrailServiceRecord(t *testing.T) {
	var appended domain.AuditEntry
	repo := &stubAuditRepo{
		appendFn: func(_ context.Context, entry domain.AuditEntry) error {
			appended = entry
			return nil
		},
	}
	svc := newTestAuditTrailService(t, AuditTrailServiceDeps{AuditTrail: repo})

	err := svc.Record(context.Background(), AuditRecord{
		OrderID:      "ord_1",
		Actor:        domain.Actor{Type: domain.ActorAdmin, ID: "adm_1"},
		EventType:    "order.status.changed",
		StatusBefore: "pending",
		StatusAfter:  "processing",
		Message:      "<i>settlement</i> received",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !strings.HasPrefix(appended.ID, "aud_") {
		t.Fatalf("unexpected entry id %s", appended.ID)
	}
	if appended.Message != "settlement received" {
		t.Fatalf("expected sanitized message, got %q", appended.Message)
	}
	if appended.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to default to the clock")
	}
}

func TestAuditTrailServiceRecordValidation(t *testing.T) {
	svc := newTestAuditTrailService(t, AuditTrailServiceDeps{})
	actor := domain.Actor{Type: domain.ActorAdmin, ID: "adm_1"}

	if err := svc.Record(context.Background(), AuditRecord{Actor: actor, EventType: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input without order id, got %v", err)
	}
	if err := svc.Record(context.Background(), AuditRecord{OrderID: "ord_1", EventType: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input without actor, got %v", err)
	}
	if err := svc.Record(context.Background(), AuditRecord{OrderID: "ord_1", Actor: actor}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input without event type, got %v", err)
	}
}

func TestAuditTrailServiceListAuthorizes(t *testing.T) {
	repo := &stubAuditRepo{
		listFn: func(_ context.Context, filter repositories.AuditFilter) (domain.CursorPage[domain.AuditEntry], error) {
			return domain.CursorPage[domain.AuditEntry]{Items: []domain.AuditEntry{{ID: "aud_1", OrderID: filter.OrderID}}}, nil
		},
	}
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			return pendingOrderFixture(id), nil
		},
	}
	svc := newTestAuditTrailService(t, AuditTrailServiceDeps{AuditTrail: repo, Orders: orders})

	if _, err := svc.List(context.Background(), domain.Actor{Type: domain.ActorCustomer, ID: "cus_other"}, AuditListFilter{OrderID: "ord_1"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for foreign customer, got %v", err)
	}

	page, err := svc.List(context.Background(), domain.Actor{Type: domain.ActorCustomer, ID: "cus_1"}, AuditListFilter{OrderID: "ord_1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected one entry got %d", len(page.Items))
	}
}
