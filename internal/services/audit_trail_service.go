package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/orderlane/api/internal/domain"
	"github.com/orderlane/api/internal/repositories"
)

const auditIDPrefix = "aud_"

// AuditTrailServiceDeps bundles collaborators for the audit trail service.
type AuditTrailServiceDeps struct {
	AuditTrail  repositories.AuditTrailRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type auditTrailService struct {
	trail  repositories.AuditTrailRepository
	orders repositories.OrderRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewAuditTrailService wires dependencies into a concrete AuditTrailService implementation.
func NewAuditTrailService(deps AuditTrailServiceDeps) (AuditTrailService, error) {
	if deps.AuditTrail == nil {
		return nil, errors.New("audit trail service: audit trail repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &auditTrailService{
		trail:  deps.AuditTrail,
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Record appends one audit entry. It runs inside the caller's transaction and
// a failure here aborts that transaction: a mutation without its audit record
// must never commit.
func (s *auditTrailService) Record(ctx context.Context, record AuditRecord) error {
	orderID := strings.TrimSpace(record.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: audit record requires an order id", ErrInvalidInput)
	}
	if !record.Actor.Valid() {
		return fmt.Errorf("%w: audit record requires a valid actor", ErrInvalidInput)
	}
	eventType := strings.TrimSpace(record.EventType)
	if eventType == "" {
		return fmt.Errorf("%w: audit record requires an event type", ErrInvalidInput)
	}

	occurredAt := record.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock()
	}

	entry := domain.AuditEntry{
		ID:           auditIDPrefix + s.newID(),
		OrderID:      orderID,
		Actor:        record.Actor,
		EventType:    eventType,
		StatusBefore: record.StatusBefore,
		StatusAfter:  record.StatusAfter,
		Message:      sanitizeText(record.Message),
		CreatedAt:    occurredAt.UTC(),
	}

	if err := s.trail.Append(ctx, entry); err != nil {
		s.logger(ctx, "audit.append.failed", map[string]any{
			"order": orderID,
			"event": eventType,
			"error": err.Error(),
		})
		return mapRepositoryError(err, ErrOrderNotFound)
	}
	return nil
}

func (s *auditTrailService) List(ctx context.Context, actor Actor, filter AuditListFilter) (domain.CursorPage[AuditEntry], error) {
	orderID := strings.TrimSpace(filter.OrderID)
	if orderID == "" {
		return domain.CursorPage[AuditEntry]{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}

	if s.orders != nil {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return domain.CursorPage[AuditEntry]{}, mapRepositoryError(err, ErrOrderNotFound)
		}
		if err := authorizeOrderAccess(actor, order); err != nil {
			return domain.CursorPage[AuditEntry]{}, err
		}
	} else if !actor.Valid() || actor.Type != domain.ActorAdmin {
		return domain.CursorPage[AuditEntry]{}, ErrForbidden
	}

	page, err := s.trail.ListByOrder(ctx, repositories.AuditFilter{
		OrderID:    orderID,
		EventType:  strings.TrimSpace(filter.EventType),
		DateRange:  domain.RangeQuery[time.Time]{From: filter.From, To: filter.To},
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[AuditEntry]{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return page, nil
}
