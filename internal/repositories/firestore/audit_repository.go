package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/orderlane/api/internal/domain"
	pfirestore "github.com/orderlane/api/internal/platform/firestore"
	"github.com/orderlane/api/internal/repositories"
)

// AuditTrailRepository appends immutable audit entries. Entries are never
// updated or deleted; the only write path is Create.
type AuditTrailRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[auditDocument]
}

var _ repositories.AuditTrailRepository = (*AuditTrailRepository)(nil)

// NewAuditTrailRepository constructs the Firestore backed audit trail repository.
func NewAuditTrailRepository(provider *pfirestore.Provider) (*AuditTrailRepository, error) {
	if provider == nil {
		return nil, errors.New("audit trail repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[auditDocument](provider, auditTrailCollection, nil, nil)
	return &AuditTrailRepository{provider: provider, base: base}, nil
}

type auditDocument struct {
	OrderID      string    `firestore:"orderId"`
	ActorType    string    `firestore:"actorType"`
	ActorID      string    `firestore:"actorId"`
	EventType    string    `firestore:"eventType"`
	StatusBefore string    `firestore:"statusBefore"`
	StatusAfter  string    `firestore:"statusAfter"`
	Message      string    `firestore:"message"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

func newAuditDocument(entry domain.AuditEntry) auditDocument {
	return auditDocument{
		OrderID:      entry.OrderID,
		ActorType:    string(entry.Actor.Type),
		ActorID:      entry.Actor.ID,
		EventType:    entry.EventType,
		StatusBefore: entry.StatusBefore,
		StatusAfter:  entry.StatusAfter,
		Message:      entry.Message,
		CreatedAt:    entry.CreatedAt,
	}
}

func (d auditDocument) toDomain(id string) domain.AuditEntry {
	return domain.AuditEntry{
		ID:           id,
		OrderID:      d.OrderID,
		Actor:        domain.Actor{Type: domain.ActorType(d.ActorType), ID: d.ActorID},
		EventType:    d.EventType,
		StatusBefore: d.StatusBefore,
		StatusAfter:  d.StatusAfter,
		Message:      d.Message,
		CreatedAt:    d.CreatedAt,
	}
}

// Append writes one immutable audit entry.
func (r *AuditTrailRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	ref, err := r.base.DocumentRef(ctx, entry.ID)
	if err != nil {
		return err
	}
	if err := txCreate(ctx, ref, newAuditDocument(entry)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return conflictError("audit entry "+entry.ID+" already exists", err)
		}
		return pfirestore.WrapError("audit.append", err)
	}
	return nil
}

// ListByOrder returns one page of the order's audit trail newest first.
func (r *AuditTrailRepository) ListByOrder(ctx context.Context, filter repositories.AuditFilter) (domain.CursorPage[domain.AuditEntry], error) {
	coll, err := collectionRef(ctx, r.provider, auditTrailCollection)
	if err != nil {
		return domain.CursorPage[domain.AuditEntry]{}, err
	}

	query := coll.Where("orderId", "==", strings.TrimSpace(filter.OrderID))
	if eventType := strings.TrimSpace(filter.EventType); eventType != "" {
		query = query.Where("eventType", "==", eventType)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", *filter.DateRange.From)
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", *filter.DateRange.To)
	}

	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)

	cursor, err := decodeCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.AuditEntry]{}, err
	}
	if len(cursor.StartAfter) > 0 {
		query = query.StartAfter(cursor.StartAfter...)
	}

	pageSize := normalizePageSize(filter.Pagination.PageSize)
	snaps, err := collectSnapshots("audit.list", txDocuments(ctx, query.Limit(pageSize+1)))
	if err != nil {
		return domain.CursorPage[domain.AuditEntry]{}, err
	}

	page := domain.CursorPage[domain.AuditEntry]{}
	hasMore := len(snaps) > pageSize
	if hasMore {
		snaps = snaps[:pageSize]
	}
	for _, snap := range snaps {
		var doc auditDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.AuditEntry]{}, pfirestore.WrapError("audit.list", err)
		}
		page.Items = append(page.Items, doc.toDomain(snap.Ref.ID))
	}
	if hasMore && len(snaps) > 0 {
		last := snaps[len(snaps)-1]
		var doc auditDocument
		if err := last.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.AuditEntry]{}, pfirestore.WrapError("audit.list", err)
		}
		token, err := encodeCursor(doc.CreatedAt, last.Ref.ID)
		if err != nil {
			return domain.CursorPage[domain.AuditEntry]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}
