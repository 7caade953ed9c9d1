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

// CancellationRepository persists cancellation workflow records.
type CancellationRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[cancellationDocument]
}

var _ repositories.CancellationRepository = (*CancellationRepository)(nil)

// NewCancellationRepository constructs the Firestore backed cancellation repository.
func NewCancellationRepository(provider *pfirestore.Provider) (*CancellationRepository, error) {
	if provider == nil {
		return nil, errors.New("cancellation repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cancellationDocument](provider, cancellationCollection, nil, nil)
	return &CancellationRepository{provider: provider, base: base}, nil
}

type cancellationDocument struct {
	OrderID       string     `firestore:"orderId"`
	InitiatorType string     `firestore:"initiatorType"`
	InitiatorID   string     `firestore:"initiatorId"`
	ReasonCode    string     `firestore:"reasonCode"`
	Status        string     `firestore:"status"`
	Explanation   string     `firestore:"explanation"`
	RequestedAt   time.Time  `firestore:"requestedAt"`
	ResolvedAt    *time.Time `firestore:"resolvedAt"`
	// Open mirrors the pending/approved states so the single-open-request
	// rule can be enforced with one indexed query.
	Open bool `firestore:"open"`
}

func newCancellationDocument(c domain.Cancellation) cancellationDocument {
	return cancellationDocument{
		OrderID:       c.OrderID,
		InitiatorType: string(c.Initiator.Type),
		InitiatorID:   c.Initiator.ID,
		ReasonCode:    c.ReasonCode,
		Status:        string(c.Status),
		Explanation:   c.Explanation,
		RequestedAt:   c.RequestedAt,
		ResolvedAt:    c.ResolvedAt,
		Open:          c.Open(),
	}
}

func (d cancellationDocument) toDomain(id string) domain.Cancellation {
	return domain.Cancellation{
		ID:          id,
		OrderID:     d.OrderID,
		Initiator:   domain.Actor{Type: domain.ActorType(d.InitiatorType), ID: d.InitiatorID},
		ReasonCode:  d.ReasonCode,
		Status:      domain.CancellationStatus(d.Status),
		Explanation: d.Explanation,
		RequestedAt: d.RequestedAt,
		ResolvedAt:  d.ResolvedAt,
	}
}

// Insert persists a new cancellation request.
func (r *CancellationRepository) Insert(ctx context.Context, cancellation domain.Cancellation) error {
	ref, err := r.base.DocumentRef(ctx, cancellation.ID)
	if err != nil {
		return err
	}
	if err := txCreate(ctx, ref, newCancellationDocument(cancellation)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return conflictError("cancellation "+cancellation.ID+" already exists", err)
		}
		return pfirestore.WrapError("cancellations.insert", err)
	}
	return nil
}

// Update replaces the stored cancellation state.
func (r *CancellationRepository) Update(ctx context.Context, cancellation domain.Cancellation) error {
	ref, err := r.base.DocumentRef(ctx, cancellation.ID)
	if err != nil {
		return err
	}
	if _, err := txGet(ctx, ref); err != nil {
		if status.Code(err) == codes.NotFound {
			return notFoundError("cancellation", cancellation.ID)
		}
		return pfirestore.WrapError("cancellations.update", err)
	}
	if err := txSet(ctx, ref, newCancellationDocument(cancellation)); err != nil {
		return pfirestore.WrapError("cancellations.update", err)
	}
	return nil
}

// FindByID loads one cancellation record.
func (r *CancellationRepository) FindByID(ctx context.Context, cancellationID string) (domain.Cancellation, error) {
	ref, err := r.base.DocumentRef(ctx, cancellationID)
	if err != nil {
		return domain.Cancellation{}, err
	}
	snap, err := txGet(ctx, ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.Cancellation{}, notFoundError("cancellation", cancellationID)
		}
		return domain.Cancellation{}, pfirestore.WrapError("cancellations.get", err)
	}
	var doc cancellationDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Cancellation{}, pfirestore.WrapError("cancellations.get", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// FindOpenByOrder returns the unresolved cancellation for an order, if any.
func (r *CancellationRepository) FindOpenByOrder(ctx context.Context, orderID string) (domain.Cancellation, error) {
	coll, err := collectionRef(ctx, r.provider, cancellationCollection)
	if err != nil {
		return domain.Cancellation{}, err
	}
	query := coll.
		Where("orderId", "==", strings.TrimSpace(orderID)).
		Where("open", "==", true).
		Limit(1)
	snaps, err := collectSnapshots("cancellations.find_open", txDocuments(ctx, query))
	if err != nil {
		return domain.Cancellation{}, err
	}
	if len(snaps) == 0 {
		return domain.Cancellation{}, repositories.NewError(repositories.ErrorNotFound, "no open cancellation for order "+orderID, nil)
	}
	var doc cancellationDocument
	if err := snaps[0].DataTo(&doc); err != nil {
		return domain.Cancellation{}, pfirestore.WrapError("cancellations.find_open", err)
	}
	return doc.toDomain(snaps[0].Ref.ID), nil
}

// ListByOrder returns every cancellation raised against the order, newest first.
func (r *CancellationRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Cancellation, error) {
	coll, err := collectionRef(ctx, r.provider, cancellationCollection)
	if err != nil {
		return nil, err
	}
	query := coll.
		Where("orderId", "==", strings.TrimSpace(orderID)).
		OrderBy("requestedAt", firestore.Desc)
	snaps, err := collectSnapshots("cancellations.list", txDocuments(ctx, query))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Cancellation, 0, len(snaps))
	for _, snap := range snaps {
		var doc cancellationDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("cancellations.list", err)
		}
		out = append(out, doc.toDomain(snap.Ref.ID))
	}
	return out, nil
}
