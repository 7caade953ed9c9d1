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

// RefundRepository persists refund workflow records.
type RefundRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[refundDocument]
}

var _ repositories.RefundRepository = (*RefundRepository)(nil)

// NewRefundRepository constructs the Firestore backed refund repository.
func NewRefundRepository(provider *pfirestore.Provider) (*RefundRepository, error) {
	if provider == nil {
		return nil, errors.New("refund repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[refundDocument](provider, refundsCollection, nil, nil)
	return &RefundRepository{provider: provider, base: base}, nil
}

type refundDocument struct {
	OrderID       string     `firestore:"orderId"`
	PaymentRef    *string    `firestore:"paymentRef"`
	InitiatorType string     `firestore:"initiatorType"`
	InitiatorID   string     `firestore:"initiatorId"`
	ReasonCode    string     `firestore:"reasonCode"`
	Status        string     `firestore:"status"`
	Amount        int64      `firestore:"amount"`
	Currency      string     `firestore:"currency"`
	Explanation   string     `firestore:"explanation"`
	RequestedAt   time.Time  `firestore:"requestedAt"`
	SettledAt     *time.Time `firestore:"settledAt"`
}

func newRefundDocument(refund domain.Refund) refundDocument {
	return refundDocument{
		OrderID:       refund.OrderID,
		PaymentRef:    refund.PaymentRef,
		InitiatorType: string(refund.Initiator.Type),
		InitiatorID:   refund.Initiator.ID,
		ReasonCode:    refund.ReasonCode,
		Status:        string(refund.Status),
		Amount:        refund.Amount,
		Currency:      refund.Currency,
		Explanation:   refund.Explanation,
		RequestedAt:   refund.RequestedAt,
		SettledAt:     refund.SettledAt,
	}
}

func (d refundDocument) toDomain(id string) domain.Refund {
	return domain.Refund{
		ID:          id,
		OrderID:     d.OrderID,
		PaymentRef:  d.PaymentRef,
		Initiator:   domain.Actor{Type: domain.ActorType(d.InitiatorType), ID: d.InitiatorID},
		ReasonCode:  d.ReasonCode,
		Status:      domain.RefundStatus(d.Status),
		Amount:      d.Amount,
		Currency:    d.Currency,
		Explanation: d.Explanation,
		RequestedAt: d.RequestedAt,
		SettledAt:   d.SettledAt,
	}
}

// Insert persists a new refund request.
func (r *RefundRepository) Insert(ctx context.Context, refund domain.Refund) error {
	ref, err := r.base.DocumentRef(ctx, refund.ID)
	if err != nil {
		return err
	}
	if err := txCreate(ctx, ref, newRefundDocument(refund)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return conflictError("refund "+refund.ID+" already exists", err)
		}
		return pfirestore.WrapError("refunds.insert", err)
	}
	return nil
}

// Update replaces the stored refund state.
func (r *RefundRepository) Update(ctx context.Context, refund domain.Refund) error {
	ref, err := r.base.DocumentRef(ctx, refund.ID)
	if err != nil {
		return err
	}
	if _, err := txGet(ctx, ref); err != nil {
		if status.Code(err) == codes.NotFound {
			return notFoundError("refund", refund.ID)
		}
		return pfirestore.WrapError("refunds.update", err)
	}
	if err := txSet(ctx, ref, newRefundDocument(refund)); err != nil {
		return pfirestore.WrapError("refunds.update", err)
	}
	return nil
}

// FindByID loads one refund record.
func (r *RefundRepository) FindByID(ctx context.Context, refundID string) (domain.Refund, error) {
	ref, err := r.base.DocumentRef(ctx, refundID)
	if err != nil {
		return domain.Refund{}, err
	}
	snap, err := txGet(ctx, ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.Refund{}, notFoundError("refund", refundID)
		}
		return domain.Refund{}, pfirestore.WrapError("refunds.get", err)
	}
	var doc refundDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Refund{}, pfirestore.WrapError("refunds.get", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// ListByOrder returns every refund raised against the order, newest first.
// The refund service sums these inside its transaction to cap total claims,
// so the query joins the ambient transaction when one is active.
func (r *RefundRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error) {
	coll, err := collectionRef(ctx, r.provider, refundsCollection)
	if err != nil {
		return nil, err
	}
	query := coll.
		Where("orderId", "==", strings.TrimSpace(orderID)).
		OrderBy("requestedAt", firestore.Desc)
	snaps, err := collectSnapshots("refunds.list", txDocuments(ctx, query))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Refund, 0, len(snaps))
	for _, snap := range snaps {
		var doc refundDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("refunds.list", err)
		}
		out = append(out, doc.toDomain(snap.Ref.ID))
	}
	return out, nil
}
