package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/orderlane/api/internal/platform/firestore"
	"github.com/orderlane/api/internal/repositories"
)

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	MaxValue     *int64    `firestore:"maxValue,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository hands out transaction-safe sequence numbers for order and
// shipment numbering.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs the Firestore backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[counterDocument](provider, countersCollection, nil, nil)
	return &CounterRepository{provider: provider, counters: base}, nil
}

// Next atomically increments the counter and returns the new value. Callers
// issue Next before opening their unit of work: a Firestore transaction must
// read before it writes, so joining one mid-flight is not supported here.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewError(repositories.ErrorInvalidState, "counter id is required", nil)
	}
	if step <= 0 {
		return 0, repositories.NewError(repositories.ErrorInvalidState, fmt.Sprintf("counter step must be positive, got %d", step), nil)
	}

	var next int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		value, err := r.advance(ctx, tx, id, step)
		if err != nil {
			return err
		}
		next = value
		return nil
	})
	if err != nil {
		var repoErr *repositories.Error
		if errors.As(err, &repoErr) {
			return 0, err
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return next, nil
}

func (r *CounterRepository) advance(ctx context.Context, tx *firestore.Transaction, id string, step int64) (int64, error) {
	ref, err := r.counters.DocumentRef(ctx, id)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()

	snapshot, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		doc := counterDocument{CurrentValue: step, UpdatedAt: now}
		if err := tx.Create(ref, doc); err != nil {
			return 0, err
		}
		return doc.CurrentValue, nil
	}
	if err != nil {
		return 0, err
	}

	var doc counterDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return 0, fmt.Errorf("firestore counters decode %s: %w", id, err)
	}

	value := doc.CurrentValue + step
	if doc.MaxValue != nil && value > *doc.MaxValue {
		return 0, repositories.NewError(repositories.ErrorExhausted, fmt.Sprintf("counter %s exceeded max value %d", id, *doc.MaxValue), nil)
	}

	doc.CurrentValue = value
	doc.UpdatedAt = now
	if err := tx.Set(ref, doc, firestore.MergeAll); err != nil {
		return 0, err
	}
	return value, nil
}
