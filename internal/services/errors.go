package services

import (
	"errors"
	"fmt"

	"github.com/orderlane/api/internal/repositories"
)

var (
	// ErrInvalidInput signals the caller provided invalid data.
	ErrInvalidInput = errors.New("order engine: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrItemNotFound indicates the line item does not exist on the order.
	ErrItemNotFound = errors.New("order item: not found")
	// ErrSKUNotFound indicates the catalog or ledger has no such SKU.
	ErrSKUNotFound = errors.New("sku: not found")
	// ErrCancellationNotFound indicates the cancellation could not be located.
	ErrCancellationNotFound = errors.New("cancellation: not found")
	// ErrRefundNotFound indicates the refund could not be located.
	ErrRefundNotFound = errors.New("refund: not found")
	// ErrShipmentNotFound indicates the shipment could not be located.
	ErrShipmentNotFound = errors.New("shipment: not found")
	// ErrInvalidTransition indicates a state machine rejected the requested move.
	ErrInvalidTransition = errors.New("order engine: invalid transition")
	// ErrConflict indicates duplicates or concurrent-edit collisions: a second
	// item for the same SKU, a second open cancellation, an over-refund, or an
	// optimistic concurrency failure.
	ErrConflict = errors.New("order engine: conflict")
	// ErrInsufficientStock indicates available inventory cannot satisfy a reservation.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrForbidden indicates the actor has no rights over the target order.
	ErrForbidden = errors.New("order engine: forbidden")
	// ErrInternalConsistency indicates an invariant such as negative inventory
	// was about to be violated. It always aborts the enclosing transaction and
	// is never retried.
	ErrInternalConsistency = errors.New("order engine: internal consistency violation")
)

// mapRepositoryError folds categorised persistence failures into the package
// sentinels. notFound names the entity-specific sentinel for missing rows.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order engine: repository unavailable: %w", err)
		}
	}

	return err
}
