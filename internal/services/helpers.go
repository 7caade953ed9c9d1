package services

import (
	"context"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/orderlane/api/internal/domain"
)

// textPolicy strips all markup from free-text fields before they reach storage.
var textPolicy = bluemonday.StrictPolicy()

func sanitizeText(value string) string {
	return strings.TrimSpace(textPolicy.Sanitize(value))
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// authorizeOrderAccess applies the ownership rules from the auth collaborator
// contract: customers act only on their own orders, sellers only on orders
// assigned to them, admins anywhere.
func authorizeOrderAccess(actor domain.Actor, order domain.Order) error {
	if !actor.Valid() {
		return ErrForbidden
	}
	switch actor.Type {
	case domain.ActorAdmin:
		return nil
	case domain.ActorCustomer:
		if order.CustomerID == actor.ID {
			return nil
		}
	case domain.ActorSeller:
		if order.SellerID != nil && *order.SellerID == actor.ID {
			return nil
		}
	}
	return ErrForbidden
}

func valuePtr[T any](v T) *T {
	return &v
}
