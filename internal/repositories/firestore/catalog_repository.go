package firestore

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/orderlane/api/internal/domain"
	pfirestore "github.com/orderlane/api/internal/platform/firestore"
	"github.com/orderlane/api/internal/repositories"
)

// CatalogRepository is the read-only view onto the catalog collaborator's
// SKU documents. This engine never writes to the collection.
type CatalogRepository struct {
	base *pfirestore.BaseRepository[catalogSKUDocument]
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository constructs the Firestore backed catalog view.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[catalogSKUDocument](provider, catalogCollection, nil, nil)
	return &CatalogRepository{base: base}, nil
}

type catalogSKUDocument struct {
	Code   string `firestore:"code"`
	Name   string `firestore:"name"`
	Active bool   `firestore:"active"`
}

// GetSKU loads one sellable variant by reference.
func (r *CatalogRepository) GetSKU(ctx context.Context, skuRef string) (domain.CatalogSKU, error) {
	ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(skuRef))
	if err != nil {
		return domain.CatalogSKU{}, err
	}
	snap, err := txGet(ctx, ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.CatalogSKU{}, notFoundError("sku", skuRef)
		}
		return domain.CatalogSKU{}, pfirestore.WrapError("catalog.get_sku", err)
	}
	var doc catalogSKUDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.CatalogSKU{}, pfirestore.WrapError("catalog.get_sku", err)
	}
	return domain.CatalogSKU{
		Ref:    snap.Ref.ID,
		Code:   doc.Code,
		Name:   doc.Name,
		Active: doc.Active,
	}, nil
}
