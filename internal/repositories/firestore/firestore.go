// Package firestore implements the repository registry on Cloud Firestore.
//
// Every repository honours the ambient transaction placed on the context by
// Registry.RunInTx: reads and writes issued inside a unit of work go through
// the shared *firestore.Transaction, everything else runs standalone. Firestore
// requires all transactional reads to happen before the first write, which the
// service layer already guarantees.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	pfirestore "github.com/orderlane/api/internal/platform/firestore"
	"github.com/orderlane/api/internal/platform/pagination"
	"github.com/orderlane/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	inventoryCollection    = "inventory"
	movementsCollection    = "inventoryMovements"
	cancellationCollection = "cancellations"
	refundsCollection      = "refunds"
	shipmentsCollection    = "shipments"
	auditTrailCollection   = "auditTrail"
	countersCollection     = "counters"
	catalogCollection      = "catalogSkus"
)

// queryWindow bounds page sizes applied to Firestore list queries.
var queryWindow = pagination.Window{Default: 50, Max: 200}

// collectionRef resolves a top-level collection through the provider.
func collectionRef(ctx context.Context, provider *pfirestore.Provider, name string) (*firestore.CollectionRef, error) {
	client, err := provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(name), nil
}

// txGet reads one document, joining the ambient transaction when present.
func txGet(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Get(ref)
	}
	return ref.Get(ctx)
}

// txCreate writes a new document, failing when it already exists.
func txCreate(ctx context.Context, ref *firestore.DocumentRef, value any) error {
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Create(ref, value)
	}
	_, err := ref.Create(ctx, value)
	return err
}

// txSet upserts a document, joining the ambient transaction when present.
func txSet(ctx context.Context, ref *firestore.DocumentRef, value any) error {
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Set(ref, value)
	}
	_, err := ref.Set(ctx, value)
	return err
}

// txDocuments runs the query through the ambient transaction when present.
func txDocuments(ctx context.Context, query firestore.Query) *firestore.DocumentIterator {
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Documents(query)
	}
	return query.Documents(ctx)
}

// collectSnapshots drains the iterator, wrapping backend failures.
func collectSnapshots(op string, iter *firestore.DocumentIterator) ([]*firestore.DocumentSnapshot, error) {
	defer iter.Stop()

	var snaps []*firestore.DocumentSnapshot
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError(op, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func normalizePageSize(size int) int {
	return queryWindow.Clamp(size)
}

// decodeCursor parses the opaque page token, mapping malformed tokens onto the
// repository error taxonomy so handlers can answer with a client error.
func decodeCursor(token string) (pagination.Cursor, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return pagination.Cursor{}, repositories.NewError(repositories.ErrorInvalidState, "invalid page token", err)
	}
	return cursor, nil
}

// encodeCursor builds the continuation token from the sort values of the last
// document on the page.
func encodeCursor(startAfter ...any) (string, error) {
	token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: startAfter})
	if err != nil {
		return "", fmt.Errorf("firestore: encode page token: %w", err)
	}
	return token, nil
}

func notFoundError(entity, id string) error {
	return repositories.NewError(repositories.ErrorNotFound, fmt.Sprintf("%s %s not found", entity, strings.TrimSpace(id)), nil)
}

func conflictError(message string, err error) error {
	return repositories.NewError(repositories.ErrorConflict, message, err)
}
