package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
)

type txKey struct{}

// WithTx records the active transaction on ctx. Repositories check for it so
// reads and writes issued inside a unit of work join the transaction instead
// of running standalone.
func WithTx(ctx context.Context, tx *firestore.Transaction) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the ambient transaction, if any.
func TxFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}
