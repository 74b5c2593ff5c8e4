package newrelic

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// ContextWithTxn will start a new transaction with the given name, using the provided
// *newrelic.Application value. If this value is nil, then an empty *newrelic.Transaction value
// will be created.
func ContextWithTxn(parent context.Context, name string, app *newrelic.Application) (context.Context, *newrelic.Transaction) {
	var txn *newrelic.Transaction
	if app == nil {
		txn = &newrelic.Transaction{}
	} else {
		txn = app.StartTransaction(name)
	}

	return newrelic.NewContext(parent, txn), txn
}

// DatastoreSegment starts a datastore segment on the transaction carried by
// ctx, if there is one.
func DatastoreSegment(ctx context.Context, product newrelic.DatastoreProduct, collection, operation string) *newrelic.DatastoreSegment {
	return &newrelic.DatastoreSegment{
		Product:    product,
		Collection: collection,
		Operation:  operation,
		StartTime:  newrelic.FromContext(ctx).StartSegmentNow(),
	}
}
