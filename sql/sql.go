// Package sql defines the contract between parsed statements and
// the storage layer. A statement computes its result inside a
// transaction it does not own: the caller begins the transaction,
// runs one or more statements against it and decides whether to
// commit or cancel.
package sql

import (
	"context"

	"github.com/SpeedReach/surrealdb/kvs"
)

// Value is the result of computing a statement
type Value = interface{}

// Statement is an executable query statement
type Statement interface {
	// Writeable returns true if the statement may
	// update the datastore. A query that contains a
	// writeable statement runs in a write transaction.
	Writeable() bool
	// Compute executes the statement inside txn.
	// doc is the document currently being processed
	// when the statement runs as part of another one.
	// It is nil for top-level statements.
	Compute(ctx context.Context, opt *Options, txn *kvs.Transaction, doc *CursorDoc) (Value, error)
}

// CursorDoc is the record a statement is currently processing
type CursorDoc struct {
	ID  Thing
	Doc Document
}
