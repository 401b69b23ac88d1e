package mvcc

import (
	"errors"
)

var (
	// ErrClosed indicates that the store was closed
	ErrClosed = errors.New("store was closed")
	// ErrConflict is returned by Commit when a key that the
	// transaction read, scanned or wrote was changed by a
	// transaction that committed after it began
	ErrConflict = errors.New("transaction conflicts with a newer revision")
	// ErrReadOnly is returned when a read-only transaction attempts an update operation
	ErrReadOnly = errors.New("transaction is read-only")
	// ErrTxDone is returned when a transaction is used after
	// it was committed or rolled back
	ErrTxDone = errors.New("transaction is done")
	// ErrKeyRequired is returned when an empty key is used
	ErrKeyRequired = errors.New("key must not be empty")
)
