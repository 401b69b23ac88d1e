package kvs

import (
	"context"
	"errors"
	"fmt"

	"github.com/SpeedReach/surrealdb/kvs/endpoint"
	"github.com/SpeedReach/surrealdb/storage/kv"
)

var (
	// ErrConnection is returned by Open when the backend
	// is unreachable or misconfigured
	ErrConnection = errors.New("could not connect to the datastore")
	// ErrConflict is returned by Commit when a concurrent transaction
	// changed data this transaction depends on. The whole transaction
	// should be retried.
	ErrConflict = errors.New("transaction conflict, retry the transaction")
	// ErrReadOnly is returned when a read-only transaction
	// attempts an update
	ErrReadOnly = errors.New("transaction is read-only")
	// ErrTransactionFinished is returned by every operation on a
	// transaction after it was committed or cancelled
	ErrTransactionFinished = errors.New("transaction is finished")
	// ErrUnsupported is returned when the backend lacks a
	// requested capability
	ErrUnsupported = errors.New("feature is not supported by this backend")
	// ErrKeyRequired is returned when a key is empty
	ErrKeyRequired = errors.New("key must not be empty")
	// ErrKeyAlreadyExists is returned by Put when the key exists
	ErrKeyAlreadyExists = errors.New("key already exists")
	// ErrConditionNotMet is returned by PutC and DelC when the
	// current value does not match the expected one
	ErrConditionNotMet = errors.New("value being checked was not correct")
	// ErrClosed is returned after the datastore was closed
	ErrClosed = errors.New("datastore is closed")
)

// Error is an engine error. It names the backend and the
// operation that failed.
type Error struct {
	Backend string
	Op      string
	Err     error
	kind    error
}

// Error implements error
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Backend, e.Op, e.Err)
}

// Unwrap returns the cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error this error was classified as
func (e *Error) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

// unsupported describes a missing capability. Its message
// is surfaced unchanged.
func unsupported(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

// wrapError translates an error from the kv layer into
// the errors of this package
func wrapError(backend string, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kv.ErrTxDone):
		return ErrTransactionFinished
	case errors.Is(err, kv.ErrReadOnly):
		return ErrReadOnly
	case errors.Is(err, kv.ErrKeyRequired):
		return ErrKeyRequired
	case errors.Is(err, kv.ErrConflict):
		return &Error{Backend: backend, Op: op, Err: err, kind: ErrConflict}
	case errors.Is(err, kv.ErrClosed):
		return &Error{Backend: backend, Op: op, Err: err, kind: ErrClosed}
	case errors.Is(err, kv.ErrUnavailable), errors.Is(err, endpoint.ErrUnknownScheme), errors.Is(err, endpoint.ErrInvalid):
		return &Error{Backend: backend, Op: op, Err: err, kind: ErrConnection}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	return &Error{Backend: backend, Op: op, Err: err}
}
