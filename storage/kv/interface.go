package kv

import (
	"context"
	"errors"

	"github.com/SpeedReach/surrealdb/storage/kv/keys"
)

var (
	// ErrClosed indicates that the store was closed
	ErrClosed = errors.New("store was closed")
	// ErrConflict indicates that a transaction could not commit because
	// data it depends on was modified by a concurrent transaction
	ErrConflict = errors.New("transaction conflicts with a concurrent transaction")
	// ErrReadOnly indicates that an update was attempted inside a
	// read-only transaction
	ErrReadOnly = errors.New("transaction is read-only")
	// ErrKeyRequired indicates that a nil or empty key was used
	ErrKeyRequired = errors.New("key must not be empty")
	// ErrTxDone indicates that the transaction was already committed
	// or rolled back
	ErrTxDone = errors.New("transaction has already been committed or rolled back")
	// ErrUnavailable indicates that the engine could not be reached
	ErrUnavailable = errors.New("store is unavailable")
)

// OptionNodeID is the plugin option carrying the identifier
// of the node that opens the store.
const OptionNodeID = "node"

// KV is a key-value pair
type KV [2][]byte

// Key returns the key
func (kv KV) Key() []byte {
	return kv[0]
}

// Value returns the value
func (kv KV) Value() []byte {
	return kv[1]
}

// Plugin represents a kv storage plugin
type Plugin interface {
	// Name returns the name of the storage plugin
	Name() string
	// NewStore returns an instance of the plugin store
	// configured by options. It must return an error wrapping
	// ErrUnavailable if the engine cannot be reached.
	NewStore(options PluginOptions) (Store, error)
	// NewTempStore returns an instance of the plugin store
	// initialized with some sane defaults. It is meant for
	// tests that need an initialized instance of the plugin's
	// store without knowing how to initialize it
	NewTempStore() (Store, error)
}

// Store is one configured instance of a storage engine
type Store interface {
	// Begin starts a transaction. writable should be
	// true for read-write transactions and false for read-only
	// transactions. Begin may block until ctx is done on drivers
	// that serialize writers. It must return ErrClosed if it is
	// called after Close.
	Begin(ctx context.Context, writable bool) (Transaction, error)
	// Close closes the store. Transactions that are still open
	// when Close is called may fail with ErrClosed.
	Close() error
	// Delete closes then deletes this store and all its contents.
	Delete() error
}

// Locker is implemented by stores that can begin a read-write
// transaction that is exclusive against every other writer
// for as long as it stays open. A locked transaction never
// fails to commit with ErrConflict.
type Locker interface {
	BeginLocked(ctx context.Context) (Transaction, error)
}

// Compactor is implemented by stores that retain old versions
// of keys and can discard the ones no open transaction can read.
type Compactor interface {
	// Compact returns the number of versions that were discarded
	Compact(ctx context.Context) (int, error)
}

// MapUpdater is an interface for updating a sorted
// key-value map
type MapUpdater interface {
	// Put puts a key. Put must return ErrKeyRequired
	// if key is nil or empty. A nil value is stored
	// as an empty value.
	Put(key, value []byte) error
	// Delete deletes a key. It must return ErrKeyRequired if the key
	// is nil or empty. If the key doesn't exist it has no effect
	// and returns nil.
	Delete(key []byte) error
}

// MapReader is an interface for reading a sorted
// key-value map
type MapReader interface {
	// Get gets a key. It must observe updates to that key made
	// previously by this transation. Get must return ErrKeyRequired
	// if the key is nil or empty. It must return nil if the
	// requested key does not exist. The returned slice remains
	// valid after the transaction ends.
	Get(ctx context.Context, key []byte) ([]byte, error)
	// Keys creates an iterator that iterates over the range
	// of keys in ascending order. It must observe updates made
	// previously by this transaction.
	Keys(ctx context.Context, keys keys.Range) (Iterator, error)
}

// Map combines MapReader and MapUpdater
type Map interface {
	MapUpdater
	MapReader
}

// Transaction is a transaction on a store. It must only be
// used by one goroutine at a time. Put and Delete must return
// ErrReadOnly on read-only transactions. Every method must return
// ErrTxDone once Commit or Rollback has been called.
type Transaction interface {
	Map
	// Commit commits the transaction. Optimistic drivers return
	// ErrConflict if the transaction conflicts with another one
	// that committed first, in which case none of its updates are
	// applied and the transaction is finished.
	Commit(ctx context.Context) error
	// Rollback rolls back the transaction
	Rollback() error
}

// Iterator iterates over a set of keys. It must only be
// used by one goroutine at a time. Consumers should not
// attempt to use an iterator once its parent transaction
// has been rolled back. Behavior is undefined in this case.
// Iterators must tolerate updates made by their transaction
// while they are in use, although it is undefined whether
// such updates are observed.
type Iterator interface {
	// Next advances the iterator to the next key
	// A fresh iterator must call Next once to
	// advance to the first key. Next returns false
	// if there is no next key or if it encounters an
	// error.
	Next() bool
	// Key returns the current key
	Key() []byte
	// Value returns the current value
	Value() []byte
	// Error returns the error, if any.
	Error() error
}

// CheckKey returns ErrKeyRequired if key is empty
func CheckKey(key []byte) error {
	if len(key) == 0 {
		return ErrKeyRequired
	}

	return nil
}

// Copy returns a copy of b. It returns nil if b is nil.
func Copy(b []byte) []byte {
	if b == nil {
		return nil
	}

	c := make([]byte, len(b))
	copy(c, b)

	return c
}
