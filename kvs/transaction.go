package kvs

import (
	"bytes"
	"context"
	"sync"

	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/SpeedReach/surrealdb/utils/stream"
	"go.uber.org/zap"
)

type state int

const (
	active state = iota
	committed
	cancelled
)

// Transaction is one unit of atomic work. It starts active
// and ends either committed or cancelled. Once it has ended
// every method returns ErrTransactionFinished. Callers must
// end every transaction they begin, usually with a deferred
// Cancel which is harmless after Commit.
type Transaction struct {
	backend string
	txn     kv.Transaction
	write   bool
	lock    bool
	logger  *zap.Logger

	mu    sync.Mutex
	state state
}

// Writeable returns true for read-write transactions
func (txn *Transaction) Writeable() bool {
	return txn.write
}

// Locked returns true if this transaction excludes other writers
func (txn *Transaction) Locked() bool {
	return txn.lock
}

// Finished returns true once the transaction was
// committed or cancelled
func (txn *Transaction) Finished() bool {
	txn.mu.Lock()
	defer txn.mu.Unlock()

	return txn.state != active
}

func (txn *Transaction) check() error {
	if txn.state != active {
		return ErrTransactionFinished
	}

	return nil
}

func (txn *Transaction) checkWrite() error {
	if err := txn.check(); err != nil {
		return err
	}

	if !txn.write {
		return ErrReadOnly
	}

	return nil
}

// Get returns the value of key or nil if it does not exist.
// It observes this transaction's own updates.
func (txn *Transaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	txn.mu.Lock()
	defer txn.mu.Unlock()

	return txn.get(ctx, key)
}

func (txn *Transaction) get(ctx context.Context, key []byte) ([]byte, error) {
	if err := txn.check(); err != nil {
		return nil, err
	}

	value, err := txn.txn.Get(ctx, key)

	if err != nil {
		return nil, wrapError(txn.backend, "get", err)
	}

	return value, nil
}

// Exists returns true if key exists
func (txn *Transaction) Exists(ctx context.Context, key []byte) (bool, error) {
	value, err := txn.Get(ctx, key)

	if err != nil {
		return false, err
	}

	return value != nil, nil
}

// Set stages an update of key to value
func (txn *Transaction) Set(key, value []byte) error {
	txn.mu.Lock()
	defer txn.mu.Unlock()

	return txn.set(key, value)
}

func (txn *Transaction) set(key, value []byte) error {
	if err := txn.checkWrite(); err != nil {
		return err
	}

	return wrapError(txn.backend, "set", txn.txn.Put(key, value))
}

// Del stages a delete of key
func (txn *Transaction) Del(key []byte) error {
	txn.mu.Lock()
	defer txn.mu.Unlock()

	return txn.del(key)
}

func (txn *Transaction) del(key []byte) error {
	if err := txn.checkWrite(); err != nil {
		return err
	}

	return wrapError(txn.backend, "delete", txn.txn.Delete(key))
}

// Put inserts key. It fails with ErrKeyAlreadyExists
// if the key exists.
func (txn *Transaction) Put(ctx context.Context, key, value []byte) error {
	return txn.PutC(ctx, key, value, nil)
}

// PutC updates key only if its current value equals check.
// A nil check requires the key not to exist. It fails with
// ErrConditionNotMet otherwise, or ErrKeyAlreadyExists when
// check is nil and the key exists.
func (txn *Transaction) PutC(ctx context.Context, key, value, check []byte) error {
	txn.mu.Lock()
	defer txn.mu.Unlock()

	if err := txn.checkWrite(); err != nil {
		return err
	}

	current, err := txn.get(ctx, key)

	if err != nil {
		return err
	}

	switch {
	case check == nil && current != nil:
		return ErrKeyAlreadyExists
	case check != nil && (current == nil || !bytes.Equal(current, check)):
		return ErrConditionNotMet
	}

	return txn.set(key, value)
}

// DelC deletes key only if its current value equals check.
// A nil check requires the key not to exist.
func (txn *Transaction) DelC(ctx context.Context, key, check []byte) error {
	txn.mu.Lock()
	defer txn.mu.Unlock()

	if err := txn.checkWrite(); err != nil {
		return err
	}

	current, err := txn.get(ctx, key)

	if err != nil {
		return err
	}

	switch {
	case check == nil && current != nil:
		return ErrConditionNotMet
	case check != nil && (current == nil || !bytes.Equal(current, check)):
		return ErrConditionNotMet
	}

	return txn.del(key)
}

// Scan returns an iterator over the keys inside r in ascending
// order. It observes this transaction's own updates. The iterator
// fails with ErrTransactionFinished once the transaction ends.
func (txn *Transaction) Scan(ctx context.Context, r keys.Range) (*Iterator, error) {
	txn.mu.Lock()
	defer txn.mu.Unlock()

	if err := txn.check(); err != nil {
		return nil, err
	}

	iter, err := txn.txn.Keys(ctx, r)

	if err != nil {
		return nil, wrapError(txn.backend, "scan", err)
	}

	return &Iterator{txn: txn, iter: iter}, nil
}

// GetRange returns up to limit key-value pairs inside r in
// ascending order. limit <= 0 means no limit.
func (txn *Transaction) GetRange(ctx context.Context, r keys.Range, limit int) ([]kv.KV, error) {
	iter, err := txn.Scan(ctx, r)

	if err != nil {
		return nil, err
	}

	defer iter.Close()

	return stream.Collect(stream.Pipeline(kv.Stream(iter), stream.Limit[kv.KV](limit)))
}

// Commit applies every staged update atomically. On optimistic
// backends it fails with ErrConflict if a concurrent transaction
// committed a change to something this one read or wrote, in
// which case nothing is applied. The transaction has ended when
// Commit returns, whether or not it succeeded.
func (txn *Transaction) Commit(ctx context.Context) error {
	txn.mu.Lock()
	defer txn.mu.Unlock()

	if err := txn.check(); err != nil {
		return err
	}

	txn.state = committed

	if err := txn.txn.Commit(ctx); err != nil {
		txn.state = cancelled
		txn.logger.Debug("commit failed", zap.Error(err))

		return wrapError(txn.backend, "commit", err)
	}

	txn.logger.Debug("committed")

	return nil
}

// Cancel discards every staged update. It never fails because
// of conflicts and is the way to end a read-only transaction.
func (txn *Transaction) Cancel() error {
	txn.mu.Lock()
	defer txn.mu.Unlock()

	if err := txn.check(); err != nil {
		return err
	}

	txn.state = cancelled
	err := txn.txn.Rollback()
	txn.logger.Debug("cancelled", zap.Error(err))

	return wrapError(txn.backend, "cancel", err)
}

// Iterator iterates over a range of keys inside a transaction
type Iterator struct {
	txn    *Transaction
	iter   kv.Iterator
	err    error
	closed bool
}

// Next advances to the next key. It returns false at the
// end of the range or on error.
func (iter *Iterator) Next() bool {
	if iter.closed || iter.err != nil {
		return false
	}

	iter.txn.mu.Lock()
	defer iter.txn.mu.Unlock()

	if err := iter.txn.check(); err != nil {
		iter.err = err

		return false
	}

	if iter.iter.Next() {
		return true
	}

	if err := iter.iter.Error(); err != nil {
		iter.err = wrapError(iter.txn.backend, "scan", err)
	}

	return false
}

// Key returns the current key
func (iter *Iterator) Key() []byte {
	return iter.iter.Key()
}

// Value returns the current value
func (iter *Iterator) Value() []byte {
	return iter.iter.Value()
}

// Error returns the error that stopped iteration, if any
func (iter *Iterator) Error() error {
	return iter.err
}

// Close stops iteration
func (iter *Iterator) Close() {
	iter.closed = true
}
