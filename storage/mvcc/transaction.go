package mvcc

import (
	"context"

	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/keys"
)

var _ kv.Transaction = (*Transaction)(nil)

// Transaction reads a snapshot of the store and stages
// its updates until it commits
type Transaction struct {
	store    *Store
	start    int64
	writable bool
	locked   bool
	done     bool
	buffer   *kv.Buffer
	reads    map[string]struct{}
	scans    []keys.Range
}

// Get reads key, observing updates staged by this transaction
func (txn *Transaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	if txn.done {
		return nil, ErrTxDone
	}

	if len(key) == 0 {
		return nil, ErrKeyRequired
	}

	if txn.writable {
		if value, deleted, ok := txn.buffer.Get(key); ok {
			if deleted {
				return nil, nil
			}

			return kv.Copy(value), nil
		}

		txn.reads[string(key)] = struct{}{}
	}

	return txn.store.get(key, txn.start)
}

// Keys iterates over r, observing updates staged by this transaction
func (txn *Transaction) Keys(ctx context.Context, r keys.Range) (kv.Iterator, error) {
	if txn.done {
		return nil, ErrTxDone
	}

	iter := &snapshotIterator{store: txn.store, r: r, revision: txn.start}

	if !txn.writable {
		return iter, nil
	}

	txn.scans = append(txn.scans, r)

	return kv.Merge(iter, txn.buffer.Range(r)), nil
}

// Put stages an update
func (txn *Transaction) Put(key, value []byte) error {
	if err := txn.checkUpdate(key); err != nil {
		return err
	}

	txn.buffer.Put(key, value)

	return nil
}

// Delete stages a delete
func (txn *Transaction) Delete(key []byte) error {
	if err := txn.checkUpdate(key); err != nil {
		return err
	}

	txn.buffer.Delete(key)

	return nil
}

func (txn *Transaction) checkUpdate(key []byte) error {
	if txn.done {
		return ErrTxDone
	}

	if !txn.writable {
		return ErrReadOnly
	}

	if len(key) == 0 {
		return ErrKeyRequired
	}

	return nil
}

// Commit applies the staged updates as a new revision. It returns
// ErrConflict and applies nothing if something this transaction
// depends on changed after it began. A transaction that staged
// nothing always commits.
func (txn *Transaction) Commit(ctx context.Context) error {
	if txn.done {
		return ErrTxDone
	}

	txn.done = true
	defer txn.store.finish(txn.start)

	if txn.locked {
		defer txn.store.release()
	}

	if !txn.writable || txn.buffer.Len() == 0 {
		return nil
	}

	if !txn.locked {
		if err := txn.store.acquire(ctx); err != nil {
			return err
		}

		defer txn.store.release()
	}

	store := txn.store
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.closed {
		return ErrClosed
	}

	if txn.conflicts() {
		return ErrConflict
	}

	store.revision++

	return txn.buffer.Each(func(key, value []byte, deleted bool) error {
		store.tree.ReplaceOrInsert(&version{key: key, revision: store.revision, value: value, deleted: deleted})

		return nil
	})
}

// conflicts must be called with the store lock held
func (txn *Transaction) conflicts() bool {
	if txn.store.revision == txn.start {
		return false
	}

	for key := range txn.reads {
		if txn.store.changedSince([]byte(key), txn.start) {
			return true
		}
	}

	for _, r := range txn.scans {
		if txn.store.rangeChangedSince(r, txn.start) {
			return true
		}
	}

	conflict := false

	txn.buffer.Each(func(key, value []byte, deleted bool) error {
		if txn.store.changedSince(key, txn.start) {
			conflict = true
		}

		return nil
	})

	return conflict
}

// Rollback discards the staged updates
func (txn *Transaction) Rollback() error {
	if txn.done {
		return ErrTxDone
	}

	txn.done = true
	txn.store.finish(txn.start)

	if txn.writable {
		txn.buffer.Reset()
	}

	if txn.locked {
		txn.store.release()
	}

	return nil
}

const scanBatchSize = 64

// snapshotIterator reads committed keys in batches
// so that it never holds the store lock between calls
// to Next
type snapshotIterator struct {
	store    *Store
	r        keys.Range
	revision int64
	batch    []kv.KV
	pos      int
	done     bool
	err      error
}

func (iter *snapshotIterator) Next() bool {
	if iter.done {
		return false
	}

	iter.pos++

	if iter.pos < len(iter.batch) {
		return true
	}

	if iter.batch != nil && len(iter.batch) < scanBatchSize {
		iter.finish(nil)

		return false
	}

	if len(iter.batch) > 0 {
		iter.r = iter.r.After(iter.batch[len(iter.batch)-1].Key())
	}

	batch, err := iter.store.scan(iter.r, iter.revision, scanBatchSize)

	if err != nil {
		iter.finish(err)

		return false
	}

	if len(batch) == 0 {
		iter.finish(nil)

		return false
	}

	iter.batch = batch
	iter.pos = 0

	return true
}

func (iter *snapshotIterator) finish(err error) {
	iter.done = true
	iter.err = err
	iter.batch = nil
	iter.pos = 0
}

func (iter *snapshotIterator) Key() []byte {
	if iter.pos >= len(iter.batch) {
		return nil
	}

	return iter.batch[iter.pos].Key()
}

func (iter *snapshotIterator) Value() []byte {
	if iter.pos >= len(iter.batch) {
		return nil
	}

	return iter.batch[iter.pos].Value()
}

func (iter *snapshotIterator) Error() error {
	return iter.err
}
