// Package mvcc implements an in-memory multi-version key-value
// store with optimistic concurrency control.
//
// Every committed transaction creates a new revision. Transactions
// read the snapshot of the store as of the newest revision when they
// began and stage their updates privately. Commit checks that no key
// the transaction read, scanned or wrote has a version newer than its
// snapshot and fails with ErrConflict otherwise. Old versions are kept
// until Compact discards the ones no open transaction can observe.
package mvcc

import (
	"bytes"
	"context"
	"math"
	"sync"

	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/google/btree"
)

const btreeDegree = 32

// version is one revision of one key. Versions sort
// by key ascending then by revision descending so
// that the newest version of a key comes first.
type version struct {
	key      []byte
	revision int64
	value    []byte
	deleted  bool
}

func (v *version) Less(than btree.Item) bool {
	other := than.(*version)

	if cmp := bytes.Compare(v.key, other.key); cmp != 0 {
		return cmp < 0
	}

	return v.revision > other.revision
}

// Store is a multi-version key-value store
type Store struct {
	mu       sync.RWMutex
	tree     *btree.BTree
	revision int64
	readers  map[int64]int
	closed   bool
	// gate is held while a commit is applied and for the
	// whole life of a locked transaction
	gate chan struct{}
}

// New creates an empty store
func New() *Store {
	return &Store{
		tree:    btree.New(btreeDegree),
		readers: make(map[int64]int),
		gate:    make(chan struct{}, 1),
	}
}

// Begin starts a transaction reading from the newest revision.
// Read-only transactions never conflict.
func (store *Store) Begin(ctx context.Context, writable bool) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return store.begin(writable, false)
}

// BeginLocked starts a read-write transaction that excludes
// every other commit until it finishes. It blocks until
// the gate is free or ctx is done.
func (store *Store) BeginLocked(ctx context.Context) (*Transaction, error) {
	if err := store.acquire(ctx); err != nil {
		return nil, err
	}

	txn, err := store.begin(true, true)

	if err != nil {
		store.release()

		return nil, err
	}

	return txn, nil
}

func (store *Store) begin(writable bool, locked bool) (*Transaction, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.closed {
		return nil, ErrClosed
	}

	store.readers[store.revision]++

	txn := &Transaction{
		store:    store,
		start:    store.revision,
		writable: writable,
		locked:   locked,
	}

	if writable {
		txn.buffer = kv.NewBuffer()
		txn.reads = make(map[string]struct{})
	}

	return txn, nil
}

// Close closes the store. Open transactions fail with
// ErrClosed on their next operation.
func (store *Store) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.closed = true
	store.tree.Clear(false)

	return nil
}

// Compact discards every version that no open transaction
// can observe and returns the number of versions discarded.
// The newest version of each key at or below the oldest open
// snapshot is kept unless it is a delete.
func (store *Store) Compact(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if store.closed {
		return 0, ErrClosed
	}

	safe := store.revision

	for start := range store.readers {
		if start < safe {
			safe = start
		}
	}

	var garbage []btree.Item
	var currentKey []byte
	var foundSnapshot bool

	store.tree.Ascend(func(i btree.Item) bool {
		v := i.(*version)

		if currentKey == nil || !bytes.Equal(v.key, currentKey) {
			currentKey = v.key
			foundSnapshot = false
		}

		if v.revision > safe {
			return true
		}

		if foundSnapshot || v.deleted {
			garbage = append(garbage, i)
		}

		foundSnapshot = true

		return true
	})

	for _, i := range garbage {
		store.tree.Delete(i)
	}


	return len(garbage), nil
}

func (store *Store) acquire(ctx context.Context) error {
	select {
	case store.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (store *Store) release() {
	<-store.gate
}

func (store *Store) finish(start int64) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.readers[start]--

	if store.readers[start] <= 0 {
		delete(store.readers, start)
	}
}

// get returns the value of key as of revision
func (store *Store) get(key []byte, revision int64) ([]byte, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if store.closed {
		return nil, ErrClosed
	}

	var found *version

	store.tree.AscendGreaterOrEqual(&version{key: key, revision: revision}, func(i btree.Item) bool {
		v := i.(*version)

		if bytes.Equal(v.key, key) {
			found = v
		}

		return false
	})

	if found == nil || found.deleted {
		return nil, nil
	}

	return kv.Copy(found.value), nil
}

// scan returns up to limit live keys inside r as of revision
func (store *Store) scan(r keys.Range, revision int64, limit int) ([]kv.KV, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if store.closed {
		return nil, ErrClosed
	}

	var kvs []kv.KV
	var lastKey []byte

	store.tree.AscendGreaterOrEqual(&version{key: r.Min, revision: math.MaxInt64}, func(i btree.Item) bool {
		v := i.(*version)

		if !r.Contains(v.key) {
			return false
		}

		if v.revision > revision || lastKey != nil && bytes.Equal(v.key, lastKey) {
			return true
		}

		lastKey = v.key

		if !v.deleted {
			kvs = append(kvs, kv.KV{kv.Copy(v.key), kv.Copy(v.value)})
		}

		return len(kvs) < limit
	})

	return kvs, nil
}

// changedSince returns true if key has a version newer than revision.
// The caller must hold the lock.
func (store *Store) changedSince(key []byte, revision int64) bool {
	changed := false

	store.tree.AscendGreaterOrEqual(&version{key: key, revision: math.MaxInt64}, func(i btree.Item) bool {
		v := i.(*version)
		changed = bytes.Equal(v.key, key) && v.revision > revision

		return false
	})

	return changed
}

// rangeChangedSince returns true if any key inside r has a
// version newer than revision. The caller must hold the lock.
func (store *Store) rangeChangedSince(r keys.Range, revision int64) bool {
	changed := false

	store.tree.AscendGreaterOrEqual(&version{key: r.Min, revision: math.MaxInt64}, func(i btree.Item) bool {
		v := i.(*version)

		if !r.Contains(v.key) {
			return false
		}

		changed = v.revision > revision

		return !changed
	})

	return changed
}
