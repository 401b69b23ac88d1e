// Package memory implements an in-memory kv plugin.
//
// Committed state is a btree. Readers take an O(1) copy-on-write
// clone of it and never block. Writers are serialized: each one
// mutates its own clone and commit swaps it in.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/google/btree"
)

const (
	// DriverName is the name of this plugin
	DriverName  = "memory"
	btreeDegree = 32
	batchSize   = 64
)

// Plugins returns the plugins in this package
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&Plugin{},
	}
}

var _ kv.Plugin = (*Plugin)(nil)

// Plugin creates memory stores
type Plugin struct {
}

// Name implements kv.Plugin
func (plugin *Plugin) Name() string {
	return DriverName
}

// NewStore implements kv.Plugin. It accepts no options.
func (plugin *Plugin) NewStore(options kv.PluginOptions) (kv.Store, error) {
	return New(), nil
}

// NewTempStore implements kv.Plugin
func (plugin *Plugin) NewTempStore() (kv.Store, error) {
	return New(), nil
}

type item struct {
	key   []byte
	value []byte
}

func (i *item) Less(than btree.Item) bool {
	return bytes.Compare(i.key, than.(*item).key) < 0
}

var _ kv.Store = (*Store)(nil)
var _ kv.Locker = (*Store)(nil)

// Store is an in-memory store
type Store struct {
	mu     sync.Mutex
	tree   *btree.BTree
	closed bool
	writer chan struct{}
}

// New creates an empty store
func New() *Store {
	return &Store{
		tree:   btree.New(btreeDegree),
		writer: make(chan struct{}, 1),
	}
}

// Begin implements kv.Store. Read-write transactions
// wait for the previous writer to finish.
func (store *Store) Begin(ctx context.Context, writable bool) (kv.Transaction, error) {
	if writable {
		select {
		case store.writer <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if store.closed {
		if writable {
			<-store.writer
		}

		return nil, kv.ErrClosed
	}

	return &transaction{store: store, tree: store.tree.Clone(), writable: writable}, nil
}

// BeginLocked implements kv.Locker. Writers are already
// exclusive so this is the same as Begin(ctx, true).
func (store *Store) BeginLocked(ctx context.Context) (kv.Transaction, error) {
	return store.Begin(ctx, true)
}

// Close implements kv.Store
func (store *Store) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.closed = true

	return nil
}

// Delete implements kv.Store
func (store *Store) Delete() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.closed = true
	store.tree = btree.New(btreeDegree)

	return nil
}

var _ kv.Transaction = (*transaction)(nil)

type transaction struct {
	store    *Store
	tree     *btree.BTree
	writable bool
	done     bool
}

func (txn *transaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	if txn.done {
		return nil, kv.ErrTxDone
	}

	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}

	i := txn.tree.Get(&item{key: key})

	if i == nil {
		return nil, nil
	}

	return kv.Copy(i.(*item).value), nil
}

func (txn *transaction) Keys(ctx context.Context, r keys.Range) (kv.Iterator, error) {
	if txn.done {
		return nil, kv.ErrTxDone
	}

	return &iterator{tree: txn.tree, r: r}, nil
}

func (txn *transaction) Put(key, value []byte) error {
	if err := txn.checkUpdate(key); err != nil {
		return err
	}

	if value == nil {
		value = []byte{}
	}

	txn.tree.ReplaceOrInsert(&item{key: kv.Copy(key), value: kv.Copy(value)})

	return nil
}

func (txn *transaction) Delete(key []byte) error {
	if err := txn.checkUpdate(key); err != nil {
		return err
	}

	txn.tree.Delete(&item{key: key})

	return nil
}

func (txn *transaction) checkUpdate(key []byte) error {
	if txn.done {
		return kv.ErrTxDone
	}

	if !txn.writable {
		return kv.ErrReadOnly
	}

	return kv.CheckKey(key)
}

func (txn *transaction) Commit(ctx context.Context) error {
	if txn.done {
		return kv.ErrTxDone
	}

	txn.done = true

	if !txn.writable {
		return nil
	}

	defer func() { <-txn.store.writer }()

	txn.store.mu.Lock()
	defer txn.store.mu.Unlock()

	if txn.store.closed {
		return kv.ErrClosed
	}

	txn.store.tree = txn.tree

	return nil
}

func (txn *transaction) Rollback() error {
	if txn.done {
		return kv.ErrTxDone
	}

	txn.done = true

	if txn.writable {
		<-txn.store.writer
	}

	return nil
}

var _ kv.Iterator = (*iterator)(nil)

// iterator reads the tree in batches so that the
// transaction may update the tree between calls
// to Next
type iterator struct {
	tree  *btree.BTree
	r     keys.Range
	batch []kv.KV
	pos   int
	done  bool
}

func (iter *iterator) Next() bool {
	if iter.done {
		return false
	}

	iter.pos++

	if iter.pos < len(iter.batch) {
		return true
	}

	if iter.batch != nil && len(iter.batch) < batchSize {
		iter.finish()

		return false
	}

	if len(iter.batch) > 0 {
		iter.r = iter.r.After(iter.batch[len(iter.batch)-1].Key())
	}

	var batch []kv.KV

	iter.tree.AscendGreaterOrEqual(&item{key: iter.r.Min}, func(i btree.Item) bool {
		it := i.(*item)

		if !iter.r.Contains(it.key) {
			return false
		}

		batch = append(batch, kv.KV{it.key, it.value})

		return len(batch) < batchSize
	})

	if len(batch) == 0 {
		iter.finish()

		return false
	}

	iter.batch = batch
	iter.pos = 0

	return true
}

func (iter *iterator) finish() {
	iter.done = true
	iter.batch = nil
	iter.pos = 0
}

func (iter *iterator) Key() []byte {
	if iter.pos >= len(iter.batch) {
		return nil
	}

	return iter.batch[iter.pos].Key()
}

func (iter *iterator) Value() []byte {
	if iter.pos >= len(iter.batch) {
		return nil
	}

	return iter.batch[iter.pos].Value()
}

func (iter *iterator) Error() error {
	return nil
}
