// Package mvcc implements a kv plugin over the in-process
// multi-version store. Stores are named so that several
// consumers in one process can open the same one.
package mvcc

import (
	"context"
	"fmt"
	"sync"

	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	engine "github.com/SpeedReach/surrealdb/storage/mvcc"
	"github.com/SpeedReach/surrealdb/utils/uuid"
)

const (
	// DriverName is the name of this plugin
	DriverName = "mvcc"
	// OptionName names the store. Opening the same
	// name twice returns a handle to the same store.
	OptionName = "name"
)

var (
	mu     sync.Mutex
	shared = map[string]*sharedStore{}
)

type sharedStore struct {
	store *engine.Store
	refs  int
}

// Plugins returns the plugins in this package
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&Plugin{},
	}
}

var _ kv.Plugin = (*Plugin)(nil)

// Plugin creates mvcc stores
type Plugin struct {
}

// Name implements kv.Plugin
func (plugin *Plugin) Name() string {
	return DriverName
}

// NewStore implements kv.Plugin
func (plugin *Plugin) NewStore(options kv.PluginOptions) (kv.Store, error) {
	name, err := options.String(OptionName, "")

	if err != nil {
		return nil, err
	}

	if name == "" {
		return nil, fmt.Errorf("%q is required", OptionName)
	}

	return Open(name), nil
}

// NewTempStore implements kv.Plugin
func (plugin *Plugin) NewTempStore() (kv.Store, error) {
	return plugin.NewStore(kv.PluginOptions{OptionName: fmt.Sprintf("temp-%s", uuid.MustUUID())})
}

// Open returns a handle to the store called name,
// creating it if this is the first open handle
func Open(name string) *Store {
	mu.Lock()
	defer mu.Unlock()

	s, ok := shared[name]

	if !ok {
		s = &sharedStore{store: engine.New()}
		shared[name] = s
	}

	s.refs++

	return &Store{name: name, store: s.store}
}

var _ kv.Store = (*Store)(nil)
var _ kv.Locker = (*Store)(nil)
var _ kv.Compactor = (*Store)(nil)

// Store is a handle to a shared mvcc store
type Store struct {
	name   string
	store  *engine.Store
	closed bool
}

// Begin implements kv.Store
func (store *Store) Begin(ctx context.Context, writable bool) (kv.Transaction, error) {
	if store.isClosed() {
		return nil, kv.ErrClosed
	}

	txn, err := store.store.Begin(ctx, writable)

	if err != nil {
		return nil, wrapError(err)
	}

	return &transaction{txn: txn}, nil
}

// BeginLocked implements kv.Locker
func (store *Store) BeginLocked(ctx context.Context) (kv.Transaction, error) {
	if store.isClosed() {
		return nil, kv.ErrClosed
	}

	txn, err := store.store.BeginLocked(ctx)

	if err != nil {
		return nil, wrapError(err)
	}

	return &transaction{txn: txn}, nil
}

// Compact implements kv.Compactor
func (store *Store) Compact(ctx context.Context) (int, error) {
	if store.isClosed() {
		return 0, kv.ErrClosed
	}

	n, err := store.store.Compact(ctx)

	return n, wrapError(err)
}

func (store *Store) isClosed() bool {
	mu.Lock()
	defer mu.Unlock()

	return store.closed
}

// Close releases this handle. The store itself is
// closed when its last handle is closed.
func (store *Store) Close() error {
	mu.Lock()
	defer mu.Unlock()

	if store.closed {
		return nil
	}

	store.closed = true
	s, ok := shared[store.name]

	if !ok || s.store != store.store {
		return nil
	}

	s.refs--

	if s.refs > 0 {
		return nil
	}

	delete(shared, store.name)

	return store.store.Close()
}

// Delete closes the store for every handle and discards it
func (store *Store) Delete() error {
	mu.Lock()
	defer mu.Unlock()

	store.closed = true

	if s, ok := shared[store.name]; ok && s.store == store.store {
		delete(shared, store.name)
	}

	return store.store.Close()
}

func wrapError(err error) error {
	switch err {
	case engine.ErrClosed:
		return kv.ErrClosed
	case engine.ErrConflict:
		return kv.ErrConflict
	case engine.ErrReadOnly:
		return kv.ErrReadOnly
	case engine.ErrTxDone:
		return kv.ErrTxDone
	case engine.ErrKeyRequired:
		return kv.ErrKeyRequired
	}

	return err
}

var _ kv.Transaction = (*transaction)(nil)

type transaction struct {
	txn *engine.Transaction
}

func (txn *transaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	value, err := txn.txn.Get(ctx, key)

	return value, wrapError(err)
}

func (txn *transaction) Keys(ctx context.Context, r keys.Range) (kv.Iterator, error) {
	iter, err := txn.txn.Keys(ctx, r)

	if err != nil {
		return nil, wrapError(err)
	}

	return &iterator{Iterator: iter}, nil
}

func (txn *transaction) Put(key, value []byte) error {
	return wrapError(txn.txn.Put(key, value))
}

func (txn *transaction) Delete(key []byte) error {
	return wrapError(txn.txn.Delete(key))
}

func (txn *transaction) Commit(ctx context.Context) error {
	return wrapError(txn.txn.Commit(ctx))
}

func (txn *transaction) Rollback() error {
	return wrapError(txn.txn.Rollback())
}

type iterator struct {
	kv.Iterator
}

func (iter *iterator) Error() error {
	return wrapError(iter.Iterator.Error())
}
