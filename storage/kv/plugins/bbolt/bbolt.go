// Package bbolt implements a kv plugin backed by a bbolt
// database file. bbolt allows one writer at a time and
// serves every reader from an MVCC snapshot.
package bbolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/SpeedReach/surrealdb/utils/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	// DriverName is the name of this plugin
	DriverName = "bbolt"
	// OptionPath is the path of the database file. Required.
	OptionPath = "path"
	// OptionTimeout is how long to wait for the file lock
	OptionTimeout = "timeout"
	// OptionNoSync skips fsync after every commit
	OptionNoSync = "nosync"
	// OptionInitialMmapSize sets the initial size of the memory map.
	// Growing the file past it needs a remap which has to wait for
	// every open read transaction.
	OptionInitialMmapSize = "mmap"
	// DefaultInitialMmapSize reserves enough address space that
	// commits do not remap while readers are open
	DefaultInitialMmapSize = 1 << 30
)

var rootBucket = []byte{0}

// Plugins returns the plugins in this package
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&Plugin{},
	}
}

var _ kv.Plugin = (*Plugin)(nil)

// Plugin creates bbolt stores
type Plugin struct {
}

// Name implements kv.Plugin
func (plugin *Plugin) Name() string {
	return DriverName
}

// NewStore implements kv.Plugin
func (plugin *Plugin) NewStore(options kv.PluginOptions) (kv.Store, error) {
	var config StoreConfig
	var err error

	if config.Path, err = options.String(OptionPath, ""); err != nil {
		return nil, err
	} else if config.Path == "" {
		return nil, fmt.Errorf("%q is required", OptionPath)
	}

	if config.Timeout, err = options.Duration(OptionTimeout, time.Second); err != nil {
		return nil, err
	}

	if config.NoSync, err = options.Bool(OptionNoSync, false); err != nil {
		return nil, err
	}

	if config.InitialMmapSize, err = options.Int(OptionInitialMmapSize, DefaultInitialMmapSize); err != nil {
		return nil, err
	}

	return New(config)
}

// NewTempStore implements kv.Plugin
func (plugin *Plugin) NewTempStore() (kv.Store, error) {
	return plugin.NewStore(kv.PluginOptions{
		OptionPath: filepath.Join(os.TempDir(), fmt.Sprintf("bbolt-%s", uuid.MustUUID())),
	})
}

// StoreConfig configures a bbolt store
type StoreConfig struct {
	Path            string
	Timeout         time.Duration
	NoSync          bool
	InitialMmapSize int
}

var _ kv.Store = (*Store)(nil)
var _ kv.Locker = (*Store)(nil)

// Store is a bbolt store
type Store struct {
	db *bolt.DB
	// writer lets Begin give up waiting for the
	// bbolt writer lock when ctx is done
	writer chan struct{}
}

// New opens the bbolt database at config.Path,
// creating it if it does not exist
func New(config StoreConfig) (*Store, error) {
	db, err := bolt.Open(config.Path, 0666, &bolt.Options{
		Timeout:         config.Timeout,
		NoSync:          config.NoSync,
		InitialMmapSize: config.InitialMmapSize,
	})

	if err != nil {
		return nil, fmt.Errorf("%w: could not open bbolt store at %s: %s", kv.ErrUnavailable, config.Path, err)
	}

	if err := db.Update(func(txn *bolt.Tx) error {
		_, err := txn.CreateBucketIfNotExists(rootBucket)

		return err
	}); err != nil {
		db.Close()

		return nil, fmt.Errorf("could not ensure root bucket exists: %s", err)
	}

	return &Store{db: db, writer: make(chan struct{}, 1)}, nil
}

// Begin implements kv.Store
func (store *Store) Begin(ctx context.Context, writable bool) (kv.Transaction, error) {
	if writable {
		select {
		case store.writer <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	txn, err := store.db.Begin(writable)

	if err != nil {
		if writable {
			<-store.writer
		}

		return nil, wrapError(err)
	}

	return &transaction{store: store, txn: txn, bucket: txn.Bucket(rootBucket)}, nil
}

// BeginLocked implements kv.Locker. bbolt writers
// are already exclusive.
func (store *Store) BeginLocked(ctx context.Context) (kv.Transaction, error) {
	return store.Begin(ctx, true)
}

// Close implements kv.Store
func (store *Store) Close() error {
	return store.db.Close()
}

// Delete implements kv.Store
func (store *Store) Delete() error {
	path := store.db.Path()

	if err := store.Close(); err != nil {
		return fmt.Errorf("could not close store: %s", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("could not remove path %s: %s", path, err)
	}

	return nil
}

func wrapError(err error) error {
	switch err {
	case bolt.ErrDatabaseNotOpen:
		return kv.ErrClosed
	case bolt.ErrTxClosed:
		return kv.ErrTxDone
	case bolt.ErrTxNotWritable:
		return kv.ErrReadOnly
	}

	return err
}

var _ kv.Transaction = (*transaction)(nil)

type transaction struct {
	store  *Store
	txn    *bolt.Tx
	bucket *bolt.Bucket
	done   bool
}

func (txn *transaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	if txn.done {
		return nil, kv.ErrTxDone
	}

	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}

	return kv.Copy(txn.bucket.Get(key)), nil
}

func (txn *transaction) Keys(ctx context.Context, r keys.Range) (kv.Iterator, error) {
	if txn.done {
		return nil, kv.ErrTxDone
	}

	return &iterator{txn: txn, r: r}, nil
}

func (txn *transaction) Put(key, value []byte) error {
	if err := txn.checkUpdate(key); err != nil {
		return err
	}

	if value == nil {
		value = []byte{}
	}

	// bbolt needs both slices to stay valid until the transaction ends
	return wrapError(txn.bucket.Put(kv.Copy(key), kv.Copy(value)))
}

func (txn *transaction) Delete(key []byte) error {
	if err := txn.checkUpdate(key); err != nil {
		return err
	}

	return wrapError(txn.bucket.Delete(key))
}

func (txn *transaction) checkUpdate(key []byte) error {
	if txn.done {
		return kv.ErrTxDone
	}

	if !txn.txn.Writable() {
		return kv.ErrReadOnly
	}

	return kv.CheckKey(key)
}

func (txn *transaction) Commit(ctx context.Context) error {
	if txn.done {
		return kv.ErrTxDone
	}

	txn.done = true

	if !txn.txn.Writable() {
		return wrapError(txn.txn.Rollback())
	}

	defer func() { <-txn.store.writer }()

	return wrapError(txn.txn.Commit())
}

func (txn *transaction) Rollback() error {
	if txn.done {
		return kv.ErrTxDone
	}

	txn.done = true

	if txn.txn.Writable() {
		defer func() { <-txn.store.writer }()
	}

	return wrapError(txn.txn.Rollback())
}

var _ kv.Iterator = (*iterator)(nil)

// iterator seeks a fresh cursor on every step since
// bbolt cursors are invalidated by updates
type iterator struct {
	txn   *transaction
	r     keys.Range
	key   []byte
	value []byte
	done  bool
	err   error
}

func (iter *iterator) Next() bool {
	if iter.done {
		return false
	}

	if iter.txn.done {
		iter.finish(kv.ErrTxDone)

		return false
	}

	cursor := iter.txn.bucket.Cursor()

	var k, v []byte

	switch {
	case iter.key != nil:
		k, v = cursor.Seek(keys.Next(iter.key))
	case iter.r.Min != nil:
		k, v = cursor.Seek(iter.r.Min)
	default:
		k, v = cursor.First()
	}

	if k == nil || !iter.r.Contains(k) {
		iter.finish(nil)

		return false
	}

	iter.key = kv.Copy(k)
	iter.value = kv.Copy(v)

	return true
}

func (iter *iterator) finish(err error) {
	iter.done = true
	iter.err = err
	iter.key = nil
	iter.value = nil
}

func (iter *iterator) Key() []byte {
	return iter.key
}

func (iter *iterator) Value() []byte {
	return iter.value
}

func (iter *iterator) Error() error {
	return iter.err
}
