// Package etcd implements a kv plugin backed by an etcd cluster.
//
// Transactions read the cluster as of the revision they began at and
// stage updates locally. Commit is a single etcd Txn whose compares
// check that every key the transaction read still has the revision it
// had and that no key appeared inside any range it scanned. A failed
// compare means a concurrent transaction committed first.
//
// Locked transactions hold a distributed mutex for their whole life.
// Optimistic commits fail while any lock is held.
//
// Commits are bounded by the cluster's --max-txn-ops setting, which
// limits the number of keys a transaction can read and write.
package etcd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/coreos/etcd/clientv3"
	"github.com/coreos/etcd/clientv3/concurrency"
	"github.com/coreos/etcd/clientv3/namespace"
	"github.com/coreos/etcd/etcdserver/api/v3rpc/rpctypes"
)

const (
	// DriverName is the name of this plugin
	DriverName = "etcd"
	// OptionEndpoints lists the cluster endpoints. Required.
	OptionEndpoints = "endpoints"
	// OptionPrefix is prepended to every key this store writes
	OptionPrefix = "prefix"
	// OptionTimeout bounds dialing the cluster
	OptionTimeout = "timeout"
	// OptionLockTTL is the TTL in seconds of the lease
	// that keeps locks alive
	OptionLockTTL = "lockttl"

	defaultPrefix = "surreal"
	batchSize     = 128
	dataPrefix    = "d"
	dataEnd       = "e"
	lockPrefix    = "l/"
)

// Plugins returns the plugins in this package
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&Plugin{},
	}
}

var _ kv.Plugin = (*Plugin)(nil)

// Plugin creates etcd stores
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

	if config.Endpoints, err = options.Strings(OptionEndpoints); err != nil {
		return nil, err
	} else if len(config.Endpoints) == 0 {
		return nil, fmt.Errorf("%q is required", OptionEndpoints)
	}

	if config.Prefix, err = options.String(OptionPrefix, defaultPrefix); err != nil {
		return nil, err
	}

	if config.DialTimeout, err = options.Duration(OptionTimeout, 5*time.Second); err != nil {
		return nil, err
	}

	if config.LockTTL, err = options.Int(OptionLockTTL, 10); err != nil {
		return nil, err
	}

	return New(config)
}

// NewTempStore implements kv.Plugin. It connects to the
// cluster on localhost and isolates itself under a random
// prefix.
func (plugin *Plugin) NewTempStore() (kv.Store, error) {
	return plugin.NewStore(kv.PluginOptions{
		OptionEndpoints: []string{"127.0.0.1:2379"},
		OptionPrefix:    fmt.Sprintf("temp-%d/", time.Now().UnixNano()),
	})
}

// StoreConfig configures an etcd store
type StoreConfig struct {
	Endpoints   []string
	Prefix      string
	DialTimeout time.Duration
	LockTTL     int
}

var _ kv.Store = (*Store)(nil)
var _ kv.Locker = (*Store)(nil)

// Store is a handle to an etcd cluster
type Store struct {
	client  *clientv3.Client
	kv      clientv3.KV
	prefix  string
	lockTTL int

	mu      sync.Mutex
	session *concurrency.Session
	closed  bool
}

// New connects to the cluster
func New(config StoreConfig) (*Store, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: config.DialTimeout,
	})

	if err != nil {
		return nil, fmt.Errorf("%w: could not connect to %s: %s", kv.ErrUnavailable, strings.Join(config.Endpoints, ","), err)
	}

	store := &Store{
		client:  client,
		kv:      namespace.NewKV(client.KV, config.Prefix),
		prefix:  config.Prefix,
		lockTTL: config.LockTTL,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if _, err := store.revision(ctx); err != nil {
		client.Close()

		return nil, fmt.Errorf("%w: %s", kv.ErrUnavailable, err)
	}

	return store, nil
}

func (store *Store) revision(ctx context.Context) (int64, error) {
	resp, err := store.kv.Get(ctx, lockPrefix, clientv3.WithPrefix(), clientv3.WithCountOnly())

	if err != nil {
		return 0, wrapError(err)
	}

	return resp.Header.Revision, nil
}

func (store *Store) isClosed() bool {
	store.mu.Lock()
	defer store.mu.Unlock()

	return store.closed
}

// Begin implements kv.Store
func (store *Store) Begin(ctx context.Context, writable bool) (kv.Transaction, error) {
	if store.isClosed() {
		return nil, kv.ErrClosed
	}

	start, err := store.revision(ctx)

	if err != nil {
		return nil, err
	}

	txn := &transaction{store: store, start: start, writable: writable}

	if writable {
		txn.buffer = kv.NewBuffer()
		txn.reads = make(map[string]int64)
	}

	return txn, nil
}

// BeginLocked implements kv.Locker. It waits for the
// distributed lock until ctx is done.
func (store *Store) BeginLocked(ctx context.Context) (kv.Transaction, error) {
	session, err := store.lockSession()

	if err != nil {
		return nil, err
	}

	mutex := concurrency.NewMutex(session, store.prefix+lockPrefix)

	if err := mutex.Lock(ctx); err != nil {
		return nil, wrapError(err)
	}

	txn, err := store.Begin(ctx, true)

	if err != nil {
		mutex.Unlock(context.Background())

		return nil, err
	}

	txn.(*transaction).mutex = mutex

	return txn, nil
}

func (store *Store) lockSession() (*concurrency.Session, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.closed {
		return nil, kv.ErrClosed
	}

	if store.session != nil {
		select {
		case <-store.session.Done():
		default:
			return store.session, nil
		}
	}

	session, err := concurrency.NewSession(store.client, concurrency.WithTTL(store.lockTTL))

	if err != nil {
		return nil, wrapError(err)
	}

	store.session = session

	return session, nil
}

// Close implements kv.Store
func (store *Store) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.closed {
		return nil
	}

	store.closed = true

	if store.session != nil {
		store.session.Close()
		store.session = nil
	}

	return store.client.Close()
}

// Delete removes every key under the prefix then closes the store
func (store *Store) Delete() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := store.kv.Delete(ctx, "\x00", clientv3.WithFromKey()); err != nil {
		store.Close()

		return wrapError(err)
	}

	return store.Close()
}

func wrapError(err error) error {
	switch err {
	case nil:
		return nil
	case rpctypes.ErrCompacted, rpctypes.ErrGRPCCompacted:
		return kv.ErrConflict
	case context.Canceled, context.DeadlineExceeded:
		return err
	}

	if strings.Contains(err.Error(), "client connection is closing") {
		return kv.ErrClosed
	}

	return err
}

// value makes sure that an existing key never has a nil
// value since empty values are omitted on the wire
func value(v []byte) []byte {
	if v == nil {
		return []byte{}
	}

	return v
}

func dataKey(key []byte) string {
	return dataPrefix + string(key)
}

func dataRange(r keys.Range) keys.Range {
	er := keys.Range{Min: []byte(dataKey(r.Min)), Max: []byte(dataEnd)}

	if r.Max != nil {
		er.Max = []byte(dataKey(r.Max))
	}

	return er
}

var _ kv.Transaction = (*transaction)(nil)

type transaction struct {
	store    *Store
	start    int64
	writable bool
	done     bool
	mutex    *concurrency.Mutex
	buffer   *kv.Buffer
	// reads maps keys to the mod revision they had
	// when they were read. 0 means the key did not exist.
	reads map[string]int64
	scans []keys.Range
}

func (txn *transaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	if txn.done {
		return nil, kv.ErrTxDone
	}

	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}

	if txn.writable {
		if value, deleted, ok := txn.buffer.Get(key); ok {
			if deleted {
				return nil, nil
			}

			return kv.Copy(value), nil
		}
	}

	k := dataKey(key)
	resp, err := txn.store.kv.Get(ctx, k, clientv3.WithRev(txn.start))

	if err != nil {
		return nil, wrapError(err)
	}

	if len(resp.Kvs) == 0 {
		txn.observe(k, 0)

		return nil, nil
	}

	txn.observe(k, resp.Kvs[0].ModRevision)

	return value(resp.Kvs[0].Value), nil
}

func (txn *transaction) observe(key string, modRevision int64) {
	if txn.writable && txn.mutex == nil {
		txn.reads[key] = modRevision
	}
}

func (txn *transaction) Keys(ctx context.Context, r keys.Range) (kv.Iterator, error) {
	if txn.done {
		return nil, kv.ErrTxDone
	}

	er := dataRange(r)
	iter := &iterator{ctx: ctx, txn: txn, r: er}

	if !txn.writable {
		return iter, nil
	}

	if txn.mutex == nil {
		txn.scans = append(txn.scans, er)
	}

	return kv.Merge(iter, txn.buffer.Range(r)), nil
}

func (txn *transaction) Put(key, value []byte) error {
	if err := txn.checkUpdate(key); err != nil {
		return err
	}

	txn.buffer.Put(key, value)

	return nil
}

func (txn *transaction) Delete(key []byte) error {
	if err := txn.checkUpdate(key); err != nil {
		return err
	}

	txn.buffer.Delete(key)

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
	defer txn.unlock()

	if !txn.writable || txn.buffer.Len() == 0 {
		return nil
	}

	defer txn.buffer.Reset()

	var cmps []clientv3.Cmp
	var ops []clientv3.Op

	if txn.mutex != nil {
		ownKey := strings.TrimPrefix(txn.mutex.Key(), txn.store.prefix)
		cmps = append(cmps, clientv3.Compare(clientv3.CreateRevision(ownKey), ">", 0))
	} else {
		cmps = append(cmps, clientv3.Compare(clientv3.CreateRevision(lockPrefix).WithPrefix(), "=", 0))

		for key, modRevision := range txn.reads {
			cmps = append(cmps, clientv3.Compare(clientv3.ModRevision(key), "=", modRevision))
		}

		for _, r := range txn.scans {
			cmps = append(cmps, clientv3.Compare(clientv3.ModRevision(string(r.Min)), "<", txn.start+1).WithRange(string(r.Max)))
		}
	}

	txn.buffer.Each(func(key, value []byte, deleted bool) error {
		k := dataKey(key)

		// blind writes must not overwrite a newer commit
		if _, ok := txn.reads[k]; !ok && txn.mutex == nil {
			cmps = append(cmps, clientv3.Compare(clientv3.ModRevision(k), "<", txn.start+1))
		}

		if deleted {
			ops = append(ops, clientv3.OpDelete(k))
		} else {
			ops = append(ops, clientv3.OpPut(k, string(value)))
		}

		return nil
	})

	resp, err := txn.store.kv.Txn(ctx).If(cmps...).Then(ops...).Commit()

	if err != nil {
		return wrapError(err)
	}

	if !resp.Succeeded {
		return kv.ErrConflict
	}

	return nil
}

func (txn *transaction) Rollback() error {
	if txn.done {
		return kv.ErrTxDone
	}

	txn.done = true
	txn.unlock()

	if txn.writable {
		txn.buffer.Reset()
	}

	return nil
}

func (txn *transaction) unlock() {
	if txn.mutex == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	txn.mutex.Unlock(ctx)
	txn.mutex = nil
}

var _ kv.Iterator = (*iterator)(nil)

// iterator pages through a range of the snapshot
type iterator struct {
	ctx   context.Context
	txn   *transaction
	r     keys.Range
	batch *kv.SliceIterator
	last  []byte
	more  bool
	done  bool
	err   error
}

func (iter *iterator) Next() bool {
	if iter.done {
		return false
	}

	if iter.batch != nil && iter.batch.Next() {
		return true
	}

	if iter.batch != nil && !iter.more {
		iter.finish(nil)

		return false
	}

	if iter.txn.done {
		iter.finish(kv.ErrTxDone)

		return false
	}

	if iter.last != nil {
		iter.r = iter.r.After(iter.last)
	}

	resp, err := iter.txn.store.kv.Get(
		iter.ctx,
		string(iter.r.Min),
		clientv3.WithRange(string(iter.r.Max)),
		clientv3.WithRev(iter.txn.start),
		clientv3.WithLimit(batchSize),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	)

	if err != nil {
		iter.finish(wrapError(err))

		return false
	}

	if len(resp.Kvs) == 0 {
		iter.finish(nil)

		return false
	}

	batch := make([]kv.KV, 0, len(resp.Kvs))

	for _, pair := range resp.Kvs {
		iter.txn.observe(string(pair.Key), pair.ModRevision)
		batch = append(batch, kv.KV{pair.Key[len(dataPrefix):], value(pair.Value)})
	}

	iter.last = resp.Kvs[len(resp.Kvs)-1].Key
	iter.batch = kv.NewSliceIterator(batch)
	iter.more = resp.More

	return iter.batch.Next()
}

func (iter *iterator) finish(err error) {
	iter.done = true
	iter.err = err
	iter.batch = nil
}

func (iter *iterator) Key() []byte {
	if iter.batch == nil {
		return nil
	}

	return iter.batch.Key()
}

func (iter *iterator) Value() []byte {
	if iter.batch == nil {
		return nil
	}

	return iter.batch.Value()
}

func (iter *iterator) Error() error {
	return iter.err
}
