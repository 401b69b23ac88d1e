// Package kvs is the transactional storage layer. A Datastore
// owns one storage backend and hands out Transactions that
// behave the same whichever backend serves them.
package kvs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/SpeedReach/surrealdb/kvs/endpoint"
	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/plugins"
	"github.com/SpeedReach/surrealdb/utils/log"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultRetries = 10

// Datastore is a handle to one storage backend
type Datastore struct {
	endpoint  endpoint.Endpoint
	store     kv.Store
	nodeID    uuid.UUID
	logger    *zap.Logger
	heartbeat time.Duration
	retries   int

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// Open resolves path with the endpoint package and opens
// the datastore it names. It fails with ErrConnection if the
// backend cannot be reached or the path is invalid.
func Open(ctx context.Context, path string, opts ...Option) (*Datastore, error) {
	e, err := endpoint.Parse(path)

	if err != nil {
		return nil, wrapError("endpoint", "open", err)
	}

	return OpenEndpoint(ctx, e, opts...)
}

// OpenEndpoint opens the datastore served by e
func OpenEndpoint(ctx context.Context, e endpoint.Endpoint, opts ...Option) (*Datastore, error) {
	ds := &Datastore{
		endpoint: e,
		logger:   zap.NewNop(),
		retries:  defaultRetries,
		stop:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(ds)
	}

	if ds.nodeID == uuid.Nil {
		ds.nodeID = uuid.New()
	}

	ds.logger = ds.logger.With(zap.String("backend", e.Kind), zap.String("node", ds.nodeID.String()))
	logger := log.WithContext(ctx, ds.logger).With(zap.String("operation", "Open"))

	plugin := plugins.Plugin(e.Kind)

	if plugin == nil {
		return nil, &Error{Backend: e.Kind, Op: "open", Err: endpoint.ErrUnknownScheme, kind: ErrConnection}
	}

	options := e.Options.Copy()
	options[kv.OptionNodeID] = ds.nodeID.String()

	store, err := plugin.NewStore(options)

	if err != nil {
		logger.Debug("could not open store", zap.String("address", e.Address), zap.Error(err))

		return nil, &Error{Backend: e.Kind, Op: "open", Err: err, kind: ErrConnection}
	}

	ds.store = store
	logger.Info("opened datastore", zap.String("address", e.Address))

	if ds.heartbeat > 0 {
		if err := ds.Heartbeat(ctx); err != nil {
			store.Close()

			return nil, err
		}

		ds.wg.Add(1)
		go ds.runHeartbeat()
	}

	return ds, nil
}

// NodeID returns the identifier of this node
func (ds *Datastore) NodeID() uuid.UUID {
	return ds.nodeID
}

// Kind returns the name of the backend
func (ds *Datastore) Kind() string {
	return ds.endpoint.Kind
}

// Endpoint returns the endpoint this datastore was opened with
func (ds *Datastore) Endpoint() endpoint.Endpoint {
	return ds.endpoint
}

// Transaction begins a transaction. write selects a read-write
// transaction. lock additionally excludes every other writer
// for the life of the transaction. A locked read-only
// transaction is not supported.
func (ds *Datastore) Transaction(ctx context.Context, write bool, lock bool) (*Transaction, error) {
	if ds.isClosed() {
		return nil, ErrClosed
	}

	logger := log.WithContext(ctx, ds.logger).With(zap.Bool("write", write), zap.Bool("lock", lock))

	if lock && !write {
		return nil, unsupported("%s: read-only transactions cannot be locked", ds.Kind())
	}

	var txn kv.Transaction
	var err error

	if lock {
		locker, ok := ds.store.(kv.Locker)

		if !ok {
			return nil, unsupported("%s: locked transactions", ds.Kind())
		}

		txn, err = locker.BeginLocked(ctx)
	} else {
		txn, err = ds.store.Begin(ctx, write)
	}

	if err != nil {
		logger.Debug("could not begin transaction", zap.Error(err))

		return nil, wrapError(ds.Kind(), "begin", err)
	}

	logger.Debug("began transaction")

	return &Transaction{
		backend: ds.Kind(),
		txn:     txn,
		write:   write,
		lock:    lock,
		logger:  logger,
	}, nil
}

// View runs fn inside a read-only transaction which
// is always cancelled afterwards
func (ds *Datastore) View(ctx context.Context, fn func(txn *Transaction) error) error {
	txn, err := ds.Transaction(ctx, false, false)

	if err != nil {
		return err
	}

	defer txn.Cancel()

	return fn(txn)
}

// Update runs fn inside a read-write transaction and commits it
// if fn succeeds. The transaction is cancelled if fn fails.
// Conflicting commits are retried with fn run from scratch
// after a randomized exponential backoff, so fn must not
// have side effects outside the transaction.
func (ds *Datastore) Update(ctx context.Context, fn func(txn *Transaction) error) error {
	backoff := newBackoff()

	for attempt := 0; ; attempt++ {
		err := ds.update(ctx, fn)

		if err == nil || !errors.Is(err, ErrConflict) || attempt >= ds.retries {
			return err
		}

		log.WithContext(ctx, ds.logger).Debug("retrying conflicting transaction", zap.Int("attempt", attempt+1))

		if err := backoff.wait(ctx); err != nil {
			return err
		}
	}
}

func (ds *Datastore) update(ctx context.Context, fn func(txn *Transaction) error) error {
	txn, err := ds.Transaction(ctx, true, false)

	if err != nil {
		return err
	}

	defer txn.Cancel()

	if err := fn(txn); err != nil {
		return err
	}

	return txn.Commit(ctx)
}

// Compact discards old versions on backends that keep them
func (ds *Datastore) Compact(ctx context.Context) (int, error) {
	if ds.isClosed() {
		return 0, ErrClosed
	}

	compactor, ok := ds.store.(kv.Compactor)

	if !ok {
		return 0, unsupported("%s: compaction", ds.Kind())
	}

	n, err := compactor.Compact(ctx)

	if err != nil {
		return 0, wrapError(ds.Kind(), "compact", err)
	}

	log.WithContext(ctx, ds.logger).Debug("compacted", zap.Int("versions", n))

	return n, nil
}

func (ds *Datastore) isClosed() bool {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	return ds.closed
}

// Close stops the heartbeat and closes the backend.
// Transactions begun afterwards fail with ErrClosed.
func (ds *Datastore) Close() error {
	ds.mu.Lock()

	if ds.closed {
		ds.mu.Unlock()

		return nil
	}

	ds.closed = true
	close(ds.stop)
	ds.mu.Unlock()

	ds.wg.Wait()

	if err := ds.store.Close(); err != nil {
		return wrapError(ds.Kind(), "close", err)
	}

	ds.logger.Info("closed datastore")

	return nil
}
