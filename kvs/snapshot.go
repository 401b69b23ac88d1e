package kvs

import (
	"context"
	"fmt"
	"io"

	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/SpeedReach/surrealdb/storage/snapshot"
	"github.com/SpeedReach/surrealdb/utils/lvstream"
	"github.com/SpeedReach/surrealdb/utils/log"
	"go.uber.org/zap"
)

var _ snapshot.Source = (*Datastore)(nil)
var _ snapshot.Acceptor = (*Datastore)(nil)

// Snapshot streams every key-value pair of a consistent view of
// the datastore except node registrations, which belong to the
// cluster the datastore runs in. Each pair is encoded as a
// length-prefixed key followed by a length-prefixed value. The
// read-only transaction behind the stream stays open until the
// stream is drained or closed.
func (ds *Datastore) Snapshot(ctx context.Context) (io.ReadCloser, error) {
	txn, err := ds.Transaction(ctx, false, false)

	if err != nil {
		return nil, err
	}

	iter, err := txn.Scan(ctx, keys.All())

	if err != nil {
		txn.Cancel()

		return nil, err
	}

	var value []byte
	haveValue := false
	nodes := nodeRange()

	return lvstream.NewLVStreamEncoder(func() ([]byte, error) {
		if haveValue {
			haveValue = false

			return value, nil
		}

		for {
			if !iter.Next() {
				if err := iter.Error(); err != nil {
					return nil, err
				}

				return nil, io.EOF
			}

			if !nodes.Contains(iter.Key()) {
				break
			}
		}

		value = iter.Value()
		haveValue = true

		return iter.Key(), nil
	}, func() {
		iter.Close()
		txn.Cancel()
	}), nil
}

// ApplySnapshot replaces the whole contents of the datastore
// with the pairs in snap inside one transaction. Node
// registrations are left as they are.
func (ds *Datastore) ApplySnapshot(ctx context.Context, snap io.Reader) error {
	logger := log.WithContext(ctx, ds.logger).With(zap.String("operation", "ApplySnapshot"))

	txn, err := ds.Transaction(ctx, true, false)

	if err != nil {
		return err
	}

	defer txn.Cancel()

	existing, err := txn.GetRange(ctx, keys.All(), 0)

	if err != nil {
		return err
	}

	nodes := nodeRange()
	replaced := 0

	for _, pair := range existing {
		if nodes.Contains(pair.Key()) {
			continue
		}

		if err := txn.Del(pair.Key()); err != nil {
			return err
		}

		replaced++
	}

	var key []byte
	n := 0
	decoder := lvstream.NewLVStreamDecoder(func(b []byte) error {
		if key == nil {
			key = kv.Copy(b)

			return nil
		}

		defer func() { key = nil }()

		if nodes.Contains(key) {
			return nil
		}

		n++

		return txn.Set(key, b)
	})

	if _, err := io.Copy(decoder, snap); err != nil {
		return fmt.Errorf("could not apply snapshot: %w", err)
	}

	if decoder.Partial() || key != nil {
		return fmt.Errorf("could not apply snapshot: %w", io.ErrUnexpectedEOF)
	}

	if err := txn.Commit(ctx); err != nil {
		return err
	}

	logger.Info("applied snapshot", zap.Int("keys", n), zap.Int("replaced", replaced))

	return nil
}
