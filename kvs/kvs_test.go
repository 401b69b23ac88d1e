package kvs_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/SpeedReach/surrealdb/kvs"
	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// datastores opens an empty datastore on every
// backend that needs no external service
func datastores(t *testing.T, opts ...kvs.Option) map[string]*kvs.Datastore {
	paths := map[string]string{
		"memory": "mem://",
		"bbolt":  "file://" + filepath.Join(t.TempDir(), "test.db"),
		"mvcc":   "mvcc://" + uuid.New().String(),
	}

	result := map[string]*kvs.Datastore{}

	for name, path := range paths {
		ds, err := kvs.Open(context.Background(), path, append([]kvs.Option{kvs.WithLogger(zaptest.NewLogger(t))}, opts...)...)
		require.NoError(t, err)

		t.Cleanup(func() {
			ds.Close()
		})

		result[name] = ds
	}

	return result
}

func set(t *testing.T, ds *kvs.Datastore, pairs ...string) {
	t.Helper()

	err := ds.Update(context.Background(), func(txn *kvs.Transaction) error {
		for i := 0; i < len(pairs); i += 2 {
			if err := txn.Set([]byte(pairs[i]), []byte(pairs[i+1])); err != nil {
				return err
			}
		}

		return nil
	})

	require.NoError(t, err)
}

func TestMultiReader(t *testing.T) {
	nodeID := uuid.MustParse("b7afc077-2123-476f-bee0-43d7504f1e0a")

	for name, ds := range datastores(t, kvs.WithNodeID(nodeID)) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.Equal(t, nodeID, ds.NodeID())

			txn, err := ds.Transaction(ctx, true, false)
			require.NoError(t, err)
			require.NoError(t, txn.Set([]byte("test"), []byte("some text")))
			require.NoError(t, txn.Commit(ctx))

			readers := make([]*kvs.Transaction, 3)

			for i := range readers {
				readers[i], err = ds.Transaction(ctx, false, false)
				require.NoError(t, err)

				value, err := readers[i].Get(ctx, []byte("test"))
				require.NoError(t, err)
				require.Equal(t, []byte("some text"), value)
			}

			for _, reader := range readers {
				require.NoError(t, reader.Cancel())
			}
		})
	}
}

func TestReadYourWrites(t *testing.T) {
	for name, ds := range datastores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			set(t, ds, "a", "1")

			txn, err := ds.Transaction(ctx, true, false)
			require.NoError(t, err)
			defer txn.Cancel()

			require.NoError(t, txn.Set([]byte("a"), []byte("2")))
			require.NoError(t, txn.Set([]byte("b"), []byte("2")))

			value, err := txn.Get(ctx, []byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("2"), value)

			exists, err := txn.Exists(ctx, []byte("b"))
			require.NoError(t, err)
			require.True(t, exists)

			require.NoError(t, txn.Del([]byte("a")))

			exists, err = txn.Exists(ctx, []byte("a"))
			require.NoError(t, err)
			require.False(t, exists)

			err = ds.View(ctx, func(other *kvs.Transaction) error {
				value, err := other.Get(ctx, []byte("a"))
				require.NoError(t, err)
				require.Equal(t, []byte("1"), value)

				exists, err := other.Exists(ctx, []byte("b"))
				require.NoError(t, err)
				require.False(t, exists)

				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestConflictRetryLaw(t *testing.T) {
	ctx := context.Background()
	ds := datastores(t)["mvcc"]
	set(t, ds, "k", "0")

	a, err := ds.Transaction(ctx, true, false)
	require.NoError(t, err)
	defer a.Cancel()

	b, err := ds.Transaction(ctx, true, false)
	require.NoError(t, err)
	defer b.Cancel()

	_, err = a.Get(ctx, []byte("k"))
	require.NoError(t, err)
	_, err = b.Get(ctx, []byte("k"))
	require.NoError(t, err)

	require.NoError(t, a.Set([]byte("k"), []byte("a")))
	require.NoError(t, a.Commit(ctx))

	require.NoError(t, b.Set([]byte("k"), []byte("b")))
	err = b.Commit(ctx)
	require.True(t, errors.Is(err, kvs.ErrConflict), "expected a conflict, got %v", err)
	require.Contains(t, err.Error(), "mvcc: commit:")

	var engineErr *kvs.Error
	require.True(t, errors.As(err, &engineErr))
	require.Equal(t, "mvcc", engineErr.Backend)
	require.Equal(t, "commit", engineErr.Op)

	require.True(t, errors.Is(b.Cancel(), kvs.ErrTransactionFinished))

	err = ds.View(ctx, func(txn *kvs.Transaction) error {
		value, err := txn.Get(ctx, []byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("a"), value)

		return nil
	})
	require.NoError(t, err)
}

func TestUpdateRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	ds := datastores(t)["mvcc"]
	set(t, ds, "counter", "0")
	attempts := 0

	err := ds.Update(ctx, func(txn *kvs.Transaction) error {
		attempts++

		value, err := txn.Get(ctx, []byte("counter"))

		if err != nil {
			return err
		}

		if attempts == 1 {
			set(t, ds, "counter", "10")
		}

		return txn.Set([]byte("counter"), append(value, '!'))
	})

	require.NoError(t, err)
	require.Equal(t, 2, attempts)

	err = ds.View(ctx, func(txn *kvs.Transaction) error {
		value, err := txn.Get(ctx, []byte("counter"))
		require.NoError(t, err)
		require.Equal(t, []byte("10!"), value)

		return nil
	})
	require.NoError(t, err)
}

func TestUpdateDoesNotRetryOtherErrors(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	for name, ds := range datastores(t) {
		t.Run(name, func(t *testing.T) {
			attempts := 0

			err := ds.Update(ctx, func(txn *kvs.Transaction) error {
				attempts++
				require.NoError(t, txn.Set([]byte("a"), []byte("1")))

				return errBoom
			})

			require.Equal(t, errBoom, err)
			require.Equal(t, 1, attempts)

			err = ds.View(ctx, func(txn *kvs.Transaction) error {
				exists, err := txn.Exists(ctx, []byte("a"))
				require.NoError(t, err)
				require.False(t, exists)

				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestIdempotentTermination(t *testing.T) {
	ctx := context.Background()

	for name, ds := range datastores(t) {
		for _, write := range []bool{false, true} {
			for _, end := range []string{"commit", "cancel"} {
				t.Run(fmt.Sprintf("%s-write=%v-%s", name, write, end), func(t *testing.T) {
					txn, err := ds.Transaction(ctx, write, false)
					require.NoError(t, err)

					iter, err := txn.Scan(ctx, keys.All())
					require.NoError(t, err)

					if end == "commit" {
						require.NoError(t, txn.Commit(ctx))
					} else {
						require.NoError(t, txn.Cancel())
					}

					require.True(t, txn.Finished())
					require.Equal(t, kvs.ErrTransactionFinished, txn.Commit(ctx))
					require.Equal(t, kvs.ErrTransactionFinished, txn.Cancel())

					_, err = txn.Get(ctx, []byte("a"))
					require.Equal(t, kvs.ErrTransactionFinished, err)
					require.Equal(t, kvs.ErrTransactionFinished, txn.Set([]byte("a"), []byte("1")))
					require.Equal(t, kvs.ErrTransactionFinished, txn.Del([]byte("a")))
					require.Equal(t, kvs.ErrTransactionFinished, txn.Put(ctx, []byte("a"), []byte("1")))
					_, err = txn.Scan(ctx, keys.All())
					require.Equal(t, kvs.ErrTransactionFinished, err)

					require.False(t, iter.Next())
					require.Equal(t, kvs.ErrTransactionFinished, iter.Error())
				})
			}
		}
	}
}

func TestReadOnlyViolation(t *testing.T) {
	ctx := context.Background()

	for name, ds := range datastores(t) {
		t.Run(name, func(t *testing.T) {
			txn, err := ds.Transaction(ctx, false, false)
			require.NoError(t, err)
			defer txn.Cancel()

			require.False(t, txn.Writeable())
			require.Equal(t, kvs.ErrReadOnly, txn.Set([]byte("a"), []byte("1")))
			require.Equal(t, kvs.ErrReadOnly, txn.Del([]byte("a")))
			require.Equal(t, kvs.ErrReadOnly, txn.PutC(ctx, []byte("a"), []byte("1"), nil))
			require.Equal(t, kvs.ErrKeyRequired, func() error { _, err := txn.Get(ctx, nil); return err }())
		})
	}
}

func TestLocking(t *testing.T) {
	ctx := context.Background()

	for name, ds := range datastores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := ds.Transaction(ctx, false, true)
			require.True(t, errors.Is(err, kvs.ErrUnsupported), "expected ErrUnsupported, got %v", err)

			txn, err := ds.Transaction(ctx, true, true)
			require.NoError(t, err)
			require.True(t, txn.Locked())
			require.NoError(t, txn.Set([]byte("a"), []byte("1")))
			require.NoError(t, txn.Commit(ctx))
		})
	}
}

func TestConditionalUpdates(t *testing.T) {
	ctx := context.Background()

	for name, ds := range datastores(t) {
		t.Run(name, func(t *testing.T) {
			set(t, ds, "a", "1")

			txn, err := ds.Transaction(ctx, true, false)
			require.NoError(t, err)
			defer txn.Cancel()

			require.Equal(t, kvs.ErrKeyAlreadyExists, txn.Put(ctx, []byte("a"), []byte("2")))
			require.NoError(t, txn.Put(ctx, []byte("b"), []byte("1")))
			require.Equal(t, kvs.ErrConditionNotMet, txn.PutC(ctx, []byte("a"), []byte("2"), []byte("0")))
			require.NoError(t, txn.PutC(ctx, []byte("a"), []byte("2"), []byte("1")))
			require.Equal(t, kvs.ErrConditionNotMet, txn.DelC(ctx, []byte("a"), []byte("1")))
			require.Equal(t, kvs.ErrConditionNotMet, txn.DelC(ctx, []byte("a"), nil))
			require.NoError(t, txn.DelC(ctx, []byte("a"), []byte("2")))
			require.NoError(t, txn.DelC(ctx, []byte("missing"), nil))

			result, err := txn.GetRange(ctx, keys.All(), 0)
			require.NoError(t, err)
			require.Equal(t, []kv.KV{{[]byte("b"), []byte("1")}}, result)
		})
	}
}

func TestScanOrdering(t *testing.T) {
	ctx := context.Background()

	for name, ds := range datastores(t) {
		t.Run(name, func(t *testing.T) {
			set(t, ds, "c", "3", "a", "1", "b\x00", "2", "b", "2", "d", "4")

			err := ds.Update(ctx, func(txn *kvs.Transaction) error {
				require.NoError(t, txn.Set([]byte("ab"), []byte("x")))
				require.NoError(t, txn.Del([]byte("c")))

				iter, err := txn.Scan(ctx, keys.All())
				require.NoError(t, err)
				defer iter.Close()

				var seen []string

				for iter.Next() {
					seen = append(seen, string(iter.Key()))
				}

				require.NoError(t, iter.Error())
				require.Equal(t, []string{"a", "ab", "b", "b\x00", "d"}, seen)

				limited, err := txn.GetRange(ctx, keys.All().Gte([]byte("ab")), 2)
				require.NoError(t, err)
				require.Equal(t, []kv.KV{{[]byte("ab"), []byte("x")}, {[]byte("b"), []byte("2")}}, limited)

				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestAtomicVisibility(t *testing.T) {
	ctx := context.Background()

	for name, ds := range datastores(t) {
		t.Run(name, func(t *testing.T) {
			done := make(chan error)

			go func() {
				for i := 0; i < 50; i++ {
					v := []byte(fmt.Sprintf("%d", i))

					err := ds.Update(ctx, func(txn *kvs.Transaction) error {
						if err := txn.Set([]byte("x"), v); err != nil {
							return err
						}

						return txn.Set([]byte("y"), v)
					})

					if err != nil {
						done <- err

						return
					}
				}

				done <- nil
			}()

			for i := 0; i < 50; i++ {
				err := ds.View(ctx, func(txn *kvs.Transaction) error {
					x, err := txn.Get(ctx, []byte("x"))

					if err != nil {
						return err
					}

					y, err := txn.Get(ctx, []byte("y"))

					if err != nil {
						return err
					}

					if string(x) != string(y) {
						return fmt.Errorf("saw a partial commit: x=%q y=%q", x, y)
					}

					return nil
				})
				require.NoError(t, err)
			}

			require.NoError(t, <-done)
		})
	}
}

func TestCompact(t *testing.T) {
	ctx := context.Background()
	dss := datastores(t)

	set(t, dss["mvcc"], "a", "1")
	set(t, dss["mvcc"], "a", "2")

	n, err := dss["mvcc"].Compact(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = dss["memory"].Compact(ctx)
	require.True(t, errors.Is(err, kvs.ErrUnsupported))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	testCases := map[string]struct {
		path string
		err  error
	}{
		"unknown-scheme": {
			path: "rocksdb://data",
			err:  kvs.ErrConnection,
		},
		"invalid": {
			path: "file://",
			err:  kvs.ErrConnection,
		},
		"unreachable-file": {
			path: "file://" + filepath.Join(t.TempDir(), "missing", "dir", "test.db"),
			err:  kvs.ErrConnection,
		},
		"memory": {
			path: "memory",
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			ds, err := kvs.Open(ctx, testCase.path)

			if testCase.err != nil {
				require.True(t, errors.Is(err, testCase.err), "expected %v, got %v", testCase.err, err)

				return
			}

			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, ds.NodeID())
			require.NoError(t, ds.Close())
		})
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	for name, ds := range datastores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, ds.Close())
			require.NoError(t, ds.Close())

			_, err := ds.Transaction(ctx, false, false)
			require.Equal(t, kvs.ErrClosed, err)
		})
	}
}

func TestReadersDoNotBlockWriters(t *testing.T) {
	ctx := context.Background()
	value := make([]byte, 512)

	for name, ds := range datastores(t) {
		t.Run(name, func(t *testing.T) {
			set(t, ds, "test", "some text")

			reader, err := ds.Transaction(ctx, false, false)
			require.NoError(t, err)
			defer reader.Cancel()

			done := make(chan error, 1)

			go func() {
				done <- ds.Update(ctx, func(txn *kvs.Transaction) error {
					for i := 0; i < 2000; i++ {
						if err := txn.Set([]byte(fmt.Sprintf("fill-%04d", i)), value); err != nil {
							return err
						}
					}

					return nil
				})
			}()

			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(10 * time.Second):
				t.Fatal("writer is blocked by an open read-only transaction")
			}

			v, err := reader.Get(ctx, []byte("test"))
			require.NoError(t, err)
			require.Equal(t, "some text", string(v))
		})
	}
}
