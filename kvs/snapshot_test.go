package kvs_test

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"testing"

	"github.com/SpeedReach/surrealdb/kvs"
	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/SpeedReach/surrealdb/storage/snapshot"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func contents(t *testing.T, ds *kvs.Datastore) map[string]string {
	result := map[string]string{}

	err := ds.View(context.Background(), func(txn *kvs.Transaction) error {
		pairs, err := txn.GetRange(context.Background(), keys.All(), 0)

		if err != nil {
			return err
		}

		for _, pair := range pairs {
			result[string(pair.Key())] = string(pair.Value())
		}

		return nil
	})
	require.NoError(t, err)

	return result
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	sources := datastores(t)
	pairs := []string{"empty", ""}

	for i := 0; i < 200; i++ {
		pairs = append(pairs, fmt.Sprintf("key-%03d", i), fmt.Sprintf("value-%d", i))
	}

	for name, source := range sources {
		set(t, source, pairs...)

		snap, err := source.Snapshot(ctx)
		require.NoError(t, err)

		raw, err := ioutil.ReadAll(snap)
		require.NoError(t, err)
		require.NoError(t, snap.Close())

		for destName, dest := range datastores(t) {
			t.Run(name+"-to-"+destName, func(t *testing.T) {
				set(t, dest, "stale", "x")
				require.NoError(t, dest.ApplySnapshot(ctx, bytes.NewReader(raw)))

				got := contents(t, dest)
				require.Equal(t, contents(t, source), got)
				require.NotContains(t, got, "stale")
				require.Equal(t, "", got["empty"])
			})
		}
	}
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	dss := datastores(t)
	set(t, dss["mvcc"], "a", "1", "b", "2")
	set(t, dss["bbolt"], "c", "3")

	require.NoError(t, snapshot.Copy(ctx, dss["bbolt"], dss["mvcc"]))
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, contents(t, dss["bbolt"]))
}

func TestApplyTruncatedSnapshot(t *testing.T) {
	ctx := context.Background()
	ds := datastores(t)["memory"]
	set(t, ds, "a", "1", "b", "2")

	snap, err := ds.Snapshot(ctx)
	require.NoError(t, err)
	raw, err := ioutil.ReadAll(snap)
	require.NoError(t, err)
	snap.Close()

	dest := datastores(t)["memory"]
	set(t, dest, "c", "3")

	require.Error(t, dest.ApplySnapshot(ctx, bytes.NewReader(raw[:len(raw)-1])))
	require.Equal(t, map[string]string{"c": "3"}, contents(t, dest))
}

func TestSnapshotLeavesNodes(t *testing.T) {
	ctx := context.Background()
	exporter := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	importer := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	source, err := kvs.Open(ctx, "mem://", kvs.WithNodeID(exporter))
	require.NoError(t, err)
	defer source.Close()

	dest, err := kvs.Open(ctx, "mem://", kvs.WithNodeID(importer))
	require.NoError(t, err)
	defer dest.Close()

	require.NoError(t, source.Heartbeat(ctx))
	require.NoError(t, dest.Heartbeat(ctx))
	set(t, source, "a", "1")
	set(t, dest, "b", "2")

	snap, err := source.Snapshot(ctx)
	require.NoError(t, err)
	raw, err := ioutil.ReadAll(snap)
	require.NoError(t, err)
	snap.Close()

	require.NotContains(t, string(raw), string(exporter[:]))
	require.NoError(t, dest.ApplySnapshot(ctx, bytes.NewReader(raw)))

	nodes, err := dest.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, importer, nodes[0].ID)

	err = dest.View(ctx, func(txn *kvs.Transaction) error {
		value, err := txn.Get(ctx, []byte("a"))
		require.NoError(t, err)
		require.Equal(t, "1", string(value))

		exists, err := txn.Exists(ctx, []byte("b"))
		require.NoError(t, err)
		require.False(t, exists)

		return nil
	})
	require.NoError(t, err)
}
