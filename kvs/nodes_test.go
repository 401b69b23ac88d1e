package kvs_test

import (
	"context"
	"testing"
	"time"

	"github.com/SpeedReach/surrealdb/kvs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNodes(t *testing.T) {
	ctx := context.Background()
	name := "mvcc://" + uuid.New().String()
	first := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	second := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	a, err := kvs.Open(ctx, name, kvs.WithNodeID(first), kvs.WithHeartbeat(time.Hour))
	require.NoError(t, err)
	defer a.Close()

	b, err := kvs.Open(ctx, name, kvs.WithNodeID(second), kvs.WithHeartbeat(time.Hour))
	require.NoError(t, err)
	defer b.Close()

	nodes, err := a.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, first, nodes[0].ID)
	require.Equal(t, second, nodes[1].ID)
	require.WithinDuration(t, time.Now(), nodes[0].Heartbeat, time.Minute)

	expired, err := b.ExpireNodes(ctx, time.Hour)
	require.NoError(t, err)
	require.Empty(t, expired)

	// a zero ttl expires everyone except the caller
	expired, err = b.ExpireNodes(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{first}, expired)

	nodes, err = b.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, second, nodes[0].ID)

	require.NoError(t, a.Heartbeat(ctx))

	nodes, err = b.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
}

func TestNodesWithoutHeartbeat(t *testing.T) {
	ctx := context.Background()

	for name, ds := range datastores(t) {
		t.Run(name, func(t *testing.T) {
			nodes, err := ds.Nodes(ctx)
			require.NoError(t, err)
			require.Empty(t, nodes)

			require.NoError(t, ds.Heartbeat(ctx))

			nodes, err = ds.Nodes(ctx)
			require.NoError(t, err)
			require.Len(t, nodes, 1)
			require.Equal(t, ds.NodeID(), nodes[0].ID)
		})
	}
}
