package kvs

import (
	"context"
	"time"

	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/SpeedReach/surrealdb/utils/log"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// nodePrefix sorts before every printable key
var nodePrefix = []byte("\x00nd\x00")

// Node is a registered member of the cluster
type Node struct {
	ID        uuid.UUID
	Heartbeat time.Time
}

func nodeKey(id uuid.UUID) []byte {
	return append(append([]byte{}, nodePrefix...), id[:]...)
}

func nodeRange() keys.Range {
	return keys.All().Prefix(nodePrefix)
}

// Heartbeat registers this node or refreshes its heartbeat
func (ds *Datastore) Heartbeat(ctx context.Context) error {
	now := keys.Int64ToKey(time.Now().UnixNano())

	return ds.Update(ctx, func(txn *Transaction) error {
		return txn.Set(nodeKey(ds.nodeID), now[:])
	})
}

// Nodes lists the registered nodes in order of their IDs
func (ds *Datastore) Nodes(ctx context.Context) ([]Node, error) {
	var nodes []Node

	err := ds.View(ctx, func(txn *Transaction) error {
		pairs, err := txn.GetRange(ctx, nodeRange(), 0)

		if err != nil {
			return err
		}

		nodes = nodes[:0]

		for _, pair := range pairs {
			if node, ok := decodeNode(pair.Key(), pair.Value()); ok {
				nodes = append(nodes, node)
			}
		}

		return nil
	})

	return nodes, err
}

// ExpireNodes removes every node other than this one whose
// last heartbeat is older than ttl and returns their IDs
func (ds *Datastore) ExpireNodes(ctx context.Context, ttl time.Duration) ([]uuid.UUID, error) {
	var expired []uuid.UUID
	deadline := time.Now().Add(-ttl)

	err := ds.Update(ctx, func(txn *Transaction) error {
		expired = expired[:0]
		pairs, err := txn.GetRange(ctx, nodeRange(), 0)

		if err != nil {
			return err
		}

		for _, pair := range pairs {
			node, ok := decodeNode(pair.Key(), pair.Value())

			if !ok || node.ID == ds.nodeID || !node.Heartbeat.Before(deadline) {
				continue
			}

			if err := txn.Del(pair.Key()); err != nil {
				return err
			}

			expired = append(expired, node.ID)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	if len(expired) > 0 {
		log.WithContext(ctx, ds.logger).Info("expired nodes", zap.Int("count", len(expired)))
	}

	return expired, nil
}

func decodeNode(key []byte, value []byte) (Node, bool) {
	if len(key) != len(nodePrefix)+16 || len(value) != 8 {
		return Node{}, false
	}

	var node Node
	var ts [8]byte

	copy(node.ID[:], key[len(nodePrefix):])
	copy(ts[:], value)
	node.Heartbeat = time.Unix(0, keys.KeyToInt64(ts))

	return node, true
}

func (ds *Datastore) runHeartbeat() {
	defer ds.wg.Done()

	ticker := time.NewTicker(ds.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ds.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), ds.heartbeat)

		if err := ds.Heartbeat(ctx); err != nil {
			ds.logger.Warn("heartbeat failed", zap.Error(err))
		}

		cancel()
	}
}
