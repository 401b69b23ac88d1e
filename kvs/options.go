package kvs

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option configures a Datastore
type Option func(*Datastore)

// WithNodeID sets the node identifier instead of
// generating a random one
func WithNodeID(id uuid.UUID) Option {
	return func(ds *Datastore) {
		ds.nodeID = id
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(ds *Datastore) {
		ds.logger = logger
	}
}

// WithHeartbeat registers the node on open and refreshes
// its heartbeat every interval until the datastore closes
func WithHeartbeat(interval time.Duration) Option {
	return func(ds *Datastore) {
		ds.heartbeat = interval
	}
}

// WithRetries sets how many times Update retries a
// transaction that conflicts
func WithRetries(retries int) Option {
	return func(ds *Datastore) {
		ds.retries = retries
	}
}
