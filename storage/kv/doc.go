// Package kv defines the contract that storage engine drivers
// implement so that the transactional layer above them can treat
// every engine the same way.
//
// A kv plugin is a factory for stores. A store is one configured
// instance of an engine (an in-memory tree, an embedded database file,
// a connection to a cluster). Stores begin transactions and every
// transaction exclusively owns the native transaction object of the
// engine underneath it.
//
// Keys and values are opaque byte slices. Keys are ordered
// lexicographically by byte value and every driver must iterate keys
// in exactly that order.
//
// Drivers differ in how they control concurrency:
//
//  - Single writer: write transactions are serialized. Begin(true)
//    blocks until the previous writer finishes or ctx is done.
//    Readers see a snapshot and never block. Commit never conflicts.
//  - Optimistic: any number of writers run concurrently against
//    snapshots taken when they began. Commit validates everything the
//    transaction read or wrote and returns ErrConflict if any of it
//    was changed by a transaction that committed in the meantime.
//
// Either way the guarantees a consumer observes are the same:
// transactions are serializable, committed writes become visible
// atomically, a transaction sees its own writes, and a transaction
// that begins after another one committed observes its effects.
// Consumers must be prepared to retry a whole transaction after
// ErrConflict and must always Rollback transactions they do not
// Commit.
package kv
