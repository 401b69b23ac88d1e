// Package snapshot describes stores whose whole contents
// can be streamed out and replaced from a stream
package snapshot

import (
	"context"
	"fmt"
	"io"
)

// Source produces a consistent snapshot of its contents.
// The returned stream must be closed.
type Source interface {
	Snapshot(ctx context.Context) (io.ReadCloser, error)
}

// Acceptor replaces its contents with a snapshot,
// atomically
type Acceptor interface {
	ApplySnapshot(ctx context.Context, snap io.Reader) error
}

// Copy replaces the contents of dst with a snapshot of src
func Copy(ctx context.Context, dst Acceptor, src Source) error {
	snap, err := src.Snapshot(ctx)

	if err != nil {
		return fmt.Errorf("could not take snapshot: %w", err)
	}

	defer snap.Close()

	return dst.ApplySnapshot(ctx, snap)
}
