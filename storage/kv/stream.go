package kv

import (
	"github.com/SpeedReach/surrealdb/utils/stream"
)

// Stream wraps the iterator in a stream of key-value
// pairs. Each pair is a copy that stays valid after the
// iterator advances.
func Stream(iter Iterator) stream.Stream[KV] {
	return &kvStream{iter}
}

type kvStream struct {
	iter Iterator
}

func (stream *kvStream) Next() bool {
	return stream.iter.Next()
}

func (stream *kvStream) Value() KV {
	return KV{Copy(stream.iter.Key()), Copy(stream.iter.Value())}
}

func (stream *kvStream) Error() error {
	return stream.iter.Error()
}

// Collect drains the iterator, copying every key and value
func Collect(iter Iterator) ([]KV, error) {
	return stream.Collect(Stream(iter))
}
