package stream

import "github.com/SpeedReach/surrealdb/utils/sortedwindow"

// Sort passes on the lowest N values of the source as ordered
// by compare, in ascending order. N is limit if limit > 0,
// otherwise the whole source is sorted in memory. The source is
// drained by the first call to Next.
func Sort[T any](compare func(a, b T) int, limit int) Processor[T] {
	return func(stream Stream[T]) Stream[T] {
		window := sortedwindow.New(func(a, b interface{}) int {
			return compare(a.(T), b.(T))
		}, sortedwindow.WithLimit(limit))

		return &sortedStream[T]{Stream: stream, window: window}
	}
}

type sortedStream[T any] struct {
	Stream[T]
	window *sortedwindow.SortedMinWindow
	iter   *sortedwindow.Iterator
}

func (stream *sortedStream[T]) Next() bool {
	if stream.iter == nil {
		for stream.Stream.Next() {
			stream.window.Insert(stream.Stream.Value())
		}

		if stream.Stream.Error() != nil {
			return false
		}

		stream.iter = stream.window.Iterator()
	}

	return stream.iter.Next()
}

func (stream *sortedStream[T]) Value() T {
	return stream.iter.Value().(T)
}
