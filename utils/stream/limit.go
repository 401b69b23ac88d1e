package stream

// Limit passes on at most limit values. A limit
// <= 0 passes on every value.
func Limit[T any](limit int) Processor[T] {
	return func(stream Stream[T]) Stream[T] {
		if limit <= 0 {
			return stream
		}

		return &limitedStream[T]{stream, limit}
	}
}

type limitedStream[T any] struct {
	Stream[T]
	remaining int
}

func (stream *limitedStream[T]) Next() bool {
	if stream.remaining <= 0 {
		return false
	}

	stream.remaining--

	return stream.Stream.Next()
}
