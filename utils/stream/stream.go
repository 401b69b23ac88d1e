// Package stream composes lazy pipelines over sequences
// of values, like the records of a table scan.
package stream

// Stream is a sequence of values
type Stream[T any] interface {
	// Next advances the stream. It must be called once
	// to advance to the first value. It returns false at
	// the end of the stream or on error, after which Error
	// must be checked.
	Next() bool
	// Value returns the value at the current position
	Value() T
	// Error returns the error that ended the stream, if any
	Error() error
}

// Processor derives a stream from a source stream
type Processor[T any] func(Stream[T]) Stream[T]

// Pipeline connects processors to a source stream in order
// and returns the last derived stream. Nil processors are
// skipped so optional stages can be left out in place.
func Pipeline[T any](stream Stream[T], processors ...Processor[T]) Stream[T] {
	for _, processor := range processors {
		if processor == nil {
			continue
		}

		stream = processor(stream)
	}

	return stream
}

// Slice streams the elements of values
func Slice[T any](values []T) Stream[T] {
	return &sliceStream[T]{values: values, i: -1}
}

type sliceStream[T any] struct {
	values []T
	i      int
}

func (stream *sliceStream[T]) Next() bool {
	if stream.i+1 >= len(stream.values) {
		stream.i = len(stream.values)

		return false
	}

	stream.i++

	return true
}

func (stream *sliceStream[T]) Value() T {
	var zero T

	if stream.i < 0 || stream.i >= len(stream.values) {
		return zero
	}

	return stream.values[stream.i]
}

func (stream *sliceStream[T]) Error() error {
	return nil
}

// Collect drains stream into a slice
func Collect[T any](stream Stream[T]) ([]T, error) {
	values := []T{}

	for stream.Next() {
		values = append(values, stream.Value())
	}

	if err := stream.Error(); err != nil {
		return nil, err
	}

	return values, nil
}
