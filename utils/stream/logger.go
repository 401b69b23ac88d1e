package stream

import "go.uber.org/zap"

// Log logs every value passing through at debug level
func Log[T any](logger *zap.Logger, msg string) Processor[T] {
	return func(stream Stream[T]) Stream[T] {
		return &loggedStream[T]{stream, logger, msg}
	}
}

type loggedStream[T any] struct {
	Stream[T]
	logger *zap.Logger
	msg    string
}

func (stream *loggedStream[T]) Next() bool {
	if !stream.Stream.Next() {
		if err := stream.Error(); err != nil {
			stream.logger.Debug(stream.msg, zap.Error(err))
		}

		return false
	}

	stream.logger.Debug(stream.msg, zap.Any("value", stream.Value()))

	return true
}
