// Package lvstream converts a sequence of byte slices to and from
// a length-prefixed byte stream:
//   msg,msg,msg -> [length|msg|length|msg...]
//   [length|msg|length|msg...] -> msg,msg,msg
// Each length is a 4 byte big-endian unsigned integer.
package lvstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxValueSize is the largest value a decoder accepts (10 MB)
var MaxValueSize uint32 = 10 * 1024 * 1024

// EClosed is returned by reads or writes after Close
var EClosed = errors.New("lvstream closed")

var _ io.ReadCloser = (*LVStreamEncoder)(nil)

// LVStreamEncoder is an io.Reader that pulls values from
// nextValue and encodes them. nextValue signals the end of
// the sequence by returning io.EOF. cleanup is called exactly
// once when the encoder finishes, fails or is closed.
type LVStreamEncoder struct {
	nextValue func() ([]byte, error)
	cleanup   func()
	isLength  bool
	length    []byte
	value     []byte
	chunk     []byte
	err       error
}

// NewLVStreamEncoder creates an encoder
func NewLVStreamEncoder(nextValue func() ([]byte, error), cleanup func()) *LVStreamEncoder {
	encoder := &LVStreamEncoder{
		length:    make([]byte, 4),
		nextValue: nextValue,
		cleanup:   cleanup,
	}

	return encoder
}

// Read implements io.Reader
func (encoder *LVStreamEncoder) Read(p []byte) (int, error) {
	if encoder.err != nil {
		return 0, encoder.err
	}

	n := 0
	pLen := len(p)

	for n < pLen {
		if len(encoder.chunk) == 0 {
			if encoder.isLength {
				encoder.isLength = false
				encoder.chunk = encoder.value
			} else {
				encoder.isLength = true
				value, err := encoder.nextValue()

				if err != nil {
					encoder.close(err)

					return n, encoder.err
				}

				if uint32(len(value)) > MaxValueSize {
					encoder.close(fmt.Errorf("value length is too large: %d > max(%d)", len(value), MaxValueSize))

					return n, encoder.err
				}

				encoder.value = value
				binary.BigEndian.PutUint32(encoder.length, uint32(len(value)))
				encoder.chunk = encoder.length
			}
		}

		c := copy(p, encoder.chunk)
		encoder.chunk = encoder.chunk[c:]
		p = p[c:]
		n += c
	}

	return n, nil
}

func (encoder *LVStreamEncoder) close(err error) {
	if encoder.err != nil {
		return
	}

	encoder.err = err

	if encoder.cleanup != nil {
		encoder.cleanup()
	}
}

// Close implements io.Closer
func (encoder *LVStreamEncoder) Close() error {
	encoder.close(EClosed)

	return nil
}

var _ io.WriteCloser = (*LVStreamDecoder)(nil)

// LVStreamDecoder is an io.Writer that decodes a length-prefixed
// stream and passes each complete value to nextValue. The slice
// passed to nextValue is reused after nextValue returns.
type LVStreamDecoder struct {
	nextValue func([]byte) error
	isLength  bool
	chunkSize int
	chunk     []byte
	errMu     sync.Mutex
	err       error
}

// NewLVStreamDecoder creates a decoder
func NewLVStreamDecoder(nextValue func([]byte) error) *LVStreamDecoder {
	decoder := &LVStreamDecoder{
		chunkSize: 4,
		isLength:  true,
		nextValue: nextValue,
	}

	decoder.chunk = reallocate(decoder.chunk, decoder.chunkSize)

	return decoder
}

// Write implements io.Writer
func (decoder *LVStreamDecoder) Write(p []byte) (int, error) {
	if err := decoder.error(); err != nil {
		return 0, err
	}

	pLen := len(p)

	for len(p) > 0 {
		copyAmount := min(decoder.chunkSize-len(decoder.chunk), len(p))
		decoder.chunk = append(decoder.chunk, p[:copyAmount]...)
		p = p[copyAmount:]

		if len(decoder.chunk) < decoder.chunkSize {
			continue
		}

		if decoder.isLength {
			length := binary.BigEndian.Uint32(decoder.chunk)

			if length > MaxValueSize {
				return 0, decoder.close(fmt.Errorf("encoded value length is too large: %d > max(%d)", length, MaxValueSize))
			}

			decoder.chunkSize = int(length)
			decoder.chunk = reallocate(decoder.chunk, decoder.chunkSize)
			decoder.isLength = false

			if decoder.chunkSize > 0 {
				continue
			}
		}

		if err := decoder.nextValue(decoder.chunk); err != nil {
			return 0, decoder.close(err)
		}

		decoder.chunkSize = 4
		decoder.chunk = reallocate(decoder.chunk, decoder.chunkSize)
		decoder.isLength = true
	}

	return pLen, nil
}

// Partial returns true if the decoder has consumed part
// of a value that has not yet been delivered
func (decoder *LVStreamDecoder) Partial() bool {
	return !decoder.isLength || len(decoder.chunk) > 0
}

func (decoder *LVStreamDecoder) error() error {
	decoder.errMu.Lock()
	defer decoder.errMu.Unlock()

	return decoder.err
}

func (decoder *LVStreamDecoder) close(err error) error {
	decoder.errMu.Lock()
	defer decoder.errMu.Unlock()

	if decoder.err == nil {
		decoder.err = err
	}

	return decoder.err
}

// Close implements io.Closer
func (decoder *LVStreamDecoder) Close() error {
	decoder.close(EClosed)

	return nil
}

func min(a, b int) int {
	if a > b {
		return b
	}

	return a
}

func reallocate(b []byte, capacity int) []byte {
	if cap(b) < capacity {
		return make([]byte, 0, capacity)
	}

	return b[:0]
}
