package kv

import (
	"bytes"

	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/emirpasic/gods/maps/treemap"
)

// Buffer is a sorted set of staged updates. Deletes
// are kept as tombstones so that they can mask keys
// in the snapshot a transaction reads from.
type Buffer struct {
	m *treemap.Map
}

type bufferEntry struct {
	value   []byte
	deleted bool
}

func byteComparator(a, b interface{}) int {
	return bytes.Compare(a.([]byte), b.([]byte))
}

// NewBuffer returns an empty buffer
func NewBuffer() *Buffer {
	return &Buffer{m: treemap.NewWith(byteComparator)}
}

// Put stages an update of key to value
func (buffer *Buffer) Put(key, value []byte) {
	if value == nil {
		value = []byte{}
	}

	buffer.m.Put(Copy(key), bufferEntry{value: Copy(value)})
}

// Delete stages a delete of key
func (buffer *Buffer) Delete(key []byte) {
	buffer.m.Put(Copy(key), bufferEntry{deleted: true})
}

// Get looks up key in the buffer. ok is false if key has
// no staged update. deleted is true if the staged update
// is a delete.
func (buffer *Buffer) Get(key []byte) (value []byte, deleted bool, ok bool) {
	raw, found := buffer.m.Get(key)

	if !found {
		return nil, false, false
	}

	entry := raw.(bufferEntry)

	return entry.value, entry.deleted, true
}

// Len returns the number of staged updates
func (buffer *Buffer) Len() int {
	return buffer.m.Size()
}

// Reset discards all staged updates
func (buffer *Buffer) Reset() {
	buffer.m.Clear()
}

// Each calls fn for every staged update in key order.
// value is nil for deletes.
func (buffer *Buffer) Each(fn func(key, value []byte, deleted bool) error) error {
	iter := buffer.m.Iterator()

	for iter.Next() {
		entry := iter.Value().(bufferEntry)

		if err := fn(iter.Key().([]byte), entry.value, entry.deleted); err != nil {
			return err
		}
	}

	return nil
}

// Range returns an iterator over the staged updates
// whose keys are inside r, tombstones included
func (buffer *Buffer) Range(r keys.Range) *BufferIterator {
	return &BufferIterator{buffer: buffer, r: r}
}

// BufferIterator iterates over staged updates. Every
// step seeks from the last key returned so that updates
// made while iterating never invalidate it.
type BufferIterator struct {
	buffer  *Buffer
	r       keys.Range
	started bool
	done    bool
	key     []byte
	entry   bufferEntry
}

// Next advances to the next staged update
func (iter *BufferIterator) Next() bool {
	if iter.done {
		return false
	}

	var raw, rawEntry interface{}

	if !iter.started {
		iter.started = true

		if iter.r.Min == nil {
			raw, rawEntry = iter.buffer.m.Min()
		} else {
			raw, rawEntry = iter.buffer.m.Ceiling(iter.r.Min)
		}
	} else {
		raw, rawEntry = iter.buffer.m.Ceiling([]byte(keys.Next(iter.key)))
	}

	if raw == nil || !iter.r.Contains(raw.([]byte)) {
		iter.done = true
		iter.key = nil

		return false
	}

	iter.key = raw.([]byte)
	iter.entry = rawEntry.(bufferEntry)

	return true
}

// Key returns the current key
func (iter *BufferIterator) Key() []byte {
	return iter.key
}

// Value returns the current value
func (iter *BufferIterator) Value() []byte {
	return iter.entry.value
}

// Deleted returns true if the current update is a delete
func (iter *BufferIterator) Deleted() bool {
	return iter.entry.deleted
}

// Error always returns nil
func (iter *BufferIterator) Error() error {
	return nil
}
