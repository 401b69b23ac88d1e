package kv

import (
	"bytes"
)

var _ Iterator = (*mergedIterator)(nil)

// Merge returns an iterator that overlays staged updates
// on top of base. Where both contain a key the staged
// update wins. Staged deletes hide the key entirely.
func Merge(base Iterator, staged *BufferIterator) Iterator {
	return &mergedIterator{base: base, staged: staged}
}

type mergedIterator struct {
	base        Iterator
	staged      *BufferIterator
	baseOK      bool
	stagedOK    bool
	initialized bool
	key         []byte
	value       []byte
	err         error
}

func (iter *mergedIterator) Next() bool {
	if iter.err != nil {
		return false
	}

	if !iter.initialized {
		iter.initialized = true
		iter.baseOK = iter.base.Next()
		iter.stagedOK = iter.staged.Next()
	}

	for {
		if !iter.baseOK && iter.base.Error() != nil {
			iter.err = iter.base.Error()
			iter.key = nil
			iter.value = nil

			return false
		}

		switch {
		case !iter.baseOK && !iter.stagedOK:
			iter.key = nil
			iter.value = nil

			return false
		case !iter.stagedOK:
			iter.key, iter.value = iter.base.Key(), iter.base.Value()
			iter.baseOK = iter.base.Next()

			return true
		case !iter.baseOK:
			if iter.emitStaged() {
				return true
			}
		default:
			cmp := bytes.Compare(iter.base.Key(), iter.staged.Key())

			if cmp < 0 {
				iter.key, iter.value = iter.base.Key(), iter.base.Value()
				iter.baseOK = iter.base.Next()

				return true
			}

			if cmp == 0 {
				iter.baseOK = iter.base.Next()
			}

			if iter.emitStaged() {
				return true
			}
		}
	}
}

// emitStaged makes the current staged update the current
// entry unless it is a delete, then advances past it
func (iter *mergedIterator) emitStaged() bool {
	deleted := iter.staged.Deleted()

	if !deleted {
		iter.key, iter.value = iter.staged.Key(), iter.staged.Value()
	}

	iter.stagedOK = iter.staged.Next()

	return !deleted
}

func (iter *mergedIterator) Key() []byte {
	return iter.key
}

func (iter *mergedIterator) Value() []byte {
	return iter.value
}

func (iter *mergedIterator) Error() error {
	return iter.err
}

// SliceIterator iterates over a sorted slice of key-value pairs
type SliceIterator struct {
	kvs []KV
	pos int
}

// NewSliceIterator returns an iterator over kvs which must
// already be sorted by key
func NewSliceIterator(kvs []KV) *SliceIterator {
	return &SliceIterator{kvs: kvs, pos: -1}
}

// Next advances the iterator
func (iter *SliceIterator) Next() bool {
	if iter.pos >= len(iter.kvs) {
		return false
	}

	iter.pos++

	return iter.pos < len(iter.kvs)
}

// Key returns the current key
func (iter *SliceIterator) Key() []byte {
	if iter.pos < 0 || iter.pos >= len(iter.kvs) {
		return nil
	}

	return iter.kvs[iter.pos].Key()
}

// Value returns the current value
func (iter *SliceIterator) Value() []byte {
	if iter.pos < 0 || iter.pos >= len(iter.kvs) {
		return nil
	}

	return iter.kvs[iter.pos].Value()
}

// Error always returns nil
func (iter *SliceIterator) Error() error {
	return nil
}
