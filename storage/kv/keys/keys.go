package keys

import (
	"bytes"
	"encoding/binary"
)

// Int64ToKey constructs a key from an
// int64. Non-negative values sort in
// numeric order.
func Int64ToKey(i int64) [8]byte {
	var k [8]byte

	binary.BigEndian.PutUint64(k[:], uint64(i))

	return k
}

// KeyToInt64 constructs an int64 from a
// byte array
func KeyToInt64(k [8]byte) int64 {
	return int64(binary.BigEndian.Uint64(k[:]))
}

// Key is a single key
type Key []byte

// Compare compares two keys
// -1 means a < b
// 1 means a > b
// 0 means a = b
func Compare(a, b Key) int {
	return bytes.Compare(a, b)
}

// Inc increments the key, returning the first key
// that does not have key as a prefix. It returns nil
// if no such key exists.
func Inc(key Key) Key {
	return inc(key)
}

// Next returns the key directly after key such that
// no other key can sort between them
func Next(key Key) Key {
	return after(key)
}

// Join concatenates parts separated by a zero byte.
// Parts must not contain zero bytes for the result
// to preserve the ordering of the parts.
func Join(parts ...[]byte) Key {
	return bytes.Join(parts, []byte{0})
}
