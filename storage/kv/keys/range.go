package keys

import (
	"bytes"
)

// All returns a new key range matching all keys
func All() Range {
	return Range{}
}

// Range represents all keys such that
//   k >= Min and k < Max
// If Min = nil that indicates the start of all keys
// If Max = nil that indicatese the end of all keys
// If multiple modifiers are called on a range the end
// result is effectively the same as ANDing all the
// restrictions.
type Range struct {
	Min []byte
	Max []byte
	ns  []byte
}

// Eq confines the range to just key k
func (r Range) Eq(k []byte) Range {
	return r.Gte(k).Lte(k)
}

// Gt confines the range to keys that are
// greater than k
func (r Range) Gt(k []byte) Range {
	return r.refineMin(after(k))
}

// Gte confines the range to keys that are
// greater than or equal to k
func (r Range) Gte(k []byte) Range {
	return r.refineMin(k)
}

// Lt confines the range to keys that are
// less than k
func (r Range) Lt(k []byte) Range {
	return r.refineMax(k)
}

// Lte confines the range to keys that are
// less than or equal to k
func (r Range) Lte(k []byte) Range {
	return r.refineMax(after(k))
}

// Prefix confines the range to keys that
// have the prefix k, excluding k itself
func (r Range) Prefix(k []byte) Range {
	return r.Gt(k).Lt(inc(k))
}

// After confines the range to keys greater than k.
// Unlike Gt, k is taken as is and is never prefixed
// with the namespace. It is meant for resuming a scan
// after the last key it returned.
func (r Range) After(k []byte) Range {
	min := after(k)

	if compare(min, r.Min) > 0 {
		r.Min = min
	}

	return r
}

// Namespace confines the range to keys with the prefix ns,
// prefixing its existing bounds with ns. Subsequent modifier
// methods will keep keys within this namespace.
func (r Range) Namespace(ns []byte) Range {
	r.Min = prefix(r.Min, ns)

	if r.Max == nil {
		r.Max = inc(prefix(r.ns, ns))
	} else {
		r.Max = prefix(r.Max, ns)
	}

	r.ns = prefix(r.ns, ns)

	return r
}

// Contains returns true if k is inside the range
func (r Range) Contains(k []byte) bool {
	if r.Min != nil && bytes.Compare(k, r.Min) < 0 {
		return false
	}

	if r.Max != nil && bytes.Compare(k, r.Max) >= 0 {
		return false
	}

	return true
}

// Empty returns true if no key can be inside the range
func (r Range) Empty() bool {
	return r.Max != nil && bytes.Compare(r.Min, r.Max) >= 0
}

func (r Range) refineMin(min []byte) Range {
	if len(r.ns) > 0 {
		min = prefix(min, r.ns)
	}

	if compare(min, r.Min) <= 0 {
		return r
	}

	r.Min = min

	return r
}

func (r Range) refineMax(max []byte) Range {
	if len(r.ns) > 0 {
		if max == nil {
			max = inc(r.ns)
		} else {
			max = prefix(max, r.ns)
		}
	}

	if max == nil || r.Max != nil && compare(max, r.Max) >= 0 {
		return r
	}

	r.Max = max

	return r
}

func compare(a []byte, b []byte) int {
	if a == nil {
		if b == nil {
			return 0
		}

		return -1
	}

	if b == nil {
		return 1
	}

	return bytes.Compare(a, b)
}

// after returns the key directly after k such that
// there can exist no other key that comes between
// k and after(k)
func after(k []byte) []byte {
	afterK := make([]byte, len(k)+1)

	copy(afterK, k)
	afterK[len(k)] = 0

	return afterK
}

// inc treats k as a big-endian unsigned integer
// and adds 1 to it, dropping trailing 0xff bytes
// so that the result is the smallest key greater
// than every key prefixed by k.
func inc(k []byte) []byte {
	end := len(k)

	for end > 0 && k[end-1] == 0xff {
		end--
	}

	// every byte of k was 0xff. The range should just go
	// all the way to the end of the real key range.
	if end == 0 {
		return nil
	}

	incK := make([]byte, end)
	copy(incK, k[:end])
	incK[end-1]++

	return incK
}

// prefix appends k to p
func prefix(k []byte, p []byte) []byte {
	if len(k) == 0 && len(p) == 0 {
		return k
	}

	prefixedK := make([]byte, 0, len(p)+len(k))
	prefixedK = append(prefixedK, p...)
	prefixedK = append(prefixedK, k...)

	return prefixedK
}
