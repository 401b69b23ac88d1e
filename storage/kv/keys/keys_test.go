package keys_test

import (
	"testing"

	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/google/go-cmp/cmp"
)

func TestInc(t *testing.T) {
	testCases := map[string]struct {
		key      keys.Key
		expected keys.Key
	}{
		"simple": {
			key:      keys.Key{0x04, 0x01},
			expected: keys.Key{0x04, 0x02},
		},
		"trailing-ff": {
			key:      keys.Key{0x04, 0xff},
			expected: keys.Key{0x05},
		},
		"all-ff": {
			key:      keys.Key{0xff, 0xff},
			expected: nil,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			original := append(keys.Key{}, testCase.key...)

			if diff := cmp.Diff(testCase.expected, keys.Inc(testCase.key)); diff != "" {
				t.Fatal(diff)
			}

			if diff := cmp.Diff(original, testCase.key); diff != "" {
				t.Fatalf("Inc must not modify its input: %s", diff)
			}
		})
	}
}

func TestRange(t *testing.T) {
	testCases := map[string]struct {
		r   keys.Range
		in  []string
		out []string
	}{
		"all": {
			r:  keys.All(),
			in: []string{"", "a", "zzz"},
		},
		"eq": {
			r:   keys.All().Eq([]byte("b")),
			in:  []string{"b"},
			out: []string{"a", "b\x00", "ba", "c"},
		},
		"gt-lt": {
			r:   keys.All().Gt([]byte("b")).Lt([]byte("d")),
			in:  []string{"b\x00", "c", "cz"},
			out: []string{"b", "d", "a"},
		},
		"gte-lte": {
			r:   keys.All().Gte([]byte("b")).Lte([]byte("d")),
			in:  []string{"b", "c", "d"},
			out: []string{"a", "d\x00", "e"},
		},
		"prefix": {
			r:   keys.All().Prefix([]byte("bb")),
			in:  []string{"bb\x00", "bba", "bb\xff\xff"},
			out: []string{"bb", "bc", "ba"},
		},
		"prefix-and-lt": {
			r:   keys.All().Prefix([]byte("bb")).Lt([]byte("a")),
			out: []string{"bb", "bba", "a"},
		},
		"namespace": {
			r:   keys.All().Namespace([]byte("ns")).Gte([]byte("b")),
			in:  []string{"nsb", "nsz"},
			out: []string{"b", "nsa", "nt"},
		},
		"namespace-bounded": {
			r:   keys.All().Gte([]byte("a")).Lt([]byte("c")).Namespace([]byte("ns")),
			in:  []string{"nsa", "nsb", "nsbz"},
			out: []string{"ns", "nsc", "nscz", "nt", "b"},
		},
		"namespace-nested": {
			r:   keys.All().Namespace([]byte("ns")).Namespace([]byte("x")),
			in:  []string{"xns", "xnsa"},
			out: []string{"ns", "xnt", "xa", "y"},
		},
		"namespace-after": {
			r:   keys.All().Namespace([]byte("ns")).After([]byte("nsb")),
			in:  []string{"nsb\x00", "nsc"},
			out: []string{"nsb", "nsa", "nt"},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			for _, k := range testCase.in {
				if !testCase.r.Contains([]byte(k)) {
					t.Errorf("expected %q to be in range %#v", k, testCase.r)
				}
			}

			for _, k := range testCase.out {
				if testCase.r.Contains([]byte(k)) {
					t.Errorf("expected %q not to be in range %#v", k, testCase.r)
				}
			}
		})
	}
}

func TestRangeEmpty(t *testing.T) {
	if keys.All().Empty() {
		t.Fatalf("full range should not be empty")
	}

	if !keys.All().Gte([]byte("b")).Lt([]byte("a")).Empty() {
		t.Fatalf("inverted range should be empty")
	}
}

func TestJoin(t *testing.T) {
	a := keys.Join([]byte("ns"), []byte("db"), []byte("a"))
	b := keys.Join([]byte("ns"), []byte("db"), []byte("b"))

	if keys.Compare(a, b) >= 0 {
		t.Fatalf("expected %q < %q", a, b)
	}
}
