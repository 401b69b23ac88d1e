package kv_test

import (
	"testing"

	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/google/go-cmp/cmp"
)

type update struct {
	key    string
	value  string
	delete bool
}

func kvs(pairs ...string) []kv.KV {
	result := []kv.KV{}

	for i := 0; i < len(pairs); i += 2 {
		result = append(result, kv.KV{[]byte(pairs[i]), []byte(pairs[i+1])})
	}

	return result
}

func TestMerge(t *testing.T) {
	testCases := map[string]struct {
		base    []kv.KV
		updates []update
		r       keys.Range
		result  []kv.KV
	}{
		"empty": {
			r:      keys.All(),
			result: kvs(),
		},
		"only-base": {
			base:   kvs("a", "1", "b", "2"),
			r:      keys.All(),
			result: kvs("a", "1", "b", "2"),
		},
		"only-staged": {
			updates: []update{{key: "b", value: "2"}, {key: "a", value: "1"}},
			r:       keys.All(),
			result:  kvs("a", "1", "b", "2"),
		},
		"staged-overrides-base": {
			base:    kvs("a", "1", "b", "2", "c", "3"),
			updates: []update{{key: "b", value: "x"}},
			r:       keys.All(),
			result:  kvs("a", "1", "b", "x", "c", "3"),
		},
		"staged-delete-hides-base": {
			base:    kvs("a", "1", "b", "2", "c", "3"),
			updates: []update{{key: "a", delete: true}, {key: "c", delete: true}},
			r:       keys.All(),
			result:  kvs("b", "2"),
		},
		"delete-of-missing-key": {
			base:    kvs("b", "2"),
			updates: []update{{key: "a", delete: true}, {key: "z", delete: true}},
			r:       keys.All(),
			result:  kvs("b", "2"),
		},
		"interleaved": {
			base:    kvs("a", "1", "c", "3", "e", "5"),
			updates: []update{{key: "b", value: "2"}, {key: "d", value: "4"}, {key: "f", value: "6"}},
			r:       keys.All(),
			result:  kvs("a", "1", "b", "2", "c", "3", "d", "4", "e", "5", "f", "6"),
		},
		"range-limits-staged": {
			base:    kvs("b", "2", "c", "3"),
			updates: []update{{key: "a", value: "1"}, {key: "bb", value: "x"}, {key: "d", value: "4"}},
			r:       keys.All().Gte([]byte("b")).Lt([]byte("d")),
			result:  kvs("b", "2", "bb", "x", "c", "3"),
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			buffer := kv.NewBuffer()

			for _, u := range testCase.updates {
				if u.delete {
					buffer.Delete([]byte(u.key))
				} else {
					buffer.Put([]byte(u.key), []byte(u.value))
				}
			}

			var base []kv.KV

			for _, pair := range testCase.base {
				if testCase.r.Contains(pair.Key()) {
					base = append(base, pair)
				}
			}

			result, err := kv.Collect(kv.Merge(kv.NewSliceIterator(base), buffer.Range(testCase.r)))

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if diff := cmp.Diff(testCase.result, result); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestBuffer(t *testing.T) {
	buffer := kv.NewBuffer()
	key := []byte("a")

	buffer.Put(key, nil)
	key[0] = 'b'

	value, deleted, ok := buffer.Get([]byte("a"))

	if !ok || deleted || value == nil || len(value) != 0 {
		t.Fatalf("expected an empty value for a, got %v %v %v", value, deleted, ok)
	}

	if _, _, ok := buffer.Get([]byte("b")); ok {
		t.Fatalf("buffer must copy keys")
	}

	buffer.Delete([]byte("a"))

	if _, deleted, ok := buffer.Get([]byte("a")); !ok || !deleted {
		t.Fatalf("expected a tombstone for a")
	}

	if buffer.Len() != 1 {
		t.Fatalf("expected 1 staged update, got %d", buffer.Len())
	}

	buffer.Reset()

	if buffer.Len() != 0 {
		t.Fatalf("expected no staged updates, got %d", buffer.Len())
	}
}

func TestBufferIteratorToleratesUpdates(t *testing.T) {
	buffer := kv.NewBuffer()
	buffer.Put([]byte("a"), []byte("1"))
	buffer.Put([]byte("c"), []byte("3"))

	iter := buffer.Range(keys.All())
	var seen []string

	for iter.Next() {
		seen = append(seen, string(iter.Key()))

		if string(iter.Key()) == "a" {
			buffer.Put([]byte("b"), []byte("2"))
		}
	}

	if diff := cmp.Diff([]string{"a", "b", "c"}, seen); diff != "" {
		t.Fatal(diff)
	}
}

func TestPluginOptions(t *testing.T) {
	options := kv.PluginOptions{
		"s":    "x",
		"b":    "true",
		"i":    "12",
		"d":    "1s",
		"list": []string{"a", "b"},
		"bad":  3.5,
	}

	if s, err := options.String("s", ""); err != nil || s != "x" {
		t.Fatalf("unexpected string option %q %v", s, err)
	}

	if s, err := options.String("missing", "def"); err != nil || s != "def" {
		t.Fatalf("unexpected default %q %v", s, err)
	}

	if b, err := options.Bool("b", false); err != nil || !b {
		t.Fatalf("unexpected bool option %v %v", b, err)
	}

	if i, err := options.Int("i", 0); err != nil || i != 12 {
		t.Fatalf("unexpected int option %v %v", i, err)
	}

	if d, err := options.Duration("d", 0); err != nil || d.Seconds() != 1 {
		t.Fatalf("unexpected duration option %v %v", d, err)
	}

	if l, err := options.Strings("list"); err != nil || len(l) != 2 {
		t.Fatalf("unexpected list option %v %v", l, err)
	}

	if _, err := options.Int("bad", 0); err == nil {
		t.Fatalf("expected an error for a float option")
	}
}
