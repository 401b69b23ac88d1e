// Package kvtest is a conformance suite for kv plugins.
// Every plugin must pass it.
package kvtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/google/go-cmp/cmp"
)

// Builder creates an empty store
type Builder func(t *testing.T) kv.Store

// Run runs the whole suite against stores created by builder
func Run(t *testing.T, builder Builder) {
	tests := map[string]func(t *testing.T, builder Builder){
		"get-put-delete":      testGetPutDelete,
		"empty-key":           testEmptyKey,
		"read-only":           testReadOnly,
		"finished":            testFinished,
		"rollback":            testRollback,
		"isolation":           testIsolation,
		"atomic-visibility":   testAtomicVisibility,
		"ordering":            testOrdering,
		"multi-reader":        testMultiReader,
		"conflict-or-serial":  testConflictOrSerialize,
		"blind-delete":        testBlindDelete,
		"long-reader":         testLongReader,
		"locked":              testLocked,
		"scan-during-updates": testScanDuringUpdates,
		"closed":              testClosed,
	}

	for name, test := range tests {
		test := test

		t.Run(name, func(t *testing.T) {
			test(t, builder)
		})
	}
}

func begin(t *testing.T, store kv.Store, writable bool) kv.Transaction {
	t.Helper()

	txn, err := store.Begin(context.Background(), writable)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return txn
}

func commit(t *testing.T, txn kv.Transaction) {
	t.Helper()

	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}
}

func put(t *testing.T, store kv.Store, pairs ...string) {
	t.Helper()

	txn := begin(t, store, true)

	for i := 0; i < len(pairs); i += 2 {
		if err := txn.Put([]byte(pairs[i]), []byte(pairs[i+1])); err != nil {
			txn.Rollback()
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	}

	commit(t, txn)
}

func get(t *testing.T, txn kv.Transaction, key string) []byte {
	t.Helper()

	value, err := txn.Get(context.Background(), []byte(key))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return value
}

func scan(t *testing.T, txn kv.Transaction, r keys.Range) []kv.KV {
	t.Helper()

	iter, err := txn.Keys(context.Background(), r)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	result, err := kv.Collect(iter)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return result
}

func pairs(p ...string) []kv.KV {
	result := []kv.KV{}

	for i := 0; i < len(p); i += 2 {
		result = append(result, kv.KV{[]byte(p[i]), []byte(p[i+1])})
	}

	return result
}

func testGetPutDelete(t *testing.T, builder Builder) {
	store := builder(t)
	txn := begin(t, store, true)
	defer txn.Rollback()

	if value := get(t, txn, "a"); value != nil {
		t.Fatalf("expected missing key to be nil, got %q", value)
	}

	txn.Put([]byte("a"), []byte("1"))
	txn.Put([]byte("empty"), nil)

	if value := get(t, txn, "a"); string(value) != "1" {
		t.Fatalf("expected to read own write, got %q", value)
	}

	if value := get(t, txn, "empty"); value == nil || len(value) != 0 {
		t.Fatalf("expected empty value, got %#v", value)
	}

	if err := txn.Delete([]byte("a")); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := txn.Delete([]byte("missing")); err != nil {
		t.Fatalf("deleting a missing key must succeed, got %#v", err)
	}

	if value := get(t, txn, "a"); value != nil {
		t.Fatalf("expected deleted key to be nil, got %q", value)
	}

	commit(t, txn)

	reader := begin(t, store, false)
	defer reader.Rollback()

	if value := get(t, reader, "empty"); value == nil || len(value) != 0 {
		t.Fatalf("expected committed empty value, got %#v", value)
	}

	if value := get(t, reader, "a"); value != nil {
		t.Fatalf("expected deleted key to be nil, got %q", value)
	}
}

func testEmptyKey(t *testing.T, builder Builder) {
	store := builder(t)
	txn := begin(t, store, true)
	defer txn.Rollback()

	if _, err := txn.Get(context.Background(), nil); err != kv.ErrKeyRequired {
		t.Fatalf("expected ErrKeyRequired, got %#v", err)
	}

	if err := txn.Put([]byte{}, []byte("a")); err != kv.ErrKeyRequired {
		t.Fatalf("expected ErrKeyRequired, got %#v", err)
	}

	if err := txn.Delete(nil); err != kv.ErrKeyRequired {
		t.Fatalf("expected ErrKeyRequired, got %#v", err)
	}
}

func testReadOnly(t *testing.T, builder Builder) {
	store := builder(t)
	txn := begin(t, store, false)
	defer txn.Rollback()

	if err := txn.Put([]byte("a"), []byte("1")); err != kv.ErrReadOnly {
		t.Fatalf("expected ErrReadOnly, got %#v", err)
	}

	if err := txn.Delete([]byte("a")); err != kv.ErrReadOnly {
		t.Fatalf("expected ErrReadOnly, got %#v", err)
	}
}

func testFinished(t *testing.T, builder Builder) {
	testCases := map[string]struct {
		writable bool
		finish   func(txn kv.Transaction) error
	}{
		"commit-read-only":    {finish: func(txn kv.Transaction) error { return txn.Commit(context.Background()) }},
		"commit-read-write":   {writable: true, finish: func(txn kv.Transaction) error { return txn.Commit(context.Background()) }},
		"rollback-read-only":  {finish: func(txn kv.Transaction) error { return txn.Rollback() }},
		"rollback-read-write": {writable: true, finish: func(txn kv.Transaction) error { return txn.Rollback() }},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			store := builder(t)
			txn := begin(t, store, testCase.writable)

			if err := testCase.finish(txn); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			ctx := context.Background()

			if _, err := txn.Get(ctx, []byte("a")); err != kv.ErrTxDone {
				t.Fatalf("expected ErrTxDone from Get, got %#v", err)
			}

			if _, err := txn.Keys(ctx, keys.All()); err != kv.ErrTxDone {
				t.Fatalf("expected ErrTxDone from Keys, got %#v", err)
			}

			if err := txn.Put([]byte("a"), []byte("1")); err != kv.ErrTxDone {
				t.Fatalf("expected ErrTxDone from Put, got %#v", err)
			}

			if err := txn.Delete([]byte("a")); err != kv.ErrTxDone {
				t.Fatalf("expected ErrTxDone from Delete, got %#v", err)
			}

			if err := txn.Commit(ctx); err != kv.ErrTxDone {
				t.Fatalf("expected ErrTxDone from Commit, got %#v", err)
			}

			if err := txn.Rollback(); err != kv.ErrTxDone {
				t.Fatalf("expected ErrTxDone from Rollback, got %#v", err)
			}

			// a finished writer must not keep other writers waiting
			next := begin(t, store, true)
			next.Rollback()
		})
	}
}

func testRollback(t *testing.T, builder Builder) {
	store := builder(t)
	put(t, store, "a", "1")

	txn := begin(t, store, true)
	txn.Put([]byte("a"), []byte("2"))
	txn.Put([]byte("b"), []byte("2"))

	if err := txn.Rollback(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	reader := begin(t, store, false)
	defer reader.Rollback()

	if diff := cmp.Diff(pairs("a", "1"), scan(t, reader, keys.All())); diff != "" {
		t.Fatal(diff)
	}
}

func testIsolation(t *testing.T, builder Builder) {
	store := builder(t)
	put(t, store, "a", "1")

	reader := begin(t, store, false)
	defer reader.Rollback()

	if value := get(t, reader, "a"); string(value) != "1" {
		t.Fatalf("expected a=1, got %q", value)
	}

	writer := begin(t, store, true)
	writer.Put([]byte("a"), []byte("2"))
	writer.Put([]byte("b"), []byte("2"))

	if value := get(t, reader, "a"); string(value) != "1" {
		t.Fatalf("reader must not see uncommitted writes, got %q", value)
	}

	commit(t, writer)

	if value := get(t, reader, "a"); string(value) != "1" {
		t.Fatalf("reads must be repeatable, got %q", value)
	}

	if diff := cmp.Diff(pairs("a", "1"), scan(t, reader, keys.All())); diff != "" {
		t.Fatal(diff)
	}

	after := begin(t, store, false)
	defer after.Rollback()

	if value := get(t, after, "a"); string(value) != "2" {
		t.Fatalf("a transaction that begins after a commit must see it, got %q", value)
	}
}

func testAtomicVisibility(t *testing.T, builder Builder) {
	store := builder(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 100)

	wg.Add(1)

	go func() {
		defer wg.Done()

		for i := 0; i < 20; i++ {
			txn, err := store.Begin(ctx, true)

			if err != nil {
				errs <- err

				return
			}

			v := []byte(fmt.Sprintf("%d", i))
			txn.Put([]byte("x"), v)
			txn.Put([]byte("y"), v)

			if err := txn.Commit(ctx); err != nil {
				errs <- err

				return
			}
		}
	}()

	for i := 0; i < 20; i++ {
		txn, err := store.Begin(ctx, false)

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		x := get(t, txn, "x")
		y := get(t, txn, "y")
		txn.Rollback()

		if string(x) != string(y) {
			t.Fatalf("saw a partial commit: x=%q y=%q", x, y)
		}
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("expected err to be nil, got %#v", err)
	}
}

func testOrdering(t *testing.T, builder Builder) {
	store := builder(t)
	put(t, store, "b", "1", "\x01", "1", "a\xff", "1", "a", "1", "ab", "1", "c", "1")

	txn := begin(t, store, true)
	defer txn.Rollback()

	txn.Put([]byte("aa"), []byte("2"))
	txn.Put([]byte("b"), []byte("2"))
	txn.Delete([]byte("c"))

	testCases := map[string]struct {
		r      keys.Range
		result []kv.KV
	}{
		"all": {
			r:      keys.All(),
			result: pairs("\x01", "1", "a", "1", "aa", "2", "ab", "1", "a\xff", "1", "b", "2"),
		},
		"prefix": {
			r:      keys.All().Prefix([]byte("a")),
			result: pairs("aa", "2", "ab", "1", "a\xff", "1"),
		},
		"bounded": {
			r:      keys.All().Gte([]byte("a")).Lt([]byte("ab")),
			result: pairs("a", "1", "aa", "2"),
		},
		"eq": {
			r:      keys.All().Eq([]byte("b")),
			result: pairs("b", "2"),
		},
		"empty": {
			r:      keys.All().Gt([]byte("c")),
			result: pairs(),
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff(testCase.result, scan(t, txn, testCase.r)); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func testMultiReader(t *testing.T, builder Builder) {
	store := builder(t)
	put(t, store, "test", "some text")

	readers := make([]kv.Transaction, 3)

	for i := range readers {
		readers[i] = begin(t, store, false)
	}

	for _, reader := range readers {
		if value := get(t, reader, "test"); string(value) != "some text" {
			t.Fatalf("expected %q, got %q", "some text", value)
		}
	}

	// readers must not block writers
	put(t, store, "test", "other text")

	for _, reader := range readers {
		if err := reader.Rollback(); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	}
}

// testConflictOrSerialize checks the guarantee every driver gives two
// concurrent writers to the same key: either the second one waits for
// the first or the later commit fails with ErrConflict
func testConflictOrSerialize(t *testing.T, builder Builder) {
	store := builder(t)
	put(t, store, "x", "0")

	first := begin(t, store, true)
	defer first.Rollback()

	get(t, first, "x")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	second, err := store.Begin(ctx, true)

	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected a timeout, got %#v", err)
		}

		first.Put([]byte("x"), []byte("1"))
		commit(t, first)

		second = begin(t, store, true)
		defer second.Rollback()

		if value := get(t, second, "x"); string(value) != "1" {
			t.Fatalf("expected a serialized writer to see x=1, got %q", value)
		}

		return
	}

	defer second.Rollback()

	get(t, second, "x")
	first.Put([]byte("x"), []byte("1"))
	commit(t, first)

	second.Put([]byte("x"), []byte("2"))

	if err := second.Commit(context.Background()); err != kv.ErrConflict {
		t.Fatalf("expected ErrConflict, got %#v", err)
	}

	reader := begin(t, store, false)
	defer reader.Rollback()

	if value := get(t, reader, "x"); string(value) != "1" {
		t.Fatalf("a conflicting commit must not apply, got x=%q", value)
	}
}

// testBlindDelete checks that deleting a key without reading it
// cannot silently undo a concurrent commit to that key
func testBlindDelete(t *testing.T, builder Builder) {
	store := builder(t)
	put(t, store, "x", "0")

	first := begin(t, store, true)
	defer first.Rollback()

	if err := first.Delete([]byte("x")); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	second, err := store.Begin(ctx, true)

	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected a timeout, got %#v", err)
		}

		commit(t, first)

		return
	}

	second.Put([]byte("x"), []byte("1"))
	commit(t, second)

	if err := first.Commit(context.Background()); err != kv.ErrConflict {
		t.Fatalf("expected ErrConflict, got %#v", err)
	}

	reader := begin(t, store, false)
	defer reader.Rollback()

	if value := get(t, reader, "x"); string(value) != "1" {
		t.Fatalf("a conflicting delete must not apply, got x=%q", value)
	}
}

// testLongReader checks that a read transaction left open does not
// stop writers from committing enough data to grow the store
func testLongReader(t *testing.T, builder Builder) {
	store := builder(t)
	put(t, store, "test", "some text")

	reader := begin(t, store, false)
	defer reader.Rollback()

	get(t, reader, "test")

	value := make([]byte, 512)
	done := make(chan error, 1)

	go func() {
		ctx := context.Background()

		for i := 0; i < 20; i++ {
			txn, err := store.Begin(ctx, true)

			if err != nil {
				done <- err

				return
			}

			for j := 0; j < 100; j++ {
				txn.Put([]byte(fmt.Sprintf("fill/%02d/%03d", i, j)), value)
			}

			if err := txn.Commit(ctx); err != nil {
				done <- err

				return
			}
		}

		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("writers are blocked by an open read transaction")
	}

	if value := get(t, reader, "test"); string(value) != "some text" {
		t.Fatalf("expected %q, got %q", "some text", value)
	}

	if result := scan(t, reader, keys.All().Prefix([]byte("fill/"))); len(result) != 0 {
		t.Fatalf("reader must not see later commits, saw %d keys", len(result))
	}
}

func testLocked(t *testing.T, builder Builder) {
	store := builder(t)
	locker, ok := store.(kv.Locker)

	if !ok {
		t.Skip("store does not support locked transactions")
	}

	put(t, store, "x", "0")

	txn, err := locker.BeginLocked(context.Background())

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if value := get(t, txn, "x"); string(value) != "0" {
		t.Fatalf("expected x=0, got %q", value)
	}

	txn.Put([]byte("x"), []byte("1"))
	commit(t, txn)

	reader := begin(t, store, false)
	defer reader.Rollback()

	if value := get(t, reader, "x"); string(value) != "1" {
		t.Fatalf("expected x=1, got %q", value)
	}

	again, err := locker.BeginLocked(context.Background())

	if err != nil {
		t.Fatalf("expected the lock to be released, got %#v", err)
	}

	again.Rollback()
}

func testScanDuringUpdates(t *testing.T, builder Builder) {
	store := builder(t)

	// commits stay small since some engines bound the
	// number of operations in one transaction
	for i := 0; i < 300; i += 50 {
		var p []string

		for j := i; j < i+50; j++ {
			p = append(p, fmt.Sprintf("k%03d", j), "v")
		}

		put(t, store, p...)
	}

	reader := begin(t, store, false)

	if result := scan(t, reader, keys.All()); len(result) != 300 {
		t.Fatalf("expected 300 keys, got %d", len(result))
	}

	reader.Rollback()

	txn := begin(t, store, true)
	defer txn.Rollback()

	iter, err := txn.Keys(context.Background(), keys.All().Gte([]byte("k000")).Lt([]byte("k040")))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	n := 0
	var last []byte

	for iter.Next() {
		if last != nil && keys.Compare(last, iter.Key()) >= 0 {
			t.Fatalf("keys out of order: %q then %q", last, iter.Key())
		}

		last = kv.Copy(iter.Key())
		n++

		if err := txn.Delete(last); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	}

	if err := iter.Error(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if n != 40 {
		t.Fatalf("expected 40 keys, got %d", n)
	}

	commit(t, txn)

	reader = begin(t, store, false)
	defer reader.Rollback()

	result := scan(t, reader, keys.All())

	if len(result) != 260 || string(result[0].Key()) != "k040" {
		t.Fatalf("expected k000 to k039 to be deleted, got %d keys", len(result))
	}
}

func testClosed(t *testing.T, builder Builder) {
	store := builder(t)

	if err := store.Close(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := store.Begin(context.Background(), false); err != kv.ErrClosed {
		t.Fatalf("expected ErrClosed, got %#v", err)
	}
}
