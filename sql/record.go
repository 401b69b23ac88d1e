package sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/SpeedReach/surrealdb/kvs"
	"github.com/SpeedReach/surrealdb/storage/kv/keys"
	"github.com/SpeedReach/surrealdb/utils/stream"
)

// FieldID is the document field holding the record ID
const FieldID = "id"

// Document is the content of a record
type Document map[string]string

// Copy returns a copy of doc
func (doc Document) Copy() Document {
	c := make(Document, len(doc))

	for k, v := range doc {
		c[k] = v
	}

	return c
}

// Thing identifies a record inside a table
type Thing struct {
	Table string
	ID    string
}

func (thing Thing) String() string {
	return thing.Table + ":" + thing.ID
}

// Valid checks that thing can be encoded as a key
func (thing Thing) Valid() error {
	switch {
	case thing.Table == "":
		return invalidRecord("table name is empty")
	case thing.ID == "":
		return invalidRecord("record ID is empty")
	case strings.ContainsRune(thing.Table, 0), strings.ContainsRune(thing.ID, 0):
		return invalidRecord("%q contains a zero byte", thing.String())
	}

	return nil
}

// Key returns the key of thing in the selected database.
// Keys of one table are contiguous and sorted by ID.
func (opt *Options) Key(thing Thing) []byte {
	return keys.Join([]byte(opt.Namespace), []byte(opt.Database), []byte(thing.Table), []byte(thing.ID))
}

func (opt *Options) tablePrefix(table string) []byte {
	return keys.Join([]byte(opt.Namespace), []byte(opt.Database), []byte(table), nil)
}

// TableRange returns the range holding every record of table
func (opt *Options) TableRange(table string) keys.Range {
	return keys.All().Namespace(opt.tablePrefix(table))
}

// GetRecord reads a record. It returns nil if the
// record does not exist.
func GetRecord(ctx context.Context, opt *Options, txn *kvs.Transaction, thing Thing) (Document, error) {
	if err := thing.Valid(); err != nil {
		return nil, err
	}

	raw, err := txn.Get(ctx, opt.Key(thing))

	if err != nil {
		return nil, err
	}

	if raw == nil {
		return nil, nil
	}

	return decodeDocument(thing, raw)
}

// CreateRecord stores a new record. It fails with
// ErrRecordExists if the record exists.
func CreateRecord(ctx context.Context, opt *Options, txn *kvs.Transaction, thing Thing, doc Document) error {
	raw, err := encodeDocument(thing, doc)

	if err != nil {
		return err
	}

	if err := txn.Put(ctx, opt.Key(thing), raw); err != nil {
		if errors.Is(err, kvs.ErrKeyAlreadyExists) {
			return fmt.Errorf("%w: %s", ErrRecordExists, thing)
		}

		return err
	}

	return nil
}

// SetRecord stores a record, replacing any existing one
func SetRecord(opt *Options, txn *kvs.Transaction, thing Thing, doc Document) error {
	raw, err := encodeDocument(thing, doc)

	if err != nil {
		return err
	}

	return txn.Set(opt.Key(thing), raw)
}

// DeleteRecord deletes a record
func DeleteRecord(opt *Options, txn *kvs.Transaction, thing Thing) error {
	if err := thing.Valid(); err != nil {
		return err
	}

	return txn.Del(opt.Key(thing))
}

func encodeDocument(thing Thing, doc Document) ([]byte, error) {
	if err := thing.Valid(); err != nil {
		return nil, err
	}

	doc = doc.Copy()
	doc[FieldID] = thing.ID

	return json.Marshal(doc)
}

func decodeDocument(thing Thing, raw []byte) (Document, error) {
	var doc Document

	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, invalidRecord("%s: %s", thing, err)
	}

	if doc == nil {
		doc = Document{}
	}

	doc[FieldID] = thing.ID

	return doc, nil
}

// ScanTable streams every record of table in ID order.
// The stream must be drained or closed before the
// transaction ends.
func ScanTable(ctx context.Context, opt *Options, txn *kvs.Transaction, table string) (*TableStream, error) {
	if err := (Thing{Table: table, ID: "_"}).Valid(); err != nil {
		return nil, err
	}

	iter, err := txn.Scan(ctx, opt.TableRange(table))

	if err != nil {
		return nil, err
	}

	return &TableStream{table: table, prefix: len(opt.tablePrefix(table)), iter: iter}, nil
}

var _ stream.Stream[*CursorDoc] = (*TableStream)(nil)

// TableStream is a stream of the records of one table
type TableStream struct {
	table  string
	prefix int
	iter   *kvs.Iterator
	value  *CursorDoc
	err    error
}

// Next implements stream.Stream
func (s *TableStream) Next() bool {
	s.value = nil

	if s.err != nil || !s.iter.Next() {
		return false
	}

	thing := Thing{Table: s.table, ID: string(s.iter.Key()[s.prefix:])}
	doc, err := decodeDocument(thing, s.iter.Value())

	if err != nil {
		s.err = err

		return false
	}

	s.value = &CursorDoc{ID: thing, Doc: doc}

	return true
}

// Value implements stream.Stream
func (s *TableStream) Value() *CursorDoc {
	return s.value
}

// Error implements stream.Stream
func (s *TableStream) Error() error {
	if s.err != nil {
		return s.err
	}

	return s.iter.Error()
}

// Close stops the stream
func (s *TableStream) Close() {
	s.iter.Close()
}
