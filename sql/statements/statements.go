// Package statements implements the query statements
package statements

import (
	"context"

	"github.com/SpeedReach/surrealdb/kvs"
	"github.com/SpeedReach/surrealdb/sql"
	"github.com/SpeedReach/surrealdb/utils/log"
	"github.com/SpeedReach/surrealdb/utils/stream"
	"go.uber.org/zap"
)

var (
	_ sql.Statement = (*ThrowStatement)(nil)
	_ sql.Statement = (*SelectStatement)(nil)
	_ sql.Statement = (*InsertStatement)(nil)
	_ sql.Statement = (*UpdateStatement)(nil)
	_ sql.Statement = (*DeleteStatement)(nil)
)

func check(opt *sql.Options, stmt sql.Statement) error {
	if err := opt.Valid(); err != nil {
		return err
	}

	return opt.Check(stmt.Writeable())
}

// records streams the records of table that match where.
// A condition on the record ID turns the scan into a
// point lookup.
func records(ctx context.Context, opt *sql.Options, txn *kvs.Transaction, table string, where sql.Conditions) (stream.Stream[*sql.CursorDoc], func(), error) {
	logger := log.Logger(ctx)
	var logged stream.Processor[*sql.CursorDoc]

	if logger != nil {
		logged = stream.Log[*sql.CursorDoc](log.WithContext(ctx, logger).With(zap.String("table", table)), "read record")
	}

	if id, ok := where.ID(); ok {
		thing := sql.Thing{Table: table, ID: id}
		doc, err := sql.GetRecord(ctx, opt, txn, thing)

		if err != nil {
			return nil, nil, err
		}

		var docs []*sql.CursorDoc

		if doc != nil && where.Match(doc) {
			docs = append(docs, &sql.CursorDoc{ID: thing, Doc: doc})
		}

		return stream.Pipeline(stream.Slice(docs), logged), func() {}, nil
	}

	s, err := sql.ScanTable(ctx, opt, txn, table)

	if err != nil {
		return nil, nil, err
	}

	return stream.Pipeline[*sql.CursorDoc](s, stream.Filter(func(doc *sql.CursorDoc) bool {
		return where.Match(doc.Doc)
	}), logged), s.Close, nil
}

// collect reads every matching record before any of them is
// changed
func collect(ctx context.Context, opt *sql.Options, txn *kvs.Transaction, table string, where sql.Conditions) ([]*sql.CursorDoc, error) {
	s, done, err := records(ctx, opt, txn, table, where)

	if err != nil {
		return nil, err
	}

	defer done()

	return stream.Collect(s)
}
